// Package stream serves model output to clients as Server-Sent Events.
package stream

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	"github.com/liangxiao/meya/backend/internal/model/chat"
	chatService "github.com/liangxiao/meya/backend/internal/service/chat"
	"github.com/liangxiao/meya/backend/pkg/utils"
)

// streamErrorMessage is the only error text a client ever sees mid-stream.
const streamErrorMessage = "generation failed"

// Generator produces the incremental model output for one session turn.
type Generator interface {
	Stream(ctx context.Context, sessionID string, history []chat.Message, userMessage string) (*schema.StreamReader[*schema.Message], error)
}

// Handler owns the full lifecycle of one generation-and-delivery cycle per
// session: at most one stream may be active for a session at a time.
type Handler struct {
	generator Generator
	chatSvc   *chatService.Service
	timeout   time.Duration

	mu     sync.Mutex
	active map[string]struct{}
}

// New creates the stream handler. timeout bounds the total duration of one
// stream; zero means no bound.
func New(generator Generator, chatSvc *chatService.Service, timeout time.Duration) *Handler {
	return &Handler{
		generator: generator,
		chatSvc:   chatSvc,
		timeout:   timeout,
		active:    make(map[string]struct{}),
	}
}

// RegisterRoutes 注册流式查询路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/query", h.handleQuery)
}

// fragment is one unit of producer output handed to the delivery loop.
type fragment struct {
	content string
	err     error
}

// handleQuery validates the session, then streams generated fragments as
// discrete "message" events until the producer finishes, fails, times out or
// the client goes away. Cleanup runs exactly once on every exit path.
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId query parameter is required")
		return
	}

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	if !h.acquire(sessionID) {
		utils.RespondError(w, http.StatusConflict, "a stream is already active for this session")
		return
	}

	var once sync.Once
	finish := func() {
		h.release(sessionID)
		h.chatSvc.MarkConnectionInactive(sessionID)
		h.chatSvc.Touch(sessionID)
	}
	defer once.Do(finish)

	h.chatSvc.MarkConnectionActive(sessionID)
	h.chatSvc.Touch(sessionID)
	utils.SetupSSEHeaders(w)

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	history, err := h.chatSvc.LoadTranscript(ctx, sessionID)
	if err != nil {
		history = nil
	}

	var eventID uint64

	stream, err := h.generator.Stream(ctx, sessionID, history, session.Request.Message)
	if err != nil {
		log.Printf("[stream] failed to start generation for session=%s: %v", sessionID, err)
		eventID++
		_ = utils.SendSSEEvent(w, flusher, eventID, "error", streamErrorMessage)
		return
	}
	defer stream.Close()

	// Pump the producer into a bounded channel so the delivery loop below can
	// observe cancellation and timeout even while the producer stalls.
	frags := make(chan fragment, 8)
	go pump(ctx, stream, frags)

	var response strings.Builder

	for {
		select {
		case <-ctx.Done():
			if r.Context().Err() != nil {
				log.Printf("[stream] client disconnected session=%s", sessionID)
				return
			}
			log.Printf("[stream] timed out session=%s", sessionID)
			eventID++
			_ = utils.SendSSEEvent(w, flusher, eventID, "error", streamErrorMessage)
			return
		case frag, open := <-frags:
			if !open {
				h.persistTurn(sessionID, session.Request.Message, response.String())
				log.Printf("[stream] completed response for session=%s, events=%d", sessionID, eventID)
				return
			}
			if frag.err != nil {
				log.Printf("[stream] producer error session=%s: %v", sessionID, frag.err)
				eventID++
				_ = utils.SendSSEEvent(w, flusher, eventID, "error", streamErrorMessage)
				return
			}

			eventID++
			if err := utils.SendSSEEvent(w, flusher, eventID, "message", frag.content); err != nil {
				log.Printf("[stream] write failed session=%s: %v", sessionID, err)
				return
			}
			response.WriteString(frag.content)
		}
	}
}

// pump drains the producer stream into out. It closes out on normal
// completion and stops without closing when ctx ends first.
func pump(ctx context.Context, stream *schema.StreamReader[*schema.Message], out chan<- fragment) {
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			close(out)
			return
		}
		if recvErr != nil {
			select {
			case out <- fragment{err: recvErr}:
			case <-ctx.Done():
			}
			return
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		select {
		case out <- fragment{content: chunk.Content}:
		case <-ctx.Done():
			return
		}
	}
}

// persistTurn appends the finished turn to the transcript so the next stream
// on this session sees it in the memory window.
func (h *Handler) persistTurn(sessionID, userMessage, assistantMessage string) {
	ctx := context.Background()

	if err := h.chatSvc.SaveMessage(ctx, chat.Message{
		SessionID: sessionID,
		Sender:    "user",
		Content:   userMessage,
	}); err != nil {
		log.Printf("[stream] failed to save user message: %v", err)
		return
	}

	if err := h.chatSvc.SaveMessage(ctx, chat.Message{
		SessionID: sessionID,
		Sender:    "assistant",
		Content:   assistantMessage,
	}); err != nil {
		log.Printf("[stream] failed to save assistant message: %v", err)
	}
}

func (h *Handler) acquire(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.active[sessionID]; busy {
		return false
	}
	h.active[sessionID] = struct{}{}
	return true
}

func (h *Handler) release(sessionID string) {
	h.mu.Lock()
	delete(h.active, sessionID)
	h.mu.Unlock()
}
