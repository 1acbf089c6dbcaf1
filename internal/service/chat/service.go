package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/liangxiao/meya/backend/internal/model/chat"
)

var (
	ErrMessageRequired = errors.New("message is required")
	ErrSessionNotFound = errors.New("session not found")
)

// Config bounds the lifetime of idle sessions.
type Config struct {
	// IdleTTL is how long a session may sit without activity before the
	// sweeper removes it. Zero disables expiry.
	IdleTTL time.Duration
	// SweepInterval is how often the sweeper scans for expired sessions.
	SweepInterval time.Duration
}

type record struct {
	session      chat.Session
	lastActivity time.Time
}

// Service owns all per-conversation state: the session registry, the
// per-session transcript and the connection liveness flags. All methods are
// safe for concurrent use.
type Service struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*record
	messages map[string][]chat.Message

	connMu      sync.Mutex
	connections map[string]*atomic.Bool
}

// NewService bootstraps the in-memory session service.
func NewService(cfg Config) *Service {
	return &Service{
		cfg:         cfg,
		sessions:    make(map[string]*record),
		messages:    make(map[string][]chat.Message),
		connections: make(map[string]*atomic.Bool),
	}
}

// CreateSession allocates a fresh session holding the request payload and
// returns it. The identifier is a v4 UUID, so id generation lives here and
// nowhere else.
func (s *Service) CreateSession(_ context.Context, req chat.Request) (chat.Session, error) {
	if strings.TrimSpace(req.Message) == "" {
		return chat.Session{}, ErrMessageRequired
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		Request:   req,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = &record{session: session, lastActivity: time.Now()}
	s.messages[session.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	return session, nil
}

// GetSession retrieves a session by identifier without touching liveness.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return rec.session, nil
}

// UpdateSession replaces the stored payload. Updating an unknown session is
// an error, never an implicit create.
func (s *Service) UpdateSession(_ context.Context, sessionID string, req chat.Request) error {
	if strings.TrimSpace(req.Message) == "" {
		return ErrMessageRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	rec.session.Request = req
	rec.lastActivity = time.Now()
	return nil
}

// CloseSession removes the session, its transcript and its liveness flag.
// Closing an unknown or already-closed session is a no-op.
func (s *Service) CloseSession(_ context.Context, sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	s.mu.Unlock()

	s.connMu.Lock()
	delete(s.connections, sessionID)
	s.connMu.Unlock()
}

// Touch records activity on a session so the idle sweeper leaves it alone.
func (s *Service) Touch(sessionID string) {
	s.mu.Lock()
	if rec, ok := s.sessions[sessionID]; ok {
		rec.lastActivity = time.Now()
	}
	s.mu.Unlock()
}

// SaveMessage appends a message to the session transcript.
func (s *Service) SaveMessage(_ context.Context, message chat.Message) error {
	if message.SessionID == "" {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[message.SessionID]; !ok {
		return ErrSessionNotFound
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	s.messages[message.SessionID] = append(s.messages[message.SessionID], message)
	return nil
}

// LoadTranscript returns a copy of the stored messages for the session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// MarkConnectionActive flags the session as currently being streamed to.
// Safe on identifiers that have no prior flag entry.
func (s *Service) MarkConnectionActive(sessionID string) {
	s.connMu.Lock()
	flag, ok := s.connections[sessionID]
	if !ok {
		flag = &atomic.Bool{}
		s.connections[sessionID] = flag
	}
	s.connMu.Unlock()
	flag.Store(true)
}

// MarkConnectionInactive clears the liveness flag. Idempotent.
func (s *Service) MarkConnectionInactive(sessionID string) {
	s.connMu.Lock()
	flag := s.connections[sessionID]
	s.connMu.Unlock()
	if flag != nil {
		flag.Store(false)
	}
}

// IsConnectionActive reports whether a stream is currently being served for
// the session. Unknown identifiers report false.
func (s *Service) IsConnectionActive(sessionID string) bool {
	s.connMu.Lock()
	flag := s.connections[sessionID]
	s.connMu.Unlock()
	return flag != nil && flag.Load()
}

// StartSweeper launches the background expiry loop and returns immediately.
// The loop stops when ctx is cancelled. Sessions with an active stream are
// never swept regardless of age.
func (s *Service) StartSweeper(ctx context.Context) {
	if s.cfg.IdleTTL <= 0 || s.cfg.SweepInterval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.sweep(time.Now()); n > 0 {
					log.Printf("[session] swept %d idle session(s)", n)
				}
			}
		}
	}()
}

func (s *Service) sweep(now time.Time) int {
	s.mu.RLock()
	expired := make([]string, 0)
	for id, rec := range s.sessions {
		if now.Sub(rec.lastActivity) >= s.cfg.IdleTTL {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	swept := 0
	for _, id := range expired {
		if s.IsConnectionActive(id) {
			continue
		}
		s.CloseSession(context.Background(), id)
		swept++
	}
	return swept
}
