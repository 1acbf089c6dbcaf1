package chat

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/liangxiao/meya/backend/internal/model/chat"
	chatService "github.com/liangxiao/meya/backend/internal/service/chat"
	"github.com/liangxiao/meya/backend/pkg/utils"
)

// Handler 会话管理的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建会话处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/create-session", h.handleCreateSession)
	r.Post("/update-session", h.handleUpdateSession)
	r.Post("/close-session", h.handleCloseSession)
}

// handleCreateSession 创建会话（返回唯一sessionId）
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload chat.Request
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), payload)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Printf("[chat] created session=%s", session.ID)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"sessionId": session.ID})
}

// handleUpdateSession 更新会话内容
func (h *Handler) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId query parameter is required")
		return
	}

	var payload chat.Request
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.chatSvc.UpdateSession(r.Context(), sessionID, payload); err != nil {
		switch {
		case errors.Is(err, chatService.ErrSessionNotFound):
			utils.RespondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, chatService.ErrMessageRequired):
			utils.RespondError(w, http.StatusBadRequest, err.Error())
		default:
			utils.RespondError(w, http.StatusInternalServerError, "failed to update session")
		}
		return
	}

	log.Printf("[chat] updated session=%s", sessionID)
	w.WriteHeader(http.StatusOK)
}

// handleCloseSession 关闭会话，重复关闭不报错
func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId query parameter is required")
		return
	}

	h.chatSvc.CloseSession(r.Context(), sessionID)
	log.Printf("[chat] closed session=%s", sessionID)
	w.WriteHeader(http.StatusOK)
}
