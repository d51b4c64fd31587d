package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/chat-gateway/pkg/auth"
	"github.com/ekaya-inc/chat-gateway/pkg/models"
	"github.com/ekaya-inc/chat-gateway/pkg/services"
)

// ChatPipeline is the chat service as seen by the HTTP layer.
type ChatPipeline interface {
	Chat(ctx context.Context, req *models.ChatRequest, apiKey string) (*models.ChatReply, error)
	Summarize(ctx context.Context, chatID string, messages []models.ConversationTurn, userIdentity, apiKey string) (*models.ConversationSummary, error)
	Memory(ctx context.Context, chatID, userIdentity string) (string, bool)
}

var _ ChatPipeline = (*services.ChatService)(nil)

// ChatSessions issues chat ids and tracks each user's active chat.
type ChatSessions interface {
	NewChat(ctx context.Context, user string) (*models.ChatSession, error)
	ResolveChatID(ctx context.Context, user, chatID string) string
}

var _ ChatSessions = (*services.ChatSessionService)(nil)

// SummaryRequest is the request body for POST /chat/summary.
type SummaryRequest struct {
	ChatID       string                    `json:"chat_id"`
	Messages     []models.ConversationTurn `json:"messages"`
	UserIdentity string                    `json:"user_identity,omitempty"`
}

// SummaryResponse is the data of a successful summary.
type SummaryResponse struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Topics  []string `json:"topics"`
}

// MemoryResponse is the data of GET /chat/memory.
type MemoryResponse struct {
	Found  bool   `json:"found"`
	Memory string `json:"memory"`
}

// ChatHandler handles chat and summary requests.
type ChatHandler struct {
	chat          ChatPipeline
	sessions      ChatSessions
	defaultAPIKey string
	logger        *zap.Logger
}

// NewChatHandler creates a new chat handler. defaultAPIKey is used when the
// caller sends no bearer key.
func NewChatHandler(chat ChatPipeline, sessions ChatSessions, defaultAPIKey string, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chat:          chat,
		sessions:      sessions,
		defaultAPIKey: defaultAPIKey,
		logger:        logger,
	}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", h.Chat)
	mux.HandleFunc("POST /chat/summary", h.Summary)
	mux.HandleFunc("POST /summary", h.Summary)
	mux.HandleFunc("GET /chat/memory", h.Memory)
	mux.HandleFunc("POST /new_chat", h.NewChat)
}

// Chat handles POST /chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	apiKey, err := auth.ResolveAPIKey(r, h.defaultAPIKey)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	var req models.ChatRequest
	if !DecodeJSON(w, r, &req, h.logger) {
		return
	}
	if req.UserIdentity, err = auth.UserIdentity(r.Context(), req.UserIdentity); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	req.ChatID = h.sessions.ResolveChatID(r.Context(), req.UserIdentity, req.ChatID)

	reply, err := h.chat.Chat(r.Context(), &req, apiKey)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	if err := WriteSuccess(w, http.StatusOK, reply); err != nil {
		h.logger.Error("Failed to encode chat response", zap.Error(err))
	}
}

// Summary handles POST /chat/summary and POST /summary.
func (h *ChatHandler) Summary(w http.ResponseWriter, r *http.Request) {
	apiKey, err := auth.ResolveAPIKey(r, h.defaultAPIKey)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	var req SummaryRequest
	if !DecodeJSON(w, r, &req, h.logger) {
		return
	}
	user, err := auth.UserIdentity(r.Context(), req.UserIdentity)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	summary, err := h.chat.Summarize(r.Context(), req.ChatID, req.Messages, user, apiKey)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	topics := summary.Topics
	if topics == nil {
		topics = []string{}
	}
	resp := SummaryResponse{Title: summary.Title, Summary: summary.SummaryText, Topics: topics}
	if err := WriteSuccess(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode summary response", zap.Error(err))
	}
}

// Memory handles GET /chat/memory?chat_id=&user_identity=.
// Same credential rule as /chat; a signed-in caller only sees their own memory.
func (h *ChatHandler) Memory(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.ResolveAPIKey(r, h.defaultAPIKey); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	q := r.URL.Query()
	user, err := auth.UserIdentity(r.Context(), q.Get("user_identity"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	text, ok := h.chat.Memory(r.Context(), q.Get("chat_id"), user)
	if err := WriteSuccess(w, http.StatusOK, MemoryResponse{Found: ok, Memory: text}); err != nil {
		h.logger.Error("Failed to encode memory response", zap.Error(err))
	}
}

// NewChat handles POST /new_chat?user_identity=. It issues a chat id that
// later /chat calls from the same user continue when they omit chat_id.
func (h *ChatHandler) NewChat(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserIdentity(r.Context(), r.URL.Query().Get("user_identity"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	session, err := h.sessions.NewChat(r.Context(), user)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if err := WriteSuccess(w, http.StatusOK, session); err != nil {
		h.logger.Error("Failed to encode new chat response", zap.Error(err))
	}
}
