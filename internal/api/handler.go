package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/forkchat/forkchat/internal/chat"
	"github.com/forkchat/forkchat/internal/models"
	"go.uber.org/zap"
)

type Handler struct {
	svc    *chat.Service
	logger *zap.Logger
}

func NewHandler(svc *chat.Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type ChatRequest struct {
	Content        string `json:"content"`
	ConversationID int64  `json:"conversationId"`
	VersionID      string `json:"versionId"`
}

type EditRequest struct {
	Content string `json:"content"`
}

type CreateConversationRequest struct {
	Title string `json:"title"`
}

type UpdateConversationRequest struct {
	Title string `json:"title"`
}

// HandleChat streams the assistant reply over SSE: one data event per chunk,
// then a final event carrying the ids the client needs to stay on the branch.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "Message content is required", http.StatusBadRequest)
		return
	}

	stream, ok := newEventStream(w)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	result, err := h.svc.Send(r.Context(), chat.SendRequest{
		ConversationID: req.ConversationID,
		VersionID:      req.VersionID,
		Content:        req.Content,
	}, stream.chunk)
	if err != nil {
		h.logger.Error("Failed to process message", zap.Error(err))
		stream.fail(err)
		return
	}

	stream.done(map[string]any{
		"done":               true,
		"conversationId":     result.ConversationID,
		"userMessageId":      result.UserMessageID,
		"assistantMessageId": result.AssistantMessageID,
		"versionId":          result.VersionID,
	})
}

// HandleEdit re-generates the conversation from an edited message on a new
// branch, streaming the reply like HandleChat.
func (h *Handler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	messageID, err := strconv.ParseInt(r.URL.Query().Get("message_id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "Message content is required", http.StatusBadRequest)
		return
	}

	stream, ok := newEventStream(w)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	result, err := h.svc.Edit(r.Context(), messageID, req.Content, stream.chunk)
	if err != nil {
		h.logger.Error("Failed to edit message", zap.Int64("message_id", messageID), zap.Error(err))
		stream.fail(err)
		return
	}

	stream.done(map[string]any{
		"done":               true,
		"conversationId":     result.ConversationID,
		"messageId":          result.MessageID,
		"assistantMessageId": result.AssistantMessageID,
		"versionId":          result.VersionID,
	})
}

func (h *Handler) Conversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		conversations, err := h.svc.Conversations()
		if err != nil {
			h.logger.Error("Failed to get conversations", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, conversations)

	case http.MethodPost:
		var req CreateConversationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		conversation, err := h.svc.CreateConversation(req.Title)
		if err != nil {
			h.logger.Error("Failed to create conversation", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, conversation)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	convID, err := strconv.ParseInt(r.URL.Query().Get("conversation_id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	var req UpdateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "Title cannot be empty", http.StatusBadRequest)
		return
	}

	if err := h.svc.RenameConversation(convID, req.Title); err != nil {
		h.respondError(w, err, "Failed to update conversation")
		return
	}
	writeJSON(w, map[string]string{"title": req.Title})
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	convID, err := strconv.ParseInt(r.URL.Query().Get("conversation_id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	if err := h.svc.DeleteConversation(convID); err != nil {
		h.respondError(w, err, "Failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) LatestVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	convID, err := strconv.ParseInt(r.URL.Query().Get("conversation_id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	group, err := h.svc.LatestVersion(convID)
	if err != nil {
		h.respondError(w, err, "Failed to get latest version")
		return
	}
	if group == nil {
		writeJSON(w, map[string]string{"message": "No version group available"})
		return
	}
	writeJSON(w, map[string]any{
		"versionId": group.ID,
		"timestamp": group.UpdatedAt,
	})
}

func (h *Handler) VersionMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	versionID := r.URL.Query().Get("version_id")
	if versionID == "" {
		http.Error(w, "Version ID is required", http.StatusBadRequest)
		return
	}

	messages, err := h.svc.VersionMessages(versionID)
	if err != nil {
		h.respondError(w, err, "Failed to get version messages")
		return
	}
	writeJSON(w, map[string]any{"messages": messages})
}

func (h *Handler) MessageVersions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	messageID, err := strconv.ParseInt(r.URL.Query().Get("message_id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	variants, err := h.svc.MessageVersions(messageID)
	if err != nil {
		h.respondError(w, err, "Failed to get message versions")
		return
	}
	writeJSON(w, map[string]any{
		"messageId":     messageID,
		"totalVersions": len(variants),
		"versions":      variants,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	h.logger.Error(msg, zap.Error(err))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
