package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/forkchat/forkchat/internal/chat"
	"github.com/forkchat/forkchat/internal/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type wordCounter struct{}

func (wordCounter) Count(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

type echoLLM struct{}

func (echoLLM) Generate(_ context.Context, _ string, onChunk func(string)) (string, error) {
	if onChunk != nil {
		onChunk("echo ")
		onChunk("reply")
	}
	return "echo reply", nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	database, err := db.New(":memory:", wordCounter{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	svc := chat.New(database, echoLLM{}, wordCounter{}, zap.NewNop(), 1000, 8)
	return NewHandler(svc, zap.NewNop())
}

func TestHandleChatStreamsAndReportsIDs(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"content":"hello"}`))
	rec := httptest.NewRecorder()
	handler.HandleChat(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	require.GreaterOrEqual(t, len(events), 3)
	require.Equal(t, "echo ", events[0]["content"])
	require.Equal(t, "reply", events[1]["content"])

	final := events[len(events)-1]
	require.Equal(t, true, final["done"])
	require.NotZero(t, final["conversationId"])
	require.NotEmpty(t, final["versionId"])
}

func TestHandleChatRejectsEmptyContent(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.HandleChat(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEditForksAndStreams(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"content":"hello"}`))
	rec := httptest.NewRecorder()
	handler.HandleChat(rec, req)
	events := parseSSE(t, rec.Body.String())
	first := events[len(events)-1]
	userMessageID := int64(first["userMessageId"].(float64))

	req = httptest.NewRequest(http.MethodPost,
		"/api/messages/edit?message_id="+jsonNumber(userMessageID),
		strings.NewReader(`{"content":"hey"}`))
	rec = httptest.NewRecorder()
	handler.HandleEdit(rec, req)

	events = parseSSE(t, rec.Body.String())
	final := events[len(events)-1]
	require.Equal(t, true, final["done"])
	require.NotEqual(t, first["versionId"], final["versionId"])

	// The fork is visible in the new version's annotated messages.
	req = httptest.NewRequest(http.MethodGet,
		"/api/versions/messages?version_id="+final["versionId"].(string), nil)
	rec = httptest.NewRecorder()
	handler.VersionMessages(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Messages []struct {
			Content           string `json:"content"`
			IsDivergencePoint bool   `json:"isDivergencePoint"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Messages, 2)
	require.Equal(t, "hey", payload.Messages[0].Content)
	require.True(t, payload.Messages[0].IsDivergencePoint)
}

func TestVersionMessagesNotFound(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/versions/messages?version_id=missing", nil)
	rec := httptest.NewRecorder()
	handler.VersionMessages(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteConversationNotFound(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/conversations/delete?conversation_id=404", nil)
	rec := httptest.NewRecorder()
	handler.DeleteConversation(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConversationsListAndCreate(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/conversations",
		strings.NewReader(`{"title":"notes"}`))
	rec := httptest.NewRecorder()
	handler.Conversations(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	rec = httptest.NewRecorder()
	handler.Conversations(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var conversations []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conversations))
	require.Len(t, conversations, 1)
	require.Equal(t, "notes", conversations[0]["title"])
}

func parseSSE(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		events = append(events, event)
	}
	return events
}

func jsonNumber(n int64) string {
	data, _ := json.Marshal(n)
	return string(data)
}
