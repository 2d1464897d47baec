// Package chat orchestrates the versioning core, the fact extractor and the
// inference collaborator for each inbound request. It holds no state of its
// own: everything needed to resume a conversation is reconstructed from
// storage.
package chat

import (
	"context"
	"fmt"

	"github.com/forkchat/forkchat/internal/db"
	"github.com/forkchat/forkchat/internal/llm"
	"github.com/forkchat/forkchat/internal/models"
	"github.com/forkchat/forkchat/internal/nlp"
	"github.com/forkchat/forkchat/internal/tokenizer"
	"github.com/forkchat/forkchat/internal/versioning"
	"go.uber.org/zap"
)

const titleLimit = 40

// Generator is the inference collaborator. The core's job ends at producing
// the bounded prompt and begins again at persisting the returned text.
type Generator interface {
	Generate(ctx context.Context, prompt string, onChunk func(string)) (string, error)
}

type Service struct {
	db              *db.Database
	llm             Generator
	counter         tokenizer.Counter
	logger          *zap.Logger
	contextBudget   int
	messageOverhead int
}

func New(database *db.Database, generator Generator, counter tokenizer.Counter, logger *zap.Logger, contextBudget, messageOverhead int) *Service {
	return &Service{
		db:              database,
		llm:             generator,
		counter:         counter,
		logger:          logger,
		contextBudget:   contextBudget,
		messageOverhead: messageOverhead,
	}
}

type SendRequest struct {
	ConversationID int64  `json:"conversationId"`
	VersionID      string `json:"versionId"`
	Content        string `json:"content"`
}

type SendResult struct {
	ConversationID     int64  `json:"conversationId"`
	UserMessageID      int64  `json:"userMessageId"`
	AssistantMessageID int64  `json:"assistantMessageId"`
	VersionID          string `json:"versionId"`
}

// Send appends a user turn and its streamed assistant reply to a branch.
// With no conversation id, a conversation is created and titled from the
// message. The target branch is the given version group, defaulting to the
// latest one; the first completed turn creates the conversation's first
// group.
func (s *Service) Send(ctx context.Context, req SendRequest, onChunk func(string)) (*SendResult, error) {
	conv, err := s.ensureConversation(req.ConversationID, req.Content)
	if err != nil {
		return nil, err
	}

	s.rememberFacts(conv.ID, req.Content)

	group, err := s.targetGroup(conv.ID, req.VersionID)
	if err != nil {
		return nil, err
	}

	var history []models.Message
	if group != nil {
		history, err = s.db.MessagesInVersion(group.ID)
		if err != nil {
			return nil, err
		}
	}

	// The branch length, not the conversation's max position, decides where
	// the user turn lands. A message orphaned by a failed generation never
	// joined a group, so a retry converges on the same position instead of
	// stacking past it.
	userMsg, err := s.db.InsertMessageAt(conv.ID, "user", req.Content, len(history))
	if err != nil {
		return nil, err
	}

	prompt, err := s.buildPrompt(conv.ID, history, req.Content)
	if err != nil {
		return nil, err
	}

	reply, err := s.llm.Generate(ctx, prompt, onChunk)
	if err != nil {
		return nil, err
	}

	assistantMsg, err := s.db.InsertMessageAt(conv.ID, "assistant", reply, userMsg.Position+1)
	if err != nil {
		return nil, err
	}

	versionID := ""
	if group == nil {
		created, err := s.db.CreateVersionGroup(conv.ID, []int64{userMsg.ID, assistantMsg.ID})
		if err != nil {
			return nil, err
		}
		versionID = created.ID
	} else {
		if err := s.db.ExtendVersionGroup(group.ID, []int64{userMsg.ID, assistantMsg.ID}); err != nil {
			return nil, err
		}
		versionID = group.ID
	}

	if err := s.db.TouchConversation(conv.ID); err != nil {
		return nil, err
	}

	return &SendResult{
		ConversationID:     conv.ID,
		UserMessageID:      userMsg.ID,
		AssistantMessageID: assistantMsg.ID,
		VersionID:          versionID,
	}, nil
}

type EditResult struct {
	ConversationID     int64  `json:"conversationId"`
	MessageID          int64  `json:"messageId"`
	AssistantMessageID int64  `json:"assistantMessageId"`
	VersionID          string `json:"versionId"`
}

// Edit replaces the message at its position with new content on a fresh
// branch. The new version group carries the edited-from group's prefix plus
// the new message; the assistant reply for the edit extends it by one. The
// old group is left untouched and remains retrievable.
func (s *Service) Edit(ctx context.Context, messageID int64, content string, onChunk func(string)) (*EditResult, error) {
	original, err := s.db.GetMessage(messageID)
	if err != nil {
		return nil, err
	}

	ref, refMessages, err := s.groupContaining(original)
	if err != nil {
		return nil, err
	}
	k := original.Position

	newMsg, err := s.db.EditMessage(messageID, content)
	if err != nil {
		return nil, err
	}

	sequence := make([]int64, 0, k+1)
	for _, msg := range refMessages[:k] {
		sequence = append(sequence, msg.ID)
	}
	sequence = append(sequence, newMsg.ID)

	group, err := s.db.CreateVersionGroup(original.ConvID, sequence)
	if err != nil {
		return nil, err
	}

	s.logger.Info("forked conversation",
		zap.Int64("conversation_id", original.ConvID),
		zap.Int("position", k),
		zap.String("from_version", ref.ID),
		zap.String("new_version", group.ID))

	prompt, err := s.buildPrompt(original.ConvID, refMessages[:k], content)
	if err != nil {
		return nil, err
	}

	reply, err := s.llm.Generate(ctx, prompt, onChunk)
	if err != nil {
		return nil, err
	}

	assistantMsg, err := s.db.InsertMessageAt(original.ConvID, "assistant", reply, k+1)
	if err != nil {
		return nil, err
	}
	if err := s.db.ExtendVersionGroup(group.ID, []int64{assistantMsg.ID}); err != nil {
		return nil, err
	}
	if err := s.db.TouchConversation(original.ConvID); err != nil {
		return nil, err
	}

	return &EditResult{
		ConversationID:     original.ConvID,
		MessageID:          newMsg.ID,
		AssistantMessageID: assistantMsg.ID,
		VersionID:          group.ID,
	}, nil
}

// VersionMessages returns a version group's messages annotated with the
// branch alternatives available at each position.
func (s *Service) VersionMessages(versionID string) ([]versioning.AnnotatedMessage, error) {
	group, err := s.db.GetVersionGroup(versionID)
	if err != nil {
		return nil, err
	}
	groups, err := s.db.VersionGroupsWithMessages(group.ConvID)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.ID == versionID {
			return versioning.Annotate(groups, g)
		}
	}
	return nil, fmt.Errorf("version %s: %w", versionID, models.ErrNotFound)
}

// DivergenceVariants reports the sibling alternatives at a position,
// relative to the conversation's latest version group.
func (s *Service) DivergenceVariants(conversationID int64, position int) ([]versioning.Variant, error) {
	latest, err := s.db.LatestVersionGroup(conversationID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fmt.Errorf("conversation %d has no version groups: %w", conversationID, models.ErrNotFound)
	}
	groups, err := s.db.VersionGroupsWithMessages(conversationID)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.ID == latest.ID {
			return versioning.VariantsAt(groups, g, position)
		}
	}
	return nil, fmt.Errorf("version %s: %w", latest.ID, models.ErrNotFound)
}

// MessageVersions reports the variants available at a message's position.
func (s *Service) MessageVersions(messageID int64) ([]versioning.Variant, error) {
	msg, err := s.db.GetMessage(messageID)
	if err != nil {
		return nil, err
	}
	return s.DivergenceVariants(msg.ConvID, msg.Position)
}

// SelectContext resolves a version group and applies the token budget
// window to its messages.
func (s *Service) SelectContext(versionID string, tokenBudget int) ([]models.Message, error) {
	messages, err := s.db.MessagesInVersion(versionID)
	if err != nil {
		return nil, err
	}
	return versioning.SelectContext(messages, tokenBudget, s.messageOverhead), nil
}

func (s *Service) LatestVersion(conversationID int64) (*models.VersionGroup, error) {
	return s.db.LatestVersionGroup(conversationID)
}

func (s *Service) Conversations() ([]models.Conversation, error) {
	return s.db.GetConversations()
}

func (s *Service) CreateConversation(title string) (*models.Conversation, error) {
	return s.db.CreateConversation(title)
}

func (s *Service) RenameConversation(id int64, title string) error {
	return s.db.UpdateConversationTitle(id, title)
}

func (s *Service) DeleteConversation(id int64) error {
	return s.db.DeleteConversation(id)
}

func (s *Service) ensureConversation(id int64, firstMessage string) (*models.Conversation, error) {
	if id == 0 {
		return s.db.CreateConversation(truncateTitle(firstMessage))
	}
	conv, err := s.db.GetConversation(id)
	if err != nil {
		return nil, err
	}
	if conv.Title == "" {
		conv.Title = truncateTitle(firstMessage)
		if err := s.db.UpdateConversationTitle(conv.ID, conv.Title); err != nil {
			return nil, err
		}
	}
	return conv, nil
}

// rememberFacts is opportunistic: extraction failures only cost us context
// quality, never the request.
func (s *Service) rememberFacts(conversationID int64, content string) {
	facts := nlp.ExtractFacts(content)
	if facts.Name == "" && facts.Age == "" && facts.Location == "" && facts.Email == "" {
		return
	}
	facts.ConvID = conversationID
	if err := s.db.UpsertUserFacts(facts); err != nil {
		s.logger.Warn("failed to store user facts",
			zap.Int64("conversation_id", conversationID),
			zap.Error(err))
	}
}

func (s *Service) targetGroup(conversationID int64, versionID string) (*models.VersionGroup, error) {
	if versionID == "" {
		return s.db.LatestVersionGroup(conversationID)
	}
	return s.db.GetVersionGroup(versionID)
}

// groupContaining finds the version group the message is edited from:
// the latest group holding its id, falling back over older groups.
func (s *Service) groupContaining(msg *models.Message) (*models.ResolvedVersion, []models.Message, error) {
	groups, err := s.db.VersionGroupsWithMessages(msg.ConvID)
	if err != nil {
		return nil, nil, err
	}
	var found *models.ResolvedVersion
	for i := range groups {
		for _, m := range groups[i].Messages {
			if m.ID == msg.ID {
				if found == nil || groups[i].UpdatedAt.After(found.UpdatedAt) {
					found = &groups[i]
				}
				break
			}
		}
	}
	if found == nil {
		return nil, nil, fmt.Errorf("message %d not in any version group: %w", msg.ID, models.ErrNotFound)
	}
	return found, found.Messages, nil
}

func (s *Service) buildPrompt(conversationID int64, history []models.Message, userMessage string) (string, error) {
	facts, err := s.db.GetUserFacts(conversationID)
	if err != nil {
		return "", err
	}
	fragment := nlp.ContextFragment(facts)

	budget := s.contextBudget
	if fragment != "" {
		used, err := s.counter.Count(fragment)
		if err != nil {
			return "", fmt.Errorf("failed to count context tokens: %w", err)
		}
		budget -= used
	}
	if budget < 0 {
		budget = 0
	}

	selected := versioning.SelectContext(history, budget, s.messageOverhead)
	return llm.BuildPrompt(fragment, selected, userMessage), nil
}

func truncateTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= titleLimit {
		return message
	}
	return string(runes[:titleLimit]) + "..."
}
