package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/forkchat/forkchat/internal/models"
)

// countTokens runs the tokenizer collaborator, falling back to zero only if
// the store was built with WithUncountedFallback. Silently mis-budgeting
// context is worse than failing loudly.
func (db *Database) countTokens(content string) (int, error) {
	n, err := db.counter.Count(content)
	if err != nil {
		if db.allowUncounted {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}
	return n, nil
}

// AppendMessage inserts a message at the next free position of the
// conversation. The max-position read and the insert run in one transaction
// so concurrent appends to the same conversation cannot race on position.
func (db *Database) AppendMessage(conversationID int64, role, content string) (*models.Message, error) {
	tokens, err := db.countTokens(content)
	if err != nil {
		return nil, err
	}

	tx, err := db.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var position int
	err = tx.QueryRow(`
        SELECT COALESCE(MAX(position) + 1, 0)
        FROM messages
        WHERE conversation_id = ?`, conversationID).Scan(&position)
	if err != nil {
		return nil, err
	}

	msg, err := insertMessage(tx, conversationID, role, content, position, tokens)
	if err != nil {
		return nil, err
	}
	return msg, tx.Commit()
}

// InsertMessageAt inserts a message at an explicit position. Used by the
// edit flow, where the assistant reply lands at the edited position + 1
// regardless of how far older branches extend.
func (db *Database) InsertMessageAt(conversationID int64, role, content string, position int) (*models.Message, error) {
	tokens, err := db.countTokens(content)
	if err != nil {
		return nil, err
	}

	tx, err := db.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	msg, err := insertMessage(tx, conversationID, role, content, position, tokens)
	if err != nil {
		return nil, err
	}
	return msg, tx.Commit()
}

// EditMessage records an edited variant of an existing message: a brand-new
// row at the same position with the same role. The original row is never
// touched.
func (db *Database) EditMessage(messageID int64, newContent string) (*models.Message, error) {
	tokens, err := db.countTokens(newContent)
	if err != nil {
		return nil, err
	}

	tx, err := db.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var conversationID int64
	var position int
	var role string
	err = tx.QueryRow(`
        SELECT conversation_id, position, role
        FROM messages
        WHERE id = ?`, messageID).Scan(&conversationID, &position, &role)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("message %d: %w", messageID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	msg, err := insertMessage(tx, conversationID, role, newContent, position, tokens)
	if err != nil {
		return nil, err
	}
	return msg, tx.Commit()
}

func (db *Database) GetMessage(messageID int64) (*models.Message, error) {
	var msg models.Message
	err := db.db.QueryRow(`
        SELECT id, conversation_id, role, content, position, token_count, created_at
        FROM messages
        WHERE id = ?`, messageID).Scan(
		&msg.ID, &msg.ConvID, &msg.Role, &msg.Content, &msg.Position, &msg.TokenCount, &msg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("message %d: %w", messageID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func insertMessage(tx *sql.Tx, conversationID int64, role, content string, position, tokens int) (*models.Message, error) {
	msg := &models.Message{
		ConvID:     conversationID,
		Role:       role,
		Content:    content,
		Position:   position,
		TokenCount: tokens,
		CreatedAt:  time.Now(),
	}
	err := tx.QueryRow(`
        INSERT INTO messages (conversation_id, role, content, position, token_count, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
        RETURNING id`,
		conversationID, role, content, position, tokens, msg.CreatedAt).Scan(&msg.ID)
	if err != nil {
		return nil, err
	}
	return msg, nil
}
