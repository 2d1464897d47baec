package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/forkchat/forkchat/internal/models"
	"github.com/google/uuid"
)

// CreateVersionGroup persists a new version group whose sequence is exactly
// messageIDs, in position order. Each message's stored position must match
// its index in the sequence; anything else is a corrupted path.
func (db *Database) CreateVersionGroup(conversationID int64, messageIDs []int64) (*models.VersionGroup, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := validateSequence(tx, conversationID, messageIDs, 0); err != nil {
		return nil, err
	}

	now := time.Now()
	group := &models.VersionGroup{
		ID:        uuid.NewString(),
		ConvID:    conversationID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := tx.Exec(`
        INSERT INTO versions (id, conversation_id, created_at, updated_at)
        VALUES (?, ?, ?, ?)`,
		group.ID, conversationID, now, now); err != nil {
		return nil, err
	}

	if err := insertMemberships(tx, group.ID, messageIDs, 0); err != nil {
		return nil, err
	}
	return group, tx.Commit()
}

// ExtendVersionGroup appends message ids to an existing group's sequence.
// Prior membership rows are never removed; a group only grows through this
// path. Extending bumps updated_at so the group becomes the latest one,
// while created_at stays immutable for variant ordering.
func (db *Database) ExtendVersionGroup(versionID string, messageIDs []int64) error {
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var conversationID int64
	err = tx.QueryRow("SELECT conversation_id FROM versions WHERE id = ?", versionID).Scan(&conversationID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("version %s: %w", versionID, models.ErrNotFound)
	}
	if err != nil {
		return err
	}

	var next int
	err = tx.QueryRow(`
        SELECT COALESCE(MAX(position) + 1, 0)
        FROM message_versions
        WHERE version_id = ?`, versionID).Scan(&next)
	if err != nil {
		return err
	}

	if err := validateSequence(tx, conversationID, messageIDs, next); err != nil {
		return err
	}
	if err := insertMemberships(tx, versionID, messageIDs, next); err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE versions SET updated_at = ? WHERE id = ?", time.Now(), versionID); err != nil {
		return err
	}
	return tx.Commit()
}

// LatestVersionGroup returns the most recently updated version group of the
// conversation, or nil when no completed turn exists yet.
func (db *Database) LatestVersionGroup(conversationID int64) (*models.VersionGroup, error) {
	var group models.VersionGroup
	err := db.db.QueryRow(`
        SELECT id, conversation_id, created_at, updated_at
        FROM versions
        WHERE conversation_id = ?
        ORDER BY updated_at DESC, rowid DESC
        LIMIT 1`, conversationID).Scan(
		&group.ID, &group.ConvID, &group.CreatedAt, &group.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (db *Database) GetVersionGroup(versionID string) (*models.VersionGroup, error) {
	var group models.VersionGroup
	err := db.db.QueryRow(`
        SELECT id, conversation_id, created_at, updated_at
        FROM versions
        WHERE id = ?`, versionID).Scan(
		&group.ID, &group.ConvID, &group.CreatedAt, &group.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("version %s: %w", versionID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// MessagesInVersion resolves a group's sequence to full message rows,
// ordered by position.
func (db *Database) MessagesInVersion(versionID string) ([]models.Message, error) {
	if _, err := db.GetVersionGroup(versionID); err != nil {
		return nil, err
	}

	rows, err := db.db.Query(`
        SELECT m.id, m.conversation_id, m.role, m.content, m.position, m.token_count, m.created_at
        FROM messages m
        JOIN message_versions mv ON mv.message_id = m.id
        WHERE mv.version_id = ?
        ORDER BY mv.position ASC`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// VersionGroupsWithMessages loads every version group of a conversation with
// its message sequence resolved, in creation order. This is the snapshot the
// divergence resolver computes over, loaded in two queries instead of a join
// per call.
func (db *Database) VersionGroupsWithMessages(conversationID int64) ([]models.ResolvedVersion, error) {
	rows, err := db.db.Query(`
        SELECT id, conversation_id, created_at, updated_at
        FROM versions
        WHERE conversation_id = ?
        ORDER BY created_at ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.ResolvedVersion
	index := make(map[string]int)
	for rows.Next() {
		var group models.VersionGroup
		if err := rows.Scan(&group.ID, &group.ConvID, &group.CreatedAt, &group.UpdatedAt); err != nil {
			return nil, err
		}
		index[group.ID] = len(groups)
		groups = append(groups, models.ResolvedVersion{VersionGroup: group})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	msgRows, err := db.db.Query(`
        SELECT mv.version_id, m.id, m.conversation_id, m.role, m.content, m.position, m.token_count, m.created_at
        FROM message_versions mv
        JOIN messages m ON m.id = mv.message_id
        JOIN versions v ON v.id = mv.version_id
        WHERE v.conversation_id = ?
        ORDER BY mv.version_id, mv.position ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var versionID string
		var msg models.Message
		if err := msgRows.Scan(&versionID, &msg.ID, &msg.ConvID, &msg.Role, &msg.Content,
			&msg.Position, &msg.TokenCount, &msg.CreatedAt); err != nil {
			return nil, err
		}
		i, ok := index[versionID]
		if !ok {
			continue
		}
		groups[i].Messages = append(groups[i].Messages, msg)
	}
	return groups, msgRows.Err()
}

// validateSequence checks that messageIDs exist, belong to the conversation,
// and occupy contiguous positions starting at offset.
func validateSequence(tx *sql.Tx, conversationID int64, messageIDs []int64, offset int) error {
	for i, id := range messageIDs {
		var convID int64
		var position int
		err := tx.QueryRow("SELECT conversation_id, position FROM messages WHERE id = ?", id).
			Scan(&convID, &position)
		if err == sql.ErrNoRows {
			return fmt.Errorf("message %d: %w", id, models.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if convID != conversationID {
			return fmt.Errorf("message %d belongs to conversation %d, not %d: %w",
				id, convID, conversationID, models.ErrInvariant)
		}
		if position != offset+i {
			return fmt.Errorf("message %d at position %d, expected %d: %w",
				id, position, offset+i, models.ErrInvariant)
		}
	}
	return nil
}

func insertMemberships(tx *sql.Tx, versionID string, messageIDs []int64, offset int) error {
	for i, id := range messageIDs {
		if _, err := tx.Exec(`
            INSERT INTO message_versions (version_id, message_id, position)
            VALUES (?, ?, ?)`, versionID, id, offset+i); err != nil {
			return err
		}
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ConvID, &msg.Role, &msg.Content,
			&msg.Position, &msg.TokenCount, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
