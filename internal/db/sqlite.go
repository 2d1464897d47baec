package db

import (
	"database/sql"
	"fmt"

	"github.com/forkchat/forkchat/internal/models"
	"github.com/forkchat/forkchat/internal/tokenizer"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id INTEGER NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content TEXT NOT NULL,
    position INTEGER NOT NULL,
    token_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_conv_position
    ON messages(conversation_id, position);

CREATE TABLE IF NOT EXISTS versions (
    id TEXT PRIMARY KEY,
    conversation_id INTEGER NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS message_versions (
    version_id TEXT NOT NULL,
    message_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (version_id, position),
    FOREIGN KEY (version_id) REFERENCES versions(id) ON DELETE CASCADE,
    FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS user_facts (
    conversation_id INTEGER PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    age TEXT NOT NULL DEFAULT '',
    location TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);`

type Database struct {
	db             *sql.DB
	counter        tokenizer.Counter
	allowUncounted bool
}

type Option func(*Database)

// WithUncountedFallback opts in to recording a zero token count when the
// tokenizer fails, instead of failing the write.
func WithUncountedFallback() Option {
	return func(d *Database) { d.allowUncounted = true }
}

func New(dbPath string, counter tokenizer.Counter, opts ...Option) (*Database, error) {
	// Immediate transactions take the write lock up front so the
	// read-max-then-insert sections serialize instead of failing on upgrade.
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, err
	}
	// One connection serializes writers (and keeps :memory: databases from
	// evaporating between pooled connections).
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	d := &Database{db: db, counter: counter}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}

func (db *Database) CreateConversation(title string) (*models.Conversation, error) {
	query := `
        INSERT INTO conversations (title, updated_at)
        VALUES (?, CURRENT_TIMESTAMP)
        RETURNING id, updated_at`

	conv := &models.Conversation{Title: title}
	err := db.db.QueryRow(query, title).Scan(&conv.ID, &conv.UpdatedAt)
	return conv, err
}

func (db *Database) GetConversation(id int64) (*models.Conversation, error) {
	var conv models.Conversation
	err := db.db.QueryRow(
		"SELECT id, title, updated_at FROM conversations WHERE id = ?", id,
	).Scan(&conv.ID, &conv.Title, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (db *Database) GetConversations() ([]models.Conversation, error) {
	query := `
        SELECT id, title, updated_at
        FROM conversations
        ORDER BY updated_at DESC`

	rows, err := db.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (db *Database) UpdateConversationTitle(id int64, title string) error {
	res, err := db.db.Exec("UPDATE conversations SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("conversation %d: %w", id, models.ErrNotFound)
	}
	return nil
}

func (db *Database) TouchConversation(id int64) error {
	_, err := db.db.Exec("UPDATE conversations SET updated_at = CURRENT_TIMESTAMP WHERE id = ?", id)
	return err
}

// DeleteConversation removes a conversation and everything hanging off it in
// one transaction, so a reader never observes a half-deleted conversation.
func (db *Database) DeleteConversation(id int64) error {
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
        DELETE FROM message_versions
        WHERE version_id IN (SELECT id FROM versions WHERE conversation_id = ?)`, id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM versions WHERE conversation_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM user_facts WHERE conversation_id = ?", id); err != nil {
		return err
	}
	res, err := tx.Exec("DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("conversation %d: %w", id, models.ErrNotFound)
	}

	return tx.Commit()
}
