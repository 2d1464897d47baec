package models

import "time"

type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID         int64     `json:"id"`
	ConvID     int64     `json:"conversation_id"`
	Role       string    `json:"role"` // user or assistant
	Content    string    `json:"content"`
	Position   int       `json:"position"`
	TokenCount int       `json:"token_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// VersionGroup is one complete linear path through a conversation's edit
// history. Its message sequence lives in the message_versions join table,
// ordered by position.
type VersionGroup struct {
	ID        string    `json:"id"`
	ConvID    int64     `json:"conversation_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResolvedVersion is a version group with its message sequence loaded, the
// snapshot the divergence resolver works over.
type ResolvedVersion struct {
	VersionGroup
	Messages []Message `json:"messages"`
}

// UserFacts holds the best-known identity details for a conversation,
// upserted opportunistically by the fact extractor.
type UserFacts struct {
	ConvID    int64     `json:"conversation_id"`
	Name      string    `json:"name,omitempty"`
	Age       string    `json:"age,omitempty"`
	Location  string    `json:"location,omitempty"`
	Email     string    `json:"email,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
