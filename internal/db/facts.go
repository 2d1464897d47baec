package db

import (
	"database/sql"

	"github.com/forkchat/forkchat/internal/models"
)

// UpsertUserFacts merges newly extracted facts into the conversation's
// record. Empty fields never overwrite previously known values.
func (db *Database) UpsertUserFacts(facts models.UserFacts) error {
	_, err := db.db.Exec(`
        INSERT INTO user_facts (conversation_id, name, age, location, email, updated_at)
        VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(conversation_id) DO UPDATE SET
            name = CASE WHEN excluded.name != '' THEN excluded.name ELSE name END,
            age = CASE WHEN excluded.age != '' THEN excluded.age ELSE age END,
            location = CASE WHEN excluded.location != '' THEN excluded.location ELSE location END,
            email = CASE WHEN excluded.email != '' THEN excluded.email ELSE email END,
            updated_at = CURRENT_TIMESTAMP`,
		facts.ConvID, facts.Name, facts.Age, facts.Location, facts.Email)
	return err
}

// GetUserFacts returns the best-known facts for a conversation, or nil when
// nothing has been extracted yet.
func (db *Database) GetUserFacts(conversationID int64) (*models.UserFacts, error) {
	var facts models.UserFacts
	err := db.db.QueryRow(`
        SELECT conversation_id, name, age, location, email, updated_at
        FROM user_facts
        WHERE conversation_id = ?`, conversationID).Scan(
		&facts.ConvID, &facts.Name, &facts.Age, &facts.Location, &facts.Email, &facts.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &facts, nil
}
