// Package history archives acknowledged messages in a local SQLite file so a
// restarted client renders prior conversation logs immediately.
package history

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/internlink/realtime/internal/convo"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	sender_id       TEXT NOT NULL,
	body            TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	read_at         TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
`

// Archive implements convo.Archiver on SQLite.
type Archive struct {
	db *sql.DB
}

// Open creates or opens the archive at dbPath.
func Open(dbPath string) (*Archive, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Archive{db: db}, nil
}

// Save upserts one acknowledged message.
func (a *Archive) Save(m convo.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, body, created_at, read_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET read_at = excluded.read_at
	`
	var readAt any
	if m.ReadAt != nil {
		readAt = *m.ReadAt
	}
	if _, err := a.db.Exec(query, m.ID, m.ConversationID, m.SenderID, m.Body, m.CreatedAt, readAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// LoadAll returns every archived message ordered by created-at with id as
// tie-break.
func (a *Archive) LoadAll() ([]convo.Message, error) {
	rows, err := a.db.Query(`
		SELECT id, conversation_id, sender_id, body, created_at, read_at
		FROM messages
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []convo.Message
	for rows.Next() {
		var m convo.Message
		var readAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt, &readAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if readAt.Valid {
			t := readAt.Time
			m.ReadAt = &t
		}
		m.Status = convo.StatusSent
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

var _ convo.Archiver = (*Archive)(nil)
