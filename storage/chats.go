package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrUnavailable reports that the underlying database could not be opened.
// Persistence is lost but the session may continue memory-only.
var ErrUnavailable = errors.New("chat store unavailable")

// Message represents a chat message
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is one stored conversation, keyed by its derived id.
// Once a conversation exists its message list is never empty; the last
// element is the most recently appended message, streaming or complete.
type Conversation struct {
	ID        string
	Title     string
	Model     string
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatStore handles conversation persistence in a local SQLite database.
// Messages are held as a JSON-encoded column; every read-modify-write runs
// inside a single transaction that is released on all exit paths.
type ChatStore struct {
	db *sql.DB
}

// Open opens (and on first use provisions) the conversation database under
// dataDir. Opening an already-provisioned database is a no-op beyond the
// connection itself.
func Open(dataDir string) (*ChatStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: failed to create data directory: %v", ErrUnavailable, err)
	}

	dbPath := filepath.Join(dataDir, "chats.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	store := &ChatStore{db: db}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return store, nil
}

func (cs *ChatStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		model TEXT NOT NULL,
		messages TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at);
	`

	_, err := cs.db.Exec(schema)
	return err
}

// Get loads one conversation. Returns (nil, nil) when no entry exists.
func (cs *ChatStore) Get(id string) (*Conversation, error) {
	query := `
	SELECT id, title, model, messages, created_at, updated_at
	FROM conversations
	WHERE id = ?
	`

	var conv Conversation
	var rawMessages string
	err := cs.db.QueryRow(query, id).Scan(
		&conv.ID,
		&conv.Title,
		&conv.Model,
		&rawMessages,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read conversation: %w", err)
	}

	if err := json.Unmarshal([]byte(rawMessages), &conv.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	return &conv, nil
}

// Upsert appends message to the conversation stored under id, creating the
// entry with a singleton message list if none exists yet. Title and model
// are written back on every call so a retitled or remodeled conversation
// converges on its latest values.
func (cs *ChatStore) Upsert(id string, message Message, title, model string) error {
	tx, err := cs.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var rawMessages string
	err = tx.QueryRow(`SELECT messages FROM conversations WHERE id = ?`, id).Scan(&rawMessages)

	now := time.Now()

	switch {
	case err == sql.ErrNoRows:
		data, err := json.Marshal([]Message{message})
		if err != nil {
			return fmt.Errorf("failed to encode messages: %w", err)
		}

		insert := `
		INSERT INTO conversations (id, title, model, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		`
		if _, err := tx.Exec(insert, id, title, model, string(data), now, now); err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}

	case err != nil:
		return fmt.Errorf("failed to read conversation: %w", err)

	default:
		var messages []Message
		if err := json.Unmarshal([]byte(rawMessages), &messages); err != nil {
			return fmt.Errorf("failed to decode messages: %w", err)
		}

		messages = append(messages, message)

		data, err := json.Marshal(messages)
		if err != nil {
			return fmt.Errorf("failed to encode messages: %w", err)
		}

		update := `
		UPDATE conversations SET title = ?, model = ?, messages = ?, updated_at = ?
		WHERE id = ?
		`
		if _, err := tx.Exec(update, title, model, string(data), now, id); err != nil {
			return fmt.Errorf("failed to update conversation: %w", err)
		}
	}

	return tx.Commit()
}

// UpdateLastMessageContent replaces the content of the trailing message.
// A missing conversation (or one with no messages) is a silent no-op:
// there is nothing to update yet.
func (cs *ChatStore) UpdateLastMessageContent(id string, newContent string) error {
	tx, err := cs.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var rawMessages string
	err = tx.QueryRow(`SELECT messages FROM conversations WHERE id = ?`, id).Scan(&rawMessages)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read conversation: %w", err)
	}

	var messages []Message
	if err := json.Unmarshal([]byte(rawMessages), &messages); err != nil {
		return fmt.Errorf("failed to decode messages: %w", err)
	}

	if len(messages) == 0 {
		return nil
	}

	messages[len(messages)-1].Content = newContent

	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}

	update := `UPDATE conversations SET messages = ?, updated_at = ? WHERE id = ?`
	if _, err := tx.Exec(update, string(data), time.Now(), id); err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}

	return tx.Commit()
}

// Rename moves a conversation to the id derived from its new title. Ids are
// title digests, so retitling is a re-key, not a column update. Renaming
// onto an existing conversation replaces it (last writer wins).
func (cs *ChatStore) Rename(id, newTitle string) error {
	newID := DeriveConversationID(newTitle)

	tx, err := cs.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var rawMessages, model string
	var createdAt time.Time
	query := `SELECT messages, model, created_at FROM conversations WHERE id = ?`
	err = tx.QueryRow(query, id).Scan(&rawMessages, &model, &createdAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("conversation %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to read conversation: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete old entry: %w", err)
	}

	insert := `
	INSERT OR REPLACE INTO conversations (id, title, model, messages, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.Exec(insert, newID, newTitle, model, rawMessages, createdAt, time.Now()); err != nil {
		return fmt.Errorf("failed to insert renamed entry: %w", err)
	}

	return tx.Commit()
}

// Delete removes one conversation.
func (cs *ChatStore) Delete(id string) error {
	if _, err := cs.db.Exec(`DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// Clear removes all conversations.
func (cs *ChatStore) Clear() error {
	if _, err := cs.db.Exec(`DELETE FROM conversations`); err != nil {
		return fmt.Errorf("failed to clear conversations: %w", err)
	}
	return nil
}

// GetAll returns a snapshot of the whole table keyed by conversation id.
func (cs *ChatStore) GetAll() (map[string]Conversation, error) {
	query := `
	SELECT id, title, model, messages, created_at, updated_at
	FROM conversations
	`

	rows, err := cs.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make(map[string]Conversation)
	for rows.Next() {
		var conv Conversation
		var rawMessages string
		err := rows.Scan(
			&conv.ID,
			&conv.Title,
			&conv.Model,
			&rawMessages,
			&conv.CreatedAt,
			&conv.UpdatedAt,
		)
		if err != nil {
			continue
		}

		if err := json.Unmarshal([]byte(rawMessages), &conv.Messages); err != nil {
			continue // Skip corrupted rows
		}

		conversations[conv.ID] = conv
	}

	return conversations, rows.Err()
}

func (cs *ChatStore) Close() error {
	if cs.db != nil {
		return cs.db.Close()
	}
	return nil
}
