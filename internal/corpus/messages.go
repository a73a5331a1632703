package corpus

import (
	"database/sql"
	"fmt"
)

// InsertMessage appends a message turn. The dedup hash is derived from
// role, timestamp, and normalized text; INSERT OR IGNORE on the
// (conversation, timestamp, role, hash) uniqueness constraint makes
// re-inserting an identical message a guaranteed no-op.
//
// The returned bool reports whether a new row was actually inserted; on a
// dedup hit the existing row's id is returned with false.
func (s *Store) InsertMessage(conversationID int64, role string, tsMs int64, text string) (int64, bool, error) {
	if !ValidRole(role) {
		return 0, false, fmt.Errorf("corpus: insert message: invalid role %q", role)
	}

	hash := MessageDedupHash(role, tsMs, text)
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO messages (conversation_id, role, created_at, text, dedup_hash)
		 VALUES (?, ?, ?, ?, ?)`,
		conversationID, role, tsMs, text, hash,
	)
	if err != nil {
		return 0, false, fmt.Errorf("corpus: insert message: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		id, err := res.LastInsertId()
		return id, true, err
	}

	var id int64
	err = s.db.QueryRow(
		`SELECT id FROM messages
		 WHERE conversation_id = ? AND created_at = ? AND role = ? AND dedup_hash = ?`,
		conversationID, tsMs, role, hash,
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("corpus: resolve existing message: %w", err)
	}
	return id, false, nil
}

// GetMessage retrieves a single message by id.
func (s *Store) GetMessage(id int64) (Message, error) {
	var m Message
	err := s.db.QueryRow(
		`SELECT id, conversation_id, role, created_at, text, dedup_hash
		 FROM messages WHERE id = ?`, id,
	).Scan(&m.ID, &m.ConversationID, &m.Role, &m.CreatedAt, &m.Text, &m.DedupHash)
	if err == sql.ErrNoRows {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("corpus: get message: %w", err)
	}
	return m, nil
}

// ConversationMessages returns a conversation's messages in ascending
// timestamp order regardless of insertion order. Ordering is enforced
// here, on read, not by the writer.
func (s *Store) ConversationMessages(conversationID int64) ([]Message, error) {
	rows, err := s.db.Query(
		`SELECT id, conversation_id, role, created_at, text, dedup_hash
		 FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("corpus: conversation messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.CreatedAt, &m.Text, &m.DedupHash); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AllMessages returns every message in the store, ordered by conversation
// then timestamp. Used to build the in-memory search document set.
func (s *Store) AllMessages() ([]Message, error) {
	rows, err := s.db.Query(
		`SELECT id, conversation_id, role, created_at, text, dedup_hash
		 FROM messages
		 ORDER BY conversation_id, created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("corpus: all messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.CreatedAt, &m.Text, &m.DedupHash); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MessagesWithoutEmbedding returns messages lacking an embedding for the
// given model. The consolidation service uses this for lazy generation.
func (s *Store) MessagesWithoutEmbedding(model string) ([]Message, error) {
	rows, err := s.db.Query(
		`SELECT m.id, m.conversation_id, m.role, m.created_at, m.text, m.dedup_hash
		 FROM messages m
		 LEFT JOIN message_embeddings e ON e.message_id = m.id AND e.model = ?
		 WHERE e.message_id IS NULL
		 ORDER BY m.conversation_id, m.created_at ASC, m.id ASC`,
		model,
	)
	if err != nil {
		return nil, fmt.Errorf("corpus: messages without embedding: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.CreatedAt, &m.Text, &m.DedupHash); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
