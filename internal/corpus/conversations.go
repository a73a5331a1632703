package corpus

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"regexp"
)

// InsertConversation inserts a conversation, or returns the id of the
// existing row when one already matches.
//
// Resolution order:
//  1. With an external id: INSERT OR IGNORE on (source_id, external_id);
//     on ignore, the existing row's id is looked up and returned.
//  2. Without an external id: the most-recently-updated conversation with
//     the same content hash is reused; otherwise a new row is inserted.
//     Empty external ids are stored as NULL so they never collide on the
//     uniqueness constraint.
func (s *Store) InsertConversation(f ConversationFields) (int64, error) {
	if f.SourceID == "" {
		return 0, fmt.Errorf("corpus: insert conversation: source id is required")
	}
	if f.UpdatedAt == 0 {
		f.UpdatedAt = f.StartedAt
	}

	if f.ExternalID == "" {
		if f.ContentHash != "" {
			var id int64
			err := s.db.QueryRow(
				`SELECT id FROM conversations
				 WHERE content_hash = ?
				 ORDER BY updated_at DESC, id DESC
				 LIMIT 1`,
				f.ContentHash,
			).Scan(&id)
			if err == nil {
				return id, nil
			}
			if err != sql.ErrNoRows {
				return 0, fmt.Errorf("corpus: content hash lookup: %w", err)
			}
		}
		res, err := s.db.Exec(
			`INSERT INTO conversations (source_id, external_id, title, started_at, updated_at, raw_path, content_hash)
			 VALUES (?, NULL, ?, ?, ?, ?, ?)`,
			f.SourceID, f.Title, f.StartedAt, f.UpdatedAt,
			nullableString(f.RawPath), nullableString(f.ContentHash),
		)
		if err != nil {
			return 0, fmt.Errorf("corpus: insert conversation: %w", err)
		}
		return res.LastInsertId()
	}

	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO conversations (source_id, external_id, title, started_at, updated_at, raw_path, content_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.SourceID, f.ExternalID, f.Title, f.StartedAt, f.UpdatedAt,
		nullableString(f.RawPath), nullableString(f.ContentHash),
	)
	if err != nil {
		return 0, fmt.Errorf("corpus: insert conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return res.LastInsertId()
	}

	var id int64
	err = s.db.QueryRow(
		`SELECT id FROM conversations WHERE source_id = ? AND external_id = ?`,
		f.SourceID, f.ExternalID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("corpus: resolve existing conversation: %w", err)
	}
	return id, nil
}

// GetConversation retrieves a conversation by id.
func (s *Store) GetConversation(id int64) (Conversation, error) {
	var c Conversation
	var externalID, rawPath, contentHash *string
	err := s.db.QueryRow(
		`SELECT id, source_id, external_id, title, started_at, updated_at, raw_path, content_hash
		 FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.SourceID, &externalID, &c.Title, &c.StartedAt, &c.UpdatedAt, &rawPath, &contentHash)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("corpus: get conversation: %w", err)
	}
	c.ExternalID = derefString(externalID)
	c.RawPath = derefString(rawPath)
	c.ContentHash = derefString(contentHash)
	return c, nil
}

// SelectConversations returns conversations matching the filter, ordered
// by updated_at descending. The title regex is applied in Go after the
// source filter; an invalid pattern is an error.
func (s *Store) SelectConversations(f ConversationFilter) ([]Conversation, error) {
	var titleRe *regexp.Regexp
	if f.TitleRegex != "" {
		re, err := regexp.Compile("(?i)" + f.TitleRegex)
		if err != nil {
			return nil, fmt.Errorf("corpus: title regex: %w", err)
		}
		titleRe = re
	}

	query := `
		SELECT id, source_id, external_id, title, started_at, updated_at, raw_path, content_hash
		FROM conversations
	`
	var args []any
	if f.SourceID != "" {
		query += ` WHERE source_id = ?`
		args = append(args, f.SourceID)
	}
	query += ` ORDER BY updated_at DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("corpus: select conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var externalID, rawPath, contentHash *string
		if err := rows.Scan(&c.ID, &c.SourceID, &externalID, &c.Title, &c.StartedAt, &c.UpdatedAt, &rawPath, &contentHash); err != nil {
			return nil, err
		}
		c.ExternalID = derefString(externalID)
		c.RawPath = derefString(rawPath)
		c.ContentHash = derefString(contentHash)
		if titleRe != nil && !titleRe.MatchString(c.Title) {
			continue
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AllConversationIDs returns the ids of every conversation.
func (s *Store) AllConversationIDs() ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM conversations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("corpus: conversation ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TouchConversation advances updated_at if tsMs is newer than the stored
// value. Ingestion calls this when appending messages.
func (s *Store) TouchConversation(id int64, tsMs int64) error {
	_, err := s.db.Exec(
		`UPDATE conversations SET updated_at = ? WHERE id = ? AND updated_at < ?`,
		tsMs, id, tsMs,
	)
	if err != nil {
		return fmt.Errorf("corpus: touch conversation: %w", err)
	}
	return nil
}

// RefreshContentHash recomputes the conversation's content hash: sha-256
// over the concatenated role-tagged message text in timestamp order.
func (s *Store) RefreshContentHash(id int64) (string, error) {
	msgs, err := s.ConversationMessages(id)
	if err != nil {
		return "", err
	}
	hash := ContentHash(msgs)
	if _, err := s.db.Exec(
		`UPDATE conversations SET content_hash = ? WHERE id = ?`, hash, id,
	); err != nil {
		return "", fmt.Errorf("corpus: refresh content hash: %w", err)
	}
	return hash, nil
}

// ContentHash computes the conversation content hash over role-tagged
// message text.
func ContentHash(msgs []Message) string {
	h := sha256.New()
	for _, m := range msgs {
		fmt.Fprintf(h, "%s:%s\n", m.Role, m.Text)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DeleteConversation removes a conversation and, via cascade, its
// messages and derived rows. Ingestion never calls this — deletion is an
// explicit user action only.
func (s *Store) DeleteConversation(id int64) error {
	res, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("corpus: delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
