package corpus

import (
	"database/sql"
	"fmt"
)

// ─── Embeddings ──────────────────────────────────────────────────────────────

// PutEmbedding stores a message's vector for a model, replacing any
// previous one. Embeddings are keyed storage, not versioned history:
// regeneration overwrites.
func (s *Store) PutEmbedding(messageID int64, model string, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("corpus: put embedding: empty vector")
	}
	_, err := s.db.Exec(
		`INSERT INTO message_embeddings (message_id, model, dimension, vector)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(message_id, model) DO UPDATE SET
		   dimension  = excluded.dimension,
		   vector     = excluded.vector,
		   created_at = datetime('now')`,
		messageID, model, len(vector), encodeVector(vector),
	)
	if err != nil {
		return fmt.Errorf("corpus: put embedding: %w", err)
	}
	return nil
}

// GetEmbedding retrieves a message's vector for a model.
func (s *Store) GetEmbedding(messageID int64, model string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRow(
		`SELECT vector FROM message_embeddings WHERE message_id = ? AND model = ?`,
		messageID, model,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("corpus: get embedding: %w", err)
	}
	return decodeVector(blob), nil
}

// AllEmbeddings returns every stored embedding for a model, joined with
// its owning conversation so callers can aggregate per conversation.
func (s *Store) AllEmbeddings(model string) ([]Embedding, error) {
	rows, err := s.db.Query(
		`SELECT e.message_id, m.conversation_id, e.model, e.dimension, e.vector, e.created_at
		 FROM message_embeddings e
		 JOIN messages m ON m.id = e.message_id
		 WHERE e.model = ?
		 ORDER BY m.conversation_id, e.message_id`,
		model,
	)
	if err != nil {
		return nil, fmt.Errorf("corpus: all embeddings: %w", err)
	}
	defer rows.Close()

	var out []Embedding
	for rows.Next() {
		var e Embedding
		var blob []byte
		if err := rows.Scan(&e.MessageID, &e.ConversationID, &e.Model, &e.Dimension, &blob, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Vector = decodeVector(blob)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ─── Relationships ───────────────────────────────────────────────────────────

// UpsertRelationship records a derived edge between two conversations.
// At most one row exists per (a, b, type); repeated discovery runs
// converge to the same set.
func (s *Store) UpsertRelationship(convA, convB int64, relType string, score float64, metadata string) error {
	if convA == convB {
		return fmt.Errorf("corpus: relationship: conversation related to itself (%d)", convA)
	}
	_, err := s.db.Exec(
		`INSERT INTO relationships (conversation_a, conversation_b, type, score, metadata)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(conversation_a, conversation_b, type) DO UPDATE SET
		   score      = excluded.score,
		   metadata   = excluded.metadata,
		   created_at = datetime('now')`,
		convA, convB, relType, score, nullableString(metadata),
	)
	if err != nil {
		return fmt.Errorf("corpus: upsert relationship: %w", err)
	}
	return nil
}

// RelationshipsFor returns all relationships touching a conversation on
// either side, most similar first. minScore filters out weaker edges;
// pass 0 for all.
func (s *Store) RelationshipsFor(conversationID int64, minScore float64) ([]Relationship, error) {
	rows, err := s.db.Query(
		`SELECT id, conversation_a, conversation_b, type, score, COALESCE(metadata, ''), created_at
		 FROM relationships
		 WHERE (conversation_a = ? OR conversation_b = ?) AND score >= ?
		 ORDER BY score DESC, id`,
		conversationID, conversationID, minScore,
	)
	if err != nil {
		return nil, fmt.Errorf("corpus: relationships for: %w", err)
	}
	defer rows.Close()

	var out []Relationship
	for rows.Next() {
		var r Relationship
		if err := rows.Scan(&r.ID, &r.ConversationA, &r.ConversationB, &r.Type, &r.Score, &r.Metadata, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AllRelationships returns every stored relationship.
func (s *Store) AllRelationships() ([]Relationship, error) {
	rows, err := s.db.Query(
		`SELECT id, conversation_a, conversation_b, type, score, COALESCE(metadata, ''), created_at
		 FROM relationships ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("corpus: all relationships: %w", err)
	}
	defer rows.Close()

	var out []Relationship
	for rows.Next() {
		var r Relationship
		if err := rows.Scan(&r.ID, &r.ConversationA, &r.ConversationB, &r.Type, &r.Score, &r.Metadata, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ─── Topics ──────────────────────────────────────────────────────────────────

// InsertTopic records a topic name, returning the existing id when the
// name is already present (names are unique).
func (s *Store) InsertTopic(name, description string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("corpus: insert topic: name is required")
	}
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO topics (name, description) VALUES (?, ?)`,
		name, nullableString(description),
	)
	if err != nil {
		return 0, fmt.Errorf("corpus: insert topic: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return res.LastInsertId()
	}

	var id int64
	if err := s.db.QueryRow(`SELECT id FROM topics WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("corpus: resolve existing topic: %w", err)
	}
	return id, nil
}

// LinkMessageTopic attaches a topic to a message with a relevance score,
// replacing the score if the link already exists.
func (s *Store) LinkMessageTopic(messageID, topicID int64, relevance float64) error {
	_, err := s.db.Exec(
		`INSERT INTO message_topics (message_id, topic_id, relevance)
		 VALUES (?, ?, ?)
		 ON CONFLICT(message_id, topic_id) DO UPDATE SET relevance = excluded.relevance`,
		messageID, topicID, relevance,
	)
	if err != nil {
		return fmt.Errorf("corpus: link message topic: %w", err)
	}
	return nil
}

// ListTopics returns all topics ordered by name.
func (s *Store) ListTopics() ([]Topic, error) {
	rows, err := s.db.Query(
		`SELECT id, name, COALESCE(description, ''), created_at FROM topics ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("corpus: list topics: %w", err)
	}
	defer rows.Close()

	var out []Topic
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
