package corpus

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// RegisterSource records a new export location. The id is a fresh UUID;
// vendor and root are immutable afterwards, label and color are not.
func (s *Store) RegisterSource(vendor, root, label string) (Source, error) {
	if !ValidVendor(vendor) {
		return Source{}, fmt.Errorf("corpus: unknown vendor %q", vendor)
	}
	if label == "" {
		label = vendor
	}

	id := uuid.NewString()
	if _, err := s.db.Exec(
		`INSERT INTO sources (id, vendor, root, label) VALUES (?, ?, ?, ?)`,
		id, vendor, root, label,
	); err != nil {
		return Source{}, fmt.Errorf("corpus: register source: %w", err)
	}
	return s.GetSource(id)
}

// GetSource retrieves a source by id.
func (s *Store) GetSource(id string) (Source, error) {
	var src Source
	var color *string
	err := s.db.QueryRow(
		`SELECT id, vendor, root, label, color, added_at FROM sources WHERE id = ?`, id,
	).Scan(&src.ID, &src.Vendor, &src.Root, &src.Label, &color, &src.AddedAt)
	if err == sql.ErrNoRows {
		return Source{}, ErrNotFound
	}
	if err != nil {
		return Source{}, fmt.Errorf("corpus: get source: %w", err)
	}
	src.Color = derefString(color)
	return src, nil
}

// ListSources returns all registered sources, newest first.
func (s *Store) ListSources() ([]Source, error) {
	rows, err := s.db.Query(
		`SELECT id, vendor, root, label, color, added_at FROM sources ORDER BY added_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("corpus: list sources: %w", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var src Source
		var color *string
		if err := rows.Scan(&src.ID, &src.Vendor, &src.Root, &src.Label, &color, &src.AddedAt); err != nil {
			return nil, err
		}
		src.Color = derefString(color)
		out = append(out, src)
	}
	return out, rows.Err()
}

// UpdateSourceLabel changes the mutable presentation fields of a source.
func (s *Store) UpdateSourceLabel(id, label, color string) error {
	res, err := s.db.Exec(
		`UPDATE sources SET label = ?, color = ? WHERE id = ?`,
		label, nullableString(color), id,
	)
	if err != nil {
		return fmt.Errorf("corpus: update source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
