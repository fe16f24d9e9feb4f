package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// LogNeighborChange records a learned-field transition for a neighbor.
func (s *Store) LogNeighborChange(change NeighborChange) error {
	if strings.TrimSpace(change.NeighborAddress) == "" {
		return errors.New("neighbor_address is required")
	}
	if err := validateField(change.Field); err != nil {
		return err
	}
	if change.NewValue == "" {
		return errors.New("new_value is required")
	}
	if change.Timestamp == 0 {
		change.Timestamp = nowUnixMilli()
	}

	_, err := s.db.Exec(
		`INSERT INTO neighbor_changes (
			neighbor_address,
			field,
			old_value,
			new_value,
			timestamp
		) VALUES (?, ?, ?, ?, ?)`,
		change.NeighborAddress,
		change.Field,
		change.OldValue,
		change.NewValue,
		change.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert neighbor change %s/%s: %w", change.NeighborAddress, change.Field, err)
	}

	return s.pruneBefore("neighbor_changes")
}

// GetNeighborChanges returns recent neighbor changes, newest first.
func (s *Store) GetNeighborChanges(filter NeighborChangeFilter) ([]NeighborChange, error) {
	if filter.Field != "" {
		if err := validateField(filter.Field); err != nil {
			return nil, err
		}
	}
	limit, offset := clampPage(filter.Limit, filter.Offset)

	query := strings.Builder{}
	query.WriteString(`SELECT
		id,
		neighbor_address,
		field,
		old_value,
		new_value,
		timestamp
	FROM neighbor_changes`)

	where := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if filter.NeighborAddress != "" {
		where = append(where, "neighbor_address = ?")
		args = append(args, filter.NeighborAddress)
	}
	if filter.Field != "" {
		where = append(where, "field = ?")
		args = append(args, filter.Field)
	}
	if len(where) > 0 {
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(where, " AND "))
	}
	query.WriteString(" ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	rows, err := s.db.Query(query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("get neighbor changes: %w", err)
	}
	defer rows.Close()

	changes := make([]NeighborChange, 0)
	for rows.Next() {
		var change NeighborChange
		if err := rows.Scan(
			&change.ID,
			&change.NeighborAddress,
			&change.Field,
			&change.OldValue,
			&change.NewValue,
			&change.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan neighbor change row: %w", err)
		}
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate neighbor change rows: %w", err)
	}

	return changes, nil
}

// RecordLocalUUID appends to the local UUID history. Repeating the current
// UUID with the same origin is a no-op.
func (s *Store) RecordLocalUUID(uuid, origin string) error {
	if strings.TrimSpace(uuid) == "" {
		return errors.New("uuid is required")
	}
	if err := validateUUIDOrigin(origin); err != nil {
		return err
	}

	current, err := s.CurrentLocalUUID()
	switch {
	case err == nil && current.UUID == uuid && current.Origin == origin:
		return nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return err
	}

	if _, err := s.db.Exec(
		`INSERT INTO local_uuid_history (uuid, origin, timestamp) VALUES (?, ?, ?)`,
		uuid, origin, nowUnixMilli(),
	); err != nil {
		return fmt.Errorf("insert local uuid: %w", err)
	}
	return nil
}

// CurrentLocalUUID returns the most recently recorded local UUID.
func (s *Store) CurrentLocalUUID() (*LocalUUID, error) {
	var entry LocalUUID
	err := s.db.QueryRow(
		`SELECT uuid, origin, timestamp FROM local_uuid_history ORDER BY rowid DESC LIMIT 1`,
	).Scan(&entry.UUID, &entry.Origin, &entry.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get current local uuid: %w", err)
	}
	return &entry, nil
}
