package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/babylog/internal/care"
)

// Resolve looks up the mapping for a device trigger. An unmapped trigger
// returns (nil, nil): it is not an error, the caller logs and drops.
func (s *Store) Resolve(ctx context.Context, deviceID, buttonAction string) (*care.Mapping, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+mappingColumns+" FROM device_mappings WHERE device_id = ? AND button_action = ?",
		deviceID, buttonAction)

	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Upsert inserts or replaces a mapping. It fails with ErrConflict if the
// (deviceID, buttonAction) pair is already owned by a different mapping
// id; upserting with the same id replaces. A draft without an id gets
// one assigned.
func (s *Store) Upsert(ctx context.Context, m care.Mapping) (care.Mapping, error) {
	if m.DeviceID == "" || m.ButtonAction == "" {
		return care.Mapping{}, fmt.Errorf("%w: device id and button action are required", ErrValidation)
	}
	if !m.CareAction.Valid() {
		return care.Mapping{}, fmt.Errorf("%w: unknown care action %q", ErrValidation, m.CareAction)
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return care.Mapping{}, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	var existingID, createdAt string
	err = tx.QueryRowContext(ctx,
		"SELECT id, created_at FROM device_mappings WHERE device_id = ? AND button_action = ?",
		m.DeviceID, m.ButtonAction).Scan(&existingID, &createdAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.CreatedAt = now
		m.UpdatedAt = now
		_, err = tx.ExecContext(ctx, `
			INSERT INTO device_mappings (id, device_id, button_action, care_action, device_name, notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.DeviceID, m.ButtonAction, string(m.CareAction), m.DeviceName, m.Notes,
			now.Format(timeFormat), now.Format(timeFormat))
		if err != nil {
			return care.Mapping{}, fmt.Errorf("insert mapping: %w", err)
		}

	case err != nil:
		return care.Mapping{}, fmt.Errorf("lookup mapping: %w", err)

	default:
		if m.ID != "" && m.ID != existingID {
			return care.Mapping{}, fmt.Errorf("%w: trigger %s/%s is owned by mapping %s",
				ErrConflict, m.DeviceID, m.ButtonAction, existingID)
		}
		m.ID = existingID
		if m.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return care.Mapping{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
		}
		m.UpdatedAt = now
		_, err = tx.ExecContext(ctx, `
			UPDATE device_mappings SET care_action = ?, device_name = ?, notes = ?, updated_at = ?
			WHERE id = ?`,
			string(m.CareAction), m.DeviceName, m.Notes, now.Format(timeFormat), m.ID)
		if err != nil {
			return care.Mapping{}, fmt.Errorf("update mapping: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return care.Mapping{}, fmt.Errorf("commit upsert: %w", err)
	}
	return m, nil
}

// Remove deletes the mapping for a device trigger. Removing a trigger
// with no mapping is not an error.
func (s *Store) Remove(ctx context.Context, deviceID, buttonAction string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM device_mappings WHERE device_id = ? AND button_action = ?",
		deviceID, buttonAction)
	if err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	return nil
}

// ListMappings returns all configured mappings, newest first.
func (s *Store) ListMappings(ctx context.Context) ([]care.Mapping, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+mappingColumns+" FROM device_mappings ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	var mappings []care.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan mappings: %w", err)
	}
	return mappings, nil
}

const mappingColumns = "id, device_id, button_action, care_action, device_name, notes, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMapping(row rowScanner) (care.Mapping, error) {
	var (
		m                care.Mapping
		action, cAt, uAt string
	)
	if err := row.Scan(&m.ID, &m.DeviceID, &m.ButtonAction, &action, &m.DeviceName, &m.Notes, &cAt, &uAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return care.Mapping{}, err
		}
		return care.Mapping{}, fmt.Errorf("scan mapping: %w", err)
	}

	m.CareAction = care.EventType(action)
	var err error
	if m.CreatedAt, err = time.Parse(timeFormat, cAt); err != nil {
		return care.Mapping{}, fmt.Errorf("parse created_at %q: %w", cAt, err)
	}
	if m.UpdatedAt, err = time.Parse(timeFormat, uAt); err != nil {
		return care.Mapping{}, fmt.Errorf("parse updated_at %q: %w", uAt, err)
	}
	return m, nil
}
