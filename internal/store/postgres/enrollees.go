package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/classmgr/attendbot/internal/store"
)

const enrolleeColumns = "label, handle, guid, first_name, last_name, joined_at"

func scanEnrollee(row *sql.Row) (*store.Enrollee, error) {
	var e store.Enrollee
	var handle sql.NullInt64
	var guid sql.NullString
	err := row.Scan(&e.Label, &handle, &guid, &e.FirstName, &e.LastName, &e.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan enrollee: %w", err)
	}
	switch {
	case handle.Valid:
		e.Ref = store.RefByHandle(handle.Int64)
	case guid.Valid:
		e.Ref = store.RefByGuid(guid.String)
	default:
		return nil, store.ErrInvalidReference
	}
	return &e, nil
}

// GetEnrollee retrieves an enrollee by reference, branching on which variant
// is present.
func (s *Store) GetEnrollee(ctx context.Context, ref store.EnrolleeRef) (*store.Enrollee, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	if handle, ok := ref.Handle(); ok {
		row := s.pool.QueryRow(ctx,
			"SELECT "+enrolleeColumns+" FROM enrollees WHERE handle = $1", handle)
		return scanEnrollee(row)
	}
	guid, _ := ref.Guid()
	row := s.pool.QueryRow(ctx,
		"SELECT "+enrolleeColumns+" FROM enrollees WHERE guid = $1", guid)
	return scanEnrollee(row)
}

// GetEnrolleeByLabel retrieves an enrollee by classifier label.
func (s *Store) GetEnrolleeByLabel(ctx context.Context, label int) (*store.Enrollee, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+enrolleeColumns+" FROM enrollees WHERE label = $1", label)
	return scanEnrollee(row)
}

// CreateEnrollee inserts the enrollee, letting the label sequence assign its
// classifier label. On a reference conflict the existing record is loaded
// into e instead.
func (s *Store) CreateEnrollee(ctx context.Context, e *store.Enrollee) error {
	if err := e.Ref.Validate(); err != nil {
		return err
	}

	var handle sql.NullInt64
	var guid sql.NullString
	if h, ok := e.Ref.Handle(); ok {
		handle = sql.NullInt64{Int64: h, Valid: true}
	} else {
		g, _ := e.Ref.Guid()
		guid = sql.NullString{String: g, Valid: true}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO enrollees (handle, guid, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, handle, guid, e.FirstName, e.LastName)
	if err != nil {
		return fmt.Errorf("insert enrollee: %w", err)
	}

	// Read back whichever row owns the reference now.
	created, err := s.GetEnrollee(ctx, e.Ref)
	if err != nil {
		return fmt.Errorf("fetch created enrollee: %w", err)
	}
	*e = *created
	return nil
}
