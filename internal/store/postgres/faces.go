package postgres

import (
	"context"
	"fmt"

	"github.com/classmgr/attendbot/internal/store"
	"github.com/pgvector/pgvector-go"
)

// AddFaceSample appends one enrolled face sample. The database id is written
// back to s.ID.
func (s *Store) AddFaceSample(ctx context.Context, sample *store.FaceSample) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO face_samples (label, image_path, embedding)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, sample.Label, sample.ImagePath, pgvector.NewVector(sample.Embedding)).Scan(&sample.ID, &sample.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert face sample: %w", err)
	}
	return nil
}

// ListFaceSamples returns all enrolled samples, oldest first. Used to
// rebuild the label index.
func (s *Store) ListFaceSamples(ctx context.Context) ([]store.FaceSample, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, label, image_path, embedding, created_at
		FROM face_samples
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query face samples: %w", err)
	}
	defer rows.Close()

	var samples []store.FaceSample
	for rows.Next() {
		var sample store.FaceSample
		var vec pgvector.Vector
		if err := rows.Scan(&sample.ID, &sample.Label, &sample.ImagePath, &vec, &sample.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face sample: %w", err)
		}
		sample.Embedding = vec.Slice()
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face samples: %w", err)
	}
	return samples, nil
}

// CountFaceSamples returns the total number of enrolled samples.
func (s *Store) CountFaceSamples(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_samples").Scan(&count); err != nil {
		return 0, fmt.Errorf("count face samples: %w", err)
	}
	return count, nil
}
