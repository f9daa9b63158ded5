package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/royengg/homeworkai/internal/types"
)

// -----------------------------------------------------------------------------
// Uploads and parse results
// -----------------------------------------------------------------------------

// CreateUpload records an uploaded document
func (db *DB) CreateUpload(ctx context.Context, input *UploadInput) (*Upload, error) {
	var u Upload
	err := db.pool.QueryRow(ctx,
		`INSERT INTO uploads (user_id, filename, storage_key)
		 VALUES ($1, $2, $3)
		 RETURNING id, user_id, filename, storage_key, created_at`,
		input.UserID, input.Filename, input.StorageKey,
	).Scan(&u.ID, &u.UserID, &u.Filename, &u.StorageKey, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload: %w", err)
	}
	return &u, nil
}

// GetUpload retrieves an upload by ID
func (db *DB) GetUpload(ctx context.Context, uploadID uuid.UUID) (*Upload, error) {
	var u Upload
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, filename, storage_key, created_at FROM uploads WHERE id = $1`,
		uploadID,
	).Scan(&u.ID, &u.UserID, &u.Filename, &u.StorageKey, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return &u, nil
}

// SaveParseText stores the extracted text of an upload, replacing any previous parse
func (db *DB) SaveParseText(ctx context.Context, uploadID uuid.UUID, text string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO parse_results (upload_id, text)
		 VALUES ($1, $2)
		 ON CONFLICT (upload_id) DO UPDATE SET text = $2, created_at = NOW()`,
		uploadID, text,
	)
	if err != nil {
		return fmt.Errorf("failed to save parse text: %w", err)
	}
	return nil
}

// GetParseText returns the extracted text of an upload, or "" when it was never parsed
func (db *DB) GetParseText(ctx context.Context, uploadID uuid.UUID) (string, error) {
	var text string
	err := db.pool.QueryRow(ctx,
		`SELECT text FROM parse_results WHERE upload_id = $1`,
		uploadID,
	).Scan(&text)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get parse text: %w", err)
	}
	return text, nil
}

// -----------------------------------------------------------------------------
// Analysis records
// -----------------------------------------------------------------------------

const analysisColumns = `id, upload_id, status, output, error, created_at, updated_at`

func scanAnalysis(row rowScanner) (*AnalysisResult, error) {
	var r AnalysisResult
	var output []byte
	if err := row.Scan(&r.ID, &r.UploadID, &r.Status, &output, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if len(output) > 0 {
		r.Output = json.RawMessage(output)
	}
	return &r, nil
}

// CreateAnalysis creates a queued record for an upload
func (db *DB) CreateAnalysis(ctx context.Context, uploadID uuid.UUID) (*AnalysisResult, error) {
	r, err := scanAnalysis(db.pool.QueryRow(ctx,
		`INSERT INTO analysis_results (upload_id, status)
		 VALUES ($1, 'queued')
		 RETURNING `+analysisColumns,
		uploadID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis: %w", err)
	}
	return r, nil
}

// GetAnalysis retrieves a record by ID
func (db *DB) GetAnalysis(ctx context.Context, id uuid.UUID) (*AnalysisResult, error) {
	r, err := scanAnalysis(db.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analysis_results WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return r, nil
}

// ListAnalyses returns the records of an upload, newest first
func (db *DB) ListAnalyses(ctx context.Context, uploadID uuid.UUID) ([]AnalysisResult, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+analysisColumns+` FROM analysis_results
		 WHERE upload_id = $1 ORDER BY created_at DESC`,
		uploadID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var results []AnalysisResult
	for rows.Next() {
		r, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

// UpdateAnalysis applies a partial update in one statement, so readers see
// either the old or the new record. A status change is only applied when it
// moves forward: running from queued or running, completed or failed from a
// non-terminal status. Otherwise ErrInvalidTransition is returned.
func (db *DB) UpdateAnalysis(ctx context.Context, id uuid.UUID, update AnalysisUpdate) (*AnalysisResult, error) {
	var outputJSON []byte
	if update.Output != nil {
		var err error
		outputJSON, err = json.Marshal(update.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal analysis output: %w", err)
		}
	}

	r, err := scanAnalysis(db.pool.QueryRow(ctx,
		`UPDATE analysis_results SET
		     status     = COALESCE($2, status),
		     output     = COALESCE($3::jsonb, output),
		     error      = COALESCE($4, error),
		     updated_at = NOW()
		 WHERE id = $1
		   AND ($2::text IS NULL OR status IN ('queued', 'running'))
		 RETURNING `+analysisColumns,
		id, update.Status, outputJSON, update.Error,
	))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update analysis: %w", err)
	}

	current, getErr := db.GetAnalysis(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current == nil || update.Status == nil {
		return nil, fmt.Errorf("analysis not found: %s", id)
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, *update.Status)
}

// FindCheckpoint returns the resumable state of the most recent assignment-typed
// record of uploadID other than excludingID, or nil when there is none.
// A stored output that fails validation yields an error wrapping types.ErrInvalidOutput.
func (db *DB) FindCheckpoint(ctx context.Context, uploadID, excludingID uuid.UUID) (*types.AssignmentCheckpoint, error) {
	r, err := scanAnalysis(db.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analysis_results
		 WHERE upload_id = $1 AND id <> $2 AND output->>'type' = 'assignment'
		 ORDER BY created_at DESC
		 LIMIT 1`,
		uploadID, excludingID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find checkpoint: %w", err)
	}

	out, err := r.DecodeOutput()
	if err != nil {
		return nil, err
	}
	if out == nil || out.Assignment == nil {
		return nil, nil
	}
	return out.Assignment.Checkpoint(r.ID.String()), nil
}
