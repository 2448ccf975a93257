package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"atomsense/domain/core"
	"atomsense/domain/sensitivity"
	"atomsense/ports"

	"github.com/jmoiron/sqlx"
)

// RunRepositoryImpl implements RunRepository for PostgreSQL. Structured
// parts of a run are stored as JSONB columns.
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a new PostgreSQL run repository
func NewRunRepository(db *sqlx.DB) ports.RunRepository {
	return &RunRepositoryImpl{db: db}
}

// runRow mirrors the sensitivity_runs table
type runRow struct {
	ID          string    `db:"id"`
	Encoding    string    `db:"encoding"`
	Fingerprint string    `db:"fingerprint"`
	Config      []byte    `db:"config"`
	Thresholds  []byte    `db:"thresholds"`
	Annotations []byte    `db:"annotations"`
	Elements    []byte    `db:"elements"`
	Payload     []byte    `db:"payload"`
	Unscored    []byte    `db:"unscored"`
	RuntimeMs   int64     `db:"runtime_ms"`
	CreatedAt   time.Time `db:"created_at"`
}

func toRow(run *ports.RunRecord) (*runRow, error) {
	row := &runRow{
		ID:          run.ID.String(),
		Encoding:    run.Encoding,
		Fingerprint: run.Fingerprint.String(),
		RuntimeMs:   run.RuntimeMs,
		CreatedAt:   run.CreatedAt,
	}
	fields := []struct {
		dst *[]byte
		src interface{}
	}{
		{&row.Config, run.Config},
		{&row.Thresholds, run.Thresholds},
		{&row.Annotations, run.Annotations},
		{&row.Elements, run.Elements},
		{&row.Payload, run.Payload},
		{&row.Unscored, run.Unscored},
	}
	for _, f := range fields {
		raw, err := json.Marshal(f.src)
		if err != nil {
			return nil, fmt.Errorf("marshal run %s: %w", run.ID, err)
		}
		*f.dst = raw
	}
	return row, nil
}

func (row *runRow) toRecord() (*ports.RunRecord, error) {
	run := &ports.RunRecord{
		ID:          core.RunID(row.ID),
		Encoding:    row.Encoding,
		Fingerprint: core.Hash(row.Fingerprint),
		RuntimeMs:   row.RuntimeMs,
		CreatedAt:   row.CreatedAt.UTC(),
	}
	var (
		cfg         sensitivity.Config
		thresholds  sensitivity.Thresholds
		annotations []sensitivity.Annotation
		elements    []string
		payload     sensitivity.RenderPayload
		unscored    []int
	)
	fields := []struct {
		src []byte
		dst interface{}
	}{
		{row.Config, &cfg},
		{row.Thresholds, &thresholds},
		{row.Annotations, &annotations},
		{row.Elements, &elements},
		{row.Payload, &payload},
		{row.Unscored, &unscored},
	}
	for _, f := range fields {
		if len(f.src) == 0 {
			continue
		}
		if err := json.Unmarshal(f.src, f.dst); err != nil {
			return nil, fmt.Errorf("unmarshal run %s: %w", row.ID, err)
		}
	}
	run.Config = cfg
	run.Thresholds = thresholds
	run.Annotations = annotations
	run.Elements = elements
	run.Payload = payload
	run.Unscored = unscored
	return run, nil
}

// Save inserts a run or replaces the stored one with the same ID
func (r *RunRepositoryImpl) Save(ctx context.Context, run *ports.RunRecord) error {
	row, err := toRow(run)
	if err != nil {
		return err
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO sensitivity_runs (id, encoding, fingerprint, config, thresholds, annotations, elements, payload, unscored, runtime_ms, created_at)
		VALUES (:id, :encoding, :fingerprint, :config, :thresholds, :annotations, :elements, :payload, :unscored, :runtime_ms, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			encoding = EXCLUDED.encoding,
			fingerprint = EXCLUDED.fingerprint,
			config = EXCLUDED.config,
			thresholds = EXCLUDED.thresholds,
			annotations = EXCLUDED.annotations,
			elements = EXCLUDED.elements,
			payload = EXCLUDED.payload,
			unscored = EXCLUDED.unscored,
			runtime_ms = EXCLUDED.runtime_ms
	`, row)
	return err
}

// Get retrieves a run by ID
func (r *RunRepositoryImpl) Get(ctx context.Context, id core.RunID) (*ports.RunRecord, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, encoding, fingerprint, config, thresholds, annotations, elements, payload, unscored, runtime_ms, created_at
		FROM sensitivity_runs
		WHERE id = $1
	`, id.String())
	if err == sql.ErrNoRows {
		return nil, core.NewNotFoundError("run", id.String())
	}
	if err != nil {
		return nil, err
	}
	return row.toRecord()
}

// List returns runs newest first, at most limit (0 means all)
func (r *RunRepositoryImpl) List(ctx context.Context, limit int) ([]*ports.RunRecord, error) {
	query := `
		SELECT id, encoding, fingerprint, config, thresholds, annotations, elements, payload, unscored, runtime_ms, created_at
		FROM sensitivity_runs
		ORDER BY created_at DESC, id DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	runs := make([]*ports.RunRecord, 0, len(rows))
	for i := range rows {
		run, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}
