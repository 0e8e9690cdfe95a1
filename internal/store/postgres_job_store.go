package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/dunamismax/eventdesk/internal/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS upload_jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	folder TEXT NOT NULL,
	name TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	staging_key TEXT NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	result_key TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_logs (
	id BIGSERIAL PRIMARY KEY,
	job_id TEXT NOT NULL,
	folder TEXT NOT NULL,
	pixels_processed BIGINT NOT NULL,
	bytes_in BIGINT NOT NULL,
	bytes_out BIGINT NOT NULL,
	bytes_saved BIGINT NOT NULL,
	compute_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS usage_logs_folder_idx ON usage_logs (folder);
`

const jobColumns = `id, status, folder, name, content_type, staging_key, webhook_url, result_key, error, created_at, updated_at`

type PostgresJobStore struct {
	db *sql.DB
}

func NewPostgresJobStore(ctx context.Context, dsn string) (*PostgresJobStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresJobStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresJobStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Close() error {
	return s.db.Close()
}

func (s *PostgresJobStore) Create(ctx context.Context, job domain.UploadJob) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO upload_jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID,
		job.Status,
		job.Folder,
		job.Name,
		job.ContentType,
		job.StagingKey,
		job.WebhookURL,
		job.ResultKey,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert upload job: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, id string) (domain.UploadJob, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM upload_jobs WHERE id = $1`, id)

	var job domain.UploadJob
	if err := row.Scan(
		&job.ID,
		&job.Status,
		&job.Folder,
		&job.Name,
		&job.ContentType,
		&job.StagingKey,
		&job.WebhookURL,
		&job.ResultKey,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UploadJob{}, false, nil
		}
		return domain.UploadJob{}, false, fmt.Errorf("query upload job: %w", err)
	}
	return job, true, nil
}

func (s *PostgresJobStore) UpdateStatus(ctx context.Context, id, status string) (domain.UploadJob, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE upload_jobs SET status = $1, updated_at = $2 WHERE id = $3`,
		status,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return domain.UploadJob{}, fmt.Errorf("update job status: %w", err)
	}
	return s.reload(ctx, id, res)
}

func (s *PostgresJobStore) Finish(ctx context.Context, id, status, resultKey, errMsg string) (domain.UploadJob, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE upload_jobs
		 SET status = $1, result_key = $2, error = $3, updated_at = $4
		 WHERE id = $5`,
		status,
		resultKey,
		errMsg,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return domain.UploadJob{}, fmt.Errorf("finish job: %w", err)
	}
	return s.reload(ctx, id, res)
}

func (s *PostgresJobStore) reload(ctx context.Context, id string, res sql.Result) (domain.UploadJob, error) {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.UploadJob{}, ErrJobNotFound
	}
	job, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.UploadJob{}, err
	}
	if !ok {
		return domain.UploadJob{}, ErrJobNotFound
	}
	return job, nil
}

func (s *PostgresJobStore) RecordUsage(ctx context.Context, usage domain.UsageLog) error {
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO usage_logs (job_id, folder, pixels_processed, bytes_in, bytes_out, bytes_saved, compute_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		usage.JobID,
		usage.Folder,
		usage.PixelsProcessed,
		usage.BytesIn,
		usage.BytesOut,
		usage.BytesSaved,
		usage.ComputeTimeMS,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) UsageByFolder(ctx context.Context) ([]UsageSummary, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT folder, COUNT(*), COALESCE(SUM(pixels_processed), 0), COALESCE(SUM(bytes_in), 0),
		        COALESCE(SUM(bytes_out), 0), COALESCE(SUM(bytes_saved), 0), COALESCE(SUM(compute_time_ms), 0)
		 FROM usage_logs
		 GROUP BY folder
		 ORDER BY folder`,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var out []UsageSummary
	for rows.Next() {
		var sum UsageSummary
		if err := rows.Scan(
			&sum.Folder,
			&sum.Jobs,
			&sum.PixelsProcessed,
			&sum.BytesIn,
			&sum.BytesOut,
			&sum.BytesSaved,
			&sum.ComputeTimeMS,
		); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage: %w", err)
	}
	return out, nil
}
