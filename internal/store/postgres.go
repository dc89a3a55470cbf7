package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/coollabora/clinical-audit/internal/model"
)

// Pool abstracts pgxpool.Pool for the query operations the store uses, so
// tests can substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for the
// hot paths: the cache lookup on every audit request and the insert.
var preparedStatements = map[string]string{
	"insert_audit": `INSERT INTO audits (id, instagram_url, website_url, audit_status, restriction_type, report, identity, vision_analysis, data_used, visual_evidence, manual_notes, created_at, completed_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
	"get_audit":    `SELECT id, instagram_url, website_url, audit_status, restriction_type, report, identity, vision_analysis, data_used, visual_evidence, manual_notes, created_at, completed_at FROM audits WHERE id = $1`,
	"latest_audit": `SELECT id, instagram_url, website_url, audit_status, restriction_type, report, identity, vision_analysis, data_used, visual_evidence, manual_notes, created_at, completed_at FROM audits WHERE instagram_url = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS audits (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	instagram_url    TEXT NOT NULL,
	website_url      TEXT,
	audit_status     TEXT NOT NULL,
	restriction_type TEXT,
	report           TEXT NOT NULL,
	identity         JSONB NOT NULL,
	vision_analysis  JSONB,
	data_used        JSONB NOT NULL,
	visual_evidence  JSONB NOT NULL,
	manual_notes     TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_audits_instagram_created ON audits(instagram_url, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audits_status ON audits(audit_status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const pgAuditColumns = `id, instagram_url, website_url, audit_status, restriction_type,
	report, identity, vision_analysis, data_used, visual_evidence,
	manual_notes, created_at, completed_at`

func (s *PostgresStore) CreateAudit(ctx context.Context, rec *model.AuditRecord) error {
	identityJSON, visionJSON, dataJSON, evidenceJSON, err := marshalAuditFields(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal audit")
	}

	var vision any
	if visionJSON.Valid {
		vision = []byte(visionJSON.String)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO audits (`+pgAuditColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.InstagramURL, nullString(rec.WebsiteURL),
		string(rec.AuditStatus), nullString(string(rec.RestrictionType)),
		rec.Report, []byte(identityJSON.String), vision, []byte(dataJSON), []byte(evidenceJSON),
		nullString(rec.ManualReviewNotes), rec.CreatedAt, rec.CompletedAt,
	)
	return eris.Wrapf(err, "postgres: insert audit %s", rec.ID)
}

func (s *PostgresStore) GetAudit(ctx context.Context, id string) (*model.AuditRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgAuditColumns+` FROM audits WHERE id = $1`, id)

	rec, err := scanPgAudit(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get audit %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) LatestAuditSince(ctx context.Context, instagramURL string, since time.Time) (*model.AuditRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgAuditColumns+` FROM audits
		 WHERE instagram_url = $1 AND created_at >= $2
		 ORDER BY created_at DESC LIMIT 1`,
		instagramURL, since,
	)

	rec, err := scanPgAudit(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest audit")
	}
	return rec, nil
}

func (s *PostgresStore) ListAudits(ctx context.Context, filter AuditFilter) ([]model.AuditRecord, error) {
	query := `SELECT ` + pgAuditColumns + ` FROM audits WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND audit_status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.InstagramURL != "" {
		query += fmt.Sprintf(` AND instagram_url = $%d`, argIdx)
		args = append(args, filter.InstagramURL)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audits")
	}
	defer rows.Close()

	var audits []model.AuditRecord
	for rows.Next() {
		rec, err := scanPgAudit(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit")
		}
		audits = append(audits, *rec)
	}
	return audits, eris.Wrap(rows.Err(), "postgres: list audits iterate")
}

func (s *PostgresStore) AttachManualReview(ctx context.Context, id, notes string) (*model.AuditRecord, error) {
	now := time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`UPDATE audits SET manual_notes = $1, audit_status = $2, completed_at = $3
		 WHERE id = $4 AND audit_status = $5 AND manual_notes IS NULL`,
		notes, string(model.AuditStatusReviewed), now,
		id, string(model.AuditStatusPendingReview),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: attach review %s", id)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetAudit(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrReviewConflict
	}

	return s.GetAudit(ctx, id)
}

func scanPgAudit(row pgx.Row) (*model.AuditRecord, error) {
	var rec model.AuditRecord
	var websiteURL, restriction, manualNotes *string
	var status string
	var identityJSON, visionJSON, dataJSON, evidenceJSON []byte

	err := row.Scan(&rec.ID, &rec.InstagramURL, &websiteURL, &status,
		&restriction, &rec.Report, &identityJSON, &visionJSON,
		&dataJSON, &evidenceJSON, &manualNotes, &rec.CreatedAt, &rec.CompletedAt)
	if err != nil {
		return nil, err
	}

	rec.AuditStatus = model.AuditStatus(status)
	if websiteURL != nil {
		rec.WebsiteURL = *websiteURL
	}
	if restriction != nil {
		rec.RestrictionType = model.RestrictionState(*restriction)
	}
	if manualNotes != nil {
		rec.ManualReviewNotes = *manualNotes
	}

	if len(identityJSON) > 0 {
		if err := json.Unmarshal(identityJSON, &rec.Identity); err != nil {
			return nil, eris.Wrap(err, "unmarshal identity")
		}
	}
	if len(visionJSON) > 0 {
		rec.VisionAnalysis = &model.AnalysisResult{}
		if err := json.Unmarshal(visionJSON, rec.VisionAnalysis); err != nil {
			return nil, eris.Wrap(err, "unmarshal vision analysis")
		}
	}
	if err := json.Unmarshal(dataJSON, &rec.DataUsed); err != nil {
		return nil, eris.Wrap(err, "unmarshal data used")
	}
	if err := json.Unmarshal(evidenceJSON, &rec.VisualEvidence); err != nil {
		return nil, eris.Wrap(err, "unmarshal visual evidence")
	}

	return &rec, nil
}
