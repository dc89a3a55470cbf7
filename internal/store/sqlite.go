package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/coollabora/clinical-audit/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS audits (
	id               TEXT PRIMARY KEY,
	instagram_url    TEXT NOT NULL,
	website_url      TEXT,
	audit_status     TEXT NOT NULL,
	restriction_type TEXT,
	report           TEXT NOT NULL,
	identity         TEXT NOT NULL,
	vision_analysis  TEXT,
	data_used        TEXT NOT NULL,
	visual_evidence  TEXT NOT NULL,
	manual_notes     TEXT,
	created_at       DATETIME NOT NULL,
	completed_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_audits_instagram_created ON audits(instagram_url, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audits_status ON audits(audit_status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const auditColumns = `id, instagram_url, website_url, audit_status, restriction_type,
	report, identity, vision_analysis, data_used, visual_evidence,
	manual_notes, created_at, completed_at`

func (s *SQLiteStore) CreateAudit(ctx context.Context, rec *model.AuditRecord) error {
	identityJSON, visionJSON, dataJSON, evidenceJSON, err := marshalAuditFields(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal audit")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audits (`+auditColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.InstagramURL, nullString(rec.WebsiteURL),
		string(rec.AuditStatus), nullString(string(rec.RestrictionType)),
		rec.Report, identityJSON, visionJSON, dataJSON, evidenceJSON,
		nullString(rec.ManualReviewNotes), rec.CreatedAt, rec.CompletedAt,
	)
	return eris.Wrapf(err, "sqlite: insert audit %s", rec.ID)
}

func (s *SQLiteStore) GetAudit(ctx context.Context, id string) (*model.AuditRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+auditColumns+` FROM audits WHERE id = ?`, id)

	rec, err := scanAudit(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get audit %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) LatestAuditSince(ctx context.Context, instagramURL string, since time.Time) (*model.AuditRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+auditColumns+` FROM audits
		 WHERE instagram_url = ? AND created_at >= ?
		 ORDER BY created_at DESC LIMIT 1`,
		instagramURL, since,
	)

	rec, err := scanAudit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest audit")
	}
	return rec, nil
}

func (s *SQLiteStore) ListAudits(ctx context.Context, filter AuditFilter) ([]model.AuditRecord, error) {
	query := `SELECT ` + auditColumns + ` FROM audits WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND audit_status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.InstagramURL != "" {
		query += ` AND instagram_url = ?`
		args = append(args, filter.InstagramURL)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audits")
	}
	defer rows.Close()

	var audits []model.AuditRecord
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit")
		}
		audits = append(audits, *rec)
	}
	return audits, eris.Wrap(rows.Err(), "sqlite: list audits iterate")
}

func (s *SQLiteStore) AttachManualReview(ctx context.Context, id, notes string) (*model.AuditRecord, error) {
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE audits SET manual_notes = ?, audit_status = ?, completed_at = ?
		 WHERE id = ? AND audit_status = ? AND manual_notes IS NULL`,
		notes, string(model.AuditStatusReviewed), now,
		id, string(model.AuditStatusPendingReview),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: attach review %s", id)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// Distinguish a missing record from an ineligible one.
		if _, err := s.GetAudit(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrReviewConflict
	}

	return s.GetAudit(ctx, id)
}

// helpers

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalAuditFields(rec *model.AuditRecord) (identity, vision sql.NullString, data, evidence string, err error) {
	b, err := json.Marshal(rec.Identity)
	if err != nil {
		return identity, vision, "", "", err
	}
	identity = nullString(string(b))

	if rec.VisionAnalysis != nil {
		b, err = json.Marshal(rec.VisionAnalysis)
		if err != nil {
			return identity, vision, "", "", err
		}
		vision = nullString(string(b))
	}

	b, err = json.Marshal(rec.DataUsed)
	if err != nil {
		return identity, vision, "", "", err
	}
	data = string(b)

	b, err = json.Marshal(rec.VisualEvidence)
	if err != nil {
		return identity, vision, "", "", err
	}
	evidence = string(b)

	return identity, vision, data, evidence, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAudit(row scannable) (*model.AuditRecord, error) {
	var rec model.AuditRecord
	var websiteURL, restriction, identityJSON, visionJSON, manualNotes sql.NullString
	var dataJSON, evidenceJSON string
	var completedAt sql.NullTime

	err := row.Scan(&rec.ID, &rec.InstagramURL, &websiteURL, &rec.AuditStatus,
		&restriction, &rec.Report, &identityJSON, &visionJSON,
		&dataJSON, &evidenceJSON, &manualNotes, &rec.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	rec.WebsiteURL = websiteURL.String
	rec.RestrictionType = model.RestrictionState(restriction.String)
	rec.ManualReviewNotes = manualNotes.String
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}

	if identityJSON.Valid {
		if err := json.Unmarshal([]byte(identityJSON.String), &rec.Identity); err != nil {
			return nil, eris.Wrap(err, "unmarshal identity")
		}
	}
	if visionJSON.Valid {
		rec.VisionAnalysis = &model.AnalysisResult{}
		if err := json.Unmarshal([]byte(visionJSON.String), rec.VisionAnalysis); err != nil {
			return nil, eris.Wrap(err, "unmarshal vision analysis")
		}
	}
	if err := json.Unmarshal([]byte(dataJSON), &rec.DataUsed); err != nil {
		return nil, eris.Wrap(err, "unmarshal data used")
	}
	if err := json.Unmarshal([]byte(evidenceJSON), &rec.VisualEvidence); err != nil {
		return nil, eris.Wrap(err, "unmarshal visual evidence")
	}

	return &rec, nil
}
