// Package store persists audit records behind a driver-agnostic interface.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/coollabora/clinical-audit/internal/model"
)

// Sentinel errors the API layer maps to response codes.
var (
	ErrNotFound = eris.New("store: audit not found")

	// ErrReviewConflict means the audit exists but is not eligible for a
	// manual review attachment: wrong status, or notes already present.
	ErrReviewConflict = eris.New("store: audit not eligible for review")
)

// AuditFilter specifies criteria for listing audits.
type AuditFilter struct {
	Status       model.AuditStatus `json:"status,omitempty"`
	InstagramURL string            `json:"instagram_url,omitempty"`
	Limit        int               `json:"limit,omitempty"`
	Offset       int               `json:"offset,omitempty"`
}

// Store defines the persistence interface for audit records.
type Store interface {
	// CreateAudit inserts a fully built record. The record's ID and
	// CreatedAt must already be set; this is the single write path for new
	// audits regardless of outcome.
	CreateAudit(ctx context.Context, rec *model.AuditRecord) error

	GetAudit(ctx context.Context, id string) (*model.AuditRecord, error)

	// LatestAuditSince returns the most recent audit for the Instagram URL
	// created at or after the cutoff, or nil when none exists.
	LatestAuditSince(ctx context.Context, instagramURL string, since time.Time) (*model.AuditRecord, error)

	ListAudits(ctx context.Context, filter AuditFilter) ([]model.AuditRecord, error)

	// AttachManualReview sets manual notes on a pending_review audit,
	// transitions it to reviewed, and stamps CompletedAt. It is set-once:
	// a second call returns ErrReviewConflict.
	AttachManualReview(ctx context.Context, id, notes string) (*model.AuditRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open constructs a Store for the given driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
