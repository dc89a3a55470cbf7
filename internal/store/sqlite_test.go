package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coollabora/clinical-audit/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "audits.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleAudit(instagramURL string, createdAt time.Time) *model.AuditRecord {
	profile := &model.ProfileRecord{
		Username:  "drsmith",
		FullName:  "Dr. Smith",
		Biography: "Board-certified surgeon",
		Posts:     []model.Post{{Caption: "before/after", LikeCount: 42}},
	}
	return &model.AuditRecord{
		ID:           uuid.New().String(),
		InstagramURL: instagramURL,
		WebsiteURL:   "https://drsmith.example",
		CreatedAt:    createdAt,
		AuditStatus:  model.AuditStatusComplete,
		Report:       "# Authority Audit\n\nStrong presence.",
		Identity:     model.Identity{Handle: "@drsmith", FullName: "Dr. Smith"},
		VisionAnalysis: &model.AnalysisResult{
			BrandIntegrity:       model.ScoreBlock{Score: 8, Status: "OPTIMIZED", Verdict: "good"},
			VisualInfrastructure: model.ScoreBlock{Score: 7, Status: "ALIGNED", Verdict: "fine"},
			GlobalScore:          8,
		},
		DataUsed: model.DataUsed{
			SocialMediaJSON: profile,
			Instagram:       model.SourceScraped,
			Website:         model.SourceScraped,
		},
		VisualEvidence: model.VisualEvidence{WebsiteScreenshot: "https://shots.example/drsmith.png"},
	}
}

func TestSQLite_CreateAndGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	rec := sampleAudit("https://instagram.com/drsmith", time.Now().UTC())
	require.NoError(t, s.CreateAudit(ctx, rec))

	got, err := s.GetAudit(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.InstagramURL, got.InstagramURL)
	assert.Equal(t, model.AuditStatusComplete, got.AuditStatus)
	assert.Equal(t, "@drsmith", got.Identity.Handle)
	require.NotNil(t, got.VisionAnalysis)
	assert.Equal(t, 8, got.VisionAnalysis.GlobalScore)
	require.NotNil(t, got.DataUsed.SocialMediaJSON)
	assert.Len(t, got.DataUsed.SocialMediaJSON.Posts, 1)
	assert.Equal(t, "https://shots.example/drsmith.png", got.VisualEvidence.WebsiteScreenshot)
	assert.Nil(t, got.CompletedAt)
}

func TestSQLite_GetNotFound(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.GetAudit(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_LatestAuditSince(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	url := "https://instagram.com/drsmith"
	now := time.Now().UTC()

	old := sampleAudit(url, now.Add(-40*24*time.Hour))
	mid := sampleAudit(url, now.Add(-10*24*time.Hour))
	newest := sampleAudit(url, now.Add(-time.Hour))
	for _, rec := range []*model.AuditRecord{old, mid, newest} {
		require.NoError(t, s.CreateAudit(ctx, rec))
	}

	got, err := s.LatestAuditSince(ctx, url, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newest.ID, got.ID)

	// Only the expired audit exists for another handle's window.
	got, err = s.LatestAuditSince(ctx, url, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.LatestAuditSince(ctx, "https://instagram.com/other", now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_ListAudits(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := sampleAudit("https://instagram.com/a", now.Add(-2*time.Hour))
	b := sampleAudit("https://instagram.com/b", now.Add(-time.Hour))
	b.AuditStatus = model.AuditStatusPendingReview
	b.RestrictionType = model.RestrictionPrivate
	require.NoError(t, s.CreateAudit(ctx, a))
	require.NoError(t, s.CreateAudit(ctx, b))

	all, err := s.ListAudits(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, b.ID, all[0].ID) // newest first

	pending, err := s.ListAudits(ctx, AuditFilter{Status: model.AuditStatusPendingReview})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.RestrictionPrivate, pending[0].RestrictionType)

	byURL, err := s.ListAudits(ctx, AuditFilter{InstagramURL: "https://instagram.com/a"})
	require.NoError(t, err)
	require.Len(t, byURL, 1)
	assert.Equal(t, a.ID, byURL[0].ID)

	limited, err := s.ListAudits(ctx, AuditFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, a.ID, limited[0].ID)
}

func TestSQLite_AttachManualReview(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	rec := sampleAudit("https://instagram.com/gated", time.Now().UTC())
	rec.AuditStatus = model.AuditStatusPendingReview
	rec.RestrictionType = model.RestrictionAgeGated
	require.NoError(t, s.CreateAudit(ctx, rec))

	got, err := s.AttachManualReview(ctx, rec.ID, "Verified manually: legitimate practice.")
	require.NoError(t, err)
	assert.Equal(t, model.AuditStatusReviewed, got.AuditStatus)
	assert.Equal(t, "Verified manually: legitimate practice.", got.ManualReviewNotes)
	require.NotNil(t, got.CompletedAt)

	// Set-once: a second attachment is a conflict.
	_, err = s.AttachManualReview(ctx, rec.ID, "second opinion")
	assert.ErrorIs(t, err, ErrReviewConflict)
}

func TestSQLite_AttachManualReview_WrongStatus(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	rec := sampleAudit("https://instagram.com/open", time.Now().UTC())
	require.NoError(t, s.CreateAudit(ctx, rec))

	_, err := s.AttachManualReview(ctx, rec.ID, "notes")
	assert.ErrorIs(t, err, ErrReviewConflict)
}

func TestSQLite_AttachManualReview_NotFound(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.AttachManualReview(context.Background(), "missing", "notes")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "dsn")
	assert.Error(t, err)
}
