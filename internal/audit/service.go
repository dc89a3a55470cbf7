package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coollabora/clinical-audit/internal/analysis"
	"github.com/coollabora/clinical-audit/internal/config"
	"github.com/coollabora/clinical-audit/internal/model"
	"github.com/coollabora/clinical-audit/internal/store"
)

// ErrServerConfig marks a request rejected before acquisition because a
// required upstream credential is missing.
var ErrServerConfig = eris.New("audit: server configuration incomplete")

// ReportAnalyzer produces the authority report from acquired data.
type ReportAnalyzer interface {
	Analyze(ctx context.Context, acq *model.AcquisitionResult) (*analysis.Output, error)
}

// Acquirer gathers profile, website, and screenshot data.
type Acquirer interface {
	Acquire(ctx context.Context, instagramURL, websiteURL string) *model.AcquisitionResult
}

// Service runs the full audit flow: cache check, acquisition, analysis, and
// persistence.
type Service struct {
	store    store.Store
	acquirer Acquirer
	analyzer ReportAnalyzer
	cfg      config.Config

	now func() time.Time
}

// NewService wires the audit pipeline together.
func NewService(st store.Store, acq Acquirer, an ReportAnalyzer, cfg config.Config) *Service {
	return &Service{
		store:    st,
		acquirer: acq,
		analyzer: an,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run executes one audit request. Recent audits are served from the store
// when they carried at least one scraped post; a zero-post cached audit is
// treated as a failed scrape and redone.
func (s *Service) Run(ctx context.Context, instagramURL, websiteURL string) (*model.AuditRecord, error) {
	since := s.now().UTC().Add(-s.cfg.Audit.CacheWindow())
	cached, err := s.store.LatestAuditSince(ctx, instagramURL, since)
	if err != nil {
		// A broken cache lookup is a miss, not a failed audit.
		zap.L().Warn("audit: cache lookup failed, running fresh", zap.Error(err))
		cached = nil
	}
	if cached != nil {
		if hasScrapedPosts(cached) {
			zap.L().Info("serving cached audit",
				zap.String("audit_id", cached.ID),
				zap.String("instagram_url", instagramURL))
			cached.DataUsed.Cached = true
			return cached, nil
		}
		zap.L().Info("cached audit has no posts, re-auditing",
			zap.String("audit_id", cached.ID))
	}

	// Credentials gate fresh work only; a cached audit is served regardless.
	if s.cfg.Apify.Token == "" {
		return nil, eris.Wrap(ErrServerConfig, "apify token not set")
	}
	if s.cfg.Anthropic.Key == "" {
		return nil, eris.Wrap(ErrServerConfig, "anthropic key not set")
	}

	acq := s.acquirer.Acquire(ctx, instagramURL, websiteURL)

	out, err := s.analyzer.Analyze(ctx, acq)
	if err != nil {
		return nil, eris.Wrap(err, "audit: analysis")
	}

	rec := s.buildRecord(instagramURL, websiteURL, acq, out)
	if err := s.store.CreateAudit(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "audit: persist")
	}

	if rec.AuditStatus == model.AuditStatusPendingReview {
		// Admin alert hook: restricted profiles need a human pass before
		// the report is released.
		zap.L().Warn("audit pending manual review",
			zap.String("audit_id", rec.ID),
			zap.String("handle", rec.Identity.Handle),
			zap.String("restriction", string(rec.RestrictionType)))
	}

	return rec, nil
}

func (s *Service) buildRecord(instagramURL, websiteURL string, acq *model.AcquisitionResult, out *analysis.Output) *model.AuditRecord {
	now := s.now().UTC()
	status := model.StatusFor(acq.Restriction)

	websiteSource := model.SourceNone
	if acq.WebsiteScraped() {
		websiteSource = model.SourceScraped
	}

	rec := &model.AuditRecord{
		ID:              uuid.New().String(),
		InstagramURL:    instagramURL,
		WebsiteURL:      websiteURL,
		CreatedAt:       now,
		AuditStatus:     status,
		RestrictionType: acq.Restriction,
		Report:          out.Report,
		Identity:        acq.Identity,
		VisionAnalysis:  out.Analysis,
		DataUsed: model.DataUsed{
			SocialMediaJSON: acq.Profile,
			Instagram:       acq.InstagramSource,
			Website:         websiteSource,
		},
	}
	if out.VisionUsed {
		rec.VisualEvidence.WebsiteScreenshot = acq.ScreenshotURL
	}
	if status == model.AuditStatusComplete {
		rec.CompletedAt = &now
	}
	return rec
}

func hasScrapedPosts(rec *model.AuditRecord) bool {
	return rec.DataUsed.SocialMediaJSON != nil && len(rec.DataUsed.SocialMediaJSON.Posts) > 0
}
