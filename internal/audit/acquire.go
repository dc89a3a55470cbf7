// Package audit drives the audit pipeline: concurrent data acquisition,
// analysis, caching, and persistence.
package audit

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coollabora/clinical-audit/internal/config"
	"github.com/coollabora/clinical-audit/internal/model"
	"github.com/coollabora/clinical-audit/internal/website"
)

// ProfileFetcher acquires an Instagram profile. It resolves rather than
// fails; degraded outcomes surface as placeholder records.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, raw string) (*model.ProfileRecord, model.RestrictionState)
}

// TextFetcher acquires readable website text, resolving to a sentinel on
// failure.
type TextFetcher interface {
	FetchText(ctx context.Context, rawURL string) string
}

// ScreenshotBuilder produces a capture-service URL for a target page.
type ScreenshotBuilder interface {
	BuildURL(targetURL string) string
}

// Orchestrator fans the three acquisition branches out in parallel, each
// under its own time budget, and always settles with a complete
// AcquisitionResult. A branch blowing its budget degrades that branch only.
type Orchestrator struct {
	instagram ProfileFetcher
	website   TextFetcher
	shots     ScreenshotBuilder
	cfg       config.AuditConfig
}

// NewOrchestrator wires the acquisition branches together.
func NewOrchestrator(ig ProfileFetcher, web TextFetcher, shots ScreenshotBuilder, cfg config.AuditConfig) *Orchestrator {
	return &Orchestrator{instagram: ig, website: web, shots: shots, cfg: cfg}
}

type instagramOutcome struct {
	profile     *model.ProfileRecord
	restriction model.RestrictionState
}

// Acquire gathers profile, website text, and screenshot URL concurrently.
// It never returns an error: every branch degrades independently and the
// slowest branch is abandoned at its budget rather than holding up the rest.
func (o *Orchestrator) Acquire(ctx context.Context, instagramURL, websiteURL string) *model.AcquisitionResult {
	res := &model.AcquisitionResult{InstagramSource: model.SourceScraped}

	g, gctx := errgroup.WithContext(ctx)

	var ig instagramOutcome
	g.Go(func() error {
		ig = withBudget(gctx, o.cfg.InstagramBudget(), "instagram", instagramOutcome{}, func(ctx context.Context) instagramOutcome {
			p, r := o.instagram.FetchProfile(ctx, instagramURL)
			return instagramOutcome{profile: p, restriction: r}
		})
		return nil
	})

	g.Go(func() error {
		if websiteURL == "" {
			res.WebsiteText = model.WebsiteNotProvided
			return nil
		}
		res.WebsiteText = withBudget(gctx, o.cfg.WebsiteBudget(), "website", model.WebsiteFetchError, func(ctx context.Context) string {
			return o.website.FetchText(ctx, websiteURL)
		})
		return nil
	})

	g.Go(func() error {
		if websiteURL == "" {
			return nil
		}
		target := website.NormalizeURL(websiteURL)
		res.ScreenshotURL = withBudget(gctx, o.cfg.ScreenshotBudget(), "screenshot", "", func(context.Context) string {
			return o.shots.BuildURL(target)
		})
		return nil
	})

	// Branches return nil errors by contract; Wait only synchronizes.
	_ = g.Wait()

	if ig.profile == nil {
		handle := model.ExtractHandleFromURL(instagramURL)
		ig.profile = model.NewPlaceholderProfile(handle)
		ig.profile.Biography = model.ConnectionErrBio
		ig.restriction = model.Classify(0, false)
		res.InstagramSource = model.SourceFallback
		zap.L().Warn("instagram acquisition degraded to fallback identity",
			zap.String("handle", handle))
	}

	res.Profile = ig.profile
	res.Restriction = ig.restriction
	res.Identity = model.Identity{
		Handle:     "@" + ig.profile.Username,
		FullName:   ig.profile.FullName,
		ProfilePic: ig.profile.ProfileImageURL,
	}

	return res
}
