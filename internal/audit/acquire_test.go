package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coollabora/clinical-audit/internal/config"
	"github.com/coollabora/clinical-audit/internal/model"
)

type fakeInstagram struct {
	profile     *model.ProfileRecord
	restriction model.RestrictionState
	delay       time.Duration
}

func (f *fakeInstagram) FetchProfile(ctx context.Context, _ string) (*model.ProfileRecord, model.RestrictionState) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, model.RestrictionNone
		}
	}
	return f.profile, f.restriction
}

type fakeWebsite struct {
	text  string
	delay time.Duration
}

func (f *fakeWebsite) FetchText(ctx context.Context, _ string) string {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return model.WebsiteFetchError
		}
	}
	return f.text
}

type fakeShots struct{ url string }

func (f *fakeShots) BuildURL(string) string { return f.url }

func fastBudgets() config.AuditConfig {
	return config.AuditConfig{
		InstagramBudgetSecs:  1,
		WebsiteBudgetSecs:    1,
		ScreenshotBudgetSecs: 1,
		CacheWindowDays:      30,
	}
}

func scrapedProfile() *model.ProfileRecord {
	return &model.ProfileRecord{
		Username:        "drsmith",
		FullName:        "Dr. Smith",
		Biography:       "Surgeon",
		ProfileImageURL: "https://cdn.example/pic.jpg",
		Posts:           []model.Post{{Caption: "result", LikeCount: 10}},
	}
}

func TestAcquire_AllBranchesSucceed(t *testing.T) {
	o := NewOrchestrator(
		&fakeInstagram{profile: scrapedProfile()},
		&fakeWebsite{text: "clinic homepage text"},
		&fakeShots{url: "https://shots.example/x.png"},
		fastBudgets(),
	)

	res := o.Acquire(context.Background(), "https://instagram.com/drsmith", "drsmith.example")

	require.NotNil(t, res.Profile)
	assert.Equal(t, model.SourceScraped, res.InstagramSource)
	assert.Equal(t, "clinic homepage text", res.WebsiteText)
	assert.Equal(t, "https://shots.example/x.png", res.ScreenshotURL)
	assert.Equal(t, model.Identity{
		Handle:     "@drsmith",
		FullName:   "Dr. Smith",
		ProfilePic: "https://cdn.example/pic.jpg",
	}, res.Identity)
	assert.True(t, res.WebsiteScraped())
}

func TestAcquire_NoWebsite(t *testing.T) {
	o := NewOrchestrator(
		&fakeInstagram{profile: scrapedProfile()},
		&fakeWebsite{text: "never fetched"},
		&fakeShots{url: "never built"},
		fastBudgets(),
	)

	res := o.Acquire(context.Background(), "https://instagram.com/drsmith", "")

	assert.Equal(t, model.WebsiteNotProvided, res.WebsiteText)
	assert.Empty(t, res.ScreenshotURL)
	assert.False(t, res.WebsiteScraped())
}

func TestAcquire_InstagramTimeoutFallsBack(t *testing.T) {
	cfg := fastBudgets()
	o := NewOrchestrator(
		&fakeInstagram{profile: scrapedProfile(), delay: 5 * time.Second},
		&fakeWebsite{text: "site text"},
		&fakeShots{url: "https://shots.example/x.png"},
		cfg,
	)

	start := time.Now()
	res := o.Acquire(context.Background(), "https://instagram.com/drsmith?hl=en", "drsmith.example")

	assert.Less(t, time.Since(start), 3*time.Second)
	require.NotNil(t, res.Profile)
	assert.Equal(t, model.SourceFallback, res.InstagramSource)
	assert.Equal(t, "@drsmith", res.Identity.Handle)
	assert.Equal(t, model.ConnectionErrBio, res.Profile.Biography)
	assert.Equal(t, model.RestrictionPrivate, res.Restriction)

	// The slow branch must not drag the healthy ones down.
	assert.Equal(t, "site text", res.WebsiteText)
	assert.Equal(t, "https://shots.example/x.png", res.ScreenshotURL)
}

func TestAcquire_WebsiteTimeoutDegradesBranchOnly(t *testing.T) {
	o := NewOrchestrator(
		&fakeInstagram{profile: scrapedProfile()},
		&fakeWebsite{text: "slow", delay: 5 * time.Second},
		&fakeShots{url: "https://shots.example/x.png"},
		fastBudgets(),
	)

	res := o.Acquire(context.Background(), "https://instagram.com/drsmith", "drsmith.example")

	assert.Equal(t, model.WebsiteFetchError, res.WebsiteText)
	assert.Equal(t, model.SourceScraped, res.InstagramSource)
	assert.False(t, res.WebsiteScraped())
}

func TestAcquire_UnparseableInstagramURL(t *testing.T) {
	o := NewOrchestrator(
		&fakeInstagram{profile: nil},
		&fakeWebsite{},
		&fakeShots{},
		fastBudgets(),
	)

	res := o.Acquire(context.Background(), "not a url", "")

	require.NotNil(t, res.Profile)
	assert.Equal(t, "@unknown", res.Identity.Handle)
	assert.Equal(t, model.SourceFallback, res.InstagramSource)
}

func TestAcquire_RestrictionPropagates(t *testing.T) {
	p := model.NewPlaceholderProfile("gated")
	o := NewOrchestrator(
		&fakeInstagram{profile: p, restriction: model.RestrictionPrivate},
		&fakeWebsite{},
		&fakeShots{},
		fastBudgets(),
	)

	res := o.Acquire(context.Background(), "https://instagram.com/gated", "")

	assert.Equal(t, model.RestrictionPrivate, res.Restriction)
	assert.Equal(t, model.SourceScraped, res.InstagramSource)
}
