// Package upstream acquires Instagram profile data through the Apify scraping
// provider, with a two-strategy fallback and field-level merge.
package upstream

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/coollabora/clinical-audit/internal/config"
	"github.com/coollabora/clinical-audit/internal/model"
	"github.com/coollabora/clinical-audit/internal/resilience"
	"github.com/coollabora/clinical-audit/pkg/apify"
)

// Client fetches and normalizes Instagram profiles. It never returns an
// error: every expected failure mode resolves to a best-effort ProfileRecord,
// so callers can treat acquisition as infallible control flow.
type Client struct {
	apify   apify.Client
	cfg     config.ApifyConfig
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// NewClient creates an upstream client. The rate limiter bounds total
// scrape load; the circuit breaker short-circuits to placeholder records
// while the provider is failing hard.
func NewClient(ac apify.Client, cfg config.ApifyConfig) *Client {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		apify:   ac,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
	}
}

// FetchProfile scrapes the profile behind the given handle or profile URL.
// Strategy A runs the username-keyed profile actor; strategy B falls back to
// the direct-URL detail actor (with an optional session cookie) when A
// produced neither a photo nor a biography. Fields merge fill-if-absent.
func (c *Client) FetchProfile(ctx context.Context, raw string) (*model.ProfileRecord, model.RestrictionState) {
	handle := model.NormalizeHandle(raw)
	log := zap.L().With(zap.String("handle", handle))

	profile := model.NewPlaceholderProfile(handle)

	itemsA, errA := c.runActor(ctx, c.cfg.ProfileActor, map[string]any{
		"usernames":           []string{handle},
		"resultsLimit":        c.cfg.MaxPosts,
		"includeAboutSection": false,
	})
	if errA != nil {
		log.Warn("upstream: profile actor failed", zap.Error(errA))
	} else if len(itemsA) > 0 {
		if msg := itemError(itemsA[0]); msg != "" {
			log.Warn("upstream: profile actor returned item error", zap.String("error", msg))
		} else {
			mergeFillAbsent(profile, profileFromProfileMode(itemsA[0], handle), handle)
			log.Debug("upstream: profile mode result",
				zap.String("full_name", profile.FullName),
				zap.Int("posts", len(profile.Posts)),
			)
		}
	}

	var errB error
	if profile.ProfileImageURL == "" && profile.Biography == model.PlaceholderBio {
		log.Info("upstream: falling back to detail mode")

		input := map[string]any{
			"directUrls":  []string{fmt.Sprintf("https://www.instagram.com/%s/", handle)},
			"resultsType": "details",
			"searchType":  "user",
		}
		if c.cfg.SessionID != "" {
			input["cookies"] = []apify.Cookie{apify.SessionCookie(decodeSessionID(c.cfg.SessionID))}
		}

		var itemsB []apify.Item
		itemsB, errB = c.runActor(ctx, c.cfg.DetailActor, input)
		if errB != nil {
			log.Warn("upstream: detail actor failed", zap.Error(errB))
		} else if len(itemsB) > 0 && itemError(itemsB[0]) == "" {
			mergeFillAbsent(profile, profileFromDetailMode(itemsB[0], handle), handle)
		}
	}

	// Both strategies failed at the transport level: explicit connection-error
	// placeholder rather than a surfaced error.
	if errA != nil && errB != nil {
		profile.Biography = model.ConnectionErrBio
		profile.Posts = []model.Post{}
		return profile, model.Classify(0, false)
	}

	restriction := model.Classify(len(profile.Posts), profile.HasUsableMetadata(handle))
	switch restriction {
	case model.RestrictionPrivate:
		profile.Biography = model.PrivateProfileBio
		log.Warn("upstream: true ghost, no usable data")
	case model.RestrictionAgeGated:
		if profile.Followers.Count == 0 {
			profile.Followers.Hidden = true
		}
		log.Info("upstream: age-restricted profile, metadata without posts")
	}

	return profile, restriction
}

// runActor applies the rate limit and circuit breaker around one actor run.
func (c *Client) runActor(ctx context.Context, actorID string, input map[string]any) ([]apify.Item, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]apify.Item, error) {
		return c.apify.RunActorSync(ctx, actorID, input)
	})
}

// profileFromProfileMode adapts a profile-actor item to a ProfileRecord.
func profileFromProfileMode(item apify.Item, handle string) *model.ProfileRecord {
	p := &model.ProfileRecord{
		Username:        firstString(item, "username"),
		FullName:        firstString(item, "fullName", "full_name"),
		Biography:       firstString(item, "biography", "bio"),
		Followers:       model.Followers{Count: firstInt(item, "followersCount", "followers_count")},
		ProfileImageURL: firstString(item, "profilePicUrl", "profile_pic_url"),
	}
	p.Posts = postsFromItems(firstList(item, "latestPosts", "latest_posts"))
	if p.Username == "" {
		p.Username = handle
	}
	return p
}

// profileFromDetailMode adapts a detail-actor item. Same record shape, but
// the detail actor nests posts under latestPosts only.
func profileFromDetailMode(item apify.Item, handle string) *model.ProfileRecord {
	p := &model.ProfileRecord{
		Username:        firstString(item, "username"),
		FullName:        firstString(item, "fullName"),
		Biography:       firstString(item, "biography"),
		Followers:       model.Followers{Count: firstInt(item, "followersCount")},
		ProfileImageURL: firstString(item, "profilePicUrl", "profile_pic_url"),
	}
	p.Posts = postsFromItems(firstList(item, "latestPosts"))
	if p.Username == "" {
		p.Username = handle
	}
	return p
}

func postsFromItems(items []map[string]any) []model.Post {
	posts := make([]model.Post, 0, len(items))
	for _, it := range items {
		posts = append(posts, model.Post{
			Caption:   firstString(it, "caption"),
			LikeCount: firstInt(it, "likesCount", "likes_count"),
			ImageURL:  firstImageURL(it),
		})
	}
	return posts
}

// mergeFillAbsent copies fields from src into dst only where dst still holds
// its default for the given handle. The upstream's canonical username replaces
// a handle-derived one, so casing corrections survive the merge. Posts
// transfer only when dst has none, so a later strategy never overwrites posts
// the first one found.
func mergeFillAbsent(dst, src *model.ProfileRecord, handle string) {
	if src == nil {
		return
	}
	if src.Username != "" && (dst.Username == "" || dst.Username == handle || dst.Username == model.UnknownHandle) {
		dst.Username = src.Username
	}
	if (dst.FullName == "" || dst.FullName == handle || dst.FullName == model.UnknownHandle) && src.FullName != "" {
		dst.FullName = src.FullName
	}
	if (dst.Biography == "" || dst.Biography == model.PlaceholderBio) && src.Biography != "" {
		dst.Biography = src.Biography
	}
	if dst.Followers.Count == 0 && src.Followers.Count > 0 {
		dst.Followers = src.Followers
	}
	if dst.ProfileImageURL == "" && src.ProfileImageURL != "" {
		dst.ProfileImageURL = src.ProfileImageURL
	}
	if len(dst.Posts) == 0 && len(src.Posts) > 0 {
		dst.Posts = src.Posts
	}
}

// decodeSessionID handles operators pasting URL-encoded cookie values.
func decodeSessionID(raw string) string {
	if decoded, err := url.QueryUnescape(raw); err == nil {
		return decoded
	}
	return raw
}
