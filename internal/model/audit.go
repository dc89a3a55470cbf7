package model

import "time"

// AuditStatus is the lifecycle state of an audit record.
type AuditStatus string

const (
	// AuditStatusComplete means the automated pipeline produced a full report.
	AuditStatusComplete AuditStatus = "complete"
	// AuditStatusPendingReview means the profile was restricted and a human
	// reviewer must attach manual findings before the report is released.
	AuditStatusPendingReview AuditStatus = "pending_review"
	// AuditStatusInReview is set while a reviewer is working on the record.
	AuditStatusInReview AuditStatus = "in_review"
	// AuditStatusReviewed means manual findings were attached. Terminal.
	AuditStatusReviewed AuditStatus = "reviewed"
)

// StatusFor derives the initial audit status from the restriction state.
// pending_review iff the profile is age-restricted or private.
func StatusFor(restriction RestrictionState) AuditStatus {
	if restriction == RestrictionAgeGated || restriction == RestrictionPrivate {
		return AuditStatusPendingReview
	}
	return AuditStatusComplete
}

// Data-source tags recorded in DataUsed.
const (
	SourceScraped  = "scraped"
	SourceFallback = "fallback"
	SourceNone     = "none"
)

// Website text sentinels. The fetcher never fails; it resolves to one of
// these instead.
const (
	WebsiteNotProvided = "NOT_PROVIDED"
	WebsiteFetchError  = "FETCH_ERROR"
)

// AcquisitionResult is the union of what the concurrent acquisition branches
// produced. Any field may be absent independently of the others.
type AcquisitionResult struct {
	Profile       *ProfileRecord
	Restriction   RestrictionState
	Identity      Identity
	WebsiteText   string
	ScreenshotURL string

	// InstagramSource is "scraped" when the upstream client produced the
	// profile, "fallback" when the orchestrator synthesized a placeholder
	// identity from the request URL.
	InstagramSource string
}

// WebsiteScraped reports whether the website branch yielded real content.
func (a *AcquisitionResult) WebsiteScraped() bool {
	return a.WebsiteText != WebsiteNotProvided && a.WebsiteText != WebsiteFetchError
}

// DataUsed describes which sources contributed to a report.
type DataUsed struct {
	SocialMediaJSON *ProfileRecord `json:"socialMediaJson"`
	Instagram       string         `json:"instagram"`
	Website         string         `json:"website"`
	Cached          bool           `json:"cached,omitempty"`
}

// VisualEvidence holds screenshot URLs referenced by the report.
type VisualEvidence struct {
	WebsiteScreenshot string `json:"websiteScreenshot,omitempty"`
}

// AuditRecord is the persisted, cacheable unit of work. ID and CreatedAt are
// immutable after creation; ManualReviewNotes and CompletedAt are set at most
// once by the human-review flow.
type AuditRecord struct {
	ID                string           `json:"id"`
	InstagramURL      string           `json:"instagramUrl"`
	WebsiteURL        string           `json:"websiteUrl,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
	AuditStatus       AuditStatus      `json:"auditStatus"`
	RestrictionType   RestrictionState `json:"restrictionType,omitempty"`
	Report            string           `json:"report"`
	Identity          Identity         `json:"identity"`
	VisionAnalysis    *AnalysisResult  `json:"visionAnalysis,omitempty"`
	DataUsed          DataUsed         `json:"dataUsed"`
	VisualEvidence    VisualEvidence   `json:"visualEvidence"`
	ManualReviewNotes string           `json:"manualAnalysis,omitempty"`
	CompletedAt       *time.Time       `json:"completedAt,omitempty"`
}
