package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coollabora/clinical-audit/internal/audit"
	"github.com/coollabora/clinical-audit/internal/model"
	"github.com/coollabora/clinical-audit/internal/store"
)

type fakeRunner struct {
	rec *model.AuditRecord
	err error
}

func (f *fakeRunner) Run(_ context.Context, _, _ string) (*model.AuditRecord, error) {
	return f.rec, f.err
}

type fakeEvidence struct {
	vision   *model.VisionFinding
	captions *model.CaptionFinding
	err      error

	lastImageURL string
	lastCaptions string
}

func (f *fakeEvidence) AnalyzeScreenshot(_ context.Context, imageURL string) (*model.VisionFinding, error) {
	f.lastImageURL = imageURL
	return f.vision, f.err
}

func (f *fakeEvidence) AnalyzeCaptions(_ context.Context, captions string) (*model.CaptionFinding, error) {
	f.lastCaptions = captions
	return f.captions, f.err
}

func newTestAPI(t *testing.T, runner auditRunner) (*apiServer, store.Store) {
	t.Helper()
	return newTestAPIWithEvidence(t, runner, &fakeEvidence{})
}

func newTestAPIWithEvidence(t *testing.T, runner auditRunner, ev evidenceAnalyzer) (*apiServer, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return newAPIServer(runner, ev, st), st
}

func completedRecord() *model.AuditRecord {
	now := time.Now().UTC()
	return &model.AuditRecord{
		ID:           uuid.New().String(),
		InstagramURL: "https://instagram.com/drsmith",
		CreatedAt:    now,
		AuditStatus:  model.AuditStatusComplete,
		Report:       "# Audit",
		Identity:     model.Identity{Handle: "@drsmith", FullName: "Dr. Smith"},
		DataUsed: model.DataUsed{
			SocialMediaJSON: &model.ProfileRecord{Username: "drsmith", Posts: []model.Post{{Caption: "c"}}},
			Instagram:       model.SourceScraped,
			Website:         model.SourceNone,
		},
		CompletedAt: &now,
	}
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t, &fakeRunner{})
	rr := httptest.NewRecorder()

	api.routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestHandleAudit_Success(t *testing.T) {
	api, _ := newTestAPI(t, &fakeRunner{rec: completedRecord()})
	rr := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodPost, "/api/audit",
		strings.NewReader(`{"instagramUrl":"https://instagram.com/drsmith"}`))
	api.routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body auditResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.NotEmpty(t, body.AuditID)
	assert.Equal(t, model.AuditStatusComplete, body.AuditStatus)
	assert.Equal(t, "@drsmith", body.Identity.Handle)
}

func TestHandleAudit_MissingInstagramURL(t *testing.T) {
	api, _ := newTestAPI(t, &fakeRunner{rec: completedRecord()})
	rr := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodPost, "/api/audit",
		strings.NewReader(`{"websiteUrl":"drsmith.example"}`))
	api.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "instagramUrl is required")
}

func TestHandleAudit_SoftErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"server config", eris.Wrap(audit.ErrServerConfig, "apify token not set"), "SERVER_CONFIG_ERROR"},
		{"system", eris.New("store exploded"), "SYSTEM_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, _ := newTestAPI(t, &fakeRunner{err: tt.err})
			rr := httptest.NewRecorder()

			req := httptest.NewRequest(http.MethodPost, "/api/audit",
				strings.NewReader(`{"instagramUrl":"https://instagram.com/x"}`))
			api.routes().ServeHTTP(rr, req)

			// Displayable failures ride on 200.
			assert.Equal(t, http.StatusOK, rr.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestHandleListAudits(t *testing.T) {
	api, st := newTestAPI(t, &fakeRunner{})

	rec := completedRecord()
	require.NoError(t, st.CreateAudit(context.Background(), rec))

	rr := httptest.NewRecorder()
	api.routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/audits?status=complete&limit=10", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Audits []model.AuditRecord `json:"audits"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Audits, 1)
	assert.Equal(t, rec.ID, body.Audits[0].ID)
}

func TestHandleGetAudit_NotFound(t *testing.T) {
	api, _ := newTestAPI(t, &fakeRunner{})
	rr := httptest.NewRecorder()

	api.routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/audits/missing", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleReview_Flow(t *testing.T) {
	api, st := newTestAPI(t, &fakeRunner{})

	rec := completedRecord()
	rec.AuditStatus = model.AuditStatusPendingReview
	rec.RestrictionType = model.RestrictionAgeGated
	rec.CompletedAt = nil
	require.NoError(t, st.CreateAudit(context.Background(), rec))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/audits/"+rec.ID+"/review",
		strings.NewReader(`{"notes":"checked by hand"}`))
	api.routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got model.AuditRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, model.AuditStatusReviewed, got.AuditStatus)
	assert.Equal(t, "checked by hand", got.ManualReviewNotes)

	// Second attachment conflicts.
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPatch, "/api/audits/"+rec.ID+"/review",
		strings.NewReader(`{"notes":"again"}`))
	api.routes().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandleVisionEvidence_UsesStoredScreenshot(t *testing.T) {
	ev := &fakeEvidence{vision: &model.VisionFinding{
		FindingType:    "integrity",
		ErosionLevel:   2,
		Classification: "Authority Integrity",
		Verdict:        "Clean evidence.",
	}}
	api, st := newTestAPIWithEvidence(t, &fakeRunner{}, ev)

	rec := completedRecord()
	rec.VisualEvidence.WebsiteScreenshot = "https://shots.example/site.png"
	require.NoError(t, st.CreateAudit(context.Background(), rec))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/audits/"+rec.ID+"/evidence/vision", nil)
	api.routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://shots.example/site.png", ev.lastImageURL)
	var got model.VisionFinding
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "integrity", got.FindingType)
}

func TestHandleVisionEvidence_ExplicitImageURLWins(t *testing.T) {
	ev := &fakeEvidence{vision: &model.VisionFinding{FindingType: "poor_lighting"}}
	api, st := newTestAPIWithEvidence(t, &fakeRunner{}, ev)

	rec := completedRecord()
	rec.VisualEvidence.WebsiteScreenshot = "https://shots.example/site.png"
	require.NoError(t, st.CreateAudit(context.Background(), rec))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/audits/"+rec.ID+"/evidence/vision",
		strings.NewReader(`{"imageUrl":"https://cdn.example/post.jpg"}`))
	api.routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://cdn.example/post.jpg", ev.lastImageURL)
}

func TestHandleVisionEvidence_Validation(t *testing.T) {
	api, st := newTestAPIWithEvidence(t, &fakeRunner{}, &fakeEvidence{})

	// Unknown audit.
	rr := httptest.NewRecorder()
	api.routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/audits/absent/evidence/vision", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// No screenshot on record and none supplied.
	rec := completedRecord()
	require.NoError(t, st.CreateAudit(context.Background(), rec))
	rr = httptest.NewRecorder()
	api.routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/audits/"+rec.ID+"/evidence/vision", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "imageUrl is required")
}

func TestHandleVisionEvidence_AnalyzerFailure(t *testing.T) {
	ev := &fakeEvidence{err: eris.New("analysis: evidence screenshot")}
	api, st := newTestAPIWithEvidence(t, &fakeRunner{}, ev)

	rec := completedRecord()
	rec.VisualEvidence.WebsiteScreenshot = "https://shots.example/site.png"
	require.NoError(t, st.CreateAudit(context.Background(), rec))

	rr := httptest.NewRecorder()
	api.routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/audits/"+rec.ID+"/evidence/vision", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestHandleCaptionEvidence_ExplicitText(t *testing.T) {
	ev := &fakeEvidence{captions: &model.CaptionFinding{
		AuthorityDensity: 4,
		RedFlagTerms:     []string{"follow me"},
		Classification:   "Moderate Erosion",
	}}
	api, st := newTestAPIWithEvidence(t, &fakeRunner{}, ev)

	rec := completedRecord()
	require.NoError(t, st.CreateAudit(context.Background(), rec))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/audits/"+rec.ID+"/evidence/captions",
		strings.NewReader(`{"captions":"follow me for surgery deals"}`))
	api.routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "follow me for surgery deals", ev.lastCaptions)
	var got model.CaptionFinding
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, []string{"follow me"}, got.RedFlagTerms)
}

func TestHandleCaptionEvidence_FallsBackToScrapedCaptions(t *testing.T) {
	ev := &fakeEvidence{captions: &model.CaptionFinding{Classification: "Elite Rhetoric"}}
	api, st := newTestAPIWithEvidence(t, &fakeRunner{}, ev)

	rec := completedRecord()
	rec.DataUsed.SocialMediaJSON.Posts = []model.Post{
		{Caption: "Rhinoplasty outcome, six weeks post-op"},
		{Caption: "Board certification renewed"},
	}
	require.NoError(t, st.CreateAudit(context.Background(), rec))

	rr := httptest.NewRecorder()
	api.routes().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/audits/"+rec.ID+"/evidence/captions", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, ev.lastCaptions, "Rhinoplasty outcome")
	assert.Contains(t, ev.lastCaptions, "Board certification renewed")
}

func TestHandleCaptionEvidence_TooShort(t *testing.T) {
	api, st := newTestAPIWithEvidence(t, &fakeRunner{}, &fakeEvidence{})

	rec := completedRecord()
	require.NoError(t, st.CreateAudit(context.Background(), rec))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/audits/"+rec.ID+"/evidence/captions",
		strings.NewReader(`{"captions":"hi"}`))
	api.routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleReview_Validation(t *testing.T) {
	api, _ := newTestAPI(t, &fakeRunner{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/audits/some-id/review",
		strings.NewReader(`{}`))
	api.routes().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPatch, "/api/audits/absent/review",
		strings.NewReader(`{"notes":"n"}`))
	api.routes().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
