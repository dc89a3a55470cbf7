package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/coollabora/clinical-audit/internal/analysis"
	"github.com/coollabora/clinical-audit/internal/audit"
	"github.com/coollabora/clinical-audit/internal/model"
	"github.com/coollabora/clinical-audit/internal/store"
)

// auditRunner is the surface of audit.Service the API needs.
type auditRunner interface {
	Run(ctx context.Context, instagramURL, websiteURL string) (*model.AuditRecord, error)
}

// evidenceAnalyzer runs the standalone assessments behind the review
// console's evidence endpoints.
type evidenceAnalyzer interface {
	AnalyzeScreenshot(ctx context.Context, imageURL string) (*model.VisionFinding, error)
	AnalyzeCaptions(ctx context.Context, captions string) (*model.CaptionFinding, error)
}

// apiServer exposes the audit pipeline over HTTP.
type apiServer struct {
	audits   auditRunner
	evidence evidenceAnalyzer
	store    store.Store
}

func newAPIServer(runner auditRunner, ev evidenceAnalyzer, st store.Store) *apiServer {
	return &apiServer{audits: runner, evidence: ev, store: st}
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/api/audit", s.handleAudit)
	r.Get("/api/audits", s.handleListAudits)
	r.Get("/api/audits/{id}", s.handleGetAudit)
	r.Patch("/api/audits/{id}/review", s.handleReview)
	r.Post("/api/audits/{id}/evidence/vision", s.handleVisionEvidence)
	r.Post("/api/audits/{id}/evidence/captions", s.handleCaptionEvidence)

	return r
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auditResponse is the success body for POST /api/audit.
type auditResponse struct {
	AuditID         string                 `json:"auditId"`
	AuditStatus     model.AuditStatus      `json:"auditStatus"`
	RestrictionType model.RestrictionState `json:"restrictionType,omitempty"`
	Report          string                 `json:"report"`
	Identity        model.Identity         `json:"identity"`
	VisionAnalysis  *model.AnalysisResult  `json:"visionAnalysis,omitempty"`
	DataUsed        model.DataUsed         `json:"dataUsed"`
	VisualEvidence  model.VisualEvidence   `json:"visualEvidence"`
}

func (s *apiServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InstagramURL string `json:"instagramUrl"`
		WebsiteURL   string `json:"websiteUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.InstagramURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "instagramUrl is required"})
		return
	}

	rec, err := s.audits.Run(r.Context(), req.InstagramURL, req.WebsiteURL)
	if err != nil {
		// The frontend treats these as displayable outcomes, not transport
		// failures, so they ride on 200.
		code := "SYSTEM_ERROR"
		if errors.Is(err, audit.ErrServerConfig) {
			code = "SERVER_CONFIG_ERROR"
		}
		zap.L().Error("audit request failed",
			zap.String("instagram_url", req.InstagramURL),
			zap.String("code", code),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, map[string]string{
			"error":   code,
			"message": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, auditResponse{
		AuditID:         rec.ID,
		AuditStatus:     rec.AuditStatus,
		RestrictionType: rec.RestrictionType,
		Report:          rec.Report,
		Identity:        rec.Identity,
		VisionAnalysis:  rec.VisionAnalysis,
		DataUsed:        rec.DataUsed,
		VisualEvidence:  rec.VisualEvidence,
	})
}

func (s *apiServer) handleListAudits(w http.ResponseWriter, r *http.Request) {
	filter := store.AuditFilter{
		Status:       model.AuditStatus(r.URL.Query().Get("status")),
		InstagramURL: r.URL.Query().Get("instagramUrl"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	audits, err := s.store.ListAudits(r.Context(), filter)
	if err != nil {
		zap.L().Error("list audits failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
		return
	}
	if audits == nil {
		audits = []model.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"audits": audits})
}

func (s *apiServer) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadAudit(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *apiServer) handleReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Notes == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "notes is required"})
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := s.store.AttachManualReview(r.Context(), id, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "audit not found"})
		case errors.Is(err, store.ErrReviewConflict):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "audit already reviewed or not pending review"})
		default:
			zap.L().Error("attach review failed", zap.String("audit_id", id), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "review failed"})
		}
		return
	}

	zap.L().Info("manual review attached",
		zap.String("audit_id", rec.ID),
		zap.String("handle", rec.Identity.Handle))
	writeJSON(w, http.StatusOK, rec)
}

// handleVisionEvidence runs a standalone screenshot assessment for the
// review console. Without an explicit imageUrl the audit's own website
// screenshot is used.
func (s *apiServer) handleVisionEvidence(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	rec, ok := s.loadAudit(w, r)
	if !ok {
		return
	}

	imageURL := req.ImageURL
	if imageURL == "" {
		imageURL = rec.VisualEvidence.WebsiteScreenshot
	}
	if imageURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "imageUrl is required"})
		return
	}

	finding, err := s.evidence.AnalyzeScreenshot(r.Context(), imageURL)
	if err != nil {
		zap.L().Error("vision evidence failed", zap.String("audit_id", rec.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "vision analysis failed"})
		return
	}
	writeJSON(w, http.StatusOK, finding)
}

// handleCaptionEvidence runs a standalone caption-rhetoric assessment.
// Without explicit captions text the audit's scraped post captions are used.
func (s *apiServer) handleCaptionEvidence(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Captions string `json:"captions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	rec, ok := s.loadAudit(w, r)
	if !ok {
		return
	}

	captions := req.Captions
	if strings.TrimSpace(captions) == "" && rec.DataUsed.SocialMediaJSON != nil {
		var parts []string
		for _, p := range rec.DataUsed.SocialMediaJSON.Posts {
			if p.Caption != "" {
				parts = append(parts, p.Caption)
			}
		}
		captions = strings.Join(parts, "\n\n")
	}
	if len(strings.TrimSpace(captions)) < analysis.MinCaptionChars {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "captions text is required (min 10 chars)"})
		return
	}

	finding, err := s.evidence.AnalyzeCaptions(r.Context(), captions)
	if err != nil {
		zap.L().Error("caption evidence failed", zap.String("audit_id", rec.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "caption analysis failed"})
		return
	}
	writeJSON(w, http.StatusOK, finding)
}

// loadAudit resolves the {id} route parameter, writing the failure response
// itself when the record cannot be served.
func (s *apiServer) loadAudit(w http.ResponseWriter, r *http.Request) (*model.AuditRecord, bool) {
	id := chi.URLParam(r, "id")
	rec, err := s.store.GetAudit(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "audit not found"})
			return nil, false
		}
		zap.L().Error("get audit failed", zap.String("audit_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return nil, false
	}
	return rec, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
