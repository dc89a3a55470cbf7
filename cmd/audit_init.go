package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/coollabora/clinical-audit/internal/analysis"
	"github.com/coollabora/clinical-audit/internal/audit"
	"github.com/coollabora/clinical-audit/internal/screenshot"
	"github.com/coollabora/clinical-audit/internal/store"
	"github.com/coollabora/clinical-audit/internal/upstream"
	"github.com/coollabora/clinical-audit/internal/website"
	"github.com/coollabora/clinical-audit/pkg/anthropic"
	"github.com/coollabora/clinical-audit/pkg/apify"
)

// auditEnv holds the initialized store, analyzer, and audit service used by
// the serve, audit, audits, and review commands.
type auditEnv struct {
	Store    store.Store
	Service  *audit.Service
	Analyzer *analysis.Analyzer
}

// Close releases resources held by the environment.
func (e *auditEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initAudit sets up the store, upstream clients, and the audit service.
// Callers should defer env.Close().
func initAudit(ctx context.Context) (*auditEnv, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	apifyClient := apify.NewClient(cfg.Apify.Token, apify.WithBaseURL(cfg.Apify.BaseURL))
	instagram := upstream.NewClient(apifyClient, cfg.Apify)
	web := website.NewFetcher(cfg.Website)
	shots := screenshot.NewBuilder(cfg.Screenshot)
	orch := audit.NewOrchestrator(instagram, web, shots, cfg.Audit)

	analyzer := analysis.NewAnalyzer(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic)

	return &auditEnv{
		Store:    st,
		Service:  audit.NewService(st, orch, analyzer, *cfg),
		Analyzer: analyzer,
	}, nil
}
