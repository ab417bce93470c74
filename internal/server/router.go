// SPDX-License-Identifier: AGPL-3.0-or-later
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/uran-qa/uran/internal/access"
	"github.com/uran-qa/uran/internal/assets"
	"github.com/uran-qa/uran/internal/attachments"
	"github.com/uran-qa/uran/internal/audit"
	"github.com/uran-qa/uran/internal/catalog"
	"github.com/uran-qa/uran/internal/coredb"
	"github.com/uran-qa/uran/internal/paths"
	"github.com/uran-qa/uran/internal/runs"
	"github.com/uran-qa/uran/internal/server/handlers"
	"github.com/uran-qa/uran/internal/server/metrics"
)

// Run boots the HTTP server until the context is canceled or an
// unrecoverable error occurs.
func Run(ctx context.Context, cfg Config) error {
	if cfg.DataDir != "" {
		paths.SetDataDirOverride(cfg.DataDir)
	}
	norm := cfg.normalize()
	paths.SetDataDirOverride(norm.DataDir)

	db, err := coredb.Open(ctx, norm.CoreDBOptions)
	if err != nil {
		return fmt.Errorf("open core db: %w", err)
	}
	defer db.Close()
	norm.CoreDB = db

	if norm.MetricsEnabled {
		version := os.Getenv("URAN_VERSION")
		if version == "" {
			version = "dev"
		}
		metrics.Default.SetBuildInfo(map[string]string{"version": version})
	}

	server := &http.Server{
		Addr:    norm.Bind,
		Handler: buildHandler(norm),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), norm.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func buildHandler(cfg Config) http.Handler {
	recorder := audit.NewRecorder(cfg.CoreDB)
	accessSvc := access.NewService(cfg.CoreDB, recorder)
	catalogStore := catalog.NewStore(cfg.CoreDB, recorder, accessSvc)
	assetStore := assets.NewStore(cfg.CoreDB, recorder, accessSvc)
	runEngine := runs.NewEngine(cfg.CoreDB, recorder, accessSvc)
	binder := attachments.NewBinder(cfg.CoreDB, recorder, accessSvc)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusNoContent)
	})
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", metrics.Default.Handler())
	}
	mux.Handle("/health/storage", handlers.NewStorageHealthHandler(cfg.CoreDB))

	projectsHandler := handlers.NewProjectsHandler(accessSvc)
	mux.Handle("/api/projects", projectsHandler)
	mux.Handle("/api/projects/", projectsHandler)

	mux.Handle("/api/suites", handlers.NewSuitesHandler(catalogStore))
	testCases := handlers.NewTestCasesHandler(catalogStore)
	mux.Handle("/api/testcases", testCases)
	mux.Handle("/api/testcases/", testCases)
	failReasons := handlers.NewFailReasonsHandler(catalogStore)
	mux.Handle("/api/fail-reasons", failReasons)
	mux.Handle("/api/fail-reasons/", failReasons)

	assetsHandler := handlers.NewAssetsHandler(assetStore)
	mux.Handle("/api/assets", assetsHandler)
	mux.Handle("/api/assets/", assetsHandler)
	templatesHandler := handlers.NewTemplatesHandler(assetStore)
	mux.Handle("/api/templates", templatesHandler)
	mux.Handle("/api/templates/", templatesHandler)

	runsHandler := handlers.NewRunsHandler(runEngine)
	mux.Handle("/api/runs", runsHandler)
	mux.Handle("/api/runs/", runsHandler)

	mux.Handle("/api/attachments", handlers.NewAttachmentsHandler(binder))
	mux.Handle("/api/audit", handlers.NewAuditHandler(recorder))

	return chainMiddleware(mux,
		metricsMiddleware(cfg),
		loggingMiddleware(cfg),
		corsMiddleware(cfg),
		authMiddleware(cfg, accessSvc),
	)
}
