package app

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"testauthor/internal/app/observability"
	"testauthor/internal/bank"
	"testauthor/internal/draft"
	"testauthor/internal/upload"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(cfg Config, db *sql.DB) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	metrics := observability.NewCollector(db)
	r.Use(metrics.Middleware)

	images := upload.NewService(upload.Config{
		Dir:      cfg.UploadDir,
		BaseURL:  cfg.UploadBaseURL,
		MaxBytes: int64(cfg.UploadMaxMB) << 20,
	})

	svcCfg := draft.ServiceConfig{Images: images}
	switch cfg.BankSource {
	case BankSourceFile:
		if strings.TrimSpace(cfg.BankFile) == "" {
			return nil, fmt.Errorf("BANK_FILE is required when BANK_SOURCE=%s", BankSourceFile)
		}
		src, err := bank.LoadFile(cfg.BankFile)
		if err != nil {
			return nil, err
		}
		svcCfg.Bank = src
	default:
		src := bank.NewPostgresSource(db)
		svcCfg.Bank = src
		svcCfg.Publisher = src
	}
	draftHandler := draft.NewHandler(draft.NewService(db, svcCfg))

	importLimiter := RateLimitMiddleware(NewIPRateLimiter(cfg.ImportRateLimitPerMin, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", metrics.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(CSRFMiddleware(cfg.CSRFEnforced))

		api.Get("/csrf", CSRFTokenHandler)
		api.Get("/import/template", draftHandler.ImportTemplate)
		api.Get("/bank", draftHandler.ListBank)

		api.Post("/drafts", draftHandler.Create)
		api.Route("/drafts/{id}", func(d chi.Router) {
			d.Get("/", draftHandler.Get)
			d.Post("/questions", draftHandler.AddQuestion)
			d.Post("/questions/{key}/answers", draftHandler.AddAnswer)
			d.Put("/questions/{key}/collapsed", draftHandler.Collapse)
			d.Put("/entries/{key}", draftHandler.SetField)
			d.Delete("/entries/{key}", draftHandler.DeleteEntry)
			d.Post("/bank/{entryID}", draftHandler.CopyFromBank)
			d.Post("/publish", draftHandler.Publish)

			d.Group(func(limited chi.Router) {
				limited.Use(importLimiter)
				limited.Post("/entries/{key}/image", draftHandler.UploadImage)
				limited.Post("/import", draftHandler.Import)
			})
		})
	})

	prefix := cfg.UploadBaseURL
	if prefix == "" {
		prefix = "/uploads"
	}
	r.Handle(prefix+"/*", http.StripPrefix(prefix+"/", http.FileServer(http.Dir(images.Dir()))))

	return r, nil
}
