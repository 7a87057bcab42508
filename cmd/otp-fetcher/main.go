package main

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Ahmed4482/daraz-otp-fetcher/internal/auth"
	"github.com/Ahmed4482/daraz-otp-fetcher/internal/auth/flow"
	"github.com/Ahmed4482/daraz-otp-fetcher/internal/config"
	"github.com/Ahmed4482/daraz-otp-fetcher/internal/db"
	"github.com/Ahmed4482/daraz-otp-fetcher/internal/logging"
	"github.com/Ahmed4482/daraz-otp-fetcher/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	store, err := auth.NewStore(cfg.TokensDir)
	if err != nil {
		log.Fatalf("Failed to initialize token store: %v", err)
	}

	registry := flow.NewRegistry(flow.DefaultTTL)
	registry.StartSweeper(flow.DefaultSweepInterval)

	oauthCfg := auth.OAuthConfig(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL)
	authorizer := auth.NewAuthorizer(oauthCfg, store, registry, auth.OpenBrowser)

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(logging.Middleware)

	r.Get("/", web.DashboardHandler(cfg, authorizer, database))
	r.Get("/oauth2callback", auth.HandleCallback(oauthCfg, registry))

	r.Route("/api", func(r chi.Router) {
		r.Get("/accounts", web.AccountsHandler(cfg, authorizer))
		r.Post("/authorize", web.AuthorizeAllHandler(cfg, authorizer))
		r.Post("/fetch", web.FetchHandler(cfg, authorizer, database, ""))
		r.Get("/otps", web.OTPsHandler(database))
	})

	// Kick off the batch authorization once the callback endpoint is up.
	// Accounts with stored tokens come back immediately; the rest wait on
	// consent and time out on their own.
	go func() {
		results := authorizer.AuthorizeAll(context.Background(), cfg.Accounts)
		ready := 0
		for _, res := range results {
			if res.Err == nil {
				ready++
			}
		}
		log.Printf("[OAuth] Startup authorization done: %d/%d accounts ready", ready, len(results))
	}()

	log.Printf("[Web] daraz-otp-fetcher listening on http://%s", cfg.Addr())
	log.Printf("[Web] Callback URL: %s", cfg.RedirectURL)
	if err := http.ListenAndServe(cfg.Addr(), r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
