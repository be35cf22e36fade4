package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"dachido.org/internal/config"
	"dachido.org/internal/httpapi"
	"dachido.org/internal/identity"
	"dachido.org/internal/identity/mem"
	"dachido.org/internal/identity/pg"
	"dachido.org/internal/obs"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		db    *sql.DB
		store identity.Store
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = pg.New(db)
	} else {
		log.Println("no DACHIDO_PG_DSN set, using in-memory store")
		store = mem.New()
	}

	tokens, err := identity.NewTokenIssuer(cfg.AuthSecret, identity.WithTTL(cfg.TokenLifetime()))
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	api := httpapi.New(
		identity.NewResolver(store, identity.WithMappingObserver(obs.ObserveLazyMapping)),
		identity.NewAdmin(store),
		tokens,
		httpapi.ReadyProbe{DB: db},
		version,
		httpapi.WithSecureCookies(cfg.Production()),
		httpapi.WithTokenTTL(cfg.TokenLifetime()),
		httpapi.WithLoginRate(cfg.LoginRatePerMinute),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting dachido-identity %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
