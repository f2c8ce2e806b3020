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

	"fitbase.app/internal/auth"
	"fitbase.app/internal/config"
	"fitbase.app/internal/httpapi"
	"fitbase.app/internal/obs"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("missing DSN: set FITBASE_PG_DSN")
	}

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	issuer, err := auth.NewTokenIssuer(cfg.AccessSecret, cfg.RefreshSecret,
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	store := auth.NewPGStore(db)
	svc, err := auth.NewService(store, issuer, auth.WithHashCost(cfg.BcryptCost))
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := svc.EnsureBuiltins(bootCtx); err != nil {
		log.Fatalf("seed builtin roles: %v", err)
	}
	bootCancel()

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, svc, store, cfg.CookieSecure,
		httpapi.WithAllowedOrigins(cfg.CORSOrigins))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting fitbase-api %s on %s", version, srv.Addr)

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
	_ = db.Close()
	log.Println("Stopped")
}
