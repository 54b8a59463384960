package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"clinicore.dev/internal/audit"
	"clinicore.dev/internal/auth"
	"clinicore.dev/internal/config"
	"clinicore.dev/internal/httpapi"
	"clinicore.dev/internal/obs"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", os.Getenv("CLINICORE_CONFIG"), "Path to YAML config (optional)")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Postgres when a DSN is configured, in-memory stores otherwise. The
	// in-memory mode is for local development only: state is lost on exit.
	var (
		db         *sql.DB
		authStore  auth.Store
		auditStore audit.Store
	)
	if cfg.DB.DSN != "" {
		var err error
		db, err = sql.Open("pgx", cfg.DB.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		authStore = auth.NewPGStore(db)
		auditStore = audit.NewPGStore(db)
	} else {
		log.Printf("no DSN configured, using in-memory stores")
		authStore = auth.NewMemStore()
		auditStore = audit.NewMemStore()
	}

	engine := audit.New(auditStore)
	issuer := auth.NewIssuer(authStore, []byte(cfg.Auth.SigningSecret),
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
		auth.WithSessionMaxLifetime(cfg.Auth.SessionMaxLifetime),
		auth.WithAuditRecorder(engine),
	)
	svc := auth.NewService(authStore, issuer, engine)

	api := httpapi.New(svc, issuer, engine, httpapi.ReadyProbe{DB: db}, version, httpapi.Options{
		MaxBodyBytes:  cfg.HTTPServer.MaxBodyBytes,
		RateBurst:     cfg.HTTPServer.RateBurst,
		RatePerSecond: cfg.HTTPServer.RatePerSecond,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPServer.Address,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTPServer.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTPServer.ReadTimeout,
		WriteTimeout:      cfg.HTTPServer.WriteTimeout,
		IdleTimeout:       cfg.HTTPServer.IdleTimeout,
	}

	log.Printf("Starting clinicore-api %s (%s) on %s", version, cfg.Env, srv.Addr)

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
	engine.Close()
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
