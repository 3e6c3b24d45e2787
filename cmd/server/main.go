// Command server runs the support chat HTTP API.
//
//	@title			Support Chat API
//	@version		1.0
//	@description	Multi-agent customer support chat: intent routing, tool-calling agents and streamed replies.
//	@BasePath		/api
package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-support-chat/internal/agents"
	"github.com/tbourn/go-support-chat/internal/config"
	httpapi "github.com/tbourn/go-support-chat/internal/http"
	"github.com/tbourn/go-support-chat/internal/llm"
	"github.com/tbourn/go-support-chat/internal/observability"
	"github.com/tbourn/go-support-chat/internal/repo"
	"github.com/tbourn/go-support-chat/internal/search"
	"github.com/tbourn/go-support-chat/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

const shutdownTimeout = 15 * time.Second

func main() {
	// A missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	ver := sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev")
	sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, ver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}
	if cfg.SeedDemo {
		rep, err := repo.SeedDemo(ctx, db, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)))
		if err != nil {
			log.Fatal().Err(err).Msg("seed demo data")
		}
		log.Info().
			Bool("skipped", rep.Skipped).
			Int("orders", rep.Orders).
			Int("payments", rep.Payments).
			Int("conversations", rep.Conversations).
			Int("messages", rep.Messages).
			Msg("demo data")
	}

	var faq search.Index
	if cfg.FAQPath != "" {
		if faq, err = search.LoadFAQ(cfg.FAQPath); err != nil {
			log.Fatal().Err(err).Str("path", cfg.FAQPath).Msg("load FAQ")
		}
	}

	profiles, err := agents.LoadProfiles(cfg.AgentProfilesFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.AgentProfilesFile).Msg("load agent profiles")
	}

	if cfg.LLM.APIKey == "" {
		log.Warn().Msg("LLM_API_KEY is empty; model calls will fail unless the endpoint needs no key")
	}
	model := llm.NewOpenAI(cfg.LLM)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	rl := httpapi.RegisterRoutes(r, db, httpapi.AgentDeps{
		Model:      model,
		Classifier: model,
		Profiles:   profiles,
		FAQ:        faq,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("api", cfg.APIBasePath).
			Str("model", cfg.LLM.Model).
			Bool("ws", cfg.WSEnabled).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	rl.Stop()
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("stopped")
}
