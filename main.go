package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xiaoyuanzhu-com/claude-deck/api"
	"github.com/xiaoyuanzhu-com/claude-deck/claude"
	"github.com/xiaoyuanzhu-com/claude-deck/config"
	"github.com/xiaoyuanzhu-com/claude-deck/db"
	"github.com/xiaoyuanzhu-com/claude-deck/log"
	"github.com/xiaoyuanzhu-com/claude-deck/vendors"
)

func main() {
	cfg := config.Get()

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
		log.SetLevel("debug")
	} else {
		gin.SetMode(gin.ReleaseMode)
		log.SetLevel("info")
	}

	if err := db.Init(); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	var titles claude.TitleGenerator
	if openaiClient := vendors.NewOpenAI(); openaiClient != nil {
		titles = openaiClient
	} else {
		log.Info().Msg("no OpenAI key configured, session titles fall back to the first prompt")
	}

	registry, err := claude.NewRegistry(claude.Options{
		Store:  claude.NewDBStore(),
		Titles: titles,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize session registry")
	}

	r := gin.New()
	r.Use(log.GinLogger())
	r.Use(gin.Recovery())

	api.SetupRoutes(r, api.NewHandlers(registry))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	registry.Shutdown()

	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
	}

	log.Info().Msg("goodbye")
}
