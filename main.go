package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"homematch/api"
	"homematch/config"
	"homematch/models"
	"homematch/pipeline"
	"homematch/scoring"
	"homematch/services"
	"homematch/signals"
	"homematch/source"
	"homematch/storage"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.StampMilli}).
		With().Timestamp().Logger()
	cfg := config.Load()

	logger.Info().
		Str("store", cfg.StoreBackend).
		Str("scope", cfg.CityScope).
		Int("initialBatch", cfg.InitialBatch).
		Msg("homematch starting")

	kv, err := storage.Open(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not open storage")
	}
	defer kv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sig := signals.NewStore(ctx, kv, logger)
	engine := scoring.NewEngine(sig)

	geo := services.NewGeoClient(cfg.RoutingBaseURL, cfg.RoutingAPIKey, kv, logger)
	llm := services.NewLLMClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.MaxRetries, logger)
	if !geo.Enabled() {
		logger.Warn().Msg("routing provider not configured, commutes disabled")
	}
	if !llm.Enabled() {
		logger.Warn().Msg("extraction provider not configured, using listing-supplied tags")
	}
	enricher := services.NewEnricher(geo, llm, engine, kv, cfg.CommuteAnchor, logger)

	var base source.Source
	if cfg.PortalBaseURL != "" {
		base = source.NewPortal(cfg.PortalBaseURL, cfg.ChromeBin, logger)
	} else {
		logger.Info().Msg("no portal configured, using offline fixture source")
		base = source.NewStatic()
	}
	src := source.NewMultiArea(base, cfg.SubAreas)

	pipe := pipeline.New(cfg, src, enricher, sig, kv, logger)
	if err := pipe.Start(ctx, models.FilterSet{PriceType: models.PriceRent}); err != nil {
		logger.Error().Err(err).Msg("initial fetch failed, feed starts empty; retry via PUT /api/filters")
	}

	server := api.NewServer(cfg.HTTPAddr, pipe, sig, kv, logger)
	if err := server.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("http server error")
	}

	pipe.Stop()

	snap := sig.Describe()
	report := services.BuildFeedReport(pipe.Listings(), snap, sig.LikedCount(), sig.DislikedCount())
	report.Print()

	logger.Info().Msg("homematch stopped")
}
