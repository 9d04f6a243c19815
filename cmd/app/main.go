package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/medgateway/internal/capability"
	cfgpkg "github.com/local/medgateway/internal/config"
	"github.com/local/medgateway/internal/dispatcher"
	"github.com/local/medgateway/internal/document"
	"github.com/local/medgateway/internal/imagerender"
	"github.com/local/medgateway/internal/limiter"
	logpkg "github.com/local/medgateway/internal/logger"
	"github.com/local/medgateway/internal/metrics"
	"github.com/local/medgateway/internal/orchestrator"
	"github.com/local/medgateway/internal/statuscheck"
	"github.com/local/medgateway/internal/textmodel"
	"github.com/local/medgateway/internal/vision"
)

func main() {
	cfg := cfgpkg.FromEnv()

	// Init logging
	_ = logpkg.Init(logpkg.Options{
		Level:          cfg.Logging.Level,
		Pretty:         cfg.Logging.Pretty,
		File:           cfg.Logging.File,
		MaxSizeMB:      cfg.Logging.MaxSizeMB,
		MaxBackups:     cfg.Logging.MaxBackups,
		MaxAgeDays:     cfg.Logging.MaxAgeDays,
		Compress:       cfg.Logging.Compress,
		SendToAxiom:    cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:    cfg.Axiom.APIKey,
		AxiomOrgID:     cfg.Axiom.OrgID,
		AxiomDataset:   cfg.Axiom.Dataset,
		AxiomFlush:     cfg.Axiom.FlushInterval,
		AxiomBatchSize: cfg.Axiom.BatchSize,
		AxiomMinLevel:  cfg.Axiom.MinLevel,
		AxiomRedact:    cfg.Axiom.Redact,
	})
	defer logpkg.Close()

	metrics.Init()

	// Text backend: one process per call, nothing to load.
	text := textmodel.New(textmodel.Options{Command: cfg.Text.Command})
	if path, err := exec.LookPath(text.Binary()); err != nil {
		log.Warn().Str("cmd", text.Binary()).Msg("text model binary not found on PATH; requests will fail until it is installed")
	} else {
		log.Info().Str("cmd", path).Msg("text model binary found")
	}

	// Vision backend: loaded once, failure degrades to the text path for the process lifetime.
	visionRT := vision.NewOllamaRuntime(cfg.Vision.Endpoint, cfg.Vision.Model, nil)
	caps := capability.Init(context.Background(), capability.Options{
		VisionEnabled: cfg.Vision.Enabled,
		Vision:        visionRT,
		LoadTimeout:   cfg.Vision.LoadTimeout,
	})
	metrics.SetVisionAvailable(caps.IsVisionAvailable())

	dopts := dispatcher.Options{
		Text:         text,
		Capabilities: caps,
		Extractor:    document.NewExtractor(cfg.Document.Engine),
		DecodeImage:  imagerender.Decoder{MaxPixels: cfg.Server.MaxImagePixels}.Decode,
		ChatTimeout:  cfg.Text.ChatTimeout,
		TextTimeout:  cfg.Text.Timeout,
		MaxChars:     cfg.Document.MaxChars,
	}
	if caps.IsVisionAvailable() {
		gate := limiter.New(cfg.Vision.MaxInflight)
		log.Info().Int("width", gate.Width()).Msg("vision inference gate ready")
		dopts.Vision = vision.New(vision.Options{
			Runtime:   visionRT,
			Gate:      gate,
			MaxTokens: cfg.Vision.MaxTokens,
			ImageSize: cfg.Vision.ImageSize,
			Timeout:   cfg.Vision.Timeout,
		})
	}
	disp := dispatcher.New(dopts)

	orch := orchestrator.New(orchestrator.Dependencies{
		Service:      disp,
		Capabilities: caps,
		Status: statuscheck.New(statuscheck.Options{
			Vision:        caps,
			VisionEnabled: cfg.Vision.Enabled,
			TextBinary:    text.Binary(),
		}),
		MaxUploadSize: cfg.Server.MaxUploadSize,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           orch.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Bool("vision", caps.IsVisionAvailable()).
			Str("engine", cfg.Document.Engine).
			Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("shutdown complete")
}
