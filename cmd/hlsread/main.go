package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"hls-stream/internal/platform/config"
	"hls-stream/internal/platform/logger"
	"hls-stream/internal/platform/metrics"
	"hls-stream/internal/stream"

	"github.com/go-chi/chi/v5"
	"go.uber.org/ratelimit"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	source := config.GetEnv("SOURCE_URL", "")
	if len(os.Args) > 1 {
		source = os.Args[1]
	}
	port := config.GetEnv("PORT", "9090")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	maxFetches := config.GetEnvInt("MAX_CONCURRENT_FETCHES", stream.DefaultMaxConcurrentFetches)
	rate := config.GetEnvInt("FETCH_RATE_LIMIT", 0)
	httpTimeout := config.GetEnvDuration("HTTP_TIMEOUT", 30*time.Second)
	selectionTimeout := config.GetEnvDuration("SELECTION_TIMEOUT", stream.DefaultSelectionTimeout)
	maxReloadFailures := config.GetEnvInt("MAX_RELOAD_FAILURES", stream.DefaultMaxReloadFailures)
	outputDir := config.GetEnv("OUTPUT_DIR", "")
	strict := config.GetEnvBool("STRICT_PARSE", false)

	log := logger.New(logLevel, logFormat)

	if source == "" {
		log.Error("no source playlist: set SOURCE_URL or pass it as the first argument")
		os.Exit(2)
	}
	policy, err := stream.ParsePolicy(config.GetEnv("EXHAUSTION_POLICY", "all"))
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			log.Error("create output directory", "dir", outputDir, "error", err)
			os.Exit(1)
		}
	}

	met := metrics.New()
	client := &http.Client{
		Timeout:   httpTimeout,
		Transport: metrics.Transport(met, logger.Transport(log, nil)),
	}
	var limiter ratelimit.Limiter
	if rate > 0 {
		limiter = ratelimit.New(rate)
	}

	sess, err := stream.NewSession(source, stream.Options{
		Fetcher:              stream.NewHTTPFetcher(client, limiter).WithHeader("User-Agent", "hlsread/1.0"),
		Parser:               stream.M3U8Parser{Strict: strict},
		Logger:               log,
		Metrics:              met,
		Policy:               policy,
		MaxConcurrentFetches: maxFetches,
		SelectionTimeout:     selectionTimeout,
		MaxReloadFailures:    maxReloadFailures,
	})
	if err != nil {
		log.Error("create session", "error", err)
		os.Exit(1)
	}

	var srv *http.Server
	if port != "" {
		h := stream.NewHandler(sess, log)
		r := chi.NewRouter()
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			met.Handler(func() { met.SetOutstanding(sess.Outstanding()) }).ServeHTTP(w, r)
		})
		h.Routes(r)

		srv = &http.Server{Addr: ":" + port, Handler: r}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("status server error", "error", err)
			}
		}()
	}

	log.Info("hlsread starting",
		"source", sess.Source(),
		"session_id", sess.ID(),
		"port", port,
		"max_concurrent_fetches", maxFetches,
		"exhaustion_policy", string(policy),
		"log_level", logLevel,
	)

	go func() {
		for err := range sess.Errors() {
			log.Debug("stream error drained", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n := 0
	for rec, err := range sess.Records(ctx) {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Error("stream ended", "error", err)
			}
			break
		}
		n++
		consume(log, outputDir, rec)
	}

	if ctx.Err() != nil {
		log.Info("shutdown signal received, closing session")
	}
	sess.Close()

	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error("shutdown error", "error", err)
		}
	}

	log.Info("hlsread stopped", "records", n)
}

func consume(log *slog.Logger, outputDir string, rec stream.Record) {
	switch r := rec.(type) {
	case *stream.MasterPlaylist:
		log.Info("master playlist",
			"uri", r.URI,
			"variants", len(r.Variants),
			"selected", r.SelectedVariant)
	case *stream.MediaPlaylist:
		log.Info("media playlist",
			"uri", r.URI,
			"type", string(r.Type),
			"segments", len(r.Segments),
			"target_duration", r.TargetDuration.String(),
			"end_list", r.EndList)
	case *stream.Segment:
		log.Info("segment",
			"uri", r.URI,
			"url", r.URL,
			"seq", r.SeqID,
			"bytes", len(r.Payload),
			"mime", r.MIMEType)
		if outputDir == "" {
			return
		}
		name := filepath.Join(outputDir, segmentFileName(r))
		if err := os.WriteFile(name, r.Payload, 0o644); err != nil {
			log.Warn("write segment", "file", name, "error", err)
		}
	}
}

// segmentFileName prefixes the last path element of the fetched segment URL
// with its media sequence number.
func segmentFileName(seg *stream.Segment) string {
	ref := seg.URL
	if ref == "" {
		ref = seg.URI
	}
	base := "segment"
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		if b := path.Base(u.Path); b != "/" && b != "." {
			base = b
		}
	}
	if seg.Range != nil {
		base = fmt.Sprintf("%d-%s", seg.Range.Offset, base)
	}
	return fmt.Sprintf("%08d_%s", seg.SeqID, base)
}
