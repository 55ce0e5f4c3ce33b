package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	imagelink "github.com/blutspende/go-imagelink"
	"github.com/blutspende/go-imagelink/internal/config"
	"github.com/blutspende/go-imagelink/protocol"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const httpShutdownTimeout = 5 * time.Second

func serveCmd(opts *rootOptions) *cobra.Command {
	var port int
	var autoload bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept images from producers and keep them in a list",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("autoload") {
				cfg.Server.Autoload = autoload
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", imagelink.DefaultPort, "listen port")
	cmd.Flags().BoolVar(&autoload, "autoload", false, "request the data of every lazy image right away")
	return cmd
}

// viewer owns the image list of the serve command.
type viewer struct {
	server   *imagelink.ImageServer
	list     *imagelink.ImageList
	autoload bool
	logger   zerolog.Logger
}

func (v *viewer) add(img imagelink.ReceivedImage, flags uint32) {
	position := v.list.Insert(img, flags)
	v.logger.Info().
		Str("name", img.Name).
		Str("viewer", img.ViewerName).
		Uint64("imageId", img.Handle.ImageID()).
		Str("status", img.Handle.Status().String()).
		Int("position", position).
		Msg("image received")
	if v.autoload {
		img.Handle.RequestData()
	}
}

func (v *viewer) drain(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			v.server.Stop()
			v.server.DrainAll(v.add)
			return nil
		case <-ticker.C:
			v.server.DrainAll(v.add)
		}
	}
}

type imageInfo struct {
	Index      int    `json:"index"`
	ImageID    uint64 `json:"imageId"`
	Connection string `json:"connection"`
	Name       string `json:"name"`
	Viewer     string `json:"viewer"`
	FilePath   string `json:"filePath,omitempty"`
	Status     string `json:"status"`
}

func (v *viewer) routes(registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]int{
			"sessions": v.server.SessionCount(),
			"images":   v.list.Len(),
		})
	})
	r.Get("/images", func(w http.ResponseWriter, req *http.Request) {
		images := make([]imageInfo, 0, v.list.Len())
		for i := 0; i < v.list.Len(); i++ {
			entry, err := v.list.At(i)
			if err != nil {
				break
			}
			images = append(images, imageInfo{
				Index:      i,
				ImageID:    entry.Handle.ImageID(),
				Connection: entry.Handle.ConnectionID(),
				Name:       entry.Name,
				Viewer:     entry.ViewerName,
				FilePath:   entry.FilePath,
				Status:     entry.Handle.Status().String(),
			})
		}
		writeJSON(w, images)
	})
	return r
}

func writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("write response")
	}
}

func serverOptions(cfg *config.Config, metrics *imagelink.Metrics, logger zerolog.Logger) []imagelink.ServerOption {
	options := []imagelink.ServerOption{
		imagelink.WithServerLogger(logger),
		imagelink.WithServerMetrics(metrics),
		imagelink.WithMaxConnections(cfg.Server.MaxConnections),
		imagelink.WithServerReceiverSettings(protocol.DefaultReceiverSettings().SetMaxPayloadSize(cfg.Server.MaxPayloadSize)),
		imagelink.WithServerTiming(imagelink.TimingConfiguration{
			Timeout:      imagelink.DefaultTimings.Timeout,
			Deadline:     cfg.Server.Deadline,
			PollInterval: imagelink.DefaultTimings.PollInterval,
		}),
	}
	if cfg.Server.Proxy == "haproxy-v2" {
		options = append(options, imagelink.WithProxy(imagelink.HAProxySendProxyV2))
	}
	return options
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := log.Logger.With().Str("component", "serve").Logger()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := imagelink.NewMetrics(registry)

	server := imagelink.CreateNewServer(cfg.Server.Host, cfg.Server.Port, &logHandler{logger: logger},
		serverOptions(cfg, metrics, log.Logger.With().Str("component", "imagelink-server").Logger())...)
	if err := server.Start(); err != nil {
		return err
	}

	v := &viewer{
		server:   server,
		list:     imagelink.NewImageList(imagelink.StandardDecoder{}, cfg.Cache.Capacity),
		autoload: cfg.Server.Autoload,
		logger:   logger,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return v.drain(ctx, cfg.Server.DrainInterval)
	})

	if cfg.Metrics.Enabled {
		httpServer := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           v.routes(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", cfg.Metrics.Addr).Msg("http listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
