package main

import (
	"context"
	"time"

	imagelink "github.com/blutspende/go-imagelink"
	"github.com/blutspende/go-imagelink/internal/config"
	"github.com/rs/zerolog/log"
)

const pendingPollInterval = 100 * time.Millisecond

// connectProducer connects a client session as configured. The returned
// context ends with the connection.
func connectProducer(ctx context.Context, cfg *config.Config, component string) (*imagelink.ClientSession, context.Context, error) {
	ctx, cancel := context.WithCancel(ctx)
	logger := log.Logger.With().Str("component", component).Logger()

	options := []imagelink.ClientOption{
		imagelink.WithClientLogger(log.Logger.With().Str("component", "imagelink-client").Logger()),
		imagelink.WithClientTiming(imagelink.TimingConfiguration{
			Timeout:      cfg.Client.Timeout,
			Deadline:     imagelink.DefaultTimings.Deadline,
			PollInterval: imagelink.DefaultTimings.PollInterval,
		}),
	}
	if cfg.Client.KeepProviders {
		options = append(options, imagelink.KeepProvidersAfterServe())
	}

	client := imagelink.CreateNewClient(cfg.Client.Host, cfg.Client.Port, &logHandler{logger: logger, cancel: cancel}, options...)
	if err := client.Connect(); err != nil {
		cancel()
		return nil, nil, err
	}
	return client, ctx, nil
}

// waitServed blocks until every lazy image was requested or ctx is done.
func waitServed(ctx context.Context, client *imagelink.ClientSession) {
	ticker := time.NewTicker(pendingPollInterval)
	defer ticker.Stop()
	for client.PendingImages() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
