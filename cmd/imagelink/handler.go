package main

import (
	"context"

	imagelink "github.com/blutspende/go-imagelink"
	"github.com/rs/zerolog"
)

// logHandler logs every session event. With cancel set, losing the
// connection ends the command.
type logHandler struct {
	logger zerolog.Logger
	cancel context.CancelFunc
}

func (h *logHandler) Connected(session imagelink.Session) {
	h.logger.Info().Str("connection", session.ConnectionID()).Str("peer", session.RemoteAddress()).Msg("connected")
}

func (h *logHandler) Disconnected(session imagelink.Session) {
	h.logger.Info().Str("connection", session.ConnectionID()).Msg("disconnected")
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *logHandler) Error(session imagelink.Session, typeOfError imagelink.ErrorType, err error) {
	event := h.logger.Error().Err(err).Str("type", typeOfError.String())
	if session != nil {
		event = event.Str("connection", session.ConnectionID())
	}
	event.Msg("session error")
}
