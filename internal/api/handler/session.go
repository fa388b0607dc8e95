// Package handler provides HTTP handlers for the RoadPulse API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/roadpulse/internal/api/response"
	"github.com/breatheroute/roadpulse/internal/loader"
	"github.com/breatheroute/roadpulse/internal/playback"
	"github.com/breatheroute/roadpulse/internal/viewport"
	"github.com/breatheroute/roadpulse/internal/visualizer"
)

// maxBodyBytes bounds request bodies; every request body is a small JSON object.
const maxBodyBytes = 1 << 16

// Session is the interactive map session the handlers drive.
// *visualizer.Session implements it.
type Session interface {
	View() visualizer.View
	Ready() bool
	Refresh(ctx context.Context) (*loader.Snapshot, error)
	SetViewport(ctx context.Context, vp viewport.State) (*loader.Snapshot, error)
	SetTime(ctx context.Context, t time.Time) (*loader.Snapshot, error)
	SetDate(ctx context.Context, year int, month time.Month, day int) (*loader.Snapshot, error)
	SetHour(ctx context.Context, hour int) (*loader.Snapshot, error)
	Play() error
	Stop()
}

var _ Session = (*visualizer.Session)(nil)

// decodeJSON decodes a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("body must contain a single JSON object")
	}
	return nil
}

// writeSessionError maps session errors onto problem responses.
func writeSessionError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, playback.ErrPlaying):
		response.Conflict(w, r, "stop playback before changing the viewport or time")
	case errors.Is(err, playback.ErrOutOfRange):
		response.OutOfRange(w, r, err.Error())
	case errors.Is(err, visualizer.ErrClosed), errors.Is(err, playback.ErrClosed):
		response.ServiceUnavailable(w, r, "session is shutting down")
	case errors.Is(err, context.Canceled):
		response.ServiceUnavailable(w, r, "request was canceled")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("data load failed")
		response.BadGateway(w, r, fmt.Sprintf("loading data failed: %v", err))
	}
}
