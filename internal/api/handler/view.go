package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/roadpulse/internal/api/models"
	"github.com/breatheroute/roadpulse/internal/api/response"
	"github.com/breatheroute/roadpulse/internal/viewport"
)

// Pollutant is the measured quantity shown on the map.
const Pollutant = "NO2"

// ViewHandler handles the map view, viewport, time and playback endpoints.
type ViewHandler struct {
	session Session
	logger  zerolog.Logger
}

// NewViewHandler creates a new ViewHandler.
func NewViewHandler(session Session, logger zerolog.Logger) *ViewHandler {
	return &ViewHandler{
		session: session,
		logger:  logger.With().Str("component", "view_handler").Logger(),
	}
}

// GetView handles GET /v1/view - current snapshot, playback and load state.
func (h *ViewHandler) GetView(w http.ResponseWriter, r *http.Request) {
	format, err := parseFormat(r.URL.Query().Get("format"))
	if err != nil {
		response.BadRequest(w, r, err.Error(), []models.FieldError{{Field: "format", Message: err.Error(), Code: "INVALID_VALUE"}})
		return
	}
	response.JSON(w, r, http.StatusOK, toViewModel(h.session.View(), format))
}

// Refresh handles POST /v1/view/refresh - reload the current viewport and time.
func (h *ViewHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	format, err := parseFormat(r.URL.Query().Get("format"))
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if _, err := h.session.Refresh(r.Context()); err != nil {
		writeSessionError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toViewModel(h.session.View(), format))
}

// SetViewport handles PUT /v1/viewport - move the map and load its region.
func (h *ViewHandler) SetViewport(w http.ResponseWriter, r *http.Request) {
	var req models.ViewportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid viewport", errs)
		return
	}

	vp := viewport.New(*req.Lat, *req.Lon, *req.Zoom, *req.Width, *req.Height)
	if _, err := h.session.SetViewport(r.Context(), vp); err != nil {
		writeSessionError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toViewModel(h.session.View(), FormatGeoJSON))
}

// SetTime handles PUT /v1/time - select the hour shown on the map.
// The body holds either a full timestamp, or a date and/or an hour in the
// viewer's time zone.
func (h *ViewHandler) SetTime(w http.ResponseWriter, r *http.Request) {
	var req models.TimeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid time selection", errs)
		return
	}
	if req.Hour != nil && (*req.Hour < 0 || *req.Hour > 23) {
		response.BadRequest(w, r, "invalid time selection", []models.FieldError{
			{Field: "hour", Message: "must be between 0 and 23", Code: "OUT_OF_RANGE"},
		})
		return
	}

	var err error
	ctx := r.Context()
	switch {
	case req.Time != nil:
		_, err = h.session.SetTime(ctx, req.Time.Time())
	case req.Date != nil && req.Hour != nil:
		current := h.session.View().Playback.CurrentTime
		year, month, day := req.ParsedDate()
		_, err = h.session.SetTime(ctx, time.Date(year, month, day, *req.Hour, 0, 0, 0, current.Location()))
	case req.Date != nil:
		year, month, day := req.ParsedDate()
		_, err = h.session.SetDate(ctx, year, month, day)
	default:
		_, err = h.session.SetHour(ctx, *req.Hour)
	}
	if err != nil {
		writeSessionError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toViewModel(h.session.View(), FormatGeoJSON))
}

// Play handles POST /v1/playback/play - start advancing one hour per tick.
func (h *ViewHandler) Play(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Play(); err != nil {
		writeSessionError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toViewModel(h.session.View(), FormatGeoJSON))
}

// Stop handles POST /v1/playback/stop - pause playback.
func (h *ViewHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.session.Stop()
	response.JSON(w, r, http.StatusOK, toViewModel(h.session.View(), FormatGeoJSON))
}

// Legend handles GET /v1/legend - the color and width scales.
func (h *ViewHandler) Legend(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, legendModel(Pollutant))
}
