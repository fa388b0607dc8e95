package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/breatheroute/roadpulse/internal/api/models"
	"github.com/breatheroute/roadpulse/internal/api/response"
	"github.com/breatheroute/roadpulse/internal/provider/resilience"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	session   Session
	registry  *resilience.Registry
	clock     clockwork.Clock
}

// OpsConfig holds the dependencies of OpsHandler.
type OpsConfig struct {
	Version   string
	BuildTime string
	Session   Session
	Registry  *resilience.Registry
	Clock     clockwork.Clock
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Registry == nil {
		cfg.Registry = resilience.NewRegistry()
	}
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		session:   cfg.Session,
		registry:  cfg.Registry,
		clock:     cfg.Clock,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.clock.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready - ready once a snapshot has been applied.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !h.session.Ready() {
		response.JSON(w, r, http.StatusServiceUnavailable, models.Health{
			Status:  models.HealthStatusFail,
			Time:    models.Timestamp(h.clock.Now()),
			Details: map[string]interface{}{"reason": "no snapshot loaded yet"},
		})
		return
	}
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.clock.Now()),
	})
}

// SystemStatus handles GET /v1/ops/status - session and data service status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	view := h.session.View()

	loaderStatus := models.SubsystemStatus{Name: "loader", Status: models.HealthStatusOK}
	switch {
	case view.Snapshot == nil:
		loaderStatus.Status = models.HealthStatusDegraded
		loaderStatus.Detail = strPtr("no snapshot loaded yet")
	case view.Load.IsLoading:
		loaderStatus.Detail = strPtr(fmt.Sprintf("loading epoch %d", view.Load.Epoch))
	default:
		loaderStatus.Detail = strPtr(fmt.Sprintf("epoch %d applied at %s",
			view.Snapshot.Epoch, view.Snapshot.LoadedAt.UTC().Format(time.RFC3339)))
	}

	playbackState := "paused"
	if view.Playback.IsPlaying {
		playbackState = "playing"
	}
	playbackStatus := models.SubsystemStatus{
		Name:   "playback",
		Status: models.HealthStatusOK,
		Detail: strPtr(playbackState + " at " + view.Playback.CurrentTime.Format(time.RFC3339)),
	}

	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.clock.Now()),
		Subsystems: []models.SubsystemStatus{loaderStatus, playbackStatus},
		Upstreams:  []models.UpstreamStatus{},
	}
	if loaderStatus.Status != models.HealthStatusOK {
		status.Status = models.HealthStatusDegraded
	}

	for _, ph := range h.registry.GetAllHealth() {
		up := models.UpstreamStatus{
			Name:          ph.Name,
			Status:        models.HealthStatusOK,
			CircuitState:  ph.CircuitState.String(),
			LastSuccessAt: models.TimestampPtr(ph.LastSuccessAt),
			LastFailureAt: models.TimestampPtr(ph.LastFailureAt),
		}
		if ph.LastError != "" {
			up.Message = strPtr(ph.LastError)
		}
		switch {
		case ph.IsUnhealthy():
			up.Status = models.HealthStatusFail
			status.Status = models.HealthStatusFail
		case ph.IsDegraded():
			up.Status = models.HealthStatusDegraded
			if status.Status == models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
		}
		status.Upstreams = append(status.Upstreams, up)
	}

	response.JSON(w, r, http.StatusOK, status)
}

func strPtr(s string) *string {
	return &s
}
