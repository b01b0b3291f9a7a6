package httpctrl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Agrid-Dev/heatpumpctl/internal/ports"
	"github.com/Agrid-Dev/heatpumpctl/internal/service"
)

type Server struct {
	svc      ports.ControlService
	srv      *http.Server
	deviceID string
}

// New returns a runnable server. metrics may be nil.
func New(svc ports.ControlService, addr string, deviceID string, metrics http.Handler) *Server {
	mux := http.NewServeMux()
	s := &Server{svc: svc, deviceID: deviceID}

	// Read
	mux.HandleFunc("GET /v1", s.handleGet)
	mux.HandleFunc("GET /v1/readings", s.handleGetReadings)

	// Write
	mux.HandleFunc("POST /v1/enabled", s.handlePostEnabled)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ---- DTOs ----

type rangeDTO struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type snapshotDTO struct {
	DeviceID        string             `json:"device_id"`
	RunID           string             `json:"run_id"`
	Enabled         bool               `json:"enabled"`
	At              time.Time          `json:"at"`
	State           string             `json:"state"`
	Submode         string             `json:"submode"`
	Phase           string             `json:"phase"`
	Overrun         bool               `json:"overrun"`
	Immersion       bool               `json:"immersion"`
	HeatPumpReady   bool               `json:"heat_pump_ready"`
	HeatDemand      bool               `json:"heat_demand"`
	Forecast        *float64           `json:"forecast"`
	WorkingRange    rangeDTO           `json:"working_range"`
	HeatPct         float64            `json:"heat_pct"`
	TankPct         float64            `json:"tank_pct"`
	ImmersionTarget float64            `json:"immersion_target"`
	Channels        map[string]bool    `json:"channels"`
	Readings        map[string]float64 `json:"readings"`
	Warnings        []string           `json:"warnings"`
	LastError       string             `json:"last_error,omitempty"`
}

func toDTO(s service.Snapshot) snapshotDTO {
	dto := snapshotDTO{
		RunID:           s.RunID,
		Enabled:         s.Enabled,
		At:              s.At,
		State:           s.State.String(),
		Submode:         s.Submode.String(),
		Phase:           s.Phase.String(),
		Overrun:         s.Overrun,
		Immersion:       s.Immersion,
		HeatPumpReady:   s.HeatPumpReady,
		HeatDemand:      s.HeatDemand,
		Forecast:        s.Forecast,
		WorkingRange:    rangeDTO{Min: s.WorkingRange.Min, Max: s.WorkingRange.Max},
		HeatPct:         s.HeatPct,
		TankPct:         s.TankPct,
		ImmersionTarget: s.ImmersionTarget,
		Channels:        make(map[string]bool, len(s.Channels)),
		Readings:        readingsDTO(s),
		Warnings:        s.Warnings,
		LastError:       s.LastError,
	}
	for ch, on := range s.Channels {
		dto.Channels[ch.String()] = on
	}
	if dto.Warnings == nil {
		dto.Warnings = []string{}
	}
	return dto
}

func readingsDTO(s service.Snapshot) map[string]float64 {
	out := make(map[string]float64, len(s.Readings))
	for sensor, v := range s.Readings {
		out[sensor.String()] = v
	}
	return out
}

// ---- Handlers ----

func (s *Server) handleGet(w http.ResponseWriter, _ *http.Request) {
	s.respondSnapshot(w)
}

func (s *Server) handleGetReadings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, readingsDTO(s.svc.Get()))
}

func (s *Server) handlePostEnabled(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v bool) error {
		s.svc.SetEnabled(v)
		return nil
	})
}

// ---- generic helpers ----
func (s *Server) respondSnapshot(w http.ResponseWriter) {
	dto := toDTO(s.svc.Get())
	dto.DeviceID = s.deviceID
	writeJSON(w, http.StatusOK, dto)
}

func postValue[T any](s *Server, w http.ResponseWriter, r *http.Request, apply func(T) error) {
	dec := json.NewDecoder(r.Body)
	var req struct {
		Value *T `json:"value"`
	}
	if err := dec.Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Value == nil {
		writeErr(w, http.StatusBadRequest, "missing field 'value'")
		return
	}

	if err := apply(*req.Value); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	s.respondSnapshot(w)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
