package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

type HTTPConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

// HTTP polls a JSON endpoint returning
// {"heating_on": bool, "forecast_temp": number|null}.
type HTTP struct {
	url    string
	secret string
	client *http.Client
}

type statusResponse struct {
	HeatingOn    *bool    `json:"heating_on"`
	ForecastTemp *float64 `json:"forecast_temp"`
}

func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.URL == "" {
		return nil, ErrMissingURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &HTTP{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (h *HTTP) State(ctx context.Context) (State, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return State{}, err
	}
	req.Header.Set("Accept", "application/json")
	if h.secret != "" {
		req.Header.Set("Authorization", "Bearer "+h.secret)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return State{}, fmt.Errorf("hub request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return State{}, fmt.Errorf("%w: status %d", ErrUnexpected, resp.StatusCode)
	}

	var body statusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrUnexpected, err)
	}
	if body.HeatingOn == nil {
		return State{}, fmt.Errorf("%w: heating_on missing", ErrUnexpected)
	}

	s := State{HeatingOn: *body.HeatingOn}
	if f := body.ForecastTemp; f != nil && !math.IsNaN(*f) && !math.IsInf(*f, 0) {
		s.Forecast = f
	}
	return s, nil
}
