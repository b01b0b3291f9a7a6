package httpctrl

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Agrid-Dev/heatpumpctl/internal/testutil"
)

func TestGET_v1_ReturnsStrings(t *testing.T) {
	srv, _ := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/v1", nil)
	assertStatus(t, rr, http.StatusOK)

	got := decodeJSON[map[string]any](t, rr)
	if got["state"] != "circulate_mixed" {
		t.Fatalf("expected state=circulate_mixed, got %v", got["state"])
	}
	if got["phase"] != "pump_on" {
		t.Fatalf("expected phase=pump_on, got %v", got["phase"])
	}
	if got["device_id"] != "default" {
		t.Fatalf("expected device_id=default, got %v", got["device_id"])
	}
	if got["forecast"] != nil {
		t.Fatalf("expected forecast=null, got %v", got["forecast"])
	}
	if w, ok := got["warnings"].([]any); !ok || len(w) != 0 {
		t.Fatalf("expected empty warnings list, got %v", got["warnings"])
	}
}

func TestGET_v1_ChannelsAndReadings(t *testing.T) {
	srv, _ := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/v1", nil)
	assertStatus(t, rr, http.StatusOK)

	got := decodeJSON[snapshotDTO](t, rr)
	if !got.Channels["heat_pump"] || got.Channels["immersion"] {
		t.Fatalf("unexpected channels %v", got.Channels)
	}
	if got.Readings["TKTP"] != 47.25 {
		t.Fatalf("expected TKTP=47.25, got %v", got.Readings["TKTP"])
	}
	if got.WorkingRange.Min != 42 || got.WorkingRange.Max != 45 {
		t.Fatalf("unexpected working range %+v", got.WorkingRange)
	}
}

func TestGET_readings(t *testing.T) {
	srv, _ := newTestServer()

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/v1/readings", nil)
	assertStatus(t, rr, http.StatusOK)

	got := decodeJSON[map[string]float64](t, rr)
	if len(got) != 2 || got["HXOR"] != 43 {
		t.Fatalf("unexpected readings %v", got)
	}
}

func TestPOST_enabled(t *testing.T) {
	srv, f := newTestServer()

	rr := postValueEndpoint(t, srv, "/v1/enabled", false)
	assertStatus(t, rr, http.StatusOK)

	if f.S.Enabled != false {
		t.Fatalf("expected enabled=false, got %v", f.S.Enabled)
	}
	got := decodeJSON[map[string]any](t, rr)
	if got["enabled"] != false {
		t.Fatalf("expected response enabled=false, got %v", got["enabled"])
	}
}

func TestPOST_enabled_InvalidPayload(t *testing.T) {
	srv, f := newTestServer()

	// Wrong key => Value missing
	rr := doJSONRequest(t, srv.srv.Handler, http.MethodPost, "/v1/enabled", map[string]any{
		"enabled": false,
	})
	assertStatus(t, rr, http.StatusBadRequest)
	_ = assertErrorResponse(t, rr)

	rr = postValueEndpoint(t, srv, "/v1/enabled", "off")
	assertStatus(t, rr, http.StatusBadRequest)
	_ = assertErrorResponse(t, rr)

	if f.SetEnabledCalled {
		t.Fatalf("SetEnabled must not be called on invalid payloads")
	}
}

func TestPOST_enabled_InvalidJSON(t *testing.T) {
	srv, _ := newTestServer()

	r := httptest.NewRequest(http.MethodPost, "/v1/enabled", bytes.NewReader([]byte("{")))
	rr := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rr, r)

	assertStatus(t, rr, http.StatusBadRequest)
	if msg := assertErrorResponse(t, rr); msg != "invalid json" {
		t.Fatalf("expected 'invalid json', got %q", msg)
	}
}

func TestGET_healthz(t *testing.T) {
	srv, _ := newTestServer()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.srv.Handler.ServeHTTP(rr, req)

	assertStatus(t, rr, http.StatusOK)
	if rr.Body.String() != "ok" {
		t.Fatalf("expected body 'ok', got %s", rr.Body.String())
	}
}

func TestGET_metrics(t *testing.T) {
	f := testutil.NewFakeControlService()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("heatpumpctl_enabled 1\n"))
	})
	srv := New(f, ":0", "default", metrics)

	rr := doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/metrics", nil)
	assertStatus(t, rr, http.StatusOK)
	if rr.Body.String() != "heatpumpctl_enabled 1\n" {
		t.Fatalf("unexpected metrics body %q", rr.Body.String())
	}

	// Without a metrics handler the route does not exist.
	srv, _ = newTestServer()
	rr = doJSONRequest(t, srv.srv.Handler, http.MethodGet, "/metrics", nil)
	assertStatus(t, rr, http.StatusNotFound)
}

// ---- test helpers ----

func newTestServer() (*Server, *testutil.FakeControlService) {
	f := testutil.NewFakeControlService()
	deviceID := "default"
	return New(f, ":0", deviceID, nil), f
}

func doJSONRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body == nil {
		r = httptest.NewRequest(method, path, nil)
	} else {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
		r.Header.Set("Content-Type", "application/json")
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected %d, got %d body=%s", want, rr.Code, rr.Body.String())
	}
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("json.Unmarshal: %v body=%s", err, rr.Body.String())
	}
	return v
}

// Handy when you only care about error responses.
func assertErrorResponse(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decodeJSON[struct {
		Error string `json:"error"`
	}](t, rr)
	if resp.Error == "" {
		t.Fatalf("expected non-empty error field, got body=%s", rr.Body.String())
	}
	return resp.Error
}

func postValueEndpoint[T any](t *testing.T, srv *Server, path string, value T) *httptest.ResponseRecorder {
	t.Helper()
	return doJSONRequest(t, srv.srv.Handler, http.MethodPost, path, struct {
		Value T `json:"value"`
	}{Value: value})
}
