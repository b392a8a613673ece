package tracking

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"

	"runstr-engine/internal/archive"
	"runstr-engine/internal/pipeline"
	"runstr-engine/internal/sensor"
	"runstr-engine/internal/session"
	"runstr-engine/internal/store"
	"runstr-engine/internal/watchdog"
)

const meterLat = 1.0 / 111320.0

func noopAuth(c *fiber.Ctx) error { return c.Next() }

func newTestApp(t *testing.T, arch *archive.Service) *fiber.App {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctrl := session.New(store.New(client), sensor.NewStreamProvider(), arch, session.Config{
		Platform:  pipeline.PlatformStrict,
		Watchdog:  watchdog.Config{Period: time.Hour},
		FlushWait: time.Second,
	})

	app := fiber.New()
	RegisterRoutes(app.Group("/tracking"), ctrl, arch, noopAuth)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	return resp
}

func TestStartPauseResumeStop(t *testing.T) {
	app := newTestApp(t, nil)

	resp := postJSON(t, app, "/tracking/start", StartRequest{ActivityType: "running"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status %d", resp.StatusCode)
	}

	resp = postJSON(t, app, "/tracking/start", StartRequest{ActivityType: "running"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second start must conflict, got %d", resp.StatusCode)
	}

	resp = postJSON(t, app, "/tracking/pause", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status %d", resp.StatusCode)
	}
	resp = postJSON(t, app, "/tracking/resume", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resume status %d", resp.StatusCode)
	}

	resp = postJSON(t, app, "/tracking/stop", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status %d", resp.StatusCode)
	}
	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if id, _ := result["session_id"].(string); id == "" {
		t.Fatalf("stop result missing session id: %v", result)
	}

	resp = postJSON(t, app, "/tracking/stop", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("stop without session must conflict, got %d", resp.StatusCode)
	}
}

func TestStartBadRequests(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/tracking/start", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", resp.StatusCode)
	}

	resp = postJSON(t, app, "/tracking/start", StartRequest{ActivityType: "swimming"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown activity, got %d", resp.StatusCode)
	}
}

func TestPauseWithoutSession(t *testing.T) {
	app := newTestApp(t, nil)

	resp := postJSON(t, app, "/tracking/pause", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict, got %d", resp.StatusCode)
	}
	resp = postJSON(t, app, "/tracking/resume", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict, got %d", resp.StatusCode)
	}
}

func TestCurrentSession(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/tracking/current", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without session, got %d", resp.StatusCode)
	}

	postJSON(t, app, "/tracking/start", StartRequest{ActivityType: "cycling", PresetDistanceM: 1000})

	req = httptest.NewRequest(http.MethodGet, "/tracking/current", nil)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("current status %d", resp.StatusCode)
	}
	var snap session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.ActivityType != "cycling" || snap.PresetDistanceM != 1000 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	postJSON(t, app, "/tracking/stop", nil)
}

func TestIngestFixes(t *testing.T) {
	app := newTestApp(t, nil)

	postJSON(t, app, "/tracking/start", StartRequest{ActivityType: "running"})

	base := time.Now()
	var fixes []Fix
	for i := 0; i < 5; i++ {
		fixes = append(fixes, Fix{
			Lat:       float64(i) * 5 * meterLat,
			Timestamp: base.Add(time.Duration(i) * 2 * time.Second),
		})
	}
	resp := postJSON(t, app, "/tracking/fixes", IngestRequest{Fixes: fixes})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("ingest status %d", resp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodGet, "/tracking/current", nil)
	httpResp, _ := app.Test(req)
	var snap session.Snapshot
	if err := json.NewDecoder(httpResp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	// three warm-up fixes, two counted
	if snap.PointCount != 2 {
		t.Fatalf("expected 2 counted points, got %d", snap.PointCount)
	}

	postJSON(t, app, "/tracking/stop", nil)
}

func TestIngestBadRequest(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/tracking/fixes", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRestoreWithoutState(t *testing.T) {
	app := newTestApp(t, nil)

	resp := postJSON(t, app, "/tracking/restore", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("restore status %d", resp.StatusCode)
	}
	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["restored"] {
		t.Fatalf("restore must report false with nothing persisted")
	}
}

func TestHistory(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT id, activity_type, started_at, ended_at`).
		WithArgs(20).
		WillReturnRows(pgxmock.NewRows([]string{"id", "activity_type", "started_at", "ended_at", "distance_m", "duration_sec", "paused_sec", "pause_count", "elevation_gain_m", "point_count"}).
			AddRow("session-1", "running", now.Add(-time.Hour), now, 5000.0, int64(1800), int64(0), 0, 40.0, 300))

	app := newTestApp(t, archive.NewService(mock))

	req := httptest.NewRequest(http.MethodGet, "/tracking/history", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status %d", resp.StatusCode)
	}
	var records []archive.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].SessionID != "session-1" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestHistoryUnconfigured(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/tracking/history", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without history storage, got %d", resp.StatusCode)
	}
}
