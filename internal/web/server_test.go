package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/bp-sensor/internal/bps"
	"github.com/sweeney/bp-sensor/internal/core"
	"github.com/sweeney/bp-sensor/internal/logic"
	"github.com/sweeney/bp-sensor/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Radio:         "sim",
		TimerPeriodMs: 1000,
		HeartbeatMs:   900000,
		Broker:        "tcp://192.168.1.200:1883",
		HTTPAddr:      ":80",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr
}

func getJSON(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.Update(core.Snapshot{
		Link:   logic.LinkConnected,
		Peer:   "aa:bb",
		Notify: logic.FlagNotify,
		Counts: logic.Counts{Reports: 5, PersistFailures: 2},
	})
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.Link.State != "CONNECTED" {
		t.Errorf("Link.State: got %q, want CONNECTED", sj.Status.Link.State)
	}
	if sj.Status.Link.Peer != "aa:bb" {
		t.Errorf("Link.Peer: got %q, want aa:bb", sj.Status.Link.Peer)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q, want tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	}
	if sj.Status.Counts.Reports != 5 {
		t.Errorf("Counts.Reports: got %d, want 5", sj.Status.Counts.Reports)
	}
	if sj.Status.Counts.PersistFailures != 2 {
		t.Errorf("Counts.PersistFailures: got %d, want 2", sj.Status.Counts.PersistFailures)
	}
	if sj.Status.Config.TimerPeriodMs != 1000 {
		t.Errorf("Config.TimerPeriodMs: got %d, want 1000", sj.Status.Config.TimerPeriodMs)
	}
}

func TestJSONBeforeFirstIteration(t *testing.T) {
	ts, _ := newTestServer(t)
	sj := getJSON(t, ts.URL+"/index.json")

	if sj.Status.Link.State != "INITIALIZING" {
		t.Errorf("Link.State: got %q, want INITIALIZING", sj.Status.Link.State)
	}
	if sj.Status.LastReading != nil {
		t.Error("expected no reading yet")
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.Update(core.Snapshot{Link: logic.LinkConnected, Peer: "aa:bb"})
	tr.OnRecord("aa:bb", bps.Record{Systolic: 123, Diastolic: 81, PulseRate: 66})
	tr.OnBattery("aa:bb", 88)
	tr.SetMQTTQueue(6, 2)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"CONNECTED", "123/81 mmHg", "88%", "aa:bb", "6 queued, 2 dropped"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "none yet") {
		t.Error("expected placeholder before the first reading")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	sj1 := getJSON(t, ts.URL+"/index.json")
	if sj1.Status.Link.State == "ADVERTISING" {
		t.Error("expected not advertising initially")
	}

	tr.Update(core.Snapshot{Link: logic.LinkAdvertising, LastSleep: logic.SleepIdle})
	tr.SetMQTTConnected(true)

	sj2 := getJSON(t, ts.URL+"/index.json")
	if sj2.Status.Link.State != "ADVERTISING" {
		t.Errorf("Link.State: got %q, want ADVERTISING", sj2.Status.Link.State)
	}
	if sj2.Status.Power.LastSleep != "IDLE" {
		t.Errorf("Power.LastSleep: got %q, want IDLE", sj2.Status.Power.LastSleep)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}

func TestNonGETRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/index.json", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestReadingEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)

	resp, err := http.Get(ts.URL + "/reading.json")
	if err != nil {
		t.Fatalf("GET /reading.json: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status before first reading: got %d, want 204", resp.StatusCode)
	}

	tr.OnRecord("aa:bb", bps.Record{Systolic: 140, Diastolic: 90, PulseRate: 80})
	tr.OnBattery("aa:bb", 55)

	resp, err = http.Get(ts.URL + "/reading.json")
	if err != nil {
		t.Fatalf("GET /reading.json: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}

	var rr status.ReadingResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if rr.Reading == nil || rr.Reading.Systolic != 140 {
		t.Errorf("Reading: got %+v", rr.Reading)
	}
	if rr.Battery == nil || *rr.Battery != 55 {
		t.Errorf("Battery: got %v", rr.Battery)
	}
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name string
		loop core.Snapshot
		want int
		body string
	}{
		{"initializing", core.Snapshot{Link: logic.LinkInitializing}, http.StatusServiceUnavailable, "initializing"},
		{"start failed", core.Snapshot{Link: logic.LinkAdvertising, StartErr: errors.New("adapter missing")}, http.StatusServiceUnavailable, "adapter missing"},
		{"advertising", core.Snapshot{Link: logic.LinkAdvertising}, http.StatusOK, "ok ADVERTISING"},
		{"connected", core.Snapshot{Link: logic.LinkConnected}, http.StatusOK, "ok CONNECTED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, tr := newTestServer(t)
			tr.Update(tt.loop)

			resp, err := http.Get(ts.URL + "/healthz")
			if err != nil {
				t.Fatalf("GET /healthz: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.want)
			}
			body, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(body), tt.body) {
				t.Errorf("body: got %q, want it to contain %q", body, tt.body)
			}
		})
	}
}
