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

	"github.com/sweeney/bms-controller/internal/bms"
	"github.com/sweeney/bms-controller/internal/recorder"
	"github.com/sweeney/bms-controller/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Name:            "pack1",
		Chemistry:       "lfp",
		NominalCapacity: 10,
		CycleMs:         100,
		Heartbeat:       "0 */15 * * * *",
		Broker:          "tcp://192.168.1.200:1883",
		HTTPPort:        ":80",
		Limits:          status.Limits{CellOVLimit: 3.8, CellUVLimit: 2.5, DisOCLimit: 10, ChgOCLimit: 10, DisSCLimit: 20},
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func normalStatus() bms.Status {
	return bms.Status{
		State:          bms.StateNormal,
		ChgEnable:      true,
		DisEnable:      true,
		Commanded:      bms.Switches{Charge: true, Discharge: true},
		ConnectedCells: 4,
		CellVoltageMin: 3.30,
		CellVoltageMax: 3.34,
		CellVoltageAvg: 3.32,
		PackVoltage:    13.28,
		PackCurrent:    -1.2,
	}
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
	tr.Update(normalStatus(), status.Allowed{Charge: true, Discharge: true}, bms.TransitionCounts{Normal: 1}, true, false)
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

	if sj.Status.State != "NORMAL" {
		t.Errorf("State: got %q, want NORMAL", sj.Status.State)
	}
	if !sj.Status.Commanded.Charge || !sj.Status.Commanded.Discharge {
		t.Errorf("Commanded: got %+v", sj.Status.Commanded)
	}
	if sj.Status.Counts.Normal != 1 {
		t.Errorf("Counts.Normal: got %d, want 1", sj.Status.Counts.Normal)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT connected")
	}
	if sj.Status.Config.Name != "pack1" || sj.Status.Config.Limits.DisSC != 20 {
		t.Errorf("Config: got %+v", sj.Status.Config)
	}
}

func TestJSONOffBeforeFirstCycle(t *testing.T) {
	ts, _ := newTestServer(t)
	sj := getJSON(t, ts.URL+"/index.json")

	if sj.Status.State != "OFF" {
		t.Errorf("State: got %q, want OFF", sj.Status.State)
	}
	if sj.Status.Ready {
		t.Error("expected Ready=false before first cycle")
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t)
	st := normalStatus()
	st.State = bms.StateChg
	st.ErrorFlags = bms.Flags(bms.FaultCellUndervoltage)
	tr.Update(st, status.Allowed{Charge: true}, bms.TransitionCounts{}, true, false)
	tr.SetSOC(55)

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
	for _, want := range []string{"BMS pack1", `<td id="state">CHG</td>`, "cell_undervoltage", "55 %", "lfp 10.0 Ah"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("body missing %q", want)
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

	tr.Update(normalStatus(), status.Allowed{Charge: true, Discharge: true}, bms.TransitionCounts{Normal: 1}, true, false)
	if got := getJSON(t, ts.URL+"/index.json").Status.State; got != "NORMAL" {
		t.Fatalf("State: got %q, want NORMAL", got)
	}

	st := normalStatus()
	st.State = bms.StateOff
	st.Commanded = bms.Switches{}
	st.ErrorFlags = bms.Flags(bms.FaultShortCircuit)
	tr.Update(st, status.Allowed{}, bms.TransitionCounts{Normal: 1, Off: 1}, true, false)

	sj := getJSON(t, ts.URL+"/index.json")
	if sj.Status.State != "OFF" {
		t.Errorf("State: got %q, want OFF", sj.Status.State)
	}
	if sj.Status.Commanded.Charge || sj.Status.Commanded.Discharge {
		t.Errorf("Commanded: got %+v, want both off", sj.Status.Commanded)
	}
	if len(sj.Status.Errors) != 1 || sj.Status.Errors[0] != "short_circuit" {
		t.Errorf("Errors: got %v", sj.Status.Errors)
	}
	if sj.Status.Counts.Off != 1 {
		t.Errorf("Counts.Off: got %d", sj.Status.Counts.Off)
	}
}

type fakeHistory struct {
	events []recorder.Event
	err    error
	limit  int
}

func (f *fakeHistory) Recent(limit int) ([]recorder.Event, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	if len(f.events) > limit {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func newHistoryServer(t *testing.T, h History) *httptest.Server {
	t.Helper()
	tr := status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), status.Config{Name: "pack1"})
	ts := httptest.NewServer(New(":0", tr, h).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestEventsEndpoint(t *testing.T) {
	h := &fakeHistory{events: []recorder.Event{
		{
			Timestamp:   time.Date(2026, 1, 1, 12, 0, 1, 0, time.UTC),
			From:        bms.StateNormal,
			To:          bms.StateChg,
			ErrorFlags:  bms.Flags(bms.FaultCellUndervoltage),
			PackCurrent: -3,
			CellMin:     2.49,
		},
		{
			Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
			From:      bms.StateOff,
			To:        bms.StateDis,
		},
	}}
	ts := newHistoryServer(t, h)

	resp, err := http.Get(ts.URL + "/events.json")
	if err != nil {
		t.Fatalf("GET /events.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if h.limit != defaultEventLimit {
		t.Errorf("limit: got %d, want %d", h.limit, defaultEventLimit)
	}

	var events []EventJSON
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].From != "NORMAL" || events[0].To != "CHG" {
		t.Errorf("event 0: got %s->%s", events[0].From, events[0].To)
	}
	if len(events[0].Errors) != 1 || events[0].Errors[0] != "cell_undervoltage" {
		t.Errorf("event 0 errors: got %v", events[0].Errors)
	}
	if events[1].Errors == nil {
		t.Error("event 1 errors should be an empty list, not null")
	}
}

func TestEventsEndpointLimit(t *testing.T) {
	h := &fakeHistory{}
	ts := newHistoryServer(t, h)

	tests := []struct {
		query     string
		wantCode  int
		wantLimit int
	}{
		{"?limit=5", 200, 5},
		{"?limit=100000", 200, maxEventLimit},
		{"?limit=0", 400, 0},
		{"?limit=abc", 400, 0},
	}
	for _, tt := range tests {
		h.limit = 0
		resp, err := http.Get(ts.URL + "/events.json" + tt.query)
		if err != nil {
			t.Fatalf("GET %s: %v", tt.query, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.wantCode {
			t.Errorf("%s: status got %d, want %d", tt.query, resp.StatusCode, tt.wantCode)
		}
		if h.limit != tt.wantLimit {
			t.Errorf("%s: limit got %d, want %d", tt.query, h.limit, tt.wantLimit)
		}
	}
}

func TestEventsEndpointErrors(t *testing.T) {
	ts := newHistoryServer(t, &fakeHistory{err: errors.New("disk gone")})

	resp, err := http.Get(ts.URL + "/events.json")
	if err != nil {
		t.Fatalf("GET /events.json: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 500 {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
}

func TestEventsEndpointWithoutHistory(t *testing.T) {
	ts := newHistoryServer(t, nil)

	resp, err := http.Get(ts.URL + "/events.json")
	if err != nil {
		t.Fatalf("GET /events.json: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("body: got %q, want []", body)
	}
}
