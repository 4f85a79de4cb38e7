package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"orbot/config"
	"orbot/logging"
	"orbot/metrics"
	"orbot/models"
	"orbot/session"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})          {}
func (nopLogger) Info(string, ...interface{})           {}
func (nopLogger) Warning(string, ...interface{})        {}
func (nopLogger) Error(string, ...interface{})          {}
func (nopLogger) Fatal(string, ...interface{})          {}
func (nopLogger) Sync() error                           { return nil }
func (nopLogger) ChangeLogLevel(level logging.LogLevel) {}

type fixedSource struct{ snap session.Snapshot }

func (f fixedSource) Snapshot() session.Snapshot { return f.snap }

func testSource() fixedSource {
	rec := models.NewDayRecord("2024-01-02")
	rec.Phase = models.PhaseMonitoring
	rec.Counters.Signals = 1
	return fixedSource{snap: session.Snapshot{
		Time:       time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC),
		Instrument: "NAS100_USD",
		Profile:    "live",
		Record:     rec,
		Heartbeat:  &models.Heartbeat{LastPrice: 170.5, Phase: models.PhaseMonitoring},
	}}
}

func TestStatusEndpoint(t *testing.T) {
	srv := httptest.NewServer(Handler(testSource(), nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type %q", ct)
	}
	var got struct {
		Instrument string `json:"instrument"`
		Day        struct {
			Phase    models.Phase    `json:"phase"`
			Counters models.Counters `json:"counters"`
		} `json:"day"`
		Heartbeat struct {
			LastPrice float64 `json:"last_price"`
		} `json:"heartbeat"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Instrument != "NAS100_USD" || got.Day.Phase != models.PhaseMonitoring || got.Day.Counters.Signals != 1 || got.Heartbeat.LastPrice != 170.5 {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.Phase(models.PhaseMonitoring)
	srv := httptest.NewServer(Handler(testSource(), nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `orb_phase{phase="monitoring"} 1`) {
		t.Fatalf("phase gauge missing from metrics output")
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nopLogger{}, func() interface{} { return map[string]string{"phase": "idle"} })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(Handler(testSource(), hub))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first Message
	if err := conn.ReadJSON(&first); err != nil || first.Type != "status" {
		t.Fatalf("initial message: %+v %v", first, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	hub.Publish("heartbeat", models.Heartbeat{LastPrice: 171})

	var msg struct {
		Type string           `json:"type"`
		Data models.Heartbeat `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "heartbeat" || msg.Data.LastPrice != 171 {
		t.Fatalf("unexpected event: %+v", msg)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	hub := NewHub(nopLogger{}, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish("phase", i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Publish blocked without a running hub")
	}
}

func TestStartServerDisabled(t *testing.T) {
	cfg := &config.Config{StatusAddr: "off"}
	if srv := StartServer(cfg, testSource(), nil, nopLogger{}); srv != nil {
		t.Fatalf("server started with StatusAddr=off")
	}
}
