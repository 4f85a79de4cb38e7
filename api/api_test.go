package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"orbot/config"
	"orbot/interfaces"
	"orbot/internal/utils"
	"orbot/logging"
	"orbot/models"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})          {}
func (nopLogger) Info(string, ...interface{})           {}
func (nopLogger) Warning(string, ...interface{})        {}
func (nopLogger) Error(string, ...interface{})          {}
func (nopLogger) Fatal(string, ...interface{})          {}
func (nopLogger) Sync() error                           { return nil }
func (nopLogger) ChangeLogLevel(level logging.LogLevel) {}

func testConfig(host string) *config.Config {
	return &config.Config{
		Instrument:     "NAS100_USD",
		Location:       time.UTC,
		OandaHost:      host,
		OandaAccountID: "101-001-1",
		OandaToken:     "token",
		PriceTick:      0.1,
		HTTPTimeout:    5 * time.Second,
		FetchRetry:     utils.RetryPolicy{Name: "fetch", MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 1},
	}
}

func TestFetchRecent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/instruments/NAS100_USD/candles" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("granularity") != "M1" || r.URL.Query().Get("count") != "2" || r.URL.Query().Get("price") != "M" {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Fatalf("missing bearer token")
		}
		_, _ = w.Write([]byte(`{"candles":[
			{"time":"2024-01-02T15:22:00.000000000Z","complete":true,"volume":12,"mid":{"o":"100.0","h":"101.5","l":"99.5","c":"101.0"}},
			{"time":"2024-01-02T15:23:00.000000000Z","complete":false,"volume":3,"mid":{"o":"101.0","h":"101.2","l":"100.8","c":"101.1"}}
		]}`))
	}))
	defer srv.Close()

	client := NewRESTClient(testConfig(srv.URL), nopLogger{})
	got, err := client.FetchRecent(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchRecent error: %v", err)
	}
	if len(got) != 2 || got[0].High != 101.5 || got[0].Close != 101 || !got[0].Complete || got[1].Complete {
		t.Fatalf("unexpected bars: %+v", got)
	}
	if got[0].Time.Minute() != 22 || got[0].Volume != 12 {
		t.Fatalf("unexpected first bar: %+v", got[0])
	}
}

func TestFetchRecentRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"candles":[]}`))
	}))
	defer srv.Close()

	client := NewRESTClient(testConfig(srv.URL), nopLogger{})
	if _, err := client.FetchRecent(context.Background(), 10); err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestFetchRecentDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"errorMessage":"bad instrument"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewRESTClient(testConfig(srv.URL), nopLogger{})
	_, err := client.FetchRecent(context.Background(), 10)
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadRequest {
		t.Fatalf("expected status error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("client error retried %d times", calls)
	}
}

func TestOpenMarketPositionFill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v3/accounts/101-001-1/orders" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Order struct {
				Units      string            `json:"units"`
				Instrument string            `json:"instrument"`
				Type       string            `json:"type"`
				StopLoss   map[string]string `json:"stopLossOnFill"`
				TakeProfit map[string]string `json:"takeProfitOnFill"`
			} `json:"order"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("bad body: %v", err)
		}
		if req.Order.Units != "-80" || req.Order.Type != "MARKET" || req.Order.StopLoss["distance"] != "25.0" || req.Order.TakeProfit["distance"] != "75.0" {
			t.Fatalf("unexpected order: %+v", req.Order)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{
			"orderCreateTransaction":{"id":"10"},
			"orderFillTransaction":{"id":"11","price":"17010.5","time":"2024-01-02T15:23:01.000000000Z","tradeOpened":{"tradeID":"11","units":"-80","price":"17010.5"}}
		}`))
	}))
	defer srv.Close()

	client := NewRESTClient(testConfig(srv.URL), nopLogger{})
	fill, err := client.OpenMarketPosition(context.Background(), models.Short, 80, 25, 75)
	if err != nil {
		t.Fatalf("OpenMarketPosition error: %v", err)
	}
	if fill.TradeID != "11" || fill.OrderID != "10" || fill.Price != 17010.5 || fill.Units != -80 {
		t.Fatalf("unexpected fill: %+v", fill)
	}
}

func TestOpenMarketPositionCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"orderCreateTransaction":{"id":"10"},"orderCancelTransaction":{"reason":"INSUFFICIENT_MARGIN"}}`))
	}))
	defer srv.Close()

	client := NewRESTClient(testConfig(srv.URL), nopLogger{})
	_, err := client.OpenMarketPosition(context.Background(), models.Long, 80, 25, 75)
	var rej *interfaces.RejectionError
	if !errors.As(err, &rej) || !rej.InsufficientMargin() {
		t.Fatalf("expected margin rejection, got %v", err)
	}
}

func TestOpenMarketPositionRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"orderRejectTransaction":{"rejectReason":"MARKET_HALTED"},"errorMessage":"halted"}`))
	}))
	defer srv.Close()

	client := NewRESTClient(testConfig(srv.URL), nopLogger{})
	_, err := client.OpenMarketPosition(context.Background(), models.Long, 80, 25, 75)
	var rej *interfaces.RejectionError
	if !errors.As(err, &rej) || rej.Reason != "MARKET_HALTED" || !strings.Contains(rej.Error(), "halted") {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestOpenTradesAndCloseAll(t *testing.T) {
	var closed []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v3/accounts/101-001-1/openTrades":
			_, _ = w.Write([]byte(`{"trades":[
				{"id":"7","instrument":"NAS100_USD","price":"17000","currentUnits":"80","unrealizedPL":"40.5","openTime":"2024-01-02T15:23:00Z"},
				{"id":"8","instrument":"EUR_USD","price":"1.1","currentUnits":"1000","unrealizedPL":"1"}
			]}`))
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/v3/accounts/101-001-1/trades/"):
			closed = append(closed, r.URL.Path)
			_, _ = w.Write([]byte(`{"orderFillTransaction":{"price":"17005","pl":"400","units":"-80"}}`))
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewRESTClient(testConfig(srv.URL), nopLogger{})
	open, err := client.ListOpenPositions(context.Background())
	if err != nil {
		t.Fatalf("ListOpenPositions: %v", err)
	}
	if len(open) != 1 || open[0].ID != "7" || open[0].Units != 80 || open[0].UnrealizedPL != 40.5 {
		t.Fatalf("unexpected positions: %+v", open)
	}

	res, err := client.CloseAllPositions(context.Background())
	if err != nil {
		t.Fatalf("CloseAllPositions: %v", err)
	}
	if len(res) != 1 || res[0].Price != 17005 || res[0].RealizedPL != 400 {
		t.Fatalf("unexpected close result: %+v", res)
	}
	if len(closed) != 1 || closed[0] != "/v3/accounts/101-001-1/trades/7/close" {
		t.Fatalf("unexpected close calls: %v", closed)
	}
}

func TestAccountSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/accounts/101-001-1/summary" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"account":{"balance":"100000.00","NAV":"100040.50","unrealizedPL":"40.50","marginAvailable":"95000","openTradeCount":1,"currency":"USD"}}`))
	}))
	defer srv.Close()

	client := NewRESTClient(testConfig(srv.URL), nopLogger{})
	snap, err := client.AccountSnapshot(context.Background())
	if err != nil {
		t.Fatalf("AccountSnapshot: %v", err)
	}
	if snap.Balance != 100000 || snap.NAV != 100040.5 || snap.MarginAvailable != 95000 || snap.OpenCount != 1 || snap.Currency != "USD" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/accounts" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"accounts":[{"id":"101-001-1","tags":[]},{"id":"101-001-2","tags":["hedge"]}]}`))
	}))
	defer srv.Close()

	client := NewRESTClient(testConfig(srv.URL), nopLogger{})
	got, err := client.Accounts(context.Background())
	if err != nil {
		t.Fatalf("Accounts: %v", err)
	}
	if len(got) != 2 || got[1].ID != "101-001-2" || len(got[1].Tags) != 1 {
		t.Fatalf("unexpected accounts: %+v", got)
	}
}
