package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"orbot/api"
	"orbot/config"
	"orbot/internal/utils"
)

func testServer(t *testing.T, currency, margin string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v3/accounts/101-001-1/summary":
			_, _ = w.Write([]byte(`{"account":{"balance":"110000","NAV":"110000","unrealizedPL":"0","marginAvailable":"` + margin + `","openTradeCount":0,"currency":"` + currency + `"}}`))
		case "/v3/instruments/NAS100_USD/candles":
			_, _ = w.Write([]byte(`{"candles":[{"time":"2024-01-02T15:22:00Z","complete":true,"volume":1,"mid":{"o":"25000","h":"25010","l":"24990","c":"25000"}}]}`))
		case "/v3/accounts":
			_, _ = w.Write([]byte(`{"accounts":[{"id":"101-001-9","tags":[]}]}`))
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))
}

func testClient(host string) *api.RESTClient {
	return api.NewRESTClient(&config.Config{
		Instrument:     "NAS100_USD",
		Location:       time.UTC,
		OandaHost:      host,
		OandaAccountID: "101-001-1",
		OandaToken:     "token",
		PositionSize:   1,
		PointValue:     80,
		HTTPTimeout:    5 * time.Second,
		FetchRetry:     utils.RetryPolicy{Name: "fetch", MaxAttempts: 1, BaseDelay: time.Millisecond, Multiplier: 1},
	}, nil)
}

func TestVerify(t *testing.T) {
	opts := checkOptions{currency: "USD", marginRate: 0.05, headroom: 1.03}
	cases := []struct {
		name     string
		currency string
		margin   string
		ok       bool
		want     string
	}{
		// 80 units x 25000 x 5% = 100000, 103000 with headroom.
		{"enough margin", "USD", "105000", true, "[OK] Sufficient margin for 80 units"},
		{"short margin", "USD", "102000", false, "need ~100000.00"},
		{"wrong currency", "EUR", "105000", false, "Currency is EUR, not USD"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := testServer(t, tc.currency, tc.margin)
			defer srv.Close()
			out, ok, err := verify(context.Background(), testClient(srv.URL), opts)
			if err != nil {
				t.Fatal(err)
			}
			if ok != tc.ok || !strings.Contains(out, tc.want) {
				t.Fatalf("ok=%v output:\n%s", ok, out)
			}
		})
	}
}

func TestListAccountsFlagsMissingID(t *testing.T) {
	srv := testServer(t, "USD", "0")
	defer srv.Close()
	out, err := listAccounts(context.Background(), testClient(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Found 1 account(s)") || !strings.Contains(out, `"101-001-1" is not in the list`) {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
