package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"orbot/session"
)

func main() {
	defaultAddr := os.Getenv("STATUS_ADDR")
	if defaultAddr == "" {
		defaultAddr = "127.0.0.1:6061"
	}

	addr := flag.String("addr", defaultAddr, "status server address or URL")
	jsonOut := flag.Bool("json", false, "print raw JSON")
	timeout := flag.Duration("timeout", 5*time.Second, "HTTP timeout")
	flag.Parse()

	url := strings.TrimSpace(*addr)
	if url == "" {
		fmt.Fprintln(os.Stderr, "status address is empty")
		os.Exit(1)
	}
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}
	url = strings.TrimRight(url, "/") + "/status"

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read response: %v\n", err)
		os.Exit(1)
	}
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "status request error: %s\n%s\n", resp.Status, string(body))
		os.Exit(1)
	}
	if *jsonOut {
		fmt.Println(string(body))
		return
	}

	var snap session.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(render(snap))
}

func render(snap session.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Time: %s\n", formatTime(snap.Time))
	fmt.Fprintf(&b, "Instrument: %s profile=%s orders=%t\n", snap.Instrument, snap.Profile, snap.PlaceOrders)

	rec := snap.Record
	if rec == nil {
		b.WriteString("Day: none\n")
	} else {
		fmt.Fprintf(&b, "Day: %s phase=%s signals=%d orders=%d skipped=%d errors=%d\n",
			rec.Date, rec.Phase, rec.Counters.Signals, rec.Counters.Orders, rec.Counters.Skipped, rec.Counters.Errors)
		if rec.SkipReason != "" {
			fmt.Fprintf(&b, "Skipped: %s %s\n", rec.SkipReason, rec.SkipDetail)
		}
		if rec.Setup != nil && rec.Setup.Range.Actual > 0 {
			r := rec.Setup.Range
			fmt.Fprintf(&b, "OR: %.2f-%.2f range=%.2f bars=%s\n", r.Low, r.High, r.Range, rec.Setup.Completeness)
		}
		if rec.Signal == nil {
			b.WriteString("Signal: none\n")
		} else {
			s := rec.Signal
			fmt.Fprintf(&b, "Signal: %s entry=%.2f SL=%.2f TP=%.2f time=%s\n",
				s.Decision, s.EntryPrice, s.StopPrice, s.TargetPrice, formatTime(s.EntryTime))
		}
		if rec.Fill != nil {
			fmt.Fprintf(&b, "Fill: trade=%s units=%.0f price=%.2f time=%s\n",
				rec.Fill.TradeID, rec.Fill.Units, rec.Fill.Price, formatTime(rec.Fill.Time))
		}
		if e := rec.Execution; e != nil {
			fmt.Fprintf(&b, "Exit: %s price=%.2f pnl=%.2f (%.2f pts) MFE=%.2f MAE=%.2f\n",
				e.ExitReason, e.ExitPrice, e.PnLCurrency, e.PnLPoints, e.MFEPoints, e.MAEPoints)
		}
	}

	if hb := snap.Heartbeat; hb == nil {
		b.WriteString("Heartbeat: none\n")
	} else {
		fmt.Fprintf(&b, "Heartbeat: %s last=%.2f bar=%s latency=%dms open=%d\n",
			formatTime(hb.Time), hb.LastPrice, formatTime(hb.LastBarTime), hb.FetchLatency, hb.OpenPositions)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.UTC().Format(time.RFC3339)
}
