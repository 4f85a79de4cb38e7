package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"orbot/models"
	"orbot/store"
)

type dayLine struct {
	Date     string
	Phase    models.Phase
	Decision string
	Exit     string
	Points   float64
	PnL      float64
	Balance  float64
}

func collect(fs *store.FileStore, from, to string) ([]dayLine, error) {
	dates, err := fs.Dates()
	if err != nil {
		return nil, err
	}
	var out []dayLine
	for _, d := range dates {
		if (from != "" && d < from) || (to != "" && d > to) {
			continue
		}
		rec, ok, err := fs.Load(d)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", d, err)
		}
		if !ok {
			continue
		}
		line := dayLine{Date: d, Phase: rec.Phase, Decision: string(rec.SkipReason), Balance: rec.PnLBalance}
		if rec.Signal != nil && line.Decision == "" {
			line.Decision = string(rec.Signal.Decision)
		}
		if e := rec.Execution; e != nil {
			line.Exit = string(e.ExitReason)
			line.Points = e.PnLPoints
			line.PnL = e.PnLCurrency
		}
		out = append(out, line)
	}
	return out, nil
}

func write(w io.Writer, lines []dayLine) {
	fmt.Fprintf(w, "%-10s %-16s %-18s %-8s %10s %12s %12s\n", "Date", "Phase", "Decision", "Exit", "Points", "PnL", "Balance")
	points, pnl, balance := decimal.Zero, decimal.Zero, decimal.Zero
	var wins, losses int
	for _, l := range lines {
		fmt.Fprintf(w, "%-10s %-16s %-18s %-8s %10.2f %12.2f %12.2f\n",
			l.Date, l.Phase, l.Decision, l.Exit, l.Points, l.PnL, l.Balance)
		points = points.Add(decimal.NewFromFloat(l.Points))
		pnl = pnl.Add(decimal.NewFromFloat(l.PnL))
		balance = balance.Add(decimal.NewFromFloat(l.Balance))
		switch {
		case l.PnL > 0:
			wins++
		case l.PnL < 0:
			losses++
		}
	}
	fmt.Fprintf(w, "\nDays: %d (wins %d, losses %d)\n", len(lines), wins, losses)
	fmt.Fprintf(w, "Total: %s pts, PnL %s, balance change %s\n",
		points.StringFixed(2), pnl.StringFixed(2), balance.StringFixed(2))
}

func main() {
	dir := flag.String("data", envOr("DATA_DIR", "data"), "bot data directory")
	from := flag.String("from", "", "first date (YYYY-MM-DD)")
	to := flag.String("to", "", "last date (YYYY-MM-DD)")
	flag.Parse()

	fs, err := store.NewFileStore(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *dir, err)
		os.Exit(1)
	}
	lines, err := collect(fs, strings.TrimSpace(*from), strings.TrimSpace(*to))
	if err != nil {
		fmt.Fprintf(os.Stderr, "read records: %v\n", err)
		os.Exit(1)
	}
	if len(lines) == 0 {
		fmt.Println("No day records in the selected window.")
		return
	}
	write(os.Stdout, lines)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
