package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"orbot/models"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ORB_ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("ORB_STRATEGY_FILE", "")
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	isolate(t)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ORStart != models.MustClock("09:30") || cfg.OREnd != models.MustClock("10:00") {
		t.Fatalf("unexpected OR window %s-%s", cfg.ORStart, cfg.OREnd)
	}
	if cfg.Entry != models.MustClock("10:22") || cfg.HardExit != models.MustClock("12:00") {
		t.Fatalf("unexpected entry/exit %s %s", cfg.Entry, cfg.HardExit)
	}
	if cfg.ORTolerance != 2 || cfg.Profile != "live" {
		t.Fatalf("expected live profile with tolerance 2, got %s/%d", cfg.Profile, cfg.ORTolerance)
	}
	if cfg.Location == nil || cfg.Location.String() != "America/New_York" {
		t.Fatalf("unexpected location %v", cfg.Location)
	}
	if cfg.OandaHost != "https://api-fxpractice.oanda.com" {
		t.Fatalf("unexpected host %s", cfg.OandaHost)
	}
	if cfg.ExpectedORBars() != 31 {
		t.Fatalf("expected 31 OR bars, got %d", cfg.ExpectedORBars())
	}
	if cfg.Units(models.Short) != -80 {
		t.Fatalf("unexpected units %f", cfg.Units(models.Short))
	}
}

func TestLoadConfigProfiles(t *testing.T) {
	cases := []struct {
		profile   string
		override  string
		tolerance int
	}{
		{profile: "live", tolerance: 2},
		{profile: "backtest", tolerance: 0},
		{profile: "backtest", override: "4", tolerance: 4},
	}
	for _, tc := range cases {
		isolate(t)
		t.Setenv("ORB_PROFILE", tc.profile)
		t.Setenv("OR_INCOMPLETE_TOLERANCE", tc.override)
		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("%s: %v", tc.profile, err)
		}
		if cfg.ORTolerance != tc.tolerance {
			t.Fatalf("%s/%q: tolerance %d want %d", tc.profile, tc.override, cfg.ORTolerance, tc.tolerance)
		}
	}
}

func TestWithProfile(t *testing.T) {
	isolate(t)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	bt := cfg.WithProfile("backtest")
	if bt.ORTolerance != 0 || cfg.ORTolerance != 2 {
		t.Fatalf("WithProfile must copy: %d %d", bt.ORTolerance, cfg.ORTolerance)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("ENTRY_TIME", "10:15")
	t.Setenv("SL_POINTS", "30")
	t.Setenv("PLACE_ORDERS", "yes")
	t.Setenv("PAPER_TRADING", "1")
	t.Setenv("POLL_INTERVAL", "45")
	t.Setenv("OANDA_ENV", "live")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Entry != models.MustClock("10:15") || cfg.SLPoints != 30 || !cfg.PlaceOrders || !cfg.Paper {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.PollInterval != 45*time.Second {
		t.Fatalf("poll interval %v", cfg.PollInterval)
	}
	if cfg.OandaHost != "https://api-fxtrade.oanda.com" {
		t.Fatalf("live host not selected: %s", cfg.OandaHost)
	}
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := isolate(t)
	envPath := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envPath, []byte("TP_POINTS=90\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("ORB_ENV_FILE", envPath)
	t.Cleanup(func() { os.Unsetenv("TP_POINTS") })
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TPPoints != 90 {
		t.Fatalf("expected TP 90 from .env, got %f", cfg.TPPoints)
	}
}

func TestLoadConfigStrategyFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "strategy.yml")
	body := "or_start: \"09:35\"\nor_end: \"10:05\"\nentry_time: \"10:30\"\ntop_pct: 0.4\npoint_value: 20\nor_tolerance: 1\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("ORB_STRATEGY_FILE", path)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ORStart != models.MustClock("09:35") || cfg.OREnd != models.MustClock("10:05") || cfg.Entry != models.MustClock("10:30") {
		t.Fatalf("clocks not applied: %s %s %s", cfg.ORStart, cfg.OREnd, cfg.Entry)
	}
	if cfg.TopPct != 0.4 || cfg.BottomPct != 0.35 || cfg.PointValue != 20 || cfg.ORTolerance != 1 {
		t.Fatalf("levels not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	isolate(t)
	t.Setenv("ENTRY_TIME", "09:45")
	t.Setenv("PLACE_ORDERS", "true")
	_, err := LoadConfig()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "entry 09:45") || !strings.Contains(msg, "OANDA_ACCOUNT_ID") {
		t.Fatalf("unexpected error: %v", err)
	}
}
