package daemon

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestIsDaemonEnvFlag(t *testing.T) {
	t.Setenv(EnvFlag, "true")
	if !IsDaemon() {
		t.Fatalf("IsDaemon should return true when %s=true", EnvFlag)
	}
	t.Setenv(EnvFlag, "false")
	if IsDaemon() {
		t.Fatalf("IsDaemon should return false when %s=false", EnvFlag)
	}
}

func TestGetExecutablePathReturnsAbs(t *testing.T) {
	path, err := GetExecutablePath()
	if err != nil {
		t.Fatalf("GetExecutablePath error: %v", err)
	}
	if !filepath.IsAbs(path) {
		t.Fatalf("expected absolute path, got %s", path)
	}
}

func TestStopDaemonMissingPIDFile(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "orbot.pid")
	if err := StopDaemon(pidFile); err == nil {
		t.Fatalf("expected error when pid file is missing")
	}
}

func TestPIDRoundTrip(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "run", "orbot.pid")
	if err := WritePID(pidFile, 4242); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	pid, err := ReadPID(pidFile)
	if err != nil || pid != 4242 {
		t.Fatalf("ReadPID = %d, %v", pid, err)
	}

	if err := os.WriteFile(pidFile, []byte("not-a-pid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPID(pidFile); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestStripFlags(t *testing.T) {
	cases := []struct {
		in   []string
		want []string
	}{
		{[]string{"-start-daemon", "-debug"}, []string{"-debug"}},
		{[]string{"--restart-daemon"}, []string{}},
		{[]string{"-replay", "day.csv"}, []string{"-replay", "day.csv"}},
	}
	for _, tc := range cases {
		if got := StripFlags(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("StripFlags(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestStartRefusesWhenRunning(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "orbot.pid")
	if err := WritePID(pidFile, os.Getpid()); err != nil {
		t.Fatal(err)
	}
	if err := StartDaemon(nil, pidFile); err == nil {
		t.Fatalf("StartDaemon should refuse while the recorded PID is alive")
	}
}

// Note: StartDaemon/RestartDaemon spawn real processes; only the refusal path is exercised here.
