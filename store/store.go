// Package store keeps the flat per-day files: one JSON record per date, the
// trade_days.csv history, a plain-text summary log and parquet bar archives.
package store

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"orbot/interfaces"
	"orbot/models"
)

// TradeDayHeader is the column set of trade_days.csv.
var TradeDayHeader = []string{
	"date", "signals", "orders", "skipped", "errors", "last_signal",
	"balance_start", "nav_start", "balance_end", "nav_end",
	"pnl_balance", "pnl_nav", "open_trades_end", "currency",
}

// FileStore implements DayStore and BarArchiver on a directory tree.
type FileStore struct {
	Dir string

	mu sync.Mutex
}

var (
	_ interfaces.DayStore    = (*FileStore)(nil)
	_ interfaces.BarArchiver = (*FileStore)(nil)
)

// NewFileStore creates the directory layout under dir.
func NewFileStore(dir string) (*FileStore, error) {
	for _, sub := range []string{"daily_json", "logs", "bars"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", sub, err)
		}
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) recordPath(date string) string {
	return filepath.Join(s.Dir, "daily_json", date+".json")
}

// CSVPath is the location of the trade history.
func (s *FileStore) CSVPath() string {
	return filepath.Join(s.Dir, "trade_days.csv")
}

func (s *FileStore) summaryPath(date string) string {
	return filepath.Join(s.Dir, "logs", date+"_summary.log")
}

// Load returns the record of date; ok is false when none was saved.
func (s *FileStore) Load(date string) (*models.DayRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.recordPath(date))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read record %s: %w", date, err)
	}
	var rec models.DayRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("decode record %s: %w", date, err)
	}
	return &rec, true, nil
}

// Save writes the record through a temp file so a crash never leaves half a file.
func (s *FileStore) Save(date string, rec *models.DayRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record %s: %w", date, err)
	}
	path := s.recordPath(date)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write record %s: %w", date, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit record %s: %w", date, err)
	}
	return nil
}

// AppendRow adds the history row of date, writing the header on first use.
// A second row for a date already present is dropped.
func (s *FileStore) AppendRow(date string, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.CSVPath()
	exists, err := s.hasRow(path, date)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if errors.Is(statErr, os.ErrNotExist) {
		if err := w.Write(TradeDayHeader); err != nil {
			return err
		}
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (s *FileStore) hasRow(path, date string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("scan %s: %w", path, err)
		}
		if len(rec) > 0 && rec[0] == date {
			return true, nil
		}
	}
}

// AppendSummary appends one line to the day's summary log.
func (s *FileStore) AppendSummary(date, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.summaryPath(date), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s %s\n", time.Now().Format(time.RFC3339), strings.TrimRight(line, "\n"))
	return err
}

// Dates lists the dates with a saved record, ascending.
func (s *FileStore) Dates() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.Dir, "daily_json"))
	if err != nil {
		return nil, err
	}
	var dates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		dates = append(dates, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(dates)
	return dates, nil
}
