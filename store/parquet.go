package store

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"orbot/models"
)

// ParquetBar is the archived column layout of a bar.
type ParquetBar struct {
	Timestamp int64   `parquet:"t"` // Unix milliseconds
	Open      float64 `parquet:"o"`
	High      float64 `parquet:"h"`
	Low       float64 `parquet:"l"`
	Close     float64 `parquet:"c"`
	Volume    float64 `parquet:"v,optional"`
	Complete  bool    `parquet:"complete"`
}

// ArchiveBars writes bars to bars/<date>_<label>.parquet, replacing any earlier file.
func (s *FileStore) ArchiveBars(date, label string, src []models.Bar) error {
	path := filepath.Join(s.Dir, "bars", fmt.Sprintf("%s_%s.parquet", date, label))
	return WriteBarsParquet(path, src)
}

// WriteBarsParquet writes bars as ParquetBar rows.
func WriteBarsParquet(path string, src []models.Bar) error {
	rows := make([]ParquetBar, len(src))
	for i, b := range src {
		rows[i] = ParquetBar{
			Timestamp: b.Time.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
			Complete:  b.Complete,
		}
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("write parquet %s: %w", path, err)
	}
	return nil
}

// ReadBarsParquet loads bars written by WriteBarsParquet, stamped in loc.
func ReadBarsParquet(path string, loc *time.Location) ([]models.Bar, error) {
	rows, err := parquet.ReadFile[ParquetBar](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	out := make([]models.Bar, len(rows))
	for i, r := range rows {
		out[i] = models.Bar{
			Time:     time.UnixMilli(r.Timestamp).In(loc),
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			Volume:   r.Volume,
			Complete: r.Complete,
		}
	}
	return out, nil
}
