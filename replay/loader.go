// Package replay runs the decision and exit rules over recorded minute bars,
// one day at a time, with the same code the live session uses.
package replay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"orbot/bars"
	"orbot/internal/utils"
	"orbot/models"
	"orbot/store"
)

// DefaultTimeLayout is the stamp format of headerless vendor files.
const DefaultTimeLayout = "20060102 150405"

// LoadOptions control how a bar file is read.
type LoadOptions struct {
	// Delimiter is detected from the first line when empty.
	Delimiter  rune
	TimeLayout string
	Location   *time.Location
}

// Load reads bars from a .parquet archive or a delimited text file.
func Load(path string, opts LoadOptions) ([]models.Bar, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		out, err := store.ReadBarsParquet(path, opts.Location)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i].Complete = true
		}
		bars.Sort(out)
		return bars.Dedupe(out), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCSV(f, opts)
}

// LoadCSV reads either a headed file (time,open,high,low,close[,volume], any
// order, case-insensitive) or a headerless six-column file stamped with
// TimeLayout in Location. Rows that do not parse are dropped.
func LoadCSV(r io.Reader, opts LoadOptions) ([]models.Bar, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.TimeLayout == "" {
		opts.TimeLayout = DefaultTimeLayout
	}
	// Exports from charting tools often carry a UTF-8 or UTF-16 byte order mark.
	raw, err := io.ReadAll(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	if err != nil {
		return nil, err
	}
	text := string(raw)
	firstLine := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		firstLine = text[:i]
	}
	delim := opts.Delimiter
	if delim == 0 {
		delim = detectDelimiter(firstLine)
	}

	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []models.Bar
	var headers []string
	rowIdx := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rowIdx == 0 && looksLikeHeader(rec) {
			headers = rec
			rowIdx++
			continue
		}
		rowIdx++
		var b models.Bar
		var ok bool
		if headers != nil {
			b, ok = parseHeaded(headers, rec, opts)
		} else {
			b, ok = parseHeadless(rec, opts)
		}
		if ok {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("replay: no bars parsed")
	}
	bars.Sort(out)
	return bars.Dedupe(out), nil
}

func detectDelimiter(line string) rune {
	switch {
	case strings.Contains(line, ";"):
		return ';'
	case strings.Contains(line, "\t"):
		return '\t'
	default:
		return ','
	}
}

func looksLikeHeader(rec []string) bool {
	for _, f := range rec {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "time", "time_ny", "timestamp", "datetime", "open", "close":
			return true
		}
	}
	return false
}

func parseHeaded(headers, rec []string, opts LoadOptions) (models.Bar, bool) {
	row := map[string]string{}
	for j, h := range headers {
		if j < len(rec) {
			row[strings.ToLower(strings.TrimSpace(h))] = strings.TrimSpace(rec[j])
		}
	}
	ts := first(row, "time_ny", "time", "timestamp", "datetime")
	if ts == "" || row["open"] == "" || row["close"] == "" {
		return models.Bar{}, false
	}
	t, err := parseTimeFlexible(ts, opts.TimeLayout, opts.Location)
	if err != nil {
		return models.Bar{}, false
	}
	return models.Bar{
		Time:     t.In(opts.Location),
		Open:     utils.ParseFloat(row["open"]),
		High:     utils.ParseFloat(row["high"]),
		Low:      utils.ParseFloat(row["low"]),
		Close:    utils.ParseFloat(row["close"]),
		Volume:   utils.ParseFloat(first(row, "volume", "vol")),
		Complete: true,
	}, true
}

func parseHeadless(rec []string, opts LoadOptions) (models.Bar, bool) {
	if len(rec) < 5 {
		return models.Bar{}, false
	}
	t, err := time.ParseInLocation(opts.TimeLayout, strings.TrimSpace(rec[0]), opts.Location)
	if err != nil {
		return models.Bar{}, false
	}
	b := models.Bar{
		Time:     t,
		Open:     utils.ParseFloat(rec[1]),
		High:     utils.ParseFloat(rec[2]),
		Low:      utils.ParseFloat(rec[3]),
		Close:    utils.ParseFloat(rec[4]),
		Complete: true,
	}
	if len(rec) > 5 {
		b.Volume = utils.ParseFloat(rec[5])
	}
	return b, true
}

// parseTimeFlexible accepts RFC3339, "YYYY-MM-DD HH:MM[:SS]" in loc, layout
// in loc, or UNIX seconds.
func parseTimeFlexible(s, layout string, loc *time.Location) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	for _, l := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04:05", layout} {
		if ts, err := time.ParseInLocation(l, s, loc); err == nil {
			return ts, nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time: %s", s)
}

// first returns the first non-empty value for keys in m.
func first(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}
