// Package export delivers finished run histories: CSV encoding, atomic file
// output with retention, and fan-out to several sinks.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/nvandessel/orgsim/internal/models"
)

// Header is the first CSV row.
var Header = []string{
	"tick", "environment", "organization", "modularity",
	"diversification", "slack", "shock", "performance",
}

// Sink receives a run's full history once, when the run stops.
type Sink interface {
	Export(ctx context.Context, records []models.TickRecord) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, records []models.TickRecord) error

// Export calls f.
func (f Func) Export(ctx context.Context, records []models.TickRecord) error {
	return f(ctx, records)
}

// Multi returns a Sink that delivers to every sink in order. All sinks are
// attempted; failures are joined.
func Multi(sinks ...Sink) Sink {
	return Func(func(ctx context.Context, records []models.TickRecord) error {
		var errs []error
		for _, s := range sinks {
			if err := s.Export(ctx, records); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// EncodeCSV writes records with a header row.
func EncodeCSV(w io.Writer, records []models.TickRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			strconv.Itoa(r.Tick),
			formatFloat(r.Environment),
			formatFloat(r.Organization),
			formatFloat(r.Modularity),
			formatFloat(r.Diversification),
			formatFloat(r.Slack),
			formatFloat(r.Shock),
			formatFloat(r.Performance),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row %d: %w", r.Tick, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

// DecodeCSV parses output of EncodeCSV.
func DecodeCSV(r io.Reader) ([]models.TickRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	for i, name := range Header {
		if head[i] != name {
			return nil, fmt.Errorf("unexpected csv column %d: %q, want %q", i, head[i], name)
		}
	}

	var out []models.TickRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		tick, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("parsing tick %q: %w", row[0], err)
		}
		var vals [7]float64
		for i := range vals {
			v, err := strconv.ParseFloat(row[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("tick %d: parsing %s %q: %w", tick, Header[i+1], row[i+1], err)
			}
			vals[i] = v
		}
		out = append(out, models.TickRecord{
			Tick:            tick,
			Environment:     vals[0],
			Organization:    vals[1],
			Modularity:      vals[2],
			Diversification: vals[3],
			Slack:           vals[4],
			Shock:           vals[5],
			Performance:     vals[6],
		})
	}
}
