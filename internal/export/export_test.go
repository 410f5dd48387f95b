package export

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nvandessel/orgsim/internal/models"
)

func sampleRecords() []models.TickRecord {
	return []models.TickRecord{
		{Tick: 1, Environment: 5, Organization: 4.0184, Modularity: 0.5, Slack: 0, Performance: 1.5037},
		{Tick: 2, Environment: 6.5, Organization: 4.1, Modularity: 1, Diversification: 0.25, Slack: 0.1, Shock: 1.5, Performance: -0.1},
	}
}

func TestEncodeCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, sampleRecords()); err != nil {
		t.Fatalf("EncodeCSV: %v", err)
	}

	want := "tick,environment,organization,modularity,diversification,slack,shock,performance\n" +
		"1,5,4.0184,0.5,0,0,0,1.5037\n" +
		"2,6.5,4.1,1,0.25,0.1,1.5,-0.1\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, nil); err != nil {
		t.Fatalf("EncodeCSV: %v", err)
	}
	if got := strings.Count(buf.String(), "\n"); got != 1 {
		t.Errorf("empty history wrote %d lines, want header only", got)
	}
}

func TestDecodeCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, sampleRecords()); err != nil {
		t.Fatalf("EncodeCSV: %v", err)
	}
	got, err := DecodeCSV(&buf)
	if err != nil {
		t.Fatalf("DecodeCSV: %v", err)
	}
	if diff := cmp.Diff(sampleRecords(), got); diff != "" {
		t.Errorf("decoded records mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"wrong header", "a,b,c,d,e,f,g,h\n"},
		{"short row", strings.Join(Header, ",") + "\n1,2\n"},
		{"bad float", strings.Join(Header, ",") + "\n1,x,0,0,0,0,0,0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeCSV(strings.NewReader(tt.input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMulti(t *testing.T) {
	var calls []string
	ok := Func(func(_ context.Context, r []models.TickRecord) error {
		calls = append(calls, "ok")
		return nil
	})
	boom := errors.New("boom")
	bad := Func(func(_ context.Context, r []models.TickRecord) error {
		calls = append(calls, "bad")
		return boom
	})

	err := Multi(bad, ok).Export(context.Background(), sampleRecords())
	if !errors.Is(err, boom) {
		t.Errorf("Multi error = %v, want boom", err)
	}
	if diff := cmp.Diff([]string{"bad", "ok"}, calls); diff != "" {
		t.Errorf("every sink should run (-want +got):\n%s", diff)
	}

	if err := Multi().Export(context.Background(), nil); err != nil {
		t.Errorf("empty Multi = %v, want nil", err)
	}
}

func TestFileSink_Export(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	sink := &FileSink{Dir: dir, Now: func() time.Time { return at }}

	if err := sink.Export(context.Background(), sampleRecords()); err != nil {
		t.Fatalf("Export: %v", err)
	}

	want := filepath.Join(dir, "orgsim-20260301T123000.000000Z.csv")
	if sink.LastPath() != want {
		t.Errorf("LastPath() = %s, want %s", sink.LastPath(), want)
	}
	f, err := os.Open(want)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	got, err := DecodeCSV(f)
	if err != nil {
		t.Fatalf("DecodeCSV: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("exported %d rows, want 2", len(got))
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileSink_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &FileSink{Dir: t.TempDir()}
	if err := sink.Export(ctx, sampleRecords()); !errors.Is(err, context.Canceled) {
		t.Errorf("Export = %v, want context.Canceled", err)
	}
	if sink.LastPath() != "" {
		t.Error("cancelled export should not record a path")
	}
}

func TestFileSink_Retention(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sink := &FileSink{
		Dir:       dir,
		Retention: &Retention{MaxCount: 2},
		Now: func() time.Time {
			at = at.Add(time.Minute)
			return at
		},
	}

	for i := 0; i < 4; i++ {
		if err := sink.Export(context.Background(), sampleRecords()); err != nil {
			t.Fatalf("Export %d: %v", i, err)
		}
	}

	files, err := ListFiles(dir)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("kept %d files, want 2", len(files))
	}
	if filepath.Base(files[0].Path) != "orgsim-20260101T000400.000000Z.csv" {
		t.Errorf("newest kept = %s", filepath.Base(files[0].Path))
	}
}
