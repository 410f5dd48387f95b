package mcp

import (
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"sync"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/orgsim/internal/config"
	"github.com/nvandessel/orgsim/internal/controls"
	"github.com/nvandessel/orgsim/internal/engine"
	"github.com/nvandessel/orgsim/internal/models"
	"github.com/nvandessel/orgsim/internal/noise"
	"github.com/nvandessel/orgsim/internal/ratelimit"
	"github.com/nvandessel/orgsim/internal/simulation"
)

// testBackend runs a real session on the calling goroutine.
type testBackend struct {
	mu    sync.Mutex
	t     *testing.T
	panel *controls.Panel
	sess  *simulation.Session
	err   error

	resets int
}

func (b *testBackend) build() *simulation.Session {
	b.t.Helper()
	v, err := config.LookupPreset(config.PresetClassic)
	if err != nil {
		b.t.Fatalf("LookupPreset: %v", err)
	}
	model, err := v.Model()
	if err != nil {
		b.t.Fatalf("Model: %v", err)
	}
	src := noise.New(7)
	eng, err := engine.New(v.Coefficients, model, src)
	if err != nil {
		b.t.Fatalf("engine.New: %v", err)
	}
	policy, err := v.Shocks.Policy()
	if err != nil {
		b.t.Fatalf("Policy: %v", err)
	}
	sess, err := simulation.NewSession(simulation.Options{
		Engine: eng, Policy: policy, Noise: src, Inputs: b.panel, MaxTicks: 100,
	})
	if err != nil {
		b.t.Fatalf("NewSession: %v", err)
	}
	return sess
}

func (b *testBackend) Status(context.Context) (simulation.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return simulation.Status{}, b.err
	}
	return b.sess.Status(), nil
}

func (b *testBackend) ResetStatus(context.Context) (simulation.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return simulation.Status{}, b.err
	}
	b.sess = b.build()
	b.resets++
	return b.sess.Status(), nil
}

func (b *testBackend) Do(_ context.Context, fn func(*simulation.Session)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	fn(b.sess)
	return nil
}

func (b *testBackend) advance(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < n; i++ {
		b.sess.Tick(context.Background())
	}
}

func setupTestServer(t *testing.T) (*Server, *testBackend) {
	t.Helper()
	panel, err := controls.NewPanel(controls.DefaultBounds(), models.ControlInputs{Modularity: 0.5})
	if err != nil {
		t.Fatalf("NewPanel: %v", err)
	}
	backend := &testBackend{t: t, panel: panel}
	backend.sess = backend.build()

	server, err := NewServer(&Config{Name: "test-server", Version: "v1.0.0", Backend: backend, Panel: panel})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server, backend
}

func ptr(v float64) *float64 { return &v }

func TestHandleStatus(t *testing.T) {
	server, backend := setupTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleStatus(ctx, &sdk.CallToolRequest{}, StatusInput{})
	if err != nil {
		t.Fatalf("handleStatus: %v", err)
	}
	if out.Tick != 0 || !out.Running || out.LastPerformance != nil {
		t.Errorf("initial status = %+v", out)
	}
	if out.State.Environment != 5 || out.State.Organization != 4 || out.Gap != -1 {
		t.Errorf("initial state = %+v gap %v, want E=5 O=4 gap -1", out.State, out.Gap)
	}

	backend.advance(3)
	_, out, err = server.handleStatus(ctx, nil, StatusInput{})
	if err != nil {
		t.Fatalf("handleStatus: %v", err)
	}
	if out.Tick != 3 || out.LastPerformance == nil {
		t.Errorf("status after 3 ticks = %+v", out)
	}
	if !strings.Contains(out.Summary, "tick 3/100") {
		t.Errorf("summary = %q", out.Summary)
	}
}

func TestHandleStatus_Stopped(t *testing.T) {
	server, backend := setupTestServer(t)
	backend.advance(100)

	_, out, err := server.handleStatus(context.Background(), nil, StatusInput{})
	if err != nil {
		t.Fatalf("handleStatus: %v", err)
	}
	if out.Running || out.Phase != "stopped" || out.Exported {
		t.Errorf("status at budget = %+v, want stopped without export sink", out)
	}
	if !strings.HasSuffix(out.Summary, "finished") {
		t.Errorf("summary = %q, want finished suffix", out.Summary)
	}
}

func TestHandleStatus_NotRunning(t *testing.T) {
	server, backend := setupTestServer(t)
	backend.err = simulation.ErrNotRunning

	_, _, err := server.handleStatus(context.Background(), nil, StatusInput{})
	if !errors.Is(err, simulation.ErrNotRunning) {
		t.Errorf("handleStatus = %v, want ErrNotRunning", err)
	}
}

func TestHandleSetControls(t *testing.T) {
	tests := []struct {
		name    string
		args    SetControlsInput
		wantErr bool
		want    models.ControlInputs
	}{
		{name: "slack", args: SetControlsInput{Slack: ptr(0.4)}, want: models.ControlInputs{Modularity: 0.5, Slack: 0.4}},
		{name: "modularity", args: SetControlsInput{Modularity: ptr(1)}, want: models.ControlInputs{Modularity: 1}},
		{name: "both", args: SetControlsInput{Modularity: ptr(0), Slack: ptr(1)}, want: models.ControlInputs{Modularity: 0, Slack: 1}},
		{name: "empty", args: SetControlsInput{}, wantErr: true, want: models.ControlInputs{Modularity: 0.5}},
		{name: "bad level", args: SetControlsInput{Modularity: ptr(0.25)}, wantErr: true, want: models.ControlInputs{Modularity: 0.5}},
		{name: "negative slack", args: SetControlsInput{Slack: ptr(-0.1)}, wantErr: true, want: models.ControlInputs{Modularity: 0.5}},
		{name: "diversification disabled", args: SetControlsInput{Diversification: ptr(0.5)}, wantErr: true, want: models.ControlInputs{Modularity: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := setupTestServer(t)
			_, out, err := server.handleSetControls(context.Background(), nil, tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("handleSetControls error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && tt.name != "empty" && !errors.Is(err, controls.ErrOutOfRange) {
				t.Errorf("error %v does not wrap ErrOutOfRange", err)
			}
			if got := server.panel.Snapshot(); got != tt.want {
				t.Errorf("panel = %+v, want %+v", got, tt.want)
			}
			if !tt.wantErr && out.Inputs != tt.want {
				t.Errorf("output inputs = %+v, want %+v", out.Inputs, tt.want)
			}
		})
	}
}

func TestHandleSetControls_SampledNextTick(t *testing.T) {
	server, backend := setupTestServer(t)
	backend.advance(1)
	if _, _, err := server.handleSetControls(context.Background(), nil, SetControlsInput{Slack: ptr(0.8)}); err != nil {
		t.Fatalf("handleSetControls: %v", err)
	}
	backend.advance(1)

	_, hist, err := server.handleHistory(context.Background(), nil, HistoryInput{Last: 2})
	if err != nil {
		t.Fatalf("handleHistory: %v", err)
	}
	if hist.Records[0].Slack != 0 || hist.Records[1].Slack != 0.8 {
		t.Errorf("slack per tick = %v, %v; want 0 then 0.8", hist.Records[0].Slack, hist.Records[1].Slack)
	}
}

func TestHandleReset(t *testing.T) {
	server, backend := setupTestServer(t)
	backend.advance(40)

	_, out, err := server.handleReset(context.Background(), nil, ResetInput{})
	if err != nil {
		t.Fatalf("handleReset: %v", err)
	}
	if out.Tick != 0 || out.State.Environment != 5 || out.State.Organization != 4 {
		t.Errorf("after reset = %+v", out)
	}
	if backend.resets != 1 {
		t.Errorf("backend resets = %d, want 1", backend.resets)
	}

	_, hist, err := server.handleHistory(context.Background(), nil, HistoryInput{})
	if err != nil {
		t.Fatalf("handleHistory: %v", err)
	}
	if hist.Total != 0 || hist.Count != 0 || hist.Records == nil {
		t.Errorf("history after reset = %+v, want empty non-nil", hist)
	}
}

func TestHandleHistory(t *testing.T) {
	server, backend := setupTestServer(t)
	backend.advance(30)

	tests := []struct {
		name      string
		last      int
		wantCount int
		wantFirst int
		wantErr   bool
	}{
		{name: "default", last: 0, wantCount: 20, wantFirst: 11},
		{name: "five", last: 5, wantCount: 5, wantFirst: 26},
		{name: "more than available", last: 500, wantCount: 30, wantFirst: 1},
		{name: "capped", last: 5000, wantCount: 30, wantFirst: 1},
		{name: "negative", last: -1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, err := server.handleHistory(context.Background(), nil, HistoryInput{Last: tt.last})
			if (err != nil) != tt.wantErr {
				t.Fatalf("handleHistory error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if out.Count != tt.wantCount || out.Total != 30 {
				t.Errorf("count=%d total=%d, want %d and 30", out.Count, out.Total, tt.wantCount)
			}
			if out.Records[0].Tick != tt.wantFirst {
				t.Errorf("first tick = %d, want %d", out.Records[0].Tick, tt.wantFirst)
			}
		})
	}
}

func TestHandleHistory_ShockVisible(t *testing.T) {
	server, backend := setupTestServer(t)
	backend.advance(25)

	_, out, err := server.handleHistory(context.Background(), nil, HistoryInput{Last: 1})
	if err != nil {
		t.Fatalf("handleHistory: %v", err)
	}
	if got := out.Records[0].Shock; got != 1.5 {
		t.Errorf("shock at tick 25 = %v, want 1.5", got)
	}
}

func TestToolRateLimit(t *testing.T) {
	server, _ := setupTestServer(t)
	server.toolLimiters = ratelimit.ToolLimiters{"orgsim_reset": ratelimit.NewLimiter(0.001, 1)}

	if _, _, err := server.handleReset(context.Background(), nil, ResetInput{}); err != nil {
		t.Fatalf("first reset: %v", err)
	}
	_, _, err := server.handleReset(context.Background(), nil, ResetInput{})
	if err == nil || !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("second reset = %v, want rate limit error", err)
	}
}

func TestHistoryResource(t *testing.T) {
	server, backend := setupTestServer(t)
	backend.advance(4)

	res, err := server.handleHistoryResource(context.Background(), &sdk.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("handleHistoryResource: %v", err)
	}
	if len(res.Contents) != 1 || res.Contents[0].MIMEType != "text/csv" {
		t.Fatalf("contents = %+v", res.Contents)
	}
	rows, err := csv.NewReader(strings.NewReader(res.Contents[0].Text)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 5 || rows[0][0] != "tick" {
		t.Errorf("csv rows = %d, header %v; want header plus 4 rows", len(rows), rows[0])
	}
}
