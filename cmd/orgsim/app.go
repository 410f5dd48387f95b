package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/nvandessel/orgsim/internal/config"
	"github.com/nvandessel/orgsim/internal/controls"
	"github.com/nvandessel/orgsim/internal/engine"
	"github.com/nvandessel/orgsim/internal/export"
	"github.com/nvandessel/orgsim/internal/logging"
	"github.com/nvandessel/orgsim/internal/noise"
	"github.com/nvandessel/orgsim/internal/simulation"
	"github.com/nvandessel/orgsim/internal/store"
)

// app holds what every simulation command resolves from the config.
type app struct {
	cfg     *config.OrgsimConfig
	variant config.Variant
	logger  *slog.Logger
	tracer  *logging.TickTracer
	archive *store.Archive
}

// newApp validates cfg and opens the run archive when the archive sink is
// enabled. Callers must Close it.
func newApp(cfg *config.OrgsimConfig, stderr io.Writer) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	v, err := cfg.Variant()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		variant: v,
		logger:  logging.NewLogger(cfg.Logging.Level, stderr),
		tracer:  logging.NewTickTracer(cfg.Logging.TraceDir, cfg.Logging.Level, cfg.Logging.Rotation),
	}
	if cfg.Export.Enabled(config.SinkArchive) {
		a.archive, err = store.Open(cfg.Export.ArchivePath)
		if err != nil {
			a.tracer.Close()
			return nil, fmt.Errorf("open run archive: %w", err)
		}
	}
	return a, nil
}

// Close releases the tracer and the archive.
func (a *app) Close() {
	a.tracer.Close()
	if a.archive != nil {
		a.archive.Close()
	}
}

// newPanel returns a control panel bounded for the variant.
func (a *app) newPanel() (*controls.Panel, error) {
	return controls.NewPanel(a.cfg.Bounds(a.variant), a.cfg.Controls.Defaults)
}

// resolveSeed returns the configured seed, or a fresh one when unseeded so
// the run is still reproducible from its archive entry.
func (a *app) resolveSeed() uint64 {
	if a.cfg.Run.Seed != 0 {
		return a.cfg.Run.Seed
	}
	return uint64(time.Now().UnixNano())
}

// sessionSpec names the collaborators of a session. Nil sinks are skipped.
type sessionSpec struct {
	inputs simulation.InputSource
	chart  simulation.ChartSink
	status simulation.StatusSink

	// export enables the configured export sinks.
	export bool
}

// newSession builds one session of the configured variant.
func (a *app) newSession(seed uint64, spec sessionSpec) (*simulation.Session, store.RunInfo, error) {
	src := noise.New(seed)
	model, err := a.variant.Model()
	if err != nil {
		return nil, store.RunInfo{}, err
	}
	eng, err := engine.New(a.variant.Coefficients, model, src)
	if err != nil {
		return nil, store.RunInfo{}, err
	}
	policy, err := a.variant.Shocks.Policy()
	if err != nil {
		return nil, store.RunInfo{}, err
	}

	variantJSON, err := json.Marshal(a.variant)
	if err != nil {
		return nil, store.RunInfo{}, fmt.Errorf("encode variant: %w", err)
	}
	info := store.RunInfo{
		Preset:      a.variant.Name,
		Model:       model.Name(),
		Policy:      policy.Name(),
		Seed:        seed,
		VariantJSON: string(variantJSON),
	}

	sinks := simulation.Sinks{Chart: spec.chart, Status: spec.status}
	if spec.export {
		if sink := a.exportSink(info); sink != nil {
			sinks.Export = sink
		}
	}

	initial := a.cfg.InitialState()
	sess, err := simulation.NewSession(simulation.Options{
		Engine:   eng,
		Policy:   policy,
		Noise:    src,
		Inputs:   spec.inputs,
		Sinks:    sinks,
		MaxTicks: a.cfg.Run.MaxTicks,
		Initial:  &initial,
		Logger:   a.logger,
		Tracer:   a.tracer,
	})
	if err != nil {
		return nil, store.RunInfo{}, err
	}
	a.logger.Debug("session built", "preset", info.Preset, "model", info.Model, "policy", info.Policy, "seed", seed)
	return sess, info, nil
}

// factory returns a simulation.Factory that builds a fresh session, with a
// fresh seed when unseeded, on every call.
func (a *app) factory(spec sessionSpec) simulation.Factory {
	return func() (*simulation.Session, error) {
		sess, _, err := a.newSession(a.resolveSeed(), spec)
		return sess, err
	}
}

// exportSink combines the enabled sinks for one run, or returns nil when
// none is enabled.
func (a *app) exportSink(info store.RunInfo) export.Sink {
	var sinks []export.Sink
	if a.cfg.Export.Enabled(config.SinkCSV) {
		// Validate already checked the retention config.
		policy, _ := a.cfg.Export.Retention.Policy()
		sinks = append(sinks, &export.FileSink{Dir: a.cfg.Export.Dir, Retention: policy, Logger: a.logger})
	}
	if a.archive != nil {
		sinks = append(sinks, &store.ArchiveSink{Archive: a.archive, Info: info, Logger: a.logger})
	}
	if len(sinks) == 0 {
		return nil
	}
	return export.Multi(sinks...)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// consoleStatus prints every status line on its own line.
type consoleStatus struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *consoleStatus) SetText(summary string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, summary)
}
