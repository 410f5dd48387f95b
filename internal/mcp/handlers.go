package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/orgsim/internal/controls"
	"github.com/nvandessel/orgsim/internal/export"
	"github.com/nvandessel/orgsim/internal/models"
	"github.com/nvandessel/orgsim/internal/ratelimit"
	"github.com/nvandessel/orgsim/internal/simulation"
)

const (
	defaultHistoryLast = 20
	maxHistoryLast     = 1000

	historyResourceURI = "orgsim://history/csv"
)

// registerTools registers all orgsim MCP tools with the server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "orgsim_status",
		Description: "Get the current tick, environment and organization state, and latest performance of the simulation",
	}, s.handleStatus)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "orgsim_set_controls",
		Description: "Change modularity, financial slack or diversification; the next tick samples the new values",
	}, s.handleSetControls)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "orgsim_reset",
		Description: "Discard the current run and start a fresh one from the initial state",
	}, s.handleReset)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "orgsim_history",
		Description: "Get the most recent tick records of the current run",
	}, s.handleHistory)

	return nil
}

// registerResources registers MCP resources.
func (s *Server) registerResources() error {
	s.server.AddResource(&sdk.Resource{
		URI:         historyResourceURI,
		Name:        "orgsim-history",
		Description: "Full history of the current run as CSV, in the same format as the export.",
		MIMEType:    "text/csv",
	}, s.handleHistoryResource)
	return nil
}

// handleHistoryResource renders the current run's history as CSV.
func (s *Server) handleHistoryResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	var records []models.TickRecord
	if err := s.backend.Do(ctx, func(sess *simulation.Session) {
		records = sess.History()
	}); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var buf bytes.Buffer
	if err := export.EncodeCSV(&buf, records); err != nil {
		return nil, fmt.Errorf("failed to encode history: %w", err)
	}
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      historyResourceURI,
				MIMEType: "text/csv",
				Text:     buf.String(),
			},
		},
	}, nil
}

func statusOutput(st simulation.Status) StatusOutput {
	out := StatusOutput{
		Phase:       st.Phase.String(),
		Running:     st.Phase == simulation.Running,
		Tick:        st.Tick,
		MaxTicks:    st.MaxTicks,
		State:       st.State,
		Gap:         st.State.Gap(),
		Inputs:      st.Inputs,
		Exported:    st.Exported,
		ExportError: st.ExportErr,
	}
	if st.Last != nil {
		perf := st.Last.Performance
		out.LastPerformance = &perf
		out.Summary = fmt.Sprintf("tick %d/%d, Performance (ROA): %.2f", st.Tick, st.MaxTicks, perf)
	} else {
		out.Summary = fmt.Sprintf("tick %d/%d, no ticks yet", st.Tick, st.MaxTicks)
	}
	if st.Phase == simulation.Stopped {
		out.Summary += ", finished"
	}
	return out
}

// handleStatus implements the orgsim_status tool.
func (s *Server) handleStatus(ctx context.Context, req *sdk.CallToolRequest, args StatusInput) (_ *sdk.CallToolResult, _ StatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("orgsim_status", start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "orgsim_status"); err != nil {
		return nil, StatusOutput{}, err
	}

	st, err := s.backend.Status(ctx)
	if err != nil {
		return nil, StatusOutput{}, fmt.Errorf("failed to read status: %w", err)
	}
	return nil, statusOutput(st), nil
}

// handleSetControls implements the orgsim_set_controls tool.
func (s *Server) handleSetControls(ctx context.Context, req *sdk.CallToolRequest, args SetControlsInput) (_ *sdk.CallToolResult, _ SetControlsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("orgsim_set_controls", start, retErr, toolParams(map[string]*float64{
			"modularity": args.Modularity, "diversification": args.Diversification, "slack": args.Slack,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "orgsim_set_controls"); err != nil {
		return nil, SetControlsOutput{}, err
	}
	if args.Modularity == nil && args.Diversification == nil && args.Slack == nil {
		return nil, SetControlsOutput{}, fmt.Errorf("at least one of modularity, diversification or slack is required")
	}

	in, err := s.panel.Update(args.Modularity, args.Diversification, args.Slack)
	if err != nil {
		if errors.Is(err, controls.ErrOutOfRange) {
			return nil, SetControlsOutput{}, fmt.Errorf("invalid controls: %w", err)
		}
		return nil, SetControlsOutput{}, err
	}
	s.logger.Info("controls updated via mcp", "inputs", in.String())

	return nil, SetControlsOutput{
		Inputs:  in,
		Bounds:  s.panel.Bounds(),
		Message: "Controls updated: " + in.String(),
	}, nil
}

// handleReset implements the orgsim_reset tool.
func (s *Server) handleReset(ctx context.Context, req *sdk.CallToolRequest, args ResetInput) (_ *sdk.CallToolResult, _ ResetOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("orgsim_reset", start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "orgsim_reset"); err != nil {
		return nil, ResetOutput{}, err
	}

	st, err := s.backend.ResetStatus(ctx)
	if err != nil {
		return nil, ResetOutput{}, fmt.Errorf("failed to reset simulation: %w", err)
	}
	s.logger.Info("simulation reset via mcp")

	return nil, ResetOutput{
		Tick:    st.Tick,
		State:   st.State,
		Message: fmt.Sprintf("Simulation reset: E=%.2f O=%.2f", st.State.Environment, st.State.Organization),
	}, nil
}

// handleHistory implements the orgsim_history tool.
func (s *Server) handleHistory(ctx context.Context, req *sdk.CallToolRequest, args HistoryInput) (_ *sdk.CallToolResult, _ HistoryOutput, retErr error) {
	start := time.Now()
	defer func() {
		last := float64(args.Last)
		s.auditTool("orgsim_history", start, retErr, toolParams(map[string]*float64{"last": &last}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "orgsim_history"); err != nil {
		return nil, HistoryOutput{}, err
	}

	n := args.Last
	switch {
	case n < 0:
		return nil, HistoryOutput{}, fmt.Errorf("last must be non-negative, got %d", n)
	case n == 0:
		n = defaultHistoryLast
	case n > maxHistoryLast:
		n = maxHistoryLast
	}

	var out HistoryOutput
	if err := s.backend.Do(ctx, func(sess *simulation.Session) {
		out.Records = sess.Tail(n)
		out.Total = sess.Ticks()
	}); err != nil {
		return nil, HistoryOutput{}, fmt.Errorf("failed to read history: %w", err)
	}
	if out.Records == nil {
		out.Records = []models.TickRecord{}
	}
	out.Count = len(out.Records)
	return nil, out, nil
}
