package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/orgsim/internal/config"
)

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the built-in simulation presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			presets := config.Presets()

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(presets)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Presets:")
			for _, v := range presets {
				div := ""
				if v.Diversification {
					div = "  +diversification"
				}
				fmt.Fprintf(out, "  %-11s %-10s %-22s%s\n", v.Name, v.Performance.Model, shockSummary(v.Shocks), div)
				fmt.Fprintf(out, "              %s\n", v.Description)
			}
			return nil
		},
	}
}

// shockSummary describes a shock configuration in a few words.
func shockSummary(s config.ShockConfig) string {
	switch {
	case s.Probabilistic != nil:
		return fmt.Sprintf("probabilistic p=%.2f", s.Probabilistic.BaseProbability)
	case len(s.Schedule) > 0:
		return fmt.Sprintf("scheduled x%d", len(s.Schedule))
	default:
		return "none"
	}
}
