package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfall/tradegate/internal/config"
	"github.com/quantfall/tradegate/internal/domain/gates"
	"github.com/quantfall/tradegate/internal/net/ratelimit"
)

// decisionFixture is the offline input for one decision evaluation: the
// context plus the feed freshness the N0 gate would have observed.
type decisionFixture struct {
	Context   gates.DecisionContext `json:"context"`
	Freshness gates.Freshness       `json:"freshness"`
}

// staticFreshness serves a fixture's recorded freshness snapshot.
type staticFreshness struct{ fresh gates.Freshness }

func (s staticFreshness) Freshness(context.Context, string) (gates.Freshness, error) {
	return s.fresh, nil
}

func newDecideCmd() *cobra.Command {
	var contextFile string

	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Evaluate one decision context through the gates",
		Long:  "Reads a decision context fixture (JSON) and prints the full gate-by-gate validation result.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(contextFile)
			if err != nil {
				return fmt.Errorf("read context file: %w", err)
			}
			var fixture decisionFixture
			if err := json.Unmarshal(raw, &fixture); err != nil {
				return fmt.Errorf("parse context file: %w", err)
			}
			if fixture.Context.Timestamp.IsZero() {
				fixture.Context.Timestamp = time.Now()
			}

			limiter := ratelimit.NewLimiter(cfg.Feed.VenueRPS, cfg.Feed.VenueBurst)
			validator := gates.NewValidator(cfg.Gates, staticFreshness{fixture.Freshness}, nil, limiter)

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
			defer cancel()
			result := validator.Validate(ctx, fixture.Context)

			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&contextFile, "context", "", "path to decision context fixture (JSON)")
	_ = cmd.MarkFlagRequired("context")
	return cmd
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
