package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/llmutil"
	"github.com/xkilldash9x/webpilot/internal/observability"
	"github.com/xkilldash9x/webpilot/internal/store"
)

// historyStore is the read side of the run history.
type historyStore interface {
	ListRuns(ctx context.Context, limit int) ([]schemas.RunRecord, error)
	ListSteps(ctx context.Context, runID string) ([]schemas.StepRecord, error)
}

// storeProvider creates the history store. Tests inject a fake instead of
// a live database connection.
type storeProvider interface {
	// Create returns the store and a cleanup function releasing its resources.
	Create(ctx context.Context, cfg config.Interface) (historyStore, func(), error)
}

type defaultStoreProvider struct{}

// NewStoreProvider returns the provider backed by PostgreSQL.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to the configured database and makes sure the history
// tables exist.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (historyStore, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database().URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (WEBPILOT_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.Database().URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store service: %w", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return s, cleanup, nil
}

// newHistoryCmd creates the `history` command.
func newHistoryCmd(provider storeProvider) *cobra.Command {
	var limit int
	var runID string

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs recorded in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}

			s, cleanup, err := provider.Create(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if runID != "" {
				return printSteps(ctx, cmd.OutOrStdout(), s, runID)
			}
			return printRuns(ctx, cmd.OutOrStdout(), s, limit)
		},
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show.")
	historyCmd.Flags().StringVar(&runID, "run", "", "Show the steps of one run instead of the run list.")
	return historyCmd
}

func printRuns(ctx context.Context, out io.Writer, s historyStore, limit int) error {
	runs, err := s.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATE\tSTATUS\tSTEPS\tINSTRUCTION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.State, orDash(r.Status), r.Steps, llmutil.Truncate(r.Instruction, 60))
	}
	return tw.Flush()
}

func printSteps(ctx context.Context, out io.Writer, s historyStore, runID string) error {
	steps, err := s.ListSteps(ctx, runID)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		fmt.Fprintf(out, "No steps recorded for run %s.\n", runID)
		return nil
	}
	return writeStepTable(out, steps)
}

func writeStepTable(out io.Writer, steps []schemas.StepRecord) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tACTION\tOUTCOME\tDURATION\tERROR")
	for _, st := range steps {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			st.Step, orDash(st.Action), st.Outcome, st.Duration.Round(time.Millisecond), orDash(st.Error))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
