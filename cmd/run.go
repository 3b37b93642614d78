package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/action"
	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/llmclient"
	"github.com/xkilldash9x/webpilot/internal/observability"
	"github.com/xkilldash9x/webpilot/internal/store"
	"github.com/xkilldash9x/webpilot/internal/trace"
)

// errTaskFailed is returned when the model terminated the run with a failure status.
var errTaskFailed = errors.New("the model reported that the task failed")

// agentRunner is the part of agent.Loop the run command drives.
type agentRunner interface {
	Run(ctx context.Context, instruction string) (agent.Result, error)
}

// runComponents holds the services wired for one run.
type runComponents struct {
	Runner   agentRunner
	Registry *prometheus.Registry
	Trace    *trace.Recorder
	closers  []func()
}

// Shutdown releases every component in reverse order of creation.
func (rc *runComponents) Shutdown() {
	for i := len(rc.closers) - 1; i >= 0; i-- {
		rc.closers[i]()
	}
	rc.closers = nil
}

// runFactory wires the components of a run. Tests substitute it to avoid
// launching Chrome or contacting a model.
type runFactory func(ctx context.Context, cfg *config.Config, observer agent.Observer, logger *zap.Logger) (*runComponents, error)

// newRunCmd creates and configures the `run` command.
func newRunCmd(factory runFactory) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run <instruction>",
		Short: "Carry out a natural language instruction in a browser",
		Long: `Opens a browser, shows the page to the configured vision model and executes
the actions it chooses until it terminates, the step limit is reached or the
command is interrupted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			if err := applyRunFlagOverrides(cmd, cfg); err != nil {
				return err
			}

			instruction := strings.TrimSpace(strings.Join(args, " "))
			if instruction == "" {
				return errors.New("instruction must not be empty")
			}

			out := cmd.OutOrStdout()
			components, err := factory(ctx, cfg, newPrinter(out), logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize run components: %w", err)
			}
			defer components.Shutdown()

			return runAgent(ctx, out, cfg, components, instruction, logger)
		},
	}

	runCmd.Flags().Bool("headless", false, "Run the browser without a window. (Overrides config/env)")
	runCmd.Flags().Int("max-steps", 0, "Maximum loop iterations. (Overrides config/env)")
	runCmd.Flags().String("model", "", "Model name. (Overrides config/env)")
	runCmd.Flags().String("provider", "", "Model provider: ollama or gemini. (Overrides config/env)")
	runCmd.Flags().String("endpoint", "", "Provider endpoint URL. (Overrides config/env)")
	runCmd.Flags().Bool("no-trace", false, "Do not write a step trace for this run.")

	return runCmd
}

// applyRunFlagOverrides copies explicitly set flags onto cfg and validates
// the result.
func applyRunFlagOverrides(cmd *cobra.Command, cfg config.Interface) error {
	flags := cmd.Flags()
	if flags.Changed("headless") {
		v, _ := flags.GetBool("headless")
		cfg.SetBrowserHeadless(v)
	}
	if flags.Changed("max-steps") {
		v, _ := flags.GetInt("max-steps")
		if v <= 0 {
			return fmt.Errorf("--max-steps must be a positive integer, got %d", v)
		}
		cfg.SetAgentMaxSteps(v)
	}
	if flags.Changed("model") {
		v, _ := flags.GetString("model")
		cfg.SetLLMModel(v)
	}
	if flags.Changed("provider") {
		v, _ := flags.GetString("provider")
		cfg.SetLLMProvider(config.LLMProvider(strings.ToLower(v)))
	}
	if flags.Changed("endpoint") {
		v, _ := flags.GetString("endpoint")
		cfg.SetLLMEndpoint(v)
	}
	if flags.Changed("no-trace") {
		v, _ := flags.GetBool("no-trace")
		cfg.SetTraceEnabled(!v)
	}

	llmCfg := cfg.LLM()
	if err := llmCfg.Validate(); err != nil {
		return fmt.Errorf("invalid flag overrides: %w", err)
	}
	return nil
}

// runAgent executes one instruction and, when configured, serves metrics
// for the lifetime of the run.
func runAgent(ctx context.Context, out io.Writer, cfg config.Interface, components *runComponents, instruction string, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	runDone := make(chan struct{})

	if addr := cfg.Metrics().Addr; addr != "" && components.Registry != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(components.Registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			logger.Info("Serving metrics.", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-runDone:
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var result agent.Result
	g.Go(func() error {
		defer close(runDone)
		res, err := components.Runner.Run(gctx, instruction)
		result = res
		return err
	})

	waitErr := g.Wait()
	printSummary(out, result, components.Trace)

	switch {
	case result.State == schemas.RunCancelled:
		// The metrics server may have failed and cancelled the run.
		if waitErr != nil && ctx.Err() == nil {
			return waitErr
		}
		logger.Warn("Run cancelled.", zap.String("run_id", result.RunID))
		return fmt.Errorf("run %s aborted: %w", result.RunID, context.Canceled)
	case waitErr != nil:
		return waitErr
	case result.State == schemas.RunCompleted && result.Status == action.StatusFailure:
		return errTaskFailed
	}
	return nil
}

func printSummary(out io.Writer, res agent.Result, rec *trace.Recorder) {
	if res.RunID == "" {
		return
	}
	fmt.Fprintf(out, "\nRun %s %s after %d step(s)", res.RunID, res.State, res.Steps)
	if res.Status != "" {
		fmt.Fprintf(out, " with status %s", res.Status)
	}
	fmt.Fprintln(out, ".")
	if res.Err != nil {
		fmt.Fprintf(out, "Cause: %v\n", res.Err)
	}
	if rec != nil {
		if path := rec.LastPath(); path != "" {
			fmt.Fprintf(out, "Trace: %s\n", path)
		}
	}
}

// defaultRunFactory wires Chrome, the configured model provider and the
// enabled recorders.
func defaultRunFactory(ctx context.Context, cfg *config.Config, observer agent.Observer, logger *zap.Logger) (*runComponents, error) {
	components := &runComponents{}

	// 1. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observability.NewMetrics(registry)
	if err != nil {
		return components, fmt.Errorf("failed to register metrics: %w", err)
	}
	components.Registry = registry

	// 2. Model client
	llmCfg := cfg.LLM()
	client, err := llmclient.NewClient(ctx, llmCfg, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	components.closers = append(components.closers, func() {
		if err := client.Close(); err != nil {
			logger.Warn("Error closing LLM client", zap.Error(err))
		}
	})

	// 3. Recorders
	var recorders []schemas.RunRecorder
	if traceCfg := cfg.Trace(); traceCfg.Enabled {
		rec := trace.NewRecorder(traceCfg.Dir, logger)
		components.Trace = rec
		recorders = append(recorders, rec)
		components.closers = append(components.closers, func() {
			if err := rec.Close(); err != nil {
				logger.Warn("Error closing trace", zap.Error(err))
			}
		})
	}
	if dbURL := cfg.Database().URL; dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return components, fmt.Errorf("failed to connect to database: %w", err)
		}
		components.closers = append(components.closers, pool.Close)

		historyStore, err := store.New(ctx, pool, logger)
		if err != nil {
			return components, fmt.Errorf("failed to initialize run history store: %w", err)
		}
		if err := historyStore.EnsureSchema(ctx); err != nil {
			return components, err
		}
		recorders = append(recorders, historyStore)
	}

	// 4. Browser and loop
	browserCfg := cfg.Browser()
	surface := browser.NewChromeSurface(browserCfg, logger)
	executor := browser.NewExecutor(surface, browserCfg, logger,
		browser.WithMetrics(metrics),
		browser.WithMaxWait(cfg.Agent().MaxWait),
	)
	generator := agent.NewGenerator(client, logger,
		agent.WithThink(llmCfg.Think),
		agent.WithGeneratorMetrics(metrics),
	)
	components.Runner = agent.NewLoop(executor, generator, cfg.Agent(), logger,
		agent.WithObserver(observer),
		agent.WithRecorders(recorders...),
		agent.WithLoopMetrics(metrics),
		agent.WithModelName(llmCfg.Model),
	)

	return components, nil
}
