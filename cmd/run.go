package cmd

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
	"github.com/goelayush89/robin-ai-sub000/internal/agent"
	"github.com/goelayush89/robin-ai-sub000/internal/config"
	"github.com/goelayush89/robin-ai-sub000/internal/events"
	"github.com/goelayush89/robin-ai-sub000/internal/observability"

	// Concrete operators register themselves with the operator registry.
	_ "github.com/goelayush89/robin-ai-sub000/internal/operator/browser"
	_ "github.com/goelayush89/robin-ai-sub000/internal/operator/input"
	_ "github.com/goelayush89/robin-ai-sub000/internal/operator/screen"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [instruction...]",
		Short: "Runs one natural-language instruction to completion",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so they override the config file and env vars.
			bindings := map[string]string{
				"agent.variant":                   "variant",
				"agent.model.provider":            "provider",
				"agent.model.name":                "model",
				"agent.settings.max_iterations":   "max-iterations",
				"agent.operator.browser.headless": "headless",
			}
			for key, flag := range bindings {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			instruction := strings.Join(args, " ")

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ag, err := agent.New(cfg.Agent, logger)
			if err != nil {
				return err
			}

			// Subscribe before Initialize so no lifecycle event is missed.
			eventCh, unsubscribe := ag.Events().Subscribe()
			defer unsubscribe()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, runCtx := errgroup.WithContext(ctx)

			g.Go(func() error {
				forwardEvents(eventCh, logger)
				return nil
			})

			var results []schemas.ActionResult
			g.Go(func() error {
				defer func() {
					if err := ag.Stop(); err != nil {
						logger.Warn("Agent shutdown reported an error.", zap.Error(err))
					}
				}()

				if err := ag.Initialize(runCtx); err != nil {
					return err
				}

				// A signal mid-run asks the loop to stop at its next
				// checkpoint instead of killing the process.
				watchDone := make(chan struct{})
				defer close(watchDone)
				go func() {
					select {
					case <-runCtx.Done():
						_ = ag.Stop()
					case <-watchDone:
					}
				}()

				res, execErr := ag.Execute(runCtx, instruction, schemas.ExecutionContext{})
				results = res
				return execErr
			})

			runErr := g.Wait()
			printSummary(cmd, ag, results)

			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			return nil
		},
	}

	runCmd.Flags().String("variant", string(config.VariantHybrid), "agent variant: local, browser, or hybrid")
	runCmd.Flags().String("provider", string(config.ProviderOpenAI), "model provider: openai, anthropic, or openrouter")
	runCmd.Flags().String("model", "", "model name, e.g. gpt-4o")
	runCmd.Flags().Int("max-iterations", 0, "maximum loop iterations (0 uses the configured default)")
	runCmd.Flags().Bool("headless", true, "run the browser headless")

	return runCmd
}

// forwardEvents mirrors the agent's event stream into the log until the
// bus closes.
func forwardEvents(ch <-chan events.Event, logger *zap.Logger) {
	log := logger.Named("events")
	for ev := range ch {
		fields := []zap.Field{zap.String("session_id", ev.SessionID)}
		switch ev.Type {
		case events.EventStatusChanged:
			fields = append(fields, zap.String("status", string(ev.Status)))
		case events.EventIterationStarted, events.EventIterationCompleted,
			events.EventMaxIterationsReached:
			fields = append(fields, zap.Int("iteration", ev.Iteration))
		case events.EventAnalysisCompleted:
			if ev.Response != nil {
				fields = append(fields,
					zap.Float64("confidence", ev.Response.Confidence),
					zap.Int("planned_actions", len(ev.Response.Actions)))
			}
		case events.EventActionStarted, events.EventActionCompleted,
			events.EventUserInputRequested:
			if ev.Action != nil {
				fields = append(fields, zap.String("action", string(ev.Action.Type)))
			}
			if ev.Result != nil {
				fields = append(fields, zap.Bool("success", ev.Result.Success))
			}
		case events.EventModeSwitched:
			fields = append(fields,
				zap.String("from", string(ev.PreviousMode)),
				zap.String("to", string(ev.Mode)))
		case events.EventError:
			fields = append(fields, zap.String("error", ev.Error))
		}
		log.Info(string(ev.Type), fields...)
	}
}

func printSummary(cmd *cobra.Command, ag agent.Agent, results []schemas.ActionResult) {
	current, ok := ag.Sessions().Current()
	if !ok {
		return
	}
	stats, err := ag.Sessions().Stats(current.ID)
	if err != nil {
		return
	}
	cmd.Printf("\nSession %s ended as %s: %d actions, %d succeeded, %d failed (%.0f%% success) in %s\n",
		stats.SessionID, stats.Status, stats.TotalActions, stats.Succeeded,
		stats.Failed, stats.SuccessRate*100, stats.Elapsed.Round(10*time.Millisecond))
	for _, r := range results {
		if r.IsMeta() {
			cmd.Printf("  marker: %s\n", r.Marker)
		}
	}
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}
