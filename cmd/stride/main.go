// Command stride runs the training-plan server or executes one-shot plan
// and adjustment requests from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/paceline-ai/stride"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stride",
		Short:         "Grounded training plan generation with deterministic safety rails",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), planCmd(), adjustCmd())
	return root
}

// newLogger writes JSON logs to w. The one-shot commands log to stderr so
// stdout stays clean JSON for piping.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("STRIDE_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(os.Stdout)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			opts := []stride.Option{
				stride.WithLogger(logger),
				stride.WithVersion(version),
			}
			if port != 0 {
				opts = append(opts, stride.WithPort(port))
			}
			app, err := stride.New(opts...)
			if err != nil {
				return err
			}
			return app.Run(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "TCP port (overrides STRIDE_PORT)")
	return cmd
}

func planCmd() *cobra.Command {
	var (
		goalRace      string
		goalDate      string
		weeklyMileage float64
		longestRun    float64
		baselinePace  float64
		injuryFlags   []string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Generate a training plan and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(os.Stderr)

			date, err := time.Parse("2006-01-02", goalDate)
			if err != nil {
				return fmt.Errorf("invalid --goal-date: %w", err)
			}

			app, err := stride.New(stride.WithLogger(logger), stride.WithVersion(version))
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			result, err := app.GeneratePlan(ctx, stride.PlanRequest{
				GoalRace:      goalRace,
				GoalDate:      date,
				WeeklyMileage: weeklyMileage,
				LongestRun:    longestRun,
				BaselinePace:  baselinePace,
				InjuryFlags:   injuryFlags,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&goalRace, "goal-race", "", "goal race distance, e.g. 5k, 10k, half marathon, marathon")
	cmd.Flags().StringVar(&goalDate, "goal-date", "", "race date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&weeklyMileage, "weekly-mileage", 0, "current weekly volume in miles")
	cmd.Flags().Float64Var(&longestRun, "longest-run", 0, "longest recent run in miles")
	cmd.Flags().Float64Var(&baselinePace, "baseline-pace", 0, "easy pace in minutes per mile")
	cmd.Flags().StringSliceVar(&injuryFlags, "injury", nil, "active injury condition (repeatable)")
	_ = cmd.MarkFlagRequired("goal-race")
	_ = cmd.MarkFlagRequired("goal-date")
	_ = cmd.MarkFlagRequired("weekly-mileage")
	return cmd
}

func adjustCmd() *cobra.Command {
	var (
		planFile      string
		dateStr       string
		fatigue       int
		tempF         float64
		humidity      float64
		condition     string
		injuryFlags   []string
		weeklyMileage float64
	)
	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Adjust one day of an existing plan and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(os.Stderr)

			planJSON, err := os.ReadFile(planFile)
			if err != nil {
				return fmt.Errorf("read --plan: %w", err)
			}
			date, err := time.Parse("2006-01-02", dateStr)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}

			app, err := stride.New(stride.WithLogger(logger), stride.WithVersion(version))
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			result, err := app.AdjustToday(ctx, stride.AdjustRequest{
				PlanJSON:      planJSON,
				Date:          date,
				Fatigue:       fatigue,
				TempF:         tempF,
				Humidity:      humidity,
				Condition:     condition,
				InjuryFlags:   injuryFlags,
				WeeklyMileage: weeklyMileage,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&planFile, "plan", "", "file holding the plan artifact JSON from a previous run")
	cmd.Flags().StringVar(&dateStr, "date", "", "date to adjust (YYYY-MM-DD)")
	cmd.Flags().IntVar(&fatigue, "fatigue", 0, "fatigue score, 0 (fresh) to 10 (exhausted)")
	cmd.Flags().Float64Var(&tempF, "temp-f", 0, "temperature in Fahrenheit")
	cmd.Flags().Float64Var(&humidity, "humidity", 0, "relative humidity as a fraction, 0.0-1.0")
	cmd.Flags().StringVar(&condition, "condition", "", "weather condition: clear, rain, heat, cold, or wind")
	cmd.Flags().StringSliceVar(&injuryFlags, "injury", nil, "symptom reported today (repeatable)")
	cmd.Flags().Float64Var(&weeklyMileage, "weekly-mileage", 0, "current weekly volume in miles")
	_ = cmd.MarkFlagRequired("plan")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
