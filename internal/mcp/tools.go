package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/paceline-ai/stride/internal/model"
	"github.com/paceline-ai/stride/internal/runlog"
)

func (s *Server) registerTools() {
	// stride_generate_plan: produce a full training plan.
	s.mcpServer.AddTool(
		mcplib.NewTool("stride_generate_plan",
			mcplib.WithDescription(`Generate a multi-week training plan for a runner.

The plan is grounded in retrieved coaching references and validated by
deterministic safety rules before it is returned. Check the verdict field:
MODIFIED means the plan was repaired to satisfy the safety constraints,
REJECTED means it was replaced by a safe placeholder.`),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("goal_race",
				mcplib.Description("Goal race distance, e.g. 5k, 10k, half marathon, marathon"),
				mcplib.Required(),
			),
			mcplib.WithString("goal_date",
				mcplib.Description("Race date in YYYY-MM-DD format"),
				mcplib.Required(),
			),
			mcplib.WithNumber("weekly_mileage",
				mcplib.Description("Current weekly training volume in miles"),
				mcplib.Required(),
				mcplib.Min(0),
			),
			mcplib.WithNumber("longest_run",
				mcplib.Description("Longest recent run in miles"),
				mcplib.Min(0),
			),
			mcplib.WithNumber("baseline_pace",
				mcplib.Description("Comfortable easy pace in minutes per mile, e.g. 9.5"),
				mcplib.Min(0),
			),
			mcplib.WithString("injury_flags",
				mcplib.Description("Comma-separated active injury conditions, e.g. 'shin splints, tight calf'. Leave empty if healthy."),
			),
		),
		s.handleGeneratePlan,
	)

	// stride_adjust_today: adjust today's scheduled session.
	s.mcpServer.AddTool(
		mcplib.NewTool("stride_adjust_today",
			mcplib.WithDescription(`Adjust today's scheduled session for fatigue, weather, or injury.

Pass the current plan as JSON (as returned by stride_generate_plan) plus
today's context. The adjusted workout is validated by the same safety
rules as a full plan; injury flags always force an easy or rest day.`),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("plan_json",
				mcplib.Description("The current training plan as JSON"),
				mcplib.Required(),
			),
			mcplib.WithString("date",
				mcplib.Description("The date to adjust in YYYY-MM-DD format"),
				mcplib.Required(),
			),
			mcplib.WithNumber("fatigue",
				mcplib.Description("Fatigue score from 0 (fresh) to 10 (exhausted)"),
				mcplib.Min(0),
				mcplib.Max(10),
			),
			mcplib.WithNumber("temp_f",
				mcplib.Description("Temperature in Fahrenheit"),
			),
			mcplib.WithNumber("humidity",
				mcplib.Description("Relative humidity as a fraction, 0.0-1.0"),
				mcplib.Min(0),
				mcplib.Max(1),
			),
			mcplib.WithString("condition",
				mcplib.Description("Weather condition tag: clear, rain, heat, cold, or wind"),
			),
			mcplib.WithString("injury_flags",
				mcplib.Description("Comma-separated symptoms reported today, e.g. 'knee pain'"),
			),
			mcplib.WithNumber("weekly_mileage",
				mcplib.Description("Current weekly training volume in miles"),
			),
		),
		s.handleAdjustToday,
	)

	// stride_runlog: inspect recent workflow executions.
	s.mcpServer.AddTool(
		mcplib.NewTool("stride_runlog",
			mcplib.WithDescription(`List recent workflow executions with their safety verdicts.

Useful for reviewing what was generated, which safety rules fired, and
what evidence supported each prescription.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("kind",
				mcplib.Description("Optional filter: GENERATE_PLAN or ADJUST_TODAY"),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum entries to return"),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(10),
			),
		),
		s.handleRunLog,
	)
}

func (s *Server) handleGeneratePlan(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	goalRace := request.GetString("goal_race", "")
	goalDateStr := request.GetString("goal_date", "")
	if goalRace == "" || goalDateStr == "" {
		return errorResult("goal_race and goal_date are required"), nil
	}
	goalDate, err := parseDate(goalDateStr)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid goal_date: %v", err)), nil
	}

	profile := model.RunnerProfile{
		GoalRace:      goalRace,
		GoalDate:      goalDate,
		WeeklyMileage: request.GetFloat("weekly_mileage", 0),
		LongestRun:    request.GetFloat("longest_run", 0),
		BaselinePace:  request.GetFloat("baseline_pace", 0),
		InjuryFlags:   splitFlags(request.GetString("injury_flags", "")),
	}

	result, err := s.router.Handle(ctx, model.Request{
		Kind:    model.RequestGeneratePlan,
		Profile: profile,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("plan generation failed: %v", err)), nil
	}
	return workflowToolResult(result), nil
}

func (s *Server) handleAdjustToday(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	planJSON := request.GetString("plan_json", "")
	dateStr := request.GetString("date", "")
	if planJSON == "" || dateStr == "" {
		return errorResult("plan_json and date are required"), nil
	}

	var plan model.TrainingPlan
	if err := json.Unmarshal([]byte(planJSON), &plan); err != nil {
		return errorResult(fmt.Sprintf("invalid plan_json: %v", err)), nil
	}
	date, err := parseDate(dateStr)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid date: %v", err)), nil
	}

	actx := model.AdjustmentContext{
		Date:    date,
		Fatigue: request.GetInt("fatigue", 0),
		Weather: model.Weather{
			TempF:     request.GetFloat("temp_f", 0),
			Humidity:  request.GetFloat("humidity", 0),
			Condition: model.WeatherCondition(request.GetString("condition", "")),
		},
		InjuryFlags: splitFlags(request.GetString("injury_flags", "")),
	}
	profile := model.RunnerProfile{
		GoalRace:      plan.GoalRace,
		GoalDate:      plan.GoalDate,
		WeeklyMileage: request.GetFloat("weekly_mileage", 0),
	}

	result, err := s.router.Handle(ctx, model.Request{
		Kind:    model.RequestAdjustToday,
		Profile: profile,
		Plan:    &plan,
		Context: &actx,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("adjustment failed: %v", err)), nil
	}
	return workflowToolResult(result), nil
}

func (s *Server) handleRunLog(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	filter := runlog.Filter{
		Kind:  model.RequestKind(request.GetString("kind", "")),
		Limit: request.GetInt("limit", 10),
	}
	entries, err := s.runLog.Query(ctx, filter)
	if err != nil {
		return errorResult(fmt.Sprintf("run log query failed: %v", err)), nil
	}
	return textResult(map[string]any{"entries": entries, "count": len(entries)}), nil
}

// parseDate accepts YYYY-MM-DD or full RFC3339.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func splitFlags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
