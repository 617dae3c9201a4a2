package generation

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an experienced running coach. You prescribe ` +
	`conservative, evidence-based training. Ground every recommendation in ` +
	`the numbered reference passages provided; do not invent training ` +
	`principles that the passages do not support. Respond with a single ` +
	`JSON object and nothing else.`

const planSchema = `{"weeks":[{"index":1,"phase":"base|build|peak|taper",` +
	`"total_mileage":20.0,"days":[{"day":"Mon","type":"rest|easy|long|tempo|interval|race",` +
	`"distance_mi":4.0,"pace_low":9.0,"pace_high":9.75,"rationale":"short reason"}]}]}`

const workoutSchema = `{"type":"rest|easy|long|tempo|interval|race",` +
	`"distance_mi":3.0,"pace_low":9.0,"pace_high":10.0,"rationale":"short reason"}`

// renderMessages turns a structured Prompt into the system and user messages
// sent to the chat backend.
func renderMessages(p Prompt) (system, user string) {
	var b strings.Builder

	b.WriteString("Runner profile:\n")
	fmt.Fprintf(&b, "- goal race: %s on %s\n", p.Profile.GoalRace, p.Profile.GoalDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "- current weekly mileage: %.1f mi\n", p.Profile.WeeklyMileage)
	fmt.Fprintf(&b, "- longest recent run: %.1f mi\n", p.Profile.LongestRun)
	fmt.Fprintf(&b, "- baseline easy pace: %.2f min/mi\n", p.Profile.BaselinePace)
	if len(p.Profile.InjuryFlags) > 0 {
		fmt.Fprintf(&b, "- active injuries: %s\n", strings.Join(p.Profile.InjuryFlags, ", "))
	}
	b.WriteString("\n")

	if len(p.Passages) > 0 {
		b.WriteString("Reference passages:\n")
		for i, ev := range p.Passages {
			fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, ev.Source, ev.Text)
		}
		b.WriteString("\n")
	}

	switch p.Task {
	case TaskPlan:
		fmt.Fprintf(&b, "Task: produce a %d-week training plan starting Monday %s.\n",
			p.Weeks, p.StartDate.Format("2006-01-02"))
		b.WriteString("Each week has exactly 7 days, Monday through Sunday. ")
		b.WriteString("Weekly total_mileage must equal the sum of the daily distances. ")
		b.WriteString("Progress volume gradually and include a taper before the race.\n")
		b.WriteString("Output JSON matching this schema exactly:\n")
		b.WriteString(planSchema)
	case TaskAdjust:
		if p.Scheduled != nil {
			fmt.Fprintf(&b, "Scheduled session for %s: %s, %.1f mi.\n",
				p.Scheduled.Date.Format("2006-01-02"), p.Scheduled.Type, p.Scheduled.Distance)
		}
		if p.Context != nil {
			fmt.Fprintf(&b, "Today's state: fatigue %d/10, temperature %.0fF, humidity %.0f%%, conditions %s.\n",
				p.Context.Fatigue, p.Context.Weather.TempF,
				p.Context.Weather.Humidity*100, p.Context.Weather.Condition)
			if len(p.Context.InjuryFlags) > 0 {
				fmt.Fprintf(&b, "Reported symptoms today: %s.\n", strings.Join(p.Context.InjuryFlags, ", "))
			}
		}
		if p.Guidance != "" {
			fmt.Fprintf(&b, "Adjustment directives: %s\n", p.Guidance)
		}
		b.WriteString("Task: prescribe today's adjusted session. ")
		b.WriteString("Output JSON matching this schema exactly:\n")
		b.WriteString(workoutSchema)
	}

	return systemPrompt, b.String()
}
