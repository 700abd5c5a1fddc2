// Package sales turns raw sales figures and POS exports into recaps,
// short-range forecasts and KPI breakdowns.
package sales

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/turntable-ai/turntable/pkg/logger"
)

// Assist task names.
const (
	TaskRecap    = "recap"
	TaskForecast = "forecast"
)

// Input caps for the assist endpoint.
const (
	maxPeriodLen = 120
	maxDataLen   = 6000
	maxNotesLen  = 2000
)

// TextGenerator produces model output for a system/user conversation.
type TextGenerator interface {
	GenerateConversation(ctx context.Context, system, user string) (string, error)
}

// Service answers sales questions. The generator may be nil; Analyze then
// falls back to baseline KPIs without an AI summary.
type Service struct {
	ai  TextGenerator
	log *logger.Logger
}

// New constructs a sales service.
func New(ai TextGenerator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("sales")
	}
	return &Service{ai: ai, log: log}
}

func clean(s string, max int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > max {
		return string(r[:max])
	}
	return s
}

// AssistRequest asks for a free-form recap or forecast over pasted context.
type AssistRequest struct {
	Task   string `json:"task"`
	Period string `json:"period"`
	Data   string `json:"data"`
	Notes  string `json:"notes"`
}

// Assist produces a recap or short-range forecast for the given period.
func (s *Service) Assist(ctx context.Context, req AssistRequest) (string, error) {
	if req.Task != TaskRecap && req.Task != TaskForecast {
		return "", fmt.Errorf("invalid task. use 'recap' or 'forecast'")
	}
	period := clean(req.Period, maxPeriodLen)
	if period == "" {
		return "", fmt.Errorf("missing 'period'")
	}
	data := clean(req.Data, maxDataLen)
	notes := clean(req.Notes, maxNotesLen)

	if s.ai == nil {
		return "", fmt.Errorf("ai generator not configured")
	}

	var system, format string
	if req.Task == TaskRecap {
		system = `You are an operations analyst for a small restaurant.
Return a concise sales RECAP for the specified period.
Focus on:
- Total revenue / avg ticket (if given or can be inferred)
- Daily/weekly patterns and top items (if given)
- Notable spikes/dips and plausible causes
- 3 bullet recommendations for today

Tone: crisp, practical, no fluff.`
		format = fmt.Sprintf(`# Sales Recap (%s)
- Summary:
- Patterns:
- Spikes/Dips:
- Recommendations (3 bullets):`, period)
	} else {
		system = `You are an operations analyst for a small restaurant.
Return a concise short-range FORECAST for the next 1–7 days using the provided context.
Include:
- A one-paragraph outlook with rationale
- A small bullet list of staffing/ordering suggestions
- 2 risks to watch

Tone: crisp, practical, no fluff.`
		format = `# Sales Forecast (Next 1–7 days)
- Outlook:
- Suggestions (staffing/ordering):
- Risks:`
	}

	dataLine := "Sales/Context Data: (none)"
	if data != "" {
		dataLine = "Sales/Context Data:\n" + data
	}
	notesLine := "Owner Notes: (none)"
	if notes != "" {
		notesLine = "Owner Notes:\n" + notes
	}
	user := strings.Join([]string{
		"Task: " + strings.ToUpper(req.Task),
		"Period: " + period,
		dataLine,
		notesLine,
		"",
		"Output format:",
		format,
	}, "\n")

	out, err := s.ai.GenerateConversation(ctx, system, user)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		out = "No response returned."
	}
	s.log.WithField("task", req.Task).Debug("sales assist generated")
	return out, nil
}

// RecapRequest carries the structured metrics of the recap form.
type RecapRequest struct {
	PeriodStart    string         `json:"periodStart"`
	PeriodEnd      string         `json:"periodEnd"`
	StoreName      string         `json:"storeName"`
	City           string         `json:"city"`
	TotalSales     *float64       `json:"totalSales"`
	Orders         *float64       `json:"orders"`
	Refunds        *float64       `json:"refunds"`
	COGS           *float64       `json:"cogs"`
	LaborHours     *float64       `json:"laborHours"`
	LaborCost      *float64       `json:"laborCost"`
	FootTraffic    *float64       `json:"footTraffic"`
	AvgPrepTimeMin *float64       `json:"avgPrepTimeMin"`
	Notes          string         `json:"notes"`
	TopItems       string         `json:"topItems"`
	UpcomingPromo  string         `json:"upcomingPromo"`
	GoalNextPeriod string         `json:"goalNextPeriod"`
	RawPaste       string         `json:"rawPaste"`
	Computed       map[string]any `json:"computed"`
	Language       string         `json:"language"`
}

// Recap writes an operator-style period recap with a KPI table and a 7-day
// forecast from the structured form metrics.
func (s *Service) Recap(ctx context.Context, req RecapRequest) (string, error) {
	if s.ai == nil {
		return "", fmt.Errorf("ai generator not configured")
	}
	language := req.Language
	if language == "" {
		language = "English"
	}

	system := fmt.Sprintf(`You are an operator-minded restaurant analyst.
Write concise, practical summaries for small cafes and coffee shops.
Write the entire output in %s. Avoid fluff and give clear next actions.`, language)

	computed := req.Computed
	if computed == nil {
		computed = map[string]any{}
	}
	computedJSON, err := json.MarshalIndent(computed, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode computed kpis: %w", err)
	}

	paste := "N/A"
	if req.RawPaste != "" {
		paste = "```" + req.RawPaste + "```"
	}

	user := fmt.Sprintf(`Store: %s   City: %s
Period: %s → %s

Raw metrics (may be partial):
- Total sales: %s
- Orders: %s
- Refunds: %s
- COGS: %s
- Labor hours: %s
- Labor cost: %s
- Foot traffic: %s
- Avg prep time (min): %s

Client-computed KPIs (if available):
%s

Top items: %s
Notes/context: %s
Upcoming promo: %s
Goal for next period: %s

Optional POS paste:
%s

TASKS:
1) Sales Recap (3–6 bullet points): highs/lows, AOV, margin/labor signals, anomalies.
2) Simple KPI table: Net Sales, Orders, AOV, Refunds $, Gross Margin %%, Labor %%, any other obvious.
3) 7-Day Forecast (table): day-of-week, low/mid/high sales bands, expected orders, quick note.
4) Staffing & Ordering Tips (3–5 bullets) tied to the forecast.
5) One-line Owner Takeaway (crisp, action-oriented).`,
		orNA(req.StoreName), orNA(req.City),
		orNA(req.PeriodStart), orNA(req.PeriodEnd),
		val(req.TotalSales), val(req.Orders), val(req.Refunds), val(req.COGS),
		val(req.LaborHours), val(req.LaborCost), val(req.FootTraffic), val(req.AvgPrepTimeMin),
		computedJSON,
		orNA(req.TopItems), orNA(req.Notes), orNA(req.UpcomingPromo), orNA(req.GoalNextPeriod),
		paste)

	out, err := s.ai.GenerateConversation(ctx, system, user)
	if err != nil {
		return "", err
	}
	s.log.WithField("period_start", req.PeriodStart).Debug("sales recap generated")
	return out, nil
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func val(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
