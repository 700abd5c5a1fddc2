package sales

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AnalyzeInputs holds optional hand-entered metrics for an analysis run.
// Explicit values win over POS-derived totals.
type AnalyzeInputs struct {
	TotalSales     *float64 `json:"totalSales"`
	Orders         *float64 `json:"orders"`
	Refunds        *float64 `json:"refunds"`
	COGS           *float64 `json:"cogs"`
	Labor          *float64 `json:"labor"`
	AvgPrepMinutes *float64 `json:"avgPrepMinutes"`
	Traffic        *float64 `json:"traffic"`
	TopItems       string   `json:"topItems"`
	Goal           string   `json:"goal"`
	City           string   `json:"city"`
	UpcomingPromo  string   `json:"upcomingPromo"`
	Notes          string   `json:"notes"`
}

// AnalyzeRequest asks for KPIs, a naive forecast and an AI summary over a
// date range.
type AnalyzeRequest struct {
	StartDate string         `json:"startDate"`
	EndDate   string         `json:"endDate"`
	Store     string         `json:"store"`
	Inputs    *AnalyzeInputs `json:"inputs"`
	POSText   string         `json:"posText"`
}

// KPIRange is the analyzed date range.
type KPIRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// KPIs are display-formatted metrics; "—" marks a value that could not be
// derived.
type KPIs struct {
	Revenue     string   `json:"revenue"`
	Orders      string   `json:"orders"`
	AvgTicket   string   `json:"avgTicket"`
	Refunds     string   `json:"refunds"`
	COGS        string   `json:"cogs"`
	Labor       string   `json:"labor"`
	LaborPct    string   `json:"laborPct"`
	GrossMargin string   `json:"grossMargin"`
	Range       KPIRange `json:"range"`
	Store       string   `json:"store,omitempty"`
}

// ForecastDay is one projected day of sales.
type ForecastDay struct {
	Day   int `json:"day"`
	Sales int `json:"sales"`
}

// AnalyzeDebug reports which sources fed the computation.
type AnalyzeDebug struct {
	UsedPOSRows  int `json:"usedPOSRows"`
	ComputedFrom struct {
		Totals bool `json:"totals"`
		COGS   bool `json:"cogs"`
		Labor  bool `json:"labor"`
	} `json:"computedFrom"`
}

// Analysis is the full sales analysis result. GrossMarginPct and LaborPct
// carry the raw percentages for threshold checks and are not serialized.
type Analysis struct {
	KPIs     KPIs          `json:"kpis"`
	Forecast []ForecastDay `json:"forecast"`
	Summary  string        `json:"summary"`
	Actions  []string      `json:"actions"`
	Debug    AnalyzeDebug  `json:"debug"`

	GrossMarginPct *float64 `json:"-"`
	LaborPct       *float64 `json:"-"`
	RefundsPct     *float64 `json:"-"`
}

// Analyze derives KPIs from the inputs and any pasted POS rows, projects a
// naive 7-day forecast and asks the model for a short summary with actions.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	if req.StartDate == "" || req.EndDate == "" || req.Inputs == nil {
		return nil, fmt.Errorf("missing required fields (startDate, endDate, inputs)")
	}
	in := req.Inputs
	pos := ParsePOS(req.POSText)

	totalSales := pick(in.TotalSales, pos.Totals.Sales)
	orders := pick(in.Orders, pos.Totals.Orders)
	refunds := 0.0
	if r := pick(in.Refunds, pos.Totals.Refunds); r != nil {
		refunds = *r
	}
	cogs := pick(in.COGS, pos.Totals.COGS)
	labor := pick(in.Labor, pos.Totals.Labor)

	var avgTicket, grossMarginPct, laborPct *float64
	if orders != nil && *orders > 0 && totalSales != nil {
		avgTicket = ptr(*totalSales / *orders)
	}
	if totalSales != nil && cogs != nil {
		grossMarginPct = ptr((1 - *cogs / *totalSales) * 100)
	}
	if totalSales != nil && labor != nil {
		laborPct = ptr(*labor / *totalSales * 100)
	}
	var refundsPct *float64
	if totalSales != nil {
		refundsPct = ptr(refunds / *totalSales * 100)
	}

	var dailySales []float64
	if len(pos.Rows) > 0 {
		for _, r := range pos.Rows {
			if v := orZero(r.Sales); v > 0 {
				dailySales = append(dailySales, v)
			}
		}
	} else if totalSales != nil && *totalSales > 0 {
		// Spread a range-only total over a 7-day baseline.
		for i := 0; i < 7; i++ {
			dailySales = append(dailySales, *totalSales/7)
		}
	}

	histMA := movingAverage(dailySales, 3)
	last := 0.0
	if len(histMA) > 0 {
		last = histMA[len(histMA)-1]
	} else if totalSales != nil {
		last = *totalSales / 7
	}

	tail := dailySales
	if len(tail) > 3 {
		tail = tail[len(tail)-3:]
	}
	avgDelta := 0.0
	if len(tail) > 0 {
		sum := 0.0
		for i := 1; i < len(tail); i++ {
			sum += tail[i] - tail[i-1]
		}
		avgDelta = sum / float64(len(tail))
	}

	forecast := make([]ForecastDay, 7)
	for i := range forecast {
		v := math.Max(0, last+avgDelta*(float64(i)/2))
		forecast[i] = ForecastDay{Day: i + 1, Sales: int(math.Round(v))}
	}

	kpis := KPIs{
		Revenue:     usd(totalSales),
		Orders:      numOrDash(orders),
		AvgTicket:   usd(avgTicket),
		Refunds:     usd(&refunds),
		COGS:        usd(cogs),
		Labor:       usd(labor),
		LaborPct:    pctOrDash(laborPct),
		GrossMargin: pctOrDash(grossMarginPct),
		Range:       KPIRange{Start: req.StartDate, End: req.EndDate},
		Store:       req.Store,
	}

	result := &Analysis{
		KPIs:           kpis,
		Forecast:       forecast,
		GrossMarginPct: grossMarginPct,
		LaborPct:       laborPct,
		RefundsPct:     refundsPct,
	}
	result.Debug.UsedPOSRows = len(pos.Rows)
	result.Debug.ComputedFrom.Totals = (in.TotalSales != nil && *in.TotalSales != 0) || len(pos.Rows) > 0
	result.Debug.ComputedFrom.COGS = truthyOr(in.COGS, pos.Totals.COGS)
	result.Debug.ComputedFrom.Labor = truthyOr(in.Labor, pos.Totals.Labor)

	if s.ai == nil {
		result.Summary = "AI disabled (no OPENAI_API_KEY). Showing baseline KPIs and a naive 7-day forecast."
		result.Actions = []string{
			"Add your OPENAI_API_KEY to enable AI summaries.",
			"Paste POS rows for a better forecast baseline.",
			"Enter COGS & Labor for accurate margin and labor%.",
		}
		return result, nil
	}

	system := `You are a concise restaurant analytics assistant. Output short, actionable insights.`
	user := fmt.Sprintf(`Date range: %s → %s
Store: %s
City: %s
Top items: %s
Goal: %s
Upcoming promo: %s
Notes: %s

Numbers:
- Revenue: %s
- Orders: %s
- Avg Ticket: %s
- Refunds: %s
- COGS: %s
- Labor: %s
- Labor %%: %s
- Gross Margin: %s
- POS rows: %d

Please provide:
1) A 2–4 sentence summary.
2) 3–5 short, concrete recommended actions focused on lift (pricing, mix, staffing, promos, ops).
Return plain text (no JSON).`,
		req.StartDate, req.EndDate,
		orDash(req.Store), orDash(in.City), orDash(in.TopItems), orDash(in.Goal),
		orDash(in.UpcomingPromo), orDash(in.Notes),
		kpis.Revenue, numOrDash(orders), kpis.AvgTicket, kpis.Refunds,
		kpis.COGS, kpis.Labor, kpis.LaborPct, kpis.GrossMargin, len(pos.Rows))

	text, err := s.ai.GenerateConversation(ctx, system, user)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)

	lines := strings.Split(text, "\n")
	if len(lines) > 5 {
		lines = lines[:5]
	}
	result.Summary = strings.TrimSpace(strings.Join(lines, "\n"))
	result.Actions = extractActions(text)

	s.log.WithField("pos_rows", len(pos.Rows)).Debug("sales analysis generated")
	return result, nil
}

func extractActions(text string) []string {
	var actions []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		var body string
		switch {
		case strings.HasPrefix(trimmed, "- "):
			body = trimmed[2:]
		case strings.HasPrefix(trimmed, "* "):
			body = trimmed[2:]
		case strings.HasPrefix(trimmed, "• "):
			body = trimmed[len("• "):]
		default:
			continue
		}
		if body = strings.TrimSpace(body); body != "" {
			actions = append(actions, body)
		}
		if len(actions) == 5 {
			break
		}
	}
	if len(actions) == 0 {
		actions = []string{
			"Feature 2 top-margin items on menu boards + social today.",
			"Test +$0.25 on best-seller; watch AOV and conversion.",
			"Align staffing to peak hours to keep labor% ≤ target.",
		}
	}
	return actions
}

func pick(in *float64, posTotal float64) *float64 {
	if in != nil && *in != 0 {
		return in
	}
	if posTotal != 0 {
		return &posTotal
	}
	return nil
}

func truthyOr(in *float64, posTotal float64) bool {
	if in != nil {
		return *in != 0
	}
	return posTotal != 0
}

func ptr(v float64) *float64 { return &v }

// usd formats a dollar amount like $1,234.56; nil and non-finite values
// render as "—".
func usd(n *float64) string {
	if n == nil || math.IsNaN(*n) || math.IsInf(*n, 0) {
		return "—"
	}
	v := *n
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	dot := strings.IndexByte(s, '.')
	var b strings.Builder
	for i := 0; i < dot; i++ {
		if i > 0 && (dot-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(s[i])
	}
	return sign + "$" + b.String() + s[dot:]
}

func numOrDash(n *float64) string {
	if n == nil {
		return "—"
	}
	return strconv.FormatFloat(*n, 'f', -1, 64)
}

func pctOrDash(p *float64) string {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return "—"
	}
	return fmt.Sprintf("%d%%", int(math.Round(*p)))
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return s
}

// movingAverage returns the trailing mean of the series over the window.
func movingAverage(series []float64, win int) []float64 {
	if len(series) == 0 {
		return nil
	}
	out := make([]float64, len(series))
	for i := range series {
		start := i - win + 1
		if start < 0 {
			start = 0
		}
		sum := 0.0
		for _, v := range series[start : i+1] {
			sum += v
		}
		out[i] = sum / float64(i+1-start)
	}
	return out
}
