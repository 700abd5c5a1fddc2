package sales

import (
	"context"
	"math"
	"strings"
	"testing"
)

type fakeAI struct {
	system string
	user   string
	out    string
	err    error
}

func (f *fakeAI) GenerateConversation(_ context.Context, system, user string) (string, error) {
	f.system = system
	f.user = user
	return f.out, f.err
}

func TestAssistRejectsUnknownTask(t *testing.T) {
	svc := New(&fakeAI{}, nil)

	_, err := svc.Assist(context.Background(), AssistRequest{Task: "audit", Period: "last week"})
	if err == nil || !strings.Contains(err.Error(), "invalid task") {
		t.Fatalf("expected task error, got %v", err)
	}
}

func TestAssistRequiresPeriod(t *testing.T) {
	svc := New(&fakeAI{}, nil)

	_, err := svc.Assist(context.Background(), AssistRequest{Task: TaskRecap, Period: "   "})
	if err == nil || !strings.Contains(err.Error(), "period") {
		t.Fatalf("expected period error, got %v", err)
	}
}

func TestAssistRecapPrompt(t *testing.T) {
	ai := &fakeAI{out: "recap text"}
	svc := New(ai, nil)

	out, err := svc.Assist(context.Background(), AssistRequest{
		Task:   TaskRecap,
		Period: "June 2026",
		Data:   "Mon 1200, Tue 1350",
	})
	if err != nil {
		t.Fatalf("assist: %v", err)
	}
	if out != "recap text" {
		t.Fatalf("out = %q", out)
	}
	if !strings.Contains(ai.system, "sales RECAP") {
		t.Fatalf("system prompt = %q", ai.system)
	}
	if !strings.Contains(ai.user, "Task: RECAP") ||
		!strings.Contains(ai.user, "# Sales Recap (June 2026)") {
		t.Fatalf("user prompt = %q", ai.user)
	}
	if !strings.Contains(ai.user, "Owner Notes: (none)") {
		t.Fatalf("expected empty notes marker in %q", ai.user)
	}
}

func TestAssistForecastOutputFormat(t *testing.T) {
	ai := &fakeAI{out: "forecast"}
	svc := New(ai, nil)

	if _, err := svc.Assist(context.Background(), AssistRequest{Task: TaskForecast, Period: "next week"}); err != nil {
		t.Fatalf("assist: %v", err)
	}
	if !strings.Contains(ai.system, "short-range FORECAST") ||
		!strings.Contains(ai.user, "# Sales Forecast (Next 1–7 days)") {
		t.Fatalf("prompts: system=%q user=%q", ai.system, ai.user)
	}
}

func TestAssistCapsInputLengths(t *testing.T) {
	ai := &fakeAI{out: "x"}
	svc := New(ai, nil)

	if _, err := svc.Assist(context.Background(), AssistRequest{
		Task:   TaskRecap,
		Period: strings.Repeat("p", 500),
		Data:   strings.Repeat("d", 9000),
	}); err != nil {
		t.Fatalf("assist: %v", err)
	}
	if strings.Contains(ai.user, strings.Repeat("p", 121)) {
		t.Fatal("period was not capped at 120 chars")
	}
	if strings.Contains(ai.user, strings.Repeat("d", 6001)) {
		t.Fatal("data was not capped at 6000 chars")
	}
}

func TestAssistEmptyOutputFallsBack(t *testing.T) {
	svc := New(&fakeAI{out: "  "}, nil)

	out, err := svc.Assist(context.Background(), AssistRequest{Task: TaskForecast, Period: "tomorrow"})
	if err != nil {
		t.Fatalf("assist: %v", err)
	}
	if out != "No response returned." {
		t.Fatalf("out = %q", out)
	}
}

func TestRecapPromptFieldsAndLanguage(t *testing.T) {
	ai := &fakeAI{out: "recap"}
	svc := New(ai, nil)

	sales := 8400.0
	_, err := svc.Recap(context.Background(), RecapRequest{
		PeriodStart: "2026-08-01",
		PeriodEnd:   "2026-08-07",
		StoreName:   "Harbor Cafe",
		TotalSales:  &sales,
		Language:    "Spanish",
		RawPaste:    "date,sales\n2026-08-01,1200",
	})
	if err != nil {
		t.Fatalf("recap: %v", err)
	}
	if !strings.Contains(ai.system, "Write the entire output in Spanish.") {
		t.Fatalf("system prompt = %q", ai.system)
	}
	if !strings.Contains(ai.user, "Store: Harbor Cafe") ||
		!strings.Contains(ai.user, "- Total sales: 8400") ||
		!strings.Contains(ai.user, "- Orders: N/A") {
		t.Fatalf("user prompt = %q", ai.user)
	}
	if !strings.Contains(ai.user, "```date,sales\n2026-08-01,1200```") {
		t.Fatalf("expected fenced POS paste in %q", ai.user)
	}
}

func TestRecapDefaultsToEnglish(t *testing.T) {
	ai := &fakeAI{out: "recap"}
	svc := New(ai, nil)

	if _, err := svc.Recap(context.Background(), RecapRequest{}); err != nil {
		t.Fatalf("recap: %v", err)
	}
	if !strings.Contains(ai.system, "in English.") {
		t.Fatalf("system prompt = %q", ai.system)
	}
	if !strings.Contains(ai.user, "Optional POS paste:\nN/A") {
		t.Fatalf("user prompt = %q", ai.user)
	}
}

func TestParsePOSWithHeader(t *testing.T) {
	data := ParsePOS("Date,Net Sales,Orders,Refunds\n2026-08-01,\"?\",,\n2026-08-02,$1200,80,15\n2026-08-03,950.50,61,0")

	if len(data.Rows) != 3 {
		t.Fatalf("rows = %d", len(data.Rows))
	}
	if data.Rows[1].Date != "2026-08-02" || data.Rows[1].Sales != 1200 || data.Rows[1].Orders != 80 {
		t.Fatalf("row 1 = %+v", data.Rows[1])
	}
	if !math.IsNaN(data.Rows[0].Sales) {
		t.Fatalf("unparseable sales cell should be NaN, got %v", data.Rows[0].Sales)
	}
	if data.Totals.Sales != 2150.50 || data.Totals.Orders != 141 || data.Totals.Refunds != 15 {
		t.Fatalf("totals = %+v", data.Totals)
	}
}

func TestParsePOSHeaderless(t *testing.T) {
	data := ParsePOS("2026-08-01,1000,50\n2026-08-02,1100,55")

	if len(data.Rows) != 2 {
		t.Fatalf("rows = %d", len(data.Rows))
	}
	if data.Rows[0].Date != "2026-08-01" || data.Rows[0].Sales != 1000 || data.Rows[0].Orders != 50 {
		t.Fatalf("row 0 = %+v", data.Rows[0])
	}
	if data.Totals.Sales != 2100 {
		t.Fatalf("totals = %+v", data.Totals)
	}
}

func TestParsePOSEmpty(t *testing.T) {
	data := ParsePOS("   \n  ")
	if len(data.Rows) != 0 || data.Totals.Sales != 0 {
		t.Fatalf("expected empty parse, got %+v", data)
	}
}

func TestAnalyzeRequiresFields(t *testing.T) {
	svc := New(&fakeAI{}, nil)

	if _, err := svc.Analyze(context.Background(), AnalyzeRequest{StartDate: "2026-08-01"}); err == nil {
		t.Fatal("expected missing-fields error")
	}
}

func TestAnalyzeKPIsFromExplicitInputs(t *testing.T) {
	ai := &fakeAI{out: "Summary line.\n- Action one\n- Action two"}
	svc := New(ai, nil)

	sales, orders, cogs, labor := 10000.0, 400.0, 3000.0, 2500.0
	res, err := svc.Analyze(context.Background(), AnalyzeRequest{
		StartDate: "2026-08-01",
		EndDate:   "2026-08-07",
		Store:     "Harbor Cafe",
		Inputs: &AnalyzeInputs{
			TotalSales: &sales,
			Orders:     &orders,
			COGS:       &cogs,
			Labor:      &labor,
		},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.KPIs.Revenue != "$10,000.00" {
		t.Fatalf("revenue = %q", res.KPIs.Revenue)
	}
	if res.KPIs.AvgTicket != "$25.00" {
		t.Fatalf("avg ticket = %q", res.KPIs.AvgTicket)
	}
	if res.KPIs.GrossMargin != "70%" || res.KPIs.LaborPct != "25%" {
		t.Fatalf("margin = %q labor = %q", res.KPIs.GrossMargin, res.KPIs.LaborPct)
	}
	if res.GrossMarginPct == nil || *res.GrossMarginPct != 70 {
		t.Fatalf("numeric margin = %v", res.GrossMarginPct)
	}
	if res.KPIs.Refunds != "$0.00" {
		t.Fatalf("refunds = %q", res.KPIs.Refunds)
	}
	if len(res.Forecast) != 7 || res.Forecast[0].Day != 1 {
		t.Fatalf("forecast = %+v", res.Forecast)
	}
	// Flat baseline: every forecast day stays at totalSales/7.
	for _, d := range res.Forecast {
		if d.Sales != 1429 {
			t.Fatalf("forecast day %d sales = %d", d.Day, d.Sales)
		}
	}
	if len(res.Actions) != 2 || res.Actions[0] != "Action one" {
		t.Fatalf("actions = %v", res.Actions)
	}
	if !strings.Contains(ai.user, "Store: Harbor Cafe") || !strings.Contains(ai.user, "- POS rows: 0") {
		t.Fatalf("user prompt = %q", ai.user)
	}
}

func TestAnalyzeMissingMetricsDashOut(t *testing.T) {
	svc := New(&fakeAI{out: "ok"}, nil)

	res, err := svc.Analyze(context.Background(), AnalyzeRequest{
		StartDate: "2026-08-01",
		EndDate:   "2026-08-07",
		Inputs:    &AnalyzeInputs{},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.KPIs.Revenue != "—" || res.KPIs.Orders != "—" || res.KPIs.GrossMargin != "—" {
		t.Fatalf("kpis = %+v", res.KPIs)
	}
	if res.GrossMarginPct != nil || res.LaborPct != nil {
		t.Fatal("numeric percentages should be nil without data")
	}
	for _, d := range res.Forecast {
		if d.Sales != 0 {
			t.Fatalf("forecast without data should be zero, got %+v", d)
		}
	}
}

func TestAnalyzeForecastTrendsFromPOS(t *testing.T) {
	svc := New(&fakeAI{out: "ok"}, nil)

	res, err := svc.Analyze(context.Background(), AnalyzeRequest{
		StartDate: "2026-08-01",
		EndDate:   "2026-08-03",
		Inputs:    &AnalyzeInputs{},
		POSText:   "date,sales\n2026-08-01,900\n2026-08-02,1000\n2026-08-03,1100",
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	// Trailing 3-day mean is 1000 and the recent deltas average ~66.7,
	// so the projection climbs from day 2 on.
	if res.Forecast[0].Sales != 1000 {
		t.Fatalf("day 1 = %d", res.Forecast[0].Sales)
	}
	if res.Forecast[1].Sales <= res.Forecast[0].Sales {
		t.Fatalf("expected upward trend, got %+v", res.Forecast)
	}
	if res.Debug.UsedPOSRows != 3 || !res.Debug.ComputedFrom.Totals {
		t.Fatalf("debug = %+v", res.Debug)
	}
	if res.KPIs.Revenue != "$3,000.00" {
		t.Fatalf("revenue = %q", res.KPIs.Revenue)
	}
}

func TestAnalyzeExplicitInputsWinOverPOS(t *testing.T) {
	svc := New(&fakeAI{out: "ok"}, nil)

	sales := 5000.0
	res, err := svc.Analyze(context.Background(), AnalyzeRequest{
		StartDate: "2026-08-01",
		EndDate:   "2026-08-07",
		Inputs:    &AnalyzeInputs{TotalSales: &sales},
		POSText:   "date,sales\n2026-08-01,900",
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.KPIs.Revenue != "$5,000.00" {
		t.Fatalf("revenue = %q", res.KPIs.Revenue)
	}
}

func TestAnalyzeWithoutGeneratorFallsBack(t *testing.T) {
	svc := New(nil, nil)

	res, err := svc.Analyze(context.Background(), AnalyzeRequest{
		StartDate: "2026-08-01",
		EndDate:   "2026-08-07",
		Inputs:    &AnalyzeInputs{},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(res.Summary, "AI disabled") {
		t.Fatalf("summary = %q", res.Summary)
	}
	if len(res.Actions) != 3 {
		t.Fatalf("actions = %v", res.Actions)
	}
}

func TestAnalyzeCannedActionsWhenNoBullets(t *testing.T) {
	svc := New(&fakeAI{out: "A summary without any bullet lines at all."}, nil)

	res, err := svc.Analyze(context.Background(), AnalyzeRequest{
		StartDate: "2026-08-01",
		EndDate:   "2026-08-07",
		Inputs:    &AnalyzeInputs{},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(res.Actions) != 3 || !strings.Contains(res.Actions[0], "top-margin items") {
		t.Fatalf("actions = %v", res.Actions)
	}
}

func TestExtractActionsCapsAtFive(t *testing.T) {
	text := "intro\n- a\n- b\n* c\n• d\n- e\n- f"
	actions := extractActions(text)
	if len(actions) != 5 || actions[4] != "e" {
		t.Fatalf("actions = %v", actions)
	}
}

func TestUSDNegativeAndGrouping(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{1234567.891, "$1,234,567.89"},
		{-50, "-$50.00"},
		{999.995, "$1,000.00"},
	}
	for _, tc := range cases {
		v := tc.in
		if got := usd(&v); got != tc.want {
			t.Fatalf("usd(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if got := usd(nil); got != "—" {
		t.Fatalf("usd(nil) = %q", got)
	}
}

func TestMovingAverageWindow(t *testing.T) {
	out := movingAverage([]float64{2, 4, 6, 8}, 3)
	want := []float64{2, 3, 4, 6}
	if len(out) != len(want) {
		t.Fatalf("len = %d", len(out))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("ma[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}
