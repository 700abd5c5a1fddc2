package sales

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// POSRow is one parsed line of a POS CSV export. Missing or unparseable
// numeric cells are NaN.
type POSRow struct {
	Date    string
	Sales   float64
	Orders  float64
	Refunds float64
	COGS    float64
	Labor   float64
	Traffic float64
}

// POSTotals sums the parsed rows, treating NaN cells as zero.
type POSTotals struct {
	Sales   float64
	Orders  float64
	Refunds float64
	COGS    float64
	Labor   float64
	Traffic float64
}

// POSData is the result of ParsePOS.
type POSData struct {
	Rows   []POSRow
	Totals POSTotals
}

var (
	headerDateRe  = regexp.MustCompile(`(?i)date`)
	headerSalesRe = regexp.MustCompile(`(?i)(sales|revenue|gross|net)`)
)

// ParsePOS parses a comma-separated POS export. When the first line looks
// like a header, columns are matched by name; otherwise the fixed order
// date, sales, orders, refunds, cogs, labor, traffic is assumed.
func ParsePOS(text string) POSData {
	lines := make([]string, 0)
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return POSData{Rows: []POSRow{}}
	}

	hasHeader := headerDateRe.MatchString(lines[0]) && headerSalesRe.MatchString(lines[0])
	var header []string
	raw := lines
	if hasHeader {
		for _, h := range strings.Split(lines[0], ",") {
			header = append(header, strings.ToLower(strings.TrimSpace(h)))
		}
		raw = lines[1:]
	}

	idx := func(fallback int, keys ...string) int {
		if !hasHeader {
			return fallback
		}
		for i, h := range header {
			for _, k := range keys {
				if strings.Contains(h, k) {
					return i
				}
			}
		}
		return -1
	}

	iDate := idx(0, "date")
	iSales := idx(1, "sales", "revenue", "gross", "net")
	iOrders := idx(2, "orders")
	iRefunds := idx(3, "refund")
	iCOGS := idx(4, "cogs")
	iLabor := idx(5, "labor")
	iTraffic := idx(6, "traffic")

	rows := make([]POSRow, 0, len(raw))
	for _, line := range raw {
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		dateIdx := iDate
		if dateIdx < 0 {
			dateIdx = 0
		}
		date := ""
		if dateIdx < len(parts) {
			date = parts[dateIdx]
		}
		rows = append(rows, POSRow{
			Date:    date,
			Sales:   cell(parts, iSales),
			Orders:  cell(parts, iOrders),
			Refunds: cell(parts, iRefunds),
			COGS:    cell(parts, iCOGS),
			Labor:   cell(parts, iLabor),
			Traffic: cell(parts, iTraffic),
		})
	}

	var t POSTotals
	for _, r := range rows {
		t.Sales += orZero(r.Sales)
		t.Orders += orZero(r.Orders)
		t.Refunds += orZero(r.Refunds)
		t.COGS += orZero(r.COGS)
		t.Labor += orZero(r.Labor)
		t.Traffic += orZero(r.Traffic)
	}
	return POSData{Rows: rows, Totals: t}
}

var currencyStripper = strings.NewReplacer("$", "", ",", "")

func cell(parts []string, i int) float64 {
	if i < 0 || i >= len(parts) {
		return math.NaN()
	}
	s := currencyStripper.Replace(parts[i])
	if s == "" {
		return 0
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return n
}

func orZero(n float64) float64 {
	if math.IsNaN(n) {
		return 0
	}
	return n
}
