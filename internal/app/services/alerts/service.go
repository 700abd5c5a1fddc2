// Package alerts sends operator emails, both ad-hoc and KPI threshold
// breaches.
package alerts

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/turntable-ai/turntable/internal/app/metrics"
	"github.com/turntable-ai/turntable/internal/clients/resend"
	"github.com/turntable-ai/turntable/internal/config"
	"github.com/turntable-ai/turntable/pkg/logger"
)

// Mailer delivers outbound email.
type Mailer interface {
	Send(ctx context.Context, msg resend.Message) (skipped bool, err error)
}

// Service sends alert emails.
type Service struct {
	mailer     Mailer
	thresholds config.AlertThresholds
	log        *logger.Logger
}

// New constructs an alerts service.
func New(mailer Mailer, thresholds config.AlertThresholds, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("alerts")
	}
	return &Service{mailer: mailer, thresholds: thresholds, log: log}
}

// SendRequest is an ad-hoc alert email. When HTML is empty the plain text is
// escaped and wrapped in a pre block.
type SendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Send delivers an ad-hoc alert email.
func (s *Service) Send(ctx context.Context, req SendRequest) error {
	if req.To == "" || req.Subject == "" {
		return fmt.Errorf(`missing "to" or "subject"`)
	}

	body := req.HTML
	if body == "" {
		body = "<pre>" + textEscaper.Replace(req.Text) + "</pre>"
	}

	skipped, err := s.mailer.Send(ctx, resend.Message{
		To:      req.To,
		Subject: req.Subject,
		HTML:    body,
	})
	if err != nil {
		return err
	}
	if !skipped {
		metrics.RecordAlertEmail("adhoc")
		s.log.WithField("to", req.To).Info("alert email sent")
	}
	return nil
}

// KPISnapshot carries the numeric percentages of a sales analysis run. Nil
// values were not derivable and are never checked.
type KPISnapshot struct {
	Store          string
	RangeStart     string
	RangeEnd       string
	GrossMarginPct *float64
	LaborPct       *float64
	RefundsPct     *float64
}

// CheckKPIs compares the snapshot against the configured thresholds and, if
// any breach, emails a single digest to the recipient. It returns the breach
// descriptions. Zero-valued thresholds disable their check.
func (s *Service) CheckKPIs(ctx context.Context, to string, snap KPISnapshot) ([]string, error) {
	var breaches []string
	t := s.thresholds
	if t.MinGrossMarginPct > 0 && snap.GrossMarginPct != nil && *snap.GrossMarginPct < t.MinGrossMarginPct {
		breaches = append(breaches, fmt.Sprintf("Gross margin %.1f%% is below the %.1f%% floor", *snap.GrossMarginPct, t.MinGrossMarginPct))
	}
	if t.MaxLaborPct > 0 && snap.LaborPct != nil && *snap.LaborPct > t.MaxLaborPct {
		breaches = append(breaches, fmt.Sprintf("Labor %.1f%% is above the %.1f%% ceiling", *snap.LaborPct, t.MaxLaborPct))
	}
	if t.MaxRefundsPct > 0 && snap.RefundsPct != nil && *snap.RefundsPct > t.MaxRefundsPct {
		breaches = append(breaches, fmt.Sprintf("Refunds %.1f%% are above the %.1f%% ceiling", *snap.RefundsPct, t.MaxRefundsPct))
	}
	if len(breaches) == 0 || to == "" {
		return breaches, nil
	}

	subject := "KPI alert"
	if snap.Store != "" {
		subject = "KPI alert for " + snap.Store
	}
	skipped, err := s.mailer.Send(ctx, resend.Message{
		To:      to,
		Subject: subject,
		HTML:    kpiAlertHTML(snap, breaches),
	})
	if err != nil {
		return breaches, err
	}
	if !skipped {
		metrics.RecordAlertEmail("kpi")
		s.log.WithField("to", to).WithField("breaches", len(breaches)).Info("kpi alert sent")
	}
	return breaches, nil
}

func kpiAlertHTML(snap KPISnapshot, breaches []string) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family:system-ui,-apple-system,Segoe UI,Roboto,sans-serif;max-width:560px">`)
	b.WriteString("<h2 style=\"margin:0 0 8px\">KPI thresholds breached</h2>")
	if snap.RangeStart != "" || snap.RangeEnd != "" {
		fmt.Fprintf(&b, "<p style=\"margin:0 0 12px;color:#555\">%s &rarr; %s</p>",
			html.EscapeString(snap.RangeStart), html.EscapeString(snap.RangeEnd))
	}
	b.WriteString("<ul>")
	for _, breach := range breaches {
		b.WriteString("<li>" + html.EscapeString(breach) + "</li>")
	}
	b.WriteString("</ul></div>")
	return b.String()
}
