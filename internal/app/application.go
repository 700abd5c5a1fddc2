// Package app wires the domain services together behind a single aggregate
// so the HTTP layer and the server binary share one composition root.
package app

import (
	"context"

	"github.com/turntable-ai/turntable/internal/app/services/alerts"
	"github.com/turntable-ai/turntable/internal/app/services/billing"
	"github.com/turntable-ai/turntable/internal/app/services/connections"
	copysvc "github.com/turntable-ai/turntable/internal/app/services/copy"
	"github.com/turntable-ai/turntable/internal/app/services/poller"
	"github.com/turntable-ai/turntable/internal/app/services/reviews"
	"github.com/turntable-ai/turntable/internal/app/services/sales"
	"github.com/turntable-ai/turntable/internal/app/services/voicesvc"
	"github.com/turntable-ai/turntable/internal/app/storage"
	"github.com/turntable-ai/turntable/internal/app/storage/memory"
	"github.com/turntable-ai/turntable/internal/clients/google"
	"github.com/turntable-ai/turntable/internal/clients/resend"
	"github.com/turntable-ai/turntable/internal/config"
	"github.com/turntable-ai/turntable/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Connections storage.ConnectionStore
	Reviews     storage.ReviewStore
	Replies     storage.ReplyStore
	Voices      storage.VoiceStore
	Billing     storage.BillingStore
}

// TextGenerator is the full model surface the services draw from. A nil
// generator disables AI-backed operations; each service degrades the way
// its endpoint documents.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateConversation(ctx context.Context, system, user string) (string, error)
	GenerateConversationSampled(ctx context.Context, system, user string, temperature float64) (string, error)
}

// Mailer sends transactional email.
type Mailer interface {
	Send(ctx context.Context, msg resend.Message) (skipped bool, err error)
}

// GoogleAPI is the Business Profile surface used for OAuth and review
// polling.
type GoogleAPI interface {
	AuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (google.TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (google.TokenResponse, error)
	ListAccounts(ctx context.Context, accessToken string) ([]google.Account, error)
	ListLocations(ctx context.Context, accessToken, account string) ([]google.Location, error)
	ListReviews(ctx context.Context, accessToken, location string) ([]google.Review, error)
}

// Deps carries the outbound clients. Any field may be nil in tests.
type Deps struct {
	Text   TextGenerator
	Mailer Mailer
	Google GoogleAPI
	Stripe billing.SubscriptionGetter

	// AppBaseURL is linked from alert emails.
	AppBaseURL string
	// Thresholds drive the best-effort KPI alert check on sales analysis.
	Thresholds config.AlertThresholds
}

// Application ties the domain services together.
type Application struct {
	log *logger.Logger

	Copy        *copysvc.Service
	Reviews     *reviews.Service
	Voice       *voicesvc.Service
	Sales       *sales.Service
	Alerts      *alerts.Service
	Connections *connections.Service
	Billing     *billing.Service
	Poller      *poller.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, deps Deps, log *logger.Logger) *Application {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Connections == nil {
		stores.Connections = mem
	}
	if stores.Reviews == nil {
		stores.Reviews = mem
	}
	if stores.Replies == nil {
		stores.Replies = mem
	}
	if stores.Voices == nil {
		stores.Voices = mem
	}
	if stores.Billing == nil {
		stores.Billing = mem
	}

	reviewSvc := reviews.New(deps.Text, stores.Reviews, stores.Replies, stores.Voices, log)

	return &Application{
		log:         log,
		Copy:        copysvc.New(deps.Text, stores.Voices, log),
		Reviews:     reviewSvc,
		Voice:       voicesvc.New(deps.Text, stores.Voices, log),
		Sales:       sales.New(deps.Text, log),
		Alerts:      alerts.New(deps.Mailer, deps.Thresholds, log),
		Connections: connections.New(deps.Google, stores.Connections, log),
		Billing:     billing.New(deps.Stripe, stores.Billing, log),
		Poller: poller.New(poller.Config{
			Connections: stores.Connections,
			Reviews:     stores.Reviews,
			Google:      deps.Google,
			Drafter:     reviewSvc,
			Mailer:      deps.Mailer,
			AppBaseURL:  deps.AppBaseURL,
			Logger:      log,
		}),
	}
}
