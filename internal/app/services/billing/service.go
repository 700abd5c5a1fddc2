// Package billing applies Stripe webhook events to stored billing profiles.
package billing

import (
	"context"
	"time"

	"github.com/turntable-ai/turntable/internal/app/domain/billing"
	"github.com/turntable-ai/turntable/internal/app/storage"
	"github.com/turntable-ai/turntable/internal/clients/stripe"
	"github.com/turntable-ai/turntable/pkg/logger"
)

// SubscriptionGetter fetches a subscription from the Stripe API.
type SubscriptionGetter interface {
	GetSubscription(ctx context.Context, id string) (stripe.Subscription, error)
}

// Service reacts to verified Stripe events.
type Service struct {
	stripe SubscriptionGetter
	store  storage.BillingStore
	log    *logger.Logger
}

// New constructs a billing service.
func New(sg SubscriptionGetter, store storage.BillingStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("billing")
	}
	return &Service{stripe: sg, store: store, log: log}
}

// HandleEvent applies one webhook event. Events whose customer matches no
// stored profile are logged and dropped; unrecognized event types are
// ignored.
func (s *Service) HandleEvent(ctx context.Context, evt stripe.Event) error {
	s.log.WithField("type", evt.Type).WithField("id", evt.ID).Debug("stripe event received")

	switch evt.Type {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		sub := subscriptionFromEvent(evt)
		return s.applyUpdate(ctx, evt.CustomerID(), sub.ID, sub.Status, sub.CurrentPeriodEnd)

	case "checkout.session.completed":
		customerID := evt.CustomerID()
		if customerID == "" {
			return nil
		}
		// The session has no period end; the follow-up subscription
		// event fills it in.
		return s.applyUpdate(ctx, customerID, evt.SubscriptionID(), "active", nil)

	case "invoice.payment_succeeded":
		customerID := evt.CustomerID()
		subscriptionID := evt.SubscriptionID()
		if customerID == "" || subscriptionID == "" {
			return nil
		}
		sub, err := s.stripe.GetSubscription(ctx, subscriptionID)
		if err != nil {
			return err
		}
		return s.applyUpdate(ctx, customerID, sub.ID, sub.Status, sub.CurrentPeriodEnd)
	}
	return nil
}

func subscriptionFromEvent(evt stripe.Event) stripe.Subscription {
	sub := stripe.Subscription{
		ID:     evt.Object.Get("id").String(),
		Status: evt.Object.Get("status").String(),
	}
	if end := evt.Object.Get("current_period_end"); end.Exists() && end.Int() != 0 {
		t := time.Unix(end.Int(), 0).UTC()
		sub.CurrentPeriodEnd = &t
	}
	return sub
}

func (s *Service) applyUpdate(ctx context.Context, customerID, subscriptionID, status string, periodEnd *time.Time) error {
	plan := billing.PlanFromStripeStatus(status)
	matched, err := s.store.UpdateProfileByCustomer(ctx, customerID, billing.Profile{
		Plan:                     plan,
		IsPro:                    billing.IsPro(plan),
		StripeCustomerID:         customerID,
		StripeSubscriptionID:     subscriptionID,
		StripeSubscriptionStatus: status,
		CurrentPeriodEnd:         periodEnd,
	})
	if err != nil {
		return err
	}
	if !matched {
		s.log.WithField("customer_id", customerID).Info("no profile matched stripe customer")
		return nil
	}
	s.log.WithField("customer_id", customerID).WithField("plan", string(plan)).
		Info("billing profile updated")
	return nil
}
