// Package billing defines subscription plans and the profile record mutated
// by Stripe webhook events.
package billing

import (
	"strings"
	"time"
)

// Plan is the two-value plan enum.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// PlanFromStripeStatus maps a Stripe subscription status to a plan. Statuses
// active, trialing, past_due and unpaid all count as pro; anything else,
// including an empty status, is free.
func PlanFromStripeStatus(status string) Plan {
	switch strings.ToLower(status) {
	case "active", "trialing", "past_due", "unpaid":
		return PlanPro
	}
	return PlanFree
}

// IsPro reports whether the plan is the paid tier.
func IsPro(plan Plan) bool {
	return plan == PlanPro
}

// Profile is a user's billing record, keyed to the hosted backend's user id
// and matched to webhook events by Stripe customer id.
type Profile struct {
	ID                       string     `json:"id"`
	Plan                     Plan       `json:"plan"`
	IsPro                    bool       `json:"is_pro"`
	StripeCustomerID         string     `json:"stripe_customer_id"`
	StripeSubscriptionID     string     `json:"stripe_subscription_id,omitempty"`
	StripeSubscriptionStatus string     `json:"stripe_subscription_status,omitempty"`
	CurrentPeriodEnd         *time.Time `json:"current_period_end,omitempty"`
	UpdatedAt                time.Time  `json:"updated_at"`
}
