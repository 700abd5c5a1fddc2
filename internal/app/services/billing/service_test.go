package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/turntable-ai/turntable/internal/app/domain/billing"
	"github.com/turntable-ai/turntable/internal/app/storage/memory"
	"github.com/turntable-ai/turntable/internal/clients/stripe"
)

type fakeStripe struct {
	sub       stripe.Subscription
	err       error
	requested string
}

func (f *fakeStripe) GetSubscription(_ context.Context, id string) (stripe.Subscription, error) {
	f.requested = id
	return f.sub, f.err
}

func parseEvent(t *testing.T, payload string) stripe.Event {
	t.Helper()
	evt, err := stripe.ParseEvent([]byte(payload))
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	return evt
}

func TestSubscriptionUpdatedMarksPro(t *testing.T) {
	store := memory.New()
	store.SeedBillingProfile("cus_1", billing.Profile{ID: "u1", Plan: billing.PlanFree})
	svc := New(&fakeStripe{}, store, nil)

	evt := parseEvent(t, `{"id":"evt_1","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","customer":"cus_1","status":"active","current_period_end":1767225600}}}`)
	if err := svc.HandleEvent(context.Background(), evt); err != nil {
		t.Fatalf("handle: %v", err)
	}

	p, err := store.GetProfileByCustomer(context.Background(), "cus_1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p.Plan != billing.PlanPro || !p.IsPro {
		t.Fatalf("profile = %+v", p)
	}
	if p.StripeSubscriptionID != "sub_1" || p.StripeSubscriptionStatus != "active" {
		t.Fatalf("profile = %+v", p)
	}
	want := time.Unix(1767225600, 0).UTC()
	if p.CurrentPeriodEnd == nil || !p.CurrentPeriodEnd.Equal(want) {
		t.Fatalf("period end = %v", p.CurrentPeriodEnd)
	}
}

func TestSubscriptionDeletedDowngrades(t *testing.T) {
	store := memory.New()
	store.SeedBillingProfile("cus_1", billing.Profile{ID: "u1", Plan: billing.PlanPro, IsPro: true})
	svc := New(&fakeStripe{}, store, nil)

	evt := parseEvent(t, `{"id":"evt_2","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","customer":"cus_1","status":"canceled"}}}`)
	if err := svc.HandleEvent(context.Background(), evt); err != nil {
		t.Fatalf("handle: %v", err)
	}

	p, _ := store.GetProfileByCustomer(context.Background(), "cus_1")
	if p.Plan != billing.PlanFree || p.IsPro {
		t.Fatalf("profile = %+v", p)
	}
	if p.CurrentPeriodEnd != nil {
		t.Fatalf("period end = %v", p.CurrentPeriodEnd)
	}
}

func TestCheckoutCompletedActivates(t *testing.T) {
	store := memory.New()
	store.SeedBillingProfile("cus_1", billing.Profile{ID: "u1"})
	svc := New(&fakeStripe{}, store, nil)

	evt := parseEvent(t, `{"id":"evt_3","type":"checkout.session.completed","data":{"object":{"customer":"cus_1","subscription":"sub_9"}}}`)
	if err := svc.HandleEvent(context.Background(), evt); err != nil {
		t.Fatalf("handle: %v", err)
	}

	p, _ := store.GetProfileByCustomer(context.Background(), "cus_1")
	if p.Plan != billing.PlanPro || p.StripeSubscriptionID != "sub_9" {
		t.Fatalf("profile = %+v", p)
	}
	if p.StripeSubscriptionStatus != "active" || p.CurrentPeriodEnd != nil {
		t.Fatalf("profile = %+v", p)
	}
}

func TestCheckoutWithoutCustomerIsSkipped(t *testing.T) {
	store := memory.New()
	svc := New(&fakeStripe{}, store, nil)

	evt := parseEvent(t, `{"id":"evt_4","type":"checkout.session.completed","data":{"object":{"subscription":"sub_9"}}}`)
	if err := svc.HandleEvent(context.Background(), evt); err != nil {
		t.Fatalf("handle: %v", err)
	}
}

func TestInvoicePaymentRefetchesSubscription(t *testing.T) {
	store := memory.New()
	store.SeedBillingProfile("cus_1", billing.Profile{ID: "u1"})
	end := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	fs := &fakeStripe{sub: stripe.Subscription{ID: "sub_5", CustomerID: "cus_1", Status: "trialing", CurrentPeriodEnd: &end}}
	svc := New(fs, store, nil)

	evt := parseEvent(t, `{"id":"evt_5","type":"invoice.payment_succeeded","data":{"object":{"customer":"cus_1","subscription":"sub_5"}}}`)
	if err := svc.HandleEvent(context.Background(), evt); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if fs.requested != "sub_5" {
		t.Fatalf("requested = %q", fs.requested)
	}

	p, _ := store.GetProfileByCustomer(context.Background(), "cus_1")
	if p.Plan != billing.PlanPro || p.StripeSubscriptionStatus != "trialing" {
		t.Fatalf("profile = %+v", p)
	}
	if p.CurrentPeriodEnd == nil || !p.CurrentPeriodEnd.Equal(end) {
		t.Fatalf("period end = %v", p.CurrentPeriodEnd)
	}
}

func TestInvoiceStripeErrorPropagates(t *testing.T) {
	svc := New(&fakeStripe{err: errors.New("stripe down")}, memory.New(), nil)

	evt := parseEvent(t, `{"id":"evt_6","type":"invoice.payment_succeeded","data":{"object":{"customer":"cus_1","subscription":"sub_5"}}}`)
	if err := svc.HandleEvent(context.Background(), evt); err == nil {
		t.Fatal("expected stripe error")
	}
}

func TestUnmatchedCustomerIsNoOp(t *testing.T) {
	svc := New(&fakeStripe{}, memory.New(), nil)

	evt := parseEvent(t, `{"id":"evt_7","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","customer":"cus_missing","status":"active"}}}`)
	if err := svc.HandleEvent(context.Background(), evt); err != nil {
		t.Fatalf("handle: %v", err)
	}
}

func TestUnknownEventTypeIgnored(t *testing.T) {
	svc := New(&fakeStripe{}, memory.New(), nil)

	evt := parseEvent(t, `{"id":"evt_8","type":"payment_intent.created","data":{"object":{}}}`)
	if err := svc.HandleEvent(context.Background(), evt); err != nil {
		t.Fatalf("handle: %v", err)
	}
}
