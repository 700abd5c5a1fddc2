// Package cron drives the scheduled review poll. A Trigger POSTs the cron
// endpoint on the configured schedule; the endpoint itself fans out to the
// poll route with the shared retrying Post helper.
package cron

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/turntable-ai/turntable/internal/middleware"
	"github.com/turntable-ai/turntable/pkg/logger"
)

const (
	// Attempts bounds the retrying Post helper.
	Attempts = 3
	// backoffStep is the linear backoff unit between attempts.
	backoffStep = 500 * time.Millisecond
)

// Post issues a POST and retries up to Attempts times on transport errors
// and 5xx responses, sleeping attempt*backoffStep between tries. The last
// response (or error) is returned; the caller owns the response body.
func Post(ctx context.Context, client *http.Client, url string, headers map[string]string) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}

	var lastErr error
	for attempt := 1; attempt <= Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * backoffStep):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= http.StatusInternalServerError && attempt < Attempts {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = fmt.Errorf("poll returned status %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

// Trigger fires the cron poll endpoint on a schedule.
type Trigger struct {
	c      *cronv3.Cron
	url    string
	secret string
	client *http.Client
	log    *logger.Logger
}

// NewTrigger builds a trigger for the given cron schedule expression.
func NewTrigger(schedule, baseURL, secret string, log *logger.Logger) (*Trigger, error) {
	if log == nil {
		log = logger.NewDefault("cron")
	}
	t := &Trigger{
		url:    strings.TrimRight(baseURL, "/") + "/api/cron/poll",
		secret: secret,
		client: &http.Client{Timeout: 5 * time.Minute},
		log:    log,
	}
	c := cronv3.New()
	if _, err := c.AddFunc(schedule, t.Run); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	t.c = c
	return t, nil
}

// Start begins firing on schedule.
func (t *Trigger) Start() {
	t.log.WithField("url", t.url).Info("cron trigger started")
	t.c.Start()
}

// Stop halts the schedule and waits for a running fire to finish, bounded
// by the context.
func (t *Trigger) Stop(ctx context.Context) {
	done := t.c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Run fires one poll immediately.
func (t *Trigger) Run() {
	resp, err := Post(context.Background(), t.client, t.url, map[string]string{
		middleware.HeaderCronSecret: t.secret,
	})
	if err != nil {
		t.log.WithError(err).Error("cron poll failed")
		return
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	entry := t.log.WithField("status", resp.StatusCode)
	if resp.StatusCode >= http.StatusBadRequest {
		entry.WithField("body", string(body)).Error("cron poll rejected")
		return
	}
	entry.Info("cron poll completed")
}
