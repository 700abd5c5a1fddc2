// Package httpapi exposes the application over HTTP. Handlers stay thin:
// parse the request, call a service, shape the JSON the dashboard expects.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	app "github.com/turntable-ai/turntable/internal/app"
	"github.com/turntable-ai/turntable/internal/app/metrics"
	"github.com/turntable-ai/turntable/internal/app/services/alerts"
	copysvc "github.com/turntable-ai/turntable/internal/app/services/copy"
	"github.com/turntable-ai/turntable/internal/app/services/reviews"
	"github.com/turntable-ai/turntable/internal/app/services/sales"
	"github.com/turntable-ai/turntable/internal/app/services/voicesvc"
	"github.com/turntable-ai/turntable/internal/app/storage"
	"github.com/turntable-ai/turntable/internal/clients/stripe"
	"github.com/turntable-ai/turntable/internal/cron"
	"github.com/turntable-ai/turntable/internal/middleware"
	"github.com/turntable-ai/turntable/pkg/logger"
)

// maxWebhookBody caps the Stripe webhook payload read.
const maxWebhookBody = 1 << 20

// Config wires the handler.
type Config struct {
	App *app.Application
	// Limiter throttles /api/* per ip:path. Nil disables rate limiting.
	Limiter middleware.Limiter
	// Verifier resolves bearer tokens. Required routes 401 without it;
	// optional routes fall back to anonymous.
	Verifier middleware.TokenVerifier

	CronSecret          string
	AppBaseURL          string
	StripeWebhookSecret string

	// HTTPClient performs the cron fan-out to the poll endpoint.
	HTTPClient *http.Client
	Logger     *logger.Logger
}

type handler struct {
	app           *app.Application
	verifier      middleware.TokenVerifier
	appBaseURL    string
	webhookSecret string
	client        *http.Client
	log           *logger.Logger
	now           func() time.Time
}

// NewHandler builds the API router.
func NewHandler(cfg Config) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	h := &handler{
		app:           cfg.App,
		verifier:      cfg.Verifier,
		appBaseURL:    strings.TrimRight(cfg.AppBaseURL, "/"),
		webhookSecret: cfg.StripeWebhookSecret,
		client:        client,
		log:           log,
		now:           time.Now,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(metrics.InstrumentHandler)
	if cfg.Limiter != nil {
		api.Use(middleware.RateLimit(cfg.Limiter))
	}

	api.HandleFunc("/generate", h.generate).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/generate-social", h.generateSocial).Methods(http.MethodPost)
	api.HandleFunc("/review-reply", h.reviewReply).Methods(http.MethodPost)
	api.HandleFunc("/review-analyze", h.reviewAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/sales", h.sales).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/sales-recap", h.salesRecap).Methods(http.MethodPost)
	api.HandleFunc("/sales-ai", h.salesAI).Methods(http.MethodPost)
	api.HandleFunc("/alerts", h.sendAlert).Methods(http.MethodPost)
	api.HandleFunc("/google/auth/start", h.googleAuthStart).Methods(http.MethodGet)
	api.HandleFunc("/google/auth/callback", h.googleAuthCallback).Methods(http.MethodGet)
	api.HandleFunc("/google/poll", h.googlePoll).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/stripe/webhook", h.stripeWebhook).Methods(http.MethodGet, http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(middleware.RequireAuth(cfg.Verifier, log))
	authed.HandleFunc("/review-inbox", h.reviewInbox).Methods(http.MethodGet)
	authed.HandleFunc("/review-save", h.reviewSave).Methods(http.MethodPost)
	authed.HandleFunc("/voice-profile", h.voiceProfile).
		Methods(http.MethodGet, http.MethodPost, http.MethodDelete)

	cronRoutes := api.PathPrefix("/cron").Subrouter()
	cronRoutes.Use(middleware.CronAuth(cfg.CronSecret))
	cronRoutes.HandleFunc("/poll", h.cronPoll).Methods(http.MethodPost)

	return r
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// identity resolves the caller on routes where auth is optional. Anonymous
// callers get a zero identity.
func (h *handler) identity(r *http.Request) middleware.Identity {
	if id, ok := middleware.IdentityFrom(r.Context()); ok {
		return id
	}
	if h.verifier == nil {
		return middleware.Identity{}
	}
	token := middleware.BearerToken(r)
	if token == "" {
		return middleware.Identity{}
	}
	id, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		return middleware.Identity{}
	}
	return id
}

func (h *handler) generate(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeOK(w, http.StatusOK, map[string]any{"status": "alive"})
		return
	}
	var req copysvc.GenerateRequest
	decodeJSON(r.Body, &req)
	if strings.TrimSpace(req.Request) == "" {
		writeFail(w, http.StatusBadRequest, `Please include a non-empty "request" string.`)
		return
	}
	start := h.now()
	result, err := h.app.Copy.Generate(r.Context(), req)
	metrics.RecordGeneration("caption", time.Since(start), err)
	if err != nil {
		writeFail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"result": result})
}

func (h *handler) generateSocial(w http.ResponseWriter, r *http.Request) {
	var req copysvc.SocialRequest
	decodeJSON(r.Body, &req)
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, errors.New("Please describe what you want."))
		return
	}
	start := h.now()
	out, err := h.app.Copy.GenerateSocial(r.Context(), h.identity(r).UserID, req)
	metrics.RecordGeneration("social", time.Since(start), err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": out})
}

func (h *handler) reviewReply(w http.ResponseWriter, r *http.Request) {
	var req reviews.ReplyRequest
	decodeJSON(r.Body, &req)
	if strings.TrimSpace(req.ReviewText) == "" {
		writeError(w, http.StatusBadRequest, errors.New("Please provide the review text."))
		return
	}
	start := h.now()
	reply, err := h.app.Reviews.DraftReply(r.Context(), h.identity(r).UserID, req)
	metrics.RecordGeneration("reply", time.Since(start), err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (h *handler) reviewAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReviewText string `json:"reviewText"`
	}
	decodeJSON(r.Body, &req)
	if strings.TrimSpace(req.ReviewText) == "" {
		writeError(w, http.StatusBadRequest, errors.New("Missing reviewText"))
		return
	}
	start := h.now()
	analysis, err := h.app.Reviews.Analyze(r.Context(), req.ReviewText)
	metrics.RecordGeneration("analyze", time.Since(start), err)
	if err != nil {
		h.log.WithError(err).Error("review analyze failed")
		writeError(w, http.StatusInternalServerError, errors.New("Failed to analyze review"))
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (h *handler) reviewInbox(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	items, err := h.app.Reviews.Inbox(r.Context(), id.UserID, q.Get("platform"), q.Get("q"), limit)
	if err != nil {
		h.log.WithError(err).Error("review inbox query failed")
		writeError(w, http.StatusInternalServerError, errors.New("Failed to load reviews"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *handler) reviewSave(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	var req reviews.SaveRequest
	decodeJSON(r.Body, &req)
	if strings.TrimSpace(req.ReviewID) == "" || strings.TrimSpace(req.Reply) == "" {
		writeError(w, http.StatusBadRequest, errors.New("reviewId and reply are required"))
		return
	}
	if _, err := h.app.Reviews.SaveReply(r.Context(), id.UserID, req); err != nil {
		h.log.WithError(err).Error("review save failed")
		writeError(w, http.StatusInternalServerError, errors.New("Failed to save reply"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *handler) voiceProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())

	switch r.Method {
	case http.MethodGet:
		p, err := h.app.Voice.Get(r.Context(), id.UserID)
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"profile": nil})
			return
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"profile": p})

	case http.MethodPost:
		var req struct {
			Samples []string `json:"samples"`
		}
		decodeJSON(r.Body, &req)
		start := h.now()
		p, err := h.app.Voice.Generate(r.Context(), id.UserID, req.Samples)
		metrics.RecordGeneration("style_guide", time.Since(start), err)
		if errors.Is(err, voicesvc.ErrTooFewSamples) {
			writeError(w, http.StatusBadRequest, errors.New("Please provide at least 3 samples."))
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"profile": p})

	case http.MethodDelete:
		if err := h.app.Voice.Delete(r.Context(), id.UserID); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func (h *handler) sales(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeOK(w, http.StatusOK, map[string]any{"status": "alive"})
		return
	}
	var req sales.AssistRequest
	decodeJSON(r.Body, &req)
	if req.Task != sales.TaskRecap && req.Task != sales.TaskForecast {
		writeFail(w, http.StatusBadRequest, "Invalid task. Use 'recap' or 'forecast'.")
		return
	}
	if strings.TrimSpace(req.Period) == "" {
		writeFail(w, http.StatusBadRequest, "Missing 'period'.")
		return
	}
	start := h.now()
	result, err := h.app.Sales.Assist(r.Context(), req)
	metrics.RecordGeneration("sales_assist", time.Since(start), err)
	if err != nil {
		writeFail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"result": result})
}

func (h *handler) salesRecap(w http.ResponseWriter, r *http.Request) {
	var req sales.RecapRequest
	decodeJSON(r.Body, &req)
	start := h.now()
	out, err := h.app.Sales.Recap(r.Context(), req)
	metrics.RecordGeneration("sales_recap", time.Since(start), err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": out})
}

func (h *handler) salesAI(w http.ResponseWriter, r *http.Request) {
	var req sales.AnalyzeRequest
	decodeJSON(r.Body, &req)
	if req.StartDate == "" || req.EndDate == "" || req.Inputs == nil {
		writeError(w, http.StatusBadRequest,
			errors.New("Missing required fields (startDate, endDate, inputs)"))
		return
	}
	start := h.now()
	res, err := h.app.Sales.Analyze(r.Context(), req)
	metrics.RecordGeneration("sales_analysis", time.Since(start), err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errors.New("Failed to analyze sales."))
		return
	}

	// KPI threshold alert, best-effort, only for signed-in callers.
	if id := h.identity(r); id.Email != "" {
		snap := alerts.KPISnapshot{
			Store:          req.Store,
			RangeStart:     req.StartDate,
			RangeEnd:       req.EndDate,
			GrossMarginPct: res.GrossMarginPct,
			LaborPct:       res.LaborPct,
			RefundsPct:     res.RefundsPct,
		}
		if _, err := h.app.Alerts.CheckKPIs(r.Context(), id.Email, snap); err != nil {
			h.log.WithError(err).Warn("kpi alert check failed")
		}
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *handler) sendAlert(w http.ResponseWriter, r *http.Request) {
	var req alerts.SendRequest
	decodeJSON(r.Body, &req)
	if req.To == "" || req.Subject == "" {
		writeError(w, http.StatusBadRequest, errors.New(`Missing "to" or "subject"`))
		return
	}
	if err := h.app.Alerts.Send(r.Context(), req); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *handler) googleAuthStart(w http.ResponseWriter, r *http.Request) {
	id := h.identity(r)
	email := r.URL.Query().Get("email")
	if email == "" {
		email = id.Email
	}
	http.Redirect(w, r, h.app.Connections.StartAuth(id.UserID, email), http.StatusTemporaryRedirect)
}

func (h *handler) googleAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if strings.TrimSpace(code) == "" {
		http.Redirect(w, r, "/integrations?error=missing_code", http.StatusTemporaryRedirect)
		return
	}
	if _, err := h.app.Connections.HandleCallback(r.Context(), code, r.URL.Query().Get("state")); err != nil {
		h.log.WithError(err).Error("google oauth callback failed")
		http.Redirect(w, r, "/integrations?error=oauth_failed", http.StatusTemporaryRedirect)
		return
	}
	http.Redirect(w, r, "/integrations?connected=google", http.StatusTemporaryRedirect)
}

func (h *handler) googlePoll(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	res, err := h.app.Poller.Sweep(r.Context())
	metrics.RecordSweep(time.Since(start), res.Saved, err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":    true,
			"route": "/api/stripe/webhook",
			"time":  h.now().UTC().Format(time.RFC3339),
		})
		return
	}

	if h.webhookSecret == "" {
		writeError(w, http.StatusInternalServerError,
			errors.New("STRIPE_WEBHOOK_SECRET is not configured"))
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("unreadable body"))
		return
	}
	sig := r.Header.Get("stripe-signature")
	if sig == "" {
		writeError(w, http.StatusBadRequest, errors.New("Missing stripe-signature header"))
		return
	}
	if err := stripe.VerifySignature(payload, sig, h.webhookSecret, stripe.DefaultTolerance, h.now()); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	evt, err := stripe.ParseEvent(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Billing.HandleEvent(r.Context(), evt); err != nil {
		h.log.WithError(err).Error("stripe webhook processing failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *handler) cronPoll(w http.ResponseWriter, r *http.Request) {
	pollURL := h.appBaseURL + "/api/google/poll"
	resp, err := cron.Post(r.Context(), h.client, pollURL, nil)
	if err != nil {
		h.log.WithError(err).Error("cron fan-out to poll failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"ok":    false,
			"error": "cron_request_failed",
		})
		return
	}
	defer resp.Body.Close()

	var result any
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxWebhookBody)).Decode(&result)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         resp.StatusCode < http.StatusMultipleChoices,
		"status":     resp.StatusCode,
		"polledFrom": pollURL,
		"result":     result,
	})
}

// decodeJSON tolerates malformed bodies: the handlers 400 on missing fields
// instead of on broken JSON.
func decodeJSON(body io.ReadCloser, dst interface{}) {
	defer body.Close()
	_ = json.NewDecoder(body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeOK and writeFail wrap the ok-envelope used by the generate and sales
// endpoints.
func writeOK(w http.ResponseWriter, status int, fields map[string]any) {
	payload := map[string]any{"ok": true}
	for k, v := range fields {
		payload[k] = v
	}
	writeJSON(w, status, payload)
}

func writeFail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
