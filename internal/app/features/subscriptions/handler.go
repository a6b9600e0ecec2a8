// internal/app/features/subscriptions/handler.go
package subscriptions

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/commonshub/internal/app/clients/razorpay"
	userstore "github.com/dalemusser/commonshub/internal/app/store/users"
	"github.com/dalemusser/commonshub/internal/app/system/apierr"
	"github.com/dalemusser/commonshub/internal/app/system/auth"
	"github.com/dalemusser/commonshub/internal/app/system/mailer"
	"github.com/dalemusser/commonshub/internal/app/system/metrics"
	"github.com/dalemusser/commonshub/internal/app/system/timeouts"
	"github.com/dalemusser/commonshub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Gateway is the payment provider. *razorpay.Client satisfies it.
type Gateway interface {
	KeyID() string
	CreateSubscription(ctx context.Context, req razorpay.SubscriptionRequest) (razorpay.Subscription, error)
	CancelSubscription(ctx context.Context, id string, atCycleEnd bool) (razorpay.Subscription, error)
}

// Notifier queues email without blocking the request.
type Notifier interface {
	Enqueue(e mailer.Email) bool
}

type Handler struct {
	Users   *userstore.Store
	Gateway Gateway
	// Secret signs payment confirmations.
	Secret string
	// Plans maps plan names to gateway plan ids.
	Plans    map[string]string
	Notifier Notifier
	SiteName string
	Metrics  *metrics.Registry
	ErrLog   *apierr.ErrorLogger
	Log      *zap.Logger

	now func() time.Time
}

// Config carries the handler's collaborators.
type Config struct {
	Users    *userstore.Store
	Gateway  Gateway
	Secret   string
	Plans    map[string]string
	Notifier Notifier
	SiteName string
	Metrics  *metrics.Registry
}

func NewHandler(cfg Config, errLog *apierr.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Users:    cfg.Users,
		Gateway:  cfg.Gateway,
		Secret:   cfg.Secret,
		Plans:    cfg.Plans,
		Notifier: cfg.Notifier,
		SiteName: cfg.SiteName,
		Metrics:  cfg.Metrics,
		ErrLog:   errLog,
		Log:      logger,
		now:      time.Now,
	}
}

type createRequest struct {
	UID    string `json:"uid"`
	Plan   string `json:"plan"`
	PlanID string `json:"plan_id"`
}

// HandleCreate handles POST /api/create-subscription.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in createRequest
	if err := apierr.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid request body", err)
		return
	}
	uid := auth.ResolveUID(r, in.UID)
	plan := strings.TrimSpace(in.Plan)
	planID := strings.TrimSpace(in.PlanID)
	if planID == "" {
		planID = h.Plans[plan]
	}
	fields := map[string]string{}
	if uid == "" {
		fields["uid"] = "required"
	}
	if planID == "" {
		fields["plan_id"] = "unknown plan"
	}
	if len(fields) > 0 {
		h.ErrLog.Invalid(w, r, "uid and a known plan are required", fields)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "subscription create")
	defer cancel()

	if _, err := h.Users.GetByUID(ctx, uid); err != nil {
		h.writeUserError(w, r, err)
		return
	}
	sub, err := h.Gateway.CreateSubscription(ctx, razorpay.SubscriptionRequest{
		PlanID:         planID,
		CustomerNotify: 1,
		Notes:          map[string]string{"uid": uid, "plan": plan},
	})
	if err != nil {
		h.writeGatewayError(w, r, "Failed to create subscription", err)
		return
	}
	if err := h.Users.StartSubscription(ctx, uid, sub.ID, plan); err != nil {
		h.ErrLog.ServerError(w, r, "Failed to record subscription", err)
		return
	}
	h.event("created")
	h.Log.Info("subscription created", zap.String("uid", uid), zap.String("subscription_id", sub.ID), zap.String("plan", plan))
	apierr.WriteJSON(w, http.StatusOK, map[string]any{
		"subscription_id": sub.ID,
		"key_id":          h.Gateway.KeyID(),
		"status":          sub.Status,
		"short_url":       sub.ShortURL,
	})
}

type verifyRequest struct {
	UID            string `json:"uid"`
	PaymentID      string `json:"razorpay_payment_id"`
	SubscriptionID string `json:"razorpay_subscription_id"`
	Signature      string `json:"razorpay_signature"`
	Plan           string `json:"plan"`
}

func (v verifyRequest) missing() map[string]string {
	fields := map[string]string{}
	for name, val := range map[string]string{
		"uid":                      v.UID,
		"razorpay_payment_id":      v.PaymentID,
		"razorpay_subscription_id": v.SubscriptionID,
		"razorpay_signature":       v.Signature,
	} {
		if strings.TrimSpace(val) == "" {
			fields[name] = "required"
		}
	}
	return fields
}

// HandleVerify handles POST /api/verify-payment. Nothing is written unless
// the signature matches.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var in verifyRequest
	if err := apierr.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid request body", err)
		return
	}
	in.UID = auth.ResolveUID(r, in.UID)
	if fields := in.missing(); len(fields) > 0 {
		h.ErrLog.Invalid(w, r, "Missing payment details", fields)
		return
	}
	if !razorpay.VerifyPayment(h.Secret, in.PaymentID, in.SubscriptionID, in.Signature) {
		h.event("verify_failed")
		h.ErrLog.BadRequest(w, r, "Payment verification failed", nil)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "subscription verify")
	defer cancel()

	// Plan falls back to the one recorded by create-subscription.
	if strings.TrimSpace(in.Plan) == "" {
		u, err := h.Users.GetByUID(ctx, in.UID)
		if err != nil {
			h.writeUserError(w, r, err)
			return
		}
		if u.Plan == "" {
			h.ErrLog.Invalid(w, r, "Missing payment details", map[string]string{"plan": "required"})
			return
		}
		in.Plan = u.Plan
	}

	payment := models.Payment{
		PaymentID:      in.PaymentID,
		SubscriptionID: in.SubscriptionID,
		Plan:           in.Plan,
		Status:         "captured",
		PaidAt:         h.now().UTC(),
	}
	u, err := h.Users.ActivateSubscription(ctx, in.UID, payment)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}
	h.event("activated")
	h.notify(u, mailer.BuildSubscriptionActivatedEmail)

	h.Log.Info("payment verified", zap.String("uid", u.UID), zap.String("subscription_id", in.SubscriptionID))
	apierr.WriteJSON(w, http.StatusOK, map[string]any{
		"message":            "Payment verified",
		"plan":               u.Plan,
		"subscriptionId":     u.SubscriptionID,
		"subscriptionStatus": u.SubscriptionStatus,
		"payment":            payment,
	})
}

// HandleCancel handles POST /api/cancel-subscription. Whatever status the
// gateway reports, the local subscription ends up cancelled.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UID string `json:"uid"`
	}
	if err := apierr.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid request body", err)
		return
	}
	uid := auth.ResolveUID(r, in.UID)
	if uid == "" {
		h.ErrLog.Invalid(w, r, "uid is required", map[string]string{"uid": "required"})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "subscription cancel")
	defer cancel()

	u, err := h.Users.GetByUID(ctx, uid)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}
	if u.SubscriptionID == "" {
		h.ErrLog.BadRequest(w, r, "No subscription to cancel", nil)
		return
	}
	sub, err := h.Gateway.CancelSubscription(ctx, u.SubscriptionID, false)
	if err != nil {
		h.writeGatewayError(w, r, "Failed to cancel subscription", err)
		return
	}
	u, err = h.Users.CancelSubscription(ctx, uid)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}
	h.event("cancelled")
	h.notify(u, mailer.BuildSubscriptionCancelledEmail)

	h.Log.Info("subscription cancelled",
		zap.String("uid", uid),
		zap.String("subscription_id", u.SubscriptionID),
		zap.String("gateway_status", sub.Status))
	apierr.WriteJSON(w, http.StatusOK, map[string]any{
		"message":            "Subscription cancelled",
		"subscriptionId":     u.SubscriptionID,
		"subscriptionStatus": u.SubscriptionStatus,
		"gatewayStatus":      sub.Status,
	})
}

// ServeStatus handles GET /api/user-subscription/{uid}.
func (h *Handler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimSpace(chi.URLParam(r, "uid"))

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "subscription status")
	defer cancel()

	u, err := h.Users.GetByUID(ctx, uid)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}
	payments := u.Payments
	if payments == nil {
		payments = []models.Payment{}
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]any{
		"uid":                u.UID,
		"plan":               u.Plan,
		"subscriptionId":     u.SubscriptionID,
		"subscriptionStatus": u.SubscriptionStatus,
		"payments":           payments,
	})
}

// notify queues a lifecycle email. A full queue or a user without an
// address only costs the email.
func (h *Handler) notify(u models.User, build func(mailer.SubscriptionEmailData) mailer.Email) {
	if h.Notifier == nil || u.Email == "" {
		return
	}
	e := build(mailer.SubscriptionEmailData{
		SiteName:       h.SiteName,
		Name:           u.Name,
		Plan:           u.Plan,
		SubscriptionID: u.SubscriptionID,
	})
	e.To = u.Email
	if !h.Notifier.Enqueue(e) {
		h.Log.Warn("subscription email dropped", zap.String("uid", u.UID))
	}
}

func (h *Handler) event(name string) {
	if h.Metrics != nil {
		h.Metrics.Subscriptions.WithLabelValues(name).Inc()
	}
}

func (h *Handler) writeUserError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, userstore.ErrNotFound) {
		h.ErrLog.NotFound(w, r, "User not found")
		return
	}
	h.ErrLog.ServerError(w, r, "Failed to update user", err)
}

func (h *Handler) writeGatewayError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var ae *razorpay.APIError
	if errors.As(err, &ae) {
		status := http.StatusInternalServerError
		if ae.Status >= 400 && ae.Status < 500 {
			status = http.StatusBadRequest
		}
		h.ErrLog.Upstream(w, r, status, msg, ae, err)
		return
	}
	h.ErrLog.ServerError(w, r, msg, err)
}
