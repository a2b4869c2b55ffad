// Package api exposes the coupon service over HTTP with typed request and
// response bodies.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/promokit/coupon-service/internal/domain/coupon"
)

// Handler serves the coupon HTTP API, delegating all business logic to the
// coupon service.
type Handler struct {
	svc      *coupon.Service
	validate *validatorv10.Validate
}

// NewHandler constructs a Handler around the given service.
func NewHandler(svc *coupon.Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: newValidator(),
	}
}

// Routes returns the coupon resource router, intended to be mounted under
// /api/coupons.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/", h.CreateCoupon)
	r.Get("/", h.ListCoupons)
	r.Post("/verify", h.VerifyCoupon)
	r.Patch("/{id}", h.UpdateCouponCode)
	r.Patch("/{id}/active", h.SetCouponActive)
	r.Delete("/{id}", h.DeleteCoupon)

	return r
}

// errorResponse is the JSON body for every failed request. Err carries the
// underlying cause string for internal errors only.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode parses the JSON body into dst and runs struct validation. On failure
// it writes a 400 response and returns false; the caller must return.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    http.StatusBadRequest,
			Message: "invalid JSON body",
		})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    http.StatusBadRequest,
			Message: validationMessage(err),
		})
		return false
	}
	return true
}

// writeError maps domain errors to HTTP responses. Unrecognized errors are
// logged and reported as 500 with the underlying cause string.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *coupon.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    http.StatusBadRequest,
			Message: vErr.Error(),
		})
	case errors.Is(err, coupon.ErrNoEligibleItems):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    http.StatusBadRequest,
			Message: "This coupon is not valid for any of the items in your cart.",
		})
	case errors.Is(err, coupon.ErrInvalidCoupon):
		writeJSON(w, http.StatusNotFound, errorResponse{
			Code:    http.StatusNotFound,
			Message: "Invalid or inactive coupon code.",
		})
	case errors.Is(err, coupon.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{
			Code:    http.StatusNotFound,
			Message: "Coupon not found.",
		})
	case errors.Is(err, coupon.ErrDuplicateCode):
		writeJSON(w, http.StatusConflict, errorResponse{
			Code:    http.StatusConflict,
			Message: "Coupon code already exists.",
		})
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code:    http.StatusInternalServerError,
			Message: "Server error",
			Err:     err.Error(),
		})
	}
}

func validationMessage(err error) string {
	var vErrs validatorv10.ValidationErrors
	if errors.As(err, &vErrs) && len(vErrs) > 0 {
		fe := vErrs[0]
		if fe.Tag() == "verify_variant" {
			return "Provide either originalPrice or a non-empty cartItems list."
		}
		return "invalid request: field " + fe.Field() + " failed on " + fe.Tag()
	}
	return "invalid request body"
}
