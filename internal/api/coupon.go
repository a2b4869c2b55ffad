package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/promokit/coupon-service/internal/domain/coupon"
)

// --- Request types ---

type createCouponRequest struct {
	Code               string   `json:"code" validate:"required"`
	DiscountPercentage *float64 `json:"discountPercentage" validate:"required"`
	ValidForProducts   []string `json:"validForProducts" validate:"omitempty,dive,required"`
}

type updateCouponRequest struct {
	Code string `json:"code" validate:"required"`
}

type setActiveRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

type cartItemRequest struct {
	ProductID string  `json:"productId" validate:"required"`
	Price     float64 `json:"price" validate:"gte=0"`
	Quantity  int     `json:"quantity" validate:"required,min=1"`
}

// verifyCouponRequest is the discriminated verify input: exactly one of
// OriginalPrice or CartItems must be present. The variant check is a
// struct-level validation (tag "verify_variant").
type verifyCouponRequest struct {
	Code          string            `json:"code" validate:"required"`
	OriginalPrice *float64          `json:"originalPrice"`
	CartItems     []cartItemRequest `json:"cartItems" validate:"omitempty,dive"`
}

func newValidator() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterStructValidation(verifyVariantValidation, verifyCouponRequest{})
	return v
}

// verifyVariantValidation enforces that a verify request carries exactly one
// input variant and that the cart variant is non-empty.
func verifyVariantValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(verifyCouponRequest)

	hasPrice := req.OriginalPrice != nil
	hasCart := req.CartItems != nil

	if hasPrice == hasCart || (hasCart && len(req.CartItems) == 0) {
		sl.ReportError(req.CartItems, "cartItems", "CartItems", "verify_variant", "")
	}
}

// --- Response types ---

type couponResponse struct {
	ID                 string    `json:"id"`
	Code               string    `json:"code"`
	DiscountPercentage float64   `json:"discountPercentage"`
	ValidForProducts   []string  `json:"validForProducts"`
	IsActive           bool      `json:"isActive"`
	CreatedAt          time.Time `json:"createdAt"`
}

type couponMessageResponse struct {
	Message string         `json:"message"`
	Coupon  couponResponse `json:"coupon"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type verifyResponse struct {
	Message            string  `json:"message"`
	DiscountPercentage float64 `json:"discountPercentage"`
	OriginalPrice      float64 `json:"originalPrice"`
	DiscountAmount     float64 `json:"discountAmount"`
	FinalPrice         float64 `json:"finalPrice"`
}

func toCouponResponse(c *coupon.Coupon) couponResponse {
	return couponResponse{
		ID:                 c.ID.String(),
		Code:               c.Code,
		DiscountPercentage: c.DiscountPercentage.InexactFloat64(),
		ValidForProducts:   c.ValidForProducts,
		IsActive:           c.IsActive,
		CreatedAt:          c.CreatedAt,
	}
}

// --- Endpoints ---

// CreateCoupon handles POST /.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.svc.Create(r.Context(), coupon.CreateParams{
		Code:               req.Code,
		DiscountPercentage: decimal.NewFromFloat(*req.DiscountPercentage),
		ValidForProducts:   req.ValidForProducts,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, couponMessageResponse{
		Message: "Coupon created successfully!",
		Coupon:  toCouponResponse(created),
	})
}

// ListCoupons handles GET /.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]couponResponse, len(coupons))
	for i := range coupons {
		resp[i] = toCouponResponse(&coupons[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateCouponCode handles PATCH /{id}.
func (h *Handler) UpdateCouponCode(w http.ResponseWriter, r *http.Request) {
	id, ok := h.couponID(w, r)
	if !ok {
		return
	}

	var req updateCouponRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.svc.UpdateCode(r.Context(), id, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, couponMessageResponse{
		Message: "Coupon code updated successfully!",
		Coupon:  toCouponResponse(updated),
	})
}

// SetCouponActive handles PATCH /{id}/active, toggling redemption without
// deleting the record.
func (h *Handler) SetCouponActive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.couponID(w, r)
	if !ok {
		return
	}

	var req setActiveRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.svc.SetActive(r.Context(), id, *req.IsActive)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, couponMessageResponse{
		Message: "Coupon updated successfully.",
		Coupon:  toCouponResponse(updated),
	})
}

// DeleteCoupon handles DELETE /{id}.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id, ok := h.couponID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Coupon deleted successfully."})
}

// VerifyCoupon handles POST /verify for both input variants.
func (h *Handler) VerifyCoupon(w http.ResponseWriter, r *http.Request) {
	var req verifyCouponRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := coupon.VerifyInput{Code: req.Code}
	if req.OriginalPrice != nil {
		p := decimal.NewFromFloat(*req.OriginalPrice)
		in.Price = &p
	} else {
		items := make([]coupon.CartItem, len(req.CartItems))
		for i, item := range req.CartItems {
			items[i] = coupon.CartItem{
				ProductID: item.ProductID,
				Price:     decimal.NewFromFloat(item.Price),
				Quantity:  item.Quantity,
			}
		}
		in.Items = items
	}

	q, err := h.svc.Verify(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Message:            "Coupon applied successfully!",
		DiscountPercentage: q.DiscountPercentage.InexactFloat64(),
		OriginalPrice:      q.OriginalPrice.InexactFloat64(),
		DiscountAmount:     q.DiscountAmount.InexactFloat64(),
		FinalPrice:         q.FinalPrice.InexactFloat64(),
	})
}

// couponID parses the {id} path parameter. A malformed id cannot match any
// coupon, so it reports 404.
func (h *Handler) couponID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{
			Code:    http.StatusNotFound,
			Message: "Coupon not found.",
		})
		return uuid.Nil, false
	}
	return id, true
}
