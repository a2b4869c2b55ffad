package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promokit/coupon-service/internal/domain/coupon"
)

// --- In-memory repository ---

type memRepo struct {
	byID map[uuid.UUID]*coupon.Coupon
	err  error
}

func newMemRepo(coupons ...*coupon.Coupon) *memRepo {
	m := &memRepo{byID: make(map[uuid.UUID]*coupon.Coupon)}
	for _, c := range coupons {
		m.byID[c.ID] = c
	}
	return m
}

func (m *memRepo) findByCode(code string) *coupon.Coupon {
	for _, c := range m.byID {
		if c.Code == code {
			return c
		}
	}
	return nil
}

func (m *memRepo) Create(_ context.Context, c *coupon.Coupon) (*coupon.Coupon, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.findByCode(c.Code) != nil {
		return nil, coupon.ErrDuplicateCode
	}
	cp := *c
	m.byID[c.ID] = &cp
	return &cp, nil
}

func (m *memRepo) List(_ context.Context) ([]coupon.Coupon, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]coupon.Coupon, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, *c)
	}
	return out, nil
}

func (m *memRepo) FindActiveByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	if m.err != nil {
		return nil, m.err
	}
	c := m.findByCode(code)
	if c == nil || !c.IsActive {
		return nil, coupon.ErrInvalidCoupon
	}
	return c, nil
}

func (m *memRepo) UpdateCode(_ context.Context, id uuid.UUID, code string) (*coupon.Coupon, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.byID[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	if other := m.findByCode(code); other != nil && other.ID != id {
		return nil, coupon.ErrDuplicateCode
	}
	c.Code = code
	return c, nil
}

func (m *memRepo) SetActive(_ context.Context, id uuid.UUID, active bool) (*coupon.Coupon, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	c.IsActive = active
	return c, nil
}

func (m *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.byID[id]; !ok {
		return coupon.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

// --- Helpers ---

func newTestServer(repo coupon.Repository) http.Handler {
	return NewHandler(coupon.NewService(repo)).Routes()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func activeCoupon(code, pct string, products ...string) *coupon.Coupon {
	if products == nil {
		products = []string{}
	}
	return &coupon.Coupon{
		ID:                 uuid.New(),
		Code:               code,
		DiscountPercentage: decimal.RequireFromString(pct),
		ValidForProducts:   products,
		IsActive:           true,
	}
}

// --- Tests ---

func TestCreateCoupon(t *testing.T) {
	t.Run("creates with normalized code", func(t *testing.T) {
		h := newTestServer(newMemRepo())

		w := doJSON(t, h, http.MethodPost, "/", map[string]any{
			"code":               "  save10 ",
			"discountPercentage": 10,
		})

		require.Equal(t, http.StatusCreated, w.Code)
		resp := decodeBody[couponMessageResponse](t, w)
		assert.Equal(t, "SAVE10", resp.Coupon.Code)
		assert.Equal(t, float64(10), resp.Coupon.DiscountPercentage)
		assert.True(t, resp.Coupon.IsActive)
		assert.Empty(t, resp.Coupon.ValidForProducts)
	})

	t.Run("missing fields", func(t *testing.T) {
		h := newTestServer(newMemRepo())

		w := doJSON(t, h, http.MethodPost, "/", map[string]any{"code": "SAVE10"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = doJSON(t, h, http.MethodPost, "/", map[string]any{"discountPercentage": 10})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("percentage out of bounds", func(t *testing.T) {
		h := newTestServer(newMemRepo())

		for _, pct := range []float64{0, 100, -3} {
			w := doJSON(t, h, http.MethodPost, "/", map[string]any{
				"code":               "BAD",
				"discountPercentage": pct,
			})
			assert.Equal(t, http.StatusBadRequest, w.Code, "percentage %v", pct)
		}
	})

	t.Run("case-insensitive duplicate", func(t *testing.T) {
		h := newTestServer(newMemRepo(activeCoupon("SAVE10", "10")))

		w := doJSON(t, h, http.MethodPost, "/", map[string]any{
			"code":               "save10",
			"discountPercentage": 15,
		})

		assert.Equal(t, http.StatusConflict, w.Code)
		resp := decodeBody[errorResponse](t, w)
		assert.Equal(t, http.StatusConflict, resp.Code)
	})

	t.Run("product-specific create", func(t *testing.T) {
		h := newTestServer(newMemRepo())

		w := doJSON(t, h, http.MethodPost, "/", map[string]any{
			"code":               "P1DEAL",
			"discountPercentage": 20,
			"validForProducts":   []string{"P1", "P2"},
		})

		require.Equal(t, http.StatusCreated, w.Code)
		resp := decodeBody[couponMessageResponse](t, w)
		assert.Equal(t, []string{"P1", "P2"}, resp.Coupon.ValidForProducts)
	})
}

func TestListCoupons(t *testing.T) {
	t.Run("returns all records", func(t *testing.T) {
		h := newTestServer(newMemRepo(
			activeCoupon("A", "10"),
			activeCoupon("B", "20"),
		))

		w := doJSON(t, h, http.MethodGet, "/", nil)

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[[]couponResponse](t, w)
		require.Len(t, resp, 2)

		codes := []string{resp[0].Code, resp[1].Code}
		assert.ElementsMatch(t, []string{"A", "B"}, codes)
	})

	t.Run("store failure", func(t *testing.T) {
		h := newTestServer(&memRepo{err: errors.New("db down")})

		w := doJSON(t, h, http.MethodGet, "/", nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp := decodeBody[errorResponse](t, w)
		assert.Contains(t, resp.Err, "db down")
	})
}

func TestUpdateCouponCode(t *testing.T) {
	t.Run("rewrites and returns new code", func(t *testing.T) {
		c := activeCoupon("OLD", "10")
		h := newTestServer(newMemRepo(c))

		w := doJSON(t, h, http.MethodPatch, "/"+c.ID.String(), map[string]any{"code": "fresh"})

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[couponMessageResponse](t, w)
		assert.Equal(t, "FRESH", resp.Coupon.Code)
	})

	t.Run("missing code", func(t *testing.T) {
		c := activeCoupon("OLD", "10")
		h := newTestServer(newMemRepo(c))

		w := doJSON(t, h, http.MethodPatch, "/"+c.ID.String(), map[string]any{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		h := newTestServer(newMemRepo())

		w := doJSON(t, h, http.MethodPatch, "/"+uuid.NewString(), map[string]any{"code": "NEW"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		h := newTestServer(newMemRepo())

		w := doJSON(t, h, http.MethodPatch, "/not-a-uuid", map[string]any{"code": "NEW"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("collision with another coupon", func(t *testing.T) {
		c := activeCoupon("FIRST", "10")
		h := newTestServer(newMemRepo(c, activeCoupon("TAKEN", "20")))

		w := doJSON(t, h, http.MethodPatch, "/"+c.ID.String(), map[string]any{"code": "taken"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestSetCouponActive(t *testing.T) {
	c := activeCoupon("SAVE10", "10")
	h := newTestServer(newMemRepo(c))

	w := doJSON(t, h, http.MethodPatch, "/"+c.ID.String()+"/active", map[string]any{"isActive": false})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[couponMessageResponse](t, w)
	assert.False(t, resp.Coupon.IsActive)

	// The deactivated coupon no longer verifies.
	w = doJSON(t, h, http.MethodPost, "/verify", map[string]any{
		"code":          "SAVE10",
		"originalPrice": 100,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteCoupon(t *testing.T) {
	t.Run("removes record", func(t *testing.T) {
		c := activeCoupon("BYE", "10")
		repo := newMemRepo(c)
		h := newTestServer(repo)

		w := doJSON(t, h, http.MethodDelete, "/"+c.ID.String(), nil)

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[messageResponse](t, w)
		assert.Equal(t, "Coupon deleted successfully.", resp.Message)

		// Subsequent list excludes the deleted record.
		w = doJSON(t, h, http.MethodGet, "/", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeBody[[]couponResponse](t, w))
	})

	t.Run("unknown id", func(t *testing.T) {
		h := newTestServer(newMemRepo())

		w := doJSON(t, h, http.MethodDelete, "/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestVerifyCoupon(t *testing.T) {
	t.Run("price-only", func(t *testing.T) {
		h := newTestServer(newMemRepo(activeCoupon("SAVE10", "10")))

		w := doJSON(t, h, http.MethodPost, "/verify", map[string]any{
			"code":          "SAVE10",
			"originalPrice": 200.0,
		})

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[verifyResponse](t, w)
		assert.Equal(t, float64(10), resp.DiscountPercentage)
		assert.Equal(t, float64(200), resp.OriginalPrice)
		assert.Equal(t, float64(20), resp.DiscountAmount)
		assert.Equal(t, float64(180), resp.FinalPrice)
	})

	t.Run("cart-wide", func(t *testing.T) {
		h := newTestServer(newMemRepo(activeCoupon("SAVE10", "10")))

		w := doJSON(t, h, http.MethodPost, "/verify", map[string]any{
			"code": "SAVE10",
			"cartItems": []map[string]any{
				{"productId": "P1", "price": 50, "quantity": 2},
				{"productId": "P2", "price": 30, "quantity": 1},
			},
		})

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[verifyResponse](t, w)
		assert.Equal(t, float64(130), resp.OriginalPrice)
		assert.Equal(t, float64(13), resp.DiscountAmount)
		assert.Equal(t, float64(117), resp.FinalPrice)
	})

	t.Run("product-specific", func(t *testing.T) {
		h := newTestServer(newMemRepo(activeCoupon("P1DEAL", "20", "P1")))

		w := doJSON(t, h, http.MethodPost, "/verify", map[string]any{
			"code": "P1DEAL",
			"cartItems": []map[string]any{
				{"productId": "P1", "price": 100, "quantity": 1},
				{"productId": "P2", "price": 50, "quantity": 1},
			},
		})

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[verifyResponse](t, w)
		assert.Equal(t, float64(150), resp.OriginalPrice)
		assert.Equal(t, float64(20), resp.DiscountAmount)
		assert.Equal(t, float64(130), resp.FinalPrice)
	})

	t.Run("no eligible items", func(t *testing.T) {
		h := newTestServer(newMemRepo(activeCoupon("P9DEAL", "20", "P9")))

		w := doJSON(t, h, http.MethodPost, "/verify", map[string]any{
			"code": "P9DEAL",
			"cartItems": []map[string]any{
				{"productId": "P1", "price": 100, "quantity": 1},
				{"productId": "P2", "price": 50, "quantity": 1},
			},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeBody[errorResponse](t, w)
		assert.Contains(t, resp.Message, "not valid for any of the items")
	})

	t.Run("unknown code", func(t *testing.T) {
		h := newTestServer(newMemRepo())

		w := doJSON(t, h, http.MethodPost, "/verify", map[string]any{
			"code":          "GHOST",
			"originalPrice": 100,
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid variants", func(t *testing.T) {
		h := newTestServer(newMemRepo(activeCoupon("SAVE10", "10")))

		// Neither variant.
		w := doJSON(t, h, http.MethodPost, "/verify", map[string]any{"code": "SAVE10"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		// Both variants.
		w = doJSON(t, h, http.MethodPost, "/verify", map[string]any{
			"code":          "SAVE10",
			"originalPrice": 100,
			"cartItems":     []map[string]any{{"productId": "P1", "price": 1, "quantity": 1}},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		// Empty cart.
		w = doJSON(t, h, http.MethodPost, "/verify", map[string]any{
			"code":      "SAVE10",
			"cartItems": []map[string]any{},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("zero original price", func(t *testing.T) {
		h := newTestServer(newMemRepo(activeCoupon("SAVE10", "10")))

		w := doJSON(t, h, http.MethodPost, "/verify", map[string]any{
			"code":          "SAVE10",
			"originalPrice": 0,
		})

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[verifyResponse](t, w)
		assert.Equal(t, float64(0), resp.FinalPrice)
	})
}
