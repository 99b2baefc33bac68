package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/senseease/senseease/pkg/types"
	"github.com/senseease/senseease/server/internal/alerts"
	"github.com/senseease/senseease/server/internal/cart"
	"github.com/senseease/senseease/server/internal/metrics"
	"github.com/senseease/senseease/server/internal/prefs"
	"github.com/senseease/senseease/server/internal/store"
	"github.com/senseease/senseease/server/internal/stress"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store   *store.Store
	alerts  *alerts.Engine
	prefs   *prefs.Service
	metrics *metrics.Metrics
	mux     *http.ServeMux
}

// New creates a Handler wired to the state store, calming engine,
// preference service and metrics, and registers all routes.
func New(st *store.Store, eng *alerts.Engine, pf *prefs.Service, m *metrics.Metrics) http.Handler {
	h := &Handler{store: st, alerts: eng, prefs: pf, metrics: m, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /api/v1/health", h.health)
	h.mux.HandleFunc("POST /api/v1/quote", h.quote)

	h.mux.HandleFunc("GET /api/v1/carts/{id}", h.getCart)
	h.mux.HandleFunc("DELETE /api/v1/carts/{id}", h.clearCart)
	h.mux.HandleFunc("POST /api/v1/carts/{id}/items", h.addItem)
	h.mux.HandleFunc("PUT /api/v1/carts/{id}/items/{line}", h.updateItem)
	h.mux.HandleFunc("DELETE /api/v1/carts/{id}/items/{line}", h.removeItem)
	h.mux.HandleFunc("POST /api/v1/carts/{id}/coupons", h.applyCoupon)
	h.mux.HandleFunc("DELETE /api/v1/carts/{id}/coupons/{code}", h.removeCoupon)

	h.mux.HandleFunc("POST /api/v1/sessions/{id}/events", h.recordEvents)
	h.mux.HandleFunc("GET /api/v1/sessions/{id}/events", h.listEvents)
	h.mux.HandleFunc("DELETE /api/v1/sessions/{id}/events", h.resetEvents)
	h.mux.HandleFunc("GET /api/v1/sessions/{id}/stress", h.getStress)

	h.mux.HandleFunc("GET /api/v1/users/{id}/preferences", h.getPreferences)
	h.mux.HandleFunc("PUT /api/v1/users/{id}/preferences", h.putPreferences)

	h.mux.HandleFunc("GET /api/v1/alerts", h.listAlerts)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- health -----------------------------------------------------------------

// health returns GET /api/v1/health: state counts and storage backend.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:       "ok",
		Storage:      "memory",
		CartCount:    h.store.CartCount(),
		SessionCount: h.store.SessionCount(),
		AlertCount:   h.alerts.FiringCount(),
	}
	if h.store.Persistent() {
		resp.Storage = "sqlite"
	}
	if totals, err := h.metrics.Totals(); err == nil {
		resp.Counters = totals
	}
	jsonResp(w, http.StatusOK, resp)
}

// --- pricing & carts --------------------------------------------------------

// quote returns POST /api/v1/quote: totals for the posted lines and coupons
// without touching any stored cart.
func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	q, err := PriceQuote(req, h.store.Policy())
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, toQuoteResponse(q))
}

// getCart returns GET /api/v1/carts/{id}; unknown carts are empty.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, toCartResponse(h.store.Cart(r.PathValue("id"))))
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.mutate(w, r, "add_item", func(c *cart.Cart) error {
		_, err := c.AddItem(req.ProductID, req.Quantity, req.UnitPrice, req.VariantModifiers)
		return err
	})
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	line := r.PathValue("line")
	h.mutate(w, r, "update_item", func(c *cart.Cart) error {
		_, err := c.UpdateItemQuantity(line, req.Quantity)
		return err
	})
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	line := r.PathValue("line")
	h.mutate(w, r, "remove_item", func(c *cart.Cart) error {
		c.RemoveItem(line)
		return nil
	})
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req CouponRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.mutate(w, r, "apply_coupon", func(c *cart.Cart) error {
		_, err := c.ApplyCoupon(req.Code, req.Amount, req.Kind)
		return err
	})
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	h.mutate(w, r, "remove_coupon", func(c *cart.Cart) error {
		c.RemoveCoupon(code)
		return nil
	})
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "clear", func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
}

// mutate applies fn to the cart named in the path and writes the result.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op string, fn func(*cart.Cart) error) {
	c, err := h.store.UpdateCart(r.Context(), r.PathValue("id"), fn)
	h.metrics.CartMutations.WithLabelValues(op, metrics.Result(err)).Inc()
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, toCartResponse(c))
}

// --- sessions ---------------------------------------------------------------

// recordEvents accepts POST /api/v1/sessions/{id}/events with either a single
// event object or an array of events, and returns the updated stress view.
func (h *Handler) recordEvents(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	var events []types.InteractionEvent
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &events); err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	} else {
		var ev types.InteractionEvent
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		events = []types.InteractionEvent{ev}
	}
	if len(events) == 0 {
		jsonErr(w, http.StatusBadRequest, "no events")
		return
	}
	for i, ev := range events {
		if ev.Type == "" {
			jsonErr(w, http.StatusBadRequest, fmt.Sprintf("events[%d]: type is required", i))
			return
		}
	}

	id := r.PathValue("id")
	evicted, err := h.store.RecordEvents(r.Context(), id, events...)
	if err != nil {
		writeErr(w, err)
		return
	}
	for _, ev := range events {
		label := string(ev.Type)
		if !stress.KnownType(ev.Type) {
			label = "unknown"
		}
		h.metrics.EventsRecorded.WithLabelValues(label).Inc()
	}
	h.metrics.EventLogEvictions.Add(float64(evicted))

	view, err := EvaluateStress(r.Context(), h.store, h.alerts, h.metrics, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, RecordResponse{Recorded: len(events), Evicted: evicted, Stress: view})
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	events, err := h.store.Events(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if events == nil {
		events = []types.InteractionEvent{}
	}
	jsonResp(w, http.StatusOK, EventsResponse{SessionID: id, Count: len(events), Events: events})
}

func (h *Handler) resetEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.ResetEvents(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	view, err := EvaluateStress(r.Context(), h.store, h.alerts, h.metrics, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, view)
}

// getStress returns GET /api/v1/sessions/{id}/stress: the current score,
// level, calming flag and hints.
func (h *Handler) getStress(w http.ResponseWriter, r *http.Request) {
	view, err := EvaluateStress(r.Context(), h.store, h.alerts, h.metrics, r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, view)
}

// EvaluateStress scores a session, runs the calming rules against the result
// and returns the combined view. It is shared with the live stream.
func EvaluateStress(ctx context.Context, st *store.Store, eng *alerts.Engine, m *metrics.Metrics, sessionID string) (StressResponse, error) {
	ev, err := st.Evaluate(ctx, sessionID)
	if err != nil {
		return StressResponse{}, fmt.Errorf("evaluate session %q: %w", sessionID, err)
	}
	calming := eng.Evaluate(sessionID, ev.State)
	if m != nil {
		m.StressEvaluations.WithLabelValues(string(ev.State.Level)).Inc()
		m.StressScore.Observe(ev.State.Score)
	}
	return StressResponse{
		SessionID:   sessionID,
		Score:       ev.State.Score,
		Level:       string(ev.State.Level),
		EventCount:  ev.State.EventCount,
		Calming:     calming,
		Hints:       stressHints(ev.Events, ev.State, ev.Scorer, ev.At),
		EvaluatedAt: ev.At.UTC().Format(time.RFC3339),
	}, nil
}

// --- preferences & alerts ---------------------------------------------------

func (h *Handler) getPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := h.prefs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, p)
}

func (h *Handler) putPreferences(w http.ResponseWriter, r *http.Request) {
	var patch prefs.Patch
	if !decodeBody(w, r, &patch) {
		return
	}
	p, err := h.prefs.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, p)
}

// listAlerts returns GET /api/v1/alerts: firing calming alerts plus those
// resolved within the past hour.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// decodeBody decodes a size-limited JSON body into v. On failure it writes a
// 400 and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// writeErr maps domain errors to HTTP status codes.
func writeErr(w http.ResponseWriter, err error) {
	jsonErr(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidPrice),
		errors.Is(err, cart.ErrInvalidCoupon),
		errors.Is(err, cart.ErrInvalidProduct),
		errors.Is(err, prefs.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, cart.ErrLineNotFound):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrDuplicateCoupon):
		return http.StatusConflict
	default:
		slog.Error("api: internal error", "err", err)
		return http.StatusInternalServerError
	}
}
