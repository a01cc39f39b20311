package orders

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"api-gateway-go/internal/backend"
)

// ServiceName identifies the order service in health reports.
const ServiceName = "order-service"

// Handler serves /api/orders.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger.With("component", "orders_handler")}
}

// Routes mounts the order endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(h.orderID)
			r.Get("/", h.get)
			r.Put("/", h.update)
			r.Delete("/", h.delete)
		})
	})
}

type ctxKey struct{}

// orderID parses the {id} parameter; non-numeric ids address no order.
func (h *Handler) orderID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			backend.WriteError(w, http.StatusNotFound, "Order not found")
			return
		}
		next.ServeHTTP(w, r.WithContext(withID(r.Context(), id)))
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orders, err := h.store.List(r.Context())
	if err != nil {
		h.internalError(w, "list orders", err)
		return
	}
	backend.WriteJSON(w, http.StatusOK, map[string]any{"orders": orders, "count": len(orders)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := backend.DecodeJSON(w, r, &in); err != nil {
		backend.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	n, ok := in.Validate()
	if !ok {
		backend.WriteError(w, http.StatusBadRequest, "user_id, product_id, and total_amount are required")
		return
	}

	o, err := h.store.Create(r.Context(), n)
	if err != nil {
		h.internalError(w, "create order", err)
		return
	}
	h.logger.Info("order created", "id", o.ID, "user_id", o.UserID)
	backend.WriteJSON(w, http.StatusCreated, o)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.store.Get(r.Context(), idFrom(r.Context()))
	if err != nil {
		h.writeStoreError(w, "get order", err)
		return
	}
	backend.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if err := backend.DecodeJSON(w, r, &in); err != nil {
		backend.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if in.Status != nil && *in.Status == "" {
		backend.WriteError(w, http.StatusBadRequest, "status cannot be empty")
		return
	}

	o, err := h.store.Update(r.Context(), idFrom(r.Context()), in)
	if err != nil {
		h.writeStoreError(w, "update order", err)
		return
	}
	backend.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id := idFrom(r.Context())
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, "delete order", err)
		return
	}
	h.logger.Info("order deleted", "id", id)
	backend.WriteJSON(w, http.StatusOK, map[string]string{"message": "Order deleted"})
}

func (h *Handler) writeStoreError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ErrNotFound) {
		backend.WriteError(w, http.StatusNotFound, "Order not found")
		return
	}
	h.internalError(w, op, err)
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, "err", err)
	backend.WriteError(w, http.StatusInternalServerError, "Internal server error")
}
