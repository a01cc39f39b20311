package products

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"api-gateway-go/internal/backend"
)

// ServiceName identifies the product service in health reports.
const ServiceName = "product-service"

// Handler serves /api/products. Only list, create and get exist; other verbs
// get a JSON 405 from the router.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger.With("component", "products_handler")}
}

// Routes mounts the product endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.List(r.Context())
	if err != nil {
		h.internalError(w, "list products", err)
		return
	}
	backend.WriteJSON(w, http.StatusOK, map[string]any{"products": products, "count": len(products)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := backend.DecodeJSON(w, r, &in); err != nil {
		backend.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Price == nil {
		backend.WriteError(w, http.StatusBadRequest, "name and price are required")
		return
	}

	p, err := h.store.Create(r.Context(), in)
	if err != nil {
		h.internalError(w, "create product", err)
		return
	}
	h.logger.Info("product created", "id", p.ID)
	backend.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		backend.WriteError(w, http.StatusNotFound, "Product not found")
		return
	}
	if err != nil {
		h.internalError(w, "get product", err)
		return
	}
	backend.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, "err", err)
	backend.WriteError(w, http.StatusInternalServerError, "Internal server error")
}
