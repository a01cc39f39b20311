package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"api-gateway-go/internal/backend"
)

// ServiceName identifies the user service in health reports.
const ServiceName = "user-service"

// Handler serves /api/users.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger.With("component", "users_handler")}
}

// Routes mounts the user endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/users", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.List(r.Context())
	if err != nil {
		h.internalError(w, "list users", err)
		return
	}
	backend.WriteJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := backend.DecodeJSON(w, r, &in); err != nil {
		backend.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" {
		backend.WriteError(w, http.StatusBadRequest, "Username and email are required")
		return
	}

	u, err := h.store.Create(r.Context(), in)
	if err != nil {
		h.writeStoreError(w, "create user", err)
		return
	}
	h.logger.Info("user created", "id", u.ID)
	backend.WriteJSON(w, http.StatusCreated, u)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		backend.WriteError(w, http.StatusNotFound, "User not found")
		return
	}
	u, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, "get user", err)
		return
	}
	backend.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		backend.WriteError(w, http.StatusNotFound, "User not found")
		return
	}
	var in UpdateInput
	if err := backend.DecodeJSON(w, r, &in); err != nil {
		backend.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if blank(in.Username) || blank(in.Email) {
		backend.WriteError(w, http.StatusBadRequest, "Username and email cannot be empty")
		return
	}

	u, err := h.store.Update(r.Context(), id, in)
	if err != nil {
		h.writeStoreError(w, "update user", err)
		return
	}
	backend.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		backend.WriteError(w, http.StatusNotFound, "User not found")
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, "delete user", err)
		return
	}
	h.logger.Info("user deleted", "id", id)
	backend.WriteJSON(w, http.StatusOK, map[string]string{"message": "User deleted"})
}

func (h *Handler) writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		backend.WriteError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, ErrConflict):
		backend.WriteError(w, http.StatusConflict, "User already exists")
	default:
		h.internalError(w, op, err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, "err", err)
	backend.WriteError(w, http.StatusInternalServerError, "Internal server error")
}

// parseID accepts positive integer ids only; anything else addresses no user.
func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func blank(s *string) bool {
	return s != nil && strings.TrimSpace(*s) == ""
}
