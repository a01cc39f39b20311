package users

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"api-gateway-go/internal/backend"
)

// memStore is an in-memory Store enforcing username/email uniqueness.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]User
	clock  time.Time
	err    error
}

func newMemStore() *memStore {
	return &memStore{users: make(map[int64]User), clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) taken(id int64, username, email string) bool {
	for _, u := range s.users {
		if u.ID != id && (u.Username == username || u.Email == email) {
			return true
		}
	}
	return false
}

func (s *memStore) List(context.Context) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := []User{}
	for id := s.nextID; id > 0; id-- {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memStore) Create(_ context.Context, in CreateInput) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taken(0, in.Username, in.Email) {
		return User{}, ErrConflict
	}
	s.nextID++
	now := s.tick()
	u := User{ID: s.nextID, Username: in.Username, Email: in.Email, FirstName: in.FirstName, LastName: in.LastName, CreatedAt: now, UpdatedAt: now}
	s.users[u.ID] = u
	return u, nil
}

func (s *memStore) Get(_ context.Context, id int64) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *memStore) Update(_ context.Context, id int64, in UpdateInput) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	if in.Username != nil {
		u.Username = *in.Username
	}
	if in.Email != nil {
		u.Email = *in.Email
	}
	if in.FirstName != nil {
		u.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		u.LastName = *in.LastName
	}
	if s.taken(id, u.Username, u.Email) {
		return User{}, ErrConflict
	}
	u.UpdatedAt = s.tick()
	s.users[id] = u
	return u, nil
}

func (s *memStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func newTestRouter(store Store) *chi.Mux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := backend.NewRouter(logger)
	NewHandler(store, logger).Routes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader = http.NoBody
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
	}
	return body["error"]
}

func TestCreate(t *testing.T) {
	r := newTestRouter(newMemStore())

	rec := do(t, r, http.MethodPost, "/api/users", `{"username":"ann","email":"ann@example.com","first_name":"Ann"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}

	var u User
	if err := json.Unmarshal(rec.Body.Bytes(), &u); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if u.ID != 1 || u.Username != "ann" || u.FirstName != "Ann" || u.LastName != "" {
		t.Errorf("user = %+v", u)
	}
	if u.CreatedAt.IsZero() {
		t.Error("expected created_at")
	}
}

func TestCreate_Validation(t *testing.T) {
	r := newTestRouter(newMemStore())

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing email", `{"username":"ann"}`, "Username and email are required"},
		{"blank username", `{"username":"  ","email":"a@b.c"}`, "Username and email are required"},
		{"malformed", `{"username":`, "Invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, r, http.MethodPost, "/api/users", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if got := errorOf(t, rec); got != tt.wantErr {
				t.Errorf("error = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestCreate_Conflict(t *testing.T) {
	r := newTestRouter(newMemStore())

	do(t, r, http.MethodPost, "/api/users", `{"username":"ann","email":"ann@example.com"}`)
	rec := do(t, r, http.MethodPost, "/api/users", `{"username":"ann","email":"other@example.com"}`)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if got := errorOf(t, rec); got != "User already exists" {
		t.Errorf("error = %q", got)
	}
}

func TestList_NewestFirst(t *testing.T) {
	r := newTestRouter(newMemStore())
	do(t, r, http.MethodPost, "/api/users", `{"username":"a","email":"a@x"}`)
	do(t, r, http.MethodPost, "/api/users", `{"username":"b","email":"b@x"}`)

	rec := do(t, r, http.MethodGet, "/api/users", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		Users []User `json:"users"`
		Count int    `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Count != 2 || len(body.Users) != 2 {
		t.Fatalf("count = %d, users = %d, want 2", body.Count, len(body.Users))
	}
	if body.Users[0].Username != "b" {
		t.Errorf("first user = %q, want newest %q", body.Users[0].Username, "b")
	}
}

func TestList_EmptyIsArray(t *testing.T) {
	r := newTestRouter(newMemStore())

	rec := do(t, r, http.MethodGet, "/api/users", "")
	if !strings.Contains(rec.Body.String(), `"users":[]`) {
		t.Errorf("body = %s, want empty users array", rec.Body)
	}
}

func TestGet(t *testing.T) {
	r := newTestRouter(newMemStore())
	do(t, r, http.MethodPost, "/api/users", `{"username":"ann","email":"ann@example.com"}`)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/api/users/1", http.StatusOK},
		{"/api/users/42", http.StatusNotFound},
		{"/api/users/abc", http.StatusNotFound},
		{"/api/users/-1", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, r, http.MethodGet, tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusNotFound {
				if got := errorOf(t, rec); got != "User not found" {
					t.Errorf("error = %q", got)
				}
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	r := newTestRouter(newMemStore())
	do(t, r, http.MethodPost, "/api/users", `{"username":"ann","email":"ann@example.com","last_name":"Lee"}`)
	do(t, r, http.MethodPost, "/api/users", `{"username":"bob","email":"bob@example.com"}`)

	rec := do(t, r, http.MethodPut, "/api/users/1", `{"first_name":"Annie"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	var u User
	if err := json.Unmarshal(rec.Body.Bytes(), &u); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if u.FirstName != "Annie" || u.LastName != "Lee" || u.Username != "ann" {
		t.Errorf("partial update result = %+v", u)
	}

	if rec := do(t, r, http.MethodPut, "/api/users/1", `{"email":"bob@example.com"}`); rec.Code != http.StatusConflict {
		t.Errorf("duplicate email: status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if rec := do(t, r, http.MethodPut, "/api/users/1", `{"username":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("blank username: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if rec := do(t, r, http.MethodPut, "/api/users/9", `{"first_name":"x"}`); rec.Code != http.StatusNotFound {
		t.Errorf("missing user: status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestDelete(t *testing.T) {
	r := newTestRouter(newMemStore())
	do(t, r, http.MethodPost, "/api/users", `{"username":"ann","email":"ann@example.com"}`)

	rec := do(t, r, http.MethodDelete, "/api/users/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec := do(t, r, http.MethodGet, "/api/users/1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("after delete: status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec := do(t, r, http.MethodDelete, "/api/users/1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestStoreFailure(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection reset")
	r := newTestRouter(store)

	rec := do(t, r, http.MethodGet, "/api/users", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Error("driver error must not leak to the client")
	}
}

func TestCollectionDeleteNotAllowed(t *testing.T) {
	r := newTestRouter(newMemStore())

	rec := do(t, r, http.MethodDelete, "/api/users", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}
