package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/comanda-pos/api/internal/auth"
	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/comanda-pos/api/internal/handler"
)

type mockAuthStore struct {
	getTenantBySlugFn func(ctx context.Context, slug string) (database.Tenant, error)
	getUserByEmailFn  func(ctx context.Context, arg database.GetUserByEmailParams) (database.User, error)
}

func (m *mockAuthStore) GetTenantBySlug(ctx context.Context, slug string) (database.Tenant, error) {
	if m.getTenantBySlugFn != nil {
		return m.getTenantBySlugFn(ctx, slug)
	}
	return database.Tenant{}, pgx.ErrNoRows
}

func (m *mockAuthStore) GetUserByEmail(ctx context.Context, arg database.GetUserByEmailParams) (database.User, error) {
	if m.getUserByEmailFn != nil {
		return m.getUserByEmailFn(ctx, arg)
	}
	return database.User{}, pgx.ErrNoRows
}

func setupAuthRouter(store *mockAuthStore) *chi.Mux {
	h := handler.NewAuthHandler(store, testSecret)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func doLogin(t *testing.T, router http.Handler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest("POST", "/auth/login", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func activeTenant() database.Tenant {
	return database.Tenant{ID: testTenantID, Name: "La Esquina", Slug: "la-esquina", Active: true}
}

func hashedUser(t *testing.T, password string) database.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return database.User{
		ID:             testUserID,
		TenantID:       testTenantID,
		Email:          "ana@example.com",
		HashedPassword: string(hash),
		FullName:       "Ana",
		Role:           enum.UserRoleAdmin,
	}
}

func TestLogin_HappyPath(t *testing.T) {
	user := hashedUser(t, "secret123")
	store := &mockAuthStore{
		getTenantBySlugFn: func(ctx context.Context, slug string) (database.Tenant, error) {
			return activeTenant(), nil
		},
		getUserByEmailFn: func(ctx context.Context, arg database.GetUserByEmailParams) (database.User, error) {
			if arg.TenantID != testTenantID {
				t.Errorf("tenant_id: got %d, want %d", arg.TenantID, testTenantID)
			}
			return user, nil
		},
	}

	rr := doLogin(t, setupAuthRouter(store), map[string]string{
		"tenant":   "la-esquina",
		"email":    "ana@example.com",
		"password": "secret123",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
		User  struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
		Tenant struct {
			Slug string `json:"slug"`
		} `json:"tenant"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	identity, err := auth.Validate(testSecret, resp.Token)
	if err != nil {
		t.Fatalf("issued token did not validate: %v", err)
	}
	if identity.TenantID != testTenantID || identity.UserID != testUserID {
		t.Errorf("identity: got %+v, want tenant %d user %d", identity, testTenantID, testUserID)
	}
	if resp.User.Role != enum.UserRoleAdmin {
		t.Errorf("role: got %q, want %q", resp.User.Role, enum.UserRoleAdmin)
	}
	if resp.Tenant.Slug != "la-esquina" {
		t.Errorf("tenant slug: got %q, want la-esquina", resp.Tenant.Slug)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	user := hashedUser(t, "secret123")
	store := &mockAuthStore{
		getTenantBySlugFn: func(ctx context.Context, slug string) (database.Tenant, error) {
			return activeTenant(), nil
		},
		getUserByEmailFn: func(ctx context.Context, arg database.GetUserByEmailParams) (database.User, error) {
			return user, nil
		},
	}

	rr := doLogin(t, setupAuthRouter(store), map[string]string{
		"tenant":   "la-esquina",
		"email":    "ana@example.com",
		"password": "wrong",
	})

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestLogin_UnknownTenant(t *testing.T) {
	rr := doLogin(t, setupAuthRouter(&mockAuthStore{}), map[string]string{
		"tenant":   "nope",
		"email":    "ana@example.com",
		"password": "secret123",
	})

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestLogin_InactiveTenant(t *testing.T) {
	store := &mockAuthStore{
		getTenantBySlugFn: func(ctx context.Context, slug string) (database.Tenant, error) {
			tenant := activeTenant()
			tenant.Active = false
			return tenant, nil
		},
		getUserByEmailFn: func(ctx context.Context, arg database.GetUserByEmailParams) (database.User, error) {
			t.Error("user lookup must not run for an inactive tenant")
			return database.User{}, pgx.ErrNoRows
		},
	}

	rr := doLogin(t, setupAuthRouter(store), map[string]string{
		"tenant":   "la-esquina",
		"email":    "ana@example.com",
		"password": "secret123",
	})

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	rr := doLogin(t, setupAuthRouter(&mockAuthStore{}), map[string]string{
		"email": "ana@example.com",
	})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
