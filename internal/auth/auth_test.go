package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name       string
		role       Role
		permission Permission
		want       bool
	}{
		{"admin health:read", RoleAdmin, PermissionHealthRead, true},
		{"admin breaker:reset", RoleAdmin, PermissionBreakerReset, true},
		{"admin usage:read", RoleAdmin, PermissionUsageRead, true},
		{"admin ledger:write", RoleAdmin, PermissionLedgerWrite, true},

		{"viewer health:read", RoleViewer, PermissionHealthRead, true},
		{"viewer breaker:reset", RoleViewer, PermissionBreakerReset, false},
		{"viewer usage:read", RoleViewer, PermissionUsageRead, true},
		{"viewer ledger:write", RoleViewer, PermissionLedgerWrite, false},

		{"unknown role", Role("unknown"), PermissionHealthRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasPermission(tt.role, tt.permission); got != tt.want {
				t.Errorf("HasPermission(%v, %v) = %v, want %v", tt.role, tt.permission, got, tt.want)
			}
		})
	}
}

func TestHashSecret(t *testing.T) {
	secret := "test-secret-123"

	hash, err := HashSecret(secret)
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}

	if hash == "" {
		t.Error("HashSecret() returned empty hash")
	}
	if hash == secret {
		t.Error("HashSecret() returned unhashed secret")
	}

	// bcrypt salts, so two hashes of the same input differ
	hash2, _ := HashSecret(secret)
	if hash == hash2 {
		t.Error("HashSecret() should produce different hashes due to random salt")
	}
}

func newTestRepo(t *testing.T) *InMemoryOperatorRepository {
	t.Helper()
	repo := NewInMemoryOperatorRepository()
	hash, err := HashSecret("s3cret")
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	repo.Create(context.Background(), &Operator{
		ID:         "op-1",
		Username:   "ops",
		SecretHash: hash,
		Role:       RoleAdmin,
		Enabled:    true,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	})
	return repo
}

func TestAuthenticator_Authenticate(t *testing.T) {
	auth := NewAuthenticator(newTestRepo(t))

	tests := []struct {
		name     string
		username string
		secret   string
		wantErr  error
	}{
		{"valid credentials", "ops", "s3cret", nil},
		{"wrong secret", "ops", "wrong", ErrInvalidCredentials},
		{"unknown operator", "nobody", "s3cret", ErrOperatorNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := auth.Authenticate(context.Background(), tt.username, tt.secret)

			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("Authenticate() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Errorf("Authenticate() unexpected error = %v", err)
				return
			}

			if op.Username != tt.username {
				t.Errorf("Authenticate() op.Username = %v, want %v", op.Username, tt.username)
			}
		})
	}
}

func TestBootstrapOperatorRepository(t *testing.T) {
	hash, err := HashSecret("bootstrap-secret")
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	auth := NewAuthenticator(NewBootstrapOperatorRepository(hash))

	op, err := auth.Authenticate(context.Background(), BootstrapUsername, "bootstrap-secret")
	if err != nil {
		t.Fatalf("Authenticate() unexpected error = %v", err)
	}
	if op.Role != RoleAdmin {
		t.Errorf("op.Role = %v, want admin", op.Role)
	}
	if !op.Enabled {
		t.Error("bootstrap operator must be enabled")
	}

	if _, err := auth.Authenticate(context.Background(), BootstrapUsername, "wrong"); err != ErrInvalidCredentials {
		t.Errorf("Authenticate() with wrong secret error = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticator_DisabledOperator(t *testing.T) {
	repo := NewInMemoryOperatorRepository()
	hash, _ := HashSecret("secret")
	repo.Create(context.Background(), &Operator{
		ID:         "disabled-op",
		Username:   "disabled",
		SecretHash: hash,
		Role:       RoleViewer,
		Enabled:    false,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	})

	auth := NewAuthenticator(repo)

	_, err := auth.Authenticate(context.Background(), "disabled", "secret")
	if err != ErrUnauthorized {
		t.Errorf("Authenticate() disabled operator error = %v, want %v", err, ErrUnauthorized)
	}
}

func TestOperatorContext(t *testing.T) {
	op := &Operator{
		ID:       "test-id",
		Username: "testop",
		Role:     RoleAdmin,
	}

	ctx := context.Background()

	_, ok := OperatorFromContext(ctx)
	if ok {
		t.Error("OperatorFromContext() should return false for empty context")
	}

	ctx = WithOperator(ctx, op)
	got, ok := OperatorFromContext(ctx)
	if !ok {
		t.Error("OperatorFromContext() should return true after WithOperator")
	}
	if got.ID != op.ID {
		t.Errorf("OperatorFromContext() op.ID = %v, want %v", got.ID, op.ID)
	}
}

func TestMiddleware_RequireAuth(t *testing.T) {
	auth := NewAuthenticator(newTestRepo(t))
	middleware := NewMiddleware(auth)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, ok := OperatorFromContext(r.Context())
		if !ok {
			t.Error("Operator should be in context after auth")
		}
		if op.Username != "ops" {
			t.Errorf("Username = %v, want ops", op.Username)
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		username   string
		secret     string
		wantStatus int
	}{
		{"valid auth", "ops", "s3cret", http.StatusOK},
		{"wrong secret", "ops", "wrong", http.StatusUnauthorized},
		{"no auth", "", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin/test", nil)
			if tt.username != "" {
				req.SetBasicAuth(tt.username, tt.secret)
			}

			rr := httptest.NewRecorder()
			middleware.RequireAuth(handler).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("RequireAuth() status = %v, want %v", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestMiddleware_RequirePermission(t *testing.T) {
	middleware := &Middleware{}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		role       Role
		permission Permission
		wantStatus int
	}{
		{"admin with reset", RoleAdmin, PermissionBreakerReset, http.StatusOK},
		{"viewer without reset", RoleViewer, PermissionBreakerReset, http.StatusForbidden},
		{"viewer without ledger write", RoleViewer, PermissionLedgerWrite, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &Operator{ID: "test", Username: "test", Role: tt.role}
			req := httptest.NewRequest("GET", "/test", nil)
			req = req.WithContext(WithOperator(req.Context(), op))

			rr := httptest.NewRecorder()
			middleware.RequirePermission(tt.permission)(handler).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("RequirePermission() status = %v, want %v", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestMiddleware_RequirePermission_NoOperator(t *testing.T) {
	middleware := &Middleware{}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()

	middleware.RequirePermission(PermissionHealthRead)(handler).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("RequirePermission() without operator status = %v, want %v", rr.Code, http.StatusUnauthorized)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid bearer", "Bearer abc123", "abc123"},
		{"no bearer prefix", "abc123", ""},
		{"empty header", "", ""},
		{"basic auth", "Basic dXNlcjpwYXNz", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			got := ExtractBearerToken(req)
			if got != tt.want {
				t.Errorf("ExtractBearerToken() = %v, want %v", got, tt.want)
			}
		})
	}
}
