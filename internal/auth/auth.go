// Package auth guards the admin surface. Tenant requests authenticate
// with license keys handled by the license package; operators use
// basic-auth credentials checked against bcrypt hashes here.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrOperatorNotFound   = errors.New("operator not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// Operator is a human or service account allowed onto the admin API.
type Operator struct {
	ID         string
	Username   string
	SecretHash string
	Role       Role
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Permission string

const (
	PermissionHealthRead   Permission = "health:read"
	PermissionBreakerReset Permission = "breaker:reset"
	PermissionUsageRead    Permission = "usage:read"
	PermissionLedgerWrite  Permission = "ledger:write"
)

var rolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermissionHealthRead,
		PermissionBreakerReset,
		PermissionUsageRead,
		PermissionLedgerWrite,
	},
	RoleViewer: {
		PermissionHealthRead,
		PermissionUsageRead,
	},
}

func HasPermission(role Role, permission Permission) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

type OperatorRepository interface {
	GetByUsername(ctx context.Context, username string) (*Operator, error)
	Create(ctx context.Context, op *Operator) error
	List(ctx context.Context) ([]*Operator, error)
}

type Authenticator struct {
	repo OperatorRepository
}

func NewAuthenticator(repo OperatorRepository) *Authenticator {
	return &Authenticator{repo: repo}
}

func (a *Authenticator) Authenticate(ctx context.Context, username, secret string) (*Operator, error) {
	op, err := a.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, ErrOperatorNotFound
	}

	if !op.Enabled {
		return nil, ErrUnauthorized
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.SecretHash), []byte(secret)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return op, nil
}

func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type contextKey string

const operatorContextKey contextKey = "operator"

func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey, op)
}

func OperatorFromContext(ctx context.Context) (*Operator, bool) {
	op, ok := ctx.Value(operatorContextKey).(*Operator)
	return op, ok
}

type Middleware struct {
	auth *Authenticator
}

func NewMiddleware(auth *Authenticator) *Middleware {
	return &Middleware{auth: auth}
}

func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, secret, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Admin API"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		op, err := m.auth.Authenticate(r.Context(), username, secret)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := WithOperator(r.Context(), op)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) RequirePermission(permission Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, ok := OperatorFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !HasPermission(op.Role, permission) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type PostgresOperatorRepository struct {
	db *sql.DB
}

func NewPostgresOperatorRepository(db *sql.DB) *PostgresOperatorRepository {
	return &PostgresOperatorRepository{db: db}
}

func (r *PostgresOperatorRepository) GetByUsername(ctx context.Context, username string) (*Operator, error) {
	query := `
		SELECT id, username, secret_hash, role, enabled, created_at, updated_at
		FROM operators
		WHERE username = $1
	`

	var op Operator
	var role string
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&op.ID,
		&op.Username,
		&op.SecretHash,
		&role,
		&op.Enabled,
		&op.CreatedAt,
		&op.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrOperatorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query operator: %w", err)
	}

	op.Role = Role(role)
	return &op, nil
}

func (r *PostgresOperatorRepository) Create(ctx context.Context, op *Operator) error {
	query := `
		INSERT INTO operators (id, username, secret_hash, role, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		op.ID,
		op.Username,
		op.SecretHash,
		string(op.Role),
		op.Enabled,
		op.CreatedAt,
		op.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("insert operator: %w", err)
	}

	return nil
}

func (r *PostgresOperatorRepository) List(ctx context.Context) ([]*Operator, error) {
	query := `
		SELECT id, username, secret_hash, role, enabled, created_at, updated_at
		FROM operators
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query operators: %w", err)
	}
	defer rows.Close()

	var ops []*Operator
	for rows.Next() {
		var op Operator
		var role string
		err := rows.Scan(
			&op.ID,
			&op.Username,
			&op.SecretHash,
			&role,
			&op.Enabled,
			&op.CreatedAt,
			&op.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan operator: %w", err)
		}
		op.Role = Role(role)
		ops = append(ops, &op)
	}

	return ops, rows.Err()
}

type InMemoryOperatorRepository struct {
	operators map[string]*Operator
}

func NewInMemoryOperatorRepository() *InMemoryOperatorRepository {
	return &InMemoryOperatorRepository{
		operators: make(map[string]*Operator),
	}
}

// BootstrapUsername is the login of the operator seeded from
// deployment config.
const BootstrapUsername = "admin"

// NewBootstrapOperatorRepository returns an in-memory repository seeded
// with a single enabled admin whose bcrypt secret hash comes from
// deployment config. Database-less deployments use it so enabling
// admin auth does not lock every operator out.
func NewBootstrapOperatorRepository(secretHash string) *InMemoryOperatorRepository {
	repo := NewInMemoryOperatorRepository()
	now := time.Now().UTC()
	repo.operators[BootstrapUsername] = &Operator{
		ID:         "bootstrap",
		Username:   BootstrapUsername,
		SecretHash: secretHash,
		Role:       RoleAdmin,
		Enabled:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return repo
}

func (r *InMemoryOperatorRepository) GetByUsername(ctx context.Context, username string) (*Operator, error) {
	op, ok := r.operators[username]
	if !ok {
		return nil, ErrOperatorNotFound
	}
	return op, nil
}

func (r *InMemoryOperatorRepository) Create(ctx context.Context, op *Operator) error {
	r.operators[op.Username] = op
	return nil
}

func (r *InMemoryOperatorRepository) List(ctx context.Context) ([]*Operator, error) {
	ops := make([]*Operator, 0, len(r.operators))
	for _, op := range r.operators {
		ops = append(ops, op)
	}
	return ops, nil
}

// ExtractBearerToken pulls the license key from an Authorization
// header. Empty string means no bearer credential was presented.
func ExtractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
