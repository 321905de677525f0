package accounts

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"echvid/internal/config"
	"echvid/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// Plan gates the watermark on composed videos.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// Role gates admin-only API routes.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

const minPasswordLength = 8

var (
	ErrNotFound           = errors.New("user not found")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ParsePlan accepts the plan names case-insensitively.
func ParsePlan(value string) (Plan, error) {
	switch Plan(strings.ToLower(strings.TrimSpace(value))) {
	case PlanFree:
		return PlanFree, nil
	case PlanPremium:
		return PlanPremium, nil
	}
	return "", fmt.Errorf("%w: unknown plan %q", services.ErrValidation, value)
}

// ParseRole accepts the role names case-insensitively; blank is a regular user.
func ParseRole(value string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case "", RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", services.ErrValidation, value)
}

// User is one account without its password hash.
type User struct {
	ID        int64
	Email     string
	Plan      Plan
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin reports whether the user may call admin routes.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Store persists accounts in SQLite.
type Store struct {
	db         *sql.DB
	path       string
	bcryptCost int
}

// Open opens the accounts database under paths.state_dir.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.AccountsDBPath(), cfg.API.BcryptCost)
}

// OpenPath opens the accounts database at an explicit location.
func OpenPath(dbPath string, bcryptCost int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure accounts directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create accounts schema: %w", err)
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Store{db: db, path: dbPath, bcryptCost: bcryptCost}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create registers a user.
func (s *Store) Create(ctx context.Context, email, password string, plan Plan, role Role) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", services.ErrValidation)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", services.ErrValidation, minPasswordLength)
	}
	if plan == "" {
		plan = PlanFree
	}
	if role == "" {
		role = RoleUser
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, plan, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		email, string(hash), string(plan), string(role), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEmail, email)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	return &User{ID: id, Email: email, Plan: plan, Role: role, CreatedAt: now, UpdatedAt: now}, nil
}

const userColumns = "id, email, plan, role, created_at, updated_at"

func scanUser(scanner interface{ Scan(dest ...any) error }) (*User, error) {
	var (
		u                User
		plan, role       string
		created, updated string
	)
	if err := scanner.Scan(&u.ID, &u.Email, &plan, &role, &created, &updated); err != nil {
		return nil, err
	}
	u.Plan = Plan(plan)
	u.Role = Role(role)
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	u.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &u, nil
}

// Get returns the user or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetPlan returns the user's plan. Unknown users are treated as free.
func (s *Store) GetPlan(ctx context.Context, id int64) (Plan, error) {
	var plan string
	err := s.db.QueryRowContext(ctx, "SELECT plan FROM users WHERE id = ?", id).Scan(&plan)
	if errors.Is(err, sql.ErrNoRows) {
		return PlanFree, nil
	}
	if err != nil {
		return "", fmt.Errorf("get plan: %w", err)
	}
	if Plan(plan) == PlanPremium {
		return PlanPremium, nil
	}
	return PlanFree, nil
}

// Authenticate checks the password and returns the user.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*User, error) {
	var (
		hash string
		id   int64
	)
	err := s.db.QueryRowContext(ctx, "SELECT id, password_hash FROM users WHERE email = ?", normalizeEmail(email)).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.Get(ctx, id)
}

// SetPlan changes the user's plan.
func (s *Store) SetPlan(ctx context.Context, id int64, plan Plan) error {
	if _, err := ParsePlan(string(plan)); err != nil {
		return err
	}
	return s.update(ctx, "plan", string(plan), id)
}

// SetRole changes the user's role.
func (s *Store) SetRole(ctx context.Context, id int64, role Role) error {
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}
	return s.update(ctx, "role", string(role), id)
}

func (s *Store) update(ctx context.Context, column, value string, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET "+column+" = ?, updated_at = ? WHERE id = ?",
		value, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("update user %s: %w", column, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all users ordered by id.
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Count returns the number of registered users.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
