package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const (
	reasonUserNotFound       = "user not found"
	reasonInvalidPassword    = "invalid password"
	reasonCredentialsMissing = "email and password are required"
)

// ProfileLookup resolves a user's delivery preferences from their credentials
type ProfileLookup interface {
	ResolvePreferences(ctx context.Context, email, password string) (UserPreferences, error)
}

// rowQuerier is the part of a pgx pool the profile store needs
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectUserByEmail = `
		SELECT email, password_hash, language, country, categories, is_active
		FROM users
		WHERE email = $1
	`

// PostgresProfileStore reads user profiles from the users table
type PostgresProfileStore struct {
	pool rowQuerier
}

// NewPostgresPool connects to Postgres and verifies the connection
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("database URL is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return pool, nil
}

// NewPostgresProfileStore creates a profile store over pool
func NewPostgresProfileStore(pool rowQuerier) *PostgresProfileStore {
	return &PostgresProfileStore{pool: pool}
}

// ResolvePreferences implements ProfileLookup
func (s *PostgresProfileStore) ResolvePreferences(ctx context.Context, email, password string) (UserPreferences, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return UserPreferences{}, newError(KindAuth, "resolve preferences", reasonCredentialsMissing, nil)
	}

	var (
		prefs        UserPreferences
		passwordHash string
		active       bool
	)
	err := s.pool.QueryRow(ctx, selectUserByEmail, email).Scan(
		&prefs.Email,
		&passwordHash,
		&prefs.Language,
		&prefs.Country,
		&prefs.Categories,
		&active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserPreferences{}, newError(KindAuth, "resolve preferences", reasonUserNotFound, nil)
		}
		return UserPreferences{}, newError(KindUpstreamUnavailable, "resolve preferences", "", err)
	}
	if !active {
		return UserPreferences{}, newError(KindAuth, "resolve preferences", reasonUserNotFound, nil)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return UserPreferences{}, newError(KindAuth, "resolve preferences", reasonInvalidPassword, nil)
	}
	prefs.Categories = normalizeCategories(prefs.Categories)
	return prefs, nil
}
