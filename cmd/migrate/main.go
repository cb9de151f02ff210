package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	user_id              UUID PRIMARY KEY,
	email                TEXT NOT NULL UNIQUE,
	username             TEXT NOT NULL,
	password_hash        TEXT NOT NULL,
	country              TEXT NOT NULL,
	language             TEXT NOT NULL,
	categories           TEXT[] NOT NULL DEFAULT '{}',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	is_active            BOOLEAN NOT NULL DEFAULT true,
	notification_channel TEXT NOT NULL DEFAULT 'email'
)`

const insertUser = `
INSERT INTO users (user_id, email, username, password_hash, country, language, categories)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (email) DO NOTHING`

// execer is the part of a pgx connection the commands need
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate <up|add-user> [args]")
	}

	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("Connecting to database: %v", err)
	}
	defer conn.Close(ctx)

	switch os.Args[1] {
	case "up":
		if err := migrateUp(ctx, conn); err != nil {
			log.Fatal(err)
		}
		fmt.Println("users table ready")
	case "add-user":
		if len(os.Args) < 8 {
			log.Fatal("Usage: migrate add-user <email> <username> <password> <country> <language> <category,category,...>")
		}
		user := newUser{
			Email:      os.Args[2],
			Username:   os.Args[3],
			Password:   os.Args[4],
			Country:    os.Args[5],
			Language:   os.Args[6],
			Categories: splitCategories(os.Args[7]),
		}
		id, err := addUser(ctx, conn, user)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Created user %s (%s)\n", user.Email, id)
	default:
		log.Fatalf("Unknown command %q", os.Args[1])
	}
}

type newUser struct {
	Email      string
	Username   string
	Password   string
	Country    string
	Language   string
	Categories []string
}

func migrateUp(ctx context.Context, db execer) error {
	if _, err := db.Exec(ctx, createUsersTable); err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}
	return nil
}

func addUser(ctx context.Context, db execer, user newUser) (uuid.UUID, error) {
	if user.Email == "" || user.Password == "" {
		return uuid.Nil, fmt.Errorf("email and password are required")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hashing password: %w", err)
	}

	id := uuid.New()
	tag, err := db.Exec(ctx, insertUser,
		id,
		strings.ToLower(strings.TrimSpace(user.Email)),
		user.Username,
		string(passwordHash),
		strings.ToLower(user.Country),
		strings.ToLower(user.Language),
		user.Categories,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, fmt.Errorf("user %s already exists", user.Email)
	}
	return id, nil
}

// splitCategories parses a comma-separated list into lowercase categories,
// dropping blanks and repeats
func splitCategories(list string) []string {
	var categories []string
	seen := make(map[string]bool)
	for _, c := range strings.Split(list, ",") {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		categories = append(categories, c)
	}
	return categories
}
