package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Global error declarations.
var (
	ErrSecurityNotFound = errors.New("security not found in datasource")
	ErrNoReturns        = errors.New("no returns found in datasource")
)

//go:embed schema.sql
var schema string

type securitiesRepository interface {
	GetSecurity(ctx context.Context, arg GetSecurityParams) (SecurityRow, error)
	ListSecurities(ctx context.Context) ([]SecurityRow, error)
}
type returnsRepository interface {
	GetDailyReturns(ctx context.Context, arg GetDailyReturnsParams) ([]GetDailyReturnsRow, error)
}
type calendarRepository interface {
	GetMarketOpenDates(ctx context.Context, arg GetMarketOpenDatesParams) ([]time.Time, error)
}

// Database struct that holds the database connection and queries.
type Database struct {
	securities securitiesRepository
	returns    returnsRepository
	calendar   calendarRepository
	conn       *pgxpool.Pool
}

// NewDatabase creates a new Database instance and verifies connectivity.
func NewDatabase(ctx context.Context, dbURL string) (*Database, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// Register shopspring decimal
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	conn, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	// Ensure the connection is established.
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	queries := NewQueries(conn)
	return &Database{
		securities: queries,
		returns:    queries,
		calendar:   queries,
		conn:       conn}, nil
}

// Migrate creates the tables the queries read from when they do not exist.
func (db *Database) Migrate(ctx context.Context) error {
	if _, err := db.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (db *Database) Close() {
	if db.conn != nil {
		db.conn.Close()
	}
}
