package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// UnitOfWork runs a function as one atomic unit when the backing store can.
// Callers that need several documents to move together (the reaction counter
// pair, the cascade delete) receive a UnitOfWork instead of asking the store
// whether it supports transactions.
type UnitOfWork interface {
	// RunAtomic executes fn. Repository calls made with the ctx passed to fn
	// join the same unit.
	RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

// sqlUnitOfWork is the transactional UnitOfWork over a Postgres connection.
// The open transaction rides in the context so every repository picks it up
// transparently.
type sqlUnitOfWork struct {
	db *sqlx.DB
}

// NewUnitOfWork returns the transactional UnitOfWork for db
func NewUnitOfWork(db *sqlx.DB) UnitOfWork {
	return &sqlUnitOfWork{db: db}
}

// RunAtomic implements UnitOfWork. Nested calls join the enclosing
// transaction rather than opening a second one.
func (u *sqlUnitOfWork) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := u.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p) // re-throw panic after rollback
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback() // ignore rollback error
		return err
	}

	return tx.Commit()
}

// SequentialUnitOfWork executes fn without any atomicity guarantee. It exists
// for stores that cannot provide multi-document transactions; partial failure
// is surfaced as-is with no rollback, which callers opting into it accept.
type SequentialUnitOfWork struct{}

// RunAtomic implements UnitOfWork
func (SequentialUnitOfWork) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// BaseRepository carries the database handle shared by all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new BaseRepository
func NewBaseRepository(db *sqlx.DB) *BaseRepository {
	return &BaseRepository{
		db: db,
	}
}

// ext returns the executor for ctx: the enclosing transaction when one is
// running, the plain connection otherwise.
func (r *BaseRepository) ext(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return r.db
}

// GetDB returns the database connection
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}
