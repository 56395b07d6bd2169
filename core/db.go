package core

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type (
	// DBExecutor is satisfied by *sqlx.DB and *sqlx.Tx alike; repositories
	// accept it so the same query code runs inside and outside transactions.
	DBExecutor interface {
		sqlx.ExtContext
	}

	// Transactor runs fn inside a transaction: fn's writes are committed when
	// it returns nil and rolled back otherwise. Read-then-write sequences
	// (get-or-create, edit invalidation fan-out) must go through it.
	Transactor interface {
		InTx(ctx context.Context, fn func(exec DBExecutor) error) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
