// Package dummydb is an in-memory storage backend used by tests and local
// hacking. It honors the same not-found and uniqueness semantics as the
// Postgres backend.
package dummydb

import (
	"context"
	"sync"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/assignment"
	"github.com/trezcool/alama/core/mark"
	"github.com/trezcool/alama/core/user"
)

type (
	DB struct {
		user       *userTable
		session    *sessionTable
		assignment *assignmentTable
		submission *submissionTable
		mark       *markTable
	}

	userTable struct {
		sync.RWMutex
		table   map[int]*user.User
		pkCount int
	}

	sessionTable struct {
		sync.RWMutex
		table map[string]*user.Session
	}

	assignmentTable struct {
		sync.RWMutex
		table   map[int]*assignment.Assignment
		pkCount int
	}

	submissionTable struct {
		sync.RWMutex
		table   map[int]*assignment.Submission
		pkCount int
	}

	markTable struct {
		sync.RWMutex
		table   map[int]*mark.Mark
		pkCount int
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:       &userTable{table: make(map[int]*user.User)},
		session:    &sessionTable{table: make(map[string]*user.Session)},
		assignment: &assignmentTable{table: make(map[int]*assignment.Assignment)},
		submission: &submissionTable{table: make(map[int]*assignment.Submission)},
		mark:       &markTable{table: make(map[int]*mark.Mark)},
	}
	return db, nil
}

type transactor struct{}

var _ core.Transactor = (*transactor)(nil) // interface compliance check

// NewTransactor returns a pass-through Transactor; the in-memory tables have
// no transaction support so fn runs directly.
func NewTransactor() *transactor {
	return &transactor{}
}

func (transactor) InTx(_ context.Context, fn func(exec core.DBExecutor) error) error {
	return fn(nil)
}
