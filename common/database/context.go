// Package database bounds individual Postgres statements with deadlines.
package database

import (
	"context"
	"time"
)

const (
	// ReadTimeout bounds SELECT statements.
	ReadTimeout = 5 * time.Second

	// WriteTimeout bounds INSERT and UPDATE statements, including winner batches.
	WriteTimeout = 10 * time.Second

	// SchemaTimeout bounds partition DDL, which waits on table locks.
	SchemaTimeout = 30 * time.Second
)

// ReadContext returns parent limited to ReadTimeout.
func ReadContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ReadTimeout)
}

// WriteContext returns parent limited to WriteTimeout.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, WriteTimeout)
}

// SchemaContext returns parent limited to SchemaTimeout.
func SchemaContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, SchemaTimeout)
}
