// Package store provides storage backends for PhotoGate.
//
// It persists the three durable resources of the pipeline: the perceptual
// hash index, the publish queue, and the scheduler state. SQLite is the
// default backend; PostgreSQL is available behind the same repo interfaces.
package store

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the database connection string. For SQLite this is a file path;
	// for Postgres a connection URL.
	DSN string
}

// Option configures store creation.
type Option func(*Opts)

// WithDSN sets the database DSN.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}
