package db

import "context"

// SchemaInterface represents the database schema.
type SchemaInterface interface {
	// Upgrade upgrades the schema to the latest version in the schema repository.
	Upgrade(ctx context.Context) error

	// Version returns the current version of the schema in the database.
	//
	// 0 means no schema is applied.
	Version(ctx context.Context) (int, error)

	// Context returns a context which is cancelled
	// when the schema in the database gets older than the schema repository.
	Context(ctx context.Context) (context.Context, context.CancelFunc)
}
