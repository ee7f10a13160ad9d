// Package postgres provides PostgreSQL implementations of the store
// interfaces over database/sql with the pgx driver. Status changes are
// conditional UPDATE ... RETURNING statements so that a compare-and-set is a
// single round trip; schema migrations are embedded and applied with goose.
package postgres
