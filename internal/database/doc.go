// Package database provides the PostgreSQL connection pool used by the
// message recorder.
//
// The pool is only created when recording is enabled; the client itself
// never touches the database.
package database
