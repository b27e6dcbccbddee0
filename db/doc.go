// Package db provides the database layer for domainwatch.
// It stores the security check report cache and the persisted application
// log, on SQLite by default or MySQL when configured.
//
// This package is responsible for:
// - Establishing database connections and running the embedded goose migrations (`db.go`).
// - Implementing the repository interfaces of the domain package
//   (`ReportRepository`, `LogRepository`, `StatsRepository`).
// - Converting between domain structs and database rows, including JSON columns (`types.go`).
package db
