// Package domain defines the core data structures of domainwatch.
// It contains the dataset record model (DomainRecord), the security check
// report model (Report and its probe results), application log entries,
// and the repository interfaces that storage implementations satisfy.
//
// The package has no dependency on the database, the HTTP layer or the
// probing code, so every other package can share these types without
// importing each other.
package domain
