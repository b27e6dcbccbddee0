// Package core provides small helpers shared by the domainwatch packages.
// This file contains option functions for customizing persisted log entries.
package core

import (
	"maps"

	"github.com/domainwatch/domainwatch/domain"
	"github.com/google/uuid"
)

// LogOption customizes a log entry before it is persisted.
type LogOption func(log *domain.Log) error

// LogWithContext is an option to add key-value context to a log entry.
// Keys already present on the entry are overwritten.
func LogWithContext(context map[string]any) LogOption {
	return func(log *domain.Log) error {
		if log.Context == nil {
			log.Context = make(map[string]any, len(context))
		}
		maps.Copy(log.Context, context)
		return nil
	}
}

// LogWithReportID is an option to associate a log entry with a check report.
func LogWithReportID(id uuid.UUID) LogOption {
	return func(log *domain.Log) error {
		log.ReportID = &id
		return nil
	}
}

// LogWithDomain is a shorthand for LogWithContext with the checked domain.
func LogWithDomain(name string) LogOption {
	return LogWithContext(map[string]any{"domain": name})
}
