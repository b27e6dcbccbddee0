package db

import (
	"fmt"

	"github.com/domainwatch/domainwatch/domain"
)

var _ domain.StatsRepository = (*Repository)(nil)

// CountReports returns the number of cached check reports.
func (repo *Repository) CountReports() (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM reports`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting report count: %w", err)
	}

	return count, nil
}

// CountLogs returns the number of persisted log entries.
func (repo *Repository) CountLogs() (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM logs`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting log count: %w", err)
	}

	return count, nil
}
