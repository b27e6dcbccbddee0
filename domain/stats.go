package domain

// StatsRepository defines the interface for retrieving statistics about the stored data.
type StatsRepository interface {
	// CountReports returns the number of cached check reports.
	CountReports() (int, error)
	// CountLogs returns the number of persisted log entries.
	CountLogs() (int, error)
}
