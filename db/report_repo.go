package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/domainwatch/domainwatch/domain"
	"github.com/google/uuid"
)

var _ domain.ReportRepository = (*Repository)(nil)

// dbReport represents a cached check report as stored in the database.
type dbReport struct {
	Domain    string         `db:"domain"`     // Checked domain, one row per domain
	ID        uuid.UUID      `db:"id"`         // Report identifier
	CheckedAt time.Time      `db:"checked_at"` // When the checks ran (UTC)
	Report    reportDocument `db:"report"`     // Full report as JSON
}

func fromDomainReport(report *domain.Report) *dbReport {
	return &dbReport{
		Domain:    report.Domain,
		ID:        report.ID,
		CheckedAt: report.CheckedAt.UTC(),
		Report:    reportDocument(*report),
	}
}

func toDomainReport(row *dbReport) *domain.Report {
	report := domain.Report(row.Report)
	report.ID = row.ID
	report.Domain = row.Domain
	report.CheckedAt = row.CheckedAt.UTC()
	return &report
}

// PutReport stores the report, replacing the previous report of the same domain.
func (repo *Repository) PutReport(report *domain.Report) error {
	if report.Domain == "" {
		return errors.New("report has no domain")
	}

	tx, err := repo.dbConn.Beginx()
	if err != nil {
		return fmt.Errorf("starting transaction : %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM reports WHERE domain = ?`, report.Domain); err != nil {
		return fmt.Errorf("removing previous report for %s : %w", report.Domain, err)
	}

	query := `INSERT INTO reports (domain, id, checked_at, report)
	          VALUES (:domain, :id, :checked_at, :report)`
	if _, err := tx.NamedExec(query, fromDomainReport(report)); err != nil {
		return fmt.Errorf("inserting report for %s : %w", report.Domain, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing report for %s : %w", report.Domain, err)
	}
	return nil
}

// GetReport returns the report of the domain if it was checked at or after notBefore.
func (repo *Repository) GetReport(domainName string, notBefore time.Time) (*domain.Report, error) {
	report, err := repo.LatestReport(domainName)
	if err != nil {
		return nil, err
	}
	if report.CheckedAt.Before(notBefore) {
		return nil, fmt.Errorf("report for %s is stale : %w", domainName, domain.ErrNotFound)
	}
	return report, nil
}

// LatestReport returns the stored report of the domain regardless of its age.
func (repo *Repository) LatestReport(domainName string) (*domain.Report, error) {
	var row dbReport
	query := `SELECT domain, id, checked_at, report FROM reports WHERE domain = ?`

	err := repo.dbConn.Get(&row, query, domainName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("report for %s : %w", domainName, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting report for %s : %w", domainName, err)
	}
	return toDomainReport(&row), nil
}

// DeleteExpired removes the reports checked before the given time.
// checked_at is always written in UTC, so the comparison holds for both drivers.
func (repo *Repository) DeleteExpired(before time.Time) (int64, error) {
	result, err := repo.dbConn.Exec(`DELETE FROM reports WHERE checked_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting reports checked before %s : %w", before.UTC().Format(time.RFC3339), err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted reports : %w", err)
	}
	return removed, nil
}
