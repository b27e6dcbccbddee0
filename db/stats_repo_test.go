package db

import (
	"testing"
	"time"

	"github.com/domainwatch/domainwatch/domain"
	"github.com/google/uuid"
)

func TestStatsRepo(t *testing.T) {
	t.Run("should return 0 for an empty database", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		reports, err := repo.CountReports()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		logs, err := repo.CountLogs()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if reports != 0 || logs != 0 {
			t.Fatalf("\nwanted:\n0 0\ngot:\n%d %d", reports, logs)
		}
	})

	t.Run("should count reports and logs", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		now := time.Now().UTC()
		for _, name := range []string{"a.pt", "b.pt", "c.pt"} {
			if err := repo.PutReport(testReport(t, name, now)); err != nil {
				t.Fatalf("putting report: %v", err)
			}
		}
		if err := repo.InsertLog(&domain.Log{ID: uuid.New(), Timestamp: now, Level: "INFO", Message: "hello"}); err != nil {
			t.Fatalf("inserting log: %v", err)
		}

		reports, err := repo.CountReports()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if reports != 3 {
			t.Errorf("\nwanted:\n3\ngot:\n%d", reports)
		}

		logs, err := repo.CountLogs()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if logs != 1 {
			t.Errorf("\nwanted:\n1\ngot:\n%d", logs)
		}
	})
}
