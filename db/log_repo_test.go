package db

import (
	"reflect"
	"testing"
	"time"

	"github.com/domainwatch/domainwatch/domain"
	"github.com/google/uuid"
)

func TestLogRepo_GetLogs(t *testing.T) {
	t.Run("should return 0 logs if there are none", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		want := 0
		got, err := repo.GetLogs()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != want {
			t.Fatalf("\nwanted:\n%d\ngot:\n%d", want, len(got))
		}
	})

	t.Run("should return the logs oldest first with their report id", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		fixedTime := time.Date(2025, 10, 20, 12, 0, 0, 0, time.UTC)
		reportID := uuid.MustParse("01937d13-9632-72aa-83b9-c10ea1abbdd6")

		logs := []*domain.Log{
			{
				ID:        uuid.MustParse("00000000-0000-0000-0000-000000000002"),
				Timestamp: fixedTime.Add(time.Second),
				Level:     "ERROR",
				Message:   "probe failed",
				Context:   map[string]any{"probe": "ssl"},
				ReportID:  &reportID,
			},
			{
				ID:        uuid.MustParse("00000000-0000-0000-0000-000000000001"),
				Timestamp: fixedTime,
				Level:     "INFO",
				Message:   "server started",
				Context:   nil,
			},
		}

		for _, logEntry := range logs {
			if err := repo.InsertLog(logEntry); err != nil {
				t.Fatalf("inserting log: %v", err)
			}
		}

		got, err := repo.GetLogs()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(got) != 2 {
			t.Fatalf("\nwanted:\n2\ngot:\n%d", len(got))
		}

		if got[0].Message != "server started" {
			t.Errorf("\nwanted:\nserver started\ngot:\n%s", got[0].Message)
		}
		if got[0].Context == nil || len(got[0].Context) != 0 {
			t.Errorf("\nwanted:\nempty context\ngot:\n%v", got[0].Context)
		}
		if got[0].ReportID != nil {
			t.Errorf("\nwanted:\nnil\ngot:\n%v", got[0].ReportID)
		}

		if got[1].ReportID == nil || *got[1].ReportID != reportID {
			t.Errorf("\nwanted:\n%v\ngot:\n%v", reportID, got[1].ReportID)
		}
		if !reflect.DeepEqual(got[1].Context, map[string]any{"probe": "ssl"}) {
			t.Errorf("\nwanted:\n%v\ngot:\n%v", map[string]any{"probe": "ssl"}, got[1].Context)
		}
		if !got[1].Timestamp.Equal(fixedTime.Add(time.Second)) {
			t.Errorf("\nwanted:\n%v\ngot:\n%v", fixedTime.Add(time.Second), got[1].Timestamp)
		}
	})
}
