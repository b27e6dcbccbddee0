package core

import (
	"reflect"
	"testing"

	"github.com/domainwatch/domainwatch/domain"
	"github.com/google/uuid"
)

func TestLogOptions(t *testing.T) {
	t.Run("should merge context into the entry", func(t *testing.T) {
		log := &domain.Log{Context: map[string]any{"probe": "ssl"}}

		options := []LogOption{
			LogWithContext(map[string]any{"status": 200}),
			LogWithDomain("example.pt"),
		}
		for _, option := range options {
			if err := option(log); err != nil {
				t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
			}
		}

		want := map[string]any{"probe": "ssl", "status": 200, "domain": "example.pt"}
		if !reflect.DeepEqual(log.Context, want) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, log.Context)
		}
	})

	t.Run("should set the report id", func(t *testing.T) {
		id := uuid.MustParse("01937d13-9632-72aa-83b9-c10ea1abbdd6")
		log := &domain.Log{}

		if err := LogWithReportID(id)(log); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if log.ReportID == nil || *log.ReportID != id {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", id, log.ReportID)
		}
	})
}
