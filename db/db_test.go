package db

import (
	"os"
	"testing"
	"time"

	"github.com/domainwatch/domainwatch/domain"
	"github.com/google/uuid"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tempFile, err := os.CreateTemp(t.TempDir(), "test_*.db")
	if err != nil {
		t.Fatalf("os.CreateTemp() failed: %v", err)
	}
	tempFile.Close()

	dbConn, err := New(DriverSQLite, tempFile.Name())
	if err != nil {
		t.Fatalf("db.New() failed: %v", err)
	}

	repo := NewRepository(dbConn)

	teardown := func() {
		repo.Close()
		os.Remove(tempFile.Name())
	}

	return repo, teardown
}

func testReport(t *testing.T, domainName string, checkedAt time.Time) *domain.Report {
	t.Helper()
	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}

	return &domain.Report{
		ID:        id,
		Domain:    domainName,
		CheckedAt: checkedAt,
		DNSSEC: domain.DNSSECResult{
			DNSSECValid:     false,
			TLSARecords:     []string{},
			Recommendations: []string{"Enable DNSSEC"},
		},
		SSL: domain.SSLResult{
			CertificateValid:      true,
			CertificateIssuer:     "Test CA",
			CertificateExpiration: "2030-01-01 00:00:00",
			CertificateChain:      []string{domainName, "Test CA"},
			TLSVersions:           []string{"TLS 1.3"},
		},
		Technologies:    []string{"nginx"},
		Vulnerabilities: map[string]domain.TechnologyCVEs{},
		Recommendations: domain.Recommendations{All: []string{"Enable DNSSEC"}},
	}
}

func TestNew(t *testing.T) {
	t.Run("should reject an unknown driver", func(t *testing.T) {
		_, err := New("postgres", "ignored")
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})

	t.Run("should add parseTime to mysql dsn", func(t *testing.T) {
		tests := []struct {
			dsn  string
			want string
		}{
			{"user:pw@tcp(db:3306)/dw", "user:pw@tcp(db:3306)/dw?parseTime=true"},
			{"user:pw@tcp(db:3306)/dw?charset=utf8mb4", "user:pw@tcp(db:3306)/dw?charset=utf8mb4&parseTime=true"},
			{"user:pw@tcp(db:3306)/dw?parseTime=false", "user:pw@tcp(db:3306)/dw?parseTime=false"},
		}
		for _, tt := range tests {
			if got := withParseTime(tt.dsn); got != tt.want {
				t.Errorf("\nwanted:\n%s\ngot:\n%s", tt.want, got)
			}
		}
	})
}
