package domain

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestNewDomainRecord(t *testing.T) {
	t.Run("should keep every non-key attribute", func(t *testing.T) {
		record, err := NewDomainRecord(map[string]any{
			"domain": "example.com",
			"risk":   "high",
			"score":  float64(7),
		})
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if record.Domain != "example.com" {
			t.Fatalf("\nwanted:\nexample.com\ngot:\n%s", record.Domain)
		}

		want := []Attribute{{Name: "risk", Value: "high"}, {Name: "score", Value: float64(7)}}
		if got := record.Attributes(); !reflect.DeepEqual(want, got) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, got)
		}

		if _, ok := record.Get("domain"); ok {
			t.Fatalf("\nwanted:\nkey field excluded from attributes\ngot:\npresent")
		}
	})

	t.Run("should fail without a domain attribute", func(t *testing.T) {
		_, err := NewDomainRecord(map[string]any{"risk": "low"})
		if err == nil || !strings.Contains(err.Error(), "missing") {
			t.Fatalf("\nwanted:\nmissing attribute error\ngot:\n%v", err)
		}
	})

	t.Run("should fail when domain is empty", func(t *testing.T) {
		_, err := NewDomainRecord(map[string]any{"domain": "", "risk": "low"})
		if err == nil || !strings.Contains(err.Error(), "empty") {
			t.Fatalf("\nwanted:\nempty attribute error\ngot:\n%v", err)
		}
	})

	t.Run("should fail when domain is not a string", func(t *testing.T) {
		_, err := NewDomainRecord(map[string]any{"domain": 42.0})
		if err == nil || !strings.Contains(err.Error(), "not a string") {
			t.Fatalf("\nwanted:\ntype error\ngot:\n%v", err)
		}
	})
}

func TestDomainRecord_JSON(t *testing.T) {
	t.Run("should write the domain back with the other attributes", func(t *testing.T) {
		var record DomainRecord
		input := `{"domain":"example.com","risk":"high","tags":["a","b"]}`
		if err := json.Unmarshal([]byte(input), &record); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		output, err := json.Marshal(record)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		var want, got map[string]any
		json.Unmarshal([]byte(input), &want)
		json.Unmarshal(output, &got)
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, got)
		}
	})

	t.Run("should reject an object without a domain", func(t *testing.T) {
		var record DomainRecord
		if err := json.Unmarshal([]byte(`{"risk":"high"}`), &record); err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})

	t.Run("should keep large integers exact", func(t *testing.T) {
		var record DomainRecord
		input := `{"domain":"example.com","asn":9007199254740993}`
		if err := json.Unmarshal([]byte(input), &record); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		output, err := json.Marshal(record)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if !strings.Contains(string(output), `"asn":9007199254740993`) {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", input, output)
		}
	})
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"op error", &OpError{Op: "check", Kind: KindOutOfScope, Err: ErrOutOfScope}, KindOutOfScope},
		{"wrapped sentinel", errors.Join(errors.New("context"), ErrInvalidDomain), KindInvalidDomain},
		{"rate limited", ErrRateLimited, KindRateLimited},
		{"not found", ErrNotFound, KindNotFound},
		{"anything else", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("\nwanted:\n%s\ngot:\n%s", tt.want, got)
			}
		})
	}
}

func TestOpError(t *testing.T) {
	err := &OpError{Op: "normalize", Kind: KindInvalidDomain, Err: ErrInvalidDomain}

	if !errors.Is(err, ErrInvalidDomain) {
		t.Fatalf("\nwanted:\nunwrap to ErrInvalidDomain\ngot:\n%v", err)
	}
	if !IsKind(err, KindInvalidDomain) {
		t.Fatalf("\nwanted:\nkind %s\ngot:\n%v", KindInvalidDomain, err)
	}
	if want := "normalize: invalid_domain: invalid domain name"; err.Error() != want {
		t.Fatalf("\nwanted:\n%s\ngot:\n%s", want, err.Error())
	}
}
