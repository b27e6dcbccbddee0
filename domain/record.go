package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// KeyField is the attribute every dataset record must carry. It is the lookup key for the details route.
const KeyField = "domain"

// DomainRecord is a single entry of the dataset.
// Domain is the lookup key, every other attribute of the source document is kept untouched in fields.
type DomainRecord struct {
	Domain string
	fields map[string]any
}

// Attribute is a single non-key attribute of a record, used when rendering.
type Attribute struct {
	Name  string
	Value any
}

// NewDomainRecord builds a record from a decoded document object.
// It returns an error if the object has no non-empty string "domain" attribute.
func NewDomainRecord(object map[string]any) (DomainRecord, error) {
	raw, ok := object[KeyField]
	if !ok {
		return DomainRecord{}, fmt.Errorf("missing %q attribute", KeyField)
	}
	name, ok := raw.(string)
	if !ok {
		return DomainRecord{}, fmt.Errorf("%q attribute is %T, not a string", KeyField, raw)
	}
	if name == "" {
		return DomainRecord{}, fmt.Errorf("%q attribute is empty", KeyField)
	}

	fields := make(map[string]any, len(object))
	for k, v := range object {
		if k == KeyField {
			continue
		}
		fields[k] = v
	}
	return DomainRecord{Domain: name, fields: fields}, nil
}

// Get returns the value of a non-key attribute.
func (r DomainRecord) Get(name string) (any, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// Attributes returns the non-key attributes sorted by name.
func (r DomainRecord) Attributes() []Attribute {
	names := make([]string, 0, len(r.fields))
	for name := range r.fields {
		names = append(names, name)
	}
	sort.Strings(names)

	attributes := make([]Attribute, len(names))
	for i, name := range names {
		attributes[i] = Attribute{Name: name, Value: r.fields[name]}
	}
	return attributes
}

// Object returns the record as a flat document object, domain included.
func (r DomainRecord) Object() map[string]any {
	object := make(map[string]any, len(r.fields)+1)
	for k, v := range r.fields {
		object[k] = v
	}
	object[KeyField] = r.Domain
	return object
}

// MarshalJSON writes the record back as a flat object.
func (r DomainRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Object())
}

// UnmarshalJSON implements the json.Unmarshaler interface through NewDomainRecord.
func (r *DomainRecord) UnmarshalJSON(data []byte) error {
	var object map[string]any
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&object); err != nil {
		return fmt.Errorf("decoding record : %w", err)
	}
	record, err := NewDomainRecord(object)
	if err != nil {
		return err
	}
	*r = record
	return nil
}
