package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/domainwatch/domainwatch/domain"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a dataset document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// maxRemoteSize caps the body read from a remote dataset source.
const maxRemoteSize = 32 << 20

// FormatFromPath picks the format from the file extension, JSON unless the extension is .yaml or .yml.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// IsRemote reports whether source is an http(s) URL rather than a file path.
func IsRemote(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Load reads the dataset from a file path or an http(s) URL.
// Remote sources are fetched with client, http.DefaultClient is used when client is nil.
func Load(ctx context.Context, source string, client *http.Client) (*Dataset, error) {
	if source == "" {
		return nil, fmt.Errorf("dataset source is empty")
	}

	var records []domain.DomainRecord
	var err error
	if IsRemote(source) {
		records, err = loadRemote(ctx, source, client)
	} else {
		records, err = LoadFile(source)
	}
	if err != nil {
		return nil, err
	}
	return New(source, records), nil
}

// LoadFile decodes the dataset file at path.
func LoadFile(path string) ([]domain.DomainRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %s : %w", path, err)
	}
	defer file.Close()

	records, err := Decode(file, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("decoding dataset %s : %w", path, err)
	}
	return records, nil
}

func loadRemote(ctx context.Context, source string, client *http.Client) ([]domain.DomainRecord, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("creating dataset request : %w", err)
	}
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9")

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching dataset %s : %w", source, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching dataset %s : unexpected status %s", source, res.Status)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxRemoteSize))
	if err != nil {
		return nil, fmt.Errorf("reading dataset body : %w", err)
	}

	format := FormatFromPath(req.URL.Path)
	if mediaType, _, err := mime.ParseMediaType(res.Header.Get("Content-Type")); err == nil && strings.Contains(mediaType, "yaml") {
		format = FormatYAML
	}

	records, err := Decode(bytes.NewReader(body), format)
	if err != nil {
		return nil, fmt.Errorf("decoding dataset %s : %w", source, err)
	}
	return records, nil
}

// Decode reads an array of record objects in the given format.
// The document must hold exactly one array, an empty array is a valid empty dataset.
// JSON numbers are kept as json.Number so integers survive a rewrite unchanged.
func Decode(r io.Reader, format Format) ([]domain.DomainRecord, error) {
	var objects []map[string]any
	switch format {
	case FormatYAML:
		decoder := yaml.NewDecoder(r)
		if err := decoder.Decode(&objects); err != nil {
			if err == io.EOF {
				return nil, errors.New("decoding yaml : empty document")
			}
			return nil, fmt.Errorf("decoding yaml : %w", err)
		}
		var extra any
		if err := decoder.Decode(&extra); err != io.EOF {
			return nil, errors.New("decoding yaml : unexpected content after the record array")
		}
	default:
		decoder := json.NewDecoder(r)
		decoder.UseNumber()
		if err := decoder.Decode(&objects); err != nil {
			return nil, fmt.Errorf("decoding json : %w", err)
		}
		if _, err := decoder.Token(); err != io.EOF {
			return nil, errors.New("decoding json : unexpected content after the record array")
		}
	}
	if objects == nil {
		return nil, errors.New("decoding dataset : document is not an array of records")
	}

	records := make([]domain.DomainRecord, 0, len(objects))
	for i, object := range objects {
		record, err := domain.NewDomainRecord(object)
		if err != nil {
			return nil, fmt.Errorf("record %d : %w", i, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// Encode writes records as an indented array in the given format.
func Encode(w io.Writer, records []domain.DomainRecord, format Format) error {
	objects := make([]map[string]any, len(records))
	for i, record := range records {
		objects[i] = record.Object()
	}

	switch format {
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(objects); err != nil {
			return fmt.Errorf("encoding yaml : %w", err)
		}
		return encoder.Close()
	default:
		encoder := json.NewEncoder(w)
		encoder.SetEscapeHTML(false)
		encoder.SetIndent("", "    ")
		if err := encoder.Encode(objects); err != nil {
			return fmt.Errorf("encoding json : %w", err)
		}
		return nil
	}
}

// SortFile reads the dataset at in, orders it by domain and writes it to out.
// The output format follows the extension of out.
func SortFile(in, out string) error {
	records, err := LoadFile(in)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := Encode(&buf, Sort(records), FormatFromPath(out)); err != nil {
		return err
	}
	if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing sorted dataset %s : %w", out, err)
	}
	return nil
}
