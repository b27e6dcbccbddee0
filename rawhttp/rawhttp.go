// Package rawhttp renders HTTP exchanges observed by the header probe as evidence: raw wire dumps,
// prettified bodies and transparent decoding of compressed responses.
package rawhttp

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/beevik/etree"
	"github.com/gabriel-vasile/mimetype"
	"github.com/yosssi/gohtml"
)

// DefaultBodyLimit is the number of body bytes kept in a dump when no limit is given.
const DefaultBodyLimit = 64 << 10

// Dump is the wire representation of a request or response.
type Dump struct {
	Raw       []byte // Head and (possibly truncated) body as sent on the wire
	Pretty    string // Head and prettified body, empty if the body could not be prettified
	Truncated bool   // The body was longer than the dump limit
}

// Prettify will attempt to prettify the body or return an empty byte slice if it fails.
// JSON, XML and HTML are supported.
func Prettify(bodyBytes []byte) ([]byte, error) {
	trimmedBody := bytes.TrimSpace(bodyBytes)
	if len(trimmedBody) == 0 {
		return []byte{}, nil
	}

	var jsonData any
	if err := json.Unmarshal(trimmedBody, &jsonData); err == nil {
		output, err := json.MarshalIndent(jsonData, "", "  ")
		if err != nil {
			return []byte{}, fmt.Errorf("remarshalling JSON: %w", err)
		}
		return output, nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(trimmedBody); err == nil && doc.Root() != nil {
		doc.Indent(1)
		var output bytes.Buffer
		if _, err := doc.WriteTo(&output); err != nil {
			return []byte{}, fmt.Errorf("writing indented XML : %w", err)
		}
		return output.Bytes(), nil
	}

	contentType := mimetype.Detect(trimmedBody).String()
	looksLikeMarkup := bytes.HasPrefix(trimmedBody, []byte("<")) && !bytes.HasPrefix(trimmedBody, []byte("<?xml"))
	if strings.Contains(contentType, "text/html") || looksLikeMarkup {
		output := gohtml.FormatBytes(trimmedBody)
		if len(output) > 0 && !bytes.Equal(output, trimmedBody) {
			return output, nil
		}
	}

	return []byte{}, nil
}

// DecodeBody replaces a gzip or brotli encoded response body with its decoded form.
// Responses with any other Content-Encoding are left untouched.
func DecodeBody(res *http.Response) error {
	if res == nil || res.Body == nil {
		return nil
	}

	var reader io.Reader
	switch strings.ToLower(strings.TrimSpace(res.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		gzipReader, err := gzip.NewReader(res.Body)
		if err != nil {
			return fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	case "br":
		reader = brotli.NewReader(res.Body)
	default:
		return nil
	}

	decoded, err := io.ReadAll(reader)
	res.Body.Close()
	if err != nil {
		return fmt.Errorf("decoding %s body : %w", res.Header.Get("Content-Encoding"), err)
	}

	res.Body = io.NopCloser(bytes.NewReader(decoded))
	res.ContentLength = int64(len(decoded))
	res.Header.Set("Content-Length", strconv.Itoa(len(decoded)))
	res.Header.Del("Content-Encoding")
	res.Uncompressed = true
	return nil
}

// DumpResponse dumps the response head and up to limit bytes of the body, then resets the body
// so it can still be consumed. A limit <= 0 uses DefaultBodyLimit.
func DumpResponse(res *http.Response, limit int64) (Dump, error) {
	head, err := httputil.DumpResponse(res, false)
	if err != nil {
		return Dump{}, fmt.Errorf("dumping response : %w", err)
	}

	body, err := readAndRestore(&res.Body)
	if err != nil {
		return Dump{}, fmt.Errorf("reading response body: %w", err)
	}
	return buildDump(head, body, limit)
}

// DumpRequest dumps the request head and up to limit bytes of the body, then resets the body.
func DumpRequest(req *http.Request, limit int64) (Dump, error) {
	head, err := httputil.DumpRequest(req, false)
	if err != nil {
		return Dump{}, fmt.Errorf("dumping request : %w", err)
	}

	body, err := readAndRestore(&req.Body)
	if err != nil {
		return Dump{}, fmt.Errorf("reading request body: %w", err)
	}
	return buildDump(head, body, limit)
}

func readAndRestore(body *io.ReadCloser) ([]byte, error) {
	if *body == nil || *body == http.NoBody {
		return []byte{}, nil
	}
	bodyBytes, err := io.ReadAll(*body)
	if err != nil {
		return nil, err
	}
	(*body).Close()
	*body = io.NopCloser(bytes.NewReader(bodyBytes))
	return bodyBytes, nil
}

func buildDump(head, body []byte, limit int64) (Dump, error) {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}

	dump := Dump{}
	if int64(len(body)) > limit {
		body = body[:limit]
		dump.Truncated = true
	}

	dump.Raw = make([]byte, 0, len(head)+len(body))
	dump.Raw = append(dump.Raw, head...)
	dump.Raw = append(dump.Raw, body...)

	if dump.Truncated {
		return dump, nil
	}

	prettified, err := Prettify(body)
	if err != nil || len(prettified) == 0 {
		return dump, nil
	}

	pretty := make([]byte, 0, len(head)+len(prettified))
	pretty = append(pretty, head...)
	pretty = append(pretty, prettified...)
	dump.Pretty = string(pretty)
	return dump, nil
}
