package domainwatch

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/http"
	"strings"

	"github.com/domainwatch/domainwatch/dataset"
	"github.com/domainwatch/domainwatch/domain"
	"github.com/domainwatch/domainwatch/router"
)

//go:embed templates/*.html
var templateFS embed.FS

func parseTemplates() (*template.Template, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates : %w", err)
	}
	return templates, nil
}

// ListItem is a single row of the domain list.
type ListItem struct {
	Record domain.DomainRecord `json:"record"`
	Path   string              `json:"path"` // Details route of the record
}

// ListProps is what the list view renders: every record in dataset order.
type ListProps struct {
	Items []ListItem `json:"domains"`
}

// DetailsProps is what the details view renders. Record is nil when Key matches no record.
type DetailsProps struct {
	Key    string               `json:"key"`
	Found  bool                 `json:"found"`
	Record *domain.DomainRecord `json:"record"`
	Report *domain.Report       `json:"report,omitempty"`
}

// NewListProps links every record of the dataset to its details route.
func NewListProps(views *router.Table, ds *dataset.Dataset) ListProps {
	records := ds.Records()
	props := ListProps{Items: make([]ListItem, 0, len(records))}
	for _, record := range records {
		path, err := views.Path(router.RouteDetails, router.Params{router.ParamDomainName: record.Domain})
		if err != nil {
			path = ""
		}
		props.Items = append(props.Items, ListItem{Record: record, Path: path})
	}
	return props
}

// NewDetailsProps resolves the domainName route parameter against the dataset.
// A missing parameter or record yields props with Found false.
func NewDetailsProps(params router.Params, ds *dataset.Dataset) DetailsProps {
	key := params[router.ParamDomainName]
	props := DetailsProps{Key: key}
	if record, ok := ds.Resolve(key); ok {
		props.Found = true
		props.Record = &record
	}
	return props
}

// wantsJSON reports whether the client asked for the JSON rendition of a view.
func wantsJSON(req *http.Request) bool {
	if req.URL.Query().Get("format") == "json" {
		return true
	}
	for _, accepted := range strings.Split(req.Header.Get("Accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(accepted))
		if err != nil {
			continue
		}
		if mediaType == "application/json" {
			return true
		}
		if mediaType == "text/html" {
			return false
		}
	}
	return false
}

func (server *Server) render(w http.ResponseWriter, req *http.Request, status int, name string, props any) {
	if wantsJSON(req) {
		writeJSON(w, status, props)
		return
	}

	var buf bytes.Buffer
	if err := server.templates.ExecuteTemplate(&buf, name, props); err != nil {
		server.WriteLog(LevelError, fmt.Sprintf("rendering %s : %v", name, err))
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// serveView renders the view of the matched route.
func (server *Server) serveView(w http.ResponseWriter, req *http.Request, match router.Match) {
	switch match.Route.View {
	case router.ViewList:
		server.render(w, req, http.StatusOK, "list", NewListProps(server.Views, server.Dataset))
	case router.ViewDetails:
		props := NewDetailsProps(match.Params, server.Dataset)
		if !props.Found {
			server.render(w, req, http.StatusNotFound, "details", props)
			return
		}
		if server.Repo != nil {
			report, err := server.Repo.LatestReport(props.Record.Domain)
			switch {
			case err == nil:
				props.Report = report
			case !errors.Is(err, domain.ErrNotFound):
				server.WriteLog(LevelWarn, fmt.Sprintf("loading latest report : %v", err))
			}
		}
		server.render(w, req, http.StatusOK, "details", props)
	default:
		server.serveNotFound(w, req)
	}
}

func (server *Server) serveNotFound(w http.ResponseWriter, req *http.Request) {
	if wantsJSON(req) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no route matches " + req.URL.Path, Kind: string(domain.KindNotFound)})
		return
	}
	server.render(w, req, http.StatusNotFound, "notfound", req.URL.Path)
}
