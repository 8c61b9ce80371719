package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/TobiSchelling/BikeScout/internal/database"
	"github.com/TobiSchelling/BikeScout/internal/export"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server is the HTTP dashboard over stored listings.
type Server struct {
	db           *database.DB
	hotThreshold int
	pages        map[string]*template.Template
	mux          *http.ServeMux
}

// New creates a new Server. Listings at or above hotThreshold are shown as
// hot.
func New(db *database.DB, hotThreshold int) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"deref64": func(f *float64) float64 {
			if f == nil {
				return 0
			}
			return *f
		},
		"derefInt": func(n *int) int {
			if n == nil {
				return 0
			}
			return *n
		},
		"euro": func(v any) string {
			switch x := v.(type) {
			case float64:
				return formatEuro(x)
			case *float64:
				if x == nil {
					return "–"
				}
				return formatEuro(*x)
			}
			return ""
		},
		"join": strings.Join,
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "listing.html", "failed.html", "events.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, hotThreshold: hotThreshold, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Routes
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/listing/", s.handleListing)
	s.mux.HandleFunc("/failed", s.handleFailed)
	s.mux.HandleFunc("/events", s.handleEvents)
	s.mux.HandleFunc("/export.xlsx", s.handleExport)
}

// listOptions reads ?hot=1 and ?all=1 from the query.
func (s *Server) listOptions(r *http.Request) database.ListOptions {
	q := r.URL.Query()
	opts := database.ListOptions{ActiveOnly: q.Get("all") == "", Limit: 200}
	if q.Get("hot") != "" {
		opts.MinHotness = s.hotThreshold
	}
	return opts
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	opts := s.listOptions(r)
	listings, err := s.db.GetListings(opts)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	stats, _ := s.db.GetStats(s.hotThreshold)

	s.render(w, "index.html", map[string]any{
		"Listings":     listings,
		"Stats":        stats,
		"HotThreshold": s.hotThreshold,
		"HotOnly":      opts.MinHotness > 0,
		"ShowAll":      !opts.ActiveOnly,
	})
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/listing/"), 10, 64)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	l, err := s.db.GetListing(id)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if l == nil {
		http.NotFound(w, r)
		return
	}

	s.render(w, "listing.html", map[string]any{
		"Listing":      l,
		"HotThreshold": s.hotThreshold,
	})
}

func (s *Server) handleFailed(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	failed, err := s.db.GetFailedListings(status, 200)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "failed.html", map[string]any{
		"Failed": failed,
		"Status": status,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	events, err := s.db.GetRecentEvents(limit)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "events.html", map[string]any{
		"Events": events,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, _, err := export.ListingsXLSX(s.db, s.listOptions(r))
	if err != nil {
		log.Printf("Error exporting listings: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="bikescout-listings.xlsx"`)
	w.Write(data)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

var euroPrinter = message.NewPrinter(language.German)

// formatEuro renders whole euros with German thousands grouping.
func formatEuro(v float64) string {
	return euroPrinter.Sprintf("%d €", int64(math.Round(v)))
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, port, hotThreshold int) error {
	srv, err := New(db, hotThreshold)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
