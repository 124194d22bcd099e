// Package mockapi serves an in-memory posts API for the demo client and for
// integration tests.
package mockapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/restdecl/internal/auth"
)

// Post is a stored post.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment describes an uploaded file.
type Attachment struct {
	Field    string `json:"field"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Server is a chi router over an in-memory post store.
type Server struct {
	router chi.Router
	logger *zap.Logger
	issuer *auth.Issuer
	now    func() time.Time

	mu          sync.RWMutex
	posts       map[string]Post
	order       []string
	attachments map[string][]Attachment

	// failures are consumed by the next requests in order
	failures []int
	hits     map[string]int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithIssuer requires bearer tokens signed by issuer on /posts routes.
func WithIssuer(issuer *auth.Issuer) Option {
	return func(s *Server) {
		s.issuer = issuer
	}
}

// New creates a server, seeded with a couple of posts.
func New(opts ...Option) *Server {
	s := &Server{
		logger:      zap.NewNop(),
		now:         time.Now,
		posts:       make(map[string]Post),
		attachments: make(map[string][]Attachment),
		hits:        make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.seed(Post{Title: "Hello", Body: "First post", Tags: []string{"intro"}})
	s.seed(Post{Title: "Declarative clients", Body: "Describe the API once", Tags: []string{"go", "rest"}})

	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(recovery(s.logger))
	r.Use(logging(s.logger))
	r.Use(s.count)
	r.Use(s.injectFailures)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/config.json", s.handleConfig)

	r.Group(func(r chi.Router) {
		r.Use(bearer(s.issuer))

		r.With(requireScope("posts:read")).Get("/posts", s.handleList)
		r.With(requireScope("posts:read")).Get("/posts.jsonp", s.handleJSONP)
		r.With(requireScope("posts:read")).Get("/posts/{id}", s.handleShow)
		r.With(requireScope("posts:write")).Post("/posts", s.handleCreate)
		r.With(requireScope("posts:write")).Put("/posts/{id}", s.handleUpdate)
		r.With(requireScope("posts:write")).Delete("/posts/{id}", s.handleDelete)
		r.With(requireScope("posts:write")).Post("/posts/{id}/attachments", s.handleUpload)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// FailNext makes the next len(statuses) requests answer with the given
// statuses instead of being served.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	s.failures = append(s.failures, statuses...)
	s.mu.Unlock()
}

// Hits returns how many requests reached "METHOD /path".
func (s *Server) Hits(route string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hits[route]
}

// Attachments returns the files uploaded to post id.
func (s *Server) Attachments(id string) []Attachment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Attachment(nil), s.attachments[id]...)
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status := 0
		if len(s.failures) > 0 {
			status, s.failures = s.failures[0], s.failures[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			writeError(w, status, "injected", http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleConfig serves the document clients resolve their base URL from.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"services": map[string]any{
			"posts": map[string]string{"url": "http://" + r.Host},
		},
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	tags := r.URL.Query()["tag"]
	writeJSON(w, http.StatusOK, s.list(tags))
}

func (s *Server) handleJSONP(w http.ResponseWriter, r *http.Request) {
	callback := r.URL.Query().Get("callback")
	if callback == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "callback is required")
		return
	}
	data, err := json.Marshal(s.list(nil))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_server_error", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	fmt.Fprintf(w, "%s(%s);", callback, data)
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	post, ok := s.get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "post not found")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

type postInput struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

func (in postInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

func decodeInput(r *http.Request) (postInput, error) {
	var in postInput
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&in); err != nil {
		return in, fmt.Errorf("invalid JSON body: %w", err)
	}
	return in, in.validate()
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInput(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid", err.Error())
		return
	}
	post := s.seed(Post{Title: in.Title, Body: in.Body, Tags: in.Tags})
	w.Header().Set("Location", "/posts/"+post.ID)
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	in, err := decodeInput(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid", err.Error())
		return
	}

	s.mu.Lock()
	post, ok := s.posts[id]
	if ok {
		post.Title, post.Body, post.Tags = in.Title, in.Body, in.Tags
		s.posts[id] = post
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "post not found")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	_, ok := s.posts[id]
	if ok {
		delete(s.posts, id)
		delete(s.attachments, id)
		for i, existing := range s.order {
			if existing == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "post not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "deleted")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.get(id); !ok {
		writeError(w, http.StatusNotFound, "not_found", "post not found")
		return
	}
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var uploaded []Attachment
	fields := make([]string, 0, len(r.MultipartForm.File))
	for field := range r.MultipartForm.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		for _, fh := range r.MultipartForm.File[field] {
			uploaded = append(uploaded, Attachment{Field: field, Filename: fh.Filename, Size: fh.Size})
		}
	}
	if len(uploaded) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "no files uploaded")
		return
	}

	s.mu.Lock()
	s.attachments[id] = append(s.attachments[id], uploaded...)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"post_id":     id,
		"attachments": uploaded,
		"caption":     r.FormValue("caption"),
	})
}

func (s *Server) seed(p Post) Post {
	p.ID = uuid.New().String()
	p.CreatedAt = s.now().UTC()

	s.mu.Lock()
	s.posts[p.ID] = p
	s.order = append(s.order, p.ID)
	s.mu.Unlock()
	return p
}

func (s *Server) get(id string) (Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	return p, ok
}

// list returns posts in creation order, keeping those carrying any of tags.
func (s *Server) list(tags []string) []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Post, 0, len(s.order))
	for _, id := range s.order {
		p := s.posts[id]
		if len(tags) == 0 || hasAnyTag(p, tags) {
			out = append(out, p)
		}
	}
	return out
}

func hasAnyTag(p Post, tags []string) bool {
	for _, want := range tags {
		for _, have := range p.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}
