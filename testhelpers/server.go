package testhelpers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// ListingServer is an httptest server that renders Apache-style folder
// listings for a tree of in-memory files.
type ListingServer struct {
	*httptest.Server
	t *testing.T

	mu       sync.Mutex
	children map[string][]string // folder path -> ordered hrefs
	files    map[string][]byte
	pages    map[string]string // raw listing overrides
	fallback string
	status   map[string]int
	delay    map[string]time.Duration
	stall    map[string]int // file path -> bytes sent before stalling
	hits     map[string]int
	agent    string
}

// NewListingServer starts a server with an empty root folder. It is closed
// when the test ends.
func NewListingServer(t *testing.T) *ListingServer {
	t.Helper()
	s := &ListingServer{
		t:        t,
		children: map[string][]string{"": nil},
		files:    make(map[string][]byte),
		pages:    make(map[string]string),
		status:   make(map[string]int),
		delay:    make(map[string]time.Duration),
		stall:    make(map[string]int),
		hits:     make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// RootURL returns the listing root, always terminated by "/".
func (s *ListingServer) RootURL() string {
	return s.URL + "/"
}

// AddFolder registers folder (e.g. "a/b/") and all of its parents.
func (s *ListingServer) AddFolder(folder string) {
	folder = strings.TrimSuffix(folder, "/")
	if folder == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addFolderLocked(folder + "/")
}

// AddFile registers a file at rel (e.g. "a/b/HEAD") with content.
func (s *ListingServer) AddFile(rel, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, name := path.Split(rel)
	if dir != "" {
		s.addFolderLocked(dir)
	}
	s.appendChild(dir, name)
	s.files[rel] = []byte(content)
}

// SetPage replaces the rendered listing of folder with a raw body.
func (s *ListingServer) SetPage(folder, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[folder] = body
}

// SetFallbackPage serves body for every folder path that is not registered.
func (s *ListingServer) SetFallbackPage(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = body
}

// SetStatus makes requests for rel answer with code and no body.
func (s *ListingServer) SetStatus(rel string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[rel] = code
}

// SetDelay holds requests for rel before answering. The wait ends early when
// the client goes away.
func (s *ListingServer) SetDelay(rel string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay[rel] = d
}

// SetStall makes the file at rel advertise its full length, send only the
// first n bytes and then hang until the client goes away.
func (s *ListingServer) SetStall(rel string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stall[rel] = n
}

// Hits returns how many requests were made for rel.
func (s *ListingServer) Hits(rel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[rel]
}

// TotalHits returns the number of requests served so far.
func (s *ListingServer) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

// LastUserAgent returns the User-Agent of the most recent request.
func (s *ListingServer) LastUserAgent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent
}

// ResetHits clears the request counters.
func (s *ListingServer) ResetHits() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = make(map[string]int)
}

func (s *ListingServer) addFolderLocked(folder string) {
	if _, ok := s.children[folder]; ok {
		return
	}
	s.children[folder] = nil
	parent, name := path.Split(strings.TrimSuffix(folder, "/"))
	s.addFolderLocked(parent)
	s.appendChild(parent, name+"/")
}

func (s *ListingServer) appendChild(folder, href string) {
	for _, existing := range s.children[folder] {
		if existing == href {
			return
		}
	}
	s.children[folder] = append(s.children[folder], href)
}

func (s *ListingServer) serve(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/")

	s.mu.Lock()
	s.hits[rel]++
	s.agent = r.UserAgent()
	code, hasStatus := s.status[rel]
	wait := s.delay[rel]
	stallAt, stalls := s.stall[rel]
	page, hasPage := s.pages[rel]
	hrefs, isFolder := s.children[rel]
	hrefs = append([]string(nil), hrefs...)
	content, isFile := s.files[rel]
	fallback := s.fallback
	s.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-r.Context().Done():
			return
		}
	}

	switch {
	case hasStatus:
		w.WriteHeader(code)
	case hasPage:
		_, _ = fmt.Fprint(w, page)
	case isFolder:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, RenderListing("/"+rel, hrefs))
	case isFile && stalls:
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		_, _ = w.Write(content[:min(stallAt, len(content))])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	case isFile:
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(content)
	case fallback != "" && (rel == "" || strings.HasSuffix(rel, "/")):
		_, _ = fmt.Fprint(w, fallback)
	default:
		http.NotFound(w, r)
	}
}

// RenderListing renders an autoindex page with a parent link followed by one
// anchor per href.
func RenderListing(title string, hrefs []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html>\n<head><title>Index of %s</title></head>\n<body>\n", title)
	fmt.Fprintf(&b, "<h1>Index of %s</h1><hr><pre>\n", title)
	b.WriteString(`<a href="../">../</a>` + "\n")
	for _, href := range hrefs {
		fmt.Fprintf(&b, "<a href=\"%s\">%s</a>                 14-Oct-2026 10:00    -\n", href, href)
	}
	b.WriteString("</pre><hr></body>\n</html>\n")
	return b.String()
}
