// Package testutil provides a fake tile archive for command and integration
// tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

const (
	preloginCookie = "prelogin"
	sessionCookie  = "session"

	loginPath    = "/login"
	downloadPath = "/download/"
	filesPath    = "/files/"
	tileSuffix   = "/DTED/EE"
)

// ArchiveServer imitates the tile archive. GET /login hands out a pre-login
// cookie, POST /login checks the form and issues a session cookie, tile
// pages under /download/ redirect to data files under /files/, and any
// request without a valid session is redirected to /login.
type ArchiveServer struct {
	*httptest.Server

	Username string
	Password string

	logins       atomic.Int32
	tileRequests atomic.Int32

	mu       sync.Mutex
	sessions map[string]bool
	tiles    map[string][]byte
}

// NewArchiveServer starts an archive accepting the given credentials. It is
// closed when the test ends.
func NewArchiveServer(t *testing.T, username, password string) *ArchiveServer {
	t.Helper()
	s := &ArchiveServer{
		Username: username,
		Password: password,
		sessions: make(map[string]bool),
		tiles:    make(map[string][]byte),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(loginPath, s.handleLogin)
	mux.HandleFunc(downloadPath, s.handleTile)
	mux.HandleFunc(filesPath, s.handleFile)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// LoginURL is the login form address.
func (s *ArchiveServer) LoginURL() string { return s.URL + loginPath }

// DownloadURL is the prefix tile names are appended to.
func (s *ArchiveServer) DownloadURL() string { return s.URL + downloadPath }

// DataFile is the file name a tile is served as.
func DataFile(tileName string) string {
	return strings.ToLower(tileName) + ".dt2"
}

// AddTile makes tileName available with the given contents. Tiles never
// added answer with a page that is not a data file.
func (s *ArchiveServer) AddTile(tileName string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiles[tileName] = data
}

// Expire invalidates every issued session.
func (s *ArchiveServer) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]bool)
}

// Logins is the number of login form posts received.
func (s *ArchiveServer) Logins() int { return int(s.logins.Load()) }

// TileRequests is the number of tile page requests received.
func (s *ArchiveServer) TileRequests() int { return int(s.tileRequests.Load()) }

func (s *ArchiveServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		http.SetCookie(w, &http.Cookie{Name: preloginCookie, Value: "1", Path: "/"})
		w.WriteHeader(http.StatusOK)
	case http.MethodPost:
		n := s.logins.Add(1)
		if _, err := r.Cookie(preloginCookie); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("username") != s.Username || r.PostForm.Get("password") != s.Password {
			w.WriteHeader(http.StatusOK)
			return
		}
		token := "t" + strconv.Itoa(int(n))
		s.mu.Lock()
		s.sessions[token] = true
		s.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: token, Path: "/"})
		w.Header().Set("Location", "/")
		w.WriteHeader(http.StatusFound)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *ArchiveServer) handleTile(w http.ResponseWriter, r *http.Request) {
	s.tileRequests.Add(1)
	if !s.authorized(r) {
		redirect(w, loginPath)
		return
	}
	name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, downloadPath), tileSuffix)
	s.mu.Lock()
	_, ok := s.tiles[name]
	s.mu.Unlock()
	if !ok {
		body := "no data for " + name
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write([]byte(body))
		return
	}
	redirect(w, filesPath+DataFile(name))
}

func (s *ArchiveServer) handleFile(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		redirect(w, loginPath)
		return
	}
	file := strings.TrimPrefix(r.URL.Path, filesPath)
	s.mu.Lock()
	var data []byte
	found := false
	for name, d := range s.tiles {
		if DataFile(name) == file {
			data, found = d, true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	_, _ = w.Write(data)
}

func (s *ArchiveServer) authorized(r *http.Request) bool {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[c.Value]
}

func redirect(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusFound)
}
