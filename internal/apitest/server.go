// Package apitest runs an in-process stand-in for the equipment backend.
// It speaks the same routes, status codes and error envelopes, so client
// packages can be tested end to end over real HTTP.
package apitest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"chemviz/internal/types"
	"chemviz/internal/utils"
)

const (
	maxUploadBytes = 10 * 1024 * 1024
	keepPerUser    = 5
	timestampFmt   = "2006-01-02T15:04:05.999999-07:00"
)

// Dataset is one stored upload.
type Dataset struct {
	ID        int
	Owner     string
	Filename  string
	Timestamp time.Time
	Summary   types.Summary
	Rows      []types.EquipmentRow
}

// Request records what reached the server.
type Request struct {
	Method        string
	Path          string
	Authorization string
}

type user struct {
	id   int
	hash []byte
}

type failure struct {
	status int
	body   string
}

type Server struct {
	// URL is the API base, e.g. http://127.0.0.1:port/api.
	URL string

	srv    *httptest.Server
	secret []byte

	mu           sync.Mutex
	users        map[string]*user
	fixedTokens  map[string]string // username -> token
	tokenOwners  map[string]string // token -> username
	revoked      map[string]bool
	datasets     []*Dataset // newest first
	nextUserID   int
	nextID       int
	failures     map[string][]failure
	requests     []Request
	historyLimit int
	now          func() time.Time
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		secret:       []byte("apitest-secret"),
		users:        map[string]*user{},
		fixedTokens:  map[string]string{},
		tokenOwners:  map[string]string{},
		revoked:      map[string]bool{},
		failures:     map[string][]failure{},
		historyLimit: keepPerUser,
		nextUserID:   1,
		nextID:       1,
		now:          time.Now,
	}
	s.srv = httptest.NewServer(s.routes())
	s.URL = s.srv.URL + "/api"
	t.Cleanup(s.srv.Close)
	return s
}

func (s *Server) Close() {
	s.srv.Close()
}

// AddUser registers a login and returns its user id.
func (s *Server) AddUser(username, password string) int {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("apitest: hash password: %v", err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextUserID
	s.nextUserID++
	s.users[username] = &user{id: id, hash: hash}
	return id
}

// UseToken makes logins for username return token instead of a minted JWT.
func (s *Server) UseToken(username, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixedTokens[username] = token
	s.tokenOwners[token] = username
}

// Token mints a valid token for username without a login round trip.
func (s *Server) Token(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenLocked(username)
}

// Revoke makes every later request carrying token fail with 401.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = true
}

// AddDataset stores d for owner as the newest upload and returns it with
// ID and Timestamp filled in.
func (s *Server) AddDataset(owner string, d Dataset) Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.nextID
	s.nextID++
	d.Owner = owner
	if d.Timestamp.IsZero() {
		d.Timestamp = s.now()
	}
	stored := d
	s.datasets = append([]*Dataset{&stored}, s.datasets...)
	return stored
}

// SetHistoryLimit changes how many records /history/ returns.
func (s *Server) SetHistoryLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyLimit = n
}

// FailNext makes the next request to method and path (relative to the API
// base, e.g. "/upload/") answer status with body.
func (s *Server) FailNext(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], failure{status: status, body: body})
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestCount counts recorded requests to path.
func (s *Server) RequestCount(path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Path == path {
			n++
		}
	}
	return n
}

func (s *Server) Datasets(owner string) []Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Dataset
	for _, d := range s.datasets {
		if d.Owner == owner {
			out = append(out, *d)
		}
	}
	return out
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(s.record, s.injectFailures)

	api := e.Group("/api")
	api.POST("/auth/login/", s.login)

	api.POST("/upload/", s.upload, s.requireToken)
	api.GET("/history/", s.history, s.requireToken)
	api.GET("/summary/:id/", s.summary, s.requireToken)
	api.GET("/report/pdf/:id/", s.report, s.requireToken)
	return e
}

func (s *Server) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:        req.Method,
			Path:          strings.TrimPrefix(req.URL.Path, "/api"),
			Authorization: req.Header.Get("Authorization"),
		})
		s.mu.Unlock()
		return next(c)
	}
}

func (s *Server) injectFailures(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		key := req.Method + " " + strings.TrimPrefix(req.URL.Path, "/api")
		s.mu.Lock()
		queue := s.failures[key]
		var f *failure
		if len(queue) > 0 {
			f = &queue[0]
			s.failures[key] = queue[1:]
		}
		s.mu.Unlock()
		if f == nil {
			return next(c)
		}
		return c.Blob(f.status, echo.MIMEApplicationJSON, []byte(f.body))
	}
}

// requireToken accepts only the "Token <key>" scheme.
func (s *Server) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		if header == "" {
			return detail(c, http.StatusUnauthorized, "Authentication credentials were not provided.")
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Token" || parts[1] == "" {
			return detail(c, http.StatusUnauthorized, "Invalid token header.")
		}
		username, ok := s.resolve(parts[1])
		if !ok {
			return detail(c, http.StatusUnauthorized, "Invalid token.")
		}
		c.Set("username", username)
		return next(c)
	}
}

func (s *Server) resolve(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revoked[token] {
		return "", false
	}
	if owner, ok := s.tokenOwners[token]; ok {
		return owner, true
	}
	claims := jwt.MapClaims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil || !tkn.Valid {
		return "", false
	}
	username, _ := claims["username"].(string)
	if _, ok := s.users[username]; !ok {
		return "", false
	}
	return username, true
}

func (s *Server) tokenLocked(username string) string {
	if fixed, ok := s.fixedTokens[username]; ok {
		return fixed
	}
	claims := jwt.MapClaims{
		"username": username,
		"jti":      utils.NewID(),
		"exp":      s.now().Add(24 * time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(fmt.Sprintf("apitest: sign token: %v", err))
	}
	return signed
}

func errorBody(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

func detail(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"detail": msg})
}
