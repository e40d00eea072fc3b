// Package mockproxytest runs a mock proxy in-process for Go tests. Each Server has its
// own session and listener and is closed when the test ends.
//
//	srv := mockproxytest.New(t)
//	srv.InterceptAPIAs("modelArchived", "PATCH /api/v1/models/:id", map[string]interface{}{"id": 1}, model)
//	// point the code under test at srv.URL()
//	interaction := srv.WaitFor("modelArchived")
package mockproxytest

import (
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/form3tech-oss/mock-proxy/internal/app/mockproxy"
	client "github.com/form3tech-oss/mock-proxy/pkg/mockproxy"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

type Server struct {
	t       testing.TB
	session *mockproxy.Session
	srv     *httptest.Server
	client  *client.MockProxy
}

// Option configures the session of a Server. It can fail the test it is given.
type Option func(testing.TB, *mockproxy.Config)

// WithWaitDuration bounds WaitFor. The default is 15s.
func WithWaitDuration(d time.Duration) Option {
	return func(_ testing.TB, c *mockproxy.Config) {
		c.WaitDuration = d
	}
}

func WithWaitDelay(d time.Duration) Option {
	return func(_ testing.TB, c *mockproxy.Config) {
		c.WaitDelay = d
	}
}

// WithPassthrough forwards requests no mock answers to target instead of failing them.
// The test fails if target is not an absolute URL.
func WithPassthrough(target string) Option {
	return func(t testing.TB, c *mockproxy.Config) {
		t.Helper()
		u, err := url.Parse(target)
		require.NoError(t, err, "invalid passthrough target")
		require.NotEmpty(t, u.Host, "passthrough target '%s' has no host", target)
		c.Target = *u
		c.UnmatchedPolicy = mockproxy.UnmatchedPassthrough
	}
}

func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	var config mockproxy.Config
	for _, opt := range opts {
		opt(t, &config)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	session := mockproxy.NewSession(config)
	mockproxy.SetupRoutes(e, "", session)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return &Server{
		t:       t,
		session: session,
		srv:     srv,
		client:  client.New(srv.URL),
	}
}

// URL is the base URL the code under test should call.
func (s *Server) URL() string {
	return s.srv.URL
}

func (s *Server) Client() *client.MockProxy {
	return s.client
}

// InterceptAPI registers body as the response to route, e.g.
// "GET /api/:apiVersion/model_registry", for the given placeholder values. The test
// fails if the route and params do not correspond.
func (s *Server) InterceptAPI(route string, params map[string]interface{}, body interface{}) *Server {
	s.t.Helper()
	require.NoError(s.t, s.client.InterceptAPI(route, params, body))
	return s
}

func (s *Server) InterceptAPIAs(alias, route string, params map[string]interface{}, body interface{}) *Server {
	s.t.Helper()
	require.NoError(s.t, s.client.InterceptAPIAs(alias, route, params, body))
	return s
}

func (s *Server) Register(def client.MockDefinition) *Server {
	s.t.Helper()
	require.NoError(s.t, s.client.RegisterMock(def))
	return s
}

// WaitFor returns the next interaction for alias and fails the test if none arrives in
// time.
func (s *Server) WaitFor(alias string) *client.CapturedInteraction {
	s.t.Helper()
	interaction, err := s.client.WaitFor(alias)
	require.NoError(s.t, err)
	return interaction
}

func (s *Server) WaitForCount(alias string, count int) []*client.CapturedInteraction {
	s.t.Helper()
	interactions, err := s.client.WaitForCount(alias, count)
	require.NoError(s.t, err)
	return interactions
}

func (s *Server) Interactions(alias string) []*client.CapturedInteraction {
	s.t.Helper()
	interactions, err := s.client.Interactions(alias)
	require.NoError(s.t, err)
	return interactions
}

// AssertNotCalled fails the test if alias has captured any interaction.
func (s *Server) AssertNotCalled(alias string) {
	s.t.Helper()
	require.Empty(s.t, s.Interactions(alias), "expected no requests for '@%s'", alias)
}

func (s *Server) Reset() {
	s.t.Helper()
	require.NoError(s.t, s.client.Reset())
}
