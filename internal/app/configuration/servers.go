package configuration

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/form3tech-oss/mock-proxy/internal/app/mockproxy"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Servers owns the proxy listeners started through the admin API. Each host:port gets
// one http.Server; further proxies on the same listener are mounted below their path.
type Servers struct {
	mu       sync.Mutex
	defaults mockproxy.Config
	servers  map[string]*http.Server
	paths    map[string]*mockproxy.Session
}

func NewServers(defaults mockproxy.Config) *Servers {
	return &Servers{
		defaults: defaults,
		servers:  map[string]*http.Server{},
		paths:    map[string]*mockproxy.Session{},
	}
}

// withDefaults fills the zero fields of config from the process configuration.
func (s *Servers) withDefaults(config mockproxy.Config) mockproxy.Config {
	if config.WaitDelay == 0 {
		config.WaitDelay = s.defaults.WaitDelay
	}
	if config.WaitDuration == 0 {
		config.WaitDuration = s.defaults.WaitDuration
	}
	if config.UnmatchedPolicy == "" {
		config.UnmatchedPolicy = s.defaults.UnmatchedPolicy
	}
	if config.MocksFile == "" {
		config.MocksFile = s.defaults.MocksFile
	}
	if config.TLSCAFile == "" && config.TLSCertFile == "" && config.TLSKeyFile == "" {
		config.TLSCAFile = s.defaults.TLSCAFile
		config.TLSCertFile = s.defaults.TLSCertFile
		config.TLSKeyFile = s.defaults.TLSKeyFile
	}
	return config
}

func (s *Servers) StartServer(u *url.URL, config *mockproxy.Config, session *mockproxy.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := strings.TrimRight(u.Path, "/")
	key := u.Host + path
	if _, found := s.paths[key]; found {
		return fmt.Errorf("proxy already running at %s", u.String())
	}

	rootServer, loaded := s.servers[u.Host]
	if !loaded {
		server, err := newServer(u, config)
		if err != nil {
			return err
		}
		rootServer = server
		s.servers[u.Host] = rootServer
		go func() {
			var err error
			if config.TLSCertFile != "" && config.TLSKeyFile != "" {
				err = rootServer.ListenAndServeTLS(config.TLSCertFile, config.TLSKeyFile)
			} else {
				err = rootServer.ListenAndServe()
			}
			if err != nil && err != http.ErrServerClosed {
				log.Error(err)
			}
		}()
	}

	mockproxy.SetupRoutes(rootServer.Handler.(*echo.Echo), path, session)
	s.paths[key] = session
	return nil
}

// Session returns the session served at the given proxy address.
func (s *Servers) Session(u *url.URL) (*mockproxy.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.paths[u.Host+strings.TrimRight(u.Path, "/")]
	return session, ok
}

// Addresses lists host+path of every running proxy.
func (s *Servers) Addresses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	addresses := make([]string, 0, len(s.paths))
	for key := range s.paths {
		addresses = append(addresses, key)
	}
	sort.Strings(addresses)
	return addresses
}

func (s *Servers) ShutdownAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for host, server := range s.servers {
		if err := server.Shutdown(ctx); err != nil {
			log.Error(err)
		}
		delete(s.servers, host)
	}
	s.paths = map[string]*mockproxy.Session{}
}

func (s *Servers) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for host, server := range s.servers {
		if err := server.Close(); err != nil {
			log.Error(err)
		}
		delete(s.servers, host)
	}
	s.paths = map[string]*mockproxy.Session{}
}

func newServer(u *url.URL, config *mockproxy.Config) (*http.Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := http.Server{
		Addr:    u.Host,
		Handler: e,
	}

	if config.TLSCAFile != "" {
		if config.TLSCertFile == "" || config.TLSKeyFile == "" {
			return nil, errors.New("cannot run in mTLS mode without TLS cert and key")
		}

		caCertFile, err := os.ReadFile(config.TLSCAFile)
		if err != nil {
			return nil, errors.Wrap(err, "error reading CA certificate")
		}
		certPool := x509.NewCertPool()
		certPool.AppendCertsFromPEM(caCertFile)
		s.TLSConfig = &tls.Config{
			ClientAuth: tls.RequireAndVerifyClientCert,
			ClientCAs:  certPool,
			MinVersion: tls.VersionTLS12,
		}
	}

	return &s, nil
}
