package mockproxy

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/form3tech-oss/mock-proxy/internal/app/mockproxy"
	"github.com/pkg/errors"
)

type ProxyConfiguration struct {
	client http.Client
	url    string
}

type Config mockproxy.Config

const (
	UnmatchedFail        = mockproxy.UnmatchedFail
	UnmatchedPassthrough = mockproxy.UnmatchedPassthrough
)

// Configuration returns a client for the admin API at url.
func Configuration(url string) *ProxyConfiguration {
	return &ProxyConfiguration{
		client: http.Client{
			Timeout: 30 * time.Second,
		},
		url: url,
	}
}

// SetupProxy starts a fail-fast proxy listening on serverAddress.
func (conf *ProxyConfiguration) SetupProxy(serverAddress string) (*MockProxy, error) {
	serverURL, err := url.Parse(serverAddress)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse server address")
	}

	return conf.SetupProxyWithConfig(&Config{
		ServerAddress: *serverURL,
	})
}

// SetupPassthroughProxy starts a proxy that forwards unmatched requests to targetAddress.
func (conf *ProxyConfiguration) SetupPassthroughProxy(serverAddress, targetAddress string) (*MockProxy, error) {
	serverURL, err := url.Parse(serverAddress)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse server address")
	}
	targetURL, err := url.Parse(targetAddress)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse target address")
	}

	return conf.SetupProxyWithConfig(&Config{
		ServerAddress:   *serverURL,
		Target:          *targetURL,
		UnmatchedPolicy: UnmatchedPassthrough,
	})
}

func (conf *ProxyConfiguration) SetupProxyWithConfig(config *Config) (*MockProxy, error) {
	content, err := json.Marshal(config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal config")
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimSuffix(conf.url, "/")+"/proxies", bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := conf.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	responseBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, errors.New(string(responseBody))
	}

	return New(config.ServerAddress.String()), nil
}

// Reset closes every proxy started through the admin API.
func (conf *ProxyConfiguration) Reset() error {
	req, err := http.NewRequest(http.MethodDelete, strings.TrimSuffix(conf.url, "/")+"/proxies", nil)
	if err != nil {
		return err
	}

	res, err := conf.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return errors.New("error resetting proxies")
	}
	return nil
}
