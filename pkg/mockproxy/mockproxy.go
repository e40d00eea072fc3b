package mockproxy

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrWaitTimeout = errors.New("timeout waiting for interactions")

// MockProxy is a client for the control API of one proxy listener.
type MockProxy struct {
	client http.Client
	url    string
}

type MockSetup struct {
	alias     string
	mockProxy *MockProxy
}

func New(url string) *MockProxy {
	return &MockProxy{
		client: http.Client{
			Timeout: 30 * time.Second,
		},
		url: url,
	}
}

func (p *MockProxy) URL() string {
	return p.url
}

func (p *MockProxy) endpoint(path string) string {
	return strings.TrimSuffix(p.url, "/") + path
}

func (p *MockProxy) do(method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, p.endpoint(path), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return p.client.Do(req)
}

func responseError(res *http.Response) error {
	data, _ := io.ReadAll(res.Body)
	var apiErr apiError
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.ErrorMessage != "" {
		return errors.New(apiErr.ErrorMessage)
	}
	return errors.Errorf("unexpected status %d", res.StatusCode)
}

func (p *MockProxy) IsReady() error {
	res, err := p.do(http.MethodGet, "/ready", nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("proxy not ready, status %d", res.StatusCode)
	}
	return nil
}

func (p *MockProxy) RegisterMock(def MockDefinition) error {
	res, err := p.do(http.MethodPost, "/mocks", def)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		return errors.Wrapf(responseError(res), "failed to register '%s %s'", def.Method, def.Path)
	}
	return nil
}

// InterceptAPI registers body as the response to route, given as "METHOD /path/:param",
// for the given placeholder values.
func (p *MockProxy) InterceptAPI(route string, params map[string]interface{}, body interface{}) error {
	return p.InterceptAPIAs("", route, params, body)
}

// InterceptAPIAs is InterceptAPI with an alias to wait for the interaction later.
func (p *MockProxy) InterceptAPIAs(alias, route string, params map[string]interface{}, body interface{}) error {
	fields := strings.Fields(route)
	if len(fields) != 2 {
		return errors.Errorf("invalid route '%s', expected 'METHOD /path'", route)
	}

	raw, err := rawBody(body)
	if err != nil {
		return err
	}

	return p.RegisterMock(MockDefinition{
		Method:   fields[0],
		Path:     fields[1],
		Params:   params,
		Alias:    alias,
		Response: Response{Body: raw},
	})
}

func rawBody(body interface{}) (json.RawMessage, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	case string:
		// JSON text is sent as is, anything else as a JSON string.
		if json.Valid([]byte(b)) {
			return json.RawMessage(b), nil
		}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal response body")
	}
	return raw, nil
}

func (p *MockProxy) Mocks() ([]*Mock, error) {
	res, err := p.do(http.MethodGet, "/mocks", nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, responseError(res)
	}

	var mocks mocksResponse
	if err := json.NewDecoder(res.Body).Decode(&mocks); err != nil {
		return nil, errors.Wrap(err, "failed to decode mocks")
	}
	return mocks.Mocks, nil
}

// Reset drops every mock and captured interaction of the session.
func (p *MockProxy) Reset() error {
	res, err := p.do(http.MethodDelete, "/mocks", nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		return responseError(res)
	}
	return nil
}

func (p *MockProxy) Interactions(alias string) ([]*CapturedInteraction, error) {
	path := "/interactions"
	if alias != "" {
		path += "?" + url.Values{"alias": []string{alias}}.Encode()
	}

	res, err := p.do(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, responseError(res)
	}

	var interactions interactionsResponse
	if err := json.NewDecoder(res.Body).Decode(&interactions); err != nil {
		return nil, errors.Wrap(err, "failed to decode interactions")
	}
	return interactions.Interactions, nil
}

func (p *MockProxy) WaitForAll() error {
	res, err := p.do(http.MethodGet, "/interactions/wait", nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusRequestTimeout {
		return errors.Wrap(ErrWaitTimeout, responseError(res).Error())
	}
	if res.StatusCode != http.StatusOK {
		return responseError(res)
	}
	return nil
}

// WaitFor returns the next interaction captured for alias, blocking until it arrives or
// the proxy's wait window elapses.
func (p *MockProxy) WaitFor(alias string) (*CapturedInteraction, error) {
	interactions, err := p.WaitForCount(alias, 1)
	if err != nil {
		return nil, err
	}
	return interactions[0], nil
}

func (p *MockProxy) WaitForCount(alias string, count int) ([]*CapturedInteraction, error) {
	q := url.Values{}
	q.Add("alias", alias)
	q.Add("count", strconv.Itoa(count))

	res, err := p.do(http.MethodGet, "/interactions/wait?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusRequestTimeout {
		return nil, errors.Wrap(ErrWaitTimeout, responseError(res).Error())
	}
	if res.StatusCode != http.StatusOK {
		return nil, responseError(res)
	}

	var interactions interactionsResponse
	if err := json.NewDecoder(res.Body).Decode(&interactions); err != nil {
		return nil, errors.Wrap(err, "failed to decode interactions")
	}
	if len(interactions.Interactions) < count {
		return nil, errors.Errorf("expected %d interactions for '@%s', got %d", count, alias, len(interactions.Interactions))
	}
	return interactions.Interactions, nil
}

func (p *MockProxy) ForMock(alias string) *MockSetup {
	return &MockSetup{
		alias:     alias,
		mockProxy: p,
	}
}

func (p *MockProxy) addConstraint(alias, path, format string, values []interface{}) error {
	res, err := p.do(http.MethodPost, "/mocks/constraints", map[string]interface{}{
		"alias":  alias,
		"path":   path,
		"format": format,
		"values": values,
	})
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		err := responseError(res)
		log.Warnf("failed to add constraint. %s", err)
		return err
	}
	return nil
}

func (p *MockProxy) addModifier(alias, path string, value interface{}, attempt *int) error {
	body := map[string]interface{}{
		"alias": alias,
		"path":  path,
		"value": value,
	}
	if attempt != nil {
		body["attempt"] = attempt
	}

	res, err := p.do(http.MethodPost, "/mocks/modifiers", body)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		err := responseError(res)
		log.Warnf("failed to add modifier. %s", err)
		return err
	}
	return nil
}

// AddConstraint requires the request value at path, e.g. $.body.state, to equal value.
func (s MockSetup) AddConstraint(path, value string) error {
	return s.mockProxy.addConstraint(s.alias, path, "%s", []interface{}{value})
}

func (s MockSetup) AddConstraintf(path, format string, values ...interface{}) error {
	return s.mockProxy.addConstraint(s.alias, path, format, values)
}

// AddModifier overrides $.status or $.body.<field> of the mocked response, on every
// attempt or only on the given one.
func (s MockSetup) AddModifier(path string, value interface{}, attempt *int) error {
	return s.mockProxy.addModifier(s.alias, path, value, attempt)
}
