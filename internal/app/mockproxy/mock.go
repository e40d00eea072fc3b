package mockproxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"sync"

	"github.com/PaesslerAG/jsonpath"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// State tracks how far a registered mock got during a test. It only moves forward.
type State int

const (
	StateRegistered State = iota
	StateMatched
	StateAsserted
)

func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateMatched:
		return "matched"
	case StateAsserted:
		return "asserted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for _, state := range []State{StateRegistered, StateMatched, StateAsserted} {
		if state.String() == name {
			*s = state
			return nil
		}
	}
	return errors.Errorf("unknown mock state '%s'", name)
}

// Definition is the registration payload of a mock.
type Definition struct {
	Method   string                 `json:"method"`
	Path     string                 `json:"path"`
	Params   map[string]interface{} `json:"params,omitempty"`
	Alias    string                 `json:"alias,omitempty"`
	Response ResponseDefinition     `json:"response"`
}

type ResponseDefinition struct {
	Status  int               `json:"status,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// Reply is what an intercepted request is answered with.
type Reply struct {
	Status int
	Header http.Header
	Body   []byte
}

type Mock struct {
	mu          sync.RWMutex
	Route       RoutePattern
	Params      PathParams
	Path        string
	Alias       string
	response    ResponseDefinition
	constraints map[string]Constraint
	modifiers   modifierSet
	state       State
	matched     int
}

func newMock(def Definition) (*Mock, error) {
	route, err := NewRoutePattern(def.Method, def.Path)
	if err != nil {
		return nil, err
	}

	params, err := NewPathParams(def.Params)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid params for '%s'", route)
	}

	path, err := route.Resolve(params)
	if err != nil {
		return nil, err
	}

	if len(def.Response.Body) > 0 && !json.Valid(def.Response.Body) {
		return nil, errors.Errorf("response body for '%s' is not valid JSON", route)
	}

	return &Mock{
		Route:       route,
		Params:      params,
		Path:        path,
		Alias:       def.Alias,
		response:    def.Response,
		constraints: map[string]Constraint{},
	}, nil
}

// Key identifies the concrete request a mock answers.
func (m *Mock) Key() string {
	return m.Route.Method + " " + m.Path
}

// Match reports whether the method is the same and the path resolves to exactly the
// registered placeholder values.
func (m *Mock) Match(method, path string) bool {
	if method != m.Route.Method {
		return false
	}
	params, ok := m.Route.Extract(path)
	return ok && params.Equal(m.Params)
}

func (m *Mock) AddConstraint(constraint Constraint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.constraints[constraint.Key()] = constraint
}

func (m *Mock) AddModifier(modifier *Modifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modifiers.add(modifier)
}

func (m *Mock) EvaluateConstraints(request requestDocument) (bool, []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := true
	violations := make([]string, 0)
	for _, constraint := range m.constraints {
		val, err := jsonpath.Get(request.encodeValues(constraint.Path), map[string]interface{}(request))
		if err != nil {
			violations = append(violations, fmt.Sprintf("no value at path '%s'", constraint.Path))
			result = false
			continue
		}
		if constraint.Format != fmtLen && reflect.TypeOf(val) == reflect.TypeOf([]interface{}{}) {
			log.Infof("skipping matching on array type for path '%s'", constraint.Path)
			continue
		}
		if err := constraint.check(val); err != nil {
			violations = append(violations, err.Error())
			result = false
		}
	}
	return result, violations
}

// respond builds the reply for one matched request and moves the mock to matched.
func (m *Mock) respond() (*Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := m.response.Status
	if status == 0 {
		status = http.StatusOK
	}
	body := append([]byte(nil), m.response.Body...)

	status, body, err := m.modifiers.apply(status, body)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	for name, value := range m.response.Headers {
		header.Set(name, value)
	}
	if header.Get("Content-Type") == "" && len(body) > 0 {
		header.Set("Content-Type", mediaTypeJSON)
	}

	m.matched++
	if m.state < StateMatched {
		m.state = StateMatched
	}
	return &Reply{Status: status, Header: header, Body: body}, nil
}

func (m *Mock) markAsserted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateAsserted
}

func (m *Mock) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Mock) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.matched
}

func (m *Mock) HasRequests(count int) bool {
	return m.RequestCount() >= count
}

// MockSummary is the listing view of a registered mock.
type MockSummary struct {
	Method       string     `json:"method"`
	Template     string     `json:"template"`
	Path         string     `json:"path"`
	Params       PathParams `json:"params,omitempty"`
	Alias        string     `json:"alias,omitempty"`
	State        State      `json:"state"`
	RequestCount int        `json:"request_count"`
}

func (m *Mock) Summary() MockSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MockSummary{
		Method:       m.Route.Method,
		Template:     m.Route.Template,
		Path:         m.Path,
		Params:       m.Params,
		Alias:        m.Alias,
		State:        m.state,
		RequestCount: m.matched,
	}
}
