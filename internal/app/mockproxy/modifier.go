package mockproxy

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/sjson"
)

const (
	statusPath     = "$.status"
	bodyPathPrefix = "$.body."
)

// Modifier rewrites the status or a body field of an aliased mock's response,
// either on every attempt or only on the given one.
type Modifier struct {
	Alias   string      `json:"alias"`
	Path    string      `json:"path"`
	Value   interface{} `json:"value"`
	Attempt *int        `json:"attempt"`

	countStatusCode int
	countBody       int
}

func loadModifier(data []byte) (*Modifier, error) {
	modifier := &Modifier{}
	if err := json.Unmarshal(data, modifier); err != nil {
		return nil, errors.Wrap(err, "unable to parse modifier from data")
	}
	if modifier.Alias == "" {
		return nil, errors.New("modifier has no alias")
	}
	if modifier.Path != statusPath && !strings.HasPrefix(modifier.Path, bodyPathPrefix) {
		return nil, fmt.Errorf("invalid path: %s", modifier.Path)
	}
	return modifier, nil
}

func (m *Modifier) Key() string {
	return strings.Join([]string{m.Alias, m.Path}, "_")
}

func (m *Modifier) modifyBody(b []byte) ([]byte, error) {
	if !strings.HasPrefix(m.Path, bodyPathPrefix) {
		return b, nil
	}
	m.countBody++
	if m.Attempt != nil && *m.Attempt != m.countBody {
		return b, nil
	}
	if len(b) == 0 {
		b = []byte("{}")
	}
	return sjson.SetBytes(b, strings.TrimPrefix(m.Path, bodyPathPrefix), m.Value)
}

func (m *Modifier) modifyStatusCode() (bool, int) {
	if m.Path != statusPath {
		return false, 0
	}
	m.countStatusCode++
	if m.Attempt != nil && *m.Attempt != m.countStatusCode {
		return false, 0
	}

	switch v := m.Value.(type) {
	case int:
		return true, v
	case float64:
		return true, int(v)
	case string:
		code, err := strconv.Atoi(v)
		if err == nil {
			return true, code
		}
	}
	return false, 0
}

type modifierSet struct {
	modifiers map[string]*Modifier
}

func (m *modifierSet) add(modifier *Modifier) {
	if m.modifiers == nil {
		m.modifiers = map[string]*Modifier{}
	}
	m.modifiers[modifier.Key()] = modifier
}

// apply runs every modifier against the response. Callers hold the mock lock.
func (m *modifierSet) apply(status int, body []byte) (int, []byte, error) {
	for _, modifier := range m.modifiers {
		if ok, code := modifier.modifyStatusCode(); ok {
			status = code
		}

		var err error
		body, err = modifier.modifyBody(body)
		if err != nil {
			return 0, nil, errors.Wrapf(err, "unable to apply modifier '%s'", modifier.Path)
		}
	}
	return status, body, nil
}
