package mockproxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const placeholderPrefix = ":"

var (
	supportedMethods = map[string]bool{
		http.MethodGet:     true,
		http.MethodHead:    true,
		http.MethodPost:    true,
		http.MethodPut:     true,
		http.MethodPatch:   true,
		http.MethodDelete:  true,
		http.MethodOptions: true,
	}

	placeholderName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

type segment struct {
	literal     string
	placeholder string
}

func (s segment) isPlaceholder() bool {
	return s.placeholder != ""
}

// RoutePattern is an HTTP method plus a path template such as
// /api/:apiVersion/model_registry/:modelRegistryName.
type RoutePattern struct {
	Method   string
	Template string
	segments []segment
}

// ParseRoute parses the "METHOD /path/:param" form.
func ParseRoute(route string) (RoutePattern, error) {
	fields := strings.Fields(route)
	if len(fields) != 2 {
		return RoutePattern{}, errors.Errorf("invalid route '%s', expected 'METHOD /path'", route)
	}
	return NewRoutePattern(fields[0], fields[1])
}

func NewRoutePattern(method, template string) (RoutePattern, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if !supportedMethods[method] {
		return RoutePattern{}, errors.Errorf("unsupported method '%s'", method)
	}

	if !strings.HasPrefix(template, "/") {
		return RoutePattern{}, errors.Errorf("path template '%s' must start with '/'", template)
	}

	seen := map[string]bool{}
	var segments []segment
	for _, part := range splitPath(template) {
		if !strings.HasPrefix(part, placeholderPrefix) {
			segments = append(segments, segment{literal: part})
			continue
		}

		name := strings.TrimPrefix(part, placeholderPrefix)
		if !placeholderName.MatchString(name) {
			return RoutePattern{}, errors.Errorf("invalid placeholder '%s' in path template '%s'", part, template)
		}
		if seen[name] {
			return RoutePattern{}, errors.Errorf("duplicate placeholder '%s' in path template '%s'", part, template)
		}
		seen[name] = true
		segments = append(segments, segment{placeholder: name})
	}

	return RoutePattern{
		Method:   method,
		Template: template,
		segments: segments,
	}, nil
}

func (p RoutePattern) String() string {
	return p.Method + " " + p.Template
}

// Placeholders returns the placeholder names in template order.
func (p RoutePattern) Placeholders() []string {
	var names []string
	for _, s := range p.segments {
		if s.isPlaceholder() {
			names = append(names, s.placeholder)
		}
	}
	return names
}

// Resolve substitutes params into the template. Every placeholder needs exactly one
// value and every value needs a placeholder.
func (p RoutePattern) Resolve(params PathParams) (string, error) {
	placeholders := p.Placeholders()
	if err := params.checkAgainst(placeholders); err != nil {
		return "", errors.Wrapf(err, "cannot resolve '%s'", p.Template)
	}

	parts := make([]string, 0, len(p.segments))
	for _, s := range p.segments {
		if !s.isPlaceholder() {
			parts = append(parts, s.literal)
			continue
		}
		value := params[s.placeholder]
		if value == "" || strings.Contains(value, "/") {
			return "", errors.Errorf("invalid value '%s' for placeholder ':%s'", value, s.placeholder)
		}
		parts = append(parts, value)
	}

	return "/" + strings.Join(parts, "/"), nil
}

// Extract matches a concrete path against the template segment by segment and returns
// the placeholder values.
func (p RoutePattern) Extract(path string) (PathParams, bool) {
	parts := splitPath(path)
	if len(parts) != len(p.segments) {
		return nil, false
	}

	params := PathParams{}
	for i, s := range p.segments {
		if s.isPlaceholder() {
			if parts[i] == "" {
				return nil, false
			}
			params[s.placeholder] = parts[i]
			continue
		}
		if s.literal != parts[i] {
			return nil, false
		}
	}
	return params, true
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// PathParams holds the concrete value of each placeholder. Numbers are normalised to
// their shortest decimal form, so 2 and "2" are the same value.
type PathParams map[string]string

// NewPathParams converts loosely typed values (strings, ints, floats, json.Number)
// into PathParams.
func NewPathParams(values map[string]interface{}) (PathParams, error) {
	params := make(PathParams, len(values))
	for name, v := range values {
		s, err := paramString(v)
		if err != nil {
			return nil, errors.Wrapf(err, "param '%s'", name)
		}
		params[name] = s
	}
	return params, nil
}

func paramString(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case int:
		return strconv.Itoa(val), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case fmt.Stringer:
		return val.String(), nil
	}
	return "", errors.Errorf("unsupported value type %T", v)
}

// Equal reports whether both hold the same placeholders with the same values.
func (p PathParams) Equal(other PathParams) bool {
	if len(p) != len(other) {
		return false
	}
	for k, v := range p {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (p PathParams) checkAgainst(placeholders []string) error {
	var missing, unknown []string
	expected := map[string]bool{}
	for _, name := range placeholders {
		expected[name] = true
		if _, ok := p[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range p {
		if !expected[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)

	if len(missing) > 0 {
		return errors.Errorf("no value for placeholders %v", missing)
	}
	if len(unknown) > 0 {
		return errors.Errorf("params %v have no placeholder", unknown)
	}
	return nil
}
