package mockproxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const fmtLen = "_length_"

// Constraint restricts which requests an aliased mock accepts. Path is a jsonpath
// into the request document, e.g. $.body.state or $.query.filter.
type Constraint struct {
	Alias  string        `json:"alias"`
	Path   string        `json:"path"`
	Values []interface{} `json:"values"`
	Format string        `json:"format"`
}

func loadConstraint(data []byte) (Constraint, error) {
	constraint := Constraint{}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&constraint); err != nil {
		return constraint, errors.Wrap(err, "unable to parse constraint from data")
	}
	if constraint.Alias == "" {
		return constraint, errors.New("constraint has no alias")
	}
	if !strings.HasPrefix(constraint.Path, "$.") {
		return constraint, errors.Errorf("constraint path '%s' must start with '$.'", constraint.Path)
	}
	if constraint.Format == "" {
		constraint.Format = "%v"
	}
	return constraint, nil
}

func (c Constraint) Key() string {
	return strings.Join([]string{c.Alias, c.Path}, "_")
}

func (c Constraint) check(actualValue interface{}) error {
	if c.Format == fmtLen {
		if len(c.Values) != 1 {
			return fmt.Errorf(
				"expected single positive integer value for path %q length constraint, but there are %v expected values",
				c.Path, len(c.Values))
		}
		expected, ok := lengthValue(c.Values[0])
		if !ok || expected < 0 {
			return fmt.Errorf("expected value for %q length constraint must be a positive integer", c.Path)
		}

		actualSlice, ok := actualValue.([]interface{})
		if !ok {
			return fmt.Errorf("value at path %q must be an array due to length constraint", c.Path)
		}
		if expected != len(actualSlice) {
			return fmt.Errorf("value of length %v at path %q does not match length constraint %v",
				len(actualSlice), c.Path, expected)
		}
		return nil
	}

	expected := fmt.Sprintf(c.Format, c.Values...)
	actual := fmt.Sprintf("%v", actualValue)
	if expected != actual {
		return fmt.Errorf("value %q at path %q does not match constraint %q", actual, c.Path, expected)
	}
	return nil
}

func lengthValue(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case float64:
		return int(val), float64(int(val)) == val
	case json.Number:
		n, err := val.Int64()
		return int(n), err == nil
	}
	return 0, false
}
