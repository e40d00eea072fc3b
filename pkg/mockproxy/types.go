package mockproxy

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

// MockDefinition registers a canned response for one method, path template and set of
// placeholder values.
type MockDefinition struct {
	Method   string                 `json:"method"`
	Path     string                 `json:"path"`
	Params   map[string]interface{} `json:"params,omitempty"`
	Alias    string                 `json:"alias,omitempty"`
	Response Response               `json:"response"`
}

type Response struct {
	Status  int               `json:"status,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

type Mock struct {
	Method       string            `json:"method"`
	Template     string            `json:"template"`
	Path         string            `json:"path"`
	Params       map[string]string `json:"params,omitempty"`
	Alias        string            `json:"alias,omitempty"`
	State        string            `json:"state"`
	RequestCount int               `json:"request_count"`
}

type CapturedInteraction struct {
	ID         string              `json:"id"`
	Alias      string              `json:"alias,omitempty"`
	Mock       string              `json:"mock"`
	Method     string              `json:"method"`
	Path       string              `json:"path"`
	Params     map[string]string   `json:"params,omitempty"`
	Query      map[string][]string `json:"query,omitempty"`
	Headers    map[string]string   `json:"headers,omitempty"`
	Body       json.RawMessage     `json:"body,omitempty"`
	ReceivedAt time.Time           `json:"received_at"`
}

// DecodeBody unmarshals the captured request body into v.
func (i *CapturedInteraction) DecodeBody(v interface{}) error {
	return json.Unmarshal(i.Body, v)
}

// BodyField looks up a gjson path, e.g. "state" or "items.0.id", in the request body.
func (i *CapturedInteraction) BodyField(path string) gjson.Result {
	return gjson.GetBytes(i.Body, path)
}

type interactionsResponse struct {
	Interactions []*CapturedInteraction `json:"interactions"`
}

type mocksResponse struct {
	Mocks []*Mock `json:"mocks"`
}

type apiError struct {
	ErrorMessage string `json:"error_message"`
}
