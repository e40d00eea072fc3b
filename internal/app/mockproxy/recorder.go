package mockproxy

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CapturedInteraction is an observed request together with the mock it matched.
type CapturedInteraction struct {
	ID         string              `json:"id"`
	Alias      string              `json:"alias,omitempty"`
	Mock       string              `json:"mock"`
	Method     string              `json:"method"`
	Path       string              `json:"path"`
	Params     PathParams          `json:"params,omitempty"`
	Query      map[string][]string `json:"query,omitempty"`
	Headers    map[string]string   `json:"headers,omitempty"`
	Body       json.RawMessage     `json:"body,omitempty"`
	ReceivedAt time.Time           `json:"received_at"`
}

func newCapturedInteraction(mock *Mock, req InterceptedRequest) *CapturedInteraction {
	headers := make(map[string]string, len(req.Header))
	for name := range req.Header {
		headers[name] = req.Header.Get(name)
	}

	params, _ := mock.Route.Extract(req.URL.Path)

	return &CapturedInteraction{
		ID:         uuid.NewString(),
		Alias:      mock.Alias,
		Mock:       mock.Key(),
		Method:     req.Method,
		Path:       req.URL.Path,
		Params:     params,
		Query:      req.URL.Query(),
		Headers:    headers,
		Body:       captureBody(req.Body),
		ReceivedAt: time.Now().UTC(),
	}
}

// captureBody keeps JSON bodies as they are and stores anything else as a JSON string.
func captureBody(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return append(json.RawMessage(nil), body...)
	}
	encoded, _ := json.Marshal(string(body))
	return encoded
}

// Recorder accumulates captured interactions. Every alias has a cursor so consecutive
// waits hand out consecutive interactions.
type Recorder struct {
	mu           sync.RWMutex
	interactions []*CapturedInteraction
	byAlias      map[string][]*CapturedInteraction
	cursors      map[string]int
}

func newRecorder() *Recorder {
	return &Recorder{
		byAlias: map[string][]*CapturedInteraction{},
		cursors: map[string]int{},
	}
}

func (r *Recorder) record(interaction *CapturedInteraction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interactions = append(r.interactions, interaction)
	if interaction.Alias != "" {
		r.byAlias[interaction.Alias] = append(r.byAlias[interaction.Alias], interaction)
	}
}

// Interactions returns the interactions captured for alias, or all of them when alias
// is empty.
func (r *Recorder) Interactions(alias string) []*CapturedInteraction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if alias == "" {
		return append([]*CapturedInteraction(nil), r.interactions...)
	}
	return append([]*CapturedInteraction(nil), r.byAlias[alias]...)
}

func (r *Recorder) pending(alias string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAlias[alias]) - r.cursors[alias]
}

// take hands out the next count interactions for alias, if that many are pending.
func (r *Recorder) take(alias string, count int) ([]*CapturedInteraction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cursor := r.cursors[alias]
	captured := r.byAlias[alias]
	if len(captured)-cursor < count {
		return nil, false
	}
	r.cursors[alias] = cursor + count
	return append([]*CapturedInteraction(nil), captured[cursor:cursor+count]...), true
}
