// Package browser answers the network requests of a Chrome tab from a mock session
// through the DevTools Fetch domain, so a page under test never reaches a real API.
package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/form3tech-oss/mock-proxy/internal/app/httpresponse"
	"github.com/form3tech-oss/mock-proxy/internal/app/mockproxy"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// action is a Fetch domain command that releases a paused request.
type action interface {
	Do(ctx context.Context) error
}

type Interceptor struct {
	session  *mockproxy.Session
	patterns []*fetch.RequestPattern
}

type Option func(*Interceptor)

// WithURLPattern limits interception to request URLs matching pattern, where '*'
// matches any run of characters. Without it every XHR and fetch request is paused.
func WithURLPattern(pattern string) Option {
	return func(i *Interceptor) {
		i.patterns = append(i.patterns, patternsFor(pattern)...)
	}
}

func NewInterceptor(session *mockproxy.Session, opts ...Option) *Interceptor {
	i := &Interceptor{session: session}
	for _, opt := range opts {
		opt(i)
	}
	if len(i.patterns) == 0 {
		i.patterns = patternsFor("*")
	}
	return i
}

// Page loads and static assets are never paused, only what the page requests from
// script.
func patternsFor(urlPattern string) []*fetch.RequestPattern {
	return []*fetch.RequestPattern{
		{URLPattern: urlPattern, ResourceType: network.ResourceTypeXHR, RequestStage: fetch.RequestStageRequest},
		{URLPattern: urlPattern, ResourceType: network.ResourceTypeFetch, RequestStage: fetch.RequestStageRequest},
	}
}

func (i *Interceptor) Session() *mockproxy.Session {
	return i.session
}

// Attach enables interception on the tab held by the chromedp context ctx. Call it
// before navigating.
func (i *Interceptor) Attach(ctx context.Context) error {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		if paused, ok := ev.(*fetch.EventRequestPaused); ok {
			// Listeners must not block the event loop.
			go i.handle(ctx, paused)
		}
	})

	if err := chromedp.Run(ctx, fetch.Enable().WithPatterns(i.patterns)); err != nil {
		return errors.Wrap(err, "unable to enable request interception")
	}
	return nil
}

// Detach stops interception on the tab. Requests paused at that point are released.
func (i *Interceptor) Detach(ctx context.Context) error {
	return chromedp.Run(ctx, fetch.Disable())
}

func (i *Interceptor) handle(ctx context.Context, ev *fetch.EventRequestPaused) {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		log.Errorf("no browser target to answer request %s", ev.RequestID)
		return
	}

	if err := i.respond(ev).Do(cdp.WithExecutor(ctx, c.Target)); err != nil && ctx.Err() == nil {
		log.Errorf("unable to answer %s %s: %s", ev.Request.Method, ev.Request.URL, err)
	}
}

// respond resolves a paused request against the session and returns the command that
// answers it.
func (i *Interceptor) respond(ev *fetch.EventRequestPaused) action {
	req, err := interceptedRequest(ev.Request)
	if err != nil {
		return errorReply(ev.RequestID, http.StatusBadRequest, err)
	}
	log.Infof("intercepted %s %s", req.Method, req.URL.Path)

	reply, err := i.session.Resolve(req)
	switch {
	case err == nil:
		return fulfill(ev.RequestID, reply)
	case errors.Is(err, mockproxy.ErrNoMock) && i.session.Config().UnmatchedPolicy == mockproxy.UnmatchedPassthrough:
		log.Infof("passing %s %s through", req.Method, req.URL.Path)
		return fetch.ContinueRequest(ev.RequestID)
	case errors.Is(err, mockproxy.ErrNoMock):
		log.Error(err)
		return errorReply(ev.RequestID, http.StatusNotFound, err)
	case errors.Is(err, mockproxy.ErrConstraintsNotMet):
		return errorReply(ev.RequestID, http.StatusBadRequest, err)
	}
	log.Error(err)
	return errorReply(ev.RequestID, http.StatusInternalServerError, err)
}

func interceptedRequest(r *network.Request) (mockproxy.InterceptedRequest, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return mockproxy.InterceptedRequest{}, errors.Wrapf(err, "unable to parse request url '%s'", r.URL)
	}

	header := http.Header{}
	for name, value := range r.Headers {
		header.Set(name, fmt.Sprint(value))
	}

	if r.HasPostData && len(r.PostDataEntries) == 0 {
		log.Warnf("%s %s has a body Chrome did not attach, capturing it as empty", r.Method, u.Path)
	}

	var body []byte
	for _, entry := range r.PostDataEntries {
		chunk, err := base64.StdEncoding.DecodeString(entry.Bytes)
		if err != nil {
			return mockproxy.InterceptedRequest{}, errors.Wrap(err, "unable to decode request body")
		}
		body = append(body, chunk...)
	}

	return mockproxy.InterceptedRequest{
		Method: r.Method,
		URL:    u,
		Header: header,
		Body:   body,
	}, nil
}

func fulfill(id fetch.RequestID, reply *mockproxy.Reply) *fetch.FulfillRequestParams {
	names := make([]string, 0, len(reply.Header))
	for name := range reply.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := make([]*fetch.HeaderEntry, 0, len(names)+1)
	for _, name := range names {
		for _, value := range reply.Header[name] {
			headers = append(headers, &fetch.HeaderEntry{Name: name, Value: value})
		}
	}
	headers = append(headers, &fetch.HeaderEntry{Name: "Content-Length", Value: strconv.Itoa(len(reply.Body))})

	return fetch.FulfillRequest(id, int64(reply.Status)).
		WithResponseHeaders(headers).
		WithBody(base64.StdEncoding.EncodeToString(reply.Body))
}

func errorReply(id fetch.RequestID, status int, err error) *fetch.FulfillRequestParams {
	body, _ := json.Marshal(&httpresponse.APIError{ErrorMessage: err.Error()})
	return fulfill(id, &mockproxy.Reply{
		Status: status,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   body,
	})
}
