package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/form3tech-oss/mock-proxy/pkg/fixtures"
	"github.com/form3tech-oss/mock-proxy/pkg/mockproxy"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

const (
	modelsRoute      = "GET /api/:apiVersion/model_registry/:registry/registered_models"
	modelRoute       = "PATCH /api/:apiVersion/model_registry/:registry/registered_models/:id"
	versionsRoute    = "GET /api/:apiVersion/model_registry/:registry/registered_models/:id/versions"
	modelArchived    = "modelArchived"
	modelsListed     = "modelsListed"
	registryName     = "modelregistry-sample"
	archivedModelID  = "2"
	registryBasePath = "/api/v1/model_registry/" + registryName
)

var largeString = strings.Repeat("long_string123BBmmF8BYezrBhCROOCRJfeH5k69hMKXH77TSvwF5GHUZFnbh1dsZ3d90HeR0jUIOovJJVS508uI17djeLFFSb7", 440)

type ProxyStage struct {
	t                   *testing.T
	assert              *assert.Assertions
	proxy               *mockproxy.MockProxy
	stateConstraint     string
	modifiedStatusCode  int
	modifiedAttempt     *int
	modifiedBody        map[string]interface{}
	requestsToSend      int32
	requestsSent        int32
	responses           []*http.Response
	responseBodies      [][]byte
	awaited             []*mockproxy.CapturedInteraction
	waitErr             error
	registrationErr     error
	registeredMockCount int
}

func NewProxyStage(t *testing.T) (*ProxyStage, *ProxyStage, *ProxyStage) {
	proxy, err := setupAndWaitForProxy()
	if err != nil {
		t.Logf("Error setting up proxy: %v", err)
		t.FailNow()
	}

	s := &ProxyStage{
		t:            t,
		assert:       assert.New(t),
		proxy:        proxy,
		modifiedBody: make(map[string]interface{}),
	}

	s.t.Cleanup(func() {
		_ = mockproxy.Configuration(adminURL.String()).Reset()
	})

	return s, s, s
}

func setupAndWaitForProxy() (*mockproxy.MockProxy, error) {
	proxy, err := mockproxy.
		Configuration(adminURL.String()).
		SetupProxy(proxyURL.String())
	if err != nil {
		return nil, errors.Wrap(err, "proxy setup failed")
	}

	retryOpts := []retry.Option{
		retry.Attempts(10),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(100 * time.Millisecond),
	}

	err = retry.Do(proxy.IsReady, retryOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "proxy readiness wait failed")
	}

	return proxy, nil
}

func registryParams(extra map[string]interface{}) map[string]interface{} {
	params := map[string]interface{}{"apiVersion": "v1", "registry": registryName}
	for k, v := range extra {
		params[k] = v
	}
	return params
}

func (s *ProxyStage) and() *ProxyStage {
	return s
}

func (s *ProxyStage) intercept(alias, route string, params map[string]interface{}, body interface{}) *ProxyStage {
	err := s.proxy.InterceptAPIAs(alias, route, params, fixtures.MustBFFResponse(body))
	s.assert.NoError(err, "registering '%s' failed", route)
	s.registeredMockCount++
	return s
}

func (s *ProxyStage) an_empty_list_of_registered_models() *ProxyStage {
	return s.intercept(modelsListed, modelsRoute, registryParams(nil), fixtures.NewRegisteredModelList())
}

func (s *ProxyStage) a_list_of_n_registered_models(n int) *ProxyStage {
	return s.intercept(modelsListed, modelsRoute, registryParams(nil),
		fixtures.NewRegisteredModelList(fixtures.NewRegisteredModels(n)...))
}

func (s *ProxyStage) a_model_that_can_be_archived() *ProxyStage {
	return s.intercept(modelArchived, modelRoute, registryParams(map[string]interface{}{"id": 2}),
		fixtures.NewRegisteredModel(fixtures.RegisteredModelOptions{
			ID:    archivedModelID,
			Name:  "fraud detection",
			State: fixtures.ModelStateArchived,
		}))
}

func (s *ProxyStage) a_model_with_a_large_description() *ProxyStage {
	return s.intercept(modelArchived, modelRoute, registryParams(map[string]interface{}{"id": 2}),
		fixtures.NewRegisteredModel(fixtures.RegisteredModelOptions{
			ID:          archivedModelID,
			Name:        "large",
			Description: largeString,
		}))
}

func (s *ProxyStage) the_versions_of_the_model() *ProxyStage {
	return s.intercept("", versionsRoute, registryParams(map[string]interface{}{"id": 2}),
		fixtures.NewModelVersionList(fixtures.NewModelVersion(fixtures.ModelVersionOptions{RegisteredModelID: archivedModelID})))
}

func (s *ProxyStage) a_mock_is_registered_without_its_params() {
	s.registrationErr = s.proxy.InterceptAPI(modelRoute, registryParams(nil), fixtures.NewRegisteredModel(fixtures.RegisteredModelOptions{}))
}

func (s *ProxyStage) a_state_constraint_is_added(state string) *ProxyStage {
	s.stateConstraint = state
	return s
}

func (s *ProxyStage) a_modified_response_status_of_(statusCode int) *ProxyStage {
	s.modifiedStatusCode = statusCode
	return s
}

func (s *ProxyStage) a_modified_response_body_of_(path string, value interface{}) *ProxyStage {
	s.modifiedBody[path] = value
	return s
}

func (s *ProxyStage) a_modified_response_attempt_of(i int) *ProxyStage {
	s.modifiedAttempt = &i
	return s
}

func (s *ProxyStage) the_setup_is_applied() {
	m := s.proxy.ForMock(modelArchived)

	if s.stateConstraint != "" {
		s.assert.NoError(m.AddConstraint("$.body.state", s.stateConstraint))
	}
	if s.modifiedStatusCode != 0 {
		s.assert.NoError(m.AddModifier("$.status", fmt.Sprintf("%d", s.modifiedStatusCode), s.modifiedAttempt))
	}
	for path, value := range s.modifiedBody {
		s.assert.NoError(m.AddModifier(path, value, s.modifiedAttempt))
	}
}

func (s *ProxyStage) the_archived_models_are_listed() {
	s.send(http.MethodGet, registryBasePath+"/registered_models?sortOrder=DESC&orderBy=LAST_UPDATE_TIME", "")
}

func (s *ProxyStage) the_model_is_archived() {
	s.n_archive_requests_are_sent(1, `{"state":"ARCHIVED"}`)
}

func (s *ProxyStage) n_archive_requests_are_sent(n int, body string) {
	s.the_setup_is_applied()
	for i := 0; i < n; i++ {
		s.send(http.MethodPatch, registryBasePath+"/registered_models/"+archivedModelID, body)
	}
}

func (s *ProxyStage) an_unmocked_model_is_requested() {
	s.send(http.MethodGet, registryBasePath+"/registered_models/99/versions", "")
}

func (s *ProxyStage) send(method, path, body string) {
	u := strings.TrimSuffix(proxyURL.String(), "/") + path
	req, err := http.NewRequest(method, u, strings.NewReader(body))
	s.assert.NoError(err, "request creation failed")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := http.DefaultClient.Do(req)
	if !s.assert.NoError(err, "sending request failed") {
		return
	}
	defer res.Body.Close()

	s.responses = append(s.responses, res)
	bodyBytes, err := io.ReadAll(res.Body)
	s.assert.NoError(err, "unable to read response body")
	s.responseBodies = append(s.responseBodies, bodyBytes)
}

func (s *ProxyStage) multiple_archive_requests_are_sent(requestsToSend int32) {
	s.requestsToSend = requestsToSend
	atomic.StoreInt32(&s.requestsSent, 0)

	go func() {
		for i := int32(0); i < requestsToSend; i++ {
			u := strings.TrimSuffix(proxyURL.String(), "/") + registryBasePath + "/registered_models/" + archivedModelID
			req, err := http.NewRequest(http.MethodPatch, u, strings.NewReader(`{"state":"ARCHIVED"}`))
			s.assert.NoError(err)

			req.Header.Set("Content-Type", "application/json")
			atomic.AddInt32(&s.requestsSent, 1)
			res, err := http.DefaultClient.Do(req)
			if s.assert.NoError(err) {
				res.Body.Close()
			}
		}
	}()

	s.awaited, s.waitErr = s.proxy.WaitForCount(modelArchived, int(requestsToSend))
}

func (s *ProxyStage) the_test_waits_for_the_archive_request() {
	var interaction *mockproxy.CapturedInteraction
	interaction, s.waitErr = s.proxy.WaitFor(modelArchived)
	if interaction != nil {
		s.awaited = append(s.awaited, interaction)
	}
}

func (s *ProxyStage) the_test_waits_for_all_mocks() {
	s.waitErr = s.proxy.WaitForAll()
}

func (s *ProxyStage) the_response_is_(statusCode int) *ProxyStage {
	return s.the_nth_response_is_(1, statusCode)
}

func (s *ProxyStage) the_nth_response_is_(n, statusCode int) *ProxyStage {
	if !s.assert.GreaterOrEqual(len(s.responses), n, "number of responses is less than expected") {
		return s
	}
	s.assert.Equalf(statusCode, s.responses[n-1].StatusCode, "Expected status code on attempt %d: %d, got : %d", n, statusCode, s.responses[n-1].StatusCode)
	return s
}

func (s *ProxyStage) the_nth_response_field_is_(n int, path, value string) *ProxyStage {
	if !s.assert.GreaterOrEqual(len(s.responseBodies), n, "number of response bodies is less than expected") {
		return s
	}
	actual := gjson.GetBytes(s.responseBodies[n-1], path).String()
	s.assert.Equalf(value, actual, "Expected %s on attempt %d: %s, got: %s", path, n, value, actual)
	return s
}

func (s *ProxyStage) the_response_field_is_(path, value string) *ProxyStage {
	return s.the_nth_response_field_is_(1, path, value)
}

func (s *ProxyStage) the_response_lists_n_models(n int) *ProxyStage {
	s.the_response_is_(http.StatusOK)
	if len(s.responseBodies) > 0 {
		s.assert.Len(gjson.GetBytes(s.responseBodies[0], "data.items").Array(), n)
		s.assert.Equal(int64(n), gjson.GetBytes(s.responseBodies[0], "data.size").Int())
	}
	return s
}

func (s *ProxyStage) the_response_error_is_(message string) *ProxyStage {
	return s.the_response_field_is_("error_message", message)
}

func (s *ProxyStage) n_responses_were_received(n int) *ProxyStage {
	s.assert.Len(s.responses, n)
	return s
}

func (s *ProxyStage) the_archive_request_was_captured() *ProxyStage {
	s.assert.NoError(s.waitErr)
	if s.assert.Len(s.awaited, 1) {
		s.assert.JSONEq(`{"state":"ARCHIVED"}`, string(s.awaited[0].Body))
		s.assert.Equal(archivedModelID, s.awaited[0].Params["id"])
	}
	return s
}

func (s *ProxyStage) the_proxy_waits_for_all_requests() *ProxyStage {
	s.assert.NoError(s.waitErr)
	sent := atomic.LoadInt32(&s.requestsSent)
	s.assert.Equal(s.requestsToSend, sent, "proxy did not wait for requests")
	s.assert.Len(s.awaited, int(s.requestsToSend))
	return s
}

func (s *ProxyStage) the_wait_succeeds() *ProxyStage {
	s.assert.NoError(s.waitErr)
	return s
}

func (s *ProxyStage) the_wait_times_out_naming_the_alias() *ProxyStage {
	if s.assert.Error(s.waitErr) {
		s.assert.ErrorIs(s.waitErr, mockproxy.ErrWaitTimeout)
		s.assert.Contains(s.waitErr.Error(), "'@"+modelArchived+"'")
	}
	return s
}

func (s *ProxyStage) the_registration_is_rejected() *ProxyStage {
	s.assert.Error(s.registrationErr)
	return s
}

func (s *ProxyStage) the_mocks_are_asserted() *ProxyStage {
	mocks, err := s.proxy.Mocks()
	s.assert.NoError(err)
	s.assert.Len(mocks, s.registeredMockCount)
	for _, m := range mocks {
		if m.Alias == modelArchived {
			s.assert.Equal("asserted", m.State)
		}
	}
	return s
}

func decodeModel(data []byte) (fixtures.RegisteredModel, error) {
	var envelope struct {
		Data fixtures.RegisteredModel `json:"data"`
	}
	err := json.Unmarshal(data, &envelope)
	return envelope.Data, err
}

func (s *ProxyStage) the_response_model_has_a_large_description() *ProxyStage {
	if !s.assert.NotEmpty(s.responseBodies) {
		return s
	}
	model, err := decodeModel(s.responseBodies[0])
	s.assert.NoError(err)
	s.assert.Equal(largeString, model.Description)
	return s
}
