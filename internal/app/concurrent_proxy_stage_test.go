package app

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/form3tech-oss/mock-proxy/pkg/fixtures"
	"github.com/form3tech-oss/mock-proxy/pkg/mockproxy"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type ConcurrentProxyStage struct {
	t                                  *testing.T
	assert                             *assert.Assertions
	proxy                              *mockproxy.MockProxy
	modifiedListStatusCode             int
	modifiedArchiveStatusCode          int
	concurrentListRequestsPerSecond    int
	concurrentListRequestsDuration     time.Duration
	concurrentArchiveRequestsPerSecond int
	concurrentArchiveRequestsDuration  time.Duration
	listResponses                      []int
	archiveResponses                   []int
}

func NewConcurrentProxyStage(t *testing.T) (*ConcurrentProxyStage, *ConcurrentProxyStage, *ConcurrentProxyStage) {
	proxy, err := setupAndWaitForProxy()
	if err != nil {
		t.Logf("Error setting up proxy: %v", err)
		t.FailNow()
	}

	s := &ConcurrentProxyStage{
		t:      t,
		assert: assert.New(t),
		proxy:  proxy,
	}

	t.Cleanup(func() {
		_ = mockproxy.Configuration(adminURL.String()).Reset()
	})

	return s, s, s
}

func (s *ConcurrentProxyStage) and() *ConcurrentProxyStage {
	return s
}

func (s *ConcurrentProxyStage) a_modified_list_status_code() *ConcurrentProxyStage {
	s.modifiedListStatusCode = http.StatusBadGateway
	return s
}

func (s *ConcurrentProxyStage) a_modified_archive_status_code() *ConcurrentProxyStage {
	s.modifiedArchiveStatusCode = http.StatusConflict
	return s
}

func (s *ConcurrentProxyStage) a_list_of_registered_models() *ConcurrentProxyStage {
	err := s.proxy.InterceptAPIAs(modelsListed, modelsRoute, registryParams(nil),
		fixtures.MustBFFResponse(fixtures.NewRegisteredModelList(fixtures.NewRegisteredModels(2)...)))
	s.assert.NoError(err)
	return s
}

func (s *ConcurrentProxyStage) a_model_that_can_be_archived() *ConcurrentProxyStage {
	err := s.proxy.InterceptAPIAs(modelArchived, modelRoute, registryParams(map[string]interface{}{"id": 2}),
		fixtures.MustBFFResponse(fixtures.NewRegisteredModel(fixtures.RegisteredModelOptions{
			ID:    archivedModelID,
			State: fixtures.ModelStateArchived,
		})))
	s.assert.NoError(err)
	return s
}

func (s *ConcurrentProxyStage) x_concurrent_list_requests_per_second_are_made_for_y_seconds(x int, y time.Duration) *ConcurrentProxyStage {
	s.concurrentListRequestsPerSecond = x
	s.concurrentListRequestsDuration = y

	return s
}

func (s *ConcurrentProxyStage) x_concurrent_archive_requests_per_second_are_made_for_y_seconds(x int, y time.Duration) *ConcurrentProxyStage {
	s.concurrentArchiveRequestsPerSecond = x
	s.concurrentArchiveRequestsDuration = y

	return s
}

func (s *ConcurrentProxyStage) the_concurrent_requests_are_sent() {
	if s.modifiedListStatusCode != 0 {
		s.assert.NoError(s.proxy.ForMock(modelsListed).AddModifier("$.status", fmt.Sprintf("%d", s.modifiedListStatusCode), nil))
	}
	if s.modifiedArchiveStatusCode != 0 {
		s.assert.NoError(s.proxy.ForMock(modelArchived).AddModifier("$.status", fmt.Sprintf("%d", s.modifiedArchiveStatusCode), nil))
	}

	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sendConcurrentRequests(s.concurrentListRequestsPerSecond, s.concurrentListRequestsDuration, s.makeListRequest)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sendConcurrentRequests(s.concurrentArchiveRequestsPerSecond, s.concurrentArchiveRequestsDuration, s.makeArchiveRequest)
	}()

	wg.Wait()
}

func (s *ConcurrentProxyStage) do(method, path, body string) int {
	u := strings.TrimSuffix(proxyURL.String(), "/") + path
	req, err := http.NewRequest(method, u, strings.NewReader(body))
	s.assert.NoError(err)

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := http.DefaultClient.Do(req)
	if !s.assert.NoError(err) {
		return 0
	}
	res.Body.Close()
	return res.StatusCode
}

func (s *ConcurrentProxyStage) makeListRequest() {
	s.listResponses = append(s.listResponses, s.do(http.MethodGet, registryBasePath+"/registered_models", ""))
}

func (s *ConcurrentProxyStage) makeArchiveRequest() {
	s.archiveResponses = append(s.archiveResponses,
		s.do(http.MethodPatch, registryBasePath+"/registered_models/"+archivedModelID, `{"state":"ARCHIVED"}`))
}

func sendConcurrentRequests(requests int, d time.Duration, f func()) {
	log.Infof("sending %d concurrent requests per second for %s", requests, d)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for tick := 0; tick < int(d/time.Second); tick++ {
		<-ticker.C
		for i := 0; i < requests; i++ {
			f()
		}
	}
}

func (s *ConcurrentProxyStage) all_the_list_responses_should_have_the_right_status_code() *ConcurrentProxyStage {
	expectedLen := s.concurrentListRequestsPerSecond * int(s.concurrentListRequestsDuration/time.Second)
	s.assert.Len(s.listResponses, expectedLen, "number of list responses is not as expected")

	for _, code := range s.listResponses {
		s.assert.Equal(s.modifiedListStatusCode, code, "expected list status code")
	}

	return s
}

func (s *ConcurrentProxyStage) all_the_archive_responses_should_have_the_right_status_code() *ConcurrentProxyStage {
	expectedLen := s.concurrentArchiveRequestsPerSecond * int(s.concurrentArchiveRequestsDuration/time.Second)
	s.assert.Len(s.archiveResponses, expectedLen, "number of archive responses is not as expected")

	for _, code := range s.archiveResponses {
		s.assert.Equal(s.modifiedArchiveStatusCode, code, "expected archive status code")
	}

	return s
}

func (s *ConcurrentProxyStage) every_archive_request_was_captured() *ConcurrentProxyStage {
	interactions, err := s.proxy.Interactions(modelArchived)
	s.assert.NoError(err)
	s.assert.Len(interactions, len(s.archiveResponses))
	return s
}
