package mockproxy

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	mediaTypeJSON = "application/json"
	mediaTypeText = "text/plain"
)

// InterceptedRequest is a request observed at the network boundary, either by the proxy
// server or by a browser interceptor.
type InterceptedRequest struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// requestDocument is the JSON view of a request that constraints are evaluated against.
type requestDocument map[string]interface{}

// newRequestDocument never fails: a body or Content-Type that cannot be parsed is read
// as text, so the mock still answers and constraints on it report a violation.
func newRequestDocument(req InterceptedRequest) requestDocument {
	mediaType, err := parseMediaTypeHeader(req.Header)
	if err != nil {
		log.Warnf("%s %s has an invalid Content-Type header, reading body as text. %s", req.Method, req.URL.Path, err)
		mediaType = mediaTypeText
	}

	var doc requestDocument
	if mediaType == mediaTypeJSON || strings.HasSuffix(mediaType, "+json") {
		doc, err = parseJSONRequest(req.Body, req.URL)
		if err != nil {
			log.Warnf("%s %s declares %s but %s, reading body as text", req.Method, req.URL.Path, mediaType, err)
			doc = parsePlainTextRequest(req.Body, req.URL)
		}
	} else {
		doc = parsePlainTextRequest(req.Body, req.URL)
	}

	headers := make(map[string]interface{})
	for name, values := range req.Header {
		if len(values) > 0 {
			headers[name] = values[len(values)-1]
		}
	}
	doc["headers"] = headers
	doc["method"] = req.Method
	return doc
}

func parseJSONRequest(data []byte, u *url.URL) (requestDocument, error) {
	var body interface{} = map[string]interface{}{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, errors.Wrap(err, "unable to parse request body")
		}
	}

	return requestDocument{
		"path":  u.Path,
		"body":  body,
		"query": parseQueryValues(u),
	}, nil
}

func parsePlainTextRequest(data []byte, u *url.URL) requestDocument {
	return requestDocument{
		"path":  u.Path,
		"body":  string(data),
		"query": parseQueryValues(u),
	}
}

func parseQueryValues(u *url.URL) map[string]interface{} {
	queryValues := make(map[string]interface{})
	for q, v := range u.Query() {
		if len(v) > 0 {
			escapeValue(queryValues, q, v[0])
		}
	}
	return queryValues
}

// encodeValues quotes bracketed query keys so filter[name] style paths stay valid
// jsonpath.
func (r requestDocument) encodeValues(val string) string {
	query, _ := r["query"].(map[string]interface{})
	return encodeMapValues(query, val)
}

func encodeMapValues(m map[string]interface{}, val string) string {
	result := val
	for k, v := range m {
		result = strings.ReplaceAll(result, "["+k+"]", "[\""+k+"\"]")
		if nested, ok := v.(map[string]interface{}); ok {
			result = encodeMapValues(nested, result)
		}
	}
	return result
}

func escapeValue(values map[string]interface{}, query, val string) {
	open := strings.Index(query, "[")
	if open < 0 {
		values[query] = val
		return
	}

	key := query[:open]
	rest := query[open+1:]
	closing := strings.Index(rest, "]")
	if closing < 0 {
		values[query] = val
		return
	}

	valueMap, ok := values[key].(map[string]interface{})
	if !ok {
		valueMap = make(map[string]interface{})
		values[key] = valueMap
	}
	escapeValue(valueMap, rest[:closing]+rest[closing+1:], val)
}

func parseMediaTypeHeader(header http.Header) (string, error) {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		log.Debug("request does not have Content-Type header - defaulting to text/plain")
		return mediaTypeText, nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", err
	}
	return mediaType, nil
}
