package mockproxy

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type mocksFile struct {
	Mocks []mockEntry `yaml:"mocks"`
}

type mockEntry struct {
	Method   string                 `yaml:"method"`
	Path     string                 `yaml:"path"`
	Params   map[string]interface{} `yaml:"params"`
	Alias    string                 `yaml:"alias"`
	Response struct {
		Status  int               `yaml:"status"`
		Headers map[string]string `yaml:"headers"`
		Body    interface{}       `yaml:"body"`
	} `yaml:"response"`
}

// ParseDefinitions reads mock definitions from a YAML document of the form
//
//	mocks:
//	  - method: GET
//	    path: /api/:apiVersion/model_registry
//	    params: {apiVersion: v1}
//	    response:
//	      body: {data: []}
func ParseDefinitions(data []byte) ([]Definition, error) {
	var file mocksFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "unable to parse mocks file")
	}

	defs := make([]Definition, 0, len(file.Mocks))
	for i, entry := range file.Mocks {
		def := Definition{
			Method: entry.Method,
			Path:   entry.Path,
			Params: entry.Params,
			Alias:  entry.Alias,
			Response: ResponseDefinition{
				Status:  entry.Response.Status,
				Headers: entry.Response.Headers,
			},
		}

		if entry.Response.Body != nil {
			body, err := json.Marshal(entry.Response.Body)
			if err != nil {
				return nil, errors.Wrapf(err, "mock %d: unable to encode response body", i)
			}
			def.Response.Body = body
		}

		if _, err := newMock(def); err != nil {
			return nil, errors.Wrapf(err, "mock %d", i)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read mocks file")
	}
	return ParseDefinitions(data)
}
