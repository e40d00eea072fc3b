package fixtures

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestBFFResponse(t *testing.T) {
	out, err := BFFResponse(NewRegisteredModelList())
	require.NoError(t, err)

	assert.JSONEq(t, `{"data":{"items":[],"size":0,"pageSize":0,"nextPageToken":""}}`, string(out))
}

func TestBFFResponse_RawPayload(t *testing.T) {
	out, err := BFFResponse(json.RawMessage(`{"state":"ARCHIVED"}`))
	require.NoError(t, err)
	assert.Equal(t, "ARCHIVED", gjson.GetBytes(out, "data.state").String())

	_, err = BFFResponse(json.RawMessage(`{"state":`))
	assert.Error(t, err)
}

func TestBFFResponse_IsPure(t *testing.T) {
	model := NewRegisteredModel(RegisteredModelOptions{Name: "fraud detection"})
	first := MustBFFResponse(model)
	second := MustBFFResponse(model)
	assert.Equal(t, string(first), string(second))
}

func TestList(t *testing.T) {
	tests := []struct {
		name     string
		items    interface{}
		opts     ListOptions
		expected string
	}{
		{
			name:     "empty",
			items:    []RegisteredModel{},
			expected: `{"items":[],"size":0,"pageSize":0,"nextPageToken":""}`,
		},
		{
			name:     "nil items",
			items:    nil,
			expected: `{"items":[],"size":0,"pageSize":0,"nextPageToken":""}`,
		},
		{
			name:     "paged",
			items:    []string{"a", "b"},
			opts:     ListOptions{PageSize: 10, NextPageToken: "abc"},
			expected: `{"items":["a","b"],"size":2,"pageSize":10,"nextPageToken":"abc"}`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			out, err := List(tt.items, tt.opts)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(out))
		})
	}
}

func TestList_RejectsNonArray(t *testing.T) {
	_, err := List(map[string]string{"a": "b"}, ListOptions{})
	assert.Error(t, err)
}

func TestNewRegisteredModel_Defaults(t *testing.T) {
	model := NewRegisteredModel(RegisteredModelOptions{})

	assert.Equal(t, "1", model.ID)
	assert.Equal(t, "test", model.Name)
	assert.Equal(t, ModelStateLive, model.State)
	assert.Empty(t, model.CustomProperties)
}

func TestNewRegisteredModel_Overrides(t *testing.T) {
	model := NewRegisteredModel(RegisteredModelOptions{
		ID:     "7",
		Name:   "archived model",
		State:  ModelStateArchived,
		Labels: []string{"Financial"},
	})

	raw, err := json.Marshal(model)
	require.NoError(t, err)

	assert.Equal(t, "7", gjson.GetBytes(raw, "id").String())
	assert.Equal(t, "ARCHIVED", gjson.GetBytes(raw, "state").String())
	assert.Equal(t, metadataString, gjson.GetBytes(raw, "customProperties.Financial.metadataType").String())
}

func TestNewModelVersion(t *testing.T) {
	version := NewModelVersion(ModelVersionOptions{RegisteredModelID: "3"})
	assert.Equal(t, "3", version.RegisteredModelID)
	assert.Equal(t, "new model version", version.Name)

	list := NewModelVersionList(version)
	assert.Equal(t, 1, list.Size)
}

func TestNewModelRegistry(t *testing.T) {
	registry := NewModelRegistry(ModelRegistryOptions{DisplayName: "Registry"})
	assert.Equal(t, "modelregistry-sample", registry.Name)
	assert.Equal(t, "Registry", registry.DisplayName)
}

func TestNewRegisteredModels(t *testing.T) {
	models := NewRegisteredModels(3)
	require.Len(t, models, 3)
	assert.Equal(t, "3", models[2].ID)
	assert.Equal(t, "model 2", models[1].Name)
}
