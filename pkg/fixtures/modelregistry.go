package fixtures

import "strconv"

type ModelState string

const (
	ModelStateLive     ModelState = "LIVE"
	ModelStateArchived ModelState = "ARCHIVED"
)

const (
	defaultTimestamp = "1725282249921"
	metadataString   = "MetadataStringValue"
)

type MetadataValue struct {
	MetadataType string `json:"metadataType"`
	StringValue  string `json:"string_value"`
}

type CustomProperties map[string]MetadataValue

type RegisteredModel struct {
	ID                       string           `json:"id"`
	Name                     string           `json:"name"`
	Description              string           `json:"description"`
	ExternalID               string           `json:"externalId,omitempty"`
	Owner                    string           `json:"owner"`
	State                    ModelState       `json:"state"`
	CreateTimeSinceEpoch     string           `json:"createTimeSinceEpoch"`
	LastUpdateTimeSinceEpoch string           `json:"lastUpdateTimeSinceEpoch"`
	CustomProperties         CustomProperties `json:"customProperties"`
}

// RegisteredModelOptions override the defaults of NewRegisteredModel. Zero fields keep
// the default.
type RegisteredModelOptions struct {
	ID                       string
	Name                     string
	Description              string
	Owner                    string
	State                    ModelState
	Labels                   []string
	LastUpdateTimeSinceEpoch string
}

func NewRegisteredModel(opts RegisteredModelOptions) RegisteredModel {
	return RegisteredModel{
		ID:                       or(opts.ID, "1"),
		Name:                     or(opts.Name, "test"),
		Description:              opts.Description,
		Owner:                    or(opts.Owner, "Author 1"),
		State:                    ModelState(or(string(opts.State), string(ModelStateLive))),
		CreateTimeSinceEpoch:     defaultTimestamp,
		LastUpdateTimeSinceEpoch: or(opts.LastUpdateTimeSinceEpoch, defaultTimestamp),
		CustomProperties:         labels(opts.Labels),
	}
}

type ModelVersion struct {
	ID                       string           `json:"id"`
	Name                     string           `json:"name"`
	Description              string           `json:"description"`
	Author                   string           `json:"author"`
	RegisteredModelID        string           `json:"registeredModelId"`
	State                    ModelState       `json:"state"`
	CreateTimeSinceEpoch     string           `json:"createTimeSinceEpoch"`
	LastUpdateTimeSinceEpoch string           `json:"lastUpdateTimeSinceEpoch"`
	CustomProperties         CustomProperties `json:"customProperties"`
}

type ModelVersionOptions struct {
	ID                string
	Name              string
	Description       string
	Author            string
	RegisteredModelID string
	State             ModelState
	Labels            []string
}

func NewModelVersion(opts ModelVersionOptions) ModelVersion {
	return ModelVersion{
		ID:                       or(opts.ID, "1"),
		Name:                     or(opts.Name, "new model version"),
		Description:              opts.Description,
		Author:                   or(opts.Author, "Test author"),
		RegisteredModelID:        or(opts.RegisteredModelID, "1"),
		State:                    ModelState(or(string(opts.State), string(ModelStateLive))),
		CreateTimeSinceEpoch:     defaultTimestamp,
		LastUpdateTimeSinceEpoch: defaultTimestamp,
		CustomProperties:         labels(opts.Labels),
	}
}

type ModelRegistry struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
}

type ModelRegistryOptions struct {
	Name        string
	DisplayName string
	Description string
}

func NewModelRegistry(opts ModelRegistryOptions) ModelRegistry {
	return ModelRegistry{
		Name:        or(opts.Name, "modelregistry-sample"),
		DisplayName: or(opts.DisplayName, "Model Registry Sample"),
		Description: or(opts.Description, "New model registry"),
	}
}

type RegisteredModelList struct {
	Items         []RegisteredModel `json:"items"`
	Size          int               `json:"size"`
	PageSize      int               `json:"pageSize"`
	NextPageToken string            `json:"nextPageToken"`
}

func NewRegisteredModelList(items ...RegisteredModel) RegisteredModelList {
	if items == nil {
		items = []RegisteredModel{}
	}
	return RegisteredModelList{Items: items, Size: len(items), PageSize: len(items)}
}

type ModelVersionList struct {
	Items         []ModelVersion `json:"items"`
	Size          int            `json:"size"`
	PageSize      int            `json:"pageSize"`
	NextPageToken string         `json:"nextPageToken"`
}

func NewModelVersionList(items ...ModelVersion) ModelVersionList {
	if items == nil {
		items = []ModelVersion{}
	}
	return ModelVersionList{Items: items, Size: len(items), PageSize: len(items)}
}

// NewRegisteredModels returns n live models with ids and names numbered from 1.
func NewRegisteredModels(n int) []RegisteredModel {
	models := make([]RegisteredModel, 0, n)
	for i := 1; i <= n; i++ {
		id := strconv.Itoa(i)
		models = append(models, NewRegisteredModel(RegisteredModelOptions{ID: id, Name: "model " + id}))
	}
	return models
}

func labels(values []string) CustomProperties {
	props := CustomProperties{}
	for _, v := range values {
		props[v] = MetadataValue{MetadataType: metadataString, StringValue: ""}
	}
	return props
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
