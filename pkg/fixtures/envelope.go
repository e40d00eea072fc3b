// Package fixtures builds canned API payloads for mocks. Every builder is a pure
// function of its input.
package fixtures

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const emptyObject = "{}"

// ListOptions are the paging fields of a list envelope. A zero PageSize means the
// number of items.
type ListOptions struct {
	PageSize      int
	NextPageToken string
}

// BFFResponse wraps payload the way the model registry backend-for-frontend does:
// {"data": payload}.
func BFFResponse(payload interface{}) (json.RawMessage, error) {
	raw, err := marshal(payload)
	if err != nil {
		return nil, err
	}

	out, err := sjson.SetRawBytes([]byte(emptyObject), "data", raw)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build response envelope")
	}
	return out, nil
}

func MustBFFResponse(payload interface{}) json.RawMessage {
	out, err := BFFResponse(payload)
	if err != nil {
		panic(err)
	}
	return out
}

// List wraps items, which must encode to a JSON array, in a list envelope:
// {"items": [...], "size": n, "pageSize": p, "nextPageToken": ""}.
func List(items interface{}, opts ListOptions) (json.RawMessage, error) {
	raw, err := marshal(items)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		raw = []byte("[]")
	}

	parsed := gjson.ParseBytes(raw)
	if !parsed.IsArray() {
		return nil, errors.New("list items must be a JSON array")
	}

	size := len(parsed.Array())
	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = size
	}

	out, err := sjson.SetRawBytes([]byte(emptyObject), "items", raw)
	if err == nil {
		out, err = sjson.SetBytes(out, "size", size)
	}
	if err == nil {
		out, err = sjson.SetBytes(out, "pageSize", pageSize)
	}
	if err == nil {
		out, err = sjson.SetBytes(out, "nextPageToken", opts.NextPageToken)
	}
	if err != nil {
		return nil, errors.Wrap(err, "unable to build list envelope")
	}
	return out, nil
}

func MustList(items interface{}, opts ListOptions) json.RawMessage {
	out, err := List(items, opts)
	if err != nil {
		panic(err)
	}
	return out
}

func marshal(v interface{}) (json.RawMessage, error) {
	switch raw := v.(type) {
	case json.RawMessage:
		if !json.Valid(raw) {
			return nil, errors.New("payload is not valid JSON")
		}
		return raw, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode payload")
	}
	return raw, nil
}
