package kv

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/ocfetch/fetcher/model"
)

// JSONSerializer is the preferred structured-text serializer.
type JSONSerializer struct{}

func (JSONSerializer) Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSerializer, err)
	}
	return b, nil
}

func (JSONSerializer) Decode(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", model.ErrSerializer, err)
	}
	return nil
}

// GobSerializer is the binary alternative, useful for values that aren't
// JSON-friendly (e.g. containing non-string map keys).
type GobSerializer struct{}

func (GobSerializer) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSerializer, err)
	}
	return buf.Bytes(), nil
}

func (GobSerializer) Decode(data []byte, out any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", model.ErrSerializer, err)
	}
	return nil
}
