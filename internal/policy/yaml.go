package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// decode accepts YAML or JSON (by extension) and decodes strictly: unknown keys
// and trailing documents are errors.
func decode(path string, data []byte) (File, error) {
	jb := data
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return File{}, fmt.Errorf("yaml unmarshal: %w", err)
		}
		var err error
		jb, err = json.Marshal(normalizeYAML(v))
		if err != nil {
			return File{}, fmt.Errorf("yaml->json marshal: %w", err)
		}
	}

	var f File
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return File{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return File{}, fmt.Errorf("trailing data")
		}
		return File{}, err
	}
	return f, nil
}

// normalizeYAML makes map keys strings and dates plain strings so the result
// can be JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	case time.Time:
		return x.Format("2006-01-02")
	default:
		return in
	}
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
