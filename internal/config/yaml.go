package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// yamlToJSON turns a single-document YAML config into JSON so both formats
// share the strict JSON decoder.
func yamlToJSON(data []byte) ([]byte, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var doc any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return []byte("{}"), nil
		}
		return nil, fmt.Errorf("yaml: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
		return nil, errors.New("yaml: multiple documents are not supported")
	}

	v, err := jsonSafe(doc, "")
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// jsonSafe rejects non-string mapping keys, reporting the offending path.
func jsonSafe(in any, at string) (any, error) {
	switch x := in.(type) {
	case map[string]any:
		for k, v := range x {
			nv, err := jsonSafe(v, join(at, k))
			if err != nil {
				return nil, err
			}
			x[k] = nv
		}
		return x, nil
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("yaml: %s: non-string key %v", orRoot(at), k)
			}
			nv, err := jsonSafe(v, join(at, ks))
			if err != nil {
				return nil, err
			}
			m[ks] = nv
		}
		return m, nil
	case []any:
		for i := range x {
			nv, err := jsonSafe(x[i], fmt.Sprintf("%s[%d]", at, i))
			if err != nil {
				return nil, err
			}
			x[i] = nv
		}
		return x, nil
	default:
		return in, nil
	}
}

func join(at, k string) string {
	if at == "" {
		return k
	}
	return at + "." + k
}

func orRoot(at string) string {
	if at == "" {
		return "<root>"
	}
	return at
}
