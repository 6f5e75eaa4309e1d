package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// decodeToJSON hands back the raw bytes for .json files and converts
// .yaml/.yml to JSON, so a single strict decoder (DisallowUnknownFields)
// covers both spellings of the config file.
func decodeToJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, nil
	}

	// The top level must be a mapping (db_path, scheduler, ...); a YAML
	// scalar or sequence is rejected here rather than as a confusing
	// json.Decoder error.
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	out, err := json.Marshal(stringifyKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("convert yaml to json: %w", err)
	}
	return out, nil
}

// stringifyKeys rewrites the non-string map keys the YAML decoder can
// produce for nested mappings (numeric keys, booleans) so json.Marshal
// does not choke on them.
func stringifyKeys(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		for k, e := range vv {
			vv[k] = stringifyKeys(e)
		}
		return vv
	case map[any]any:
		out := make(map[string]any, len(vv))
		for k, e := range vv {
			out[fmt.Sprint(k)] = stringifyKeys(e)
		}
		return out
	case []any:
		for i, e := range vv {
			vv[i] = stringifyKeys(e)
		}
		return vv
	}
	return v
}
