package output

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// JSONFormatter renders a view's data as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) Format(view View) (string, error) {
	if !f.Indent {
		data, err := json.Marshal(view.data())
		return string(data), err
	}
	data, err := json.MarshalIndent(view.data(), "", "  ")
	return string(data), err
}

// YAMLFormatter renders a view's data as YAML. Data is projected through
// JSON first so json tags and json.RawMessage payloads keep their shape.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(view View) (string, error) {
	raw, err := json.Marshal(view.data())
	if err != nil {
		return "", err
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(generic)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}
