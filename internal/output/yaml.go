package output

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter renders results as a YAML sequence.
type YAMLFormatter struct{}

// Format renders results as YAML.
func (f *YAMLFormatter) Format(results []Result) (string, error) {
	if results == nil {
		results = []Result{}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(results); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
