package output

import (
	"encoding/json"
)

// JSONFormatter renders results as a JSON array.
type JSONFormatter struct {
	Indent bool
}

// Format renders results as JSON. A nil slice renders as [].
func (f *JSONFormatter) Format(results []Result) (string, error) {
	if results == nil {
		results = []Result{}
	}

	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(results, "", "  ")
	} else {
		data, err = json.Marshal(results)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
