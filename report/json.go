package report

import (
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/knights-analytics/npubench"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSON writes results as indented JSON.
func JSON(w io.Writer, results *npubench.Results) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}
