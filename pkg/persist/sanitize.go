package persist

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	valuePolicyOnce sync.Once
	valuePolicy     *bluemonday.Policy
)

// sanitizeValue strips markup from free-text input. Values without a tag
// opener are returned untouched so entities and ampersands survive as typed.
func sanitizeValue(raw string) string {
	if !strings.Contains(raw, "<") {
		return raw
	}
	cleaned := valueSanitizer().Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

func valueSanitizer() *bluemonday.Policy {
	valuePolicyOnce.Do(func() {
		valuePolicy = bluemonday.StrictPolicy()
	})
	return valuePolicy
}

// Sanitize returns a copy of record with markup stripped from string values.
func Sanitize(record Record) Record {
	out := make(Record, len(record))
	for key, value := range record {
		if text, ok := value.(string); ok {
			value = sanitizeValue(text)
		}
		out[key] = value
	}
	return out
}
