package testutils

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// AnyValue in an expected document matches whatever the actual document
// holds at that key, as long as the key is present.
const AnyValue = "<<ANY>>"

// MustJSON marshals v or panics. Meant for building expected documents.
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

type jsonOptions struct {
	MatchAnyValue bool `default:"true"`
	Ignored       []string
}

// JSONOption tunes a JSONAsserter.
type JSONOption func(*jsonOptions)

// IgnoringFields drops the named keys at every depth of both documents.
func IgnoringFields(keys ...string) JSONOption {
	return func(o *jsonOptions) { o.Ignored = append(o.Ignored, keys...) }
}

// LiteralAnyValue turns off AnyValue matching.
func LiteralAnyValue() JSONOption {
	return func(o *jsonOptions) { o.MatchAnyValue = false }
}

// JSONAsserter compares payloads structurally and reports a gojsondiff delta.
type JSONAsserter struct {
	t    testing.TB
	opts jsonOptions
}

func NewJSONAsserter(t testing.TB, opts ...JSONOption) *JSONAsserter {
	ja := &JSONAsserter{t: t}
	defaults.SetDefaults(&ja.opts)
	for _, opt := range opts {
		opt(&ja.opts)
	}
	return ja
}

// Assert fails the test when actualJSON differs from expectedJSON.
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) bool {
	ja.t.Helper()
	if diff := ja.Diff(actualJSON, expectedJSON); diff != "" {
		ja.t.Errorf("JSON mismatch:\n%s", diff)
		return false
	}
	return true
}

// AssertBytes is Assert for a raw payload.
func (ja *JSONAsserter) AssertBytes(actual []byte, expectedJSON string) bool {
	ja.t.Helper()
	return ja.Assert(string(actual), expectedJSON)
}

// Diff returns "" on a match and an ASCII delta otherwise.
func (ja *JSONAsserter) Diff(actualJSON, expectedJSON string) string {
	var expected, actual any
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	// gojsondiff only compares objects
	if _, ok := expected.([]any); ok {
		expected = map[string]any{"$": expected}
		actual = map[string]any{"$": actual}
	} else if _, ok := actual.([]any); ok {
		expected = map[string]any{"$": expected}
		actual = map[string]any{"$": actual}
	}

	normalize(expected, actual, ja.opts)

	expectedBytes, _ := json.Marshal(expected)
	actualBytes, _ := json.Marshal(actual)
	diff, err := gojsondiff.New().Compare(expectedBytes, actualBytes)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	if !diff.Modified() {
		return ""
	}

	out, _ := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{ShowArrayIndex: true}).Format(diff)
	return out
}

// normalize walks both documents together, dropping ignored keys and
// resolving AnyValue against the actual document.
func normalize(expected, actual any, opts jsonOptions) {
	switch exp := expected.(type) {
	case map[string]any:
		act, _ := actual.(map[string]any)
		for _, key := range opts.Ignored {
			delete(exp, key)
			delete(act, key)
		}
		for key, want := range exp {
			got, present := act[key]
			if s, ok := want.(string); ok && s == AnyValue && opts.MatchAnyValue {
				if present {
					exp[key] = got
				}
				continue
			}
			normalize(want, got, opts)
		}
	case []any:
		act, _ := actual.([]any)
		for i := range exp {
			if i < len(act) {
				normalize(exp[i], act[i], opts)
			}
		}
	}
}
