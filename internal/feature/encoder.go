package feature

import (
	"encoding/json"
	"fmt"
	"sort"
)

// UnknownCategoryError reports a category value that was not part of the
// encoder's training vocabulary. It is a client-correctable error: the
// request named a model/color/transmission the trained bundle has never seen.
type UnknownCategoryError struct {
	Field string
	Value string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown %s value %q", e.Field, e.Value)
}

// LabelEncoder is a frozen bijection from a finite category vocabulary to
// small non-negative integers. The vocabulary is captured once at fit time
// and never mutated afterwards; lookups of values outside it fail with
// UnknownCategoryError instead of defaulting.
type LabelEncoder struct {
	Field   string   `json:"field"`
	Classes []string `json:"classes"`

	index map[string]int
}

// FitLabelEncoder builds an encoder for field over the observed values.
// Duplicates are collapsed and classes are sorted, so the value→code mapping
// is deterministic for a given vocabulary.
func FitLabelEncoder(field string, values []string) *LabelEncoder {
	seen := make(map[string]struct{}, len(values))
	classes := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}
	sort.Strings(classes)

	e := &LabelEncoder{Field: field, Classes: classes}
	e.buildIndex()
	return e
}

func (e *LabelEncoder) buildIndex() {
	e.index = make(map[string]int, len(e.Classes))
	for i, c := range e.Classes {
		e.index[c] = i
	}
}

// Transform maps a category value to its integer code.
func (e *LabelEncoder) Transform(value string) (int, error) {
	code, ok := e.index[value]
	if !ok {
		return 0, &UnknownCategoryError{Field: e.Field, Value: value}
	}
	return code, nil
}

// Inverse maps an integer code back to its category value.
func (e *LabelEncoder) Inverse(code int) (string, error) {
	if code < 0 || code >= len(e.Classes) {
		return "", fmt.Errorf("code %d out of range for %s (have %d classes)", code, e.Field, len(e.Classes))
	}
	return e.Classes[code], nil
}

// Len returns the vocabulary size.
func (e *LabelEncoder) Len() int {
	return len(e.Classes)
}

// UnmarshalJSON rebuilds the lookup index after decoding.
func (e *LabelEncoder) UnmarshalJSON(data []byte) error {
	type alias LabelEncoder
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	e.Field = a.Field
	e.Classes = a.Classes
	e.buildIndex()
	return nil
}
