// Package jsonutil decodes loosely typed JSON produced by language models.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, tolerating
// models that emit numbers or booleans where a string was asked for.
// Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	return string(raw)
}

// FlexibleStringList decodes either a JSON array of scalars or a single
// comma-separated string into a list. Blank entries are dropped and
// duplicates removed, preserving first-seen order.
func FlexibleStringList(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		values := make([]string, 0, len(items))
		for _, item := range items {
			values = append(values, FlexibleStringValue(item))
		}
		return CleanList(values)
	}

	return SplitList(FlexibleStringValue(raw))
}

// SplitList splits a comma-separated string via CleanList.
func SplitList(s string) []string {
	return CleanList(strings.Split(s, ","))
}

// CleanList trims entries, drops blanks and removes case-insensitive duplicates.
func CleanList(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
