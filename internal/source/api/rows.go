package api

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"

	"spendboard/internal/core"
)

// decodeRows reads a JSON array of objects. The first row's keys become the
// result columns, ordered the way a browser enumerates object keys:
// array-index keys ascending, then the rest in document order.
func decodeRows(r io.Reader) (core.QueryResult, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return core.QueryResult{}, err
	}

	var result core.QueryResult
	for dec.More() {
		keys, values, err := decodeObject(dec)
		if err != nil {
			return core.QueryResult{}, err
		}
		if result.Columns == nil {
			result.Columns = browserKeyOrder(keys)
		}
		row := make([]any, len(result.Columns))
		for i, col := range result.Columns {
			row[i] = values[col]
		}
		result.Rows = append(result.Rows, row)
	}

	if err := expectDelim(dec, ']'); err != nil {
		return core.QueryResult{}, err
	}
	return result, nil
}

func decodeObject(dec *json.Decoder) ([]string, map[string]any, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, nil, err
	}
	keys := []string{}
	values := map[string]any{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, fmt.Errorf("decode %q: %w", key, err)
		}
		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}
		values[key] = v
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}

func browserKeyOrder(keys []string) []string {
	ordered := slices.Clone(keys)
	slices.SortStableFunc(ordered, func(a, b string) int {
		ai, aIdx := arrayIndex(a)
		bi, bIdx := arrayIndex(b)
		switch {
		case aIdx && bIdx:
			return cmp.Compare(ai, bi)
		case aIdx:
			return -1
		case bIdx:
			return 1
		}
		return 0
	})
	return ordered
}

// arrayIndex reports whether key is a canonical integer below 2^32-1.
func arrayIndex(key string) (uint64, bool) {
	n, err := strconv.ParseUint(key, 10, 32)
	if err != nil || n == math.MaxUint32 || strconv.FormatUint(n, 10) != key {
		return 0, false
	}
	return n, true
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
