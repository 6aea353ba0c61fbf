// Package walk implements the two pure traversals over decoded JSON values
// that the rest of bulkfeed builds on: CrawlForKey and GetPath (spec §4.3).
//
// Both operate on the shapes produced by encoding/json's default decoding
// into `any`: map[string]any, []any, string, float64, bool, nil.
package walk

import "strconv"

// CrawlForKey yields every value bound to key k anywhere within v, visiting
// both object values and array elements recursively. When an object
// contains k, its own value is yielded before recursion continues into the
// object's other children (and into the matched value itself, so a key can
// nest inside its own matches). Strings are treated as scalars, never as
// sequences of characters.
func CrawlForKey(v any, key string) []any {
	var out []any
	crawlForKey(v, key, &out)
	return out
}

func crawlForKey(v any, key string, out *[]any) {
	switch t := v.(type) {
	case map[string]any:
		if val, ok := t[key]; ok {
			*out = append(*out, val)
		}
		for _, val := range t {
			crawlForKey(val, key, out)
		}
	case []any:
		for _, item := range t {
			crawlForKey(item, key, out)
		}
	}
}

// GetPath indexes object members by name and array members by decimal
// integer along the dot-separated path. It returns nil if any segment is
// missing or the value at that point is the wrong type. GetPath(v, "")
// returns v unchanged.
func GetPath(v any, path string) any {
	if path == "" {
		return v
	}

	cur := v
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '.' {
			continue
		}
		segment := path[start:i]
		start = i + 1

		switch t := cur.(type) {
		case map[string]any:
			val, ok := t[segment]
			if !ok {
				return nil
			}
			cur = val
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(t) {
				return nil
			}
			cur = t[idx]
		default:
			return nil
		}
	}
	return cur
}
