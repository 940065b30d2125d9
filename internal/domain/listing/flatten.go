// Package listing turns raw source listings into canonical records and identifiers.
package listing

import "sort"

// KeySeparator joins nested key paths when flattening.
const KeySeparator = "_"

// Flatten collapses nested objects into a single-level map whose keys are the
// object paths joined with KeySeparator. Arrays and scalars are kept as values.
//
// Keys are visited in sorted order at every level, so when two distinct paths
// flatten to the same name the value visited last wins. The result is lossy for
// such collisions but always the same for the same input.
func Flatten(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	flattenInto(out, "", in)
	return out
}

func flattenInto(out map[string]any, prefix string, in map[string]any) {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + KeySeparator + k
		}
		if nested, ok := in[k].(map[string]any); ok {
			if len(nested) == 0 {
				continue
			}
			flattenInto(out, name, nested)
			continue
		}
		out[name] = in[k]
	}
}
