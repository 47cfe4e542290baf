package conf

// MergeDefaults prefixes the keys of every map with ns and merges them
// into one map. Later maps win on duplicate keys.
func MergeDefaults[M ~map[string]V, V any](ns string, maps ...M) M {
	size := 0
	for _, m := range maps {
		size += len(m)
	}

	merged := make(M, size)
	for _, m := range maps {
		for key, val := range m {
			merged[ns+"."+key] = val
		}
	}

	return merged
}
