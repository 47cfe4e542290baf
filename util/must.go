package util

import "fmt"

// Must panics if err is set. Use it for values that are fixed at build
// time, such as embedded schemas.
func Must[V any](v V, err error) V {
	if err != nil {
		panic(fmt.Sprintf("util.Must: %v", err))
	}

	return v
}
