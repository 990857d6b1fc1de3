//go:build !unix

package stack

// allocateMemory falls back to the Go heap where anonymous mappings are unavailable.
func allocateMemory(size int64) ([]byte, bool, error) {
	return make([]byte, size), false, nil
}

func freeMemory([]byte, bool) error {
	return nil
}
