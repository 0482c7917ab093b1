// Package testing switches the process into test mode when imported for
// side effects from a _test.go file.
package testing

import (
	"os"
	"sync"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("NYSA_TEST_MODE", "1")
		if os.Getenv("AUTH_PROVIDER") == "" {
			_ = os.Setenv("AUTH_PROVIDER", "memory")
		}
	})
}

func init() {
	ensureTestMode()
}
