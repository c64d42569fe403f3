// Package testing prepares the process environment for tests that load
// application configuration. Blank-import it from _test files.
package testing

import "os"

// ModeEnv marks the process as running under go test.
const ModeEnv = "PRODUCTMANAGER_TEST_MODE"

// Defaults fill in variables that LoadConfig requires or that would otherwise
// reach for Redis.
var Defaults = map[string]string{
	ModeEnv:         "1",
	"JWT_SECRET":    "test-only-secret-0123456789abcdef",
	"SESSION_STORE": "memory",
}

func init() {
	Apply(Defaults)
}

// Apply sets each key of env that is not already present in the environment.
func Apply(env map[string]string) {
	for key, value := range env {
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		_ = os.Setenv(key, value)
	}
}
