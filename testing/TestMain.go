// Package testing prepares the environment for packages that exercise the token service:
// it turns on test mode and supplies a signing secret when none is configured.
package testing

import (
	"os"
	stdtesting "testing"
)

const fallbackSecret = "test-secret-test-secret-test-secret!"

func init() {
	_ = os.Setenv("ROLEGATE_TEST_MODE", "1")
	if os.Getenv("JWT_SECRET") == "" {
		_ = os.Setenv("JWT_SECRET", fallbackSecret)
	}
}

// TestMain runs the suite after init has prepared the environment.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
