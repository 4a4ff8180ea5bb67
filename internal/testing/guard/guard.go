// Package guard is imported for its side effect: packages whose tests link a binary's
// wiring import it so main never dials real infrastructure.
package guard

import "os"

const testModeEnv = "ROLEGATE_TEST_MODE"

func init() {
	if _, ok := os.LookupEnv(testModeEnv); !ok {
		_ = os.Setenv(testModeEnv, "1")
	}
}
