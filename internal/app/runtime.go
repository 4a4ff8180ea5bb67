package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

// TestModeEnv names the variable that keeps binaries from opening real connections.
const TestModeEnv = "ROLEGATE_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

func loadTestMode() {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	testMode.Store(err == nil && on)
}

// InTestMode reports whether main should return before touching Postgres or Redis.
func InTestMode() bool {
	testModeOnce.Do(loadTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads the environment, for tests that toggle the flag.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	loadTestMode()
}
