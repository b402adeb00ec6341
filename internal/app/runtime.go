package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
)

// TestModeEnv makes the binaries return before opening connections.
const TestModeEnv = "SLOTBOOK_TEST_MODE"

var testMode struct {
	once sync.Once
	on   atomic.Bool
}

// InTestMode reports whether TestModeEnv was set to a true value. The
// environment is read on first use; call RefreshTestMode after changing it.
func InTestMode() bool {
	testMode.once.Do(RefreshTestMode)
	return testMode.on.Load()
}

// RefreshTestMode re-reads TestModeEnv.
func RefreshTestMode() {
	on, _ := strconv.ParseBool(os.Getenv(TestModeEnv))
	testMode.on.Store(on)
}
