// Package testing switches the binaries into test mode when imported by a
// test, so their main functions return before touching Postgres or Redis.
package testing

import (
	"os"

	"github.com/odyssey-erp/slotbook/internal/app"
)

func init() {
	if _, set := os.LookupEnv(app.TestModeEnv); !set {
		_ = os.Setenv(app.TestModeEnv, "1")
	}
}
