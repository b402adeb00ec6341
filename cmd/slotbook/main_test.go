package main

import (
	"testing"

	"github.com/odyssey-erp/slotbook/internal/app"
	_ "github.com/odyssey-erp/slotbook/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	if !app.InTestMode() {
		t.Fatal("expected test mode")
	}
	main()
}
