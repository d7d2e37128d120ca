package testutil

import "testing"

// Given, When, Then and And label the phases of a scenario test. Each phase is
// a subtest, so a failed Given stops the phases that depend on it from making
// misleading assertions.
func Given(t *testing.T, desc string, fn func(t *testing.T)) { phase(t, "Given", desc, fn) }

func When(t *testing.T, desc string, fn func(t *testing.T)) { phase(t, "When", desc, fn) }

func Then(t *testing.T, desc string, fn func(t *testing.T)) { phase(t, "Then", desc, fn) }

func And(t *testing.T, desc string, fn func(t *testing.T)) { phase(t, "And", desc, fn) }

func phase(t *testing.T, keyword, desc string, fn func(t *testing.T)) {
	t.Helper()
	if !t.Run(keyword+" "+desc, fn) {
		t.FailNow()
	}
}
