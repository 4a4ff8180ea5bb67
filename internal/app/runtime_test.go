package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	_ "github.com/rolegate/rolegate/internal/testing/guard"
)

func TestInTestModeFollowsEnvironment(t *testing.T) {
	RefreshTestMode()
	assert.True(t, InTestMode(), "guard import enables test mode")

	cases := map[string]bool{
		"0":     false,
		"":      false,
		"nope":  false,
		"true":  true,
		"TRUE":  true,
		"1":     true,
		"false": false,
	}
	for value, want := range cases {
		t.Setenv(TestModeEnv, value)
		RefreshTestMode()
		assert.Equal(t, want, InTestMode(), "value %q", value)
	}

	t.Setenv(TestModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())
}
