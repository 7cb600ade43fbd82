package buildinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ctx       *Context
		version   string
		buildDate string
	}{
		{name: "nil context", ctx: nil, version: UnknownValue, buildDate: UnknownValue},
		{name: "empty build date", ctx: NewContext("1.0.0", ""), version: "1.0.0", buildDate: UnknownValue},
		{name: "pre-release tag", ctx: NewContext("1.0.0-beta.1", "2026-01-01"), version: "1.0.0-beta.1", buildDate: "2026-01-01"},
		{name: "build metadata", ctx: NewContext("1.0.0+build.123", "2026-01-01"), version: "1.0.0+build.123", buildDate: "2026-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.ctx.Version())
			assert.Equal(t, tt.buildDate, tt.ctx.BuildDate())
		})
	}
}

func TestString(t *testing.T) {
	t.Parallel()

	s := NewContext("2.1.0", "2026-10-01").String()
	assert.Contains(t, s, "nmix 2.1.0")
	assert.Contains(t, s, "built 2026-10-01")
	assert.Contains(t, s, runtime.Version())
}
