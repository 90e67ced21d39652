package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersion(t *testing.T) {
	oldV, oldB, oldC := Version, BuildTime, GitCommit
	t.Cleanup(func() { Version, BuildTime, GitCommit = oldV, oldB, oldC })

	Version, BuildTime, GitCommit = "v1.2.0", "", ""
	assert.Equal(t, "v1.2.0", GetShortVersion())
	assert.Equal(t, "v1.2.0", GetVersion())

	Version, BuildTime, GitCommit = "1.2.0", "2026-01-02", "abc"
	assert.Equal(t, "v1.2.0 (built 2026-01-02) commit abc", GetVersion())

	GitCommit = "0123456789abcdef"
	assert.Equal(t, "v1.2.0 (built 2026-01-02) commit 01234567", GetVersion())
}
