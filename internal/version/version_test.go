package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoDefault(t *testing.T) {
	info := Info()
	assert.Contains(t, info, "querydesk")
	assert.Contains(t, info, Version)
	assert.Contains(t, info, runtime.GOOS)
	assert.Contains(t, info, runtime.GOARCH)
}

func TestInfoShortensCommit(t *testing.T) {
	origVersion, origCommit := Version, Commit
	t.Cleanup(func() {
		Version = origVersion
		Commit = origCommit
	})

	Version = "1.2.3"
	Commit = "abc1234567890"

	info := Info()
	assert.Contains(t, info, "1.2.3")
	assert.Contains(t, info, "abc1234")
	assert.NotContains(t, info, "abc1234567890")
	assert.Equal(t, "querydesk/1.2.3", UserAgent())
}

func TestShort(t *testing.T) {
	assert.Equal(t, "abc", short("abc"))
	assert.Equal(t, "1234567", short("123456789"))
}
