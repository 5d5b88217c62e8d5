package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, Get())
	assert.Equal(t, "v"+Get(), Tag())
	assert.True(t, ValidTag(Tag()))

	major, minor, patch, suffix := Tuple()
	assert.Equal(t, 0, major)
	assert.Equal(t, 3, minor)
	assert.Equal(t, 11, patch)
	assert.Empty(t, suffix)
	assert.True(t, IsRelease())
}

func TestParse(t *testing.T) {
	major, minor, patch, suffix, ok := Parse("v1.2.3-dev.1")
	assert.True(t, ok)
	assert.Equal(t, []int{1, 2, 3}, []int{major, minor, patch})
	assert.Equal(t, "dev.1", suffix)

	for _, tag := range []string{"1.2.3", "v1.2", "v1", "latest", ""} {
		_, _, _, _, ok := Parse(tag)
		assert.False(t, ok, tag)
	}
}
