package brand

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrandLoaded(t *testing.T) {
	assert.NotEmpty(t, Name)
	assert.NotEmpty(t, LowerName)
	assert.Equal(t, strings.ToLower(Name), LowerName)
	assert.NotEmpty(t, BinaryName)
}

func TestDefaultPaths(t *testing.T) {
	assert.True(t, strings.HasPrefix(DefaultConfigDir, "/"))
	assert.True(t, strings.HasPrefix(DefaultStateDir, "/"))
	assert.Equal(t, DefaultConfigDir+"/"+ConfigFileName, DefaultConfigFile())
}
