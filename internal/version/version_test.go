package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	old := Version
	Version = "v1.2.3"
	t.Cleanup(func() { Version = old })

	assert.Equal(t, "v1.2.3", Short())
	info := Info()
	assert.Contains(t, info, "v1.2.3")
	assert.Contains(t, info, runtime.Version())
}
