package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlignUp(t *testing.T) {
	assert.Equal(t, int64(256), AlignUp(1, 256))
	assert.Equal(t, int64(256), AlignUp(256, 256))
	assert.Equal(t, int64(512), AlignUp(257, 256))
	assert.Equal(t, int64(0), AlignUp(0, 256))
	assert.Equal(t, int64(13), AlignUp(13, 0))
}

func TestPipelineStatusString(t *testing.T) {
	assert.Equal(t, "ready", PipelineReady.String())
	assert.Equal(t, "unknown", PipelineStatus(9).String())
}
