package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextWriteAndRead(t *testing.T) {
	ctx := NewContext()
	require.NoError(t, ctx.Write("job-1", "image_digest", "sha256:abc"))

	var out string
	result := ctx.Read("job-1", "image_digest", &out)
	assert.Equal(t, AccessValue, result)
	assert.Equal(t, "sha256:abc", out)
}

func TestContextReadMissingKey(t *testing.T) {
	ctx := NewContext()
	var out string
	assert.Equal(t, AccessMissing, ctx.Read("job-1", "nope", &out))
}

func TestContextReadTypeMismatch(t *testing.T) {
	ctx := NewContext()
	require.NoError(t, ctx.Write("job-1", "count", 42))

	var out string
	assert.Equal(t, AccessTypeMismatch, ctx.Read("job-1", "count", &out))
}

func TestContextWriteRejectsSecondWrite(t *testing.T) {
	ctx := NewContext()
	require.NoError(t, ctx.Write("job-1", "key", "v1"))
	err := ctx.Write("job-1", "key", "v2")
	assert.Error(t, err)
}

func TestContextHas(t *testing.T) {
	ctx := NewContext()
	assert.False(t, ctx.Has("job-1", "key"))
	require.NoError(t, ctx.Write("job-1", "key", "v1"))
	assert.True(t, ctx.Has("job-1", "key"))
}

func TestContextKeysAreNamespacedByJob(t *testing.T) {
	ctx := NewContext()
	require.NoError(t, ctx.Write("job-1", "key", "from-job-1"))
	require.NoError(t, ctx.Write("job-2", "key", "from-job-2"))

	var a, b string
	ctx.Read("job-1", "key", &a)
	ctx.Read("job-2", "key", &b)
	assert.Equal(t, "from-job-1", a)
	assert.Equal(t, "from-job-2", b)
}
