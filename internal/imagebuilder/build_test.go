package imagebuilder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/temps/internal/preset"
)

func TestBuildRejectsUndetectedPreset(t *testing.T) {
	b := NewBuilder(nil)
	det := &preset.Detection{Kind: preset.KindNone}

	_, err := b.Build(context.Background(), t.TempDir(), det, "app:v1", nil)
	assert.Error(t, err, "a workspace with no detected preset must fail before touching the runtime or nerdctl")
}
