package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseImageRef(t *testing.T) {
	tests := []struct {
		ref          string
		wantRegistry string
		wantName     string
		wantTag      string
	}{
		{"ghcr.io/org/app:v1.0", "ghcr.io", "ghcr.io/org/app", "v1.0"},
		{"nginx:latest", "", "nginx", "latest"},
		{"localhost:5000/myapp:v2", "localhost:5000", "localhost:5000/myapp", "v2"},
		{"myregistry.io/app", "myregistry.io", "myregistry.io/app", "latest"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			registry, name, tag := parseImageRef(tt.ref)
			assert.Equal(t, tt.wantRegistry, registry)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantTag, tag)
		})
	}
}
