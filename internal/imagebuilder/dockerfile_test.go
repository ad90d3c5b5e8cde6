package imagebuilder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/temps/internal/preset"
)

func TestGenerateDockerfileViteUsesNginxRuntime(t *testing.T) {
	det := &preset.Detection{Kind: preset.KindVite, PackageManager: preset.PackageManagerPNPM}
	df, err := GenerateDockerfile(det, nil)
	require.NoError(t, err)

	assert.True(t, df.UseBuildKit)
	assert.Contains(t, df.Content, "nginx:1.27-alpine")
	assert.Contains(t, df.Content, "corepack enable pnpm")
	assert.NotContains(t, df.Content, "distroless/nodejs")
}

func TestGenerateDockerfileNextJSUsesDistrolessRuntime(t *testing.T) {
	det := &preset.Detection{Kind: preset.KindNextJS, PackageManager: preset.PackageManagerNPM}
	df, err := GenerateDockerfile(det, nil)
	require.NoError(t, err)

	assert.Contains(t, df.Content, "distroless/nodejs20")
	assert.Contains(t, df.Content, "npm ci")
	assert.NotContains(t, df.Content, "nginx")
}

func TestGenerateDockerfileInstallCommandPerPackageManager(t *testing.T) {
	tests := []struct {
		pm   preset.PackageManager
		want string
	}{
		{preset.PackageManagerPNPM, "pnpm install"},
		{preset.PackageManagerYarn, "yarn install"},
		{preset.PackageManagerBun, "bun install"},
		{preset.PackageManagerNPM, "npm ci"},
	}
	for _, tt := range tests {
		det := &preset.Detection{Kind: preset.KindVite, PackageManager: tt.pm}
		df, err := GenerateDockerfile(det, nil)
		require.NoError(t, err)
		assert.True(t, strings.Contains(df.Content, tt.want), "expected %q in dockerfile for %s", tt.want, tt.pm)
	}
}

func TestGenerateDockerfileGo(t *testing.T) {
	det := &preset.Detection{Kind: preset.KindGo}
	df, err := GenerateDockerfile(det, map[string]string{"VERSION": "1.0"})
	require.NoError(t, err)
	assert.False(t, df.UseBuildKit)
	assert.Contains(t, df.Content, "golang:1.23")
	assert.Contains(t, df.Content, "distroless/static")
	assert.Equal(t, "1.0", df.BuildArgs["VERSION"])
}

func TestGenerateDockerfileRust(t *testing.T) {
	det := &preset.Detection{Kind: preset.KindRust}
	df, err := GenerateDockerfile(det, nil)
	require.NoError(t, err)
	assert.Contains(t, df.Content, "cargo build --release")
}

func TestGenerateDockerfilePython(t *testing.T) {
	det := &preset.Detection{Kind: preset.KindPython}
	df, err := GenerateDockerfile(det, nil)
	require.NoError(t, err)
	assert.Contains(t, df.Content, "pip install")
}

func TestGenerateDockerfileUnsupportedKindErrors(t *testing.T) {
	det := &preset.Detection{Kind: preset.KindNixpacks}
	_, err := GenerateDockerfile(det, nil)
	assert.Error(t, err)
}
