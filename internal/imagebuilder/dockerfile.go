// Package imagebuilder is the Image Builder (spec §4.3): Dockerfile
// generation per preset and the build/pull/import/extract/list/remove
// operation set; builds shell out to the containerd-native `nerdctl` CLI,
// the same os/exec idiom internal/git and internal/runtime use.
package imagebuilder

import (
	"fmt"
	"strings"

	"github.com/cuemby/temps/internal/preset"
)

// Dockerfile is the output of generating a build for one preset: content
// plus any extra --build-arg pairs the build step must pass.
type Dockerfile struct {
	Content    string
	BuildArgs  map[string]string
	UseBuildKit bool
}

// GenerateDockerfile returns the Dockerfile content for det, honoring the
// node-multi-stage / distroless-or-nginx-runtime rules of spec §4.3.
func GenerateDockerfile(det *preset.Detection, buildArgs map[string]string) (*Dockerfile, error) {
	switch det.Kind {
	case preset.KindNextJS, preset.KindVite, preset.KindAstro:
		return generateNodeDockerfile(det, buildArgs)
	case preset.KindGo:
		return generateGoDockerfile(buildArgs), nil
	case preset.KindRust:
		return generateRustDockerfile(buildArgs), nil
	case preset.KindPython:
		return generatePythonDockerfile(buildArgs), nil
	default:
		return nil, fmt.Errorf("no Dockerfile generator for preset %q", det.Kind)
	}
}

func installCommand(pm preset.PackageManager) string {
	switch pm {
	case preset.PackageManagerPNPM:
		return "corepack enable pnpm && pnpm install --frozen-lockfile"
	case preset.PackageManagerYarn:
		return "corepack enable yarn && yarn install --frozen-lockfile"
	case preset.PackageManagerBun:
		return "npm install -g bun && bun install --frozen-lockfile"
	default:
		return "npm ci"
	}
}

// isStaticOutput reports whether k runs on nginx with a hardened runtime stage;
// server presets run on gcr.io/distroless/nodejs.
func isStaticOutput(k preset.Kind) bool {
	return k == preset.KindVite || k == preset.KindAstro
}

// generateNodeDockerfile produces a multi-stage build: a package-manager
// aware build stage, then either an nginx static runtime stage (hardened:
// non-root, no package manager binaries) or a distroless node runtime
// stage (spec §4.3).
func generateNodeDockerfile(det *preset.Detection, buildArgs map[string]string) (*Dockerfile, error) {
	install := installCommand(det.PackageManager)

	var b strings.Builder
	fmt.Fprintf(&b, "FROM node:20-slim AS build\n")
	fmt.Fprintf(&b, "WORKDIR /app\n")
	fmt.Fprintf(&b, "COPY . .\n")
	fmt.Fprintf(&b, "RUN %s\n", install)
	fmt.Fprintf(&b, "RUN npm run build\n")

	if isStaticOutput(det.Kind) {
		fmt.Fprintf(&b, "\nFROM nginx:1.27-alpine AS runtime\n")
		fmt.Fprintf(&b, "RUN rm -rf /usr/share/nginx/html/* /sbin/apk /etc/apk /lib/apk /usr/share/apk && adduser -D -H -u 10001 app\n")
		fmt.Fprintf(&b, "COPY --from=build /app/dist /usr/share/nginx/html\n")
		fmt.Fprintf(&b, "USER app\n")
		fmt.Fprintf(&b, "EXPOSE 80\n")
	} else {
		fmt.Fprintf(&b, "\nFROM gcr.io/distroless/nodejs20 AS runtime\n")
		fmt.Fprintf(&b, "WORKDIR /app\n")
		fmt.Fprintf(&b, "COPY --from=build /app /app\n")
		fmt.Fprintf(&b, "USER nonroot\n")
		fmt.Fprintf(&b, "EXPOSE 3000\n")
		fmt.Fprintf(&b, "CMD [\"server.js\"]\n")
	}

	return &Dockerfile{Content: b.String(), BuildArgs: buildArgs, UseBuildKit: true}, nil
}

func generateGoDockerfile(buildArgs map[string]string) *Dockerfile {
	content := "" +
		"FROM golang:1.23 AS build\n" +
		"WORKDIR /app\n" +
		"COPY . .\n" +
		"RUN CGO_ENABLED=0 go build -o /out/app ./...\n" +
		"\n" +
		"FROM gcr.io/distroless/static AS runtime\n" +
		"COPY --from=build /out/app /app\n" +
		"USER nonroot\n" +
		"ENTRYPOINT [\"/app\"]\n"
	return &Dockerfile{Content: content, BuildArgs: buildArgs, UseBuildKit: false}
}

func generateRustDockerfile(buildArgs map[string]string) *Dockerfile {
	content := "" +
		"FROM rust:1.80 AS build\n" +
		"WORKDIR /app\n" +
		"COPY . .\n" +
		"RUN cargo build --release\n" +
		"\n" +
		"FROM gcr.io/distroless/cc AS runtime\n" +
		"COPY --from=build /app/target/release/app /app\n" +
		"USER nonroot\n" +
		"ENTRYPOINT [\"/app\"]\n"
	return &Dockerfile{Content: content, BuildArgs: buildArgs, UseBuildKit: false}
}

func generatePythonDockerfile(buildArgs map[string]string) *Dockerfile {
	content := "" +
		"FROM python:3.12-slim AS runtime\n" +
		"WORKDIR /app\n" +
		"COPY . .\n" +
		"RUN pip install --no-cache-dir -r requirements.txt\n" +
		"USER nobody\n" +
		"CMD [\"python\", \"main.py\"]\n"
	return &Dockerfile{Content: content, BuildArgs: buildArgs, UseBuildKit: false}
}
