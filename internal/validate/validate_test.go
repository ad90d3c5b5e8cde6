package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImageRefRule(t *testing.T) {
	tests := []struct {
		name  string
		ref   string
		level Level
	}{
		{"empty", "", LevelCritical},
		{"malformed", ":v1", LevelCritical},
		{"untagged warns", "nginx", LevelWarning},
		{"explicit latest warns", "nginx:latest", LevelWarning},
		{"tagged is fine", "nginx:1.27", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := Validate(&Snapshot{ImageRef: tt.ref})
			if tt.level == "" {
				for _, f := range findings {
					assert.NotEqual(t, "image.reference", f.RuleID)
				}
				return
			}
			found := false
			for _, f := range findings {
				if f.RuleID == "image.reference" {
					assert.Equal(t, tt.level, f.Level)
					found = true
				}
			}
			assert.True(t, found)
		})
	}
}

func TestDuplicatePortRuleIsCritical(t *testing.T) {
	snap := &Snapshot{
		ImageRef: "app:v1",
		Ports:    []PortMapping{{ContainerPort: 8080, HostPort: 8080}, {ContainerPort: 8080, HostPort: 9090}},
	}
	findings := Validate(snap)
	assert.True(t, HasCritical(findings))
}

func TestPrivilegedPortIsWarningOnly(t *testing.T) {
	snap := &Snapshot{ImageRef: "app:v1", Ports: []PortMapping{{ContainerPort: 80, HostPort: 80}}}
	findings := Validate(snap)
	assert.False(t, HasCritical(findings))

	found := false
	for _, f := range findings {
		if f.RuleID == "ports.privileged" {
			assert.Equal(t, LevelWarning, f.Level)
			found = true
		}
	}
	assert.True(t, found)
}

func TestVolumeDestinationRule(t *testing.T) {
	tests := []struct {
		name        string
		destination string
		critical    bool
	}{
		{"relative path", "data", true},
		{"root", "/", true},
		{"etc", "/etc", true},
		{"app data is fine", "/app/data", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := &Snapshot{ImageRef: "app:v1", Volumes: []VolumeMount{{Destination: tt.destination, Named: true}}}
			findings := Validate(snap)
			assert.Equal(t, tt.critical, HasCritical(findings))
		})
	}
}

func TestBindMountSourceMustBeAbsolute(t *testing.T) {
	snap := &Snapshot{
		ImageRef: "app:v1",
		Volumes:  []VolumeMount{{Source: "relative/path", Destination: "/data", Named: false}},
	}
	findings := Validate(snap)
	assert.True(t, HasCritical(findings))
}

func TestNamedVolumeSourceIsNotChecked(t *testing.T) {
	snap := &Snapshot{
		ImageRef: "app:v1",
		Volumes:  []VolumeMount{{Source: "my-named-volume", Destination: "/data", Named: true}},
	}
	findings := Validate(snap)
	assert.False(t, HasCritical(findings))
}

func TestHasCriticalFalseOnCleanSnapshot(t *testing.T) {
	snap := &Snapshot{
		ImageRef: "ghcr.io/org/app:v1.2.3",
		Ports:    []PortMapping{{ContainerPort: 8080, HostPort: 18080}},
		Volumes:  []VolumeMount{{Destination: "/app/data", Named: true}},
	}
	assert.False(t, HasCritical(Validate(snap)))
}
