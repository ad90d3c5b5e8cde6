// Package validate is Import Validation (spec §4.9): a rule set that
// classifies findings against an externally-authored workload snapshot as
// critical, warning, or info before it enters a deployment plan.
package validate

import (
	"fmt"
	"strings"
)

// Level is the severity of a Finding.
type Level string

const (
	LevelCritical Level = "critical"
	LevelWarning  Level = "warning"
	LevelInfo     Level = "info"
)

// Finding is the result of one rule against one resource.
type Finding struct {
	RuleID      string
	Level       Level
	Message     string
	Remediation string
}

// PortMapping is one container_port/host_port pair to validate.
type PortMapping struct {
	ContainerPort int
	HostPort      int
}

// VolumeMount is one volume mapping to validate.
type VolumeMount struct {
	Source      string // bind-mount source path, empty for named volumes
	Destination string
	Named       bool
}

// Snapshot is the externally-authored workload description being imported.
type Snapshot struct {
	ImageRef string
	Ports    []PortMapping
	Volumes  []VolumeMount
}

// criticalDestinations are volume destinations that would clobber the
// container's own filesystem root structure (spec §4.9).
var criticalDestinations = map[string]bool{
	"/": true, "/bin": true, "/etc": true, "/lib": true, "/proc": true,
	"/root": true, "/sbin": true, "/sys": true, "/usr": true, "/boot": true, "/dev": true,
}

// Rule is one independent validation check.
type Rule interface {
	ID() string
	Validate(snapshot *Snapshot) []Finding
}

// AllRules returns the fixed rule set spec §4.9 names.
func AllRules() []Rule {
	return []Rule{
		imageRefRule{},
		duplicatePortRule{},
		privilegedPortRule{},
		volumeDestinationRule{},
		bindMountSourceRule{},
	}
}

// Validate runs every rule against snapshot and returns all findings.
func Validate(snapshot *Snapshot) []Finding {
	var findings []Finding
	for _, rule := range AllRules() {
		findings = append(findings, rule.Validate(snapshot)...)
	}
	return findings
}

// HasCritical reports whether any finding is Critical; a plan with any
// critical finding must be refused (spec §4.9).
func HasCritical(findings []Finding) bool {
	for _, f := range findings {
		if f.Level == LevelCritical {
			return true
		}
	}
	return false
}

type imageRefRule struct{}

func (imageRefRule) ID() string { return "image.reference" }

func (imageRefRule) Validate(s *Snapshot) []Finding {
	if s.ImageRef == "" {
		return []Finding{{RuleID: "image.reference", Level: LevelCritical, Message: "no image reference specified"}}
	}

	parts := strings.SplitN(s.ImageRef, ":", 2)
	if parts[0] == "" {
		return []Finding{{RuleID: "image.reference", Level: LevelCritical, Message: fmt.Sprintf("malformed image reference %q", s.ImageRef)}}
	}

	if len(parts) == 1 || parts[len(parts)-1] == "latest" {
		return []Finding{{
			RuleID: "image.reference", Level: LevelWarning,
			Message:     fmt.Sprintf("image %q has no explicit tag or uses 'latest'", s.ImageRef),
			Remediation: "specify an explicit version tag for reproducible deployments",
		}}
	}

	return nil
}

type duplicatePortRule struct{}

func (duplicatePortRule) ID() string { return "ports.duplicate" }

func (duplicatePortRule) Validate(s *Snapshot) []Finding {
	seen := map[int]bool{}
	var findings []Finding
	for _, p := range s.Ports {
		if seen[p.ContainerPort] {
			findings = append(findings, Finding{
				RuleID: "ports.duplicate", Level: LevelCritical,
				Message: fmt.Sprintf("duplicate container_port %d", p.ContainerPort),
			})
			continue
		}
		seen[p.ContainerPort] = true
	}
	return findings
}

type privilegedPortRule struct{}

func (privilegedPortRule) ID() string { return "ports.privileged" }

func (privilegedPortRule) Validate(s *Snapshot) []Finding {
	var findings []Finding
	for _, p := range s.Ports {
		if p.HostPort > 0 && p.HostPort < 1024 {
			findings = append(findings, Finding{
				RuleID: "ports.privileged", Level: LevelWarning,
				Message:     fmt.Sprintf("host port %d is a privileged port (<1024)", p.HostPort),
				Remediation: "prefer an unprivileged host port and route via the edge proxy",
			})
		}
	}
	return findings
}

type volumeDestinationRule struct{}

func (volumeDestinationRule) ID() string { return "volumes.destination" }

func (volumeDestinationRule) Validate(s *Snapshot) []Finding {
	var findings []Finding
	for _, v := range s.Volumes {
		if !strings.HasPrefix(v.Destination, "/") {
			findings = append(findings, Finding{
				RuleID: "volumes.destination", Level: LevelCritical,
				Message: fmt.Sprintf("volume destination %q is not an absolute path", v.Destination),
			})
			continue
		}
		dest := strings.TrimRight(v.Destination, "/")
		if dest == "" {
			dest = "/"
		}
		if criticalDestinations[dest] {
			findings = append(findings, Finding{
				RuleID: "volumes.destination", Level: LevelCritical,
				Message: fmt.Sprintf("volume destination %q would overwrite a critical system path", v.Destination),
			})
		}
	}
	return findings
}

type bindMountSourceRule struct{}

func (bindMountSourceRule) ID() string { return "volumes.bind_source" }

func (bindMountSourceRule) Validate(s *Snapshot) []Finding {
	var findings []Finding
	for _, v := range s.Volumes {
		if v.Named || v.Source == "" {
			continue
		}
		if !strings.HasPrefix(v.Source, "/") {
			findings = append(findings, Finding{
				RuleID: "volumes.bind_source", Level: LevelCritical,
				Message: fmt.Sprintf("bind-mount source %q is not an absolute path", v.Source),
			})
		}
	}
	return findings
}
