package policy

import (
	"fmt"
	"path"
	"strings"

	"github.com/edgeopslabs/probe/pkg/config"
)

type Decision int

const (
	Allow Decision = iota
	Deny
	Confirm
)

func (d Decision) String() string {
	switch d {
	case Deny:
		return "denied"
	case Confirm:
		return "confirm"
	default:
		return "allowed"
	}
}

func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Decision) UnmarshalText(text []byte) error {
	switch string(text) {
	case "allowed":
		*d = Allow
	case "denied":
		*d = Deny
	case "confirm":
		*d = Confirm
	default:
		return fmt.Errorf("unknown policy decision %q", text)
	}
	return nil
}

type Policy struct {
	cfg config.PolicyConfig
}

func New(cfg config.PolicyConfig) *Policy {
	return &Policy{cfg: cfg}
}

// Evaluate decides how a host should treat a discovered tool. Patterns match
// either the bare tool name or "provider/tool".
func (p *Policy) Evaluate(provider, tool string) Decision {
	if p.cfg.SafeMode && isSensitiveTool(tool) {
		return Deny
	}

	if matchesAny(p.cfg.DenyProviders, provider) || matchesAnyTool(p.cfg.DenyTools, provider, tool) {
		return Deny
	}

	if hasAllowList(p.cfg) && !matchesAny(p.cfg.AllowProviders, provider) && !matchesAnyTool(p.cfg.AllowTools, provider, tool) {
		return Deny
	}

	if matchesAnyTool(p.cfg.ConfirmTools, provider, tool) {
		return Confirm
	}

	return Allow
}

func hasAllowList(cfg config.PolicyConfig) bool {
	return len(cfg.AllowProviders) > 0 || len(cfg.AllowTools) > 0
}

func matchesAny(patterns []string, value string) bool {
	for _, pattern := range patterns {
		if matched, _ := path.Match(pattern, value); matched {
			return true
		}
	}
	return false
}

func matchesAnyTool(patterns []string, provider, tool string) bool {
	qualified := provider + "/" + tool
	for _, pattern := range patterns {
		if matched, _ := path.Match(pattern, tool); matched {
			return true
		}
		if matched, _ := path.Match(pattern, qualified); matched {
			return true
		}
	}
	return false
}

func isSensitiveTool(tool string) bool {
	lower := strings.ToLower(tool)
	sensitive := []string{"delete", "remove", "update", "write", "create", "exec", "apply", "patch", "move"}
	for _, keyword := range sensitive {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
