// Package acl implements per-tool access control: a declarative rules file,
// an email → staff resolution chain, and a TTL-cached decision engine.
package acl

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"
)

// Default policies. The rules file must spell these lowercase; mixed-case
// values are rejected at load time rather than silently normalized.
const (
	PolicyOpen = "open"
	PolicyDeny = "deny"
)

// Config is the declarative ACL rules document.
type Config struct {
	// DefaultPolicy applies to tools absent from ToolACLs: "open" or "deny".
	DefaultPolicy string `yaml:"default_policy"`

	// SuperuserACLs grant access to every tool.
	SuperuserACLs []string `yaml:"superuser_acls"`

	// PublicTools are callable without any identity at all.
	PublicTools []string `yaml:"public_tools"`

	// ToolACLs maps tool name to the ACL tags that grant it (OR semantics).
	ToolACLs map[string][]string `yaml:"tool_acls"`
}

// LoadConfig reads and validates the ACL rules file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ACL config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses ACL rules from YAML bytes.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse ACL config: %w", err)
	}

	if cfg.DefaultPolicy == "" {
		cfg.DefaultPolicy = PolicyDeny
	}
	// Lowercase only. A file saying "Deny" is a typo waiting to flip a
	// policy open, so it is an error, not a normalization.
	if cfg.DefaultPolicy != PolicyOpen && cfg.DefaultPolicy != PolicyDeny {
		return nil, fmt.Errorf("invalid default_policy %q: must be %q or %q (lowercase)",
			cfg.DefaultPolicy, PolicyOpen, PolicyDeny)
	}

	return &cfg, nil
}

// IsPublic reports whether the tool is callable without identity.
func (c *Config) IsPublic(toolName string) bool {
	for _, t := range c.PublicTools {
		if t == toolName {
			return true
		}
	}
	return false
}

// RequiredACLs returns the tag list for a tool and whether the tool is
// listed at all. An unlisted tool falls through to the default policy.
func (c *Config) RequiredACLs(toolName string) ([]string, bool) {
	tags, ok := c.ToolACLs[toolName]
	return tags, ok
}

// Fingerprint returns a stable hash of the rules for change detection in
// logs and the health endpoint. Key order in the file does not affect it.
func (c *Config) Fingerprint() string {
	var b strings.Builder
	b.WriteString("default_policy=")
	b.WriteString(c.DefaultPolicy)

	writeSorted := func(label string, values []string) {
		sorted := append([]string(nil), values...)
		sort.Strings(sorted)
		b.WriteString(";")
		b.WriteString(label)
		b.WriteString("=")
		b.WriteString(strings.Join(sorted, ","))
	}
	writeSorted("superuser_acls", c.SuperuserACLs)
	writeSorted("public_tools", c.PublicTools)

	tools := make([]string, 0, len(c.ToolACLs))
	for name := range c.ToolACLs {
		tools = append(tools, name)
	}
	sort.Strings(tools)
	for _, name := range tools {
		writeSorted("tool:"+name, c.ToolACLs[name])
	}

	return fmt.Sprintf("%016x", xxhash.Sum64String(b.String()))
}
