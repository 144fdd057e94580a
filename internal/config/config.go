package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models vibesuite.yml.
type Config struct {
	Project struct {
		ID   string `yaml:"id"`
		Kind string `yaml:"kind"`
	} `yaml:"project"`
	Scoring struct {
		// Rules keyed by activity kind; each entry carries per-size deltas.
		Rules []ScoringRuleConfig `yaml:"rules"`
	} `yaml:"scoring"`
	Quotas struct {
		// KudosDaily applies to templates without an explicit quota. -1 is
		// unlimited.
		KudosDaily int64 `yaml:"kudos_daily"`
	} `yaml:"quotas"`
	Templates []TemplateConfig `yaml:"templates"`
}

type ScoringRuleConfig struct {
	Kind            string  `yaml:"kind"`
	TaskSize        string  `yaml:"task_size"`
	Professionalism float64 `yaml:"professionalism"`
	Quality         float64 `yaml:"quality"`
	Description     string  `yaml:"description"`
}

type TemplateConfig struct {
	Name            string `yaml:"name"`
	RoleType        string `yaml:"role_type"`
	Description     string `yaml:"description"`
	Instructions    string `yaml:"instructions"`
	KudosQuotaDaily *int64 `yaml:"kudos_quota_daily"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with vibesuite config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure. At most one scoring
// rule may exist per (kind, task_size) pair; the rule table relies on that.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Project.Kind != "software-project" {
		return fmt.Errorf("config.project.kind must be 'software-project'")
	}
	seen := map[string]string{}
	for _, r := range c.Scoring.Rules {
		if r.Kind == "" {
			return fmt.Errorf("scoring rule with empty kind")
		}
		if r.TaskSize != "small" && r.TaskSize != "standard" {
			return fmt.Errorf("scoring rule %s has invalid task_size %q", r.Kind, r.TaskSize)
		}
		key := r.Kind + "|" + r.TaskSize
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("duplicate scoring rule for (%s, %s); first defined as %q", r.Kind, r.TaskSize, prev)
		}
		seen[key] = r.Description
	}
	names := map[string]bool{}
	for _, t := range c.Templates {
		if t.Name == "" {
			return fmt.Errorf("template with empty name")
		}
		if names[t.Name] {
			return fmt.Errorf("duplicate template name %s", t.Name)
		}
		names[t.Name] = true
		if t.RoleType == "" {
			return fmt.Errorf("template %s missing role_type", t.Name)
		}
	}
	return nil
}

// TemplateQuota returns the effective daily kudos quota for a template.
func (c *Config) TemplateQuota(t TemplateConfig) int64 {
	if t.KudosQuotaDaily != nil {
		return *t.KudosQuotaDaily
	}
	if c.Quotas.KudosDaily != 0 {
		return c.Quotas.KudosDaily
	}
	return -1
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "vibesuite.yml")
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	cfg.Project.ID = projectID
	cfg.Project.Kind = "software-project"
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, projectID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

const defaultTemplate = `project:
  id: %s
  kind: software-project

quotas:
  kudos_daily: 5

scoring:
  rules:
    - {kind: task_completed, task_size: standard, professionalism: 5.0, quality: 3.0, description: "Task completed"}
    - {kind: task_completed, task_size: small, professionalism: 2.0, quality: 1.0, description: "Small task completed"}
    - {kind: task_failed, task_size: standard, professionalism: -3.0, quality: -2.0, description: "Task failed"}
    - {kind: task_failed, task_size: small, professionalism: -1.0, quality: -1.0, description: "Small task failed"}
    - {kind: kudos_received, task_size: standard, professionalism: 2.0, quality: 2.0, description: "Kudos from a peer"}
    - {kind: kudos_received, task_size: small, professionalism: 1.0, quality: 1.0, description: "Kudos from a peer (small)"}
    - {kind: wtf_received, task_size: standard, professionalism: -2.0, quality: -2.0, description: "WTF from a peer"}
    - {kind: wtf_received, task_size: small, professionalism: -1.0, quality: -1.0, description: "WTF from a peer (small)"}
    - {kind: process_violation, task_size: standard, professionalism: -5.0, quality: 0.0, description: "Process violation"}
    - {kind: quality_issue, task_size: standard, professionalism: 0.0, quality: -4.0, description: "Quality issue found"}
    - {kind: peer_review, task_size: standard, professionalism: 1.0, quality: 1.0, description: "Peer review performed"}
    - {kind: delegation, task_size: standard, professionalism: 0.5, quality: 0.0, description: "Work delegated"}

templates:
  - name: Product Manager
    role_type: pm
    description: "Owns scope and priorities"
    instructions: "Keep tasks small and outcomes measurable."
  - name: Architect
    role_type: architect
    description: "Owns technical direction"
    instructions: "Prefer boring technology; document decisions."
  - name: Developer
    role_type: developer
    description: "Implements tasks"
    instructions: "Write tests with every change."
  - name: QA Engineer
    role_type: qa_engineer
    description: "Validates delivered work"
    instructions: "Reproduce before you report."
  - name: DevOps Engineer
    role_type: devops_engineer
    description: "Owns build and deploy"
    instructions: "Automate anything done twice."
  - name: Security Engineer
    role_type: security_engineer
    description: "Audits for security issues"
    instructions: "Assume hostile input everywhere."
`
