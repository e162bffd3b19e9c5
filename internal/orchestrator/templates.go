package orchestrator

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"forge/internal/domain"
)

//go:embed templates.yaml
var builtinTemplates []byte

// PlanTemplate is a named, parameterized plan shape.
type PlanTemplate struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []TemplateStep `yaml:"steps"`
}

// TemplateStep mirrors domain.Step with {{params.*}} placeholders.
type TemplateStep struct {
	ID        string            `yaml:"id"`
	JobType   string            `yaml:"job_type"`
	DependsOn string            `yaml:"depends_on"`
	Params    map[string]string `yaml:"params"`
}

type catalogFile struct {
	Templates []PlanTemplate `yaml:"templates"`
}

// TemplateCatalog holds the available plan templates.
type TemplateCatalog struct {
	templates map[string]PlanTemplate
}

// DefaultCatalog parses the embedded template file.
func DefaultCatalog() *TemplateCatalog {
	catalog, err := parseCatalog(builtinTemplates)
	if err != nil {
		// The embedded file ships with the binary; a parse failure is a
		// build defect, not a runtime condition.
		panic(fmt.Sprintf("builtin templates: %v", err))
	}
	return catalog
}

// LoadCatalog reads a template file from disk, falling back to the embedded
// catalog when path is empty.
func LoadCatalog(path string) (*TemplateCatalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("templates: read %s: %w", path, err)
	}
	return parseCatalog(raw)
}

func parseCatalog(raw []byte) (*TemplateCatalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("templates: parse: %w", err)
	}
	catalog := &TemplateCatalog{templates: make(map[string]PlanTemplate, len(file.Templates))}
	for _, t := range file.Templates {
		if t.Name == "" {
			return nil, fmt.Errorf("templates: template without a name")
		}
		catalog.templates[t.Name] = t
	}
	return catalog, nil
}

// Names lists the available template names.
func (c *TemplateCatalog) Names() []string {
	names := make([]string, 0, len(c.templates))
	for name := range c.templates {
		names = append(names, name)
	}
	return names
}

// Instantiate builds a concrete plan from a template, substituting
// {{params.<key>}} placeholders. Step-output references are left intact for
// execution time.
func (c *TemplateCatalog) Instantiate(name string, params map[string]string) (*domain.Plan, error) {
	template, ok := c.templates[name]
	if !ok {
		return nil, fmt.Errorf("templates: %w: %q", domain.ErrNotFound, name)
	}
	plan := &domain.Plan{Goal: template.Description}
	for _, step := range template.Steps {
		resolved := make(map[string]string, len(step.Params))
		for key, value := range step.Params {
			for pk, pv := range params {
				value = strings.ReplaceAll(value, "{{params."+pk+"}}", pv)
			}
			resolved[key] = value
		}
		plan.Steps = append(plan.Steps, domain.Step{
			ID:        step.ID,
			JobType:   domain.JobType(step.JobType),
			Params:    resolved,
			DependsOn: step.DependsOn,
		})
	}
	return plan, nil
}
