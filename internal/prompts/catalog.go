package prompts

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/cloo-solutions/unirank/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultCatalog []byte

// Template is one versioned system instruction.
type Template struct {
	Version      string `yaml:"version"`
	HistoryAware bool   `yaml:"history"`
	System       string `yaml:"system"`
}

// CompressionPrompt is the per-chunk extraction instruction.
type CompressionPrompt struct {
	NoOutput string `yaml:"no_output"`
	Extract  string `yaml:"extract"`
}

// Render fills the extraction prompt for one chunk.
func (c CompressionPrompt) Render(question, context string) string {
	return strings.NewReplacer(
		"{no_output}", c.NoOutput,
		"{question}", question,
		"{context}", context,
	).Replace(c.Extract)
}

// Catalog holds every prompt text the service uses.
type Catalog struct {
	NoContextMarker string            `yaml:"no_context_marker"`
	Templates       []Template        `yaml:"templates"`
	Compression     CompressionPrompt `yaml:"compression"`
	Help            string            `yaml:"help"`
	Reset           string            `yaml:"reset"`

	byVersion map[string]Template
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// MustLoad parses the embedded catalog and panics if it is malformed.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration, "invalid prompt catalog", err)
	}

	if strings.TrimSpace(c.NoContextMarker) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeConfiguration, "prompt catalog: no_context_marker is required")
	}
	if c.Compression.NoOutput == "" || !strings.Contains(c.Compression.Extract, "{context}") {
		return nil, domain.NewDomainError(domain.ErrCodeConfiguration, "prompt catalog: compression prompt needs no_output and a {context} placeholder")
	}

	c.byVersion = make(map[string]Template, len(c.Templates))
	for _, t := range c.Templates {
		if t.Version == "" || strings.TrimSpace(t.System) == "" {
			return nil, domain.NewDomainError(domain.ErrCodeConfiguration, "prompt catalog: every template needs a version and a system instruction")
		}
		if _, dup := c.byVersion[t.Version]; dup {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration, "prompt catalog: duplicate template version",
				fmt.Errorf("%q", t.Version))
		}
		c.byVersion[t.Version] = t
	}

	return &c, nil
}

// Template returns the template with the given version.
func (c *Catalog) Template(version string) (Template, error) {
	t, ok := c.byVersion[version]
	if !ok {
		return Template{}, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration, "unknown prompt version",
			fmt.Errorf("%q (available: %s)", version, strings.Join(c.Versions(), ", ")))
	}
	return t, nil
}

// Versions lists the available template versions.
func (c *Catalog) Versions() []string {
	out := make([]string, 0, len(c.byVersion))
	for v := range c.byVersion {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
