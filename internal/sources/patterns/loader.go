package patterns

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/x402hub/paygate/internal/domain"
)

// File is the top-level structure of the protected-patterns YAML file used
// in single-tenant mode.
type File struct {
	Patterns []Entry `yaml:"patterns"`
}

// Entry is one priced path rule.
type Entry struct {
	Pattern     string `yaml:"pattern"`
	Price       string `yaml:"price"`
	Description string `yaml:"description,omitempty"`
}

// Loader handles loading and parsing of the protected-patterns file.
type Loader struct {
	filePath string
}

// NewLoader creates a new patterns loader.
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads, parses and validates the patterns file.
func (l *Loader) Load() ([]domain.RouteRule, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read patterns file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse patterns yaml: %w", err)
	}

	rules := make([]domain.RouteRule, 0, len(file.Patterns))
	for i, e := range file.Patterns {
		if err := validate(e); err != nil {
			return nil, fmt.Errorf("pattern %d: %w", i, err)
		}
		rules = append(rules, domain.RouteRule{
			Pattern:     e.Pattern,
			PriceUSD:    e.Price,
			Description: e.Description,
		})
	}

	return rules, nil
}

func validate(e Entry) error {
	if e.Pattern == "" {
		return fmt.Errorf("missing pattern")
	}
	if !strings.HasPrefix(e.Pattern, "/") {
		return fmt.Errorf("pattern %q must start with /", e.Pattern)
	}
	if e.Price == "" {
		return fmt.Errorf("pattern %q missing price", e.Pattern)
	}
	return nil
}
