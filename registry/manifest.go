package registry

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/types"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from Go duration syntax
// ("200ms", "2m30s") in YAML manifests.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// SuiteOverride adjusts one declared suite from the manifest, addressed by
// its slash-joined path.
type SuiteOverride struct {
	Timeout Duration `yaml:"timeout,omitempty"`
	Skip    bool     `yaml:"skip,omitempty"`
}

// Manifest is the optional YAML run configuration. Flag values win over
// manifest values; the manifest only fills what the command line left
// unset.
type Manifest struct {
	Concurrency    string                   `yaml:"concurrency,omitempty"`
	MaxConcurrent  uint                     `yaml:"max_concurrent,omitempty"`
	Workers        uint                     `yaml:"workers,omitempty"`
	Timeout        Duration                 `yaml:"timeout,omitempty"`
	Bail           *bool                    `yaml:"bail,omitempty"`
	Filter         string                   `yaml:"filter,omitempty"`
	AllowExtension *bool                    `yaml:"allow_extension,omitempty"`
	MaxExtension   Duration                 `yaml:"max_extension,omitempty"`
	Suites         map[string]SuiteOverride `yaml:"suites,omitempty"`
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest file: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest file: %w", err)
	}
	return &m, nil
}

// ApplyManifest applies the manifest's per-suite overrides to the declared
// tree. Unknown suite paths are an error: a typo in the manifest should
// fail the run, not silently configure nothing.
func (r *Registry) ApplyManifest(m *Manifest) error {
	if m == nil || len(m.Suites) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeOpen()

	byPath := make(map[string]func(SuiteOverride))
	for _, root := range r.roots {
		indexSuites(root, byPath)
	}

	for path, override := range m.Suites {
		apply, ok := byPath[path]
		if !ok {
			return fmt.Errorf("manifest references unknown suite %q", path)
		}
		apply(override)
		r.log.Debug("Applied suite override", "suite", path, "timeout", override.Timeout.Std(), "skip", override.Skip)
	}
	return nil
}

func indexSuites(s *types.Suite, byPath map[string]func(SuiteOverride)) {
	byPath[s.Path()] = func(o SuiteOverride) {
		if o.Timeout.Std() > 0 {
			s.Timeout = o.Timeout.Std()
		}
		if o.Skip {
			s.Skip = true
		}
	}
	for _, child := range s.Suites {
		indexSuites(child, byPath)
	}
}
