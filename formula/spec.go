// Package formula bootstraps a process from a YAML file: which catalysts to
// run, which classes to brew on them, with what parameters. Classes are Go
// values, so a formula can only brew what the binary linked in and named in
// its Registry.
package formula

import (
	"fmt"

	"tonic"
	"tonic/internal/logging"
)

// Registry maps formula class names to class values.
type Registry map[string]*tonic.Class

// Catalyst start policies accepted in formula files.
const (
	PolicyInline = "inline"
	PolicySpawn  = "spawn"
)

// Spec is the parsed shape of a formula file, after interpolation.
type Spec struct {
	Process   string         `yaml:"process"`
	LogLevel  string         `yaml:"log_level"`
	EnvFile   string         `yaml:"env_file"`
	Catalysts []CatalystSpec `yaml:"catalysts"`
	Brews     []BrewSpec     `yaml:"brews"`
}

// CatalystSpec declares one execution engine. Policy defaults to inline; a
// formula runs at most one inline catalyst.
type CatalystSpec struct {
	Name   string `yaml:"name"`
	Policy string `yaml:"policy"`
}

// BrewSpec declares one top-level instance. Catalyst defaults to the first
// declared catalyst; the reserved param "name" overrides the instance name.
type BrewSpec struct {
	Class    string         `yaml:"class"`
	Catalyst string         `yaml:"catalyst"`
	Params   map[string]any `yaml:"params"`
}

// normalize fills defaults in place. A formula with no catalysts section
// gets a single inline "main".
func (s *Spec) normalize() {
	if s.Process == "" {
		s.Process = "tonic"
	}
	if len(s.Catalysts) == 0 {
		s.Catalysts = []CatalystSpec{{Name: "main", Policy: PolicyInline}}
	}
	for i := range s.Catalysts {
		if s.Catalysts[i].Policy == "" {
			s.Catalysts[i].Policy = PolicyInline
		}
	}
	for i := range s.Brews {
		if s.Brews[i].Catalyst == "" {
			s.Brews[i].Catalyst = s.Catalysts[0].Name
		}
	}
}

// validate rejects structural mistakes before anything is built.
func (s *Spec) validate(reg Registry) error {
	if _, err := logging.ParseLevel(s.LogLevel); err != nil {
		return fmt.Errorf("formula: %w", err)
	}
	names := make(map[string]struct{}, len(s.Catalysts))
	inline := ""
	for _, c := range s.Catalysts {
		if c.Name == "" {
			return fmt.Errorf("formula: unnamed catalyst")
		}
		if _, dup := names[c.Name]; dup {
			return fmt.Errorf("formula: duplicate catalyst %q", c.Name)
		}
		names[c.Name] = struct{}{}
		switch c.Policy {
		case PolicyInline:
			if inline != "" {
				return fmt.Errorf("formula: catalysts %q and %q both inline", inline, c.Name)
			}
			inline = c.Name
		case PolicySpawn:
		default:
			return fmt.Errorf("formula: catalyst %q: unknown policy %q", c.Name, c.Policy)
		}
	}
	if len(s.Brews) == 0 {
		return fmt.Errorf("formula: no brews declared")
	}
	inlineHosted := false
	for i, b := range s.Brews {
		if b.Class == "" {
			return fmt.Errorf("formula: brew %d: missing class", i)
		}
		if _, ok := reg[b.Class]; !ok {
			return fmt.Errorf("formula: brew %d: unknown class %q", i, b.Class)
		}
		if _, ok := names[b.Catalyst]; !ok {
			return fmt.Errorf("formula: brew %d: unknown catalyst %q", i, b.Catalyst)
		}
		if b.Catalyst == inline {
			inlineHosted = true
		}
	}
	// An inline catalyst with nothing on it would block the caller forever.
	if inline != "" && !inlineHosted {
		return fmt.Errorf("formula: inline catalyst %q hosts no brews", inline)
	}
	return nil
}
