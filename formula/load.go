package formula

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/compose-spec/compose-go/v2/dotenv"
	"github.com/compose-spec/compose-go/v2/template"
	"gopkg.in/yaml.v3"
)

// Formula is a loaded, interpolated and validated formula, bound to the
// registry it will brew classes from.
type Formula struct {
	Spec Spec
	reg  Registry
}

// DefaultPath returns the conventional formula location. It respects
// XDG_CONFIG_HOME, falling back to ~/.config/tonic/formula.yaml.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "tonic", "formula.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "tonic", "formula.yaml")
}

// Load reads and parses a formula file. A relative env_file resolves
// against the formula's directory.
func Load(path string, reg Registry) (*Formula, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read formula: %w", err)
	}
	f, err := parse(data, reg, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse parses formula bytes. A relative env_file resolves against the
// working directory.
func Parse(data []byte, reg Registry) (*Formula, error) {
	return parse(data, reg, ".")
}

func parse(data []byte, reg Registry, dir string) (*Formula, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse formula: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, fmt.Errorf("parse formula: empty document")
	}

	env, err := fileEnv(data, dir)
	if err != nil {
		return nil, err
	}
	if err := interpolate(&doc, env); err != nil {
		return nil, fmt.Errorf("interpolate formula: %w", err)
	}

	var spec Spec
	if err := doc.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode formula: %w", err)
	}
	spec.normalize()
	if err := spec.validate(reg); err != nil {
		return nil, err
	}
	return &Formula{Spec: spec, reg: reg}, nil
}

// fileEnv reads the env_file named by the raw document, if any. The path
// itself is taken literally, before interpolation.
func fileEnv(data []byte, dir string) (map[string]string, error) {
	var pre struct {
		EnvFile string `yaml:"env_file"`
	}
	if err := yaml.Unmarshal(data, &pre); err != nil {
		return nil, fmt.Errorf("parse formula: %w", err)
	}
	if pre.EnvFile == "" {
		return nil, nil
	}
	path := pre.EnvFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	env, err := dotenv.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse env file %s: %w", path, err)
	}
	return env, nil
}

// interpolate substitutes ${VAR} and ${VAR:-default} in every string
// scalar. The process environment wins over the env file. A plain scalar
// re-resolves its type after substitution, so an interpolated "8080"
// decodes as a number while a quoted one stays a string.
func interpolate(n *yaml.Node, env map[string]string) error {
	if n.Kind == yaml.ScalarNode {
		if n.Tag != "!!str" && n.Tag != "" {
			return nil
		}
		out, err := template.Substitute(n.Value, func(name string) (string, bool) {
			if v, ok := os.LookupEnv(name); ok {
				return v, true
			}
			v, ok := env[name]
			return v, ok
		})
		if err != nil {
			return err
		}
		if out != n.Value {
			n.Value = out
			if n.Style == 0 {
				n.Tag = ""
			}
		}
		return nil
	}
	for _, c := range n.Content {
		if err := interpolate(c, env); err != nil {
			return err
		}
	}
	return nil
}
