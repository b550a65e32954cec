package cfkit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Stackfile is a declarative description of a stack, kept next to the
// template it deploys. YAML or JSON:
//
//	name: acme-inc
//	template: acme-inc.json
//	parameters:
//	  InstanceType: t3.small
//	tags:
//	  team: platform
//	capabilities:
//	  - CAPABILITY_IAM
type Stackfile struct {
	Name             string            `yaml:"name"`
	Template         string            `yaml:"template"`
	Parameters       map[string]string `yaml:"parameters"`
	Tags             map[string]string `yaml:"tags"`
	Capabilities     []string          `yaml:"capabilities"`
	NotificationARNs []string          `yaml:"notification_arns"`
	DisableRollback  bool              `yaml:"disable_rollback"`
}

// ParseStackfile parses a stackfile from r.
func ParseStackfile(r io.Reader) (*Stackfile, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var f Stackfile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("error parsing stackfile: %v", err)
	}

	if f.Name == "" {
		return nil, fmt.Errorf("stackfile is missing a stack name")
	}

	return &f, nil
}

// LoadStackfile reads the stackfile at path and resolves it into a
// StackInput. The template path is taken relative to the stackfile itself, so
// a stackfile can be deployed from any working directory.
func LoadStackfile(path string) (StackInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return StackInput{}, err
	}
	defer f.Close()

	sf, err := ParseStackfile(f)
	if err != nil {
		return StackInput{}, fmt.Errorf("%s: %v", path, err)
	}

	in := StackInput{
		Name:             sf.Name,
		Parameters:       sf.Parameters,
		Tags:             sf.Tags,
		Capabilities:     sf.Capabilities,
		NotificationARNs: sf.NotificationARNs,
		DisableRollback:  sf.DisableRollback,
	}

	if sf.Template != "" {
		p := sf.Template
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(path), p)
		}
		in.Template, err = os.ReadFile(p)
		if err != nil {
			return StackInput{}, fmt.Errorf("error reading template %s: %v", p, err)
		}
	}

	return in, nil
}
