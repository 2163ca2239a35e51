package skills

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
	"gopkg.in/yaml.v3"

	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
)

// Manifest file names, in lookup order
const (
	JSONManifest     = "skill.json"
	YAMLManifest     = "skill.yaml"
	MarkdownManifest = "SKILL.md"
)

// DefaultEntrypoint is executed when the manifest does not name a command
const DefaultEntrypoint = "./skill"

// Manifest is the metadata a skill ships with
type Manifest struct {
	Name          string                   `json:"name" yaml:"name" mapstructure:"name" jsonschema:"description=Skill name that defaults to the install name"`
	Version       string                   `json:"version" yaml:"version" mapstructure:"version" jsonschema:"default=1.0.0"`
	Description   string                   `json:"description" yaml:"description" mapstructure:"description"`
	ExecutionMode skilltypes.ExecutionMode `json:"executionMode" yaml:"executionMode" mapstructure:"executionMode" jsonschema:"enum=on-demand,enum=scheduled,enum=triggered,default=on-demand"`
	Tier          skilltypes.Tier          `json:"tier" yaml:"tier" mapstructure:"tier" jsonschema:"enum=free,enum=cloud,default=free"`
	Schedule      string                   `json:"schedule" yaml:"schedule" mapstructure:"schedule" jsonschema:"description=Five field cron expression used by scheduled skills"`
	Trigger       *skilltypes.Trigger      `json:"trigger" yaml:"trigger" mapstructure:"trigger"`
	Command       []string                 `json:"command" yaml:"command" mapstructure:"command" jsonschema:"description=Entry point argv relative to the skill directory"`
}

// DefaultManifest is used when a skill ships no manifest
func DefaultManifest(name string) Manifest {
	return Manifest{
		Name:          name,
		Version:       "1.0.0",
		Description:   "No description provided",
		ExecutionMode: skilltypes.ModeOnDemand,
		Tier:          skilltypes.TierFree,
	}
}

// withDefaults fills unset fields from DefaultManifest
func (m Manifest) withDefaults(name string) Manifest {
	d := DefaultManifest(name)
	if m.Name == "" {
		m.Name = d.Name
	}
	if m.Version == "" {
		m.Version = d.Version
	}
	if m.Description == "" {
		m.Description = d.Description
	}
	if m.ExecutionMode == "" {
		m.ExecutionMode = d.ExecutionMode
	}
	if m.Tier == "" {
		m.Tier = d.Tier
	}
	return m
}

// Entrypoint returns the command used to invoke the skill
func (m Manifest) Entrypoint() []string {
	if len(m.Command) == 0 {
		return []string{DefaultEntrypoint}
	}
	return m.Command
}

// LoadManifest reads the manifest of the skill installed in dir. A skill
// without a manifest gets DefaultManifest(name); a manifest that cannot be
// parsed is an error.
func LoadManifest(dir, name string) (Manifest, error) {
	loaders := []struct {
		file string
		load func([]byte) (Manifest, error)
	}{
		{JSONManifest, parseJSONManifest},
		{YAMLManifest, parseYAMLManifest},
		{MarkdownManifest, parseMarkdownManifest},
	}

	for _, l := range loaders {
		content, err := os.ReadFile(filepath.Join(dir, l.file))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Manifest{}, errors.Wrapf(err, "failed to read %s", l.file)
		}
		m, err := l.load(content)
		if err != nil {
			return Manifest{}, errors.Wrapf(err, "failed to parse %s", l.file)
		}
		return m.withDefaults(name), nil
	}

	return DefaultManifest(name), nil
}

func parseJSONManifest(content []byte) (Manifest, error) {
	var m Manifest
	err := json.Unmarshal(content, &m)
	return m, err
}

func parseYAMLManifest(content []byte) (Manifest, error) {
	var m Manifest
	err := yaml.Unmarshal(content, &m)
	return m, err
}

// parseMarkdownManifest reads the YAML frontmatter of a SKILL.md file
func parseMarkdownManifest(content []byte) (Manifest, error) {
	md := goldmark.New(goldmark.WithExtensions(meta.Meta))

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return Manifest{}, errors.Wrap(err, "failed to parse markdown")
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		return Manifest{}, errors.New("missing frontmatter")
	}

	var m Manifest
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &m,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Manifest{}, errors.Wrap(err, "failed to create frontmatter decoder")
	}
	if err := decoder.Decode(metaData); err != nil {
		return Manifest{}, errors.Wrap(err, "failed to decode frontmatter")
	}
	return m, nil
}
