package catalog

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"complyhub/internal/modules/models"
)

// file is the on-disk catalog layout:
//
//	modules:
//	  - type: incident_management
//	    display_name: Incident Management
//	    enabled_by_default: true
//	    requires: [user_management]
//	    optional: [audit_management]
type file struct {
	Modules []fileDescriptor `yaml:"modules"`
}

// can_be_disabled defaults to true when omitted, so a forgotten key never
// pins a module.
type fileDescriptor struct {
	Type             string   `yaml:"type"`
	DisplayName      string   `yaml:"display_name"`
	Description      string   `yaml:"description,omitempty"`
	Icon             string   `yaml:"icon,omitempty"`
	DisplayOrder     int      `yaml:"display_order"`
	EnabledByDefault bool     `yaml:"enabled_by_default"`
	CanBeDisabled    *bool    `yaml:"can_be_disabled,omitempty"`
	Requires         []string `yaml:"requires,omitempty"`
	Optional         []string `yaml:"optional,omitempty"`
}

// DecodeYAML reads descriptors from r. Unknown keys are rejected. The result
// still has to go through Build.
func DecodeYAML(r io.Reader) ([]models.Descriptor, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("decode catalog: empty document")
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	out := make([]models.Descriptor, 0, len(f.Modules))
	for _, m := range f.Modules {
		canBeDisabled := true
		if m.CanBeDisabled != nil {
			canBeDisabled = *m.CanBeDisabled
		}
		out = append(out, models.Descriptor{
			Type:                 models.ModuleType(m.Type),
			DisplayName:          m.DisplayName,
			Description:          m.Description,
			Icon:                 m.Icon,
			DisplayOrder:         m.DisplayOrder,
			EnabledByDefault:     m.EnabledByDefault,
			CanBeDisabled:        canBeDisabled,
			RequiredDependencies: toTypes(m.Requires),
			OptionalDependencies: toTypes(m.Optional),
		})
	}
	return out, nil
}

// LoadFile decodes and builds a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	descriptors, err := DecodeYAML(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return Build(descriptors)
}

// Load returns the catalog at path, or the default catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Build(Default())
	}
	return LoadFile(path)
}

// EncodeYAML writes the catalog in the layout DecodeYAML reads.
func EncodeYAML(w io.Writer, c *Catalog) error {
	f := file{Modules: make([]fileDescriptor, 0, c.Len())}
	for _, d := range c.Descriptors() {
		canBeDisabled := d.CanBeDisabled
		f.Modules = append(f.Modules, fileDescriptor{
			Type:             string(d.Type),
			DisplayName:      d.DisplayName,
			Description:      d.Description,
			Icon:             d.Icon,
			DisplayOrder:     d.DisplayOrder,
			EnabledByDefault: d.EnabledByDefault,
			CanBeDisabled:    &canBeDisabled,
			Requires:         fromTypes(d.RequiredDependencies),
			Optional:         fromTypes(d.OptionalDependencies),
		})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return enc.Close()
}

func toTypes(in []string) []models.ModuleType {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.ModuleType, len(in))
	for i, s := range in {
		out[i] = models.ModuleType(s)
	}
	return out
}

func fromTypes(in []models.ModuleType) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, t := range in {
		out[i] = string(t)
	}
	return out
}
