package dataset

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cyclopcam/trainkit/pkg/yolo"
	"gopkg.in/yaml.v3"
)

// DataConfig is the content of data.yaml, which tells the trainer where the splits are
type DataConfig struct {
	Path  string   `yaml:"path"`
	Train string   `yaml:"train"`
	Val   string   `yaml:"val"`
	Test  string   `yaml:"test,omitempty"`
	NC    int      `yaml:"nc"`
	Names []string `yaml:"names"`
}

// LoadDataYAML parses data.yaml.
// Names may be written either as a list, or as a map of ID to name.
func LoadDataYAML(filename string) (*DataConfig, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %v", ErrMissingDataYAML, filename)
		}
		return nil, err
	}
	var doc struct {
		Path  string    `yaml:"path"`
		Train string    `yaml:"train"`
		Val   string    `yaml:"val"`
		Test  string    `yaml:"test"`
		NC    int       `yaml:"nc"`
		Names yaml.Node `yaml:"names"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("Failed to parse %v: %w", filename, err)
	}
	cfg := &DataConfig{
		Path:  doc.Path,
		Train: doc.Train,
		Val:   doc.Val,
		Test:  doc.Test,
		NC:    doc.NC,
	}
	switch doc.Names.Kind {
	case 0:
	case yaml.SequenceNode:
		if err := doc.Names.Decode(&cfg.Names); err != nil {
			return nil, fmt.Errorf("Invalid names in %v: %w", filename, err)
		}
	case yaml.MappingNode:
		byID := map[int]string{}
		if err := doc.Names.Decode(&byID); err != nil {
			return nil, fmt.Errorf("Invalid names in %v: %w", filename, err)
		}
		cfg.Names = make([]string, len(byID))
		for id, name := range byID {
			if id < 0 || id >= len(byID) {
				return nil, fmt.Errorf("Class IDs in %v are not contiguous from 0", filename)
			}
			cfg.Names[id] = name
		}
	default:
		return nil, fmt.Errorf("names in %v must be a list or a map", filename)
	}
	return cfg, nil
}

// Validate checks the class count and that the referenced split folders exist.
// Relative split paths are resolved against Path, and Path is resolved against the directory holding data.yaml.
func (c *DataConfig) Validate(yamlDir string) error {
	if c.NC != 0 && c.NC != len(c.Names) {
		return fmt.Errorf("nc is %v, but there are %v names", c.NC, len(c.Names))
	}
	if err := yolo.Classes(c.Names).Validate(); err != nil {
		return err
	}
	base := c.Path
	if base == "" {
		base = yamlDir
	} else if !filepath.IsAbs(base) {
		base = filepath.Join(yamlDir, base)
	}
	for _, p := range []struct{ name, rel string }{{"train", c.Train}, {"val", c.Val}, {"test", c.Test}} {
		if p.rel == "" {
			if p.name == "test" {
				continue
			}
			return fmt.Errorf("%v is not specified", p.name)
		}
		full := p.rel
		if !filepath.IsAbs(full) {
			full = filepath.Join(base, full)
		}
		if st, err := os.Stat(full); err != nil || !st.IsDir() {
			return fmt.Errorf("%v folder %v does not exist", p.name, full)
		}
	}
	return nil
}

// NewDataConfig builds the standard data.yaml for a dataset root
func NewDataConfig(root string, classes yolo.Classes) *DataConfig {
	return &DataConfig{
		Path:  root,
		Train: filepath.ToSlash(filepath.Join(ImagesDir, string(Train))),
		Val:   filepath.ToSlash(filepath.Join(ImagesDir, string(Val))),
		Test:  filepath.ToSlash(filepath.Join(ImagesDir, string(Test))),
		NC:    len(classes),
		Names: append([]string(nil), classes...),
	}
}

// WriteDataYAML writes data.yaml. It refuses to overwrite an existing file unless overwrite is true.
func WriteDataYAML(filename string, cfg *DataConfig, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(filename); err == nil {
			return fmt.Errorf("%v already exists", filename)
		}
	}
	var b bytes.Buffer
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return os.WriteFile(filename, b.Bytes(), 0644)
}
