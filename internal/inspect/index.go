package inspect

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed index_schema.cue
var indexSchemaFS embed.FS

// IndexSuffix is appended to a module file name to name its precomputed index.
const IndexSuffix = ".index.yaml"

// Index is the precomputed description of one module.
type Index struct {
	Module string      `yaml:"module" json:"module"`
	Types  []IndexType `yaml:"types" json:"types,omitempty"`
}

type IndexType struct {
	Name        string          `yaml:"name" json:"name"`
	Namespace   string          `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Base        string          `yaml:"base" json:"base"`
	GenericArgs []string        `yaml:"generic_args,omitempty" json:"generic_args,omitempty"`
	Properties  []IndexProperty `yaml:"properties,omitempty" json:"properties,omitempty"`
}

type IndexProperty struct {
	Name       string   `yaml:"name" json:"name"`
	Private    bool     `yaml:"private,omitempty" json:"private,omitempty"`
	Attributes []string `yaml:"attributes,omitempty" json:"attributes,omitempty"`
}

// IndexInspector reads YAML module indexes, checking each against the embedded CUE schema.
type IndexInspector struct {
	ctx    *cue.Context
	schema cue.Value
}

func NewIndexInspector() (*IndexInspector, error) {
	ctx := cuecontext.New()

	src, err := indexSchemaFS.ReadFile("index_schema.cue")
	if err != nil {
		return nil, fmt.Errorf("loading embedded index schema: %w", err)
	}
	schema := ctx.CompileBytes(src)
	if schema.Err() != nil {
		return nil, fmt.Errorf("compiling index schema: %w", schema.Err())
	}
	return &IndexInspector{ctx: ctx, schema: schema}, nil
}

func (i *IndexInspector) Name() string    { return "index" }
func (i *IndexInspector) Pattern() string { return "*" + IndexSuffix }

func (i *IndexInspector) Open(path string) (Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	var idx Index
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse index %s: %w", path, err)
	}
	if err := i.Validate(&idx); err != nil {
		return nil, fmt.Errorf("index %s: %w", path, err)
	}
	return &indexModule{path: path, idx: &idx}, nil
}

// Validate checks idx against the #Index definition.
func (i *IndexInspector) Validate(idx *Index) error {
	raw, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshaling index to JSON: %w", err)
	}
	value := i.ctx.CompileBytes(raw)
	if value.Err() != nil {
		return fmt.Errorf("compiling index as CUE: %w", value.Err())
	}

	def := i.schema.LookupPath(cue.ParsePath("#Index"))
	if def.Err() != nil {
		return fmt.Errorf("looking up #Index definition: %w", def.Err())
	}
	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

type indexModule struct {
	path string
	idx  *Index
}

func (m *indexModule) Path() string { return m.path }
func (m *indexModule) Close() error { return nil }

func (m *indexModule) ExtensionTypes(basePrefix string) ([]ExtensionType, error) {
	var out []ExtensionType
	for i, t := range m.idx.Types {
		base := simpleName(t.Base)
		if !strings.HasPrefix(base, basePrefix) {
			continue
		}
		out = append(out, ExtensionType{Name: t.Name, Namespace: t.Namespace, BaseName: base, ID: i})
	}
	return out, nil
}

func (m *indexModule) lookup(t ExtensionType) (*IndexType, error) {
	if t.ID < 0 || t.ID >= len(m.idx.Types) || m.idx.Types[t.ID].Name != t.Name {
		return nil, fmt.Errorf("type %s not found in %s", t.Name, m.path)
	}
	return &m.idx.Types[t.ID], nil
}

func (m *indexModule) Fields(t ExtensionType) ([]Field, error) {
	it, err := m.lookup(t)
	if err != nil {
		return nil, err
	}
	var out []Field
	for _, p := range it.Properties {
		if p.Private {
			continue
		}
		out = append(out, Field{Name: p.Name, AttributeKinds: p.Attributes})
	}
	return out, nil
}

func (m *indexModule) BaseGeneric(t ExtensionType) (string, error) {
	it, err := m.lookup(t)
	if err != nil {
		return "", err
	}
	if len(it.GenericArgs) == 0 {
		return "", nil
	}
	return simpleName(it.GenericArgs[len(it.GenericArgs)-1]), nil
}

// BuildIndex snapshots the extension types of an opened module.
func BuildIndex(m Module, basePrefix string) (*Index, error) {
	types, err := m.ExtensionTypes(basePrefix)
	if err != nil {
		return nil, err
	}

	idx := &Index{Module: filepath.Base(m.Path()), Types: []IndexType{}}
	for _, t := range types {
		owner, err := m.BaseGeneric(t)
		if err != nil {
			return nil, err
		}
		fields, err := m.Fields(t)
		if err != nil {
			return nil, err
		}

		it := IndexType{Name: t.Name, Namespace: t.Namespace, Base: t.BaseName}
		if owner != "" {
			it.GenericArgs = []string{owner}
		}
		for _, f := range fields {
			it.Properties = append(it.Properties, IndexProperty{Name: f.Name, Attributes: f.AttributeKinds})
		}
		idx.Types = append(idx.Types, it)
	}
	return idx, nil
}

// WriteIndex encodes idx as YAML.
func WriteIndex(w io.Writer, idx *Index) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(idx); err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	return enc.Close()
}
