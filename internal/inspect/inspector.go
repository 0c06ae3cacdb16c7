// Package inspect enumerates extension types and their properties in customization modules.
package inspect

import (
	"fmt"
	"strings"
)

// ExtensionType is a module-defined type whose immediate base matched the extension prefix.
type ExtensionType struct {
	Name      string
	Namespace string
	BaseName  string
	ID        int // inspector-specific handle
}

// Field is an exposed property together with the type names of its attributes.
type Field struct {
	Name           string
	AttributeKinds []string
}

// HasAttribute reports whether any attribute kind is listed in kinds.
func (f Field) HasAttribute(kinds []string) bool {
	for _, a := range f.AttributeKinds {
		for _, k := range kinds {
			if a == k {
				return true
			}
		}
	}
	return false
}

// Inspector opens modules of one physical format.
type Inspector interface {
	Name() string
	// Pattern is the glob matched against module file names.
	Pattern() string
	Open(path string) (Module, error)
}

// Module is an opened module.
type Module interface {
	Path() string
	ExtensionTypes(basePrefix string) ([]ExtensionType, error)
	Fields(t ExtensionType) ([]Field, error)
	// BaseGeneric resolves the entity extended by t (the last generic argument of its base).
	BaseGeneric(t ExtensionType) (string, error)
	Close() error
}

// GetInspector returns the inspector registered under kind ("clr", "index" or "source").
func GetInspector(kind string) (Inspector, error) {
	switch strings.ToLower(kind) {
	case "", "clr":
		return &CLRInspector{}, nil
	case "index":
		return NewIndexInspector()
	case "source":
		return NewSourceInspector(), nil
	default:
		return nil, fmt.Errorf("unknown inspector %q (expected clr, index or source)", kind)
	}
}

// Ensure interface implementation
var _ Inspector = (*CLRInspector)(nil)
var _ Inspector = (*IndexInspector)(nil)
var _ Inspector = (*SourceInspector)(nil)

// simpleName strips namespace qualifiers from a type name.
func simpleName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, ".+:"); i >= 0 {
		return name[i+1:]
	}
	return name
}
