package inspect

import (
	"context"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/csharp"
)

// SourceInspector treats each C# source file as a module and reads extension classes from its
// syntax tree.
type SourceInspector struct {
	lang *sitter.Language
}

func NewSourceInspector() *SourceInspector {
	return &SourceInspector{lang: csharp.GetLanguage()}
}

func (i *SourceInspector) Name() string    { return "source" }
func (i *SourceInspector) Pattern() string { return "*.cs" }

func (i *SourceInspector) Open(path string) (Module, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return i.parse(path, content)
}

func (i *SourceInspector) parse(path string, content []byte) (*sourceModule, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(i.lang)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("parsing %s: syntax error near line %d", path, firstError(root)+1)
	}

	m := &sourceModule{path: path}
	m.walk(root, content, "")
	return m, nil
}

type sourceClass struct {
	name      string
	namespace string
	base      string
	args      []string
	fields    []Field
}

type sourceModule struct {
	path    string
	classes []sourceClass
}

func (m *sourceModule) Path() string { return m.path }
func (m *sourceModule) Close() error { return nil }

func (m *sourceModule) walk(node *sitter.Node, src []byte, namespace string) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "namespace_declaration":
		if name := node.ChildByFieldName("name"); name != nil {
			namespace = joinNamespace(namespace, name.Content(src))
		}
	case "class_declaration":
		m.addClass(node, src, namespace)
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		// A file-scoped namespace applies to the declarations that follow it.
		if child.Type() == "file_scoped_namespace_declaration" {
			if name := child.ChildByFieldName("name"); name != nil {
				namespace = joinNamespace(namespace, name.Content(src))
			}
		}
		m.walk(child, src, namespace)
	}
}

func (m *sourceModule) addClass(node *sitter.Node, src []byte, namespace string) {
	c := sourceClass{namespace: namespace}
	if name := node.ChildByFieldName("name"); name != nil {
		c.name = name.Content(src)
	}

	var body *sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "base_list":
			// The first entry of a base list is the base class when there is one.
			if first := child.NamedChild(0); first != nil {
				c.base, c.args = splitGeneric(first.Content(src))
			}
		case "declaration_list":
			body = child
		}
	}

	if body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			member := body.NamedChild(i)
			if member.Type() != "property_declaration" || !hasModifier(member, src, "public") {
				continue
			}
			f := Field{AttributeKinds: attributeKinds(member, src)}
			if name := member.ChildByFieldName("name"); name != nil {
				f.Name = name.Content(src)
			}
			c.fields = append(c.fields, f)
		}
	}
	m.classes = append(m.classes, c)
}

func (m *sourceModule) ExtensionTypes(basePrefix string) ([]ExtensionType, error) {
	var out []ExtensionType
	for i, c := range m.classes {
		if c.base == "" || !strings.HasPrefix(c.base, basePrefix) {
			continue
		}
		out = append(out, ExtensionType{Name: c.name, Namespace: c.namespace, BaseName: c.base, ID: i})
	}
	return out, nil
}

func (m *sourceModule) class(t ExtensionType) (*sourceClass, error) {
	if t.ID < 0 || t.ID >= len(m.classes) || m.classes[t.ID].name != t.Name {
		return nil, fmt.Errorf("class %s not found in %s", t.Name, m.path)
	}
	return &m.classes[t.ID], nil
}

func (m *sourceModule) Fields(t ExtensionType) ([]Field, error) {
	c, err := m.class(t)
	if err != nil {
		return nil, err
	}
	return c.fields, nil
}

func (m *sourceModule) BaseGeneric(t ExtensionType) (string, error) {
	c, err := m.class(t)
	if err != nil {
		return "", err
	}
	if len(c.args) == 0 {
		return "", nil
	}
	return simpleName(c.args[len(c.args)-1]), nil
}

func hasModifier(node *sitter.Node, src []byte, want string) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "modifier" && strings.TrimSpace(child.Content(src)) == want {
			return true
		}
	}
	return false
}

// attributeKinds lists the attribute type names applied to a member, e.g. [PXDBString(50)]
// becomes PXDBStringAttribute.
func attributeKinds(node *sitter.Node, src []byte) []string {
	var kinds []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		list := node.NamedChild(i)
		if list.Type() != "attribute_list" {
			continue
		}
		for j := 0; j < int(list.NamedChildCount()); j++ {
			attr := list.NamedChild(j)
			if attr.Type() != "attribute" {
				continue
			}
			name := attr.ChildByFieldName("name")
			if name == nil {
				name = attr.NamedChild(0)
			}
			if name == nil {
				continue
			}
			kinds = append(kinds, attributeTypeName(name.Content(src)))
		}
	}
	return kinds
}

func attributeTypeName(name string) string {
	if i := strings.IndexByte(name, '<'); i >= 0 {
		name = name[:i]
	}
	name = simpleName(name)
	if !strings.HasSuffix(name, "Attribute") {
		name += "Attribute"
	}
	return name
}

// splitGeneric splits "PXCacheExtension<A, B<C>>" into its name and top-level type arguments.
func splitGeneric(text string) (string, []string) {
	text = strings.Join(strings.Fields(text), "")
	open := strings.IndexByte(text, '<')
	if open < 0 || !strings.HasSuffix(text, ">") {
		return simpleName(text), nil
	}

	var args []string
	depth, start := 0, open+1
	inner := text[:len(text)-1]
	for i := start; i < len(inner); i++ {
		switch inner[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, inner[start:i])
				start = i + 1
			}
		}
	}
	args = append(args, inner[start:])
	return simpleName(text[:open]), args
}

func joinNamespace(outer, inner string) string {
	if outer == "" {
		return inner
	}
	return outer + "." + inner
}

func firstError(node *sitter.Node) uint32 {
	if node.IsError() || node.IsMissing() {
		return node.StartPoint().Row
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.HasError() || child.IsMissing() {
			return firstError(child)
		}
	}
	return node.StartPoint().Row
}
