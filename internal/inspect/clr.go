package inspect

import (
	"fmt"
	"strings"

	"acuvalidator/internal/logging"

	peparser "github.com/saferwall/pe"
	pelog "github.com/saferwall/pe/log"
	"github.com/sirupsen/logrus"
)

const (
	typeAttrInterface = 0x20
	methodAccessMask  = 0x0007
	methodPublic      = 0x0006
	sigGeneric        = 0x10
	maxSigDepth       = 16
)

// Element types of ECMA-335 II.23.1.16 that carry more than a single byte.
const (
	elemPtr         = 0x0F
	elemByRef       = 0x10
	elemValueType   = 0x11
	elemClass       = 0x12
	elemVar         = 0x13
	elemArray       = 0x14
	elemGenericInst = 0x15
	elemFnPtr       = 0x1B
	elemSZArray     = 0x1D
	elemMVar        = 0x1E
	elemCModReqd    = 0x1F
	elemCModOpt     = 0x20
	elemSentinel    = 0x41
	elemPinned      = 0x45
)

var primitiveNames = map[byte]string{
	0x01: "Void", 0x02: "Boolean", 0x03: "Char", 0x04: "SByte", 0x05: "Byte",
	0x06: "Int16", 0x07: "UInt16", 0x08: "Int32", 0x09: "UInt32", 0x0A: "Int64",
	0x0B: "UInt64", 0x0C: "Single", 0x0D: "Double", 0x0E: "String",
	0x16: "TypedReference", 0x18: "IntPtr", 0x19: "UIntPtr", 0x1C: "Object",
}

// CLRInspector reads extension types directly from .NET assembly metadata. Modules are
// never executed, so framework assemblies do not need to be present.
type CLRInspector struct{}

func (i *CLRInspector) Name() string    { return "clr" }
func (i *CLRInspector) Pattern() string { return "*.dll" }

func (i *CLRInspector) Open(path string) (Module, error) {
	f, err := peparser.New(path, peOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := f.Parse(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !f.HasCLR {
		return nil, fmt.Errorf("%s: image has no CLI header (not a managed assembly)", path)
	}
	md, err := newMetadata(&f.CLR)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return newCLRModule(path, md), nil
}

// peOptions skips every data directory except the CLR header.
func peOptions() *peparser.Options {
	return &peparser.Options{
		Logger:                     peLog{entry: logging.WithComponent("clr")},
		DisableCertValidation:      true,
		DisableSignatureValidation: true,
		OmitExportDirectory:        true,
		OmitImportDirectory:        true,
		OmitExceptionDirectory:     true,
		OmitResourceDirectory:      true,
		OmitSecurityDirectory:      true,
		OmitRelocDirectory:         true,
		OmitDebugDirectory:         true,
		OmitArchitectureDirectory:  true,
		OmitGlobalPtrDirectory:     true,
		OmitTLSDirectory:           true,
		OmitLoadConfigDirectory:    true,
		OmitBoundImportDirectory:   true,
		OmitIATDirectory:           true,
		OmitDelayImportDirectory:   true,
	}
}

// peLog forwards parser diagnostics to logrus at debug level.
type peLog struct {
	entry *logrus.Entry
}

func (l peLog) Log(level pelog.Level, keyvals ...interface{}) error {
	fields := logrus.Fields{"pe_level": level.String()}
	msg := ""
	for i := 0; i+1 < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if key == pelog.DefaultMessageKey {
			msg = fmt.Sprint(keyvals[i+1])
			continue
		}
		fields[key] = keyvals[i+1]
	}
	l.entry.WithFields(fields).Debug(msg)
	return nil
}

// typeSig is a resolved type: its simple name and, for generic instances, argument names.
type typeSig struct {
	name string
	args []string
}

type clrModule struct {
	path  string
	md    *metadata
	bases map[uint32]typeSig

	indexed   bool
	props     map[uint32][]uint32 // TypeDef row -> Property rows
	accessors map[uint32][]uint32 // Property row -> MethodDef rows
	attrs     map[uint32][]string // Property row -> attribute type names
}

func newCLRModule(path string, md *metadata) *clrModule {
	return &clrModule{path: path, md: md, bases: map[uint32]typeSig{}}
}

func (c *clrModule) Path() string { return c.path }

func (c *clrModule) Close() error {
	c.md = nil
	return nil
}

func (c *clrModule) ExtensionTypes(basePrefix string) ([]ExtensionType, error) {
	md := c.md
	var out []ExtensionType
	for i, td := range md.typeDefs {
		if td.Flags&typeAttrInterface != 0 {
			continue
		}
		table, ref := decode(ciTypeDefOrRef, td.Extends)
		if ref == 0 {
			continue // <Module>, System.Object
		}

		name := md.str(td.TypeName)
		baseName, err := c.baseName(table, ref)
		if err != nil {
			return nil, fmt.Errorf("type %s: base type: %w", name, err)
		}
		if baseName == "" || !strings.HasPrefix(baseName, basePrefix) {
			continue
		}
		base, err := c.resolve(table, ref, 0)
		if err != nil {
			return nil, fmt.Errorf("type %s: base type: %w", name, err)
		}

		row := uint32(i + 1)
		c.bases[row] = base
		out = append(out, ExtensionType{
			Name:      name,
			Namespace: md.str(td.TypeNamespace),
			BaseName:  base.name,
			ID:        int(row),
		})
	}
	return out, nil
}

func (c *clrModule) BaseGeneric(t ExtensionType) (string, error) {
	base, ok := c.bases[uint32(t.ID)]
	if !ok {
		return "", fmt.Errorf("type %s was not listed as an extension type", t.Name)
	}
	if len(base.args) == 0 {
		return "", nil
	}
	return base.args[len(base.args)-1], nil
}

func (c *clrModule) Fields(t ExtensionType) ([]Field, error) {
	if !c.indexed {
		if err := c.buildIndex(); err != nil {
			return nil, err
		}
	}

	var out []Field
	for _, p := range c.props[uint32(t.ID)] {
		if !c.isPublic(p) {
			continue
		}
		out = append(out, Field{
			Name:           c.md.str(c.md.properties[p-1].Name),
			AttributeKinds: c.attrs[p],
		})
	}
	return out, nil
}

// buildIndex maps properties to their owner type, accessors and custom attributes.
func (c *clrModule) buildIndex() error {
	md := c.md
	c.props = map[uint32][]uint32{}
	c.accessors = map[uint32][]uint32{}
	c.attrs = map[uint32][]string{}

	last := uint32(len(md.properties)) + 1
	for i, pm := range md.propertyMaps {
		end := last
		if i+1 < len(md.propertyMaps) {
			end = md.propertyMaps[i+1].PropertyList
		}
		for p := pm.PropertyList; p < end && p < last; p++ {
			if p == 0 {
				return fmt.Errorf("%w: property map %d starts at row 0", errCorrupt, i+1)
			}
			c.props[pm.Parent] = append(c.props[pm.Parent], p)
		}
	}

	for _, s := range md.semantics {
		table, prop := decode(ciHasSemantics, s.Association)
		if table != peparser.Property {
			continue
		}
		c.accessors[prop] = append(c.accessors[prop], s.Method)
	}

	for i, ca := range md.attributes {
		table, prop := decode(ciHasCustomAttribute, ca.Parent)
		if table != peparser.Property {
			continue
		}
		name, err := c.attributeType(ca.Type)
		if err != nil {
			return fmt.Errorf("custom attribute %d: %w", i+1, err)
		}
		if name != "" {
			c.attrs[prop] = append(c.attrs[prop], name)
		}
	}

	c.indexed = true
	return nil
}

// isPublic mirrors reflection's GetProperties(): a property is visible when any accessor is public.
func (c *clrModule) isPublic(prop uint32) bool {
	for _, m := range c.accessors[prop] {
		if inRange(m, len(c.md.methods)) && c.md.methods[m-1].Flags&methodAccessMask == methodPublic {
			return true
		}
	}
	return false
}

// attributeType resolves the declaring type of an attribute constructor.
func (c *clrModule) attributeType(v uint32) (string, error) {
	md := c.md
	table, row := decode(ciCustomAttributeType, v)
	switch table {
	case peparser.MethodDef:
		owner := c.declaringType(row)
		if owner == 0 {
			return "", nil
		}
		return md.str(md.typeDefs[owner-1].TypeName), nil
	case peparser.MemberRef:
		if !inRange(row, len(md.memberRefs)) {
			return "", fmt.Errorf("%w: member reference %d out of range", errCorrupt, row)
		}
		parent, ref := decode(ciMemberRefParent, md.memberRefs[row-1].Class)
		switch parent {
		case peparser.TypeDef, peparser.TypeRef, peparser.TypeSpec:
			sig, err := c.resolve(parent, ref, 0)
			if err != nil {
				return "", err
			}
			return sig.name, nil
		}
	}
	return "", nil
}

// declaringType finds the TypeDef whose method list contains method.
func (c *clrModule) declaringType(method uint32) uint32 {
	defs := c.md.typeDefs
	for t := len(defs); t >= 1; t-- {
		start := defs[t-1].MethodList
		if start != 0 && start <= method {
			return uint32(t)
		}
	}
	return 0
}

// baseName names the type at row without decoding generic arguments, so that signatures of
// unrelated base types are never walked. Non-generic type specs (arrays, pointers) have no name.
func (c *clrModule) baseName(table int, row uint32) (string, error) {
	if table != peparser.TypeSpec {
		sig, err := c.resolve(table, row, 0)
		return sig.name, err
	}
	b, err := c.typeSpec(row)
	if err != nil {
		return "", err
	}
	if len(b) < 2 || b[0] != elemGenericInst {
		return "", nil
	}
	sig, _, err := c.typeDefOrRefEncoded(b[2:], 1)
	return sig.name, err
}

func (c *clrModule) typeSpec(row uint32) ([]byte, error) {
	if !inRange(row, len(c.md.typeSpecs)) {
		return nil, fmt.Errorf("%w: type spec %d out of range", errCorrupt, row)
	}
	return c.md.blob(c.md.typeSpecs[row-1].Signature)
}

// resolve names the type at row of table (TypeDef, TypeRef or TypeSpec).
func (c *clrModule) resolve(table int, row uint32, depth int) (typeSig, error) {
	md := c.md
	switch table {
	case peparser.TypeDef:
		if inRange(row, len(md.typeDefs)) {
			return typeSig{name: md.str(md.typeDefs[row-1].TypeName)}, nil
		}
	case peparser.TypeRef:
		if inRange(row, len(md.typeRefs)) {
			return typeSig{name: md.str(md.typeRefs[row-1].TypeName)}, nil
		}
	case peparser.TypeSpec:
		b, err := c.typeSpec(row)
		if err != nil {
			return typeSig{}, err
		}
		sig, _, err := c.parseTypeSig(b, depth+1)
		return sig, err
	default:
		return typeSig{}, fmt.Errorf("%w: table 0x%02x is not a type table", errCorrupt, table)
	}
	return typeSig{}, fmt.Errorf("%w: type row %d out of range", errCorrupt, row)
}

// parseTypeSig decodes one Type signature item, returning it and the bytes consumed.
func (c *clrModule) parseTypeSig(b []byte, depth int) (typeSig, int, error) {
	if depth > maxSigDepth {
		return typeSig{}, 0, fmt.Errorf("%w: signature nesting too deep", errCorrupt)
	}
	if len(b) == 0 {
		return typeSig{}, 0, fmt.Errorf("%w: empty signature", errCorrupt)
	}

	et := b[0]
	if name, ok := primitiveNames[et]; ok {
		return typeSig{name: name}, 1, nil
	}

	switch et {
	case elemValueType, elemClass:
		sig, n, err := c.typeDefOrRefEncoded(b[1:], depth)
		return sig, 1 + n, err

	case elemGenericInst:
		if len(b) < 2 || (b[1] != elemValueType && b[1] != elemClass) {
			return typeSig{}, 0, fmt.Errorf("%w: malformed generic instance", errCorrupt)
		}
		gen, n, err := c.typeDefOrRefEncoded(b[2:], depth)
		if err != nil {
			return typeSig{}, 0, err
		}
		off := 2 + n
		count, n, err := uncompress(b[off:])
		if err != nil {
			return typeSig{}, 0, err
		}
		off += n
		gen.args = nil
		for i := uint32(0); i < count; i++ {
			arg, used, err := c.parseTypeSig(b[off:], depth+1)
			if err != nil {
				return typeSig{}, 0, err
			}
			gen.args = append(gen.args, arg.name)
			off += used
		}
		return gen, off, nil

	case elemVar, elemMVar:
		num, n, err := uncompress(b[1:])
		if err != nil {
			return typeSig{}, 0, err
		}
		prefix := "!"
		if et == elemMVar {
			prefix = "!!"
		}
		return typeSig{name: fmt.Sprintf("%s%d", prefix, num)}, 1 + n, nil

	case elemPtr, elemByRef, elemSZArray:
		inner, n, err := c.parseTypeSig(b[1:], depth+1)
		if err != nil {
			return typeSig{}, 0, err
		}
		suffix := map[byte]string{elemPtr: "*", elemByRef: "&", elemSZArray: "[]"}[et]
		return typeSig{name: inner.name + suffix}, 1 + n, nil

	case elemArray:
		return c.parseArray(b, depth)

	case elemFnPtr:
		n, err := c.skipMethodSig(b[1:], depth+1)
		if err != nil {
			return typeSig{}, 0, err
		}
		return typeSig{name: "method*"}, 1 + n, nil

	case elemCModReqd, elemCModOpt:
		_, n, err := uncompress(b[1:])
		if err != nil {
			return typeSig{}, 0, err
		}
		inner, m, err := c.parseTypeSig(b[1+n:], depth+1)
		return inner, 1 + n + m, err

	case elemPinned:
		inner, n, err := c.parseTypeSig(b[1:], depth+1)
		return inner, 1 + n, err
	}

	return typeSig{}, 0, fmt.Errorf("%w: unsupported element type 0x%02x", errCorrupt, et)
}

// parseArray decodes ARRAY Type ArrayShape, where ArrayShape is
// Rank NumSizes Size* NumLoBounds LoBound*.
func (c *clrModule) parseArray(b []byte, depth int) (typeSig, int, error) {
	inner, n, err := c.parseTypeSig(b[1:], depth+1)
	if err != nil {
		return typeSig{}, 0, err
	}
	off := 1 + n
	rank, n, err := uncompress(b[off:])
	if err != nil {
		return typeSig{}, 0, err
	}
	off += n

	for list := 0; list < 2; list++ { // sizes, then lower bounds
		count, n, err := uncompress(b[off:])
		if err != nil {
			return typeSig{}, 0, err
		}
		off += n
		for i := uint32(0); i < count; i++ {
			_, n, err := uncompress(b[off:])
			if err != nil {
				return typeSig{}, 0, err
			}
			off += n
		}
	}

	commas := ""
	if rank > 1 {
		commas = strings.Repeat(",", int(rank-1))
	}
	return typeSig{name: inner.name + "[" + commas + "]"}, off, nil
}

// skipMethodSig walks a MethodDefSig or MethodRefSig (the body of FNPTR) and returns its length.
func (c *clrModule) skipMethodSig(b []byte, depth int) (int, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("%w: truncated method signature", errCorrupt)
	}
	off := 1
	if b[0]&sigGeneric != 0 {
		_, n, err := uncompress(b[off:])
		if err != nil {
			return 0, err
		}
		off += n
	}
	params, n, err := uncompress(b[off:])
	if err != nil {
		return 0, err
	}
	off += n

	for i := uint32(0); i <= params; i++ { // return type, then each parameter
		if off < len(b) && b[off] == elemSentinel {
			off++
		}
		_, n, err := c.parseTypeSig(b[off:], depth)
		if err != nil {
			return 0, err
		}
		off += n
	}
	return off, nil
}

func (c *clrModule) typeDefOrRefEncoded(b []byte, depth int) (typeSig, int, error) {
	v, n, err := uncompress(b)
	if err != nil {
		return typeSig{}, 0, err
	}
	table, row := decode(ciTypeDefOrRef, v)
	sig, err := c.resolve(table, row, depth)
	return sig, n, err
}
