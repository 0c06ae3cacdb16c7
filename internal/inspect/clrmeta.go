package inspect

import (
	"bytes"
	"errors"
	"fmt"

	peparser "github.com/saferwall/pe"
)

// ---------------------------------------------------------------------
// CLI metadata tables and heaps
// ---------------------------------------------------------------------

var errCorrupt = errors.New("corrupt CLI metadata")

const unused = -1

// codedIndex describes a coded index: tag width and the tables selected by each tag.
type codedIndex struct {
	bits   uint
	tables []int
}

var (
	ciTypeDefOrRef       = codedIndex{2, []int{peparser.TypeDef, peparser.TypeRef, peparser.TypeSpec}}
	ciHasCustomAttribute = codedIndex{5, []int{
		peparser.MethodDef, peparser.Field, peparser.TypeRef, peparser.TypeDef, peparser.Param,
		peparser.InterfaceImpl, peparser.MemberRef, peparser.Module, peparser.DeclSecurity,
		peparser.Property, peparser.Event, peparser.StandAloneSig, peparser.ModuleRef,
		peparser.TypeSpec, peparser.Assembly, peparser.AssemblyRef, peparser.FileMD,
		peparser.ExportedType, peparser.ManifestResource, peparser.GenericParam,
		peparser.GenericParamConstraint, peparser.MethodSpec,
	}}
	ciMemberRefParent     = codedIndex{3, []int{peparser.TypeDef, peparser.TypeRef, peparser.ModuleRef, peparser.MethodDef, peparser.TypeSpec}}
	ciHasSemantics        = codedIndex{1, []int{peparser.Event, peparser.Property}}
	ciCustomAttributeType = codedIndex{3, []int{unused, unused, peparser.MethodDef, peparser.MemberRef, unused}}
)

// metadata holds the tables the inspector reads plus copies of the heaps they refer to.
// Rows are 1-based in every index, so row r lives at slice position r-1.
type metadata struct {
	strings []byte
	blobs   []byte

	typeRefs     []peparser.TypeRefTableRow
	typeDefs     []peparser.TypeDefTableRow
	methods      []peparser.MethodDefTableRow
	memberRefs   []peparser.MemberRefTableRow
	attributes   []peparser.CustomAttributeTableRow
	propertyMaps []peparser.PropertyMapTableRow
	properties   []peparser.PropertyTableRow
	semantics    []peparser.MethodSemanticsTableRow
	typeSpecs    []peparser.TypeSpecTableRow
}

// newMetadata copies what the inspector needs out of a parsed CLR directory. The heaps are
// cloned because the parser's streams point into a mapping that is released on Close.
func newMetadata(clr *peparser.CLRData) (*metadata, error) {
	if _, ok := clr.MetadataStreams["#~"]; !ok {
		if _, ok := clr.MetadataStreams["#-"]; ok {
			return nil, fmt.Errorf("%w: uncompressed (#-) table stream is not supported", errCorrupt)
		}
		return nil, fmt.Errorf("%w: missing table stream", errCorrupt)
	}

	md := &metadata{
		strings: bytes.Clone(clr.MetadataStreams["#Strings"]),
		blobs:   bytes.Clone(clr.MetadataStreams["#Blob"]),
	}
	err := errors.Join(
		tableRows(clr, peparser.TypeRef, &md.typeRefs),
		tableRows(clr, peparser.TypeDef, &md.typeDefs),
		tableRows(clr, peparser.MethodDef, &md.methods),
		tableRows(clr, peparser.MemberRef, &md.memberRefs),
		tableRows(clr, peparser.CustomAttribute, &md.attributes),
		tableRows(clr, peparser.PropertyMap, &md.propertyMaps),
		tableRows(clr, peparser.Property, &md.properties),
		tableRows(clr, peparser.MethodSemantics, &md.semantics),
		tableRows(clr, peparser.TypeSpec, &md.typeSpecs),
	)
	if err != nil {
		return nil, err
	}
	return md, nil
}

// tableRows stores the rows of table in dst. An absent table leaves dst empty.
func tableRows[T any](clr *peparser.CLRData, table int, dst *[]T) error {
	t, ok := clr.MetadataTables[table]
	if !ok {
		return nil
	}
	rows, ok := t.Content.([]T)
	if !ok || uint32(len(rows)) != t.CountCols {
		return fmt.Errorf("%w: unreadable %s table", errCorrupt, peparser.MetadataTableIndexToString(table))
	}
	*dst = rows
	return nil
}

func inRange(row uint32, n int) bool {
	return row >= 1 && uint64(row) <= uint64(n)
}

// decode splits a coded index value into its target table and row.
func decode(ci codedIndex, v uint32) (int, uint32) {
	tag := v & (1<<ci.bits - 1)
	if int(tag) >= len(ci.tables) {
		return unused, 0
	}
	return ci.tables[tag], v >> ci.bits
}

func (m *metadata) str(i uint32) string {
	if int(i) >= len(m.strings) {
		return ""
	}
	s := m.strings[i:]
	if end := bytes.IndexByte(s, 0); end >= 0 {
		s = s[:end]
	}
	return string(s)
}

func (m *metadata) blob(i uint32) ([]byte, error) {
	if int(i) >= len(m.blobs) {
		return nil, fmt.Errorf("%w: blob index out of range", errCorrupt)
	}
	n, size, err := uncompress(m.blobs[i:])
	if err != nil {
		return nil, err
	}
	start := int(i) + size
	if start+int(n) > len(m.blobs) {
		return nil, fmt.Errorf("%w: blob exceeds heap", errCorrupt)
	}
	return m.blobs[start : start+int(n)], nil
}

// uncompress decodes an ECMA-335 compressed integer, returning the value and the number of
// bytes consumed. Signed values use the same length prefix, so callers that only skip them
// use it too.
func uncompress(b []byte) (uint32, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("%w: truncated compressed integer", errCorrupt)
	}
	switch {
	case b[0]&0x80 == 0:
		return uint32(b[0]), 1, nil
	case b[0]&0xC0 == 0x80:
		if len(b) < 2 {
			return 0, 0, fmt.Errorf("%w: truncated compressed integer", errCorrupt)
		}
		return uint32(b[0]&0x3F)<<8 | uint32(b[1]), 2, nil
	case b[0]&0xE0 == 0xC0:
		if len(b) < 4 {
			return 0, 0, fmt.Errorf("%w: truncated compressed integer", errCorrupt)
		}
		return uint32(b[0]&0x1F)<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), 4, nil
	}
	return 0, 0, fmt.Errorf("%w: invalid compressed integer", errCorrupt)
}
