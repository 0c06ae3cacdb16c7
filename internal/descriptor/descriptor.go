// Package descriptor reads the customization project descriptor (project.xml).
package descriptor

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrMalformed is returned when the descriptor is missing, unreadable or not well-formed.
var ErrMalformed = errors.New("malformed project descriptor")

const (
	kindGraph = "Graph"
	kindTable = "Table"

	attrClassName  = "ClassName"
	attrTableName  = "TableName"
	attrColumnName = "ColumnName"
)

// Graph is a business-logic node: a class name plus its full text body.
type Graph struct {
	ClassName string
	Text      string
}

// ColumnNode is one column element below a Table node.
type ColumnNode struct {
	TableName  string
	ColumnName string
}

type Table struct {
	Name    string
	Columns []ColumnNode
}

// Descriptor holds the Graph and Table nodes in document order.
type Descriptor struct {
	Graphs []Graph
	Tables []Table
}

// Parse reads the descriptor at path.
func Parse(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer f.Close()

	d, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// newDecoder returns an XML decoder that honours a leading byte order mark and the
// encoding named in the XML declaration.
func newDecoder(r io.Reader) *xml.Decoder {
	br := bufio.NewReader(r)
	var src io.Reader = br
	transcoded := false

	head, _ := br.Peek(3)
	switch {
	case bytes.HasPrefix(head, bomUTF8):
		br.Discard(len(bomUTF8))
	case bytes.HasPrefix(head, bomUTF16LE), bytes.HasPrefix(head, bomUTF16BE):
		src = transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder())
		transcoded = true
	}

	dec := xml.NewDecoder(src)
	dec.CharsetReader = func(label string, in io.Reader) (io.Reader, error) {
		// Already UTF-8 after the BOM transcoding above.
		if transcoded && strings.HasPrefix(strings.ToLower(label), "utf-16") {
			return in, nil
		}
		return charset.NewReaderLabel(label, in)
	}
	return dec
}

// Decode reads a descriptor document from r. Only direct children of the root element
// are considered; kinds other than Graph and Table are skipped.
func Decode(r io.Reader) (*Descriptor, error) {
	dec := newDecoder(r)
	d := &Descriptor{}

	seenRoot, rootClosed := false, false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if rootClosed {
				return nil, fmt.Errorf("%w: multiple root elements", ErrMalformed)
			}
			if !seenRoot {
				seenRoot = true
				continue
			}
			switch t.Name.Local {
			case kindGraph:
				g, err := readGraph(dec, t)
				if err != nil {
					return nil, fmt.Errorf("%w: graph: %v", ErrMalformed, err)
				}
				d.Graphs = append(d.Graphs, g)
			case kindTable:
				tbl, err := readTable(dec, t)
				if err != nil {
					return nil, fmt.Errorf("%w: table: %v", ErrMalformed, err)
				}
				d.Tables = append(d.Tables, tbl)
			default:
				if err := dec.Skip(); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
				}
			}
		case xml.EndElement:
			rootClosed = true
		}
	}

	if !seenRoot {
		return nil, fmt.Errorf("%w: missing root element", ErrMalformed)
	}
	return d, nil
}

// readGraph consumes the element started by start and concatenates all descendant text.
func readGraph(dec *xml.Decoder, start xml.StartElement) (Graph, error) {
	g := Graph{ClassName: attr(start, attrClassName)}

	var text strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return g, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			text.Write(t)
		}
	}

	g.Text = text.String()
	return g, nil
}

func readTable(dec *xml.Decoder, start xml.StartElement) (Table, error) {
	tbl := Table{Name: attr(start, attrTableName)}

	for {
		tok, err := dec.Token()
		if err != nil {
			return tbl, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			tbl.Columns = append(tbl.Columns, ColumnNode{
				TableName:  attr(t, attrTableName),
				ColumnName: attr(t, attrColumnName),
			})
			if err := dec.Skip(); err != nil {
				return tbl, err
			}
		case xml.EndElement:
			return tbl, nil
		}
	}
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
