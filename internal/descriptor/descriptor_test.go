package descriptor_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"acuvalidator/internal/descriptor"
	"acuvalidator/internal/schema"

	"golang.org/x/text/encoding/unicode"
)

const sampleProject = `<?xml version="1.0" encoding="utf-8"?>
<Customization level="0" description="" product-version="23.210">
    <Graph ClassName="SOOrderEntry_Extension" Source="#CDATA" IsNew="True" FileType="NewFile">
        <CDATA name="Source"><![CDATA[public class SOOrderEntry_Extension : PXGraphExtension<SOOrderEntry>
{
    protected void _(Events.FieldUpdated<SOOrder, SOOrderExt.usrDeliveryNote> e) { }
}]]></CDATA>
    </Graph>
    <Table TableName="SOOrder">
        <Column TableName="SOOrder" ColumnName="UsrDeliveryNote" ColumnType="string" AllowNull="True" />
        <Column TableName="SOOrder" ColumnName="" ColumnType="string" />
        <Column ColumnName="UsrOrphan" ColumnType="int" />
    </Table>
    <Page ScreenID="SO301000" />
    <Graph ClassName="Helper">plain text usrA <b>usrB</b></Graph>
</Customization>`

func TestDecode(t *testing.T) {
	d, err := descriptor.Decode(strings.NewReader(sampleProject))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if len(d.Graphs) != 2 {
		t.Fatalf("Expected 2 graphs, got %d", len(d.Graphs))
	}
	if d.Graphs[0].ClassName != "SOOrderEntry_Extension" {
		t.Errorf("unexpected class name %q", d.Graphs[0].ClassName)
	}
	if !strings.Contains(d.Graphs[0].Text, "SOOrderExt.usrDeliveryNote") {
		t.Errorf("Expected CDATA body in graph text, got %q", d.Graphs[0].Text)
	}
	if !strings.Contains(d.Graphs[1].Text, "usrA") || !strings.Contains(d.Graphs[1].Text, "usrB") {
		t.Errorf("Expected nested text in graph body, got %q", d.Graphs[1].Text)
	}

	if len(d.Tables) != 1 {
		t.Fatalf("Expected 1 table, got %d", len(d.Tables))
	}
	if d.Tables[0].Name != "SOOrder" || len(d.Tables[0].Columns) != 3 {
		t.Errorf("unexpected table: %+v", d.Tables[0])
	}
}

func TestDeclaredColumns(t *testing.T) {
	d, err := descriptor.Decode(strings.NewReader(sampleProject))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	got := descriptor.DeclaredColumns(d.Tables)
	want := []schema.DeclaredColumn{
		{OwnerTable: "SOOrder", Name: "UsrDeliveryNote"},
		{OwnerTable: "", Name: "UsrOrphan"},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d columns, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := map[string]string{
		"empty":         "",
		"not xml":       "just some text",
		"unclosed":      `<Customization><Graph ClassName="A">usrX`,
		"mismatched":    `<Customization><Table></Graph></Customization>`,
		"two roots":     `<A></A><B></B>`,
		"bad attribute": `<Customization><Graph ClassName=A/></Customization>`,
	}

	for name, doc := range tests {
		_, err := descriptor.Decode(strings.NewReader(doc))
		if !errors.Is(err, descriptor.ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestDecode_Encodings(t *testing.T) {
	latin1 := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<Customization><Graph ClassName=\"Caf\xe9\">usrCaf\xe9</Graph></Customization>"

	utf16Doc := strings.Replace(sampleProject, `encoding="utf-8"`, `encoding="utf-16"`, 1)
	utf16, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().String(utf16Doc)
	if err != nil {
		t.Fatal(err)
	}
	utf16BE, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().String(utf16Doc)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		doc   string
		class string
		text  string
	}{
		{"iso-8859-1", latin1, "Café", "usrCafé"},
		{"utf-16le", utf16, "SOOrderEntry_Extension", "SOOrderExt.usrDeliveryNote"},
		{"utf-16be", utf16BE, "SOOrderEntry_Extension", "SOOrderExt.usrDeliveryNote"},
		{"utf-8 bom", "\xef\xbb\xbf" + sampleProject, "SOOrderEntry_Extension", "SOOrderExt.usrDeliveryNote"},
	}

	for _, tt := range tests {
		d, err := descriptor.Decode(strings.NewReader(tt.doc))
		if err != nil {
			t.Errorf("%s: Decode: %v", tt.name, err)
			continue
		}
		if len(d.Graphs) == 0 {
			t.Errorf("%s: expected graphs", tt.name)
			continue
		}
		if d.Graphs[0].ClassName != tt.class {
			t.Errorf("%s: Expected class %q, got %q", tt.name, tt.class, d.Graphs[0].ClassName)
		}
		if !strings.Contains(d.Graphs[0].Text, tt.text) {
			t.Errorf("%s: Expected %q in graph text, got %q", tt.name, tt.text, d.Graphs[0].Text)
		}
	}
}

func TestDecode_UnknownCharset(t *testing.T) {
	doc := `<?xml version="1.0" encoding="x-no-such-charset"?><Customization/>`
	_, err := descriptor.Decode(strings.NewReader(doc))
	if !errors.Is(err, descriptor.ErrMalformed) {
		t.Errorf("Expected ErrMalformed for unknown charset, got %v", err)
	}
}

func TestParse_MissingFile(t *testing.T) {
	_, err := descriptor.Parse(filepath.Join(t.TempDir(), "project.xml"))
	if !errors.Is(err, descriptor.ErrMalformed) {
		t.Errorf("Expected ErrMalformed for missing file, got %v", err)
	}
}

func TestParse_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.xml")
	if err := os.WriteFile(path, []byte(sampleProject), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := descriptor.Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(d.Graphs) != 2 || len(d.Tables) != 1 {
		t.Errorf("unexpected descriptor: %d graphs, %d tables", len(d.Graphs), len(d.Tables))
	}
}
