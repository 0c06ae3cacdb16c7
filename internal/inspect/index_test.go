package inspect_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"acuvalidator/internal/inspect"
)

const sampleIndex = `module: Shop.Ext.dll
types:
  - name: SOOrderExt
    namespace: Shop.Ext
    base: PXCacheExtension` + "`" + `1
    generic_args: [PX.Objects.SO.SOOrder]
    properties:
      - name: UsrDeliveryNote
        attributes: [PXDBStringAttribute, PXUIFieldAttribute]
      - name: UsrHidden
        private: true
      - name: UsrUnbound
        attributes: [PXStringAttribute]
  - name: Helper
    base: Object
`

func writeIndex(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Shop.Ext.dll"+inspect.IndexSuffix)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIndexInspector(t *testing.T) {
	insp, err := inspect.NewIndexInspector()
	if err != nil {
		t.Fatalf("NewIndexInspector: %v", err)
	}

	m, err := insp.Open(writeIndex(t, sampleIndex))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	types, err := m.ExtensionTypes("PXCacheExtension")
	if err != nil {
		t.Fatal(err)
	}
	if len(types) != 1 || types[0].Name != "SOOrderExt" {
		t.Fatalf("Expected only SOOrderExt, got %+v", types)
	}

	owner, err := m.BaseGeneric(types[0])
	if err != nil || owner != "SOOrder" {
		t.Errorf("Expected owner SOOrder, got %q (%v)", owner, err)
	}

	fields, err := m.Fields(types[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 2 {
		t.Fatalf("Expected private properties to be skipped, got %+v", fields)
	}
	if !fields[1].HasAttribute([]string{"PXStringAttribute"}) {
		t.Errorf("Expected UsrUnbound to carry PXStringAttribute: %+v", fields[1])
	}
}

func TestIndexInspector_SchemaViolations(t *testing.T) {
	insp, err := inspect.NewIndexInspector()
	if err != nil {
		t.Fatal(err)
	}

	cases := map[string]string{
		"missing module": "types: []\n",
		"missing base":   "module: A.dll\ntypes:\n  - name: X\n",
		"empty property": "module: A.dll\ntypes:\n  - name: X\n    base: B\n    properties:\n      - name: \"\"\n",
		"not yaml":       "module: [unterminated\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := insp.Open(writeIndex(t, content)); err == nil {
				t.Error("Expected Open to fail")
			}
		})
	}
}

func TestBuildIndex_RoundTrip(t *testing.T) {
	src, err := inspect.NewSourceInspector().Open(writeSource(t, sampleSource))
	if err != nil {
		t.Fatal(err)
	}
	idx, err := inspect.BuildIndex(src, "PXCacheExtension")
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}

	var buf bytes.Buffer
	if err := inspect.WriteIndex(&buf, idx); err != nil {
		t.Fatalf("WriteIndex: %v", err)
	}
	if !strings.Contains(buf.String(), "UsrDeliveryNote") {
		t.Errorf("index is missing a property:\n%s", buf.String())
	}

	insp, err := inspect.NewIndexInspector()
	if err != nil {
		t.Fatal(err)
	}
	m, err := insp.Open(writeIndex(t, buf.String()))
	if err != nil {
		t.Fatalf("Open written index: %v", err)
	}
	types, _ := m.ExtensionTypes("PXCacheExtension")
	if len(types) != 2 {
		t.Fatalf("Expected 2 types after round trip, got %+v", types)
	}
	owner, _ := m.BaseGeneric(types[1])
	if owner != "SOOrder" {
		t.Errorf("Expected SOOrder, got %q", owner)
	}
}

func TestGetInspector(t *testing.T) {
	tests := []struct {
		kind    string
		name    string
		wantErr bool
	}{
		{"", "clr", false},
		{"CLR", "clr", false},
		{"index", "index", false},
		{"source", "source", false},
		{"reflection", "", true},
	}
	for _, tt := range tests {
		insp, err := inspect.GetInspector(tt.kind)
		if tt.wantErr {
			if err == nil {
				t.Errorf("GetInspector(%q): expected error", tt.kind)
			}
			continue
		}
		if err != nil {
			t.Fatalf("GetInspector(%q): %v", tt.kind, err)
		}
		if insp.Name() != tt.name {
			t.Errorf("GetInspector(%q) = %s, expected %s", tt.kind, insp.Name(), tt.name)
		}
	}
}
