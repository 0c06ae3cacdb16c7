package schema

// FieldReference is one occurrence of a candidate custom field, either referenced in
// business logic or declared as a property on an extension type.
type FieldReference struct {
	OwnerClass     string // base entity the field belongs to
	ExtensionClass string // empty unless the reference comes from an extension type
	Name           string
}

// IsExtension reports whether the reference was produced by module inspection.
func (f FieldReference) IsExtension() bool {
	return f.ExtensionClass != ""
}

func (f FieldReference) String() string {
	return f.OwnerClass + "." + f.Name
}

// DeclaredColumn is a column physically present in the data model. DataType and Nullable
// are known only for columns read from a live database.
type DeclaredColumn struct {
	OwnerTable string
	Name       string
	DataType   string
	Nullable   bool
}

// Table and Column describe a live database schema (used by the optional DB column source).
type Table struct {
	Name    string
	Columns []*Column
}

type Column struct {
	Name       string
	DataType   string
	IsNullable bool
}
