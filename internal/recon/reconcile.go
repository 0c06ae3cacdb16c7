// Package recon reconciles candidate custom fields against the declared data model.
package recon

import (
	"errors"
	"fmt"
	"strings"

	"acuvalidator/internal/ignore"
	"acuvalidator/internal/schema"
)

// ErrMissingFields is returned by Report.Err when at least one field is undeclared.
var ErrMissingFields = errors.New("possible missing fields")

// MissingField is a candidate that no declared column accounts for.
type MissingField struct {
	OwnerClass     string
	ExtensionClass string
	Name           string
}

func (m MissingField) String() string {
	return m.OwnerClass + "." + m.Name
}

// Report lists missing fields in first-seen order.
type Report struct {
	Missing []MissingField
}

func (r Report) Clean() bool {
	return len(r.Missing) == 0
}

// Err returns ErrMissingFields naming the missing fields, or nil for a clean report.
func (r Report) Err() error {
	if r.Clean() {
		return nil
	}
	names := make([]string, len(r.Missing))
	for i, m := range r.Missing {
		names[i] = m.String()
	}
	return fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(names, ", "))
}

// Reconcile reports every candidate without a matching declared column. A column matches when
// names are equal ignoring case and, for extension candidates only, the owner class equals the
// column's table. Text references carry no reliable owner, so any same-named column counts.
func Reconcile(candidates []schema.FieldReference, declared []schema.DeclaredColumn, ignored ignore.Set) Report {
	byName := make(map[string][]schema.DeclaredColumn, len(declared))
	for _, d := range declared {
		key := strings.ToLower(d.Name)
		byName[key] = append(byName[key], d)
	}

	var report Report
	reported := make(map[string]struct{})
	for _, c := range candidates {
		if matches(c, byName[strings.ToLower(c.Name)]) || ignored.Contains(c.Name) {
			continue
		}
		key := strings.ToLower(c.OwnerClass) + "\x00" + strings.ToLower(c.Name)
		if _, dup := reported[key]; dup {
			continue
		}
		reported[key] = struct{}{}
		report.Missing = append(report.Missing, MissingField{
			OwnerClass:     c.OwnerClass,
			ExtensionClass: c.ExtensionClass,
			Name:           c.Name,
		})
	}
	return report
}

func matches(c schema.FieldReference, columns []schema.DeclaredColumn) bool {
	for _, d := range columns {
		if !c.IsExtension() || strings.EqualFold(c.OwnerClass, d.OwnerTable) {
			return true
		}
	}
	return false
}
