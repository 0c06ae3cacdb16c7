// Package extract collects candidate custom-field references from graph text and from
// extension types in customization modules.
package extract

import (
	"regexp"

	"acuvalidator/internal/descriptor"
	"acuvalidator/internal/schema"
)

// DefaultFieldPrefix marks custom fields by convention.
const DefaultFieldPrefix = "usr"

var defaultPattern = referencePattern(DefaultFieldPrefix)

// referencePattern captures identifiers starting with prefix. Word characters are Unicode
// letters, digits and underscore, as in C# identifiers; regexp's \b and \w are ASCII only.
func referencePattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])(` + regexp.QuoteMeta(prefix) + `[\p{L}\p{N}_]+)`)
}

// References finds usr* identifiers in the text of every graph.
func References(graphs []descriptor.Graph) []schema.FieldReference {
	return referencesMatching(graphs, defaultPattern)
}

// ReferencesWithPrefix is References for a custom field prefix.
func ReferencesWithPrefix(graphs []descriptor.Graph, prefix string) []schema.FieldReference {
	if prefix == "" || prefix == DefaultFieldPrefix {
		return References(graphs)
	}
	return referencesMatching(graphs, referencePattern(prefix))
}

// referencesMatching emits each distinct match once per owning class, in order of first
// occurrence. Distinctness is case-sensitive; graphs sharing a class name share the scope.
func referencesMatching(graphs []descriptor.Graph, re *regexp.Regexp) []schema.FieldReference {
	var out []schema.FieldReference
	seen := make(map[string]map[string]struct{})
	for _, g := range graphs {
		names, ok := seen[g.ClassName]
		if !ok {
			names = make(map[string]struct{})
			seen[g.ClassName] = names
		}
		for _, sub := range re.FindAllStringSubmatch(g.Text, -1) {
			m := sub[1]
			if _, dup := names[m]; dup {
				continue
			}
			names[m] = struct{}{}
			out = append(out, schema.FieldReference{OwnerClass: g.ClassName, Name: m})
		}
	}
	return out
}
