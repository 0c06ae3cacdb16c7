package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"acuvalidator/internal/inspect"
	"acuvalidator/internal/logging"
	"acuvalidator/internal/schema"
)

// ErrModuleLoad is returned when a module cannot be listed, opened or inspected.
var ErrModuleLoad = errors.New("failed to load module")

// Options controls which modules, types and properties count as custom fields.
type Options struct {
	SDKPrefix           string   // module file names starting with it are vendor assemblies
	ExtensionBasePrefix string   // immediate base type prefix of extension types
	FieldPrefix         string   // property name prefix, case-insensitive
	UnboundAttributes   []string // attributes marking a field that has no column
}

// ProgressFunc is called after each module has been inspected.
type ProgressFunc func(done, total int, module string)

// ListModules returns the module files in dir matching pattern, sorted by name, skipping
// vendor files.
func ListModules(dir, pattern, sdkPrefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModuleLoad, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ok, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, fmt.Errorf("%w: bad module pattern %q: %v", ErrModuleLoad, pattern, err)
		}
		if !ok || (sdkPrefix != "" && strings.HasPrefix(name, sdkPrefix)) {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// ModuleFields inspects every module in dir and returns the custom fields declared by their
// extension types. Any module failure aborts the whole extraction.
func ModuleFields(ctx context.Context, dir string, insp inspect.Inspector, opts Options, progress ProgressFunc) ([]schema.FieldReference, error) {
	log := logging.WithComponent("extract")

	paths, err := ListModules(dir, insp.Pattern(), opts.SDKPrefix)
	if err != nil {
		return nil, err
	}
	log.Debugf("Inspecting %d modules in %s with the %s inspector", len(paths), dir, insp.Name())

	var out []schema.FieldReference
	seen := make(map[string]struct{})
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		refs, err := moduleFields(insp, path, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrModuleLoad, filepath.Base(path), err)
		}
		for _, r := range refs {
			key := strings.ToLower(r.ExtensionClass) + "\x00" + strings.ToLower(r.Name)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, r)
		}
		log.WithField("module", filepath.Base(path)).Debugf("%d extension fields", len(refs))

		if progress != nil {
			progress(i+1, len(paths), filepath.Base(path))
		}
	}
	return out, nil
}

func moduleFields(insp inspect.Inspector, path string, opts Options) ([]schema.FieldReference, error) {
	m, err := insp.Open(path)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	types, err := m.ExtensionTypes(opts.ExtensionBasePrefix)
	if err != nil {
		return nil, err
	}

	prefix := strings.ToLower(opts.FieldPrefix)
	var out []schema.FieldReference
	for _, t := range types {
		fields, err := m.Fields(t)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", t.Name, err)
		}

		var owner string
		resolved := false
		for _, f := range fields {
			if !strings.HasPrefix(strings.ToLower(f.Name), prefix) || f.HasAttribute(opts.UnboundAttributes) {
				continue
			}
			if !resolved {
				if owner, err = m.BaseGeneric(t); err != nil {
					return nil, fmt.Errorf("type %s: %w", t.Name, err)
				}
				resolved = true
			}
			out = append(out, schema.FieldReference{OwnerClass: owner, ExtensionClass: t.Name, Name: f.Name})
		}
	}
	return out, nil
}
