package recon

import (
	"context"
	"errors"
	"path/filepath"

	"acuvalidator/internal/descriptor"
	"acuvalidator/internal/extract"
	"acuvalidator/internal/ignore"
	"acuvalidator/internal/inspect"
	"acuvalidator/internal/logging"
	"acuvalidator/internal/schema"

	"github.com/sirupsen/logrus"
)

// ColumnSource supplies additional declared columns, e.g. from a live database.
type ColumnSource interface {
	DeclaredColumns(ctx context.Context) ([]schema.DeclaredColumn, error)
}

// Input locates one extracted customization project.
type Input struct {
	ProjectDir string
	ModuleDir  string // defaults to <ProjectDir>/<Config.ModuleDir>
	IgnorePath string // defaults to <ProjectDir>/<Config.IgnoreFileName>
}

// Result is the outcome of a run.
type Result struct {
	Report Report

	Graphs        int
	Tables        int
	Modules       int
	Candidates    int
	Declared      int
	Ignored       int
	IgnoreMissing bool
}

// Runner executes the validation pipeline for one project at a time.
type Runner struct {
	cfg       Config
	inspector inspect.Inspector
	sources   []ColumnSource
	progress  extract.ProgressFunc
	log       *logrus.Entry
}

type Option func(*Runner)

// WithColumnSource merges the columns of src into the declared set.
func WithColumnSource(src ColumnSource) Option {
	return func(r *Runner) { r.sources = append(r.sources, src) }
}

// WithProgress reports module inspection progress.
func WithProgress(fn extract.ProgressFunc) Option {
	return func(r *Runner) { r.progress = fn }
}

func NewRunner(cfg Config, inspector inspect.Inspector, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		inspector: inspector,
		log:       logging.WithComponent("recon"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run parses the descriptor, extracts candidates from graphs and modules, collects declared
// columns, loads the ignore list and reconciles. A missing ignore file is only a warning.
func (r *Runner) Run(ctx context.Context, in Input) (*Result, error) {
	res := &Result{}

	desc, err := descriptor.Parse(filepath.Join(in.ProjectDir, r.cfg.DescriptorFile))
	if err != nil {
		return nil, err
	}
	res.Graphs, res.Tables = len(desc.Graphs), len(desc.Tables)
	r.log.Infof("Descriptor has %d graphs and %d tables", res.Graphs, res.Tables)

	candidates := extract.ReferencesWithPrefix(desc.Graphs, r.cfg.FieldPrefix)
	r.log.Debugf("%d field references in graphs", len(candidates))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	moduleDir := in.ModuleDir
	if moduleDir == "" {
		moduleDir = filepath.Join(in.ProjectDir, r.cfg.ModuleDir)
	}
	progress := func(done, total int, module string) {
		res.Modules = total
		if r.progress != nil {
			r.progress(done, total, module)
		}
	}
	fields, err := extract.ModuleFields(ctx, moduleDir, r.inspector, r.cfg.extractOptions(), progress)
	if err != nil {
		return nil, err
	}
	r.log.Debugf("%d extension fields in %d modules", len(fields), res.Modules)
	candidates = append(candidates, fields...)
	res.Candidates = len(candidates)

	declared := descriptor.DeclaredColumns(desc.Tables)
	for _, src := range r.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cols, err := src.DeclaredColumns(ctx)
		if err != nil {
			return nil, err
		}
		r.log.Debugf("%d columns from an extra column source", len(cols))
		declared = append(declared, cols...)
	}
	res.Declared = len(declared)

	ignorePath := in.IgnorePath
	if ignorePath == "" {
		ignorePath = filepath.Join(in.ProjectDir, r.cfg.IgnoreFileName)
	}
	ignored, err := ignore.Load(ignorePath)
	switch {
	case errors.Is(err, ignore.ErrMissingFile):
		res.IgnoreMissing = true
		r.log.Warn(err)
	case err != nil:
		return nil, err
	}
	res.Ignored = len(ignored)

	res.Report = Reconcile(candidates, declared, ignored)
	r.log.Infof("%d candidates, %d declared columns, %d missing", res.Candidates, res.Declared, len(res.Report.Missing))
	return res, nil
}
