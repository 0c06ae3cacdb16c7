package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"acuvalidator/internal/descriptor"
	"acuvalidator/internal/ignore"
	"acuvalidator/internal/inspect"
	"acuvalidator/internal/logging"
	"acuvalidator/internal/recon"
	"acuvalidator/internal/report"
	"acuvalidator/internal/workspace"

	"github.com/gosuri/uiprogress"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	once          bool
	strict        bool
	inspectorKind string
	binDir        string
	xlsxPath      string
	dbCheck       bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [package.zip] [true]",
	Short: "Report custom fields used by a package but never declared",
	Long: `Extracts a customization package, collects every usr* field referenced by its graphs and
extension modules and reports those without a declared column.

Without a package argument the command prompts for package paths until an empty line or EOF.
A second argument "true" (or --once) exits after the first package.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetValidatorConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("bin") {
			cfg.ModuleDir = binDir
		}

		insp, err := inspect.GetInspector(inspectorKind)
		if err != nil {
			return err
		}
		ws, err := workspace.New(viper.GetString("workspace.root"))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		v := &packageValidator{
			cfg:     cfg,
			ws:      ws,
			insp:    insp,
			out:     out,
			printer: report.NewPrinter(out),
			tty:     isTerminal(out),
		}

		if viper.GetBool("settings.db_check") {
			db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			v.opts = append(v.opts, recon.WithColumnSource(db.columnSource(cfg.FieldPrefix)))
		}

		var archive string
		if len(args) > 0 {
			archive = args[0]
		}
		exitAfterOne := once || (len(args) == 2 && strings.EqualFold(args[1], "true"))
		if exitAfterOne && archive == "" {
			archive, _ = prompt(out, bufio.NewReader(cmd.InOrStdin()))
		}
		if exitAfterOne {
			return v.single(cmd.Context(), archive)
		}
		return v.loop(cmd.Context(), archive, cmd.InOrStdin())
	},
}

// packageValidator runs the pipeline for one package at a time.
type packageValidator struct {
	cfg     recon.Config
	ws      *workspace.Workspace
	insp    inspect.Inspector
	opts    []recon.Option
	out     io.Writer
	printer *report.Printer
	tty     bool
}

// single validates one package and maps the outcome to an exit status.
func (v *packageValidator) single(ctx context.Context, archive string) error {
	res, err := v.run(ctx, archive)
	if err != nil {
		return &exitError{code: 2, err: err, reported: true}
	}
	if strict {
		if err := res.Report.Err(); err != nil {
			return &exitError{code: 1, err: err, reported: true}
		}
	}
	return nil
}

// loop keeps prompting for packages. Recoverable failures re-prompt; a run of
// loop.max_failures consecutive failures, a module load failure or an I/O error stops it.
func (v *packageValidator) loop(ctx context.Context, archive string, stdin io.Reader) error {
	log := logging.WithComponent("validate")
	in := bufio.NewReader(stdin)
	maxFailures := viper.GetInt("loop.max_failures")
	failures := 0

	for {
		if archive == "" {
			var err error
			archive, err = prompt(v.out, in)
			if archive == "" {
				if err != nil && !errors.Is(err, io.EOF) {
					return &exitError{code: 2, err: err}
				}
				return nil
			}
		}

		_, err := v.run(ctx, archive)
		archive = ""
		switch {
		case err == nil:
			failures = 0
		case recoverable(err):
			failures++
			log.Warnf("Recoverable failure %d: %v", failures, err)
		default:
			return &exitError{code: 2, err: err, reported: true}
		}

		if maxFailures > 0 && failures >= maxFailures {
			return &exitError{code: 2, err: fmt.Errorf("giving up after %d consecutive failures", failures)}
		}
		if err := ctx.Err(); err != nil {
			return &exitError{code: 2, err: err}
		}
	}
}

// run extracts archive, validates it and prints the report. Failures are printed too.
func (v *packageValidator) run(ctx context.Context, archive string) (*recon.Result, error) {
	project, err := v.ws.Prepare(archive, v.cfg.ModuleDir)
	if err != nil {
		v.printer.Error(err)
		return nil, err
	}
	defer project.Close()

	opts := append([]recon.Option(nil), v.opts...)
	var progress *uiprogress.Progress
	if v.tty {
		var bar *uiprogress.Bar
		progress = uiprogress.New()
		progress.Start()
		opts = append(opts, recon.WithProgress(func(done, total int, module string) {
			if bar == nil {
				bar = progress.AddBar(total).AppendCompleted().PrependElapsed()
				bar.PrependFunc(func(b *uiprogress.Bar) string {
					return "Inspecting modules: "
				})
			}
			bar.Incr()
		}))
	}

	runner := recon.NewRunner(v.cfg, v.insp, opts...)
	res, err := runner.Run(ctx, recon.Input{
		ProjectDir: project.Dir,
		ModuleDir:  project.ModuleDir,
		IgnorePath: ignore.PathFor(archive, v.cfg.IgnoreFileName),
	})
	if progress != nil {
		progress.Stop()
	}
	if err != nil {
		v.printer.Error(err)
		return nil, err
	}

	if res.IgnoreMissing {
		v.printer.IgnoreFileMissing()
	}
	v.printer.Report(res.Report)

	if xlsxPath != "" {
		if err := report.WriteXLSX(xlsxPath, archive, res); err != nil {
			v.printer.Error(err)
			return nil, err
		}
	}
	return res, nil
}

// recoverable errors re-prompt in loop mode.
func recoverable(err error) bool {
	return errors.Is(err, workspace.ErrInvalidArchive) ||
		errors.Is(err, workspace.ErrInvalidBinPath) ||
		errors.Is(err, descriptor.ErrMalformed)
}

// prompt asks for a package path. Surrounding quotes, as added by drag and drop, are removed.
func prompt(out io.Writer, in *bufio.Reader) (string, error) {
	fmt.Fprintln(out, "Enter Package Path: ")
	line, err := in.ReadString('\n')
	return strings.Trim(strings.TrimSpace(line), `"'`), err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func init() {
	RootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&once, "once", false, "Exit after validating one package")
	validateCmd.Flags().BoolVar(&strict, "strict", false, "Exit with status 1 when fields are missing")
	validateCmd.Flags().StringVar(&inspectorKind, "inspector", "clr", "Module inspector: clr, index or source")
	validateCmd.Flags().StringVar(&binDir, "bin", "Bin", "Module directory relative to the project")
	validateCmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Write the report to an xlsx workbook")
	validateCmd.Flags().BoolVar(&dbCheck, "db-check", false, "Treat columns of the active database as declared")

	viper.BindPFlag("settings.db_check", validateCmd.Flags().Lookup("db-check"))
}
