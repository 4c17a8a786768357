package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/synthgen/internal/core"
)

type generateOptions struct {
	model       string
	theme       string
	file        string
	rows        int
	outDir      string
	download    bool
	name        string
	previewRows int
	interactive bool
}

// NewGenerateCmd creates the generate command.
func NewGenerateCmd(a *app) *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Submit one generation request",
		Long: `Generate synthetic CSV data with one of the registered models.

Text models take a --theme describing the data. File models take a seed
--file: a .csv with a header and at least two data rows. The result is
previewed in the terminal and, unless --download=false, saved as
<out>/<download-name>.csv exactly as the service returned it.`,
		Example: `  synthgen generate --theme "customers with name, email and city" --rows 50
  synthgen generate --model ydata --file seed.csv --rows 20 --out ./data
  synthgen generate -i`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.interactive {
				if err := askOptions(a.prompter, a.registry, &opts); err != nil {
					return err
				}
			}
			if opts.outDir == "" {
				opts.outDir = a.cfg.Generator.OutputDir
			}
			return runGenerate(cmd, a, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.model, "model", "m", "", "model id (default: the roster default)")
	f.StringVarP(&opts.theme, "theme", "t", "", "description of the data, for text models")
	f.StringVarP(&opts.file, "file", "f", "", "seed CSV, for file models")
	f.IntVarP(&opts.rows, "rows", "r", 0, "rows to generate, clamped to the model's range (default: model minimum)")
	f.StringVarP(&opts.outDir, "out", "o", "", "directory for the saved CSV (default: $GENERATOR_OUTPUT_DIR)")
	f.BoolVar(&opts.download, "download", true, "save the result to a file")
	f.StringVar(&opts.name, "download-name", core.DefaultOutputFileName, "saved file name without .csv")
	f.IntVar(&opts.previewRows, "preview-rows", 10, "rows shown in the terminal preview")
	f.BoolVarP(&opts.interactive, "interactive", "i", false, "prompt for every input")

	return cmd
}

func runGenerate(cmd *cobra.Command, a *app, opts generateOptions) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var ticked atomic.Bool
	wf := core.NewWorkflow(a.registry, a.generator(),
		core.WithTimeout(a.timeout),
		core.WithSaver(core.DirSaver{Dir: opts.outDir}),
		core.WithRenderer(core.Renderer{RowCap: opts.previewRows}),
		core.WithLogger(a.logger),
		core.WithTickFunc(func(n int) {
			ticked.Store(true)
			fmt.Fprintf(errOut, "\rGenerating... %ds", n)
		}),
	)

	if err := wf.SelectModel(opts.model); err != nil {
		return err
	}
	profile := wf.Profile()
	if _, ok := a.registry.Get(profile.ID); !ok {
		a.logger.Warn("unknown model, using fallback row range", "model", profile.ID)
	}
	if opts.rows > 0 {
		if _, err := wf.SetRows(opts.rows); err != nil {
			return err
		}
	}

	if profile.Modality == core.ModalityFile {
		if opts.file != "" {
			res, err := wf.AttachFile(ctx, &core.DiskFile{Path: opts.file})
			if err != nil {
				return err
			}
			if !res.Valid {
				return reportValidation(errOut, core.ValidationErrors{res})
			}
		}
	} else if _, err := wf.SetTheme(opts.theme); err != nil {
		return err
	}
	if _, err := wf.SetDownload(opts.download, opts.name); err != nil {
		return err
	}

	result, err := wf.Submit(ctx)
	if ticked.Load() {
		fmt.Fprintln(errOut)
	}

	var verrs core.ValidationErrors
	if errors.As(err, &verrs) {
		return reportValidation(errOut, verrs)
	}
	if err != nil {
		return err
	}

	if result.Outcome.Status != core.OutcomeSuccess {
		msg := core.MessageFor(result.Outcome.Kind)
		return fmt.Errorf("%s (Code: %s). %s", result.Outcome.Message, msg.Code, msg.Action)
	}

	if result.PreviewErr != nil {
		fmt.Fprintln(errOut, core.FormatUserError(result.PreviewErr))
	} else if err := printPreview(out, result.Preview); err != nil {
		return err
	}

	if result.SaveErr != nil {
		return fmt.Errorf("save download: %w", result.SaveErr)
	}
	if result.SavedAs != "" {
		fmt.Fprintf(out, "Saved %s\n", result.SavedAs)
	}
	return nil
}

// reportValidation prints one line per failing field.
func reportValidation(w io.Writer, verrs core.ValidationErrors) error {
	for _, res := range verrs {
		if !res.Valid {
			fmt.Fprintf(w, "  %s: %s\n", res.Field, res.Message)
		}
	}
	return verrs
}

// printPreview writes the table aligned in columns.
func printPreview(w io.Writer, t *core.PreviewTable) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, joinCells(t.Header))
	for _, row := range t.Rows {
		fmt.Fprintln(tw, joinCells(row))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if t.Truncated() {
		fmt.Fprintf(w, "Showing %d of %d rows.\n", len(t.Rows), t.TotalRows)
	} else {
		fmt.Fprintf(w, "%d rows.\n", t.TotalRows)
	}
	return nil
}

var cellReplacer = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ")

func joinCells(cells []string) string {
	var b strings.Builder
	for _, c := range cells {
		b.WriteString(cellReplacer.Replace(c))
		b.WriteByte('\t')
	}
	return b.String()
}

// askOptions fills opts interactively. Current flag values are offered as
// defaults and every answer is checked with the same validation the
// workflow applies.
func askOptions(p prompter, reg *core.Registry, opts *generateOptions) error {
	models := reg.All()
	labels := make([]string, len(models))
	selected := opts.model
	if selected == "" {
		selected = reg.DefaultModel()
	}
	def := ""
	for i, m := range models {
		labels[i] = fmt.Sprintf("%s (%s)", m.Label, m.ID)
		if m.ID == selected {
			def = labels[i]
		}
	}

	idx, err := p.Select("Model", labels, def)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(models) {
		return fmt.Errorf("model choice %d out of range", idx)
	}
	profile := models[idx]
	opts.model = profile.ID

	if profile.Modality == core.ModalityFile {
		opts.file, err = p.Input("Seed CSV file", opts.file, func(s string) error {
			return check(core.ValidateUploadedFile(context.Background(), &core.DiskFile{Path: strings.TrimSpace(s)}))
		})
		opts.file = strings.TrimSpace(opts.file)
	} else {
		opts.theme, err = p.Input("Theme", opts.theme, func(s string) error {
			return check(core.ValidateTheme(s))
		})
	}
	if err != nil {
		return err
	}

	rows, err := p.Input(fmt.Sprintf("Rows (%d-%d)", profile.RowsMin, profile.RowsMax),
		strconv.Itoa(profile.Clamp(opts.rows)), func(s string) error {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil || n < profile.RowsMin || n > profile.RowsMax {
				return fmt.Errorf("enter a whole number from %d to %d", profile.RowsMin, profile.RowsMax)
			}
			return nil
		})
	if err != nil {
		return err
	}
	opts.rows, _ = strconv.Atoi(strings.TrimSpace(rows))

	if opts.download, err = p.Confirm("Save the result as a CSV file?", opts.download); err != nil {
		return err
	}
	if !opts.download {
		return nil
	}
	opts.name, err = p.Input("File name (without .csv)", opts.name, func(s string) error {
		return check(core.ValidateOutputFileName(s))
	})
	return err
}

func check(res core.ValidationResult) error {
	if res.Valid {
		return nil
	}
	return errors.New(res.Message)
}
