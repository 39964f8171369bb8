package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/stagesim/internal/config"
	"github.com/san-kum/stagesim/internal/model"
	"github.com/san-kum/stagesim/internal/orchestrator"
	"github.com/san-kum/stagesim/internal/settings"
	"github.com/san-kum/stagesim/internal/stages"
	"github.com/san-kum/stagesim/internal/storage"
	"github.com/san-kum/stagesim/internal/tui"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var (
	dataDir   string
	verbose   bool
	ranks     int
	watch     bool
	outputDir string
	outFile   string
	column    string
	plotFile  string
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))

func main() {
	rootCmd := &cobra.Command{
		Use:           "stagesim",
		Short:         "staged time-stepping analyses",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".stagesim", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [params]",
		Short: "run the stages of a parameters file",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalysis,
	}
	runCmd.Flags().IntVar(&ranks, "ranks", 1, "number of in-process execution units")
	runCmd.Flags().BoolVar(&watch, "watch", false, "live progress view")
	runCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default: the run directory)")

	checkCmd := &cobra.Command{
		Use:   "check [params]",
		Short: "build every stage and validate it without solving",
		Args:  cobra.ExactArgs(1),
		RunE:  checkAnalysis,
	}

	initCmd := &cobra.Command{
		Use:   "init [preset]",
		Short: "write a preset parameters file",
		Args:  cobra.ExactArgs(1),
		RunE:  initPreset,
	}
	initCmd.Flags().StringVarP(&outFile, "output", "o", "", "file to write (default: <preset>.yaml)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListPresets() {
				fmt.Printf("  %-12s %s\n", name, config.GetPreset(name).Description)
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a column of a recorded csv output",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&column, "column", "KINETIC_ENERGY", "csv column to plot")
	plotCmd.Flags().StringVar(&plotFile, "file", "", "csv output to read (default: the first one)")

	stagesCmd := &cobra.Command{
		Use:   "stages",
		Short: "list registered analysis types",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range stages.NewRegistry().List() {
				fmt.Println(name)
			}
		},
	}

	rootCmd.AddCommand(runCmd, checkCmd, initCmd, presetsCmd, listCmd, plotCmd, stagesCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	path := args[0]
	params, err := settings.Load(path)
	if err != nil {
		return err
	}
	if ranks < 1 {
		return fmt.Errorf("--ranks must be at least 1, got %d", ranks)
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	runID := storage.NewRunID(name)
	dir := outputDir
	if dir == "" {
		dir = st.Dir(runID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	opts := stages.Options{
		Logger:    newLogger(os.Stderr),
		Out:       os.Stdout,
		OutputDir: dir,
	}

	var sums []orchestrator.Summary
	if watch {
		sums, err = runWatched(ctx, name, dir, params, opts)
	} else {
		sums, err = execute(ctx, params, opts)
	}

	rec := &storage.Record{
		ID:         runID,
		Name:       name,
		ParamsFile: path,
		Ranks:      ranks,
		Stages:     toRecords(sums),
	}
	if raw, jerr := json.Marshal(params); jerr == nil {
		rec.Parameters = raw
	}
	err = recordRun(st, rec, err)
	printSummaries(rec)
	return err
}

// recordRun saves rec with the outcome of the run. A failed save is
// reported along with the run error.
func recordRun(st *storage.Store, rec *storage.Record, runErr error) error {
	rec.Status = "completed"
	if runErr != nil {
		rec.Status = "failed"
		rec.Error = runErr.Error()
	}
	if err := st.Save(rec); err != nil {
		return multierr.Append(runErr, err)
	}
	return runErr
}

func execute(ctx context.Context, params *settings.Parameters, opts stages.Options) ([]orchestrator.Summary, error) {
	o := orchestrator.New(stages.NewRegistry(), opts)
	if ranks > 1 {
		return o.RunDistributed(ctx, ranks, params)
	}
	return o.Run(ctx, model.New(), params)
}

// runWatched drives the run from a goroutine while the progress view owns
// the terminal. Logs go to run.log in the output directory.
func runWatched(ctx context.Context, title, dir string, params *settings.Parameters, opts stages.Options) ([]orchestrator.Summary, error) {
	logFile, err := os.Create(filepath.Join(dir, "run.log"))
	if err != nil {
		return nil, err
	}
	defer logFile.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(tui.New(title))
	opts.Logger = newLogger(logFile)
	opts.Out = logFile
	opts.Progress = tui.Sink(p)

	var (
		sums []orchestrator.Summary
		done = make(chan error, 1)
	)
	go func() {
		var runErr error
		sums, runErr = execute(ctx, params, opts)
		p.Send(tui.DoneMsg{Err: runErr})
		done <- runErr
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return sums, err
	}
	// quitting the view stops the run
	cancel()
	err = <-done
	return sums, err
}

func toRecords(sums []orchestrator.Summary) []storage.StageRecord {
	recs := make([]storage.StageRecord, len(sums))
	for i, s := range sums {
		recs[i] = storage.StageRecord{
			Name:        s.Name,
			ProblemName: s.ProblemName,
			Steps:       s.Steps,
			FinalTime:   s.FinalTime,
			DurationMS:  s.Duration.Milliseconds(),
			OutputFiles: s.OutputFiles,
		}
	}
	return recs
}

func printSummaries(rec *storage.Record) {
	fmt.Printf("run %s: %s\n", rec.ID, rec.Status)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tPROBLEM\tSTEPS\tTIME\tWALL")
	for _, s := range rec.Stages {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.4g\t%dms\n", s.Name, s.ProblemName, s.Steps, s.FinalTime, s.DurationMS)
	}
	w.Flush()
}

func checkAnalysis(cmd *cobra.Command, args []string) error {
	params, err := settings.Load(args[0])
	if err != nil {
		return err
	}

	o := orchestrator.New(stages.NewRegistry(), stages.Options{
		Logger: newLogger(os.Stderr),
		Out:    io.Discard,
	})
	if err := o.Check(model.New(), params); err != nil {
		errs := multierr.Errors(err)
		for _, e := range errs {
			fmt.Println("  -", e)
		}
		return fmt.Errorf("%d problem(s) in %s", len(errs), args[0])
	}
	fmt.Printf("%s: ok\n", args[0])
	return nil
}

func initPreset(cmd *cobra.Command, args []string) error {
	preset := config.GetPreset(args[0])
	if preset == nil {
		return fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
	}
	path := outFile
	if path == "" {
		path = args[0] + ".yaml"
	}
	if err := config.Save(path, preset); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%d run(s) in %s", len(runs), dataDir)))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIME\tRANKS\tSTAGES\tSTEPS\tSTATUS")

	for _, run := range runs {
		steps := 0
		for _, s := range run.Stages {
			steps += s.Steps
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			run.ID,
			run.Name,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Ranks,
			len(run.Stages),
			steps,
			run.Status,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	rec, err := storage.New(dataDir).Load(args[0])
	if err != nil {
		return err
	}

	file := ""
	for _, s := range rec.Stages {
		for _, f := range s.OutputFiles {
			if filepath.Ext(f) != ".csv" {
				continue
			}
			if plotFile == "" || filepath.Base(f) == plotFile || f == plotFile {
				file = f
				break
			}
		}
		if file != "" {
			break
		}
	}
	if file == "" {
		return fmt.Errorf("run %s has no matching csv output", rec.ID)
	}

	data, err := storage.LoadColumn(file, column)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", rec.ID)
	fmt.Printf("file: %s\n", file)
	fmt.Printf("samples: %d\n\n", len(data))

	graph := asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(column),
	)
	fmt.Println(graph)
	return nil
}
