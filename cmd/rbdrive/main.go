package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/rbdrive/internal/config"
	"github.com/san-kum/rbdrive/internal/dynlib"
	"github.com/san-kum/rbdrive/internal/logging"
	"github.com/san-kum/rbdrive/internal/managed"
	"github.com/san-kum/rbdrive/internal/pipeline"
	"github.com/san-kum/rbdrive/internal/storage"
)

var log = logging.For("cli")

type options struct {
	urdf     string
	floating bool
	csv      string

	scalar     string
	image      string
	configFile string
	preset     string
	iterations int
	verify     bool
	verbosity  int
	logFile    string
	dataDir    string
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	o := &options{}

	rootCmd := &cobra.Command{
		Use:          "rbdrive -u model.urdf -c inputs.csv",
		Short:        "rigid-body dynamics driver for the embedded numeric runtime",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDriver(cmd, o, out)
		},
	}
	rootCmd.SetOut(out)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&o.scalar, "scalar", config.DefaultScalar, "scalar type (float64|float32)")
	pf.StringVar(&o.configFile, "config", "", "config file path (yaml or toml)")
	pf.StringVar(&o.preset, "preset", "", "use preset configuration")
	pf.CountVarP(&o.verbosity, "verbose", "v", "log verbosity (repeat for more)")
	pf.StringVar(&o.logFile, "log-file", "", "log to file instead of stderr")
	pf.StringVar(&o.dataDir, "data", "", "data directory for run records")

	f := rootCmd.Flags()
	f.StringVarP(&o.urdf, "urdf", "u", "", "path to the URDF model")
	f.BoolVarP(&o.floating, "floating", "f", false, "attach the root link with a floating joint")
	f.StringVarP(&o.csv, "csv", "c", "", "path to the input CSV")
	f.StringVar(&o.image, "image", "", "bootstrap image path")
	f.IntVar(&o.iterations, "iterations", config.DefaultIterations, "repeat the numeric calls")
	f.BoolVar(&o.verify, "verify", false, "check the forward dynamics result")

	imageCmd := &cobra.Command{
		Use:   "image [out]",
		Short: "write a bootstrap image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeImage(cmd, o, args[0], out)
		},
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(out, "presets:")
			for _, p := range config.ListPresets() {
				fmt.Fprintf(out, "  %s\n", p)
			}
		},
	}

	runsCmd := &cobra.Command{
		Use:   "runs [run_id]",
		Short: "list stored runs, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showRuns(o, args, out)
		},
	}

	rootCmd.AddCommand(imageCmd, presetsCmd, runsCmd)
	return rootCmd
}

// resolveConfig layers defaults, preset, config file and changed flags, in
// that order.
func resolveConfig(cmd *cobra.Command, o *options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if o.preset != "" {
		if err := config.ApplyPreset(cfg, o.preset); err != nil {
			return nil, err
		}
	}
	if o.configFile != "" {
		if err := config.LoadInto(o.configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("scalar") {
		cfg.Scalar = o.scalar
	}
	if flags.Changed("verbose") {
		cfg.Log.Verbosity = o.verbosity
	}
	if flags.Changed("log-file") {
		cfg.Log.Path = o.logFile
	}
	if flags.Lookup("image") != nil && flags.Changed("image") {
		cfg.Image = o.image
	}
	if flags.Lookup("iterations") != nil && flags.Changed("iterations") {
		cfg.Iterations = o.iterations
	}
	if flags.Lookup("verify") != nil && flags.Changed("verify") {
		cfg.Verify.Enabled = o.verify
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runDriver(cmd *cobra.Command, o *options, out io.Writer) error {
	if o.urdf == "" {
		return errors.New("must pass in URDF argument (-u)")
	}
	if o.csv == "" {
		return errors.New("must pass in CSV argument (-c)")
	}
	cfg, err := resolveConfig(cmd, o)
	if err != nil {
		return err
	}
	logging.Configure(cfg.Log.Verbosity, cfg.Log.Path)

	elem, err := cfg.ElemType()
	if err != nil {
		return err
	}
	log.Debugf("csv %s accepted, inputs are synthetic", o.csv)

	var report *pipeline.Report
	switch elem {
	case managed.Float32:
		report, err = run[float32](cfg, o, out)
	default:
		report, err = run[float64](cfg, o, out)
	}
	if err != nil {
		return err
	}
	printReport(out, report)

	if o.dataDir != "" {
		st := storage.New(o.dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		if _, err := st.Save(report); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		fmt.Fprintf(out, "saved run %s to %s\n", report.RunID, o.dataDir)
	}
	return nil
}

// run boots a runtime of scalar type T, binds the library and drives the
// pipeline once. The scalar banner is printed only once the library is bound.
func run[T managed.Scalar](cfg *config.Config, o *options, out io.Writer) (report *pipeline.Report, err error) {
	rt, err := managed.Init[T](cfg.RuntimeOptions())
	if err != nil {
		return nil, err
	}
	defer func() {
		code := 0
		if err != nil {
			code = 1
		}
		rt.Shutdown(code)
	}()

	lib, err := dynlib.Bind(rt, dynlib.Options{Gravity: cfg.Gravity})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Scalar type: %s\n", rt.ElemType())

	in := cfg.Inputs
	p := pipeline.New(lib, pipeline.Options[T]{
		URDFPath:   o.urdf,
		Floating:   o.floating,
		Inputs:     pipeline.Synthetic[T]{Q: T(in.Q), V: T(in.V), VdDesired: T(in.VdDesired), Tau: T(in.Tau)},
		Iterations: cfg.Iterations,
		Verify:     cfg.Verify.Enabled,
		Tolerance:  cfg.Verify.Tolerance,
	})
	return p.Run()
}

func printReport(out io.Writer, r *pipeline.Report) {
	fmt.Fprintf(out, "run %s\n", r.RunID)
	fmt.Fprintf(out, "mechanism: %s (nq=%d nv=%d)\n", r.Mechanism, r.NQ, r.NV)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tTIME")
	for _, stage := range []pipeline.Stage{
		pipeline.MechanismLoaded,
		pipeline.Allocated,
		pipeline.BuffersBound,
		pipeline.InputsReady,
		pipeline.InverseDynamicsDone,
		pipeline.MassMatrixDone,
		pipeline.ForwardDynamicsDone,
	} {
		fmt.Fprintf(w, "%s\t%s\n", stage, r.Elapsed(stage))
	}
	w.Flush()

	fmt.Fprintf(out, "iterations: %d, collections: %d, relocations: %d\n", r.Iterations, r.Collections, r.Relocations)
	for _, name := range slices.Sorted(maps.Keys(r.Metrics)) {
		fmt.Fprintf(out, "%s: %.6g\n", name, r.Metrics[name])
	}
	if r.Verified {
		fmt.Fprintf(out, "verified: residual %.3g, round trip %.3g\n", r.Residual, r.RoundTrip)
	}
}

func writeImage(cmd *cobra.Command, o *options, path string, out io.Writer) error {
	cfg, err := resolveConfig(cmd, o)
	if err != nil {
		return err
	}
	logging.Configure(cfg.Log.Verbosity, cfg.Log.Path)

	elem, err := cfg.ElemType()
	if err != nil {
		return err
	}
	img := dynlib.NewImage(elem)
	cfg.ApplyImage(img)
	if err := managed.WriteImage(path, img); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s image (abi %d, %d entry points) to %s\n", elem, img.ABI, len(img.Entrypoints), path)
	return nil
}

func showRuns(o *options, args []string, out io.Writer) error {
	if o.dataDir == "" {
		return errors.New("must pass in data directory (--data)")
	}
	st := storage.New(o.dataDir)

	if len(args) == 1 {
		meta, err := st.Load(args[0])
		if err != nil {
			return err
		}
		return storage.Export(out, meta)
	}

	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMECHANISM\tSCALAR\tNV\tVERIFIED\tTIMESTAMP")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%s\n", r.ID, r.Mechanism, r.Scalar, r.NV, r.Verified, r.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
