package main

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zboralski/rplibc/internal/config"
	"github.com/zboralski/rplibc/internal/guest"
	"github.com/zboralski/rplibc/internal/libc"
	glog "github.com/zboralski/rplibc/internal/log"
	"github.com/zboralski/rplibc/internal/runtime/memfs"
	"github.com/zboralski/rplibc/internal/trace"
)

type runFlags struct {
	config  string
	runtime string
	root    string
	entry   string
	maxInsn uint64
	verbose bool
	trace   bool
	num     int
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [flags] <guest.elf> [args...]",
		Short: "Run a guest program and exit with its status",
		Long: `Load an ARM64 ELF, bind the libc stubs to the selected runtime and call
main(argc, argv). argv[0] is the ELF path; flags after it go to the guest.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			return runGuest(cfg, f, args[0], args[1:])
		},
	}
	cmd.Flags().SetInterspersed(false)
	f.register(cmd)
	return cmd
}

func (f *runFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "YAML run configuration")
	fl.StringVar(&f.runtime, "runtime", config.RuntimeHost, "runtime: host or memory")
	fl.StringVar(&f.root, "root", "", "host directory that guest paths resolve under")
	fl.StringVar(&f.entry, "entry", guest.DefaultEntry, "symbol to call")
	fl.Uint64Var(&f.maxInsn, "max-insn", 0, "instruction budget (0 = unlimited)")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging of every libc call")
	fl.BoolVarP(&f.trace, "trace", "t", false, "print executed instructions on stderr")
	fl.IntVarP(&f.num, "num", "n", 500, "max instructions to print with --trace")
}

// resolve loads the config file, if any, and applies flags the user set.
func (f *runFlags) resolve(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if f.config != "" {
		var err error
		if cfg, err = config.Load(f.config); err != nil {
			return nil, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("runtime") {
		cfg.Runtime = f.runtime
	}
	if changed("root") {
		cfg.Root = f.root
	}
	if changed("max-insn") {
		cfg.MaxInsn = f.maxInsn
	}
	if f.verbose {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newRuntime builds the runtime named by cfg. The memfs runtime is returned
// separately so its captured console can be copied out after the run.
func newRuntime(cfg *config.Config, logger *glog.Logger) (libc.Runtime, *memfs.Runtime, error) {
	if cfg.Runtime != config.RuntimeMemory {
		rt, err := hostRuntime(cfg.Root, logger)
		return rt, nil, err
	}

	opts := []memfs.Option{memfs.WithLogger(logger), memfs.WithStdin([]byte(cfg.Stdin))}
	for _, p := range cfg.FilePaths() {
		opts = append(opts, memfs.WithFile(p, []byte(cfg.Files[p])))
	}
	mem := memfs.New(opts...)
	return mem, mem, nil
}

// Trace and memory-runtime console output destinations.
var (
	traceOut  io.Writer = os.Stderr
	stdoutOut io.Writer = os.Stdout
	stderrOut io.Writer = os.Stderr
)

func runGuest(cfg *config.Config, f *runFlags, path string, args []string) error {
	glog.Init(cfg.Debug)
	logger := glog.L.WithRun(uuid.NewString())
	defer logger.Sync()

	if cfg.Debug {
		if out, err := cfg.Marshal(); err == nil {
			logger.Debug("config", zap.ByteString("yaml", out))
		}
	}

	rt, mem, err := newRuntime(cfg, logger)
	if err != nil {
		return err
	}
	if cfg.Debug {
		rt = trace.Wrap(rt, logger.WithCategory("runtime"))
	}

	var tr *tracer
	if f.trace {
		tr = newTracer(traceOut, f.num)
	}
	opts := guest.Options{
		Runtime:   rt,
		Logger:    logger,
		Entry:     f.entry,
		Fallbacks: cfg.Fallbacks,
		MaxString: cfg.MaxString,
		MaxInsn:   cfg.MaxInsn,
	}
	if tr != nil {
		opts.OnCall = tr.onCall
	}

	s, err := guest.New(opts)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer s.Close()

	if err := s.LoadFile(path); err != nil {
		return err
	}
	if tr != nil {
		tr.attach(s, f.entry)
	}

	logger.Info("run",
		zap.String("guest", path),
		zap.String("runtime", cfg.Runtime),
		zap.Int("bound", len(s.Binding.Bound)),
		zap.Strings("fallbacks", s.Binding.Fallbacks),
	)
	status, runErr := s.Run(append([]string{path}, args...)...)

	if tr != nil {
		tr.finish(status, runErr)
	}
	if mem != nil {
		stdoutOut.Write(mem.Stdout())
		stderrOut.Write(mem.Stderr())
	}
	if runErr != nil {
		return runErr
	}

	logger.Debug("exit", zap.Int("status", status))
	if status != 0 {
		return exitStatus(status)
	}
	return nil
}
