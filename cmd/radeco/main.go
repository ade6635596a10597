// Command radeco builds SSA graphs from a cached disassembly and
// renders or inspects them: "build" constructs every cached function,
// "dot" emits one function's graph as Graphviz, "cache" inspects an
// on-disk FileCache's contents.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xandfury/radeco/pkg/config"
	"github.com/xandfury/radeco/pkg/dot"
	"github.com/xandfury/radeco/pkg/loader"
	"github.com/xandfury/radeco/pkg/regfile"
	"github.com/xandfury/radeco/pkg/source"
	"github.com/xandfury/radeco/pkg/ssa"
)

// toSSAInstrs projects a source-layer instruction batch down to the
// smaller record the construct driver consumes.
func toSSAInstrs(instrs []source.Instruction) []ssa.Instruction {
	out := make([]ssa.Instruction, len(instrs))
	for i, instr := range instrs {
		out[i] = instr.ToSSA()
	}
	return out
}

// offsetOrLookup resolves a "--function" flag value that is either a
// 0x-prefixed numeric offset or a function name, to a numeric offset.
func offsetOrLookup(cache *source.FileCache, function string) uint64 {
	if off, ok := parseHexOffset(function); ok {
		return off
	}
	fns, err := cache.Functions()
	if err != nil {
		return 0
	}
	for _, fn := range fns {
		if fn.Name == function {
			return fn.Offset
		}
	}
	return 0
}

func parseHexOffset(s string) (uint64, bool) {
	if len(s) < 3 || s[0:2] != "0x" {
		return 0, false
	}
	var v uint64
	for _, r := range s[2:] {
		var d uint64
		switch {
		case r >= '0' && r <= '9':
			d = uint64(r - '0')
		case r >= 'a' && r <= 'f':
			d = uint64(r-'a') + 10
		case r >= 'A' && r <= 'F':
			d = uint64(r-'A') + 10
		default:
			return 0, false
		}
		v = v*16 + d
	}
	return v, true
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "radeco",
		Short: "Construct SSA graphs from a cached disassembly",
	}
	root.AddCommand(newBuildCmd())
	root.AddCommand(newDotCmd())
	root.AddCommand(newCacheCmd())
	return root
}

// resolveProfile loads the register profile named by the config (a
// FileCache path prefix); without one it uses the build cache's own
// register profile, falling back to the built-in Z80 example profile
// (§"register-profile driven example architecture") when that is empty.
func resolveProfile(cfg config.Config, cache *source.FileCache) (*regfile.Profile, error) {
	if cfg.RegisterProfile == "" {
		reg, err := cache.RegisterProfile()
		if err == nil && len(reg.Registers) > 0 {
			return reg.ToProfile(), nil
		}
		return regfile.Z80Profile(), nil
	}
	fc, err := source.OpenFileCache(cfg.RegisterProfile)
	if err != nil {
		return nil, err
	}
	reg, err := fc.RegisterProfile()
	if err != nil {
		return nil, err
	}
	return reg.ToProfile(), nil
}

func buildLogger() *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

func newBuildCmd() *cobra.Command {
	var cachePath string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Construct SSA graphs for every function in a cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}

			cache, err := source.OpenFileCache(cachePath)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			profile, err := resolveProfile(cfg, cache)
			if err != nil {
				return fmt.Errorf("resolve register profile: %w", err)
			}

			fns, err := cache.Functions()
			if err != nil {
				return fmt.Errorf("list functions: %w", err)
			}

			log := buildLogger()
			defer log.Sync() //nolint:errcheck

			pool := loader.NewPool(profile, cfg.AssumeCC, cfg.ReplacePC, cfg.Workers, log)
			jobs := make([]loader.Job, 0, len(fns))
			for _, fn := range fns {
				instrs, err := cache.InstructionsAt(fn.Offset)
				if err != nil {
					log.Warnw("skipping function with no cached instructions",
						"function", fn.Name, "addr", fn.Offset, "reason", err)
					continue
				}
				job := loader.Job{Offset: fn.Offset, Name: fn.Name, Instrs: toSSAInstrs(instrs)}
				jobs = append(jobs, job)
			}

			fmt.Printf("radeco build: %d functions queued\n", len(jobs))
			pool.Run(jobs, cfg.Verbose)

			comp, failed := pool.Stats()
			fmt.Printf("built %d functions, %d failed\n", comp, failed)
			for _, r := range pool.Results.All() {
				if r.Err != nil {
					fmt.Printf("  FAILED %s @ 0x%x: %v\n", r.Name, r.Offset, r.Err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cachePath, "cache", "", "path prefix of the on-disk function cache (<dir>/<base>)")
	cmd.Flags().Bool("assume_cc", false, "model call sites via calling-convention argument/return binding")
	cmd.Flags().Bool("replace_pc", false, "materialize PC reads as addr+size constants")
	cmd.Flags().Int("workers", 0, "loader worker count (0 = NumCPU)")
	cmd.Flags().BoolP("verbose", "v", false, "print loader progress")
	_ = cmd.MarkFlagRequired("cache")
	return cmd
}

func newDotCmd() *cobra.Command {
	var cachePath string
	var function string
	var output string

	cmd := &cobra.Command{
		Use:   "dot",
		Short: "Emit one function's SSA graph as Graphviz dot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}

			cache, err := source.OpenFileCache(cachePath)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			profile, err := resolveProfile(cfg, cache)
			if err != nil {
				return fmt.Errorf("resolve register profile: %w", err)
			}

			fn, err := source.FunctionAt(cache, offsetOrLookup(cache, function))
			if err != nil {
				return fmt.Errorf("find function %q: %w", function, err)
			}
			instrs, err := cache.InstructionsAt(fn.Offset)
			if err != nil {
				return fmt.Errorf("instructions for %q: %w", function, err)
			}

			log := buildLogger()
			defer log.Sync() //nolint:errcheck

			c := ssa.NewConstructor(profile, cfg.AssumeCC, cfg.ReplacePC, log)
			if err := c.Process(toSSAInstrs(instrs)); err != nil {
				return fmt.Errorf("construct %q: %w", function, err)
			}

			out := dot.Emit(c.Graph())
			if output == "" {
				fmt.Print(out)
				return nil
			}
			return os.WriteFile(output, []byte(out), 0o644)
		},
	}
	cmd.Flags().StringVar(&cachePath, "cache", "", "path prefix of the on-disk function cache (<dir>/<base>)")
	cmd.Flags().StringVar(&function, "function", "", "function name or 0x-prefixed offset")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write dot to this file instead of stdout")
	cmd.Flags().Bool("assume_cc", false, "model call sites via calling-convention argument/return binding")
	cmd.Flags().Bool("replace_pc", false, "materialize PC reads as addr+size constants")
	_ = cmd.MarkFlagRequired("cache")
	_ = cmd.MarkFlagRequired("function")
	return cmd
}

func newCacheCmd() *cobra.Command {
	var cachePath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Summarize an on-disk function cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := source.OpenFileCache(cachePath)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			fns, err := cache.Functions()
			if err != nil {
				return err
			}
			fmt.Printf("cache %s: %d functions\n", cachePath, len(fns))
			for _, fn := range fns {
				instrs, err := cache.InstructionsAt(fn.Offset)
				count := 0
				if err == nil {
					count = len(instrs)
				}
				fmt.Printf("  0x%08x %-24s %4d instructions\n", fn.Offset, fn.Name, count)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cachePath, "cache", "", "path prefix of the on-disk function cache (<dir>/<base>)")
	_ = cmd.MarkFlagRequired("cache")
	return cmd
}
