// xfscat - Read files and directories from XFS filesystem images
//
// Usage:
//
//	xfscat ls [-l] [-a] [-H] <image> [path]
//	xfscat cat <image> <path>
//	xfscat stat <image> <path>
//	xfscat info <image>
//	xfscat readdir [--start n] [--limit n] <image> [path]
//
// Images are local files or s3://bucket/key objects.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/lvdlvd/xfscat/cmd"
	"github.com/lvdlvd/xfscat/config"
	"github.com/lvdlvd/xfscat/detect"
	"github.com/lvdlvd/xfscat/fsys/xfs"
	"github.com/lvdlvd/xfscat/source"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "xfscat: %v\n", err)
		os.Exit(1)
	}
}

// app carries state shared by the subcommands once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	color      string

	cfg    *config.Config
	logger *log.Logger
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func newRootCmd(stderr io.Writer) *cobra.Command {
	a := &app{stderr: stderr}

	root := &cobra.Command{
		Use:           "xfscat",
		Short:         "Read files and directories from XFS filesystem images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default "+config.DefaultConfigPath()+")")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&a.color, "color", "", "colorize output: auto, always or never")

	root.AddCommand(a.lsCmd(), a.catCmd(), a.statCmd(), a.infoCmd(), a.readdirCmd())
	return root
}

// setup loads the configuration, applies flag overrides and builds the logger.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.color != "" {
		cfg.Output.Color = a.color
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	a.logger = log.NewWithOptions(a.stderr, log.Options{
		Level:     level,
		Prefix:    "xfscat",
		Formatter: formatter(cfg.Logging.Format),
	})
	a.cfg = cfg
	return nil
}

func formatter(name string) log.Formatter {
	switch name {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}

// withFS opens the image, mounts it and runs fn on the filesystem.
func (a *app) withFS(ctx context.Context, image string, fn func(*xfs.FS, detect.Type) error) error {
	img, err := source.Open(ctx, image, source.Options{S3: a.cfg.Source.S3, Logger: a.logger})
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer img.Close()

	fsType, err := detect.Detect(img)
	if err != nil {
		return fmt.Errorf("detecting filesystem: %w", err)
	}
	a.logger.Debug("detected", "image", image, "type", fsType, "size", img.Size())

	switch {
	case fsType.IsPartitionTable():
		return fmt.Errorf("%s is a partitioned image (%s); extract the XFS partition first", image, fsType)
	case !fsType.IsXFS():
		return fmt.Errorf("unknown or unsupported filesystem")
	}

	filesystem, err := xfs.Mount(img, img.Size(), xfs.Options{Logger: a.logger})
	if err != nil {
		return fmt.Errorf("opening filesystem: %w", err)
	}
	defer filesystem.Close()

	return fn(filesystem, fsType)
}

func (a *app) styles() cmd.Styles {
	return cmd.StylesFor(a.cfg.Output.Color)
}

func (a *app) lsCmd() *cobra.Command {
	var opts cmd.LsOptions
	var human bool

	c := &cobra.Command{
		Use:   "ls <image> [path]",
		Short: "List a directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(c *cobra.Command, args []string) error {
			path := "."
			if len(args) > 1 {
				path = args[1]
			}
			opts.Human = human || a.cfg.Output.HumanSizes
			opts.Styles = a.styles()
			return a.withFS(c.Context(), args[0], func(f *xfs.FS, _ detect.Type) error {
				return cmd.Ls(f, path, c.OutOrStdout(), opts)
			})
		},
	}
	c.Flags().BoolVarP(&opts.Long, "long", "l", false, "use long listing format")
	c.Flags().BoolVarP(&opts.All, "all", "a", false, "show entries starting with .")
	c.Flags().BoolVarP(&human, "human", "H", false, "print human readable sizes")
	return c
}

func (a *app) catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <image> <path>",
		Short: "Copy a file's contents to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return a.withFS(c.Context(), args[0], func(f *xfs.FS, _ detect.Type) error {
				return cmd.Cat(f, args[1], c.OutOrStdout())
			})
		},
	}
}

func (a *app) statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <image> <path>",
		Short: "Show file or directory details",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return a.withFS(c.Context(), args[0], func(f *xfs.FS, _ detect.Type) error {
				return cmd.Stat(f, args[1], c.OutOrStdout())
			})
		},
	}
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <image>",
		Short: "Show filesystem information",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return a.withFS(c.Context(), args[0], func(f *xfs.FS, t detect.Type) error {
				return cmd.Info(f, t, c.OutOrStdout())
			})
		},
	}
}

func (a *app) readdirCmd() *cobra.Command {
	var opts cmd.ReaddirOptions

	c := &cobra.Command{
		Use:   "readdir <image> [path]",
		Short: "Dump raw directory entries with their cursors",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(c *cobra.Command, args []string) error {
			path := "."
			if len(args) > 1 {
				path = args[1]
			}
			opts.Styles = a.styles()
			return a.withFS(c.Context(), args[0], func(f *xfs.FS, _ detect.Type) error {
				return cmd.Readdir(f, path, c.OutOrStdout(), opts)
			})
		},
	}
	c.Flags().Uint32Var(&opts.Start, "start", 0, "cursor to seek to before reading")
	c.Flags().IntVar(&opts.Limit, "limit", 0, "stop after this many entries")
	return c
}
