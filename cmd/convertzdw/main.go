// Command convertzdw converts tab-separated .sql export files (with
// .desc.sql side-cars) into ZDW archives.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/adobe/zdw"
	"github.com/adobe/zdw/errs"
	"github.com/adobe/zdw/section"
)

const version = "10.0"

type convertFlags struct {
	bzip2        bool
	xz           bool
	outputDir    string
	stdin        bool
	quiet        bool
	removeOld    bool
	trimSpaces   bool
	validate     bool
	zargs        string
	memLimitMB   float64
	version11    bool
	metadata     []string
	metadataFile string
}

func main() {
	flags := &convertFlags{}

	root := &cobra.Command{
		Use:     "convertzdw [flags] file1.sql [file2.sql ...]",
		Short:   "Convert tab-separated .sql exports to the ZDW archival format",
		Version: version,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(flags, args)
		},
	}

	root.Flags().BoolVarP(&flags.bzip2, "bzip2", "b", false, "compress with bzip2 (default gzip)")
	root.Flags().BoolVarP(&flags.xz, "xz", "J", false, "compress with xz (default gzip)")
	root.Flags().StringVarP(&flags.outputDir, "output-dir", "d", "", "output directory (default: alongside the source)")
	root.Flags().BoolVarP(&flags.stdin, "stdin", "i", false, "stream input from stdin; the positional argument names the output")
	root.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "no status or progress output")
	root.Flags().BoolVarP(&flags.removeOld, "remove", "r", false, "delete source files after successful conversion")
	root.Flags().BoolVarP(&flags.trimSpaces, "trim", "t", false, "trim trailing spaces from fields")
	root.Flags().BoolVarP(&flags.validate, "validate", "v", false, "validate the produced archive against the source")
	root.Flags().StringVar(&flags.zargs, "zargs", "", "arguments passed to the file compressor (e.g. -9)")
	root.Flags().Float64Var(&flags.memLimitMB, "mem-limit", 0, "RAM ceiling in MB (default 3072)")
	root.Flags().BoolVar(&flags.version11, "version11", false, "emit the version 11 format (metadata block)")
	root.Flags().StringArrayVar(&flags.metadata, "metadata", nil, "metadata pair as key=value, also spelled --metadata:key=value (repeatable; requires --version11)")
	root.Flags().StringVar(&flags.metadataFile, "metadata-file", "", "file of key=value metadata pairs")

	// Accept the classic --metadata:<k>=<v> spelling as well.
	args := os.Args[1:]
	for i, arg := range args {
		if pair, ok := strings.CutPrefix(arg, "--metadata:"); ok {
			args[i] = "--metadata=" + pair
		}
	}
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ZDW conversion failed. Internal error code=%d (%v)\n", errs.Code(err), err)
		os.Exit(errs.Code(err))
	}
}

func run(flags *convertFlags, args []string) error {
	logger := log.NewNopLogger()
	if !flags.quiet {
		logger = level.NewFilter(log.NewLogfmtLogger(os.Stderr), level.AllowInfo())
	}

	metadata, err := collectMetadata(flags)
	if err != nil {
		return err
	}

	conv := &zdw.FileConverter{
		Compression:        compressionName(flags),
		CompressionArgs:    flags.zargs,
		OutputDir:          flags.outputDir,
		Validate:           flags.validate,
		RemoveSource:       flags.removeOld,
		TrimTrailingSpaces: flags.trimSpaces,
		MemoryLimitMB:      flags.memLimitMB,
		Version11:          flags.version11,
		Metadata:           metadata,
		Logger:             logger,
	}

	if flags.stdin {
		if len(args) != 1 {
			return fmt.Errorf("%w: stdin mode takes exactly one output basename", errs.ErrTooManyInputFiles)
		}
		base := strings.TrimSuffix(args[0], ".sql")
		outPath, err := conv.ConvertStream(os.Stdin, base+".desc.sql", base)
		if err != nil {
			return err
		}
		level.Info(logger).Log("msg", "done", "file", outPath)

		return nil
	}

	for _, arg := range args {
		if !strings.HasSuffix(arg, ".sql") {
			return fmt.Errorf("%w: %s must have a .sql extension", errs.ErrBadParameter, arg)
		}
		outPath, err := conv.ConvertFile(arg)
		if err != nil {
			return err
		}
		level.Info(logger).Log("msg", "done", "file", outPath)
	}

	return nil
}

func compressionName(flags *convertFlags) string {
	switch {
	case flags.bzip2:
		return "bzip2"
	case flags.xz:
		return "xz"
	default:
		return "gzip"
	}
}

func collectMetadata(flags *convertFlags) ([]section.MetadataPair, error) {
	var pairs []section.MetadataPair
	for _, item := range flags.metadata {
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not key=value", errs.ErrBadMetadataParam, item)
		}
		pairs = append(pairs, section.MetadataPair{Key: key, Value: value})
	}
	if flags.metadataFile != "" {
		filePairs, err := zdw.LoadMetadataFile(flags.metadataFile)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, filePairs...)
	}
	if len(pairs) > 0 && !flags.version11 {
		return nil, fmt.Errorf("%w: metadata requires --version11", errs.ErrBadMetadataParam)
	}

	return pairs, nil
}
