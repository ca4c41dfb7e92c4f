// Command unconvertzdw decodes ZDW archives back into tab-separated text
// with description side-cars.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/adobe/zdw"
	"github.com/adobe/zdw/codec"
	"github.com/adobe/zdw/errs"
)

const version = "10.0"

type unconvertFlags struct {
	toStdout      bool
	appendSuffix  string
	columns       string
	columnsSkip   string
	columnsFill   string
	columnsExcl   string
	outputDir     string
	stdin         bool
	descOnly      bool
	quiet         bool
	verbose       bool
	statsOnly     bool
	testOnly      bool
	noExtension   bool
	showMetadata  bool
	metadataKeys  bool
	metadataNames string
}

func main() {
	flags := &unconvertFlags{}

	root := &cobra.Command{
		Use:     "unconvertzdw [flags] file1.zdw[.gz|.bz2|.xz] [file2 ...]",
		Short:   "Decode ZDW archives back to tab-separated text",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(flags, args)
		},
	}

	root.Flags().BoolVar(&flags.toStdout, "stdout", false, "write rows to stdout, status text to stderr")
	root.Flags().StringVarP(&flags.appendSuffix, "append", "a", "", "string appended to output filenames")
	root.Flags().StringVarP(&flags.columns, "columns", "c", "", "comma-separated columns to output; invalid names are an error")
	root.Flags().StringVar(&flags.columnsSkip, "ci", "", "like --columns, but invalid names are ignored")
	root.Flags().StringVar(&flags.columnsFill, "ce", "", "like --columns, but absent names become empty text columns")
	root.Flags().StringVar(&flags.columnsExcl, "cx", "", "output all columns except this comma-separated list")
	root.Flags().StringVarP(&flags.outputDir, "output-dir", "d", "", "output directory (default: alongside the archive)")
	root.Flags().BoolVarP(&flags.stdin, "stdin", "i", false, "read archive data from stdin")
	root.Flags().BoolVarP(&flags.descOnly, "desc-only", "o", false, "write only the .desc side-car")
	root.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "no progress output (overrides -v)")
	root.Flags().BoolVarP(&flags.statsOnly, "stats", "s", false, "show basic file statistics only")
	root.Flags().BoolVarP(&flags.testOnly, "test", "t", false, "test archive integrity only")
	root.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "verbose progress output")
	root.Flags().BoolVarP(&flags.noExtension, "no-extension", "w", false, "no extension on output files (default .sql)")
	root.Flags().BoolVar(&flags.showMetadata, "metadata", false, "print the archive metadata pairs and exit")
	root.Flags().BoolVar(&flags.metadataKeys, "metadata-keys", false, "print the metadata keys and exit")
	root.Flags().StringVar(&flags.metadataNames, "metadata-values", "", "print the values of this comma-separated key list and exit")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "unconvertzdw failed: error code=%d (%v)\n", errs.Code(err), err)
		os.Exit(errs.Code(err))
	}
}

func run(flags *unconvertFlags, args []string) error {
	// A bare "-" positional selects stdout streaming, as the classic tool
	// did.
	files := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "-" {
			flags.toStdout = true
			continue
		}
		if arg == "" {
			return fmt.Errorf("%w: empty filename", errs.ErrBadParameter)
		}
		files = append(files, arg)
	}

	logger := log.NewNopLogger()
	if !flags.quiet {
		filter := level.AllowInfo()
		if flags.verbose {
			filter = level.AllowDebug()
		}
		logger = level.NewFilter(log.NewLogfmtLogger(os.Stderr), filter)
	}

	columns, rule, err := columnSelection(flags)
	if err != nil {
		return err
	}

	unconv := &zdw.FileUnconverter{
		OutputDir:    flags.outputDir,
		AppendSuffix: flags.appendSuffix,
		NoExtension:  flags.noExtension,
		ToStdout:     flags.toStdout,
		Columns:      columns,
		Rule:         rule,
		DescOnly:     flags.descOnly,
		TestOnly:     flags.testOnly,
		StatsOnly:    flags.statsOnly,
		Logger:       logger,
	}

	metadataMode := flags.showMetadata || flags.metadataKeys || flags.metadataNames != ""

	if flags.stdin {
		if metadataMode {
			return printMetadata(os.Stdin, "-", flags)
		}
		name := "-"
		if len(files) > 0 {
			name = files[0]
		}
		return unconv.Unconvert(os.Stdin, name)
	}

	if len(files) == 0 {
		return errs.ErrNoInputFiles
	}

	for _, file := range files {
		if metadataMode {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", errs.ErrFileOpen, file, err)
			}
			err = printMetadata(f, file, flags)
			f.Close()
			if err != nil {
				return err
			}
			continue
		}
		if err := unconv.UnconvertFile(file); err != nil {
			return err
		}
	}

	return nil
}

func columnSelection(flags *unconvertFlags) ([]string, codec.InclusionRule, error) {
	type selection struct {
		csv  string
		rule codec.InclusionRule
	}
	selections := []selection{
		{flags.columns, codec.FailOnInvalid},
		{flags.columnsSkip, codec.SkipInvalid},
		{flags.columnsFill, codec.FillMissing},
		{flags.columnsExcl, codec.Exclude},
	}

	var chosen *selection
	for i := range selections {
		if selections[i].csv == "" {
			continue
		}
		if chosen != nil {
			return nil, 0, fmt.Errorf("%w: multiple column selection flags", errs.ErrBadParameter)
		}
		chosen = &selections[i]
	}
	if chosen == nil {
		return nil, codec.FailOnInvalid, nil
	}

	names := splitCSV(chosen.csv)
	if len(names) == 0 {
		return nil, 0, fmt.Errorf("%w: empty column list", errs.ErrBadParameter)
	}

	return names, chosen.rule, nil
}

func splitCSV(csv string) []string {
	var names []string
	for _, name := range strings.FieldsFunc(csv, func(r rune) bool { return r == ',' || r == ' ' }) {
		if name != "" {
			names = append(names, name)
		}
	}

	return names
}

// printMetadata handles the metadata-only output modes.
func printMetadata(in *os.File, path string, flags *unconvertFlags) error {
	reader, err := zdw.OpenReader(in, path)
	if err != nil {
		return err
	}
	defer reader.Close()

	if err := reader.ReadHeader(); err != nil {
		return err
	}

	pairs := reader.Metadata()
	switch {
	case flags.metadataKeys:
		for _, pair := range pairs {
			fmt.Println(pair.Key)
		}
	case flags.metadataNames != "":
		wanted := splitCSV(flags.metadataNames)
		byKey := make(map[string]string, len(pairs))
		for _, pair := range pairs {
			byKey[pair.Key] = pair.Value
		}
		for _, key := range wanted {
			fmt.Println(byKey[key])
		}
	default:
		for _, pair := range pairs {
			fmt.Printf("%s=%s\n", pair.Key, pair.Value)
		}
	}

	return nil
}
