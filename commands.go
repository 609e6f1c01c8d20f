package mnists

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// NewCommand creates a Cobra command tree for dataset management. The
// returned command can be used as a root command or added to a parent CLI.
//
// Commands provided:
//   - mnists list
//   - mnists pull <dataset>... [--force] [--descriptor <file>]
//   - mnists info <dataset>
//   - mnists classes <dataset>
//   - mnists path <dataset>
//   - mnists verify [<dataset>...]
//   - mnists remove <dataset> [--yes]
//
// Global flags: --root, --json, --quiet
//
// The given options are applied to every dataset the commands construct;
// options derived from flags (such as --root) are applied after them and
// take precedence.
func NewCommand(opts ...Option) *cobra.Command {
	var (
		rootDir    string
		jsonOutput bool
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "mnists",
		Short: "Manage MNIST-family datasets",
		Long: "Download, verify and inspect MNIST-family datasets (MNIST, FashionMNIST,\n" +
			"KMNIST, EMNIST, QMNIST) cached from their upstream mirrors.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&rootDir, "root", "", "Cache root directory (default $"+EnvRootDir+" or <tmp>/mnists)")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")

	cmd.AddCommand(
		listCmd(opts, &rootDir, &jsonOutput),
		pullCmd(opts, &rootDir, &quiet),
		infoCmd(opts, &rootDir, &jsonOutput),
		classesCmd(opts, &rootDir, &jsonOutput),
		pathCmd(opts, &rootDir),
		verifyCmd(opts, &rootDir, &jsonOutput, &quiet),
		removeCmd(opts, &rootDir, &quiet),
	)

	return cmd
}

// datasetOptions combines the embedding caller's options with flag-derived
// ones. Flag options come last so they take precedence.
func datasetOptions(base []Option, rootDir string) []Option {
	all := append([]Option(nil), base...)
	if rootDir != "" {
		all = append(all, WithRoot(rootDir))
	}
	return all
}

func listCmd(base []Option, rootDir *string, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in dataset variants",
		Long:  "List the built-in dataset variants together with their local cache state.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			type variantStatus struct {
				Name    string `json:"name"`
				Dir     string `json:"dir"`
				Classes int    `json:"classes"`
				Cached  int    `json:"cached"`
				Files   int    `json:"files"`
				Size    int64  `json:"size"`
			}

			var rows []variantStatus
			for _, desc := range Variants() {
				ds, err := New(desc, datasetOptions(base, *rootDir)...)
				if err != nil {
					return err
				}

				row := variantStatus{
					Name:    ds.Name(),
					Dir:     ds.Dir(),
					Classes: len(desc.Classes),
					Files:   len(desc.resources()),
				}
				for _, res := range desc.resources() {
					fi, err := os.Stat(filepath.Join(ds.Dir(), res.Filename))
					if err != nil {
						continue
					}
					row.Cached++
					row.Size += fi.Size()
				}
				rows = append(rows, row)
			}

			if *jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCLASSES\tCACHED\tSIZE")
			for _, row := range rows {
				size := "-"
				if row.Size > 0 {
					size = humanize.Bytes(uint64(row.Size))
				}
				fmt.Fprintf(tw, "%s\t%d\t%d/%d\t%s\n", row.Name, row.Classes, row.Cached, row.Files, size)
			}
			return tw.Flush()
		},
	}
}

func pullCmd(base []Option, rootDir *string, quiet *bool) *cobra.Command {
	var (
		force    bool
		descFile string
	)

	cmd := &cobra.Command{
		Use:   "pull <dataset>...",
		Short: "Download dataset files into the cache",
		Long: "Download and verify every file of the named datasets. Files already cached\n" +
			"with a matching checksum are skipped unless --force is given.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			descs, err := pulledDescriptors(args, descFile)
			if err != nil {
				return err
			}

			for _, desc := range descs {
				opts := datasetOptions(base, *rootDir)
				if force {
					opts = append(opts, WithForce())
				}

				var done func()
				if !*quiet {
					var progress func(Progress)
					progress, done = progressPrinter(out)
					opts = append(opts, WithProgress(progress))
				}

				ds, err := New(desc, opts...)
				if err != nil {
					return err
				}

				err = ds.Fetch(cmd.Context())
				if done != nil {
					done()
				}
				if err != nil {
					return err
				}
				if !*quiet {
					fmt.Fprintf(out, "Fetched %s into %s\n", ds.Name(), ds.Dir())
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-download files even when already cached")
	cmd.Flags().StringVar(&descFile, "descriptor", "", "Also pull the dataset described by a YAML descriptor file")
	return cmd
}

// pulledDescriptors resolves pull arguments to descriptors: each named
// built-in variant, plus the descriptor file when one is given.
func pulledDescriptors(names []string, descFile string) ([]Descriptor, error) {
	var descs []Descriptor
	for _, name := range names {
		desc, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		descs = append(descs, desc)
	}
	if descFile != "" {
		desc, err := LoadDescriptor(descFile)
		if err != nil {
			return nil, err
		}
		descs = append(descs, desc)
	}
	if len(descs) == 0 {
		return nil, fmt.Errorf("no datasets given: name at least one variant or pass --descriptor")
	}
	return descs, nil
}

func infoCmd(base []Option, rootDir *string, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "info <dataset>",
		Short: "Show details of a dataset variant",
		Long: "Show the mirrors, files, checksums and cache state of a dataset variant.\n" +
			"For cached IDX files the decoded shape is shown as well.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := Open(args[0], datasetOptions(base, *rootDir)...)
			if err != nil {
				return err
			}
			desc := ds.Descriptor()

			report := func(filename, md5sum string, idx bool) fileReport {
				r := fileReport{Name: filename, MD5: md5sum}
				path := filepath.Join(ds.Dir(), filename)
				fi, err := os.Stat(path)
				if err != nil {
					return r
				}
				r.Cached = true
				r.Size = fi.Size()
				if idx {
					if kind, dims, ok := cachedShape(path); ok {
						r.Shape = shapeString(kind, dims)
					}
				}
				return r
			}

			var files []fileReport
			for _, res := range desc.resources() {
				files = append(files, report(res.Filename, res.MD5, true))
			}
			var archive *fileReport
			if desc.Archive != nil {
				a := report(desc.Archive.Filename, desc.Archive.MD5, false)
				archive = &a
			}

			if *jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Name      string       `json:"name"`
					Dir       string       `json:"dir"`
					Classes   int          `json:"classes"`
					Transpose bool         `json:"transpose,omitempty"`
					Mirrors   []string     `json:"mirrors"`
					Archive   *fileReport  `json:"archive,omitempty"`
					Files     []fileReport `json:"files"`
				}{ds.Name(), ds.Dir(), len(desc.Classes), desc.Transpose, desc.Mirrors, archive, files})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:       %s\n", ds.Name())
			fmt.Fprintf(out, "Cache dir:  %s\n", ds.Dir())
			fmt.Fprintf(out, "Classes:    %d\n", len(desc.Classes))
			if desc.Transpose {
				fmt.Fprintf(out, "Transpose:  true\n")
			}
			fmt.Fprintln(out, "Mirrors:")
			for _, mirror := range desc.Mirrors {
				fmt.Fprintf(out, "  %s\n", mirror)
			}
			if archive != nil {
				state := "not cached"
				if archive.Cached {
					state = "cached, " + humanize.Bytes(uint64(archive.Size))
				}
				fmt.Fprintf(out, "Archive:    %s (%s)\n", archive.Name, state)
			}

			fmt.Fprintln(out, "Files:")
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "  NAME\tCACHED\tSIZE\tSHAPE")
			for _, f := range files {
				size, shape := "-", "-"
				if f.Cached {
					size = humanize.Bytes(uint64(f.Size))
				}
				if f.Shape != "" {
					shape = f.Shape
				}
				fmt.Fprintf(tw, "  %s\t%v\t%s\t%s\n", f.Name, f.Cached, size, shape)
			}
			return tw.Flush()
		},
	}
}

type fileReport struct {
	Name   string `json:"name"`
	MD5    string `json:"md5,omitempty"`
	Cached bool   `json:"cached"`
	Size   int64  `json:"size,omitempty"`
	Shape  string `json:"shape,omitempty"`
}

// cachedShape reads the IDX header of a cached file without decoding the
// payload.
func cachedShape(path string) (Kind, []int, bool) {
	rc, _, err := openPayload(path)
	if err != nil {
		return 0, nil, false
	}
	defer rc.Close()

	kind, dims, err := ReadIDXHeader(rc)
	if err != nil {
		return 0, nil, false
	}
	return kind, dims, true
}

func shapeString(kind Kind, dims []int) string {
	if len(dims) == 0 {
		return "scalar " + kind.String()
	}
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, "x") + " " + kind.String()
}

func classesCmd(base []Option, rootDir *string, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "classes <dataset>",
		Short: "Print the class names of a variant",
		Long:  "Print one class name per line. The line index is the label value.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := Open(args[0], datasetOptions(base, *rootDir)...)
			if err != nil {
				return err
			}

			classes := ds.Classes()
			if *jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(classes)
			}
			for i, class := range classes {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", i, class)
			}
			return nil
		},
	}
}

func pathCmd(base []Option, rootDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "path <dataset>",
		Short: "Print the cache directory of a variant",
		Long:  "Print the directory the variant's files are cached in, whether it exists or not.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := Open(args[0], datasetOptions(base, *rootDir)...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ds.Dir())
			return nil
		},
	}
}

func verifyCmd(base []Option, rootDir *string, jsonOutput, quiet *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [<dataset>...]",
		Short: "Verify cached files against their checksums",
		Long: "Re-hash cached dataset files and compare them with the published MD5\n" +
			"checksums. With no arguments every built-in variant is verified.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			descs, err := namedOrAllDescriptors(args)
			if err != nil {
				return err
			}

			type fileCheck struct {
				Dataset string `json:"dataset"`
				File    string `json:"file"`
				Status  string `json:"status"`
			}

			var checks []fileCheck
			seen := make(map[string]bool)
			corrupt := 0
			for _, desc := range descs {
				ds, err := New(desc, datasetOptions(base, *rootDir)...)
				if err != nil {
					return err
				}

				files := desc.resources()
				if desc.Archive != nil {
					files = append(files, Resource{Filename: desc.Archive.Filename, MD5: desc.Archive.MD5})
				}
				for _, res := range files {
					path := filepath.Join(ds.Dir(), res.Filename)
					if seen[path] {
						continue
					}
					seen[path] = true

					status := checkStatus(path, res.MD5)
					if status == "corrupt" || status == "unreadable" {
						corrupt++
					}
					checks = append(checks, fileCheck{Dataset: ds.Name(), File: res.Filename, Status: status})
				}
			}

			if *jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(checks); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "DATASET\tFILE\tSTATUS")
				for _, c := range checks {
					if *quiet && c.Status == "ok" {
						continue
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Dataset, c.File, c.Status)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			if corrupt > 0 {
				return fmt.Errorf("%d file(s) failed verification", corrupt)
			}
			return nil
		},
	}
}

// checkStatus reports the cache state of a single file: "missing" when it
// does not exist, "unverified" when no checksum is published for it, and
// "ok" or "corrupt" after re-hashing.
func checkStatus(path, md5sum string) string {
	if _, err := os.Stat(path); err != nil {
		return "missing"
	}
	if md5sum == "" {
		return "unverified"
	}
	sum, err := fileMD5(path)
	if err != nil {
		return "unreadable"
	}
	if strings.EqualFold(sum, md5sum) {
		return "ok"
	}
	return "corrupt"
}

// namedOrAllDescriptors resolves names to built-in descriptors, defaulting
// to all variants when no names are given.
func namedOrAllDescriptors(names []string) ([]Descriptor, error) {
	if len(names) == 0 {
		return Variants(), nil
	}
	var descs []Descriptor
	for _, name := range names {
		desc, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		descs = append(descs, desc)
	}
	return descs, nil
}

func removeCmd(base []Option, rootDir *string, quiet *bool) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "remove <dataset>",
		Short: "Remove a variant's cached files",
		Long: "Delete the variant's cache directory. EMNIST splits share one directory,\n" +
			"so removing one split removes the files of all of them.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			ds, err := Open(args[0], datasetOptions(base, *rootDir)...)
			if err != nil {
				return err
			}

			if !yes {
				fmt.Fprintf(out, "Remove %s? [y/N]: ", ds.Dir())
				if !confirmPrompt(cmd.InOrStdin()) {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}

			if err := ds.Remove(); err != nil {
				return err
			}
			if !*quiet {
				fmt.Fprintf(out, "Removed %s\n", ds.Dir())
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// confirmPrompt reads a line from r and reports whether it is an
// affirmative answer.
func confirmPrompt(r io.Reader) bool {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

// progressPrinter returns a Progress callback that renders a single-line
// bar per file, and a done func that terminates the last line. The callback
// serializes rendering so it is safe for concurrent fetches.
func progressPrinter(w io.Writer) (func(Progress), func()) {
	var (
		mu      sync.Mutex
		current string
		start   time.Time
	)

	render := func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		if p.Filename != current {
			if current != "" {
				fmt.Fprintln(w)
			}
			current = p.Filename
			start = time.Now()
		}
		renderProgress(w, p, start)
	}
	done := func() {
		mu.Lock()
		defer mu.Unlock()
		if current != "" {
			fmt.Fprintln(w)
			current = ""
		}
	}
	return render, done
}

// renderProgress renders one line of download progress, overwriting the
// previous render.
func renderProgress(w io.Writer, p Progress, start time.Time) {
	elapsed := time.Since(start)

	var speed float64
	if secs := elapsed.Seconds(); secs > 0 {
		speed = float64(p.Fetched) / secs
	}

	if p.Total <= 0 {
		fmt.Fprintf(w, "\r\x1b[K%s  %s (%s/s, %s)",
			p.Filename, humanize.Bytes(uint64(p.Fetched)), humanize.Bytes(uint64(speed)), formatDuration(elapsed))
		return
	}

	pct := float64(p.Fetched) / float64(p.Total) * 100
	if pct > 100 {
		pct = 100
	}

	const barWidth = 30
	filled := int(pct / 100 * float64(barWidth))
	var bar string
	switch {
	case filled >= barWidth:
		bar = strings.Repeat("=", barWidth)
	case filled > 0:
		bar = strings.Repeat("=", filled) + ">" + strings.Repeat(" ", barWidth-filled-1)
	default:
		bar = ">" + strings.Repeat(" ", barWidth-1)
	}

	fmt.Fprintf(w, "\r\x1b[K%s  [%s] %3.0f%% (%s/s, %s)",
		p.Filename, bar, pct, humanize.Bytes(uint64(speed)), formatDuration(elapsed))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
