package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rehabcal/internal/config"
	"rehabcal/internal/fetch"
	"rehabcal/internal/ics"
	"rehabcal/internal/importer"
	"rehabcal/internal/journal"
	appLog "rehabcal/internal/log"
	"rehabcal/internal/scheduler"
	"rehabcal/internal/web"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "rehabcal",
		Short:         "Import calendar exports (ICS, JSON, CSV) into rehab schedule records",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("log-level") {
				return nil
			}
			level, ok := appLog.ParseLevel(logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", logLevel)
			}
			appLog.SetLevel(level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	root.AddCommand(newImportCmd(), newExportCmd(), newServeCmd())
	return root
}

func newImportCmd() *cobra.Command {
	var (
		format      string
		asJSON      bool
		journalPath string
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Decode an export file and report how many events were read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := importFile(args[0], format)
			if err != nil {
				return report(cmd, err)
			}
			if journalPath != "" {
				if err := recordImport(cmd.Context(), journalPath, args[0], rep); err != nil {
					return report(cmd, err)
				}
			}
			return printReport(cmd.OutOrStdout(), rep, asJSON)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Export format: ics, json or csv (default: file extension)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full report, records included, as JSON")
	cmd.Flags().StringVar(&journalPath, "journal", "", "Record the run in this sqlite journal")
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Convert an export file into an iCalendar feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := importFile(args[0], format)
			if err != nil {
				return report(cmd, err)
			}
			feed, skipped := ics.Encode(rep.Records, ics.EncodeOptions{})

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				if err := os.WriteFile(out, []byte(feed), 0o644); err != nil {
					return report(cmd, err)
				}
			} else {
				_, _ = io.WriteString(w, feed)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s, %d skipped on export\n", rep.Summary(), skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Export format: ics, json or csv (default: file extension)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Write the feed to this file instead of stdout")
	return cmd
}

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the import API and the scheduled re-import of configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, configPath, listen)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "/etc/rehabcal/config.yaml", "Path to config file (.yaml or .toml)")
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func serve(cmd *cobra.Command, configPath, listen string) error {
	appLog.Info("rehabcal starting", "version", version)

	conf, err := config.Load(configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", configPath)
		return err
	}
	// CLI --listen overrides config file listen if provided.
	if listen != "" {
		conf.Listen = listen
	}
	// The --log-level flag, when given, wins over the config file.
	if !cmd.Flags().Changed("log-level") {
		level, _ := appLog.ParseLevel(conf.LogLevel)
		appLog.SetLevel(level)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"refresh", conf.RefreshCron,
		"sources", len(conf.Sources),
		"journal", conf.JournalPath,
		"cache_dir", conf.CacheDir,
	)

	j, err := journal.Open(conf.JournalPath)
	if err != nil {
		appLog.Error("failed to open journal", err, "path", conf.JournalPath)
		return err
	}
	defer j.Close()

	sched := scheduler.New(conf, fetch.NewFetcher(conf.CacheDir, conf.MaxBodyBytes), j, nil)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(conf.Sources) > 0 {
		go sched.RunOnce(ctx)
	}
	if err := sched.Start(); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}()

	err = web.NewServer(conf, j, sched).Serve(ctx)
	appLog.Info("rehabcal exiting")
	return err
}

func importFile(path, format string) (importer.Report, error) {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return importer.Report{}, err
	}
	return importer.Engine{}.Run(string(data), format)
}

func recordImport(ctx context.Context, path, source string, rep importer.Report) error {
	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()
	return j.Record(ctx, journal.Entry{
		ID:            rep.ID,
		Source:        source,
		Format:        rep.Format,
		Found:         rep.Found,
		Imported:      rep.Imported,
		DateFallbacks: rep.DateFallbacks,
	})
}

func printReport(w io.Writer, rep importer.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	fmt.Fprintln(w, rep.Summary())
	for _, r := range rep.Records {
		line := fmt.Sprintf("  %s  %s -> %s", r.Title, r.StartTime, r.EndTime)
		if r.Status != "" {
			line += "  [" + string(r.Status) + "]"
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

// report prints err on the command's stderr and returns it so cobra exits
// non-zero.
func report(cmd *cobra.Command, err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: cannot read %s: %v\n", pathErr.Path, pathErr.Err)
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
	return err
}
