// Package cli implements the koatap command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/koatap/config"
	"github.com/adamwoolhether/koatap/sink"
	"github.com/adamwoolhether/koatap/tap"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// app carries what the subcommands share once flags are resolved.
type app struct {
	out    io.Writer
	errOut io.Writer

	configPath string
	profile    string
	verbose    bool

	settings config.Profile
	logger   *slog.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := app{out: out, errOut: errOut}

	rootCmd := &cobra.Command{
		Use:           "koatap",
		Short:         "Query the Keck Observatory Archive over TAP",
		Long:          "Submit ADQL queries to an IVOA TAP service, follow the resulting jobs and store their results.",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.resolve(cmd)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	defaults := config.Default()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default ~/.koatap/config.yaml, or $KOATAP_CONFIG)")
	pf.StringVarP(&a.profile, "profile", "p", "", "Config profile to use")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Log debug output to stderr")
	pf.String("base-url", defaults.BaseURL, "TAP service endpoint")
	pf.String("cookie-file", "", "Netscape cookie file written by the archive login")
	pf.String("format", defaults.Format, "Result format (votable, ipac, csv, tsv)")
	pf.Int("maxrec", 0, "Maximum number of rows, 0 for no limit")
	pf.Duration("poll-interval", defaults.PollInterval, "Pause between job status checks")
	pf.String("user-agent", "", "User-Agent header sent with every request")
	pf.Int("rps", 0, "Maximum requests per second, 0 for no limit")
	pf.Int("burst", 0, "Requests allowed at once above --rps")
	pf.Duration("timeout", 0, "Timeout for a single HTTP exchange, 0 for none")

	rootCmd.AddCommand(newQueryCmd(&a))
	rootCmd.AddCommand(newStatusCmd(&a))
	rootCmd.AddCommand(newConfigCmd(&a))

	return rootCmd
}

// resolve applies flag > env > profile > default precedence and sets up
// logging.
func (a *app) resolve(cmd *cobra.Command) error {
	if a.configPath == "" {
		a.configPath = config.Path()
	}

	file, err := config.LoadOrEmpty(a.configPath)
	if err != nil {
		return err
	}

	env, err := config.FromEnv(os.LookupEnv)
	if err != nil {
		return err
	}

	flags := config.Overrides{}
	for _, key := range config.Keys() {
		if f := cmd.Flags().Lookup(key); f != nil && f.Changed {
			flags[key] = f.Value.String()
		}
	}

	a.settings, err = config.Resolve(file.Active(a.profile), env, flags)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	if err := a.settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level}))

	return nil
}

func (a *app) service() (*tap.Service, error) {
	opts := append(a.settings.ServiceOptions(), tap.WithLogger(a.logger))
	if a.verbose {
		opts = append(opts, tap.WithSinkOptions(sink.WithProgress()))
	}

	return tap.New(a.settings.BaseURL, opts...)
}

func (a *app) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

func (a *app) notef(format string, args ...any) {
	_, _ = fmt.Fprintf(a.errOut, format, args...)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
