package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"zbackup/internal/app"
	"zbackup/internal/config"
	"zbackup/internal/zb"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "zbackup: %v\n", err)
	}
	os.Exit(app.ExitCode(err))
}

// newApp reads the config and creates a ZBApp. The caller must defer app.Close().
func newApp(ctx context.Context) (*app.ZBApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	a, err := app.Open(ctx, defaults["config_path"], defaults["base_dir"])
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:           "zbackup",
	Short:         "Compressed archive backups with retention",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Back up the configured files",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Backup(cmd.Context())
		if errors.Is(err, zb.ErrNothingToBackup) {
			fmt.Println("Nothing to back up.")
			return nil
		}
		if result != nil && result.Report != nil {
			printEvictions(result.Report, false)
		}
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Wrote %s (%s, %d files)\n",
			result.Archive.Name, humanize.IBytes(uint64(result.ArchiveSize)), len(result.Profile.Files))
		if result.UploadErr != nil {
			fmt.Fprintf(os.Stderr, "Offsite upload failed: %v\n", result.UploadErr)
		}
		return nil
	},
}

// prune command
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention policy without writing an archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Prune(cmd.Context(), dryRun)
		if report != nil {
			printEvictions(report, dryRun)
			if len(report.Evictions) == 0 {
				fmt.Println("Nothing to prune.")
			}
		}
		return err
	},
}

func printEvictions(report *zb.EvictionReport, dryRun bool) {
	verb := "Deleted"
	if dryRun {
		verb = "Would delete"
	}
	for _, ev := range report.Evictions {
		fmt.Printf("%s %-8s %s  %s\n", verb, ev.Phase, ev.Archive.Name, humanize.IBytes(uint64(ev.Size)))
	}
	for _, f := range report.Failures {
		fmt.Fprintf(os.Stderr, "Failed to delete %s: %v\n", f.Archive.Name, f.Err)
	}
	if n := len(report.Evictions); n > 0 {
		fmt.Printf("%s %d archive(s), %s\n", verb, n, humanize.IBytes(uint64(report.ReclaimedBytes())))
	}
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archives at the destination",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		archives, err := a.ListArchives(cmd.Context())
		if err != nil {
			return err
		}

		if len(archives) == 0 {
			fmt.Println("No archives.")
			return nil
		}

		var total int64
		for _, ar := range archives {
			size, _ := ar.Size()
			total += size
			fmt.Printf("%-34s  %10s  %s\n", ar.Name, humanize.IBytes(uint64(size)), humanize.Time(ar.CreatedAt))
		}
		fmt.Printf("%d archive(s), %s\n", len(archives), humanize.IBytes(uint64(total)))
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history [RUN_ID]",
	Short: "View run history, or the archives deleted by one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			evictions, err := a.GetEvictions(args[0])
			if err != nil {
				return err
			}
			if len(evictions) == 0 {
				fmt.Println("No archives deleted by this run.")
				return nil
			}
			for _, ev := range evictions {
				fmt.Printf("%-8s %s  %s  %s\n", ev.Phase, ev.Archive,
					humanize.IBytes(uint64(ev.Size)), ev.DeletedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		}

		runs, err := a.GetHistory(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt != nil {
				duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			detail := r.Archive
			if r.Error != "" {
				detail = r.Error
			}
			fmt.Printf("%s  %-6s  %s  %-8s  %-10s  %s\n",
				r.ID,
				r.Operation,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Status,
				duration,
				detail,
			)
		}
		return nil
	},
}

// daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run backups on the configured schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("Running on schedule %q, interrupt to stop\n", a.Config().Schedule)
		return a.Daemon(cmd.Context())
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get application defaults
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		cfg.Include = []string{"~/Documents"}
		cfg.Destination = filepath.Join(defaults["base_dir"], "backups")

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		path := defaults["config_path"]
		raw, err := config.ReadRawFromFile(path)
		if err != nil {
			return fmt.Errorf("%w: %w", app.ErrConfig, err)
		}
		cfg, err := config.Load(raw, path, defaults["base_dir"], app.NewConsoleLogger(config.ConsoleLevel(raw)))
		if err != nil {
			return fmt.Errorf("%w: %w", app.ErrConfig, err)
		}

		fmt.Printf("# Configuration from %s\n", path)
		fmt.Printf("# Base Dir: %s\n# Log Dir:  %s\n\n", cfg.BaseDir, cfg.LogDir)
		m := &config.Manager{Format: config.FormatForPath(path)}
		return m.Write(os.Stdout, cfg)
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return errors.New("passphrases do not match")
		}

		if err := a.InitKeys(passphrase); err != nil {
			return err
		}
		enc := a.Config().Encryption
		fmt.Printf("Public key:  %s\nPrivate key: %s\n", enc.PublicKeyPath, enc.PrivateKeyPath)
		return nil
	},
}

// decrypt command
var decryptCmd = &cobra.Command{
	Use:   "decrypt ARCHIVE OUT",
	Short: "Decrypt an encrypted archive",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		if err := a.Decrypt(args[0], args[1], passphrase); err != nil {
			return err
		}
		fmt.Printf("Decrypted %s to %s\n", args[0], args[1])
		return nil
	},
}

// readPassphrase prompts without echo on a terminal and reads a plain line
// otherwise, so passphrases can be piped in.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(b), nil
	}

	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var stdin = bufio.NewReader(os.Stdin)

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// root commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().Bool("dry-run", false, "Report what would be deleted without deleting")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(decryptCmd)
}
