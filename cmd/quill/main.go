package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"quill/internal/app"
	"quill/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "backup create").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts on stderr and reads without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// confirm asks a yes/no question on stdin.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	var answer string
	fmt.Scanln(&answer)
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

var rootCmd = &cobra.Command{
	Use:           "quill",
	Short:         "Novel writing store with tiered backups",
	SilenceUsage:  true,
	SilenceErrors: false,
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
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Data Dir:   %s\n", cfg.DataDir)
		fmt.Printf("Backup Dir: %s\n", cfg.BackupDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		m := &config.Manager{}
		return m.Write(os.Stdout, cfg)
	},
}

// encryption command
var encryptionCmd = &cobra.Command{
	Use:   "encryption",
	Short: "Manage the key pair used for remote copies",
}

var encryptionSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate the key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("encryption setup")
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		again, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if pass != again {
			return fmt.Errorf("passphrases do not match")
		}
		if err := a.SetupEncryption(pass); err != nil {
			return err
		}
		fmt.Println("Key pair created. Keep the passphrase safe: encrypted backups cannot be read without it.")
		return nil
	},
}

var encryptionPasswdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change the passphrase guarding the private key",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("encryption passwd")
		if err != nil {
			return err
		}
		defer a.Close()

		old, err := readPassphrase("Current passphrase: ")
		if err != nil {
			return err
		}
		pass, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		if err := a.ChangePassphrase(old, pass); err != nil {
			return err
		}
		fmt.Println("Passphrase changed.")
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled backups until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("serve")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		snapshot, stage, _ := a.Config().Schedule.Intervals()
		fmt.Printf("Scheduling snapshots every %s and stage backups every %s. Ctrl-C to stop.\n", snapshot, stage)
		return a.Serve(ctx)
	},
}

// doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		showSchema, _ := cmd.Flags().GetBool("schema")
		copyTo, _ := cmd.Flags().GetString("copy-to")

		a, err := newApp("doctor")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.CheckMigrations(); err != nil {
			return fmt.Errorf("schema check failed: %w", err)
		}
		fmt.Println("Schema: up to date")
		for _, f := range a.DatabaseFiles() {
			fmt.Printf("File:   %s\n", f)
		}

		if showSchema {
			schema, err := a.Schema()
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Print(schema)
		}

		if copyTo != "" {
			if err := a.CopyDatabase(copyTo); err != nil {
				return err
			}
			fmt.Printf("Database copied to %s\n", copyTo)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// encryption subcommands
	encryptionCmd.AddCommand(encryptionSetupCmd)
	encryptionCmd.AddCommand(encryptionPasswdCmd)

	// book and chapter subcommands
	bookCmd.AddCommand(bookAddCmd)
	bookAddCmd.Flags().StringP("description", "d", "", "Book summary")
	bookAddCmd.Flags().StringP("group", "g", "", "Shelf group")
	bookCmd.AddCommand(bookListCmd)
	bookCmd.AddCommand(bookDeleteCmd)

	chapterCmd.AddCommand(chapterAddCmd)
	chapterAddCmd.Flags().String("volume", "", "Volume name")
	chapterCmd.AddCommand(chapterListCmd)
	chapterCmd.AddCommand(chapterWriteCmd)
	chapterWriteCmd.Flags().StringP("file", "f", "", "Read content from file instead of stdin")
	chapterCmd.AddCommand(chapterShowCmd)

	recycleCmd.AddCommand(recycleListCmd)
	recycleCmd.AddCommand(recycleRestoreCmd)
	recycleCmd.AddCommand(recycleEmptyCmd)

	// backup subcommands
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupDeleteCmd)
	backupCmd.AddCommand(backupCleanupCmd)

	restoreCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	// remote subcommands
	remoteCmd.AddCommand(remoteListCmd)
	remoteCmd.AddCommand(remotePushCmd)
	remoteCmd.AddCommand(remotePullCmd)
	remoteCmd.AddCommand(remoteDeleteCmd)

	doctorCmd.Flags().Bool("schema", false, "Print the schema")
	doctorCmd.Flags().String("copy-to", "", "Write a consistent copy of the database to this path")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(encryptionCmd)
	rootCmd.AddCommand(bookCmd)
	rootCmd.AddCommand(chapterCmd)
	rootCmd.AddCommand(recycleCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(remoteCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(doctorCmd)
}
