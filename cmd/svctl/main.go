package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/jerome/simply-versioned/internal/app"
	"github.com/jerome/simply-versioned/internal/config"
	"github.com/jerome/simply-versioned/internal/versioning"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation names the command being run in the log.
func newApp(ctx context.Context, operation string, checkSchema bool) (*app.App, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	open := app.Open
	if checkSchema {
		open = app.New
	}
	a, err := open(ctx, cfg, nil, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// parseOwner parses TYPE ID arguments.
func parseOwner(args []string) (versioning.Owner, error) {
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return versioning.Owner{}, fmt.Errorf("invalid id %q: %w", args[1], err)
	}
	owner := versioning.Owner{ID: id, Type: args[0]}
	if err := owner.Validate(); err != nil {
		return versioning.Owner{}, err
	}
	return owner, nil
}

// readPassphrase prompts on stderr and reads without echo when stdin is a
// terminal. SV_PASSPHRASE takes precedence for scripted use.
func readPassphrase(prompt string) (string, error) {
	if p := os.Getenv("SV_PASSPHRASE"); p != "" {
		return p, nil
	}

	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var rootCmd = &cobra.Command{
	Use:          "svctl",
	Short:        "Inspect and maintain record version history",
	SilenceUsage: true,
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

		cfg := defaults.NewConfig()

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		if cfg.Database.DataDir != "" {
			fmt.Printf("Database: %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		} else {
			fmt.Printf("Database: %s\n", cfg.Database.Type)
		}
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

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		keep := "99 (default)"
		switch {
		case cfg.Versioning.Unlimited:
			keep = "unlimited"
		case cfg.Versioning.Keep != nil:
			keep = strconv.Itoa(*cfg.Versioning.Keep)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Database:   %s\n", cfg.Database.Type)
		fmt.Printf("Keep:       %s\n", keep)
		for name, t := range cfg.Versioning.Types {
			typeKeep := "default"
			switch {
			case t.Unlimited:
				typeKeep = "unlimited"
			case t.Keep != nil:
				typeKeep = strconv.Itoa(*t.Keep)
			}
			fmt.Printf("  %-10s %s\n", name+":", typeKeep)
		}
		fmt.Printf("Encryption: %s\n", orNone(cfg.Encryption.Type))
		fmt.Printf("Archive:    %s\n", orNone(cfg.Archive.Type))
		fmt.Printf("Metrics:    %v\n", cfg.Metrics.Enabled)
		return nil
	},
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage snapshot encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the snapshot encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		passphrase, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		if os.Getenv("SV_PASSPHRASE") == "" {
			confirm, err := readPassphrase("Repeat passphrase: ")
			if err != nil {
				return err
			}
			if confirm != passphrase {
				return fmt.Errorf("passphrases do not match")
			}
		}

		if err := app.InitKeys(cfg.Encryption, passphrase); err != nil {
			return err
		}
		fmt.Printf("Keys written to %s and %s\n", cfg.Encryption.PublicKeyPath, cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the version store schema",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "migrate", false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Version store is up to date.")
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "status", false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.CheckMigrations(cmd.Context()); err != nil {
			fmt.Printf("Out of date: %v\n", err)
			return nil
		}
		fmt.Println("Version store is up to date.")
		return nil
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log TYPE ID",
	Short: "List the versions of a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseOwner(args)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "log", true)
		if err != nil {
			return err
		}
		defer a.Close()

		versions, err := a.Log(cmd.Context(), owner)
		if err != nil {
			return err
		}

		if len(versions) == 0 {
			fmt.Println("No versions.")
			return nil
		}

		for i, v := range versions {
			current := ""
			if i == 0 {
				current = "  [current]"
			}
			fmt.Printf("#%-5d  %s  %s  %d bytes%s\n",
				v.Number,
				v.CreatedAt.Format("2006-01-02 15:04:05"),
				v.ID,
				len(v.Snapshot),
				current,
			)
		}
		return nil
	},
}

// show command
var showCmd = &cobra.Command{
	Use:   "show TYPE ID NUMBER",
	Short: "Print the attributes captured by a version",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseOwner(args)
		if err != nil {
			return err
		}
		number, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version number %q: %w", args[2], err)
		}

		a, err := newApp(cmd.Context(), "show", true)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Sealed() {
			passphrase, err := readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
			if err := a.Unlock(passphrase); err != nil {
				return err
			}
		}

		v, attrs, err := a.Show(cmd.Context(), owner, number)
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(attrs)
		if err != nil {
			return fmt.Errorf("formatting attributes: %w", err)
		}
		fmt.Printf("# %s version %d, %s\n", owner, v.Number, v.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Print(string(out))
		return nil
	},
}

// trim command
var trimCmd = &cobra.Command{
	Use:   "trim TYPE ID",
	Short: "Apply the retention limit to a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseOwner(args)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "trim", true)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Trim(cmd.Context(), owner)
		if err != nil {
			return err
		}
		fmt.Printf("Trimmed %d version(s)\n", n)
		return nil
	},
}

// purge command
var purgeCmd = &cobra.Command{
	Use:   "purge TYPE ID",
	Short: "Delete the whole history of a record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseOwner(args)
		if err != nil {
			return err
		}
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to purge %s without --yes", owner)
		}

		a, err := newApp(cmd.Context(), "purge", true)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Purge(cmd.Context(), owner)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d version(s)\n", n)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(trimCmd)
	rootCmd.AddCommand(purgeCmd)
	purgeCmd.Flags().BoolP("yes", "y", false, "Confirm deletion")
}
