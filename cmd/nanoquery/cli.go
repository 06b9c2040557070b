package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/arthur-debert/nanoquery/nanoquery"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configEnv names a config file that replaces the default discovery
const configEnv = "NANOQUERY_CONFIG"

// CLI is the viper-driven command line of nanoquery
type CLI struct {
	rootCmd   *cobra.Command
	viperInst *viper.Viper

	logger   *slog.Logger
	closeLog func() error
}

// NewCLI creates the CLI and reads its configuration file, if any
func NewCLI() *CLI {
	cli := &CLI{viperInst: viper.New()}
	cli.setupViperConfig()
	cli.createRootCommand()
	cli.addCommands()
	return cli
}

// setupViperConfig configures Viper with environment variables and config files
func (cli *CLI) setupViperConfig() {
	v := cli.viperInst
	if configFile := os.Getenv(configEnv); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("nanoquery")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.nanoquery")
		v.AddConfigPath("/etc/nanoquery")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("NANOQUERY")
	// --fan-out and fan_out both map to NANOQUERY_FAN_OUT
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	defaults := nanoquery.DefaultConfig()
	v.SetDefault("fan_out", defaults.FanOut)
	v.SetDefault("max_limit", defaults.MaxLimit)
	v.SetDefault("singleton", defaults.Singleton)

	// a missing config file is fine, a broken one is reported on first use
	_ = v.ReadInConfig()
}

func (cli *CLI) createRootCommand() {
	cli.rootCmd = &cobra.Command{
		Use:   "nanoquery",
		Short: "Run declarative nested queries against a profile/entity/action store",
		Long: `nanoquery validates, compiles and executes nested JSON or YAML query
documents against a store of profiles, entities and actions.

Configuration Sources (in order of precedence):
1. Command line flags
2. Environment variables (NANOQUERY_*)
3. Configuration files (custom path or default locations)
4. Built-in defaults

Configuration File Discovery:
  NANOQUERY_CONFIG=/path/to/config.yaml  # Custom config file path
  ./nanoquery.yaml                       # Current directory
  ~/.nanoquery/nanoquery.yaml            # User directory
  /etc/nanoquery/nanoquery.yaml          # System directory

Examples:
  # Count likes of profile 147 in community 1
  echo '{"CountActions": {"type": "like", "owner_id": 147}}' | nanoquery query -q - --store universe.json --community 1

  # Check a query document without running it
  nanoquery validate -q query.json

  # Show the compiled plan
  nanoquery plan -q query.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.bindFlags(cmd); err != nil {
				return err
			}
			if err := cli.configError(); err != nil {
				return err
			}
			logger, closeLog, err := newLogger(cmd.ErrOrStderr(),
				cli.viperInst.GetString("log-level"),
				cli.viperInst.GetString("log-format"),
				cli.viperInst.GetString("log-file"))
			if err != nil {
				return err
			}
			cli.logger, cli.closeLog = logger, closeLog
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if cli.closeLog != nil {
				return cli.closeLog()
			}
			return nil
		},
	}

	cli.addGlobalFlags()
}

// addGlobalFlags adds persistent flags that apply to all commands
func (cli *CLI) addGlobalFlags() {
	flags := cli.rootCmd.PersistentFlags()

	flags.StringP("query", "q", "-", "Query document file, - for stdin")

	flags.String("log-level", "warn", "Log level (debug|info|warn|error)")
	flags.String("log-format", "text", "Log format on stderr (text|json)")
	flags.String("log-file", "", "Append JSON logs to this file instead of stderr")

	flags.Int("fan-out", 0, "Rows of a list assembled concurrently (default from config)")
	flags.Int("max-limit", 0, "Largest Limit a List may ask for (default from config)")
	flags.String("singleton", "", "Singleton without match: null|required (default from config)")
}

// bindFlags binds the flags of cmd to their viper keys. Config keys use
// underscores, so the tunables are bound explicitly.
func (cli *CLI) bindFlags(cmd *cobra.Command) error {
	v := cli.viperInst
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	for key, flag := range map[string]string{"fan_out": "fan-out", "max_limit": "max-limit", "singleton": "singleton"} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind flag %s: %w", flag, err)
			}
		}
	}
	return nil
}

// configError reports a config file that exists but cannot be read
func (cli *CLI) configError() error {
	err := cli.viperInst.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) && os.Getenv(configEnv) == "" {
		return nil
	}
	return fmt.Errorf("failed to read config: %w", err)
}

// engineConfig returns the engine configuration from flags, env and file
func (cli *CLI) engineConfig() (nanoquery.Config, error) {
	var cfg nanoquery.Config
	if err := cli.viperInst.Unmarshal(&cfg); err != nil {
		return nanoquery.Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nanoquery.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// readQuery reads the query document named by --query
func (cli *CLI) readQuery(cmd *cobra.Command) ([]byte, error) {
	path := cli.viperInst.GetString("query")
	if path == "" || path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read query from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query: %w", err)
	}
	return data, nil
}

// Execute runs the root command
func (cli *CLI) Execute(ctx context.Context) error {
	return cli.rootCmd.ExecuteContext(ctx)
}
