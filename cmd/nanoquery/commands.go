package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/arthur-debert/nanoquery/formats"
	"github.com/arthur-debert/nanoquery/nanoquery"
	"github.com/arthur-debert/nanoquery/nanoquery/doc"
	"github.com/arthur-debert/nanoquery/nanoquery/plan"
	"github.com/arthur-debert/nanoquery/nanoquery/qerr"
	"github.com/arthur-debert/nanoquery/nanoquery/store"
	"github.com/arthur-debert/nanoquery/types"
	"github.com/spf13/cobra"
)

// Store drivers accepted by --driver
const (
	driverMemory   = "memory"
	driverSQLite   = store.DriverSQLite
	driverPostgres = store.DriverPostgres
)

// exitError carries the process exit code of a failed command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func (cli *CLI) addCommands() {
	cli.rootCmd.AddCommand(cli.queryCommand(), cli.validateCommand(), cli.planCommand())
}

func (cli *CLI) queryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Execute a query document and print the response",
		Long: `Execute a query document for one community and print {"data": ...}
or {"errors": [...]}. The exit code is 2 for malformed queries and 1 for
execution errors.`,
		Args: cobra.NoArgs,
		RunE: cli.runQuery,
	}

	flags := cmd.Flags()
	flags.Int64P("community", "c", 0, "Community id every selector is scoped to (required)")
	flags.StringP("store", "s", "", "JSON store file for the memory driver, database file for sqlite")
	flags.String("driver", driverMemory, "Store driver (memory|sqlite|postgres)")
	flags.String("dsn", "", "Data source name for the sqlite and postgres drivers")
	flags.String("seed", "", "JSON store file loaded into a sql store before querying")
	flags.StringP("format", "f", "json", "Output format (json|yaml|plaintext)")
	return cmd
}

func (cli *CLI) runQuery(cmd *cobra.Command, args []string) error {
	v := cli.viperInst
	if !v.IsSet("community") {
		return errors.New("--community is required")
	}
	format, err := formats.Get(v.GetString("format"))
	if err != nil {
		return err
	}
	cfg, err := cli.engineConfig()
	if err != nil {
		return err
	}
	raw, err := cli.readQuery(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, closeStore, err := cli.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	engine, err := nanoquery.New(s, cfg, nanoquery.WithLogger(cli.logger))
	if err != nil {
		return err
	}

	resp := engine.Execute(ctx, v.GetInt64("community"), raw)
	if err := format.Render(cmd.OutOrStdout(), resp); err != nil {
		return err
	}
	if resp.OK() {
		return nil
	}
	code := 1
	if resp.Status < 500 {
		code = 2
	}
	return &exitError{code: code, err: fmt.Errorf("query failed with status %d (request %s)", resp.Status, resp.RequestID)}
}

// openStore opens the store selected by --driver
func (cli *CLI) openStore(ctx context.Context) (types.Store, func() error, error) {
	v := cli.viperInst
	schema := types.DefaultSchema()
	noop := func() error { return nil }

	switch driver := v.GetString("driver"); driver {
	case driverMemory:
		path := v.GetString("store")
		if path == "" {
			return nil, nil, errors.New("--store is required for the memory driver")
		}
		s, err := store.LoadFile(path, schema)
		if err != nil {
			return nil, nil, err
		}
		cli.logger.Debug("store loaded", "driver", driver, "path", path)
		return s, noop, nil

	case driverSQLite, driverPostgres:
		dsn := v.GetString("dsn")
		if dsn == "" {
			dsn = v.GetString("store")
		}
		if dsn == "" {
			return nil, nil, fmt.Errorf("--dsn is required for the %s driver", driver)
		}
		s, err := store.OpenSQL(driver, dsn, schema)
		if err != nil {
			return nil, nil, err
		}
		if seed := v.GetString("seed"); seed != "" {
			if err := seedStore(ctx, s, seed); err != nil {
				_ = s.Close()
				return nil, nil, err
			}
			cli.logger.Debug("store seeded", "driver", driver, "seed", seed)
		}
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown driver %q (expected memory, sqlite or postgres)", driver)
	}
}

func seedStore(ctx context.Context, s *store.SQLStore, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	tables, err := store.DecodeTables(data)
	if err != nil {
		return err
	}
	if err := s.CreateTables(ctx); err != nil {
		return err
	}
	return s.Load(ctx, tables)
}

func (cli *CLI) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a query document without executing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cli.compile(cmd)
			if err == nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "query is valid")
				return nil
			}
			var pe *qerr.ParseError
			if !errors.As(err, &pe) {
				return err
			}
			printProblems(cmd.OutOrStdout(), pe)
			return &exitError{code: 2, err: fmt.Errorf("query is malformed: %d problem(s)", len(pe.Problems))}
		},
	}
}

func (cli *CLI) planCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the compiled plan of a query document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := cli.compile(cmd)
			if err != nil {
				var pe *qerr.ParseError
				if errors.As(err, &pe) {
					printProblems(cmd.ErrOrStderr(), pe)
					return &exitError{code: 2, err: errors.New("query is malformed")}
				}
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), plan.Format(node))
			return err
		},
	}
}

// compile parses and compiles --query. No store is needed.
func (cli *CLI) compile(cmd *cobra.Command) (plan.Node, error) {
	cfg, err := cli.engineConfig()
	if err != nil {
		return nil, err
	}
	raw, err := cli.readQuery(cmd)
	if err != nil {
		return nil, err
	}
	query, err := doc.Parse(raw)
	if err != nil {
		return nil, qerr.NewParseError(nil, string(raw), "invalid query document: %v", err)
	}
	compiler, err := plan.NewCompiler(types.DefaultSchema(), plan.WithMaxLimit(cfg.MaxLimit))
	if err != nil {
		return nil, err
	}
	return compiler.Compile(query)
}

func printProblems(w io.Writer, pe *qerr.ParseError) {
	for _, p := range pe.Problems {
		_, _ = fmt.Fprintf(w, "- %s\n", p.Problem)
	}
}
