package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dministrator/flowdb/internal/catalog"
	"github.com/dministrator/flowdb/internal/migrations"
	"github.com/dministrator/flowdb/pkg/sqldb"
)

func (c *cli) dbCmd() *cobra.Command {
	var connections []string
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database tasks (sync, clean, ping, sql, migrate, rollback, status)",
	}
	cmd.PersistentFlags().StringSliceVar(&connections, "connection", nil,
		"connection names to act on (default: all; rollback and sql default to the pool default)")

	cmd.AddCommand(
		c.dbSyncCmd(&connections),
		c.dbCleanCmd(&connections),
		c.dbPingCmd(&connections),
		c.dbSQLCmd(&connections),
		c.dbMigrateCmd(&connections),
		c.dbRollbackCmd(&connections),
		c.dbStatusCmd(&connections),
		c.dbNewMigrationCmd(),
	)
	return cmd
}

// targets resolves the --connection flag against the pool.
func targets(pool *sqldb.Pool, names []string) ([]string, error) {
	if len(names) == 0 {
		return pool.Names(), nil
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		conn, err := pool.Get(strings.ToUpper(n))
		if err != nil {
			return nil, err
		}
		out = append(out, conn.Name())
	}
	return out, nil
}

// single resolves the --connection flag to exactly one name.
func single(pool *sqldb.Pool, names []string) (string, error) {
	switch len(names) {
	case 0:
		return pool.Default(), nil
	case 1:
		conn, err := pool.Get(strings.ToUpper(names[0]))
		if err != nil {
			return "", err
		}
		return conn.Name(), nil
	default:
		return "", errors.New("exactly one --connection is allowed")
	}
}

func (c *cli) dbSyncCmd(connections *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Create missing catalog tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := c.openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			names, err := targets(pool, *connections)
			if err != nil {
				return err
			}
			if err := sqldb.SyncDB(cmd.Context(), pool, catalog.New().Registry, names...); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "synced:", strings.Join(names, ", "))
			return nil
		},
	}
}

func (c *cli) dbCleanCmd(connections *[]string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Drop every catalog table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("clean drops data; pass --yes to confirm")
			}
			pool, err := c.openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			names, err := targets(pool, *connections)
			if err != nil {
				return err
			}
			if err := sqldb.CleanDB(cmd.Context(), pool, catalog.New().Registry, names...); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cleaned:", strings.Join(names, ", "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping the tables")
	return cmd
}

func (c *cli) dbPingCmd(connections *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that every database is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := c.openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			names, err := targets(pool, *connections)
			if err != nil {
				return err
			}
			for _, name := range names {
				conn, err := pool.Get(name)
				if err != nil {
					return err
				}
				if err := conn.Ping(cmd.Context()); err != nil {
					return fmt.Errorf("ping %q: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s ok (%s)\n", name, conn.Dialect())
			}
			return nil
		},
	}
}

func (c *cli) dbSQLCmd(connections *[]string) *cobra.Command {
	var (
		params map[string]string
		commit bool
	)
	cmd := &cobra.Command{
		Use:   "sql QUERY",
		Short: "Run a query with :name parameters on one connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := c.openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			name, err := single(pool, *connections)
			if err != nil {
				return err
			}
			conn, err := pool.Get(name)
			if err != nil {
				return err
			}

			bound := make(sqldb.Params, len(params))
			for k, v := range params {
				bound[k] = v
			}
			rows, err := conn.RawSQL(ctx, args[0], bound)
			if err != nil {
				return err
			}
			if err := printRows(cmd.OutOrStdout(), rows); err != nil {
				return err
			}
			if commit {
				return conn.Commit()
			}
			return nil
		},
	}
	cmd.Flags().StringToStringVar(&params, "param", nil, "named parameter, e.g. --param artist_id=1")
	cmd.Flags().BoolVar(&commit, "commit", false, "commit the session after the query")
	return cmd
}

// printRows writes rows as a tab-aligned table and closes them.
func printRows(w io.Writer, rows *sql.Rows) error {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(cols, "\t"))

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	n := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		cells := make([]string, len(vals))
		for i, v := range vals {
			switch v := v.(type) {
			case nil:
				cells[i] = "NULL"
			case []byte:
				cells[i] = string(v)
			default:
				cells[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
		n++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "(%d rows)\n", n)
	return nil
}

func (c *cli) runner(dir string) (*migrations.Runner, error) {
	if dir == "" {
		dir = c.cfg.Migrations.Dir
	}
	return migrations.NewDir(dir, migrations.WithLogger(log.Logger))
}

func (c *cli) dbMigrateCmd(connections *[]string) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := c.runner(dir)
			if err != nil {
				return err
			}
			pool, err := c.openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			names, err := targets(pool, *connections)
			if err != nil {
				return err
			}
			for _, name := range names {
				results, err := runner.Up(cmd.Context(), pool, name)
				if err != nil {
					return err
				}
				if len(results) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: no pending migrations\n", name)
					continue
				}
				for _, r := range results {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: applied %s\n", name, r.Source.Path)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (defaults to migrations.dir)")
	return cmd
}

func (c *cli) dbRollbackCmd(connections *[]string) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll back the most recent migration on one connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := c.runner(dir)
			if err != nil {
				return err
			}
			pool, err := c.openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			name, err := single(pool, *connections)
			if err != nil {
				return err
			}
			res, err := runner.Down(cmd.Context(), pool, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: rolled back %s\n", name, res.Source.Path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (defaults to migrations.dir)")
	return cmd
}

func (c *cli) dbStatusCmd(connections *[]string) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := c.runner(dir)
			if err != nil {
				return err
			}
			pool, err := c.openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			names, err := targets(pool, *connections)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range names {
				st, err := runner.Status(cmd.Context(), pool, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s:\n", name)
				for _, s := range st {
					applied := ""
					if s.State == goose.StateApplied {
						applied = " at " + s.AppliedAt.Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(out, "  %-8s %s%s\n", s.State, s.Source.Path, applied)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (defaults to migrations.dir)")
	return cmd
}

func (c *cli) dbNewMigrationCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "new-migration NAME",
		Short: "Create an empty timestamped migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = c.cfg.Migrations.Dir
			}
			path, err := migrations.Create(dir, args[0], time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "created", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (defaults to migrations.dir)")
	return cmd
}
