// Command flowdb runs the catalog demo application and manages its
// databases.
//
// Settings come from --config (YAML, TOML or JSON) and FLOWDB_*
// environment variables; see internal/config.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dministrator/flowdb/internal/catalog"
	"github.com/dministrator/flowdb/internal/config"
	"github.com/dministrator/flowdb/internal/logging"
	"github.com/dministrator/flowdb/pkg/flow"
	"github.com/dministrator/flowdb/pkg/sqldb"
)

const version = "0.2.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries the loaded configuration between the root command and its
// subcommands.
type cli struct {
	configPath string
	cfg        *config.Config
	logCloser  io.Closer
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "flowdb",
		Short:         "flowdb: multi-database Flow application (CLI)",
		Long:          "flowdb CLI: serve the catalog API and manage its named databases.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			closer, err := logging.Apply(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			c.cfg, c.logCloser = cfg, closer
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.logCloser != nil {
				return c.logCloser.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (yaml, toml or json)")

	root.AddCommand(c.serveCmd(), c.dbCmd(), c.hashPasswordCmd(), versionCmd())
	return root
}

// openPool opens a pool over every configured database. The caller closes
// it.
func (c *cli) openPool(ctx context.Context) (*sqldb.Pool, error) {
	pool, err := sqldb.Create(ctx, c.cfg.DatabaseURIs(), sqldb.WithLogger(log.Logger))
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, fmt.Errorf("%w: enable the %q extension and configure databases", sqldb.ErrNotConfigured, config.ExtensionSQLDB)
	}
	return pool, nil
}

func (c *cli) serveCmd() *cobra.Command {
	var (
		addr string
		sync bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the catalog API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engines, err := sqldb.OpenEngines(ctx, c.cfg.DatabaseURIs(), sqldb.WithLogger(log.Logger))
			if err != nil {
				return err
			}
			defer engines.Close()

			if addr == "" {
				addr = c.cfg.Server.Addr
			}
			logger := log.Logger.With().Str("app", "flowdb").Logger()
			app := flow.New("flowdb",
				flow.WithLogger(&logger),
				flow.WithAddr(addr),
				flow.WithShutdownTimeout(c.cfg.Server.ShutdownTimeout),
				flow.WithDefaultMiddleware(),
				flow.WithTimeout(c.cfg.Server.RequestTimeout),
				flow.WithDatabases(engines),
			)

			cat := catalog.New()
			if sync {
				if err := app.SyncDB(ctx, cat.Registry); err != nil {
					return err
				}
			}

			r := flow.NewRouter(app)
			r.Get("/health", func(fc *flow.Context) {
				if err := engines.Ping(fc.Ctx()); err != nil && !errors.Is(err, sqldb.ErrNotConfigured) {
					_ = fc.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
					return
				}
				_ = fc.JSON(http.StatusOK, map[string]any{"status": "ok", "databases": engines.Names()})
			})
			if err := cat.Routes(app, r); err != nil {
				return err
			}
			app.SetRouter(r)

			return app.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().BoolVar(&sync, "sync", false, "create missing catalog tables before serving")
	return cmd
}

func (c *cli) hashPasswordCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the bcrypt hash of a password (read from stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var plain string
			if len(args) == 1 {
				plain = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				plain = strings.TrimRight(line, "\r\n")
			}
			if plain == "" {
				return errors.New("empty password")
			}
			h, err := sqldb.NewPasswordHash(plain, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h.String())
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", sqldb.DefaultPasswordCost, "bcrypt cost")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "flowdb", version)
		},
	}
}
