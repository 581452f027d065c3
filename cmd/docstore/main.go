// Comando docstore: administración del store de identidad (usuarios y roles)
// sobre MongoDB o el adapter en memoria.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/docstore/internal/cache"
	"github.com/dropDatabas3/docstore/internal/config"
	"github.com/dropDatabas3/docstore/internal/identity"
	"github.com/dropDatabas3/docstore/internal/metrics"
	"github.com/dropDatabas3/docstore/internal/observability/logger"
	"github.com/dropDatabas3/docstore/internal/security/password"
	store "github.com/dropDatabas3/docstore/internal/store"
	_ "github.com/dropDatabas3/docstore/internal/store/adapters/dal"
	"github.com/dropDatabas3/docstore/internal/store/mongo"
)

// app agrupa lo que abre PersistentPreRunE y cierra PersistentPostRunE.
type app struct {
	cfg   *config.Config
	conn  store.AdapterConnection
	cache cache.Client
}

func (a *app) users() *identity.UserStore { return a.conn.Users() }
func (a *app) roles() *identity.RoleStore { return a.conn.Roles() }

func main() {
	var (
		flagConfig  string
		flagEnvFile string
		flagDriver  string
		a           = &app{}
	)

	root := &cobra.Command{
		Use:           "docstore",
		Short:         "CLI del store de identidad (usuarios/roles sobre MongoDB)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagEnvFile != "" {
				if err := godotenv.Load(flagEnvFile); err == nil {
					fmt.Fprintf(os.Stderr, "dotenv: cargado %s\n", flagEnvFile)
				}
			}
			cfg, err := loadConfig(flagConfig)
			if err != nil {
				return err
			}
			if flagDriver != "" {
				cfg.Storage.Driver = flagDriver
			}
			a.cfg = cfg
			logger.Init(logger.Config{
				Env:         cfg.App.Env,
				Level:       cfg.Log.Level,
				ServiceName: cfg.App.Name,
				Version:     cfg.App.Version,
			})
			if err := metrics.RegisterStore(nil); err != nil {
				return err
			}
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			a.close()
			_ = logger.Sync()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", os.Getenv("CONFIG_PATH"), "ruta a config.yaml (vacío: solo env)")
	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "ruta a .env (si existe, se carga)")
	root.PersistentFlags().StringVar(&flagDriver, "driver", "", "pisa storage.driver: mongo|memory")

	root.AddCommand(
		pingCmd(a),
		ensureIndexesCmd(a),
		roleCmd(a),
		userCmd(a),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		a.close()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnv()
	}
	return config.Load(path)
}

// open conecta cache y storage según la config.
func (a *app) open(ctx context.Context) error {
	cfg := a.cfg
	opts := []identity.Option{
		identity.WithPasswordHashing(password.Default, password.Policy{
			MinLength:     cfg.Security.PasswordPolicy.MinLength,
			RequireUpper:  cfg.Security.PasswordPolicy.RequireUpper,
			RequireLower:  cfg.Security.PasswordPolicy.RequireLower,
			RequireDigit:  cfg.Security.PasswordPolicy.RequireDigit,
			RequireSymbol: cfg.Security.PasswordPolicy.RequireSymbol,
		}),
	}
	if cfg.Cache.Kind != "none" {
		c, err := cache.New(ctx, cache.Config{
			Driver:   cfg.Cache.Kind,
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			return err
		}
		a.cache = c
		opts = append(opts, identity.WithRoleCache(c, cfg.RoleCacheTTL()))
	}

	conn, err := store.OpenAdapter(ctx, store.AdapterConfig{
		Name: cfg.Storage.Driver,
		Mongo: mongo.Config{
			URI:            cfg.Storage.Mongo.URI,
			Database:       cfg.Storage.Mongo.Database,
			AppName:        cfg.Storage.Mongo.AppName,
			Collections:    cfg.Storage.Mongo.Collections,
			ConnectTimeout: cfg.ConnectTimeout(),
			MaxPoolSize:    cfg.Storage.Mongo.MaxPoolSize,
		},
		Identity: opts,
	})
	if err != nil {
		return fmt.Errorf("storage %s: %w", cfg.Storage.Driver, err)
	}
	a.conn = conn
	logger.L().Debug("storage ready", logger.Driver(conn.Name()))
	return nil
}

func (a *app) close() {
	if a.conn != nil {
		_ = a.conn.Close(context.Background())
		a.conn = nil
	}
	if a.cache != nil {
		_ = a.cache.Close()
		a.cache = nil
	}
}
