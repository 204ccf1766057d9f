package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-tablemap/internal/config"
	"github.com/joeblew999/plat-tablemap/internal/db"
	"github.com/joeblew999/plat-tablemap/internal/host"
	"github.com/joeblew999/plat-tablemap/internal/logging"
	"github.com/joeblew999/plat-tablemap/internal/server"
)

// Options defines all CLI flags and env vars for the tablemap server.
// Flags: --config, --env-file, --host, --port, --data-dir
// Env vars: SERVICE_CONFIG, SERVICE_ENV_FILE, SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR
// Unset flags keep the values from the config file and TABLEMAP_* env vars.
type Options struct {
	Config  string `doc:"Path to the YAML config file" short:"c" default:"tablemap.yaml"`
	EnvFile string `doc:"Optional .env file" default:".env"`
	Host    string `doc:"Host to bind to"`
	Port    int    `doc:"Port to listen on" short:"p"`
	DataDir string `doc:"Directory for the database, caches and stores"`
}

func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.Config, opts.EnvFile)
	if err != nil {
		return nil, err
	}
	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	return cfg, nil
}

func newServer(opts *Options, serverOpts ...server.Option) (*server.Server, *config.Config, *slog.Logger) {
	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Init(cfg.Log.Format, cfg.Log.Level)
	srv, err := server.New(context.Background(), cfg, logger, serverOpts...)
	if err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	return srv, cfg, logger
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		hooks.OnStart(func() {
			srv, cfg, logger := newServer(opts)
			defer srv.Close()

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			displayHost := cfg.Server.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, cfg.Server.Port)

			logger.Info("plat-tablemap API server starting",
				"server", baseURL,
				"data", cfg.DataDir,
				"dataset", cfg.Dataset,
				"geocoder", cfg.Geocode.Provider,
				"docs", baseURL+"/docs",
				"openapi", baseURL+"/openapi.json",
			)

			if err := http.ListenAndServe(addr, srv); err != nil {
				logger.Error("server error", "error", err)
				os.Exit(1)
			}
		})
	})

	cli.Root().Use = "tablemap"
	cli.Root().Short = "Map view of table rows with geocoding and image clusters"
	cli.Root().Version = server.Version

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv, _, _ := newServer(opts, server.DocsOnly())
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// seed subcommand: replace the configured dataset with the sample trips
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Write the sample dataset into DuckDB",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg, err := loadConfig(opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
				os.Exit(1)
			}
			if err := seed(cmd.Context(), cfg); err != nil {
				fmt.Fprintf(os.Stderr, "Error seeding dataset: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Seeded dataset %q in %s\n", cfg.Dataset, cfg.DataDir)
		}),
	}
	cli.Root().AddCommand(seedCmd)

	// config subcommand: print the effective configuration
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg, err := loadConfig(opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
				os.Exit(1)
			}
			if out, _ := cmd.Flags().GetString("write"); out != "" {
				if err := config.Save(out, cfg); err != nil {
					fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
					os.Exit(1)
				}
				return
			}
			output, err := yaml.Marshal(cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling config: %v\n", err)
				os.Exit(1)
			}
			fmt.Print(string(output))
		}),
	}
	configCmd.Flags().StringP("write", "w", "", "Write the configuration to this file instead")
	cli.Root().AddCommand(configCmd)

	cli.Run()
}

func seed(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := db.Get(db.Config{
		DataDir:    cfg.DataDir,
		DBName:     cfg.DuckDB.Name,
		InMemory:   cfg.DuckDB.InMemory,
		Extensions: cfg.DuckDB.Extensions,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	duck, err := host.NewDuck(ctx, conn, cfg.Dataset, nil)
	if err != nil {
		return err
	}
	return duck.Save(ctx, host.SampleDataset())
}
