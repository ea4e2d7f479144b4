package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/openvern/netplane/internal/api"
	"github.com/openvern/netplane/internal/auth"
	"github.com/openvern/netplane/internal/backend"
	"github.com/openvern/netplane/internal/config"
	"github.com/openvern/netplane/internal/datastore"
	"github.com/openvern/netplane/internal/network"
)

func main() {
	cfg := config.NewConfig()
	var debug bool

	rootCmd := &cobra.Command{
		Use:   "netplaned",
		Short: "Network resource control plane for multi-tenant compute clusters",
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				logrus.SetLevel(logrus.DebugLevel)
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := rootCmd.Flags()
	flags.IntVar(&cfg.VlanStart, "vlan-start", cfg.VlanStart, "first VLAN for private networks")
	flags.IntVar(&cfg.VlanEnd, "vlan-end", cfg.VlanEnd, "last VLAN for private networks (exclusive)")
	flags.IntVar(&cfg.NetworkSize, "network-size", cfg.NetworkSize, "number of addresses in each private subnet")
	flags.StringVar(&cfg.PrivateRange, "private-range", cfg.PrivateRange, "private IP address block")
	flags.StringVar(&cfg.PublicRange, "public-range", cfg.PublicRange, "public IP address block")
	flags.IntVar(&cfg.CntVpnClients, "cnt-vpn-clients", cfg.CntVpnClients, "number of addresses reserved for vpn clients")
	flags.StringVar(&cfg.BridgeDev, "bridge-dev", cfg.BridgeDev, "network device for bridges")
	flags.StringVar(&cfg.PublicInterface, "public-interface", cfg.PublicInterface, "interface for public IP addresses")
	flags.IntVar(&cfg.PublicVlan, "public-vlan", cfg.PublicVlan, "VLAN for public IP addresses")
	flags.IntVar(&cfg.CloudpipeStartPort, "cloudpipe-start-port", cfg.CloudpipeStartPort, "starting port for mapped cloudpipe external ports")
	flags.StringVar(&cfg.NetworksPath, "networks-path", cfg.NetworksPath, "location for network state files")
	flags.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address; empty selects the embedded store")
	flags.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "embedded store path")
	flags.StringVar(&cfg.Port, "port", cfg.Port, "inspection listener port")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("netplaned failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	be, err := backend.NewLinuxBackend(cfg.NetworksPath)
	if err != nil {
		return err
	}

	projects := auth.NewStoreDirectory(store)
	manager, err := network.NewManager(ctx, cfg, store, projects, be)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	api.NewAPI(manager).RegisterRoutes(r)

	logrus.WithField("port", cfg.Port).Info("starting netplaned")
	return http.ListenAndServe(":"+cfg.Port, r)
}

func openStore(ctx context.Context, cfg *config.Config) (datastore.Store, error) {
	if cfg.RedisAddr != "" {
		return datastore.NewRedisStore(ctx, cfg.RedisAddr)
	}
	return datastore.NewSQLiteStore(cfg.DBPath)
}
