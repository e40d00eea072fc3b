package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/form3tech-oss/mock-proxy/internal/app/configuration"
	"github.com/form3tech-oss/mock-proxy/internal/app/mockproxy"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var adminPort int

	root := &cobra.Command{
		Use:           "mock-proxy",
		Short:         "HTTP interaction mocking proxy for browser-driven tests",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(os.Getenv("LOG_LEVEL"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(adminPort)
		},
	}
	root.Flags().IntVar(&adminPort, "admin-port", adminPortFromEnv(), "port of the admin API (ADMIN_PORT)")

	root.AddCommand(&cobra.Command{
		Use:   "validate <mocks-file>",
		Short: "Check that every mock in a YAML mocks file can be registered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := mockproxy.LoadDefinitions(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d mocks OK\n", len(defs))
			return nil
		},
	})

	return root
}

func serve(adminPort int) error {
	config, err := configuration.NewFromEnv()
	if err != nil {
		return err
	}

	servers := configuration.NewServers(config)
	for _, proxy := range config.Proxies {
		proxy := proxy
		log.Infof("setting up proxy on %s", proxy.String())
		proxyConfig := config
		proxyConfig.ServerAddress = proxy
		if _, err := configuration.ConfigureProxy(servers, proxyConfig); err != nil {
			return err
		}
	}

	adminServer := configuration.ServeAdminAPI(adminPort, servers)

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := adminServer.Shutdown(ctx); err != nil {
		log.Error(err)
	}
	servers.ShutdownAll(ctx)
	return nil
}

func adminPortFromEnv() int {
	port, err := strconv.Atoi(os.Getenv("ADMIN_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func setupLogging(level string) error {
	if level == "" {
		return nil
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(parsed)
	return nil
}
