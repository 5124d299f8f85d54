package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/giantswarm/version-matrix/internal/backend"
	"github.com/giantswarm/version-matrix/internal/cluster"
	"github.com/giantswarm/version-matrix/internal/server"
	"github.com/giantswarm/version-matrix/internal/session"
	"github.com/giantswarm/version-matrix/internal/version"
)

func newServeAppCmd() *cobra.Command {
	var (
		installPath string
		addr        string
	)

	cmd := &cobra.Command{
		Use:   "serve-app",
		Short: "Serve one registered release over the capability protocol",
		Long: `Launch one release from the built-in registry and serve it over the HTTP
capability protocol. This is the entry point of release container images used
by the cluster backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			launcher, err := backend.Get(backend.Registry, backend.Options{})
			if err != nil {
				return err
			}

			noPrompts, _ := strconv.ParseBool(os.Getenv(cluster.NoPromptsEnv))
			d := version.Descriptor{Label: version.DefaultLabel(installPath), InstallPath: installPath}
			inst, err := launcher.Launch(cmd.Context(), d, session.LaunchOptions{NoPrompts: noPrompts})
			if err != nil {
				return fmt.Errorf("failed to launch %s: %w", installPath, err)
			}
			defer func() {
				if err := inst.Close(); err != nil {
					slog.Error("failed to close release", "error", err)
				}
			}()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			httpServer := server.NewHTTPServer(addr, cluster.Handler(inst))
			slog.Info("serving release", "install_path", installPath, "version", inst.Version(), "addr", addr)
			return server.Serve(ctx, httpServer.ListenAndServe, httpServer.Shutdown)
		},
	}

	cmd.Flags().StringVar(&installPath, "install-path", "", "Registry key of the release (e.g. demo/2.0.0)")
	cmd.Flags().StringVar(&addr, "addr", fmt.Sprintf(":%d", cluster.DefaultPort), "Listen address")
	_ = cmd.MarkFlagRequired("install-path")

	return cmd
}
