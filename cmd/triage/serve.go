package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/danielpatrickdp/adaptive-triage/internal/network"
	"github.com/danielpatrickdp/adaptive-triage/internal/server"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve gRPC health for the active model",
		Long: `Serve loads the active model and reports the diagnosis service as SERVING
while a compatible model is loaded. SIGHUP reloads the active model from the
registry; a failed reload keeps the previous model and status.

Only the gRPC health protocol is exposed. Diagnoses are run by the diagnose,
ask and replay commands, which load the active model themselves.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.Default().With("component", "serve")
			table, err := loadTable()
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			holder := network.NewHolder(nil)
			srv, err := server.NewWithAddr(cfg.GRPCAddr, holder, store, symptom.Dim, table.Labels(), slog.Default())
			if err != nil {
				return err
			}
			defer srv.Close()

			if err := srv.Reload(); err != nil {
				logger.Warn("starting without a model", "error", err)
			}

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			go func() {
				for range hup {
					if err := srv.Reload(); err != nil {
						logger.Error("reload failed", "error", err)
					}
				}
			}()

			return srv.Serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "listen address")
	_ = viper.BindPFlag("grpc_addr", cmd.Flags().Lookup("addr"))
	return cmd
}
