package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/storeconn"
	"pkt.systems/storeconn/location"
)

func newHoldCommand(state *cli) *cobra.Command {
	var telemetry storeconn.TelemetryConfig
	cmd := &cobra.Command{
		Use:   "hold <location>...",
		Short: "Connect to locations and hold them until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := state.subsystem("hold")
			locs := make([]location.Location, 0, len(args))
			for _, arg := range args {
				loc, err := parseLocation(arg)
				if err != nil {
					return err
				}
				locs = append(locs, loc)
			}
			ctx := cmd.Context()

			tel, err := storeconn.SetupTelemetry(ctx, telemetry, state.logger)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = tel.Shutdown(shutdownCtx)
			}()

			reg, err := state.newRegistry(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() {
				reg.Close(context.WithoutCancel(ctx))
				logger.Info("released all locations")
			}()
			for _, loc := range locs {
				conn, err := reg.ConnectCreate(ctx, loc, nil)
				if err != nil {
					return err
				}
				logger.Info("holding location",
					"location", loc.String(),
					"conn", conn.ID(),
					"lock", conn.LockPath(),
				)
			}
			<-ctx.Done()
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&telemetry.MetricsListen, "metrics-listen", "", "metrics listen address (Prometheus scrape endpoint; empty disables)")
	flags.StringVar(&telemetry.PprofListen, "pprof-listen", "", "pprof listen address (debug/pprof endpoints; empty disables)")
	flags.StringVar(&telemetry.OTLPEndpoint, "otlp-endpoint", "", "OTLP collector endpoint (e.g. grpc://localhost:4317)")
	flags.BoolVar(&telemetry.ProfilingMetrics, "enable-profiling-metrics", false, "enable Go runtime profiling metrics on the Prometheus endpoint")
	return cmd
}
