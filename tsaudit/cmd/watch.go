package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	elog "github.com/eluv-io/log-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/eluv-io/tsaudit/fleet"
	"github.com/eluv-io/tsaudit/metrics"
)

var log = elog.Get("/tsaudit/cmd")

func InitWatch(cmdRoot *cobra.Command) error {
	cmdWatch := &cobra.Command{
		Use:   "watch",
		Short: "Audit a fleet of endpoints continuously",
		Long:  "Probe every configured endpoint once per cycle and print the fault descriptions of problematic programs",
		RunE:  doWatch,
	}

	cmdRoot.AddCommand(cmdWatch)

	cmdWatch.Flags().StringP("config", "c", "", "YAML configuration file, defaults to the seven 224.200.200.200 feeds")
	cmdWatch.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, overrides metrics_addr")
	cmdWatch.Flags().Bool("once", false, "run a single cycle and exit")

	return nil
}

// faultPrinter prints the faults of every cycle.
type faultPrinter struct {
	w io.Writer
}

func (p *faultPrinter) ObserveCycle(s *fleet.Snapshot) {
	fmt.Fprintf(p.w, "Cycle %d: %d endpoints, %d with problems (%s)\n",
		s.Cycle, len(s.Results), len(s.Problematic()), s.Elapsed.Round(time.Millisecond))
	for _, f := range s.Faults {
		fmt.Fprintf(p.w, "\t%s\n", f)
	}
}

func doWatch(cmd *cobra.Command, args []string) error {
	cfg := fleet.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); len(path) > 0 {
		var err error
		cfg, err = fleet.Load(path)
		if err != nil {
			return err
		}
		elog.SetDefault(cfg.LoggerConfig())
	}
	if addr, _ := cmd.Flags().GetString("metrics-addr"); len(addr) > 0 {
		cfg.MetricsAddr = addr
	}
	once, _ := cmd.Flags().GetBool("once")

	reg := prometheus.NewRegistry()
	o, err := fleet.NewOrchestrator(cfg, fleet.NewMemoryCache(),
		fleet.WithObserver(metrics.NewCollector(reg)),
		fleet.WithObserver(&faultPrinter{w: cmd.OutOrStdout()}))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if len(cfg.MetricsAddr) > 0 {
		stop := serveMetrics(cfg.MetricsAddr, reg)
		defer stop()
	}

	if once {
		_, err = o.RunCycle(ctx)
		return err
	}
	return o.Run(ctx)
}

func serveMetrics(addr string, reg *prometheus.Registry) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
