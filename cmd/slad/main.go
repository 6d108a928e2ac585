// Command slad runs the SLA deadline and escalation daemon.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/servicedesk-io/slacore/internal/config"
	"github.com/servicedesk-io/slacore/internal/engine"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "slad",
		Short:         "SLA deadline and escalation daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	root.AddCommand(runCmd(), scanCmd(), applyCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("slad: %v", err)
	}
}

func loadEngine(ctx context.Context) (*engine.Engine, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler with the monitor and automation scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, cfg, err := loadEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.WaitHealthy(ctx, 30*time.Second); err != nil {
				return err
			}

			if cfg.Metrics.Enabled {
				go serveMetrics(cfg.Metrics.Addr, eng)
			}
			if configPath != "" {
				err := config.Watch(configPath,
					func(*config.Config) { log.Printf("slad: config reloaded, restart to apply engine changes") },
					func(err error) { log.Printf("slad: config reload rejected: %v", err) },
				)
				if err != nil {
					log.Printf("slad: config watch disabled: %v", err)
				}
			}

			log.Printf("slad: starting, scan interval %s, warning window %s",
				cfg.Engine.ScanInterval, cfg.Engine.WarningWindow)
			return eng.Start(ctx)
		},
	}
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one monitor scan and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			stats, err := eng.RunMonitorScan(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("scanned=%d warnings=%d breaches=%d excluded=%d failures=%d\n",
				stats.Scanned, stats.Warnings, stats.Breaches, stats.Excluded, stats.Failures)
			return nil
		},
	}
}

func applyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <ticket-id>",
		Short: "Compute and persist SLA deadlines for one ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ticketID int64
			if _, err := fmt.Sscanf(args[0], "%d", &ticketID); err != nil {
				return fmt.Errorf("invalid ticket id %q", args[0])
			}

			eng, _, err := loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			result, err := eng.ApplyDeadlines(cmd.Context(), ticketID)
			if err != nil {
				return err
			}
			if result == nil {
				fmt.Println("no contractual SLA, deadlines left unset")
				return nil
			}
			fmt.Printf("response_due_at=%s solution_due_at=%s\n",
				result.ResponseDueAt.Format(time.RFC3339), result.SolutionDueAt.Format(time.RFC3339))
			return nil
		},
	}
}

func serveMetrics(addr string, eng *engine.Engine) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health := eng.MonitorHealth()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"is_scheduled":%t,"is_currently_running":%t}`,
			health.IsScheduled, health.IsCurrentlyRunning)
	})

	log.Printf("slad: metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("slad: metrics server: %v", err)
	}
}
