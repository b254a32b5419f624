// Command alkanesd runs the alkanes metaprotocol indexer: the sync engine
// (C8) that pulls blocks from a Bitcoin node and indexes them, and the
// view/preview engine (C9) for read-only introspection, both exposed
// through a small set of cobra subcommands. Grounded on the teacher's
// cmd/synnergy/main.go command-tree shape (one cobra.Command per concern,
// built by a *Cmd() constructor function and attached to the root).
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"alkanes/internal/indexer"
	"alkanes/internal/kv"
	"alkanes/internal/nodeadapter"
	"alkanes/internal/runtime"
	"alkanes/internal/storeadapter"
	syncengine "alkanes/internal/sync"
	"alkanes/internal/view"
	"alkanes/pkg/alkanes"
	"alkanes/pkg/config"
)

func main() {
	root := &cobra.Command{Use: "alkanesd"}
	root.AddCommand(syncCmd())
	root.AddCommand(viewCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.LoadFromEnv()
}

func openDriver(cfg *config.Config) (*indexer.Driver, kv.Backend, error) {
	log := logrus.WithField("component", "alkanesd")
	backend, err := kv.OpenBadgerBackend(cfg.Storage.DBPath, log)
	if err != nil {
		return nil, nil, fmt.Errorf("alkanesd: open storage at %s: %w", cfg.Storage.DBPath, err)
	}
	store := kv.NewAtomicStore(backend)
	driver := indexer.NewDriver(store, cfg.VM.ModuleCacheSize, cfg.VM.DisableModCache, cfg.VM.FuelConstant)
	return driver, backend, nil
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "sync"}
	cmd.AddCommand(syncStartCmd())
	return cmd
}

func syncStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "poll the configured node and index new blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logrus.SetLevel(parseLevel(cfg.Logging.Level))

			driver, backend, err := openDriver(cfg)
			if err != nil {
				return err
			}
			defer backend.(*kv.BadgerBackend).Close()

			rt := runtime.New(driver)
			node := nodeadapter.New(cfg.Node.RPCEndpoint, nodeadapter.WithBasicAuth(cfg.Node.RPCUser, cfg.Node.RPCPassword))
			storage := storeadapter.New(backend)

			reg := prometheus.NewRegistry()
			metrics := syncengine.NewMetrics(reg)
			go serveMetrics(cfg.Metrics.ListenAddr, reg)

			engine := syncengine.New(node, storage, rt, time.Duration(cfg.Node.PollInterval)*time.Millisecond, metrics)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logrus.WithField("endpoint", cfg.Node.RPCEndpoint).Info("sync engine starting")
			if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("alkanesd: sync engine exited: %w", err)
			}
			logrus.Info("sync engine stopped")
			return nil
		},
	}
}

func viewCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "view"}
	cmd.AddCommand(viewCallCmd())
	return cmd
}

func viewCallCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "call [block:tx] [export] [hex-input]",
		Short: "invoke a deployed alkane's export as a read-only view",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			driver, backend, err := openDriver(cfg)
			if err != nil {
				return err
			}
			defer backend.(*kv.BadgerBackend).Close()

			height, err := cmd.Flags().GetUint32("height")
			if err != nil {
				return err
			}
			id, err := parseAlkaneId(args[0])
			if err != nil {
				return err
			}
			input, err := decodeHexArg(args[2])
			if err != nil {
				return err
			}

			engine := view.New(driver.Tree, driver.Host, driver)
			out, err := engine.View(view.Call{Target: id, Export: args[1], Input: input, Height: height})
			if err != nil {
				return fmt.Errorf("alkanesd: view call: %w", err)
			}
			fmt.Printf("%x\n", out)
			return nil
		},
	}
	c.Flags().Uint32("height", 0, "height to pin the view read to")
	return c
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logrus.WithError(err).Warn("metrics server stopped")
	}
}

func parseLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

func parseAlkaneId(s string) (alkanes.AlkaneId, error) {
	var block, tx uint64
	if _, err := fmt.Sscanf(s, "%d:%d", &block, &tx); err != nil {
		return alkanes.AlkaneId{}, fmt.Errorf("alkanesd: malformed alkane id %q, want block:tx: %w", s, err)
	}
	return alkanes.AlkaneId{Block: alkanes.U128FromUint64(block), Tx: alkanes.U128FromUint64(tx)}, nil
}

func decodeHexArg(s string) ([]byte, error) {
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("alkanesd: malformed hex input %q: %w", s, err)
	}
	return out, nil
}
