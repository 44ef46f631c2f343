// Command hostd runs the wasmCloud-style host core: a single process that
// owns its loaded components and supervised providers, mirrors link and
// config state from the lattice bus, and accepts commands over the control
// plane (spec.md §6, §9).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/urfave/cli"

	"github.com/latticerun/hostcore/host"
	"github.com/latticerun/hostcore/wasmrt"
)

func main() {
	app := cli.NewApp()
	app.Name = "hostd"
	app.Usage = "wasmCloud-style host core daemon"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "bus-url", Value: "nats://127.0.0.1:4222", Usage: "lattice bus (NATS) URL"},
		cli.StringFlag{Name: "lattice-id", Value: "default", Usage: "lattice namespace this host joins"},
		cli.StringFlag{Name: "friendly-name", Usage: "human-readable host name (defaults to a generated one)"},
		cli.StringFlag{Name: "subject-prefix", Value: "wasmbus", Usage: "NATS subject prefix for rpc/events/control subjects"},
		cli.StringFlag{Name: "cache-dir", Value: "/var/lib/hostd/registry-cache", Usage: "directory for cached OCI artifacts"},
		cli.Int64Flag{Name: "cache-max-bytes", Value: 1 << 30, Usage: "registry cache eviction ceiling in bytes"},
		cli.StringFlag{Name: "link-db-path", Value: "/var/lib/hostd/links.db", Usage: "embedded link/config store path"},
		cli.IntFlag{Name: "fetch-workers", Value: 4, Usage: "concurrent registry fetch workers"},
		cli.BoolFlag{Name: "allow-any-issuer", Usage: "trust claims from any issuer instead of requiring explicit registration (unsafe outside development)"},
		cli.StringSliceFlag{Name: "trusted-issuer", Usage: "nkeys account public key to trust as a claims issuer; repeatable"},
		cli.StringFlag{Name: "provider-shutdown-timeout", Value: "5s", Usage: "bound on graceful provider shutdown during host stop"},
		cli.StringFlag{Name: "label", Usage: "key=value host label; repeatable via comma separation"},
	}
	app.Action = run
	defer glog.Flush()

	if err := app.Run(os.Args); err != nil {
		glog.Errorf("hostd exiting: %s", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	shutdownTimeout, err := time.ParseDuration(c.String("provider-shutdown-timeout"))
	if err != nil {
		return fmt.Errorf("parse provider-shutdown-timeout: %w", err)
	}

	cfg := host.Config{
		BusURL:                  c.String("bus-url"),
		LatticeID:               c.String("lattice-id"),
		FriendlyName:            c.String("friendly-name"),
		Labels:                  parseLabels(c.String("label")),
		CacheDir:                c.String("cache-dir"),
		CacheMaxBytes:           c.Int64("cache-max-bytes"),
		FetchWorkers:            c.Int("fetch-workers"),
		AllowAnyIssuer:          c.Bool("allow-any-issuer"),
		SubjectPrefix:           c.String("subject-prefix"),
		LinkDBPath:              c.String("link-db-path"),
		ProviderShutdownTimeout: shutdownTimeout,
	}

	h, err := host.New(cfg, wasmrt.EchoEngine{}, nil)
	if err != nil {
		return fmt.Errorf("construct host: %w", err)
	}

	for _, issuer := range c.StringSlice("trusted-issuer") {
		h.Claims.RegisterIssuer(issuer)
	}

	glog.Infof("hostd starting: host_id=%s lattice=%s bus=%s", h.Self.ID, cfg.LatticeID, cfg.BusURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return h.Run(ctx)
}

func parseLabels(raw string) map[string]string {
	labels := make(map[string]string)
	if raw == "" {
		return labels
	}
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if ok && k != "" {
			labels[k] = v
		}
	}
	return labels
}
