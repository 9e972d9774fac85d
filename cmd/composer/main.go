package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/ritzau/node-composer/pkg/config"
	"github.com/ritzau/node-composer/pkg/editor"
	"github.com/ritzau/node-composer/pkg/genai"
	"github.com/ritzau/node-composer/pkg/graph"
	"github.com/ritzau/node-composer/pkg/logging"
	"github.com/ritzau/node-composer/pkg/output"
	"github.com/ritzau/node-composer/pkg/pubsub"
	"github.com/ritzau/node-composer/pkg/watcher"
	"github.com/ritzau/node-composer/pkg/web"
)

func main() {
	flags := pflag.NewFlagSet("composer", pflag.ExitOnError)
	config.RegisterFlags(flags)
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	level, _ := cfg.Level()
	logging.Configure(cfg.Log.Format, level)

	if err := run(cfg); err != nil {
		logging.Error("Composer stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Seed the canvas
	store := graph.NewStore()
	if _, err := graph.Populate(store, graph.InitialLayout); err != nil {
		return fmt.Errorf("seeding canvas: %w", err)
	}

	var svc genai.Service
	startup := output.Startup{Backend: cfg.Backend, Inbox: cfg.Inbox.Dir}
	switch cfg.Backend {
	case config.BackendGemini:
		gemini, err := genai.NewGemini(ctx, cfg.Gemini, nil)
		if err != nil {
			return err
		}
		svc = gemini
		startup.Model = cfg.Gemini.ImageModel
	default:
		svc = genai.NewPlaceholder()
	}

	pub := pubsub.NewSSEPublisher()
	defer pub.Close()

	ed := editor.New(store, svc, pub,
		editor.WithLayout(cfg.Layout),
		editor.WithLimits(cfg.Zoom),
	)
	server := web.NewServer(ed, pub)

	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", cfg.Port, err)
	}
	startup.URL = fmt.Sprintf("http://%s", ln.Addr())
	output.PrintStartup(os.Stdout, startup)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(ctx, ln)
	})
	if cfg.Inbox.Dir != "" {
		g.Go(func() error {
			return watcher.NewInbox(cfg.Inbox.Dir, ed).Run(ctx)
		})
	}

	if cfg.OpenBrowser {
		openBrowser(startup.URL)
	}

	err = g.Wait()

	// Let in-flight backend calls land before summarizing
	ed.Wait()
	output.PrintSessionSummary(os.Stdout, store.Nodes(), store.Connections(), ed.Notices())

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openBrowser(url string) {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "linux":
		cmd = "xdg-open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		logging.Warn("Cannot open browser on this platform", "os", runtime.GOOS)
		return
	}

	if err := exec.Command(cmd, args...).Start(); err != nil {
		logging.Warn("Failed to open browser", "error", err)
	}
}
