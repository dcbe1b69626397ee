package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/classmgr/attendbot/internal/bot"
	"github.com/classmgr/attendbot/internal/config"
	"github.com/classmgr/attendbot/internal/ledger"
	"github.com/classmgr/attendbot/internal/recognizer"
	"github.com/classmgr/attendbot/internal/web"
	"github.com/classmgr/attendbot/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance service",
	Long: `Start the attendance service: the transport webhook, the per-instructor
event dispatcher and the attendance API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

// initLabelIndex loads or builds the face label index.
func initLabelIndex(ctx context.Context, rec *recognizer.Recognizer, index *recognizer.LabelIndex, indexPath string) error {
	if indexPath != "" {
		fmt.Printf("Loading face label index from %s...\n", indexPath)
		if err := rec.LoadOrBuild(ctx, indexPath); err != nil {
			return err
		}
	} else {
		fmt.Printf("Building in-memory face label index...\n")
		if _, err := rec.Rebuild(ctx); err != nil {
			return err
		}
	}
	fmt.Printf("Face label index ready with %d samples\n", index.Count())
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.Gateway.URL == "" {
		return errors.New("GATEWAY_URL environment variable is required")
	}

	fmt.Printf("Connecting to %s database...\n", cfg.Database.Driver)
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	index := recognizer.NewLabelIndex()
	detector := recognizer.NewClient(cfg.Detector.URL)
	matcher := recognizer.New(detector, index, st, cfg.Workflow.FaceDir, cfg.Detector.DistanceThreshold)
	if err := initLabelIndex(ctx, matcher, index, cfg.Database.IndexPath); err != nil {
		return fmt.Errorf("initializing face label index: %w", err)
	}

	led := ledger.New(st)
	gateway := bot.NewGateway(cfg.Gateway.URL, cfg.Gateway.Token)
	catalog := bot.LoadCatalog()
	engine := workflow.New(st, led, matcher, gateway, catalog, cfg.Workflow)
	dispatcher := bot.NewDispatcher(engine, gateway, catalog, cfg.Workflow.EventTimeout)

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(host, port, dispatcher, led)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		// Refuse new events, let in-flight ones finish.
		dispatcher.Stop()

		if err := index.Save(); err != nil {
			fmt.Printf("Warning: failed to save face label index: %v\n", err)
		} else if cfg.Database.IndexPath != "" {
			fmt.Println("Face label index saved to disk")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting attendbot on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
