package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"memcontext-be/internal/bootstrap"
	"memcontext-be/internal/config"
	"memcontext-be/internal/server"
	"memcontext-be/internal/tracer"
	"memcontext-be/pkg/catalog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

var rootCmd = &cobra.Command{
	Use:   "memcontext",
	Short: "Memory-augmented chat backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the recommendation catalog",
}

var catalogCheckCmd = &cobra.Command{
	Use:   "check [dir]",
	Short: "Validate catalog files and report tags outside the vocabulary",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := config.Load().Ads.DataDir
		if len(args) == 1 {
			dir = args[0]
		}
		return checkCatalog(dir)
	},
}

func init() {
	catalogCmd.AddCommand(catalogCheckCmd)
	rootCmd.AddCommand(serveCmd, catalogCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func serve(ctx context.Context) error {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Tracing
	shutdownTracer := tracer.InitTracer(cfg.App.OtelEnabled)
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Tracer shutdown error: %v", err)
		}
	}()

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(cfg)
	if err != nil {
		return err
	}

	// 4. Start Background Services
	if err := container.ConsumerService.Consume(ctx); err != nil {
		return fmt.Errorf("start interest consumer: %w", err)
	}
	container.NotificationService.Start(ctx)

	srv := server.New(cfg, container)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		container.WebSocketHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Run()
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(), container.Close(shutdownCtx))
	})

	return g.Wait()
}

func checkCatalog(dir string) error {
	cat, err := catalog.Load(dir)
	if err != nil {
		color.Red("✗ %v", err)
		return err
	}
	color.Green("✓ %d items, %d tags loaded from %s", len(cat.Items()), len(cat.Vocabulary()), dir)

	unknown := cat.UnknownTags()
	if len(unknown) == 0 {
		color.Green("✓ every item tag is in the vocabulary")
		return nil
	}

	ids := make([]string, 0, len(unknown))
	for id := range unknown {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		color.Yellow("! %s: %v", id, unknown[id])
	}
	return fmt.Errorf("%d items carry unknown tags", len(ids))
}
