package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gluster/changelog/eventrpc"
	"github.com/gluster/changelog/internal/bitset"
	"github.com/gluster/changelog/internal/xcmd"
	"github.com/gluster/changelog/internal/xlog"
	"github.com/gluster/changelog/producer"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	ConfigPath string
}

var rootCmd = &cobra.Command{
	Use:   "changelog-agent",
	Short: "Brick-side changelog producer",
	Run: func(rawCmd *cobra.Command, args []string) {
		if err := run(cmd); err != nil {
			if errors.Is(err, xcmd.Interrupted{}) {
				return
			}
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file (required)")
	rootCmd.MarkFlagRequired("config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd) error {
	cfg, err := LoadConfig(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, _, err := xlog.Init(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	engine, err := producer.New(&cfg.Producer, producer.WithLog(log))
	if err != nil {
		return fmt.Errorf("failed to create producer engine: %w", err)
	}

	ctx := context.Background()
	wg, ctx := errgroup.WithContext(ctx)

	wg.Go(func() error { return engine.Run(ctx) })

	for i, sock := range cfg.ConsumerSockets {
		sock := sock
		id := fmt.Sprintf("consumer-%d", i)
		wg.Go(func() error { return dialConsumer(ctx, engine, id, sock, log) })
	}

	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		log.Infow("caught signal", "error", err)
		_ = engine.Close()
		return err
	})

	return wg.Wait()
}

func dialConsumer(ctx context.Context, engine *producer.Engine, id, socketPath string, log *zap.SugaredLogger) error {
	conn := eventrpc.NewConnector(socketPath, log)
	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("reverse-connect to %s: %w", socketPath, err)
	}
	log.Infow("reverse-connected", "consumer", id, "socket", socketPath)
	engine.RegisterConsumer(id, conn, bitset.TinyBitset{})
	<-ctx.Done()
	engine.UnregisterConsumer(id)
	return conn.Close()
}
