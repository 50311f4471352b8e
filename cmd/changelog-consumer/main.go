package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/gluster/changelog/consumer"
	"github.com/gluster/changelog/eventrpc"
	"github.com/gluster/changelog/internal/xcmd"
	"github.com/gluster/changelog/internal/xlog"
)

var cmd Cmd

type Cmd struct {
	ConfigPath string
}

var rootCmd = &cobra.Command{
	Use:   "changelog-consumer",
	Short: "Client-side changelog journal engine",
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

	ctx := context.Background()

	journal, err := consumer.Register(ctx, cfg.BrickPath, cfg.ScratchDir, cfg.MaxReconnects, log)
	if err != nil {
		return fmt.Errorf("failed to register consumer journal: %w", err)
	}

	if err := os.RemoveAll(cfg.Socket); err != nil {
		return fmt.Errorf("failed to clear stale socket: %w", err)
	}
	lis, err := net.Listen("unix", cfg.Socket)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Socket, err)
	}

	grpcServer := grpc.NewServer()
	eventrpc.RegisterEventServiceServer(grpcServer, journal.Endpoint())

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error { return grpcServer.Serve(lis) })
	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		log.Infow("caught signal", "error", err)
		grpcServer.GracefulStop()
		_ = journal.Close()
		return err
	})

	return wg.Wait()
}
