package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wallera-computer/tagateway/config"
	"github.com/wallera-computer/tagateway/directory"
	"github.com/wallera-computer/tagateway/log"
)

func main() {
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	configPath := fs.String("config", "", "YAML configuration file")
	config.DirectoryFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		log.Development().Sugar().Fatal(err)
	}

	zl, err := log.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Development().Sugar().Fatal(err)
	}
	defer zl.Sync()

	l := zl.Sugar()

	if err := cfg.ValidateDirectory(); err != nil {
		l.Fatalw("invalid configuration", "error", err)
	}

	store, err := directory.OpenStore(cfg.Directory.DataDir, zl)
	if err != nil {
		l.Fatal(err)
	}
	defer store.Close()

	entries, err := store.Entries()
	if err != nil {
		l.Fatal(err)
	}
	for id, path := range entries {
		l.Infow("known trusted application", "uuid", id, "socket", path)
	}

	ln, err := directory.Listen(cfg.Directory.Socket)
	if err != nil {
		l.Fatal(err)
	}

	srv := directory.NewServer(store, cfg.Gateway.SocketDir, zl.Named("directory"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer cancel()
		return srv.Serve(ctx, ln)
	})

	eg.Go(func() error {
		defer cancel()
		return waitSignal(ctx, l)
	})

	if err := eg.Wait(); err != nil {
		l.Error(err)
	}

	l.Info("exiting")
}

func waitSignal(ctx context.Context, l *zap.SugaredLogger) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case s := <-sigs:
		l.Infow("received signal", "signal", s.String())
	case <-ctx.Done():
	}

	return nil
}
