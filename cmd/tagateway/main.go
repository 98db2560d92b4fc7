package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/99designs/keyring"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/wallera-computer/tagateway/config"
	"github.com/wallera-computer/tagateway/gateway"
	"github.com/wallera-computer/tagateway/log"
	"github.com/wallera-computer/tagateway/walletta"
)

const keyringService = "tagateway"

type args struct {
	configPath  string
	printConfig bool
}

func cliArgs(fs *pflag.FlagSet) args {
	a := args{}

	fs.StringVar(&a.configPath, "config", "", "YAML configuration file")
	fs.BoolVar(&a.printConfig, "print-config", false, "print the effective configuration and exit")
	config.GatewayFlags(fs)

	_ = fs.Parse(os.Args[1:])

	return a
}

func main() {
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	a := cliArgs(fs)

	cfg, err := config.Load(a.configPath, fs)
	if err != nil {
		log.Development().Sugar().Fatal(err)
	}

	if cfg.Gateway.UUID == "" {
		cfg.Gateway.UUID = walletta.UUID
	}

	if a.printConfig {
		if err := config.Write(os.Stdout, cfg); err != nil {
			log.Development().Sugar().Fatal(err)
		}

		return
	}

	zl, err := log.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Development().Sugar().Fatal(err)
	}
	defer zl.Sync()

	l := zl.Sugar()

	if err := cfg.Validate(); err != nil {
		l.Fatalw("invalid configuration", "error", err)
	}

	gcfg, err := cfg.GatewayConfig()
	notErr(err, l)

	ring, err := keyring.Open(keyring.Config{
		ServiceName:      keyringService,
		AllowedBackends:  []keyring.BackendType{keyring.FileBackend},
		FileDir:          cfg.Wallet.KeyringDir,
		FilePasswordFunc: passwordFunc(cfg.Wallet.KeyringPassword),
	})
	notErr(err, l)

	g := gateway.New(gcfg, walletta.New(ring, zl.Named("walletta")), zl.Named("gateway"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer cancel()
		return g.Run(ctx)
	})

	eg.Go(func() error {
		defer cancel()
		return waitSignal(ctx, l)
	})

	l.Infow("running...", "uuid", gcfg.UUID, "socket", gcfg.SocketPath())

	if err := eg.Wait(); err != nil {
		l.Fatal(err)
	}

	l.Info("exiting")
}

// waitSignal returns once SIGINT or SIGTERM is received, or ctx is done.
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

func passwordFunc(password string) keyring.PromptFunc {
	if password != "" {
		return keyring.FixedStringPrompt(password)
	}

	return terminalPrompt
}

func terminalPrompt(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal to read the keyring password from, set TAGATEWAY_WALLET_KEYRING_PASSWORD")
	}

	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)

	return string(b), err
}

func notErr(e error, l *zap.SugaredLogger) {
	if e != nil {
		l.Fatal(e)
	}
}
