package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"crafture/internal/infra"
	"crafture/internal/storage"
)

func main() {
	var (
		timeoutFlag time.Duration
		statusOnly  bool
	)
	flag.DurationVar(&timeoutFlag, "timeout", 0, "overall timeout (defaults to CHAIN_TIMEOUT_SECONDS)")
	flag.BoolVar(&statusOnly, "status", false, "print wallet balance and exit without sending transactions")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	if !cfg.StorageEnabled() {
		exitWithError(errors.New("FILECOIN_PRIVATE_KEY is required"))
	}
	timeout := timeoutFlag
	if timeout <= 0 {
		timeout = cfg.ChainTimeout
	}

	logger := infra.NewLogger("cli").With().Str("cmd", "setuppayment").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	session, err := storage.Dial(ctx, storage.DialConfig{
		PrivateKey:         cfg.FilecoinPrivateKey,
		RPCURL:             cfg.FilecoinRPCURL,
		TokenAddress:       cfg.USDFCAddress,
		PaymentsAddress:    cfg.PaymentsAddress,
		WarmStorageAddress: cfg.WarmStorageAddress,
	})
	if err != nil {
		exitWithError(fmt.Errorf("connect storage network: %w", err))
	}
	defer session.Close()

	balance, err := session.Chain.TokenBalance(ctx)
	if err != nil {
		exitWithError(fmt.Errorf("read balance: %w", err))
	}
	fmt.Printf("wallet %s on %s: %s USDFC\n", session.Address.Hex(), session.Network, storage.FormatUnits(balance, storage.TokenDecimals))
	if statusOnly {
		return
	}

	sessions := storage.NewManager(func(context.Context) (*storage.Session, error) { return session, nil })
	payments := storage.NewPaymentSetup(sessions, timeout, &logger)
	if err := payments.EnsureFunded(ctx); err != nil {
		exitWithError(err)
	}
	fmt.Println("payment setup completed")
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "setuppayment: %v\n", err)
	os.Exit(1)
}
