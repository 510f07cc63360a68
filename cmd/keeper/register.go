package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/solcron/keeper/internal/chainclient"
	"github.com/solcron/keeper/internal/config"
	"github.com/solcron/keeper/internal/keypair"
	"github.com/solcron/keeper/internal/rpcmanager"
)

func newRegisterCmd() *cobra.Command {
	var stakeSOL float64
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Stake into the registry and register this keeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLifecycleTx(cmd.Context(), func(ctx context.Context, rpc *rpcmanager.Manager, kp *keypair.Keypair) (string, error) {
				var pub [32]byte
				copy(pub[:], kp.Public)
				lamports := uint64(stakeSOL * 1_000_000_000)
				ix := chainclient.BuildRegisterKeeperInstruction(chainclient.RegistryProgramID, chainclient.SystemProgramID, pub, lamports)
				return submitInstruction(ctx, rpc, kp, ix)
			})
		},
	}
	cmd.Flags().Float64Var(&stakeSOL, "stake", 0, "stake amount in SOL")
	return cmd
}

func newClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim",
		Short: "Claim accrued fees from the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLifecycleTx(cmd.Context(), func(ctx context.Context, rpc *rpcmanager.Manager, kp *keypair.Keypair) (string, error) {
				var pub [32]byte
				copy(pub[:], kp.Public)
				ix := chainclient.BuildClaimFeesInstruction(chainclient.RegistryProgramID, chainclient.SystemProgramID, pub)
				return submitInstruction(ctx, rpc, kp, ix)
			})
		},
	}
}

func newUnregisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unregister",
		Short: "Close this keeper's registry account and withdraw its stake",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLifecycleTx(cmd.Context(), func(ctx context.Context, rpc *rpcmanager.Manager, kp *keypair.Keypair) (string, error) {
				var pub [32]byte
				copy(pub[:], kp.Public)
				ix := chainclient.BuildUnregisterKeeperInstruction(chainclient.RegistryProgramID, pub)
				return submitInstruction(ctx, rpc, kp, ix)
			})
		},
	}
}

// runLifecycleTx loads config and keypair, builds an RPC Manager, runs
// build, and prints the resulting signature. register/claim/unregister
// all share this shape; only the instruction they build differs.
func runLifecycleTx(ctx context.Context, build func(context.Context, *rpcmanager.Manager, *keypair.Keypair) (string, error)) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	kp, err := keypair.Load(cfg.Keeper.WalletPath)
	if err != nil {
		return err
	}

	rpc, err := rpcmanager.New(
		cfg.RPCURLs(),
		func(url string) chainclient.ChainClient { return chainclient.NewHTTPClient(url, cfg.RequestTimeout()) },
		cfg.MaxRPCRetries(),
		time.Second,
	)
	if err != nil {
		return err
	}

	sig, err := build(ctx, rpc, kp)
	if err != nil {
		return err
	}

	fmt.Printf("signature: %s\n", sig)
	return nil
}

func submitInstruction(ctx context.Context, rpc *rpcmanager.Manager, kp *keypair.Keypair, ix chainclient.Instruction) (string, error) {
	blockhash, err := rpc.LatestBlockhash(ctx)
	if err != nil {
		return "", err
	}

	var pub [32]byte
	copy(pub[:], kp.Public)

	message := chainclient.CompileMessage(ix, pub, blockhash)
	tx := chainclient.SignTransaction(message, kp.Private)

	return rpc.SendAndConfirmTransaction(ctx, tx)
}
