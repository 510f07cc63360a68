// Package chainclient defines the wire-shape the keeper core needs to
// sign and submit transactions against the on-chain registry program.
// The registry and execution programs themselves are external
// collaborators (spec.md §1); this package only knows enough of their
// wire shape to build an instruction, sign it, and hand it to the RPC
// Manager.
package chainclient

import (
	"context"
	"encoding/binary"

	"github.com/mr-tron/base58"
)

// RegistryProgramIDStr is the on-chain registry program's address every
// keeper in this deployment targets.
const RegistryProgramIDStr = "Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS"

// RegistryProgramID and SystemProgramID are the program ids the keeper's
// instruction builders and CLI lifecycle commands (register/claim/
// unregister) reference. SystemProgramID is all zero bytes (base58
// "11111111111111111111111111111111").
var (
	RegistryProgramID = mustPubkey(RegistryProgramIDStr)
	SystemProgramID   [32]byte
)

func mustPubkey(s string) [32]byte {
	decoded, err := base58.Decode(s)
	if err != nil || len(decoded) != 32 {
		panic("chainclient: invalid embedded program id " + s)
	}
	var out [32]byte
	copy(out[:], decoded)
	return out
}

// AccountMeta describes one account reference in an Instruction,
// mirroring Solana's AccountMeta.
type AccountMeta struct {
	PublicKey  [32]byte
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program invocation: a target program id, its
// account list, and opaque instruction data.
type Instruction struct {
	ProgramID [32]byte
	Accounts  []AccountMeta
	Data      []byte
}

// Message is the signable body of a transaction: a recent blockhash and
// one or more instructions, addressed by a compiled account key table.
type Message struct {
	AccountKeys     [][32]byte
	RecentBlockhash [32]byte
	Instructions    []Instruction
}

// Transaction is a fully signed, submittable transaction: one signature
// per required signer, in the same order as the signer accounts appear
// in Message.AccountKeys.
type Transaction struct {
	Signatures [][64]byte
	Message    Message
}

// SimulationResult is the outcome of a dry-run execution.
type SimulationResult struct {
	// Err is non-nil if the simulated transaction would have failed.
	Err  error
	Logs []string
}

// Account is the decoded state of an on-chain account.
type Account struct {
	Owner    [32]byte
	Lamports uint64
	Data     []byte
}

// ChainClient is the minimal surface the RPC Manager retries over. A
// single endpoint wraps exactly one ChainClient; RpcManager never talks
// to the chain directly.
type ChainClient interface {
	LatestBlockhash(ctx context.Context) ([32]byte, error)
	SendAndConfirm(ctx context.Context, tx *Transaction) (signature string, err error)
	Simulate(ctx context.Context, tx *Transaction) (*SimulationResult, error)
	GetAccount(ctx context.Context, pubkey [32]byte) (*Account, error)
	GetMultipleAccounts(ctx context.Context, pubkeys [][32]byte) ([]*Account, error)
	GetBalance(ctx context.Context, pubkey [32]byte) (uint64, error)
	GetTransactionCount(ctx context.Context) (uint64, error)
}

// CompileMessage builds a signable Message for a single instruction: the
// fee payer's key first, followed by the instruction's own accounts and
// program id, each deduplicated against keys already present. The keeper
// only ever submits one instruction per transaction (spec.md §6.3), so a
// single-instruction compiler is all the wire layer needs.
func CompileMessage(ix Instruction, payer [32]byte, blockhash [32]byte) Message {
	keys := [][32]byte{payer}
	seen := map[[32]byte]bool{payer: true}

	for _, acc := range ix.Accounts {
		if !seen[acc.PublicKey] {
			seen[acc.PublicKey] = true
			keys = append(keys, acc.PublicKey)
		}
	}
	if !seen[ix.ProgramID] {
		keys = append(keys, ix.ProgramID)
	}

	return Message{
		AccountKeys:     keys,
		RecentBlockhash: blockhash,
		Instructions:    []Instruction{ix},
	}
}

// LEBytes8 renders v as 8 little-endian bytes, matching the Rust
// to_le_bytes() calls the original keeper-node used for PDA seeds and
// instruction data.
func LEBytes8(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
