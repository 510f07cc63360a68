// Package keypair loads the keeper's ed25519 signing key from disk,
// consolidating the raw-bytes-or-JSON-array loading logic that the
// original keeper-node duplicated across executor.rs and keeper.rs.
package keypair

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mr-tron/base58"

	"github.com/solcron/keeper/internal/keeperr"
)

// rawKeypairLen is the on-disk length of a Solana-style keypair: a
// 32-byte seed followed by the 32-byte public key, matching
// ed25519.PrivateKey's expanded form.
const rawKeypairLen = 64

// Keypair is the keeper's signing identity.
type Keypair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// Load reads a keypair file in either accepted format (spec.md §6.2):
// a raw 64-byte binary file, or a UTF-8 JSON array of 64 integers 0-255.
func Load(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, keeperr.Wrap(keeperr.KindConfig, fmt.Sprintf("read keypair %s", path), err)
	}

	bytes, err := decode(data)
	if err != nil {
		return nil, err
	}

	priv := ed25519.PrivateKey(bytes)
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, keeperr.New(keeperr.KindConfig, "failed to derive public key from keypair")
	}

	return &Keypair{Private: priv, Public: pub}, nil
}

func decode(data []byte) ([]byte, error) {
	if len(data) == rawKeypairLen {
		return data, nil
	}

	var asJSON []byte
	if err := json.Unmarshal(data, &asJSON); err != nil {
		return nil, keeperr.Wrap(keeperr.KindConfig, "invalid keypair JSON", err)
	}
	if len(asJSON) != rawKeypairLen {
		return nil, keeperr.New(keeperr.KindConfig, fmt.Sprintf("keypair must decode to %d bytes, got %d", rawKeypairLen, len(asJSON)))
	}
	return asJSON, nil
}

// Address renders the public key the way the rest of the system
// identifies the keeper (e.g. as Job.Owner / ExecutionRecord.KeeperAddress).
func (k *Keypair) Address() string {
	return base58.Encode(k.Public)
}

// ParseAddress decodes a base58 public key string, the same format as
// the conditional-trigger "account_exists:<base58-pubkey>" condition
// (spec.md §4.3); the evaluator decodes that condition itself and does
// not call this function.
func ParseAddress(s string) ([]byte, error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return nil, keeperr.Wrap(keeperr.KindInvalidTrigger, "invalid public key", err)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, keeperr.New(keeperr.KindInvalidTrigger, fmt.Sprintf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(decoded)))
	}
	return decoded, nil
}
