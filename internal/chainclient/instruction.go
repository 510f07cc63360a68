package chainclient

import (
	"crypto/sha256"

	"github.com/solcron/keeper/internal/keeperr"
)

// RegistryReader exposes just enough of the registry program's state to
// build an execution instruction. It is injected rather than called
// directly because the registry program is an external collaborator
// (spec.md §1): the core only needs the wire shape of what it signs.
type RegistryReader interface {
	// TotalExecutions returns the execution count to use when deriving
	// a job's next execution_record PDA. spec.md §9 flags this as an
	// open seam: the off-chain executor in the original source used a
	// placeholder of 0; a real implementation reads
	// registry_state.total_executions before building the instruction.
	TotalExecutions(jobID uint64) (uint64, error)
}

// ZeroRegistryReader always returns 0, reproducing the original
// keeper-node's placeholder behavior. It exists so the executor has a
// working default when no real registry reader is wired, per the
// "preserve as an interface seam" instruction in spec.md §9 — it is not
// meant to be the production implementation.
type ZeroRegistryReader struct{}

func (ZeroRegistryReader) TotalExecutions(uint64) (uint64, error) { return 0, nil }

// Discriminator computes an Anchor-style 8-byte instruction
// discriminator from an instruction name (sha256("global:"+name)[:8]).
// The original keeper-node emitted an all-zero placeholder here and
// flagged it as a bug to fix (spec.md §9); this reproduces the actual
// Anchor convention instead.
func Discriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

// ExecuteJobInstructionName is the on-chain instruction this keeper
// invokes for every fired job.
const ExecuteJobInstructionName = "execute_job"

// BuildExecuteJobInstruction assembles the execute_job instruction per
// spec.md §4.5: three registry PDAs, the execution_record PDA keyed on
// the job's next execution count, the keeper as fee-payer/signer, the
// job's target program, and the system program, followed by an 8-byte
// discriminator and the job id.
func BuildExecuteJobInstruction(
	registryProgramID [32]byte,
	systemProgramID [32]byte,
	targetProgramID [32]byte,
	jobID uint64,
	keeperPubkey [32]byte,
	registry RegistryReader,
) (Instruction, error) {
	executionCount, err := registry.TotalExecutions(jobID)
	if err != nil {
		return Instruction{}, keeperr.Wrap(keeperr.KindChainClient, "read registry execution count", err)
	}

	registryState, _ := FindProgramAddress([][]byte{[]byte("registry")}, registryProgramID)
	automationJob, _ := FindProgramAddress([][]byte{[]byte("job"), LEBytes8(jobID)}, registryProgramID)
	keeperAccount, _ := FindProgramAddress([][]byte{[]byte("keeper"), keeperPubkey[:]}, registryProgramID)
	executionRecord, _ := FindProgramAddress(
		[][]byte{[]byte("execution"), LEBytes8(jobID), LEBytes8(executionCount)},
		registryProgramID,
	)

	accounts := []AccountMeta{
		{PublicKey: registryState, IsWritable: true},
		{PublicKey: automationJob, IsWritable: true},
		{PublicKey: keeperAccount, IsWritable: true},
		{PublicKey: executionRecord, IsWritable: true},
		{PublicKey: keeperPubkey, IsSigner: true, IsWritable: true},
		{PublicKey: targetProgramID},
		{PublicKey: systemProgramID},
	}

	disc := Discriminator(ExecuteJobInstructionName)
	data := make([]byte, 0, len(disc)+8)
	data = append(data, disc[:]...)
	data = append(data, LEBytes8(jobID)...)

	return Instruction{
		ProgramID: registryProgramID,
		Accounts:  accounts,
		Data:      data,
	}, nil
}

// BuildRegisterKeeperInstruction assembles the instruction the `register`
// CLI subcommand (spec.md §6.5) submits to stake a keeper into the
// registry. Account and data layout mirror BuildExecuteJobInstruction's
// convention (registry PDAs, signer, discriminator || payload) since the
// registry program is the same external collaborator either way; the
// actual staking/accounting logic lives entirely on-chain (spec.md §1).
func BuildRegisterKeeperInstruction(registryProgramID, systemProgramID, keeperPubkey [32]byte, stakeLamports uint64) Instruction {
	registryState, _ := FindProgramAddress([][]byte{[]byte("registry")}, registryProgramID)
	keeperAccount, _ := FindProgramAddress([][]byte{[]byte("keeper"), keeperPubkey[:]}, registryProgramID)

	disc := Discriminator("register_keeper")
	data := make([]byte, 0, len(disc)+8)
	data = append(data, disc[:]...)
	data = append(data, LEBytes8(stakeLamports)...)

	return Instruction{
		ProgramID: registryProgramID,
		Accounts: []AccountMeta{
			{PublicKey: registryState, IsWritable: true},
			{PublicKey: keeperAccount, IsWritable: true},
			{PublicKey: keeperPubkey, IsSigner: true, IsWritable: true},
			{PublicKey: systemProgramID},
		},
		Data: data,
	}
}

// BuildUnregisterKeeperInstruction assembles the `unregister` subcommand's
// instruction: closes the keeper's registry account and returns its stake.
func BuildUnregisterKeeperInstruction(registryProgramID, keeperPubkey [32]byte) Instruction {
	registryState, _ := FindProgramAddress([][]byte{[]byte("registry")}, registryProgramID)
	keeperAccount, _ := FindProgramAddress([][]byte{[]byte("keeper"), keeperPubkey[:]}, registryProgramID)

	disc := Discriminator("unregister_keeper")
	return Instruction{
		ProgramID: registryProgramID,
		Accounts: []AccountMeta{
			{PublicKey: registryState, IsWritable: true},
			{PublicKey: keeperAccount, IsWritable: true},
			{PublicKey: keeperPubkey, IsSigner: true, IsWritable: true},
		},
		Data: disc[:],
	}
}

// BuildClaimFeesInstruction assembles the `claim` subcommand's instruction:
// sweeps accrued fees from the keeper's registry account to the keeper's
// own wallet. The reputation/fee accounting it triggers is computed
// entirely on-chain (spec.md §1's non-goals).
func BuildClaimFeesInstruction(registryProgramID, systemProgramID, keeperPubkey [32]byte) Instruction {
	keeperAccount, _ := FindProgramAddress([][]byte{[]byte("keeper"), keeperPubkey[:]}, registryProgramID)

	disc := Discriminator("claim_fees")
	return Instruction{
		ProgramID: registryProgramID,
		Accounts: []AccountMeta{
			{PublicKey: keeperAccount, IsWritable: true},
			{PublicKey: keeperPubkey, IsSigner: true, IsWritable: true},
			{PublicKey: systemProgramID},
		},
		Data: disc[:],
	}
}
