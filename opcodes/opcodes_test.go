package opcodes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsBranchCoversOnlyPatchableInstructions(t *testing.T) {
	branchy := []Opcode{JMP, BT, BF, BEQ, BNE}
	for _, op := range branchy {
		require.True(t, Instruction{Op: op}.IsBranch(), "%s should be patchable", op)
	}

	notBranchy := []Opcode{PASS, LABEL, SET, ADD, CALL, RET, LEN, SQRT}
	for _, op := range notBranchy {
		require.False(t, Instruction{Op: op}.IsBranch(), "%s should not be patchable", op)
	}
}

func TestOpcodeStringIsStable(t *testing.T) {
	require.Equal(t, "CALL", CALL.String())
	require.Equal(t, "LIST_ADD", LIST_ADD.String())
	require.Equal(t, "UNKNOWN", Opcode(255).String())
}

func TestUnusedSentinel(t *testing.T) {
	require.Equal(t, -1, Unused)
}
