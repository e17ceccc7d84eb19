package afpacket

import (
	"golang.org/x/net/bpf"
)

// EthertypeFilter assembles a classic-BPF program accepting exactly the
// frames whose Ethertype field matches etherType, mirroring in the kernel
// the filtering a MAC-RAW controller socket does in hardware.
func EthertypeFilter(etherType uint16) ([]bpf.RawInstruction, error) {
	instructions := []bpf.Instruction{
		// Load the Ethertype field (offset 12, 2 octets).
		bpf.LoadAbsolute{Off: 12, Size: 2},
		// Accept the whole frame on a match, drop otherwise.
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(etherType), SkipFalse: 1},
		bpf.RetConstant{Val: 65535},
		bpf.RetConstant{Val: 0},
	}
	return bpf.Assemble(instructions)
}
