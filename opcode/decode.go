package opcode

import "github.com/holiman/uint256"

// Instruction is an immutable decoded instruction. Once produced by Decode
// it is never mutated; BasicBlock and the VSA only ever hold pointers into
// the CFG's instruction table (ir.CFG), never copies.
type Instruction struct {
	PC          uint64
	Op          OpCode
	Operand     *uint256.Int // non-nil only for PUSH1..PUSH32
	OperandSize uint8
	Pops        uint8
	Pushes      uint8
}

// Name returns the instruction's mnemonic.
func (ins *Instruction) Name() string {
	return ins.Op.String()
}

// Decode disassembles raw EVM bytecode into a sequence of Instructions.
// PCs advance by 1+operand_size per spec.md §4.3. Any byte that does not
// correspond to an assigned opcode decodes to INVALID with no operand,
// matching the EVM's own handling of unassigned opcodes.
func Decode(code []byte) []Instruction {
	instructions := make([]Instruction, 0, len(code))
	for pc := 0; pc < len(code); {
		op := OpCode(code[pc])
		ins := Instruction{PC: uint64(pc), Op: op}

		if size := op.PushSize(); size > 0 {
			ins.OperandSize = uint8(size)
			end := pc + 1 + size
			operand := new(uint256.Int)
			if end <= len(code) {
				operand.SetBytes(code[pc+1 : end])
			} else {
				// Truncated push at the end of the bytecode: the EVM
				// zero-pads the missing trailing bytes.
				var buf [32]byte
				copy(buf[:size], code[pc+1:])
				operand.SetBytes(buf[:size])
			}
			ins.Operand = operand
		}

		ins.Pops, ins.Pushes = PopsPushes(op)
		instructions = append(instructions, ins)

		pc += 1 + int(ins.OperandSize)
	}
	return instructions
}
