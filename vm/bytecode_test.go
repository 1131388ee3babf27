package vm

import (
	"encoding/binary"
	"strings"
	"testing"
)

func TestEveryOpcodeHasAnInstruction(t *testing.T) {
	for op, info := range opcodeTable {
		if instructions[op] == nil {
			t.Errorf("%s (0x%02x) has no instruction", info.Name, byte(op))
		}
	}
	for i := 0; i < 256; i++ {
		op := Opcode(i)
		if instructions[op] != nil && !op.Valid() {
			t.Errorf("0x%02x has an instruction but is not a JVMS opcode", i)
		}
	}
}

func TestOpcodeNames(t *testing.T) {
	cases := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "nop"},
		{OpIconst1, "iconst_1"},
		{OpInvokestatic, "invokestatic"},
		{Opcode(0xcb), "unknown_cb"},
	}
	for _, tc := range cases {
		if got := tc.op.String(); got != tc.want {
			t.Errorf("Opcode(0x%02x).String() = %q, want %q", byte(tc.op), got, tc.want)
		}
	}
	if Opcode(0xcb).Valid() || !OpGotoW.Valid() {
		t.Error("Valid disagrees with the opcode table")
	}
}

func TestInstructionLength(t *testing.T) {
	sw := NewBytecodeBuilder().Emit(OpNop)
	a, b := sw.NewLabel(), sw.NewLabel()
	sw.EmitTableSwitch(0, a, a, b).Mark(a).Mark(b).Emit(OpReturn)
	lk := NewBytecodeBuilder()
	c := lk.NewLabel()
	lk.EmitLookupSwitch(c, SwitchCase{Match: 3, Target: c}).Mark(c).Emit(OpReturn)

	cases := []struct {
		name string
		code []byte
		pc   int
		want int
	}{
		{"no operands", []byte{byte(OpIadd)}, 0, 1},
		{"bipush", []byte{byte(OpBipush), 5}, 0, 2},
		{"invokeinterface", []byte{byte(OpInvokeinterface), 0, 1, 1, 0}, 0, 5},
		{"goto_w", []byte{byte(OpGotoW), 0, 0, 0, 5}, 0, 5},
		{"wide iload", []byte{byte(OpWide), byte(OpIload), 1, 0}, 0, 4},
		{"wide iinc", []byte{byte(OpWide), byte(OpIinc), 1, 0, 0, 1}, 0, 6},
		// pc 1: two padding bytes, default, low, high, two offsets.
		{"tableswitch", sw.Bytes(), 1, 1 + 2 + 12 + 8},
		// pc 0: three padding bytes, default, npairs, one pair.
		{"lookupswitch", lk.Bytes(), 0, 1 + 3 + 8 + 8},
	}
	for _, tc := range cases {
		got, err := InstructionLength(tc.code, tc.pc)
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: length = %d, want %d", tc.name, got, tc.want)
		}
	}

	for _, bad := range [][]byte{{0xcb}, {byte(OpWide)}, {byte(OpTableswitch), 0, 0}} {
		if _, err := InstructionLength(bad, 0); err == nil {
			t.Errorf("InstructionLength(% x) succeeded", bad)
		}
	}
	if _, err := InstructionLength([]byte{byte(OpNop)}, 1); err == nil {
		t.Error("pc past the end should fail")
	}
}

func TestLabelsPatchOffsets(t *testing.T) {
	b := NewBytecodeBuilder()
	top, end := b.NewLabel(), b.NewLabel()
	b.Mark(top).
		Emit(OpNop).
		EmitJump(OpIfeq, end). // pc 1
		EmitJump(OpGoto, top). // pc 4
		Mark(end).             // pc 7
		Emit(OpReturn)
	code := b.Bytes()

	if got := int16(binary.BigEndian.Uint16(code[2:])); got != 6 {
		t.Errorf("forward offset = %d, want 6", got)
	}
	if got := int16(binary.BigEndian.Uint16(code[5:])); got != -4 {
		t.Errorf("backward offset = %d, want -4", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("marking a label twice should panic")
		}
	}()
	b.Mark(end)
}

func TestSwitchTargetsAreRelativeToOpcode(t *testing.T) {
	b := NewBytecodeBuilder().Emit(OpNop, OpNop)
	dflt, one := b.NewLabel(), b.NewLabel()
	b.EmitTableSwitch(1, dflt, one) // pc 2, one padding byte
	b.Mark(one).Emit(OpIconst1, OpIreturn)
	b.Mark(dflt).Emit(OpIconst0, OpIreturn)
	code := b.Bytes()

	base := 4
	if got := int32(binary.BigEndian.Uint32(code[base:])); int(got) != 2+16+2 {
		t.Errorf("default offset = %d, want %d", got, 2+16+2)
	}
	if got := int32(binary.BigEndian.Uint32(code[base+12:])); int(got) != 18 {
		t.Errorf("case offset = %d, want 18", got)
	}
}

func TestDisassemble(t *testing.T) {
	b := NewBytecodeBuilder()
	loop := b.NewLabel()
	b.Mark(loop).
		Emit(OpIconst1).
		EmitI8(OpBipush, -3).
		EmitU16(OpSipush, 300).
		EmitIinc(2, -1).
		EmitU16(OpInvokestatic, 7).
		EmitJump(OpGoto, loop)

	want := strings.Join([]string{
		"   0: iconst_1",
		"   1: bipush -3",
		"   3: sipush 300",
		"   6: iinc 2 -1",
		"   9: invokestatic #7",
		"  12: goto -> 0",
		"",
	}, "\n")
	if got := Disassemble(b.Bytes()); got != want {
		t.Errorf("Disassemble =\n%s\nwant\n%s", got, want)
	}

	if line, n := DisassembleInstruction([]byte{0xcb}, 0); n != 1 || !strings.Contains(line, "bad") {
		t.Errorf("unknown opcode rendered as %q (%d bytes)", line, n)
	}
}
