package mips

import (
	"encoding/binary"
	"errors"
	"testing"

	"objdiff/internal/asm"
)

func words(order binary.ByteOrder, ws ...uint32) []byte {
	out := make([]byte, 0, len(ws)*4)
	for _, w := range ws {
		var b [4]byte
		order.PutUint32(b[:], w)
		out = append(out, b[:]...)
	}
	return out
}

func TestDecodeWord(t *testing.T) {
	tests := []struct {
		name string
		word uint32
		pc   uint64
		text string
	}{
		{
			name: "nop",
			word: 0x00000000,
			text: "nop",
		},
		{
			name: "addiu stack adjust",
			word: 0x27bdffe0, // addiu $sp, $sp, -32
			text: "addiu $sp, $sp, -0x20",
		},
		{
			name: "lw return address",
			word: 0x8fbf001c,
			text: "lw $ra, 0x1c($sp)",
		},
		{
			name: "sw",
			word: 0xafbf001c,
			text: "sw $ra, 0x1c($sp)",
		},
		{
			name: "move alias for addu with zero rt",
			word: 0x00801021, // addu $v0, $a0, $zero
			text: "move $v0, $a0",
		},
		{
			name: "addu",
			word: 0x00851021,
			text: "addu $v0, $a0, $a1",
		},
		{
			name: "lui",
			word: 0x3c048000,
			text: "lui $a0, 0x8000",
		},
		{
			name: "sll",
			word: 0x00042080, // sll $a0, $a0, 2
			text: "sll $a0, $a0, 0x2",
		},
		{
			name: "mfhi",
			word: 0x00001010,
			text: "mfhi $v0",
		},
		{
			name: "fp add single",
			word: 0x46020040, // add.s $f1, $f0, $f2
			text: "add.s $f1, $f0, $f2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, ok := decodeWord(tt.word, tt.pc)
			if !ok {
				t.Fatalf("decodeWord(%#08x) not recognized", tt.word)
			}
			if got := in.Text(); got != tt.text {
				t.Errorf("decodeWord(%#08x) = %q, want %q", tt.word, got, tt.text)
			}
		})
	}
}

func TestDecodeBranches(t *testing.T) {
	const pc = 0x80000100

	tests := []struct {
		name     string
		word     uint32
		mnem     string
		target   uint64
		call     bool
		indirect bool
	}{
		{
			name:   "beq forward",
			word:   0x10400003, // beq $v0, $zero, +4 words
			mnem:   "beq",
			target: pc + 4 + 3*4,
		},
		{
			name:   "unconditional b alias",
			word:   0x10000001,
			mnem:   "b",
			target: pc + 8,
		},
		{
			name:   "bne backward",
			word:   0x1443ffff, // bne $v0, $v1, -1 word
			mnem:   "bne",
			target: pc,
		},
		{
			name:   "jal keeps segment bits",
			word:   0x0c000400,
			mnem:   "jal",
			target: 0x80001000,
			call:   true,
		},
		{
			name:     "jr register",
			word:     0x03e00008, // jr $ra
			mnem:     "jr",
			indirect: true,
		},
		{
			name:     "jalr",
			word:     0x0040f809, // jalr $v0
			mnem:     "jalr",
			call:     true,
			indirect: true,
		},
		{
			name:   "bgezal links",
			word:   0x04510002, // bgezal $v0, +3 words
			mnem:   "bgezal",
			target: pc + 4 + 2*4,
			call:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, ok := decodeWord(tt.word, pc)
			if !ok {
				t.Fatalf("decodeWord(%#08x) not recognized", tt.word)
			}
			if !in.Branch {
				t.Fatalf("decodeWord(%#08x) not marked as branch", tt.word)
			}
			if in.Mnemonic != tt.mnem {
				t.Errorf("mnemonic = %q, want %q", in.Mnemonic, tt.mnem)
			}
			if in.Call != tt.call {
				t.Errorf("call = %v, want %v", in.Call, tt.call)
			}
			if in.Indirect != tt.indirect {
				t.Errorf("indirect = %v, want %v", in.Indirect, tt.indirect)
			}
			if !tt.indirect && in.Target != tt.target {
				t.Errorf("target = %#x, want %#x", in.Target, tt.target)
			}
		})
	}
}

func TestDecodeStream(t *testing.T) {
	// Typical epilogue in both byte orders.
	ws := []uint32{
		0x8fbf001c, // lw $ra, 0x1c($sp)
		0x03e00008, // jr $ra
		0x27bd0020, // addiu $sp, $sp, 0x20
	}
	for _, order := range []binary.ByteOrder{binary.BigEndian, binary.LittleEndian} {
		d := New(order)
		stream, err := d.Decode(words(order, ws...), 0x1000)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if len(stream) != 3 {
			t.Fatalf("got %d instructions, want 3", len(stream))
		}
		total := 0
		for i, in := range stream {
			if in.Addr != 0x1000+uint64(4*i) {
				t.Errorf("inst %d addr = %#x", i, in.Addr)
			}
			total += in.Len
		}
		if total != len(ws)*4 {
			t.Errorf("lengths sum to %d, want %d", total, len(ws)*4)
		}
	}
}

func TestDecodeUnknownSentinel(t *testing.T) {
	d := New(binary.BigEndian)
	// Opcode 0x3b is unassigned in MIPS I/II.
	code := words(binary.BigEndian, 0x00000000, 0xec000000, 0x03e00008)
	stream, err := d.Decode(code, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(stream) != 3 {
		t.Fatalf("got %d instructions, want 3", len(stream))
	}
	s := stream[1]
	if !s.Unknown {
		t.Fatalf("inst 1 not a sentinel")
	}
	if s.Len != 4 || len(s.Raw) != 4 {
		t.Errorf("sentinel covers %d bytes, want 4", s.Len)
	}
	if s.Addr != 4 {
		t.Errorf("sentinel addr = %#x, want 0x4", s.Addr)
	}
}

func TestDecodeTruncated(t *testing.T) {
	d := New(binary.BigEndian)
	code := append(words(binary.BigEndian, 0x03e00008), 0x27, 0xbd)
	stream, err := d.Decode(code, 0)
	if !errors.Is(err, asm.ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
	if len(stream) != 2 {
		t.Fatalf("got %d instructions, want 2", len(stream))
	}
	tail := stream[1]
	if !tail.Unknown || tail.Len != 2 {
		t.Errorf("tail sentinel = %+v, want 2-byte Unknown", tail)
	}
}
