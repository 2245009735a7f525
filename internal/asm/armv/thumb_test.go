package armv

import (
	"encoding/binary"
	"errors"
	"testing"

	"objdiff/internal/asm"
)

func halfwords(hws ...uint16) []byte {
	out := make([]byte, 0, len(hws)*2)
	for _, hw := range hws {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], hw)
		out = append(out, b[:]...)
	}
	return out
}

func TestThumbNarrow(t *testing.T) {
	tests := []struct {
		name string
		hw   uint16
		text string
	}{
		{"push with lr", 0xb510, "push {r4,lr}"},
		{"pop with pc", 0xbd10, "pop {r4,pc}"},
		{"mov imm8", 0x2000, "movs r0, 0x0"},
		{"cmp imm8", 0x2a05, "cmp r2, 0x5"},
		{"shift imm", 0x0088, "lsls r0, r1, 0x2"},
		{"add three reg", 0x18c0, "adds r0, r0, r3"},
		{"alu register", 0x4048, "eors r0, r1"},
		{"hi-reg mov", 0x4680, "mov r8, r0"},
		{"ldr sp-relative", 0x9801, "ldr r0, 0x4(sp)"},
		{"str imm5 scaled", 0x6042, "str r2, 0x4(r0)"},
		{"ldrh imm scaled", 0x8888, "ldrh r0, 0x4(r1)"},
		{"sub sp", 0xb082, "sub sp, 0x8"},
		{"ldr literal", 0x4c01, "ldr r4, 0x4(pc)"},
		{"stmia", 0xc003, "stmia r0, {r0,r1}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, ok := decodeNarrow(tt.hw, 0)
			if !ok {
				t.Fatalf("decodeNarrow(%#04x) not recognized", tt.hw)
			}
			if got := in.Text(); got != tt.text {
				t.Errorf("decodeNarrow(%#04x) = %q, want %q", tt.hw, got, tt.text)
			}
		})
	}
}

func TestThumbBranches(t *testing.T) {
	const pc = 0x8000

	t.Run("conditional backward", func(t *testing.T) {
		// beq with imm8 = -2: target is pc+4-4.
		in, ok := decodeNarrow(0xd0fe, pc)
		if !ok {
			t.Fatal("not recognized")
		}
		if in.Mnemonic != "beq" || !in.Branch || in.Call {
			t.Fatalf("inst = %+v", in)
		}
		if in.Target != pc {
			t.Errorf("target = %#x, want %#x", in.Target, pc)
		}
	})

	t.Run("unconditional forward", func(t *testing.T) {
		in, ok := decodeNarrow(0xe002, pc)
		if !ok {
			t.Fatal("not recognized")
		}
		if in.Mnemonic != "b" || in.Target != pc+4+4 {
			t.Errorf("inst = %+v, want b to %#x", in, pc+4+4)
		}
	})

	t.Run("bx lr", func(t *testing.T) {
		in, ok := decodeNarrow(0x4770, pc)
		if !ok {
			t.Fatal("not recognized")
		}
		if in.Mnemonic != "bx" || !in.Branch || !in.Indirect || in.Call {
			t.Errorf("inst = %+v", in)
		}
		if len(in.Ops) != 1 || in.Ops[0].Reg != "lr" {
			t.Errorf("ops = %v", in.Ops)
		}
	})
}

func TestThumbBL(t *testing.T) {
	d := NewThumb()
	// bl forward by 2: f000 f801.
	stream, err := d.Decode(halfwords(0xf000, 0xf801), 0x8000)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(stream) != 1 {
		t.Fatalf("got %d instructions, want 1", len(stream))
	}
	in := stream[0]
	if in.Mnemonic != "bl" || !in.Call || in.Len != 4 {
		t.Fatalf("inst = %+v", in)
	}
	if in.Target != 0x8000+4+2 {
		t.Errorf("target = %#x, want %#x", in.Target, 0x8000+4+2)
	}
}

func TestThumbBLBackward(t *testing.T) {
	d := NewThumb()
	// bl backward by 4: offHi = -1, offLo covers the rest.
	stream, err := d.Decode(halfwords(0xf7ff, 0xfffe), 0x8000)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	in := stream[0]
	if in.Target != 0x8000+4-4 {
		t.Errorf("target = %#x, want %#x", in.Target, 0x8000)
	}
}

func TestThumbUndefinedSentinel(t *testing.T) {
	d := NewThumb()
	// 0xde00 sits in the permanently undefined slot of the conditional
	// branch space.
	stream, err := d.Decode(halfwords(0xde00, 0x4770), 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(stream) != 2 {
		t.Fatalf("got %d instructions, want 2", len(stream))
	}
	if !stream[0].Unknown || stream[0].Len != 2 {
		t.Errorf("inst 0 = %+v, want 2-byte sentinel", stream[0])
	}
}

func TestThumbTruncated(t *testing.T) {
	d := NewThumb()

	t.Run("odd tail", func(t *testing.T) {
		stream, err := d.Decode([]byte{0x70, 0x47, 0x00}, 0)
		if !errors.Is(err, asm.ErrTruncated) {
			t.Fatalf("err = %v, want ErrTruncated", err)
		}
		if len(stream) != 2 || !stream[1].Unknown || stream[1].Len != 1 {
			t.Fatalf("stream = %+v", stream)
		}
	})

	t.Run("wide first half only", func(t *testing.T) {
		stream, err := d.Decode(halfwords(0xf000), 0)
		if !errors.Is(err, asm.ErrTruncated) {
			t.Fatalf("err = %v, want ErrTruncated", err)
		}
		if len(stream) != 1 || !stream[0].Unknown {
			t.Fatalf("stream = %+v", stream)
		}
	})
}
