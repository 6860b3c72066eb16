package main

import (
	"testing"
)

// TestAllocatorHandsOutPoolInOrder tests that the first allocations
// come straight from the pool without spilling
func TestAllocatorHandsOutPoolInOrder(t *testing.T) {
	ra := NewRegisterAllocator(0)

	for i, want := range allocatablePool {
		r, spilled := ra.Allocate(nil)
		if spilled {
			t.Fatalf("Allocation %d spilled with free registers remaining", i)
		}
		if r.Name != want {
			t.Errorf("Allocation %d: expected %s, got %s", i, want, r.Name)
		}
	}
	if ra.FrameBytes() != 0 {
		t.Errorf("Expected no spill slots, got %d bytes", ra.FrameBytes())
	}
}

// TestAllocatorFIFOSpill tests that exhausting the pool spills the
// OLDEST allocation (FIFO, not usage-based) to the next 8-byte slot
func TestAllocatorFIFOSpill(t *testing.T) {
	ra := NewRegisterAllocator(0)
	asm := NewAsm(NewBuffer(64))

	for range allocatablePool {
		ra.Allocate(nil)
	}

	// Pool exhausted: the next allocation must evict rax, the first
	// register handed out.
	r, spilled := ra.Allocate(asm)
	if !spilled {
		t.Fatal("Expected a spill with the pool exhausted")
	}
	if r.Name != "rax" {
		t.Errorf("Expected oldest register rax to be spilled, got %s", r.Name)
	}

	spills := ra.Spills()
	if len(spills) != 1 {
		t.Fatalf("Expected 1 spill record, got %d", len(spills))
	}
	if spills[0].Offset != -8 {
		t.Errorf("Expected first spill slot at rbp-8, got %d", spills[0].Offset)
	}
	if ra.FrameBytes() != 8 {
		t.Errorf("Expected 8 frame bytes, got %d", ra.FrameBytes())
	}

	// The spill store must have been emitted: mov [rbp-8], rax
	// 48 89 45 F8
	expected := []byte{0x48, 0x89, 0x45, 0xF8}
	got := asm.text.Bytes()
	if len(got) != len(expected) {
		t.Fatalf("Expected %d spill bytes, got %d", len(expected), len(got))
	}
	for i, e := range expected {
		if got[i] != e {
			t.Errorf("Spill byte %d: expected 0x%02X, got 0x%02X", i, e, got[i])
		}
	}
}

// TestAllocatorSecondSpillAdvancesSlot tests the monotone 8-byte slots
func TestAllocatorSecondSpillAdvancesSlot(t *testing.T) {
	ra := NewRegisterAllocator(0)
	for range allocatablePool {
		ra.Allocate(nil)
	}
	ra.Allocate(nil)
	ra.Allocate(nil)

	spills := ra.Spills()
	if len(spills) != 2 {
		t.Fatalf("Expected 2 spill records, got %d", len(spills))
	}
	if spills[1].Offset != -16 {
		t.Errorf("Expected second spill slot at rbp-16, got %d", spills[1].Offset)
	}
	if spills[1].Reg.Name != "rbx" {
		t.Errorf("Expected second-oldest register rbx, got %s", spills[1].Reg.Name)
	}
}

// TestAllocatorPoolExcludesReservedRegisters tests that the pool never
// hands out the stack registers, the divisor staging register r11, or
// the emitter's reload scratches r12/r13
func TestAllocatorPoolExcludesReservedRegisters(t *testing.T) {
	ra := NewRegisterAllocator(0)

	for range allocatablePool {
		r, _ := ra.Allocate(nil)
		switch r.Name {
		case "rsp", "rbp", "r11", "r12", "r13":
			t.Errorf("Pool handed out reserved register %s", r.Name)
		}
	}
}

// TestTryAllocateStopsAtEmptyPool tests that TryAllocate reports failure
// instead of evicting when the pool is dry
func TestTryAllocateStopsAtEmptyPool(t *testing.T) {
	ra := NewRegisterAllocator(0)

	var held []Register
	for range allocatablePool {
		r, ok := ra.TryAllocate()
		if !ok {
			t.Fatal("TryAllocate failed with free registers remaining")
		}
		held = append(held, r)
	}

	if _, ok := ra.TryAllocate(); ok {
		t.Fatal("TryAllocate handed out a register from an empty pool")
	}
	if ra.FrameBytes() != 0 {
		t.Errorf("TryAllocate spilled: %d frame bytes", ra.FrameBytes())
	}

	ra.Free(held[0])
	r, ok := ra.TryAllocate()
	if !ok || r.Name != held[0].Name {
		t.Errorf("Expected freed %s to be reused, got %s (ok=%v)", held[0].Name, r.Name, ok)
	}
}

// TestAllocatorFree tests that a freed register is reused without spilling
func TestAllocatorFree(t *testing.T) {
	ra := NewRegisterAllocator(0)
	var held []Register
	for range allocatablePool {
		r, _ := ra.Allocate(nil)
		held = append(held, r)
	}

	ra.Free(held[3]) // rdx back to the pool

	r, spilled := ra.Allocate(nil)
	if spilled {
		t.Fatal("Expected no spill after Free")
	}
	if r.Name != "rdx" {
		t.Errorf("Expected freed rdx to be reused, got %s", r.Name)
	}
}

// TestAllocatorReset tests that Reset restores the full pool
func TestAllocatorReset(t *testing.T) {
	ra := NewRegisterAllocator(0)
	for i := 0; i < 15; i++ {
		ra.Allocate(nil)
	}
	ra.Reset()

	if ra.FrameBytes() != 0 {
		t.Errorf("Expected no frame bytes after reset, got %d", ra.FrameBytes())
	}
	r, spilled := ra.Allocate(nil)
	if spilled || r.Name != "rax" {
		t.Errorf("Expected fresh rax after reset, got %s (spilled=%v)", r.Name, spilled)
	}
}
