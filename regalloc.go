// Completion: 100% - Register allocator complete
package main

// RegisterAllocator hands out registers from the fixed pool and spills in
// strict FIFO order when the pool runs dry: the register that has been
// held the longest is the first one pushed to the stack. FIFO rather than
// recency keeps the policy deterministic and trivially predictable, which
// matters more here than spill quality (straight-line expression code
// rarely holds more than a handful of live values anyway).
//
// Spill slots are rbp-relative, 8 bytes each, handed out monotonically
// below any locals the caller has already placed.

type spillRecord struct {
	Reg    Register
	Offset int32 // rbp-relative, negative
}

type RegisterAllocator struct {
	free    []Register // pool order, head is next to hand out
	inUse   []Register // allocation order, head is next to spill
	spilled []spillRecord
	// next spill slot grows downward from this rbp offset
	spillBase int32
	spillNext int32
}

// NewRegisterAllocator builds an allocator over the standard pool.
// spillBase is the rbp-relative offset just above the first spill slot
// (0 when the function has no locals; -N when locals occupy N bytes).
func NewRegisterAllocator(spillBase int32) *RegisterAllocator {
	ra := &RegisterAllocator{spillBase: spillBase}
	ra.Reset()
	return ra
}

// Reset returns every register to the pool and forgets all spills.
func (ra *RegisterAllocator) Reset() {
	ra.free = ra.free[:0]
	for _, name := range allocatablePool {
		r, _ := GetRegister(name)
		ra.free = append(ra.free, r)
	}
	ra.inUse = ra.inUse[:0]
	ra.spilled = ra.spilled[:0]
	ra.spillNext = ra.spillBase
}

// Allocate returns a free register, spilling the oldest allocation to the
// stack when none is free. When asm is non-nil the spill store is emitted;
// a nil asm sizes frames without generating code. The second return is
// true when a spill happened.
func (ra *RegisterAllocator) Allocate(asm *Asm) (Register, bool) {
	if len(ra.free) > 0 {
		r := ra.free[0]
		ra.free = ra.free[1:]
		ra.inUse = append(ra.inUse, r)
		return r, false
	}

	victim := ra.inUse[0]
	ra.inUse = ra.inUse[1:]
	ra.spillNext -= 8
	rec := spillRecord{Reg: victim, Offset: ra.spillNext}
	ra.spilled = append(ra.spilled, rec)
	if asm != nil {
		asm.trace("spill %s to [rbp%+d]", victim.Name, rec.Offset)
		asm.MovRegToMem(victim.Name, "rbp", rec.Offset)
	}
	ra.inUse = append(ra.inUse, victim)
	return victim, true
}

// TryAllocate hands out a free register, or reports failure when the
// pool is dry instead of evicting. Callers with no way to reload an
// evicted value use this form and fall back to stack slots themselves.
func (ra *RegisterAllocator) TryAllocate() (Register, bool) {
	if len(ra.free) == 0 {
		return Register{}, false
	}
	r := ra.free[0]
	ra.free = ra.free[1:]
	ra.inUse = append(ra.inUse, r)
	return r, true
}

// Free returns a register to the pool. Unknown registers are ignored so
// callers can free unconditionally.
func (ra *RegisterAllocator) Free(r Register) {
	for i, u := range ra.inUse {
		if u.Name == r.Name {
			ra.inUse = append(ra.inUse[:i], ra.inUse[i+1:]...)
			ra.free = append(ra.free, r)
			return
		}
	}
}

// InUse reports whether a register is currently handed out.
func (ra *RegisterAllocator) InUse(name string) bool {
	for _, u := range ra.inUse {
		if u.Name == name {
			return true
		}
	}
	return false
}

// Spills returns the spill records in the order they happened.
func (ra *RegisterAllocator) Spills() []spillRecord {
	return ra.spilled
}

// FrameBytes returns the stack bytes consumed by spill slots so far,
// already a multiple of 8.
func (ra *RegisterAllocator) FrameBytes() int32 {
	return ra.spillBase - ra.spillNext
}
