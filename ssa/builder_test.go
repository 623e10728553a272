package ssa

import (
	"testing"
)

const (
	opConst  byte = 0x41
	opAdd    byte = 0x6A
	opJump   byte = 0x18
	opBranch byte = 0x19
)

func TestSinglePredForwarding(t *testing.T) {
	b := NewBuilder(nil)

	entry := b.AllocateBlock()
	next := b.AllocateBlock()

	v := b.DeclareVariable(TypeI32)

	b.SetCurrentBlock(entry)
	c := b.InsertWithResult(TypeI32, opConst, int32(7))
	b.DefineVariable(v, c, entry)
	br := b.InsertBranch(opJump, next, ValueInvalid, nil)
	b.AddPred(next, entry, br)
	b.Seal(entry)
	b.Seal(next)

	b.SetCurrentBlock(next)
	got := b.FindValue(v)
	if got != c {
		t.Errorf("FindValue = %s, want %s", got, c)
	}
	if len(next.Params) != 0 {
		t.Errorf("single-pred block gained params: %v", next.Params)
	}
}

func TestDiamondAddsParam(t *testing.T) {
	// entry branches to left and right, both join in merge. The variable is
	// assigned differently on each side, so merge needs a parameter.
	b := NewBuilder(nil)

	entry := b.AllocateBlock()
	left := b.AllocateBlock()
	right := b.AllocateBlock()
	merge := b.AllocateBlock()

	v := b.DeclareVariable(TypeI32)

	b.SetCurrentBlock(entry)
	cond := b.InsertWithResult(TypeI32, opConst, int32(1))
	brL := b.InsertBranch(opBranch, left, cond, nil)
	brR := b.InsertBranch(opJump, right, ValueInvalid, nil)
	b.AddPred(left, entry, brL)
	b.AddPred(right, entry, brR)
	b.Seal(entry)
	b.Seal(left)
	b.Seal(right)

	b.SetCurrentBlock(left)
	one := b.InsertWithResult(TypeI32, opConst, int32(1))
	b.DefineVariable(v, one, left)
	jL := b.InsertBranch(opJump, merge, ValueInvalid, nil)
	b.AddPred(merge, left, jL)

	b.SetCurrentBlock(right)
	two := b.InsertWithResult(TypeI32, opConst, int32(2))
	b.DefineVariable(v, two, right)
	jR := b.InsertBranch(opJump, merge, ValueInvalid, nil)
	b.AddPred(merge, right, jR)

	b.Seal(merge)
	b.SetCurrentBlock(merge)
	got := b.FindValue(v)

	if len(merge.Params) != 1 {
		t.Fatalf("expected 1 param on merge, got %d", len(merge.Params))
	}
	if got != merge.Params[0] {
		t.Errorf("FindValue = %s, want param %s", got, merge.Params[0])
	}
	if len(jL.Args) != 1 || jL.Args[0] != one {
		t.Errorf("left branch args = %v, want [%s]", jL.Args, one)
	}
	if len(jR.Args) != 1 || jR.Args[0] != two {
		t.Errorf("right branch args = %v, want [%s]", jR.Args, two)
	}

	b.EliminateRedundantParams()
	if len(merge.Params) != 1 {
		t.Errorf("non-trivial param was eliminated")
	}
}

func TestDiamondRedundantParamEliminated(t *testing.T) {
	// Both sides pass the same value, so the join parameter is redundant.
	b := NewBuilder(nil)

	entry := b.AllocateBlock()
	left := b.AllocateBlock()
	right := b.AllocateBlock()
	merge := b.AllocateBlock()

	v := b.DeclareVariable(TypeI32)

	b.SetCurrentBlock(entry)
	c := b.InsertWithResult(TypeI32, opConst, int32(9))
	b.DefineVariable(v, c, entry)
	cond := b.InsertWithResult(TypeI32, opConst, int32(1))
	brL := b.InsertBranch(opBranch, left, cond, nil)
	brR := b.InsertBranch(opJump, right, ValueInvalid, nil)
	b.AddPred(left, entry, brL)
	b.AddPred(right, entry, brR)
	b.Seal(entry)
	b.Seal(left)
	b.Seal(right)

	b.SetCurrentBlock(left)
	jL := b.InsertBranch(opJump, merge, ValueInvalid, nil)
	b.AddPred(merge, left, jL)

	b.SetCurrentBlock(right)
	jR := b.InsertBranch(opJump, merge, ValueInvalid, nil)
	b.AddPred(merge, right, jR)

	b.Seal(merge)
	b.SetCurrentBlock(merge)
	param := b.FindValue(v)
	use := b.Insert(opAdd, nil, param, param)

	b.EliminateRedundantParams()

	if len(merge.Params) != 0 {
		t.Errorf("redundant param survived: %v", merge.Params)
	}
	for _, a := range use.Args {
		if a != c {
			t.Errorf("use arg = %s, want aliased %s", a, c)
		}
	}
	if len(jL.Args) != 0 || len(jR.Args) != 0 {
		t.Errorf("branch args not trimmed: %v %v", jL.Args, jR.Args)
	}
}

func TestLoopPlaceholderResolution(t *testing.T) {
	// entry -> header, header -> header (back edge). The variable is
	// redefined in the loop body, so the header gets a real parameter fed
	// by both the entry value and the redefinition.
	b := NewBuilder(nil)

	entry := b.AllocateBlock()
	header := b.AllocateBlock()

	v := b.DeclareVariable(TypeI32)

	b.SetCurrentBlock(entry)
	init := b.InsertWithResult(TypeI32, opConst, int32(0))
	b.DefineVariable(v, init, entry)
	j := b.InsertBranch(opJump, header, ValueInvalid, nil)
	b.AddPred(header, entry, j)
	b.Seal(entry)

	// Header is not sealed yet: the back edge is still unknown.
	b.SetCurrentBlock(header)
	cur := b.FindValue(v)
	one := b.InsertWithResult(TypeI32, opConst, int32(1))
	next := b.InsertWithResult(TypeI32, opAdd, nil, cur, one)
	b.DefineVariable(v, next, header)
	back := b.InsertBranch(opJump, header, ValueInvalid, nil)
	b.AddPred(header, header, back)

	b.Seal(header)

	if len(header.Params) != 1 {
		t.Fatalf("expected 1 param on header, got %d", len(header.Params))
	}
	if header.Params[0] != cur {
		t.Errorf("placeholder %s was not promoted to param", cur)
	}
	if len(j.Args) != 1 || j.Args[0] != init {
		t.Errorf("entry edge args = %v, want [%s]", j.Args, init)
	}
	if len(back.Args) != 1 || back.Args[0] != next {
		t.Errorf("back edge args = %v, want [%s]", back.Args, next)
	}

	// The loop-carried param must survive elimination.
	b.EliminateRedundantParams()
	if len(header.Params) != 1 {
		t.Errorf("loop-carried param was eliminated")
	}
}

func TestAddPredSealedPanics(t *testing.T) {
	b := NewBuilder(nil)
	entry := b.AllocateBlock()
	next := b.AllocateBlock()
	b.Seal(next)

	b.SetCurrentBlock(entry)
	j := b.InsertBranch(opJump, next, ValueInvalid, nil)

	defer func() {
		if recover() == nil {
			t.Error("expected panic when adding predecessor to sealed block")
		}
	}()
	b.AddPred(next, entry, j)
}

func TestPinnedParamsSurviveElimination(t *testing.T) {
	b := NewBuilder(nil)
	entry := b.AllocateBlock()
	target := b.AllocateBlock()

	p := target.AddParam(b, TypeI32)
	target.PinParams()

	b.SetCurrentBlock(entry)
	c := b.InsertWithResult(TypeI32, opConst, int32(3))
	j := b.InsertBranch(opJump, target, ValueInvalid, []Value{c})
	b.AddPred(target, entry, j)
	b.Seal(entry)
	b.Seal(target)

	b.EliminateRedundantParams()

	if len(target.Params) != 1 || target.Params[0] != p {
		t.Errorf("pinned param was eliminated: %v", target.Params)
	}
}

func TestValueTypes(t *testing.T) {
	b := NewBuilder(nil)
	blk := b.AllocateBlock()
	b.SetCurrentBlock(blk)

	v32 := b.InsertWithResult(TypeI32, opConst, int32(1))
	v64 := b.InsertWithResult(TypeF64, opConst, float64(1))

	if b.ValueType(v32) != TypeI32 {
		t.Errorf("ValueType(v32) = %v", b.ValueType(v32))
	}
	if b.ValueType(v64) != TypeF64 {
		t.Errorf("ValueType(v64) = %v", b.ValueType(v64))
	}
}
