package stack

import "testing"

type fakeOwner struct{ name string }

func (f fakeOwner) ContextName() string { return f.name }

func TestPushPopInt(t *testing.T) {
	s := New(fakeOwner{"t"}, 16)
	s.PushInt(3)
	s.PushInt(4)
	if got := s.GetInt(0); got != 4 {
		t.Fatalf("GetInt(0) = %d, want 4", got)
	}
	if got := s.GetInt(1); got != 3 {
		t.Fatalf("GetInt(1) = %d, want 3", got)
	}
	s.Pop(2)
	if h := s.Height(); h != 0 {
		t.Fatalf("Height() = %d, want 0", h)
	}
}

func TestPushDoubleRoundtrip(t *testing.T) {
	s := New(fakeOwner{"t"}, 4)
	s.PushDouble(3.5)
	if got := s.GetDouble(0); got != 3.5 {
		t.Fatalf("GetDouble(0) = %v, want 3.5", got)
	}
}

func TestPushStructAlignment(t *testing.T) {
	s := New(fakeOwner{"t"}, 8)
	s.PushInt(1) // misalign by one word
	pad := s.PushStruct(16, 9)
	if s.Height()%2 != 0 {
		t.Fatalf("Height() = %d, want even multiple after 16-byte align", s.Height())
	}
	if pad < 0 {
		t.Fatalf("padding must be non-negative, got %d", pad)
	}
}

func TestCheckStack(t *testing.T) {
	s := New(fakeOwner{"t"}, 4)
	s.Reset()
	if !s.CheckStack(2) {
		t.Fatalf("CheckStack(2) = false, want true just after Reset")
	}
}

func TestThisPtrSaveRestore(t *testing.T) {
	s := New(fakeOwner{"t"}, 4)
	old := s.SetThisPtr(42)
	if old != 0 {
		t.Fatalf("initial this = %d, want 0", old)
	}
	if got := s.ThisPtr(); got != 42 {
		t.Fatalf("ThisPtr() = %d, want 42", got)
	}
}

func TestBreakFlag(t *testing.T) {
	s := New(fakeOwner{"t"}, 4)
	if s.BreakRequested() {
		t.Fatal("BreakRequested() = true before RequestBreak")
	}
	s.RequestBreak()
	if !s.BreakRequested() {
		t.Fatal("BreakRequested() = false after RequestBreak")
	}
	s.ClearBreak()
	if s.BreakRequested() {
		t.Fatal("BreakRequested() = true after ClearBreak")
	}
}

func TestPublishReloadTop(t *testing.T) {
	s := New(fakeOwner{"t"}, 4)
	s.PushInt(1)
	s.PushInt(2)
	var scratch int
	s.PublishTop(&scratch)
	if scratch != 2 {
		t.Fatalf("scratch = %d, want 2", scratch)
	}
	s.Pop(1)
	s.ReloadTop(scratch)
	if s.Height() != 2 {
		t.Fatalf("Height() after ReloadTop = %d, want 2", s.Height())
	}
}
