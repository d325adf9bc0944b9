package resilience

import "testing"

func TestRingBuffer_PushShiftFIFO(t *testing.T) {
	rb := newRingBuffer[int](4)

	for i := 1; i <= 4; i++ {
		if !rb.push(i) {
			t.Fatalf("push(%d) = false, want true", i)
		}
	}
	if rb.push(5) {
		t.Fatalf("push(5) into full buffer = true, want false")
	}

	for i := 1; i <= 4; i++ {
		got, ok := rb.shift()
		if !ok {
			t.Fatalf("shift() ok = false at i=%d", i)
		}
		if got != i {
			t.Errorf("shift() = %d, want %d", got, i)
		}
	}
	if _, ok := rb.shift(); ok {
		t.Errorf("shift() on empty buffer ok = true, want false")
	}
}

func TestRingBuffer_WrapAround(t *testing.T) {
	rb := newRingBuffer[int](3)
	rb.push(1)
	rb.push(2)
	rb.shift()
	rb.push(3)
	rb.push(4) // wraps: buf is now logically [2,3,4]

	want := []int{2, 3, 4}
	for _, w := range want {
		got, ok := rb.shift()
		if !ok || got != w {
			t.Fatalf("shift() = (%d, %v), want (%d, true)", got, ok, w)
		}
	}
}

func TestRingBuffer_RemoveFunc(t *testing.T) {
	rb := newRingBuffer[int](5)
	for i := 1; i <= 5; i++ {
		rb.push(i)
	}

	if !rb.removeFunc(func(v int) bool { return v == 3 }) {
		t.Fatalf("removeFunc(3) = false, want true")
	}
	if rb.len() != 4 {
		t.Fatalf("len() = %d, want 4", rb.len())
	}

	want := []int{1, 2, 4, 5}
	got := rb.drain()
	if len(got) != len(want) {
		t.Fatalf("drain() = %v, want %v", got, want)
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("drain()[%d] = %d, want %d", i, got[i], w)
		}
	}
}

func TestRingBuffer_RemoveFunc_NotFound(t *testing.T) {
	rb := newRingBuffer[int](3)
	rb.push(1)
	rb.push(2)

	if rb.removeFunc(func(v int) bool { return v == 99 }) {
		t.Errorf("removeFunc(99) = true, want false")
	}
	if rb.len() != 2 {
		t.Errorf("len() = %d, want 2", rb.len())
	}
}

func TestRingBuffer_Drain(t *testing.T) {
	rb := newRingBuffer[string](3)
	rb.push("a")
	rb.push("b")

	got := rb.drain()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("drain() = %v, want [a b]", got)
	}
	if rb.len() != 0 {
		t.Errorf("len() after drain = %d, want 0", rb.len())
	}
	if !rb.push("c") {
		t.Errorf("push after drain = false, want true")
	}
}
