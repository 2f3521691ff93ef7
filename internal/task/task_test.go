//go:build unix

package task

import (
	"os"
	"testing"
)

func TestPublishOwnsWhenAllChildrenArriveFirst(t *testing.T) {
	tests := []struct {
		name string
		n    uint32
	}{
		{"single child", 1},
		{"two children", 2},
		{"many children", 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent := New("parent", nil)
			for i := uint32(0); i < tt.n; i++ {
				owns, stillAcquired := parent.Arrive()
				if !stillAcquired || owns {
					t.Fatalf("arrival %d before publish: got owns=%v stillAcquired=%v, want owns=false stillAcquired=true", i, owns, stillAcquired)
				}
			}
			if !parent.Publish(tt.n) {
				t.Fatalf("Publish(%d) = false, want true: every child already arrived", tt.n)
			}
		})
	}
}

func TestPublishDefersWhenChildrenArriveAfter(t *testing.T) {
	parent := New("parent", nil)

	if parent.Publish(3) {
		t.Fatalf("Publish(3) = true with no arrivals yet, want false")
	}

	for i, want := range []bool{false, false, true} {
		owns, stillAcquired := parent.Arrive()
		if stillAcquired {
			t.Fatalf("arrival %d: stillAcquired = true after publish", i)
		}
		if owns != want {
			t.Fatalf("arrival %d: owns = %v, want %v", i, owns, want)
		}
	}
}

func TestArriveOwnsExactlyOnce(t *testing.T) {
	const n = 8
	parent := New("parent", nil)

	owners := 0
	for i := 0; i < n; i++ {
		if owns, _ := parent.Arrive(); owns {
			owners++
		}
	}
	if parent.Publish(n) {
		owners++
	}
	if owners != 1 {
		t.Fatalf("exactly one arrival (or publish) should own the parent, got %d", owners)
	}
}

func TestArriveOwnsExactlyOnceMixedOrder(t *testing.T) {
	const n = 5
	parent := New("parent", nil)

	owners := 0
	for i := 0; i < n-1; i++ {
		if owns, stillAcquired := parent.Arrive(); owns || !stillAcquired {
			t.Fatalf("early arrival %d should be pending, got owns=%v stillAcquired=%v", i, owns, stillAcquired)
		}
	}
	if parent.Publish(n) {
		owners++
	}
	if owns, stillAcquired := parent.Arrive(); owns {
		owners++
	} else if stillAcquired {
		t.Fatalf("last arrival observed ACQUIRED still set after Publish")
	}
	if owners != 1 {
		t.Fatalf("exactly one of publish/last-arrival should own, got %d", owners)
	}
}

func TestDfdLifecycleUnsetByDefault(t *testing.T) {
	tk := New("x", nil)
	if tk.HasDfd() {
		t.Fatalf("new Task should not have a cached dfd")
	}
	if tk.Dfd() != -1 {
		t.Fatalf("Dfd() = %d, want -1", tk.Dfd())
	}
}

func TestSetDfdAndCloseDfd(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer w.Close()

	tk := New("x", nil)
	tk.SetDfd(int(r.Fd()))
	if !tk.HasDfd() {
		t.Fatalf("HasDfd() = false after SetDfd")
	}

	tk.CloseDfd()
	if tk.HasDfd() {
		t.Fatalf("HasDfd() = true after CloseDfd")
	}
	if tk.Dfd() != -1 {
		t.Fatalf("Dfd() = %d after CloseDfd, want -1", tk.Dfd())
	}
}
