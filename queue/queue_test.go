package queue_test

import (
	"testing"

	"github.com/nightjar-organ/virga/queue"
)

func TestNewPanicsOnNonPowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected New(3) to panic")
		}
	}()
	queue.New[uint32](3)
}

func TestWriteReadRoundTrip(t *testing.T) {
	q := queue.New[uint32](8)
	if avail := q.WriteAvail(); avail != 8 {
		t.Fatalf("WriteAvail() = %d, want 8", avail)
	}
	q.Write(0, 10)
	q.Write(1, 20)
	q.Write(2, 30)
	q.WriteCommit(3)

	if avail := q.ReadAvail(); avail != 3 {
		t.Fatalf("ReadAvail() = %d, want 3", avail)
	}
	if v := q.Read(0); v != 10 {
		t.Fatalf("Read(0) = %d, want 10", v)
	}
	if v := q.Read(2); v != 30 {
		t.Fatalf("Read(2) = %d, want 30", v)
	}
	q.ReadCommit(2)
	if avail := q.ReadAvail(); avail != 1 {
		t.Fatalf("ReadAvail() after commit = %d, want 1", avail)
	}
	if avail := q.WriteAvail(); avail != 7 {
		t.Fatalf("WriteAvail() after partial read = %d, want 7", avail)
	}
}

func TestWraparound(t *testing.T) {
	q := queue.New[uint8](4)
	for round := 0; round < 100; round++ {
		n := q.WriteAvail()
		if n > 3 {
			n = 3
		}
		for i := 0; i < n; i++ {
			q.Write(i, uint8(round*3+i))
		}
		q.WriteCommit(n)

		avail := q.ReadAvail()
		for i := 0; i < avail; i++ {
			got := q.Read(i)
			want := uint8(round*3 + i)
			if got != want {
				t.Fatalf("round %d: Read(%d) = %d, want %d", round, i, got, want)
			}
		}
		q.ReadCommit(avail)
	}
}
