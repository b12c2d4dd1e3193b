package ledger

import (
	"testing"
)

func TestAddAssignsIndexesInOrder(t *testing.T) {
	b := NewBook()
	if first := b.Add("horse-a", "alice", 100); !first {
		t.Errorf("first stake not reported as first")
	}
	if first := b.Add("horse-a", "bob", 50); !first {
		t.Errorf("first stake not reported as first")
	}
	if first := b.Add("horse-a", "alice", 25); first {
		t.Errorf("top-up reported as first")
	}

	alice := b.Stake("horse-a", "alice")
	if alice.Index != 0 || alice.Amount != 125 {
		t.Errorf("alice = index %d amount %d, want 0/125", alice.Index, alice.Amount)
	}
	bob := b.Stake("horse-a", "bob")
	if bob.Index != 1 || bob.Amount != 50 {
		t.Errorf("bob = index %d amount %d, want 1/50", bob.Index, bob.Amount)
	}
	if n := b.StakerCount("horse-a"); n != 2 {
		t.Errorf("StakerCount = %d, want 2", n)
	}
}

func TestIndexesArePerCompetitor(t *testing.T) {
	b := NewBook()
	b.Add("horse-a", "alice", 1)
	b.Add("horse-b", "alice", 1)
	if got := b.Stake("horse-b", "alice").Index; got != 0 {
		t.Errorf("index on second competitor = %d, want 0", got)
	}
}

func TestStakeReturnsCopy(t *testing.T) {
	b := NewBook()
	b.Add("horse-a", "alice", 100)
	st := b.Stake("horse-a", "alice")
	st.Amount = 9999
	if got := b.Stake("horse-a", "alice").Amount; got != 100 {
		t.Errorf("mutating the returned stake leaked into the book: %d", got)
	}
}

func TestPutWritesFlags(t *testing.T) {
	b := NewBook()
	b.Add("horse-a", "alice", 100)
	st := b.Stake("horse-a", "alice")
	st.Aggregated = true
	b.Put(st)
	if !b.Stake("horse-a", "alice").Aggregated {
		t.Errorf("Put did not persist the aggregated flag")
	}
}

func TestRangeClamps(t *testing.T) {
	b := NewBook()
	stakers := []string{"s0", "s1", "s2", "s3"}
	for _, s := range stakers {
		b.Add("horse-a", s, 10)
	}

	tests := []struct {
		name       string
		start, end int
		want       []string
	}{
		{"full", 0, 4, []string{"s0", "s1", "s2", "s3"}},
		{"middle", 1, 3, []string{"s1", "s2"}},
		{"end past list", 2, 100, []string{"s2", "s3"}},
		{"negative start", -5, 1, []string{"s0"}},
		{"inverted", 3, 1, nil},
		{"empty competitor", 0, 10, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			competitor := "horse-a"
			if tt.name == "empty competitor" {
				competitor = "horse-z"
			}
			got := b.Range(competitor, tt.start, tt.end)
			if len(got) != len(tt.want) {
				t.Fatalf("Range(%d, %d) returned %d stakes, want %d", tt.start, tt.end, len(got), len(tt.want))
			}
			for i, st := range got {
				if st.Staker != tt.want[i] {
					t.Errorf("Range[%d] = %q, want %q", i, st.Staker, tt.want[i])
				}
			}
		})
	}
}

func TestSums(t *testing.T) {
	b := NewBook()
	b.Add("horse-a", "alice", 100)
	b.Add("horse-a", "bob", 50)
	b.Add("horse-b", "carol", 25)
	if got := b.SumFor("horse-a"); got != 150 {
		t.Errorf("SumFor(horse-a) = %d, want 150", got)
	}
	if got := b.Sum(); got != 175 {
		t.Errorf("Sum = %d, want 175", got)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		start, end, n      int
		wantStart, wantEnd int
	}{
		{0, 5, 10, 0, 5},
		{-1, 5, 3, 0, 3},
		{4, 2, 10, 4, 4},
		{0, 0, 0, 0, 0},
	}
	for _, tt := range tests {
		s, e := Clamp(tt.start, tt.end, tt.n)
		if s != tt.wantStart || e != tt.wantEnd {
			t.Errorf("Clamp(%d, %d, %d) = (%d, %d), want (%d, %d)",
				tt.start, tt.end, tt.n, s, e, tt.wantStart, tt.wantEnd)
		}
	}
}
