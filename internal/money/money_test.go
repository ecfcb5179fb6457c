package money

import "testing"

func TestProrateBpsRoundsHalfUp(t *testing.T) {
	cases := []struct {
		amount int64
		bps    int64
		want   int64
	}{
		{10000, 6000, 6000},  // 100.00 at 60% -> 60.00
		{10000, 4000, 4000},  // 100.00 at 40% -> 40.00
		{10000, 3333, 3333},  // 100.00 at 33.33% -> 33.33
		{101, 5000, 51},      // 1.01 at 50% -> 0.505 rounds up to 0.51
		{99, 3333, 33},       // 0.99 at 33.33% -> 0.329967 -> 0.33
		{1, 5000, 1},         // half a cent rounds up
		{0, 6000, 0},
		{12345, 10000, 12345}, // 100% is identity
	}
	for _, tc := range cases {
		got := ProrateBps(tc.amount, tc.bps)
		if got != tc.want {
			t.Fatalf("ProrateBps(%d, %d) = %d, want %d", tc.amount, tc.bps, got, tc.want)
		}
	}
}

func TestLineTotal(t *testing.T) {
	// 2.50 units at $4.00 -> $10.00
	if got := LineTotal(250, 400); got != 1000 {
		t.Fatalf("LineTotal(250, 400) = %d, want 1000", got)
	}
	// 1 unit at $19.99
	if got := LineTotal(100, 1999); got != 1999 {
		t.Fatalf("LineTotal(100, 1999) = %d, want 1999", got)
	}
	// 0.33 units at $1.00 -> 0.33
	if got := LineTotal(33, 100); got != 33 {
		t.Fatalf("LineTotal(33, 100) = %d, want 33", got)
	}
}

func TestPennyDriftBound(t *testing.T) {
	// Three equal co-owners of a 100.00 charge: each share rounds
	// independently, so the reconstituted total may drift by up to one
	// cent per owner.
	shares := []int64{3333, 3333, 3334}
	var sum int64
	for _, bps := range shares {
		sum += ProrateBps(10000, bps)
	}
	drift := sum - 10000
	if drift < 0 {
		drift = -drift
	}
	if drift > int64(len(shares)) {
		t.Fatalf("drift %d exceeds tolerance %d", drift, len(shares))
	}
}
