// Package money provides fixed-point helpers for amounts stored as int64 cents.
package money

// MulDivRound computes a*b/div with round-half-up semantics. Inputs are
// non-negative; all fixed-point math in the ledger goes through here so
// rounding behaves identically everywhere.
func MulDivRound(a, b, div int64) int64 {
	if div == 0 {
		return 0
	}
	n := a * b
	q := n / div
	r := n % div
	if r*2 >= div {
		q++
	}
	return q
}

// ProrateBps rounds amountCents scaled by an ownership share expressed in
// basis points (10000 = 100%). Each co-owner's share is rounded
// independently; the prorated parts of one charge may differ from its
// original amount by up to one cent per owner.
func ProrateBps(amountCents, shareBps int64) int64 {
	return MulDivRound(amountCents, shareBps, 10000)
}

// LineTotal computes quantity (in hundredths) times a unit price in cents.
func LineTotal(quantityCenti, unitPriceCents int64) int64 {
	return MulDivRound(quantityCenti, unitPriceCents, 100)
}
