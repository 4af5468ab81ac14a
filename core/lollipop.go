package core

// This file implements the lollipop counters of RFC 6550 section 7.2, used
// by the DAO/DCO sequence numbers, the DTSN and the path sequence.

import "github.com/lowpan/rpl/state"

// LollipopIncrement advances a lollipop counter in place. A counter in the
// initialisation region wraps through 255 into the stable region; a stable
// counter wraps at the top of the circular region.
func LollipopIncrement(c *uint8) {
	if *c > state.LollipopCircularRegion {
		*c = (*c + 1) & state.LollipopMaxValue
	} else {
		*c = (*c + 1) & state.LollipopCircularRegion
	}
}

// LollipopGreaterThan compares two lollipop counters. A value still in the
// initialisation region is never greater than a stable value: a reboot must
// not be mistaken for a rollover. Within one region the usual circular
// comparison applies.
func LollipopGreaterThan(a, b uint8) bool {
	aStable := a <= state.LollipopCircularRegion
	bStable := b <= state.LollipopCircularRegion
	if aStable != bStable {
		return aStable
	}
	diff := (a - b) & state.LollipopCircularRegion
	return diff != 0 && diff < (state.LollipopCircularRegion+1)/2
}
