package utils

import (
	"fmt"

	"github.com/emersion/go-imap"
)

// NumberSet is a parsed sequence or UID set.
type NumberSet struct {
	set *imap.SeqSet
}

// ParseNumberSet parses an IMAP sequence set such as "1:3,7,9:*".
func ParseNumberSet(s string) (NumberSet, error) {
	set, err := imap.ParseSeqSet(s)
	if err != nil {
		return NumberSet{}, fmt.Errorf("invalid sequence set %q: %w", s, err)
	}
	return NumberSet{set: set}, nil
}

// Contains reports whether n is in the set when "*" stands for max, the
// largest number currently in use.
func (ns NumberSet) Contains(n, max uint32) bool {
	if ns.set == nil || n == 0 || max == 0 {
		return false
	}
	for _, seq := range ns.set.Set {
		lo, hi := resolve(seq.Start, max), resolve(seq.Stop, max)
		if lo > hi {
			lo, hi = hi, lo
		}
		if lo <= n && n <= hi {
			return true
		}
	}
	return false
}

func resolve(v, max uint32) uint32 {
	if v == 0 {
		return max
	}
	return v
}
