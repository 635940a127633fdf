// Package naming derives instance names from account identifiers and
// keeps them unique per owner.
package naming

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxCandidates bounds how many names are tried against the remote
// service before creation gives up.
const MaxCandidates = 5

// ExhaustedError is returned when every candidate name collided remotely.
type ExhaustedError struct {
	Tried []string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("instance names exhausted after %d attempts: %s",
		len(e.Tried), strings.Join(e.Tried, ", "))
}

// Base derives the naming base from an account identifier: the local
// part of an email, lowercased, with anything outside [a-z0-9] dropped.
// A fallback is used when nothing survives.
func Base(owner string) string {
	local := owner
	if at := strings.IndexByte(owner, '@'); at >= 0 {
		local = owner[:at]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "instance"
	}
	return b.String()
}

// Next returns the lowest unused candidate for the base given the names
// already taken: base, then base2, base3 and so on. The bare base counts
// as suffix 1, so {alice, alice2} yields alice3.
func Next(base string, taken []string) string {
	used := make(map[int]bool, len(taken))
	for _, name := range taken {
		if name == base {
			used[1] = true
			continue
		}
		if rest, ok := strings.CutPrefix(name, base); ok {
			if n, err := strconv.Atoi(rest); err == nil && n > 1 {
				used[n] = true
			}
		}
	}
	for i := 1; ; i++ {
		if !used[i] {
			if i == 1 {
				return base
			}
			return base + strconv.Itoa(i)
		}
	}
}

// Candidates returns the ordered name candidates to try for an owner,
// skipping names already taken locally.
func Candidates(owner string, taken []string) []string {
	base := Base(owner)
	out := make([]string, 0, MaxCandidates)
	seen := append([]string(nil), taken...)
	for len(out) < MaxCandidates {
		name := Next(base, seen)
		out = append(out, name)
		seen = append(seen, name)
	}
	return out
}
