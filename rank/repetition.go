package rank

import (
	"fmt"
	"strconv"
	"strings"
)

// RepetitionPoint names a MIDI note at which a rank's pitch is reset to a
// footage of Num/Den (GenWaves sets the pitch multiplier to 8·Den/Num),
// producing an organ stop that "breaks back" an octave
// or a fifth partway up the keyboard instead of continuing to rise in
// pitch indefinitely.
type RepetitionPoint struct {
	Note     int
	Num, Den int
}

// ParseRepetitions scans s for a repetition-point program delimited by a
// leading and trailing '$': "$ note:pitch note:pitch ... $", where pitch is
// "a+b/c", "a/c", or a bare integer "a" (taken as a/1). Tokens are
// whitespace-separated; parsing stops at the closing '$' or end of string.
// A comment with no '$' yields no points. A malformed pitch token is
// reported as an error and the remainder of the program after it is
// discarded, rather than panicking or silently producing wrong pitches.
func ParseRepetitions(s string) ([]RepetitionPoint, error) {
	i := strings.IndexByte(s, '$')
	if i < 0 {
		return nil, nil
	}
	rest := s[i+1:]
	if j := strings.IndexByte(rest, '$'); j >= 0 {
		rest = rest[:j]
	}

	var points []RepetitionPoint
	for _, tok := range strings.Fields(rest) {
		note, pitch, ok := strings.Cut(tok, ":")
		if !ok {
			return points, fmt.Errorf("rank: malformed repetition token %q: expected note:pitch", tok)
		}
		n, err := strconv.Atoi(note)
		if err != nil {
			return points, fmt.Errorf("rank: malformed repetition note %q: %w", note, err)
		}
		num, den, err := parsePitch(pitch)
		if err != nil {
			return points, fmt.Errorf("rank: malformed repetition pitch %q: %w", pitch, err)
		}
		points = append(points, RepetitionPoint{Note: n, Num: num, Den: den})
	}
	return points, nil
}

// parsePitch accepts "a+b/c" (mixed number), "a/c", or a bare integer "a".
func parsePitch(s string) (num, den int, err error) {
	if whole, frac, ok := strings.Cut(s, "+"); ok {
		w, err := strconv.Atoi(whole)
		if err != nil {
			return 0, 0, err
		}
		n, d, err := parsePitch(frac)
		if err != nil {
			return 0, 0, err
		}
		return n + w*d, d, nil
	}
	if n, d, ok := strings.Cut(s, "/"); ok {
		nn, err := strconv.Atoi(n)
		if err != nil {
			return 0, 0, err
		}
		dd, err := strconv.Atoi(d)
		if err != nil {
			return 0, 0, err
		}
		return nn, dd, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, 0, err
	}
	return n, 1, nil
}
