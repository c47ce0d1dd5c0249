// Package ansi provides byte-level helpers for terminal output streams:
// safe chunk splitting of raw PTY reads and escape-sequence stripping.
package ansi

// FindSafeBoundary returns the index up to which buf contains only complete
// UTF-8 code points and complete ANSI escape sequences. The remainder (from
// the returned index to the end) should be carried over and prefixed to the
// next read. Splitting a stream at successive boundaries and concatenating
// the prefixes reconstructs the original bytes exactly.
func FindSafeBoundary(buf []byte) int {
	n := len(buf)
	if n == 0 {
		return 0
	}

	// ANSI sequences can be long (e.g. \x1b[38;2;255;128;64m), so scan the
	// last 32 bytes for an ESC, most recent first.
	searchStart := n - 32
	if searchStart < 0 {
		searchStart = 0
	}
	for i := n - 1; i >= searchStart; i-- {
		if buf[i] != 0x1b {
			continue
		}
		if i+1 >= n {
			// Bare ESC at the end, incomplete.
			return i
		}

		switch buf[i+1] {
		case '[':
			// CSI: terminated by a byte in 0x40..0x7E.
			if i+2 >= n {
				return i
			}
			terminated := false
			for j := i + 2; j < n; j++ {
				if buf[j] >= 0x40 && buf[j] <= 0x7e {
					terminated = true
					break
				}
			}
			if !terminated {
				return i
			}
		case ']':
			// OSC: terminated by BEL or ST (ESC \).
			terminated := false
			for j := i + 2; j < n; j++ {
				if buf[j] == 0x07 {
					terminated = true
					break
				}
				if buf[j] == 0x1b && j+1 < n && buf[j+1] == '\\' {
					terminated = true
					break
				}
			}
			if !terminated {
				return i
			}
		case 'P', '^', '_':
			// DCS/PM/APC: terminated only by ST (ESC \).
			terminated := false
			for j := i + 2; j < n; j++ {
				if buf[j] == 0x1b && j+1 < n && buf[j+1] == '\\' {
					terminated = true
					break
				}
			}
			if !terminated {
				return i
			}
		default:
			// Two-byte escape (e.g. \x1b7, \x1b8, \x1bc): the second byte
			// is present, so the sequence is complete.
		}
	}

	// No incomplete escape. Check the last 4 bytes for a truncated UTF-8
	// sequence: find the most recent leading byte and compare its declared
	// length against the bytes actually available.
	utf8Start := n - 4
	if utf8Start < 0 {
		utf8Start = 0
	}
	for i := n - 1; i >= utf8Start; i-- {
		b := buf[i]
		if b&0xc0 == 0x80 {
			// Continuation byte (10xxxxxx), keep scanning backward.
			continue
		}

		var expected int
		switch {
		case b < 0x80:
			expected = 1
		case b&0xe0 == 0xc0:
			expected = 2
		case b&0xf0 == 0xe0:
			expected = 3
		case b&0xf8 == 0xf0:
			expected = 4
		default:
			// Invalid leading byte, pass through as a single byte.
			expected = 1
		}

		if n-i >= expected {
			return n
		}
		return i
	}

	return n
}
