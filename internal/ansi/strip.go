package ansi

import "strings"

// Strip removes ANSI escape sequences from content using a single pass.
// CSI sequences are consumed up to a terminator in 0x40..0x7E, OSC sequences
// up to BEL or ST (ESC \), any other escape as ESC plus one byte. The 8-bit
// CSI introducer (0x9B) is handled as well.
//
// Regex is intentionally avoided here: complex ANSI patterns can backtrack
// catastrophically on malformed escape sequences.
func Strip(content string) string {
	// Fast path: no escape introducers at all.
	if strings.IndexByte(content, '\x1b') < 0 && strings.IndexByte(content, '\x9b') < 0 {
		return content
	}

	var b strings.Builder
	b.Grow(len(content))

	i := 0
	for i < len(content) {
		if content[i] == '\x1b' {
			// CSI: ESC [ params terminator
			if i+1 < len(content) && content[i+1] == '[' {
				j := i + 2
				for j < len(content) {
					c := content[j]
					j++
					if c >= 0x40 && c <= 0x7e {
						break
					}
				}
				i = j
				continue
			}
			// OSC: ESC ] text BEL, or ESC ] text ESC \
			if i+1 < len(content) && content[i+1] == ']' {
				if bel := strings.IndexByte(content[i:], '\x07'); bel != -1 {
					i += bel + 1
					continue
				}
				if st := strings.Index(content[i:], "\x1b\\"); st != -1 {
					i += st + 2
					continue
				}
				// Unterminated OSC runs to end of input.
				break
			}
			// Any other escape: ESC plus a single byte.
			if i+1 < len(content) {
				i += 2
				continue
			}
			break
		}
		if content[i] == '\x9b' {
			j := i + 1
			for j < len(content) {
				c := content[j]
				j++
				if c >= 0x40 && c <= 0x7e {
					break
				}
			}
			i = j
			continue
		}
		b.WriteByte(content[i])
		i++
	}

	return b.String()
}
