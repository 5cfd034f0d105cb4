package fuser

// Pending prefixes of the multi-byte UTF-8 line separators: NEL is C2 85,
// LS and PS are E2 80 A8 and E2 80 A9
const (
	seqNone = iota
	seqC2
	seqE2
	seqE2x80
)

// lineCounter counts line breaks in a byte stream written to it. CRLF, CR,
// LF, NEL, LS and PS each count once, including when a sequence is split
// across writes.
type lineCounter struct {
	breaks  int
	afterCR bool
	seq     int
}

func (c *lineCounter) Write(p []byte) (int, error) {
	for _, b := range p {
		wasCR := c.afterCR
		c.afterCR = false

		switch c.seq {
		case seqC2:
			c.seq = seqNone
			if b == 0x85 {
				c.breaks++
				continue
			}
		case seqE2:
			c.seq = seqNone
			if b == 0x80 {
				c.seq = seqE2x80
				continue
			}
		case seqE2x80:
			c.seq = seqNone
			if b == 0xA8 || b == 0xA9 {
				c.breaks++
				continue
			}
		}

		switch b {
		case '\n':
			if !wasCR {
				c.breaks++
			}
		case '\r':
			c.breaks++
			c.afterCR = true
		case 0xC2:
			c.seq = seqC2
		case 0xE2:
			c.seq = seqE2
		}
	}

	return len(p), nil
}

// Lines returns the number of lines seen: one more than the line breaks
func (c *lineCounter) Lines() int {
	return c.breaks + 1
}
