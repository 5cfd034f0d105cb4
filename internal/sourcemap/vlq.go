package sourcemap

import (
	"fmt"
	"strings"
)

const (
	base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

	vlqShift        = 5
	vlqContinuation = 1 << vlqShift
	vlqMask         = vlqContinuation - 1
)

var base64Index = func() [256]int {
	var idx [256]int
	for i := range idx {
		idx[i] = -1
	}

	for i := 0; i < len(base64Chars); i++ {
		idx[base64Chars[i]] = i
	}

	return idx
}()

func writeVLQ(sb *strings.Builder, value int) {
	v := value << 1
	if value < 0 {
		v = (-value << 1) | 1
	}

	for {
		digit := v & vlqMask
		v >>= vlqShift
		if v > 0 {
			digit |= vlqContinuation
		}

		sb.WriteByte(base64Chars[digit])

		if v == 0 {
			return
		}
	}
}

// readVLQ decodes one value from s starting at pos and returns the next position
func readVLQ(s string, pos int) (int, int, error) {
	var result, shift int

	for {
		if pos >= len(s) {
			return 0, pos, fmt.Errorf("unterminated VLQ value")
		}

		digit := base64Index[s[pos]]
		if digit < 0 {
			return 0, pos, fmt.Errorf("invalid base64 character %q", s[pos])
		}

		pos++
		result += (digit & vlqMask) << shift
		shift += vlqShift

		if digit&vlqContinuation == 0 {
			break
		}
	}

	if result&1 == 1 {
		return -(result >> 1), pos, nil
	}

	return result >> 1, pos, nil
}
