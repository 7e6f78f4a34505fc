package util

import (
	"fmt"
	"strings"
)

// HexDump renders buf as 16-byte rows of hex followed by printable
// ASCII, every row tagged with prefix and label:
//
//	>  10.0.0.1:443 - 474554202F20485454502F312E310D0A  GET / HTTP/1.1..
func HexDump(prefix, label string, buf []byte) string {
	var sb strings.Builder
	for i := 0; i < len(buf); i += 16 {
		fmt.Fprintf(&sb, " %s %s - ", prefix, label)
		for j := 0; j < 16; j++ {
			if i+j < len(buf) {
				fmt.Fprintf(&sb, "%02X", buf[i+j])
			} else {
				sb.WriteString("  ")
			}
		}
		sb.WriteString("  ")
		for j := 0; j < 16 && i+j < len(buf); j++ {
			c := buf[i+j]
			if c >= 32 && c < 127 {
				sb.WriteByte(c)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
