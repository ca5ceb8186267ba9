package window

import "bytes"

// parseWMClass picks the class from a NUL separated "instance\0class\0" value.
func parseWMClass(v []byte) string {
	parts := bytes.Split(bytes.TrimRight(v, "\x00"), []byte{0})
	if len(parts) == 0 {
		return ""
	}
	return string(parts[len(parts)-1])
}
