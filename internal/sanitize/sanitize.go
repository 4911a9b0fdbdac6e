package sanitize

import (
	"strings"
	"unicode/utf8"
)

// MaxBaseLength bounds the base name (extension excluded), in characters.
const MaxBaseLength = 100

const illegalChars = `\/*?"<>|`

// pictographic ranges, inclusive. The last range is deliberately broad and
// also covers the box-drawing, dingbat and CJK blocks.
var pictographic = [][2]rune{
	{0x1F600, 0x1F64F},
	{0x1F300, 0x1F5FF},
	{0x1F680, 0x1F6FF},
	{0x1F1E0, 0x1F1FF},
	{0x2500, 0x2BEF},
	{0x2702, 0x27B0},
	{0x24C2, 0x1F251},
}

func isPictographic(r rune) bool {
	for _, rg := range pictographic {
		if r >= rg[0] && r <= rg[1] {
			return true
		}
	}
	return false
}

// Name returns a filesystem-safe version of a file name: pictographs and the
// characters \ / * ? " < > | are dropped, spaces become underscores, and the
// base name is cut to MaxBaseLength characters keeping the extension.
func Name(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == utf8.RuneError:
			continue
		case isPictographic(r):
			continue
		case strings.ContainsRune(illegalChars, r):
			continue
		case r == ' ':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	base, ext := SplitExt(b.String())
	if utf8.RuneCountInString(base) > MaxBaseLength {
		base = string([]rune(base)[:MaxBaseLength])
	}
	if base == "" {
		base = "video"
	}
	return base + ext
}

// SplitExt splits name into base and extension. Leading dots belong to the
// base, so ".mp4" has no extension.
func SplitExt(name string) (string, string) {
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 {
		return name, ""
	}
	if strings.Trim(name[:dot], ".") == "" {
		return name, ""
	}
	return name[:dot], name[dot:]
}
