package common

import (
	"path"
	"strings"
)

// RefNbrWidth is the fixed width reference numbers are padded to. Acumatica
// auto-numbered references are six digits; padding keeps string comparison
// stable when a reference arrives with leading zeros stripped.
const RefNbrWidth = 6

// NormalizeRefNbr trims a reference number and left-pads purely numeric
// values with zeros to RefNbrWidth. Non-numeric references (manual numbering
// sequences) are returned trimmed but otherwise untouched.
func NormalizeRefNbr(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ref
	}
	for _, r := range ref {
		if r < '0' || r > '9' {
			return ref
		}
	}
	for len(ref) < RefNbrWidth {
		ref = "0" + ref
	}
	return ref
}

// SanitizeFilename strips any path components and replaces characters that
// are unsafe in object-storage keys.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := b.String()
	if s == "" || s == "." || s == ".." {
		return "file"
	}
	return s
}

// IsCheckImage reports whether an attachment filename looks like a scanned
// check image, either by naming convention or by TIFF extension.
func IsCheckImage(filename string) bool {
	lower := strings.ToLower(filename)
	if strings.Contains(lower, "check") {
		return true
	}
	ext := path.Ext(lower)
	return ext == ".tif" || ext == ".tiff"
}
