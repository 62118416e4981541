package dispatch

import "strings"

// SplitRecipients parses a stored recipient string into clean addresses.
// Semicolons win over commas as the separator when both appear, entries
// are trimmed, duplicates collapse to their first occurrence and anything
// without an @ is dropped. Order of first appearance is preserved so the
// delivery order is stable.
func SplitRecipients(raw string) []string {
	sep := ","
	if strings.Contains(raw, ";") {
		sep = ";"
	}

	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(raw, sep) {
		addr := strings.TrimSpace(part)
		if addr == "" || !strings.Contains(addr, "@") {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}

// ValidPhone reports whether s is an international phone number: a
// leading + followed by 10 to 15 digits, nothing else.
func ValidPhone(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 11 || len(s) > 16 || s[0] != '+' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
