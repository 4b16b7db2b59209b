// Package email derives display data from addresses.
package email

import (
	"strings"
	"unicode"
)

// DisplayName builds a human name from the local part of an address, so
// "jane.doe+shares@example.com" becomes "Jane Doe". Tags after '+' are
// dropped. An unusable local part yields "Shareholder".
func DisplayName(address string) string {
	local := address
	if at := strings.IndexByte(address, '@'); at >= 0 {
		local = address[:at]
	}
	if plus := strings.IndexByte(local, '+'); plus >= 0 {
		local = local[:plus]
	}

	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	words := make([]string, 0, len(parts))
	for _, p := range parts {
		if w := capitalize(p); w != "" {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return "Shareholder"
	}
	return strings.Join(words, " ")
}

func capitalize(s string) string {
	s = strings.TrimFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
