package services

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"
	"unicode"
)

const (
	pairingKeyLength = 6
	pairingKeyChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	tagLetters       = 3
	tagFallbackName  = "Our"
)

// generatePairingKey generates a random 6-character key from [A-Z0-9]
func generatePairingKey() string {
	code := make([]byte, pairingKeyLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(pairingKeyChars))))
		code[i] = pairingKeyChars[n.Int64()]
	}
	return string(code)
}

// isValidPairingKey reports whether key has the generated shape
func isValidPairingKey(key string) bool {
	if len(key) != pairingKeyLength {
		return false
	}
	return strings.Trim(key, pairingKeyChars) == ""
}

// normalizePairingKey accepts user-typed keys regardless of case and padding
func normalizePairingKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// coupleTag builds "#" + the first three letters of each first name, title-cased
func coupleTag(name1, name2 string) string {
	return "#" + tagPart(name1) + tagPart(name2)
}

func tagPart(name string) string {
	first := ""
	if fields := strings.Fields(name); len(fields) > 0 {
		first = fields[0]
	}

	var letters []rune
	for _, r := range first {
		if unicode.IsLetter(r) {
			letters = append(letters, unicode.ToLower(r))
		}
		if len(letters) == tagLetters {
			break
		}
	}
	if len(letters) == 0 {
		return tagFallbackName
	}
	letters[0] = unicode.ToUpper(letters[0])
	return string(letters)
}

// startOfDay truncates t to midnight in loc
func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
