package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	MinMeaningfulTextChars = 80
	MaxTextChars           = 24000
)

// NormalizeSpace applies NFC normalization and collapses every run of
// whitespace to a single space.
func NormalizeSpace(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

func SanitizeText(s string) string {
	return Clip(NormalizeSpace(s), MaxTextChars)
}

// Clip truncates s to at most n runes.
func Clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func HasMeaningfulText(s string) bool {
	return utf8.RuneCountInString(NormalizeSpace(s)) >= MinMeaningfulTextChars
}

func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// HashParts returns the hex sha256 of the parts joined with ':'.
func HashParts(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
