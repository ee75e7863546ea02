package voicepool

import "unicode/utf8"

// CountChars returns the number of characters the provider bills for text.
// Characters are Unicode code points.
func CountChars(text string) int64 {
	return int64(utf8.RuneCountInString(text))
}
