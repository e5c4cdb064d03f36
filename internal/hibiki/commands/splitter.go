package commands

import "strings"

// DefaultMaxMessageBytes is the chunk size used when splitting long replies.
// Matrix caps the full event at 65 KB; staying well under that keeps chunks
// readable and leaves room for event metadata.
const DefaultMaxMessageBytes = 4000

// SplitMessage splits text into chunks of at most maxBytes bytes each,
// preferring to break on paragraph boundaries, then line boundaries, then
// spaces. A hard cut only happens for a single unbroken run longer than
// maxBytes. If maxBytes <= 0 the default is used.
func SplitMessage(text string, maxBytes int) []string {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	if len(text) <= maxBytes {
		return []string{text}
	}

	var chunks []string
	for len(text) > maxBytes {
		cut := splitPoint(text, maxBytes)
		chunks = append(chunks, strings.TrimRight(text[:cut], " \n"))
		text = strings.TrimLeft(text[cut:], " \n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// splitPoint finds the best byte offset at or below maxBytes to break text at.
func splitPoint(text string, maxBytes int) int {
	window := text[:maxBytes]

	// Paragraph break, then newline, then space.
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(window, sep); i > 0 {
			return i + len(sep)
		}
	}

	// One unbroken run: make sure the hard cut does not land inside a
	// multi-byte UTF-8 sequence.
	cut := maxBytes
	for cut > 0 && text[cut]&0xC0 == 0x80 {
		cut--
	}
	if cut == 0 {
		return maxBytes
	}
	return cut
}
