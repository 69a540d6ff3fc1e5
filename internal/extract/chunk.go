package extract

import (
	"unicode/utf8"

	"github.com/vthunder/distill/internal/sessions"
)

// Limits bound one chunk.
type Limits struct {
	MaxMessages int
	MaxChars    int
}

// Chunk is a contiguous slice of a transcript. Offset is the index of its
// first message in the full transcript.
type Chunk struct {
	Offset   int
	Messages []sessions.Message
}

// SizeFunc reports how many characters message i contributes to a chunk.
type SizeFunc func(i int, m sessions.Message) int

// textSize counts the raw message text.
func textSize(_ int, m sessions.Message) int {
	return utf8.RuneCountInString(m.Text)
}

// Split partitions messages into contiguous chunks so that no chunk exceeds
// either limit, measuring each message with size (raw text when nil). A
// message larger than MaxChars on its own still forms a chunk.
func Split(msgs []sessions.Message, l Limits, size SizeFunc) []Chunk {
	if len(msgs) == 0 {
		return nil
	}
	if size == nil {
		size = textSize
	}
	var chunks []Chunk
	start, chars := 0, 0
	for i, m := range msgs {
		n := size(i, m)
		full := l.MaxMessages > 0 && i-start >= l.MaxMessages
		over := l.MaxChars > 0 && i > start && chars+n > l.MaxChars
		if full || over {
			chunks = append(chunks, Chunk{Offset: start, Messages: msgs[start:i]})
			start, chars = i, 0
		}
		chars += n
	}
	return append(chunks, Chunk{Offset: start, Messages: msgs[start:]})
}
