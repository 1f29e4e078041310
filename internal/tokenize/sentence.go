// Package tokenize splits incrementally produced text into sentences for
// segment-based speech synthesis.
package tokenize

import (
	"strings"
	"unicode"
)

const defaultMinSentenceLen = 8

// SentenceTokenizer buffers streamed text and releases it sentence by
// sentence. Short sentences are held back until the buffer reaches
// MinSentenceLen words, so synthesis does not stutter on fragments.
type SentenceTokenizer struct {
	// MinSentenceLen is the minimum number of buffered words before a
	// sentence is released. Zero selects the default of 8.
	MinSentenceLen int
}

// Stream opens a tokenization stream.
func (t SentenceTokenizer) Stream() *SentenceStream {
	minLen := t.MinSentenceLen
	if minLen <= 0 {
		minLen = defaultMinSentenceLen
	}
	return &SentenceStream{minLen: minLen}
}

// SentenceStream accumulates pushed text and yields complete sentences.
type SentenceStream struct {
	minLen int
	buf    strings.Builder
	out    []string
	ended  bool
}

// PushText appends text to the stream, queueing any sentences it completes.
func (s *SentenceStream) PushText(text string) {
	if s.ended {
		return
	}
	s.buf.WriteString(text)
	s.drain(false)
}

// EndInput flushes the remaining buffer as a final sentence.
func (s *SentenceStream) EndInput() {
	if s.ended {
		return
	}
	s.ended = true
	s.drain(true)
	if rest := strings.TrimSpace(s.buf.String()); rest != "" {
		s.out = append(s.out, rest)
	}
	s.buf.Reset()
}

// Next pops the next complete sentence. ok is false when nothing is ready.
func (s *SentenceStream) Next() (sentence string, ok bool) {
	if len(s.out) == 0 {
		return "", false
	}
	sentence = s.out[0]
	s.out = s.out[1:]
	return sentence, true
}

func (s *SentenceStream) drain(force bool) {
	text := s.buf.String()
	for {
		idx := sentenceBoundary(text)
		if idx < 0 {
			break
		}
		candidate := strings.TrimSpace(text[:idx+1])
		rest := text[idx+1:]
		if candidate == "" {
			text = rest
			continue
		}
		if !force && countWords(candidate) < s.minLen && sentenceBoundary(rest) < 0 {
			// Too short to speak on its own; wait for more text.
			break
		}
		s.out = append(s.out, candidate)
		text = rest
	}
	s.buf.Reset()
	s.buf.WriteString(text)
}

// sentenceBoundary returns the index of the first terminator that ends a
// sentence, or -1. A terminator only counts when followed by space or EOF,
// so decimals like "3.5" do not split.
func sentenceBoundary(text string) int {
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next := i + 1
		if next >= len(text) {
			return i
		}
		if unicode.IsSpace(rune(text[next])) {
			return i
		}
	}
	return -1
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
