package tokenize

import "testing"

func collect(s *SentenceStream) []string {
	var out []string
	for {
		sentence, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, sentence)
	}
}

func TestSentenceStreamBasicSplit(t *testing.T) {
	stream := SentenceTokenizer{MinSentenceLen: 1}.Stream()
	stream.PushText("Hello there friend. How are you today? ")
	stream.EndInput()

	got := collect(stream)
	want := []string{"Hello there friend.", "How are you today?"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d sentences, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sentence %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSentenceStreamBuffersShortSentences(t *testing.T) {
	stream := SentenceTokenizer{MinSentenceLen: 8}.Stream()
	stream.PushText("Hi. ")

	if _, ok := stream.Next(); ok {
		t.Fatal("Short sentence should be held back until more text arrives")
	}

	stream.EndInput()
	got := collect(stream)
	if len(got) != 1 || got[0] != "Hi." {
		t.Errorf("EndInput should flush the held sentence, got %v", got)
	}
}

func TestSentenceStreamIncrementalPush(t *testing.T) {
	stream := SentenceTokenizer{MinSentenceLen: 2}.Stream()
	stream.PushText("The quick brown fox jumps")
	if _, ok := stream.Next(); ok {
		t.Fatal("No sentence should be ready without a terminator")
	}

	stream.PushText(" over the lazy dog. And then")
	sentence, ok := stream.Next()
	if !ok {
		t.Fatal("Expected a sentence after terminator arrived")
	}
	if sentence != "The quick brown fox jumps over the lazy dog." {
		t.Errorf("Unexpected sentence: %q", sentence)
	}

	stream.EndInput()
	got := collect(stream)
	if len(got) != 1 || got[0] != "And then" {
		t.Errorf("Trailing text should flush on EndInput, got %v", got)
	}
}

func TestSentenceBoundaryIgnoresDecimals(t *testing.T) {
	stream := SentenceTokenizer{MinSentenceLen: 1}.Stream()
	stream.PushText("Pi is roughly 3.14159 in value. ")
	stream.EndInput()

	got := collect(stream)
	if len(got) != 1 {
		t.Fatalf("Decimal point should not split the sentence, got %v", got)
	}
}

func TestSentenceStreamPushAfterEnd(t *testing.T) {
	stream := SentenceTokenizer{}.Stream()
	stream.EndInput()
	stream.PushText("ignored. ")

	if _, ok := stream.Next(); ok {
		t.Error("Text pushed after EndInput should be dropped")
	}
}
