package lexical

import "testing"

func TestAnalyzeCountsWords(t *testing.T) {
	stats := Analyze("Well, I had toast and, um, tea this morning.")

	if stats.WordCount != 9 {
		t.Fatalf("unexpected word count: got %d want 9", stats.WordCount)
	}
	if stats.FillerCount != 1 {
		t.Fatalf("unexpected filler count: got %d want 1", stats.FillerCount)
	}
	if stats.FillerRate == 0 {
		t.Fatal("expected non-zero filler rate")
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	stats := Analyze("   ")
	if stats.WordCount != 0 || stats.FillerRate != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestAnalyzeDeduplicates(t *testing.T) {
	stats := Analyze("the cat and the dog")
	if stats.UniqueWords != 4 {
		t.Fatalf("unexpected unique count: got %d want 4", stats.UniqueWords)
	}
}
