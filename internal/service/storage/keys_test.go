package storage

import (
	"testing"
	"time"
)

func TestArtifactKeyRoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ref := ArtifactRef{UserID: "user1", Timestamp: ts, TaskType: "balance"}

	videoKey := VideoKey(ref, "webm")
	if videoKey != "movement-analysis/videos/user1/2024-01-01T00:00:00Z-balance.webm" {
		t.Fatalf("unexpected video key: %s", videoKey)
	}

	resultsKey := ResultsKey(ref)
	if resultsKey != "movement-analysis/results/user1/2024-01-01T00:00:00Z-balance.json" {
		t.Fatalf("unexpected results key: %s", resultsKey)
	}

	parsed, ok := ParseArtifactKey(videoKey)
	if !ok {
		t.Fatalf("ParseArtifactKey failed for %s", videoKey)
	}
	if parsed.UserID != "user1" || parsed.TaskType != "balance" || !parsed.Timestamp.Equal(ts) {
		t.Fatalf("unexpected parsed ref: %+v", parsed)
	}
}

func TestParseArtifactKeyDashedTaskType(t *testing.T) {
	ts := time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)
	key := VideoKey(ArtifactRef{UserID: "u", Timestamp: ts, TaskType: "gait-speed"}, "mp4")

	parsed, ok := ParseArtifactKey(key)
	if !ok {
		t.Fatalf("ParseArtifactKey failed for %s", key)
	}
	if parsed.TaskType != "gait-speed" {
		t.Fatalf("unexpected task type: %s", parsed.TaskType)
	}
}

func TestParseArtifactKeyRejectsForeignKeys(t *testing.T) {
	for _, key := range []string{
		"movement-analysis/videos/user1/garbage.webm",
		"other-root/videos/user1/2024-01-01T00:00:00Z-balance.webm",
		"movement-analysis/videos/2024-01-01T00:00:00Z-balance.webm",
		"",
	} {
		if _, ok := ParseArtifactKey(key); ok {
			t.Fatalf("expected parse failure for %q", key)
		}
	}
}
