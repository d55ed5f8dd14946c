package storage

import (
	"fmt"
	"strings"
	"time"
)

// Artifact keys are deterministic and human-decodable:
//
//	movement-analysis/videos/{userId}/{timestamp}-{taskType}.{ext}
//	movement-analysis/results/{userId}/{timestamp}-{taskType}.json
//
// A recording and its analysis result are correlated purely by sharing the
// (userId, timestamp, taskType) tuple embedded in their names; there is no
// index. Timestamps are RFC3339 in UTC.
const (
	artifactRoot  = "movement-analysis"
	videosSubdir  = "videos"
	resultsSubdir = "results"
)

// ArtifactRef identifies one session artifact pair.
type ArtifactRef struct {
	UserID    string
	Timestamp time.Time
	TaskType  string
}

func (r ArtifactRef) timestampKey() string {
	return r.Timestamp.UTC().Format(time.RFC3339)
}

// VideoKey builds the recording key for ref.
func VideoKey(ref ArtifactRef, ext string) string {
	if ext == "" {
		ext = "webm"
	}
	return fmt.Sprintf("%s/%s/%s/%s-%s.%s", artifactRoot, videosSubdir, ref.UserID, ref.timestampKey(), ref.TaskType, ext)
}

// ResultsKey builds the analysis-result key for ref.
func ResultsKey(ref ArtifactRef) string {
	return fmt.Sprintf("%s/%s/%s/%s-%s.json", artifactRoot, resultsSubdir, ref.UserID, ref.timestampKey(), ref.TaskType)
}

// VideoPrefix is the listing prefix for a user's recordings.
func VideoPrefix(userID string) string {
	return fmt.Sprintf("%s/%s/%s/", artifactRoot, videosSubdir, userID)
}

// ResultsPrefix is the listing prefix for a user's analysis results.
func ResultsPrefix(userID string) string {
	return fmt.Sprintf("%s/%s/%s/", artifactRoot, resultsSubdir, userID)
}

// ParseArtifactKey decodes an artifact key back into its ref. The timestamp
// itself contains dashes, so the name is split at the first dash whose
// prefix parses as an RFC3339 timestamp.
func ParseArtifactKey(key string) (ArtifactRef, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != artifactRoot {
		return ArtifactRef{}, false
	}

	name := parts[3]
	if dot := strings.LastIndexByte(name, '.'); dot > 0 {
		name = name[:dot]
	}

	for i := 0; i < len(name); i++ {
		if name[i] != '-' {
			continue
		}
		ts, err := time.Parse(time.RFC3339, name[:i])
		if err != nil {
			continue
		}
		taskType := name[i+1:]
		if taskType == "" {
			return ArtifactRef{}, false
		}
		return ArtifactRef{UserID: parts[2], Timestamp: ts.UTC(), TaskType: taskType}, true
	}
	return ArtifactRef{}, false
}
