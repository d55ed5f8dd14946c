package storage

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/lumehealth/lume/backend/internal/apperr"
)

// ObjectStore is the per-operation bucket handle the session service works
// against. *Client satisfies it.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	ListByPrefix(ctx context.Context, prefix string, max int32) ([]ObjectInfo, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (SignedURL, error)
	Close()
}

// Opener acquires a fresh ObjectStore for one logical operation.
type Opener func(ctx context.Context) (ObjectStore, error)

// SessionEntry is one recorded exercise with its optionally linked analysis
// result. An absent result is not an error; correlation is best effort.
type SessionEntry struct {
	VideoKey   string    `json:"videoKey"`
	ResultsKey string    `json:"resultsKey,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	TaskType   string    `json:"taskType"`
}

// SessionURLs carries fresh signed links for one session's artifacts.
type SessionURLs struct {
	VideoURL   SignedURL  `json:"videoUrl"`
	ResultsURL *SignedURL `json:"resultsUrl,omitempty"`
	ExpiresAt  time.Time  `json:"expiresAt"`
}

// Sessions manages session artifacts. Each call acquires a bucket client,
// uses it, and releases it on every exit path.
type Sessions struct {
	open Opener
}

// NewSessions builds the session service over the given opener.
func NewSessions(open Opener) *Sessions {
	return &Sessions{open: open}
}

// UploadSession stores a recording together with its analysis result under
// correlated keys. The pair is one logical unit: the video goes first, and
// a failed results upload surfaces as an error rather than being dropped.
func (s *Sessions) UploadSession(ctx context.Context, video, results []byte, userID string, ts time.Time, taskType, videoExt string) (videoKey, resultsKey string, err error) {
	const op = "storage.uploadsession"

	switch {
	case len(video) == 0:
		return "", "", apperr.New(apperr.KindValidation, op, "video payload is required")
	case len(results) == 0:
		return "", "", apperr.New(apperr.KindValidation, op, "results payload is required")
	case strings.TrimSpace(userID) == "":
		return "", "", apperr.New(apperr.KindValidation, op, "userID is required")
	case strings.TrimSpace(taskType) == "":
		return "", "", apperr.New(apperr.KindValidation, op, "taskType is required")
	}

	ref := ArtifactRef{UserID: userID, Timestamp: ts, TaskType: taskType}
	videoKey = VideoKey(ref, videoExt)
	resultsKey = ResultsKey(ref)

	store, err := s.open(ctx)
	if err != nil {
		return "", "", err
	}
	defer store.Close()

	if _, err := store.Upload(ctx, videoKey, video, videoContentType(videoExt)); err != nil {
		return "", "", err
	}
	if _, err := store.Upload(ctx, resultsKey, results, "application/json"); err != nil {
		// The video is already stored; surfacing the failure keeps the
		// caller from treating the pair as complete.
		return "", "", apperr.Wrap(apperr.KindStorage, op, "results upload failed, session pair incomplete", err)
	}

	log.Printf("[storage] stored session user=%s task=%s", userID, taskType)
	return videoKey, resultsKey, nil
}

// ListSessions returns up to max recordings for userID, each joined to its
// analysis result when one exists. The join policy is an exact string match
// on the (userId, timestamp, taskType) tuple parsed from the key names.
func (s *Sessions) ListSessions(ctx context.Context, userID string, max int32) ([]SessionEntry, error) {
	const op = "storage.listsessions"

	if strings.TrimSpace(userID) == "" {
		return nil, apperr.New(apperr.KindValidation, op, "userID is required")
	}
	if max <= 0 {
		max = 50
	}

	store, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	videos, err := store.ListByPrefix(ctx, VideoPrefix(userID), max)
	if err != nil {
		return nil, err
	}
	results, err := store.ListByPrefix(ctx, ResultsPrefix(userID), max)
	if err != nil {
		return nil, err
	}

	entries := make([]SessionEntry, 0, len(videos))
	for _, video := range videos {
		ref, ok := ParseArtifactKey(video.Key)
		if !ok {
			continue
		}
		entry := SessionEntry{
			VideoKey:  video.Key,
			Timestamp: ref.Timestamp,
			TaskType:  ref.TaskType,
		}
		if match, ok := firstMatchingResult(results, ref); ok {
			entry.ResultsKey = match
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

// SignedSessionURLs issues fresh playback links for a session's artifacts.
func (s *Sessions) SignedSessionURLs(ctx context.Context, videoKey, resultsKey string, ttl time.Duration) (SessionURLs, error) {
	const op = "storage.sessionurls"

	if strings.TrimSpace(videoKey) == "" {
		return SessionURLs{}, apperr.New(apperr.KindValidation, op, "videoKey is required")
	}

	store, err := s.open(ctx)
	if err != nil {
		return SessionURLs{}, err
	}
	defer store.Close()

	videoURL, err := store.SignedURL(ctx, videoKey, ttl)
	if err != nil {
		return SessionURLs{}, err
	}

	urls := SessionURLs{VideoURL: videoURL, ExpiresAt: videoURL.ExpiresAt}
	if strings.TrimSpace(resultsKey) != "" {
		resultsURL, err := store.SignedURL(ctx, resultsKey, ttl)
		if err != nil {
			return SessionURLs{}, err
		}
		urls.ResultsURL = &resultsURL
	}
	return urls, nil
}

// firstMatchingResult applies the join policy: the first result key whose
// name contains both the timestamp and the task type of the recording. Two
// uploads sharing a timestamp stay ambiguous; the first match wins.
func firstMatchingResult(results []ObjectInfo, ref ArtifactRef) (string, bool) {
	ts := ref.timestampKey()
	for _, res := range results {
		if strings.Contains(res.Key, ts) && strings.Contains(res.Key, ref.TaskType) {
			return res.Key, true
		}
	}
	return "", false
}

func videoContentType(ext string) string {
	switch ext {
	case "", "webm":
		return "video/webm"
	case "mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
