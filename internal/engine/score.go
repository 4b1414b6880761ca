package engine

import (
	"time"

	"github.com/cedarridge/idm-trainer/internal/progress"
)

// Mode keys for score buckets.
const (
	ModeGuided   = "guided"
	ModeUnguided = "unguided"
)

// ModeKey returns the score-bucket key for the coach-marks flag.
func ModeKey(coachMarksOn bool) string {
	if coachMarksOn {
		return ModeGuided
	}
	return ModeUnguided
}

// FreshEntry returns a score entry with a zeroed bucket for the live mode.
// When the scenario already has history, the inactive mode's bucket is
// carried over untouched so replaying in one mode never erases the other.
func FreshEntry(prev *progress.ScoreEntry, mode string, now time.Time) progress.ScoreEntry {
	var entry progress.ScoreEntry
	entry.SetBucket(mode, &progress.ScoreBucket{StartTime: now.UnixMilli()})

	other := ModeUnguided
	if mode == ModeUnguided {
		other = ModeGuided
	}
	if prev != nil {
		entry.SetBucket(other, copyBucket(prev.Bucket(other)))
	}
	return entry
}

// Increment applies one scored interaction to the active mode's bucket,
// creating it on demand: total always bumps, correct only on success.
func Increment(entry progress.ScoreEntry, mode string, correct bool, now time.Time) progress.ScoreEntry {
	bucket := copyBucket(entry.Bucket(mode))
	if bucket == nil {
		bucket = &progress.ScoreBucket{StartTime: now.UnixMilli()}
	}
	bucket.Total++
	if correct {
		bucket.Correct++
	}
	entry.SetBucket(mode, bucket)
	return entry
}

// Finalize stamps elapsed time on the active mode's bucket at scenario
// completion. The inactive bucket is untouched.
func Finalize(entry progress.ScoreEntry, mode string, now time.Time) progress.ScoreEntry {
	bucket := copyBucket(entry.Bucket(mode))
	if bucket == nil {
		bucket = &progress.ScoreBucket{StartTime: now.UnixMilli()}
	}
	elapsed := now.UnixMilli() - bucket.StartTime
	bucket.TimeMs = &elapsed
	entry.SetBucket(mode, bucket)
	return entry
}

// GlobalScore folds correct counts across both buckets of every scenario.
// It is always recomputed, never stored.
func GlobalScore(scores map[string]progress.ScoreEntry) int {
	sum := 0
	for _, entry := range scores {
		if entry.Guided != nil {
			sum += entry.Guided.Correct
		}
		if entry.Unguided != nil {
			sum += entry.Unguided.Correct
		}
	}
	return sum
}

func copyBucket(b *progress.ScoreBucket) *progress.ScoreBucket {
	if b == nil {
		return nil
	}
	out := *b
	if b.TimeMs != nil {
		t := *b.TimeMs
		out.TimeMs = &t
	}
	return &out
}
