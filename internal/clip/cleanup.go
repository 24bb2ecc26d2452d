package clip

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oszuidwest/zwfm-noisewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

// cleanupScheduler runs retention cleanup daily at 03:00.
func (m *Manager) cleanupScheduler() {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
		if now.After(next) {
			next = next.Add(24 * time.Hour)
		}

		slog.Info("clip cleanup: next run scheduled", "at", next.Format(time.DateTime))

		select {
		case <-time.After(next.Sub(now)):
			m.RunCleanup()
		case <-m.stopCh:
			slog.Info("clip cleanup scheduler stopped")
			return
		}
	}
}

// RunCleanup removes local clips and S3 objects older than the configured
// retention period.
func (m *Manager) RunCleanup() {
	snap := m.cfg.Snapshot()
	if !snap.ClipsEnabled || snap.ClipsRetentionDays < 1 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -snap.ClipsRetentionDays)

	deleted := m.cleanupLocal(snap.ClipsDirectory, cutoff)
	if snap.ClipsS3.IsConfigured() {
		deleted += m.cleanupS3(cutoff)
	}

	if deleted > 0 {
		slog.Info("clip cleanup completed", "deleted", deleted)
		m.logClipEvent(eventlog.CleanupCompleted, "", "", 0, "", 0)
	}
}

// cleanupLocal removes clip files older than cutoff from the clip directory.
func (m *Manager) cleanupLocal(dir string, cutoff time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("clip cleanup: failed to read directory", "path", dir, "error", err)
		return 0
	}

	var deleted int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "alert-") {
			continue
		}

		fileDate, ok := util.ExtractDateFromFilename(entry.Name())
		if !ok || !fileDate.Before(cutoff) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			slog.Warn("clip cleanup: failed to delete file", "path", path, "error", err)
		} else {
			deleted++
			slog.Debug("clip cleanup: deleted file", "file", entry.Name())
		}
	}
	return deleted
}

// cleanupS3 removes uploaded clips older than cutoff from the bucket.
func (m *Manager) cleanupS3(cutoff time.Time) int {
	snap := m.cfg.Snapshot()
	client := m.getOrCreateS3Client(&snap.ClipsS3)

	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		5*time.Minute,
		errors.New("s3 cleanup timeout"),
	)
	defer cancel()

	prefix := ""
	if snap.ClipsS3.Prefix != "" {
		prefix = snap.ClipsS3.Prefix + "/"
	}

	var deleted int
	var continuationToken *string

	for {
		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(snap.ClipsS3.Bucket),
			Prefix: aws.String(prefix),
		}
		if continuationToken != nil {
			input.ContinuationToken = continuationToken
		}

		output, err := client.ListObjectsV2(ctx, input)
		if err != nil {
			slog.Warn("clip cleanup: failed to list S3 objects", "bucket", snap.ClipsS3.Bucket, "error", err)
			return deleted
		}

		for _, obj := range output.Contents {
			key := aws.ToString(obj.Key)
			fileDate, ok := util.ExtractDateFromFilename(filepath.Base(key))
			if !ok || !fileDate.Before(cutoff) {
				continue
			}

			_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(snap.ClipsS3.Bucket),
				Key:    obj.Key,
			})
			if err != nil {
				slog.Warn("clip cleanup: failed to delete S3 object", "key", key, "error", err)
			} else {
				deleted++
				slog.Debug("clip cleanup: deleted S3 object", "key", key)
			}
		}

		if !aws.ToBool(output.IsTruncated) {
			break
		}
		continuationToken = output.NextContinuationToken
	}

	return deleted
}
