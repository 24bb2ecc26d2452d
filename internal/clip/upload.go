package clip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oszuidwest/zwfm-noisewatch/internal/eventlog"
	"github.com/oszuidwest/zwfm-noisewatch/internal/types"
	"github.com/oszuidwest/zwfm-noisewatch/internal/util"
)

// s3API is the subset of the S3 client used by the clip manager.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// uploadRequest represents a clip waiting for S3 upload.
type uploadRequest struct {
	localPath string
	s3Key     string
	fileSize  int64
}

// createS3Client creates an S3 client with the given configuration.
func createS3Client(cfg *types.ClipS3Config) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}

	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// getOrCreateS3Client returns the cached S3 client, creating it if needed.
func (m *Manager) getOrCreateS3Client(cfg *types.ClipS3Config) s3API {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.s3Client == nil {
		m.s3Client = createS3Client(cfg)
	}
	return m.s3Client
}

// InvalidateS3Client clears the cached S3 client.
// Call this when S3 configuration changes.
func (m *Manager) InvalidateS3Client() {
	m.mu.Lock()
	m.s3Client = nil
	m.mu.Unlock()
}

// queueForUpload hands a saved clip to the upload worker.
func (m *Manager) queueForUpload(localPath, filename string, fileSize int64, prefix string) {
	key := filename
	if prefix != "" {
		key = prefix + "/" + filename
	}

	select {
	case m.uploadQueue <- uploadRequest{localPath: localPath, s3Key: key, fileSize: fileSize}:
		slog.Info("queued clip for upload", "file", filename)
		m.logClipEvent(eventlog.UploadQueued, filename, key, fileSize, "", 0)
	default:
		slog.Warn("clip upload queue full, dropping", "file", filename)
	}
}

// uploadWorker processes the upload queue, draining remaining items on shutdown.
func (m *Manager) uploadWorker() {
	defer m.uploadWg.Done()

	for {
		select {
		case <-m.stopCh:
			for {
				select {
				case req := <-m.uploadQueue:
					m.uploadClip(req)
				default:
					return
				}
			}
		case req := <-m.uploadQueue:
			m.uploadClip(req)
		}
	}
}

// uploadClip uploads one clip with bounded retries.
func (m *Manager) uploadClip(req uploadRequest) {
	snap := m.cfg.Snapshot()
	if !snap.ClipsS3.IsConfigured() {
		return
	}
	client := m.getOrCreateS3Client(&snap.ClipsS3)

	backoff := util.NewBackoff(types.InitialUploadRetryDelay, types.MaxUploadRetryDelay)

	var lastErr error
	for attempt := 1; attempt <= types.MaxUploadRetries; attempt++ {
		if attempt > 1 {
			time.Sleep(backoff.Next())
		}

		lastErr = m.putClip(client, snap.ClipsS3.Bucket, req)
		if lastErr == nil {
			slog.Info("clip upload completed", "s3_key", req.s3Key)
			m.logClipEvent(eventlog.UploadCompleted, filepath.Base(req.localPath), req.s3Key, req.fileSize, "", attempt-1)
			return
		}

		slog.Warn("clip upload failed", "s3_key", req.s3Key, "attempt", attempt, "error", lastErr)
	}

	slog.Error("clip upload abandoned", "s3_key", req.s3Key, "error", lastErr)
	m.logClipEvent(eventlog.UploadFailed, filepath.Base(req.localPath), req.s3Key, req.fileSize, lastErr.Error(), types.MaxUploadRetries)
}

// putClip performs a single upload attempt.
func (m *Manager) putClip(client s3API, bucket string, req uploadRequest) error {
	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		5*time.Minute,
		errors.New("s3 upload timeout"),
	)
	defer cancel()

	file, err := os.Open(req.localPath)
	if err != nil {
		return fmt.Errorf("open clip for upload: %w", err)
	}
	defer func() { _ = file.Close() }()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(req.s3Key),
		Body:          file,
		ContentLength: aws.Int64(req.fileSize),
		ContentType:   aws.String("audio/wav"),
	})
	return err
}

// TestS3Connection tests connectivity to an S3 bucket by uploading and
// deleting a test file.
func TestS3Connection(cfg *types.ClipS3Config) error {
	if !cfg.IsConfigured() {
		return fmt.Errorf("S3 is not configured")
	}

	client := createS3Client(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	testKey := fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano())
	testContent := []byte("noisewatch connection test")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return fmt.Errorf("upload test file: %w", err)
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		slog.Warn("failed to delete test file", "key", testKey, "error", err)
	}

	return nil
}
