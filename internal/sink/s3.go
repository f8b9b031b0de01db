// Package sink - s3.go ships record batches to object storage.
//
// DESIGN: Records accumulate in an in-memory JSONL buffer; a background
// worker flushes it as one gzipped object per interval, or earlier when
// the batch size threshold is crossed. Archival is best effort: a failed
// upload is logged and the batch dropped, never retried into a growing
// backlog.
package sink

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/tschaume/httptrail/internal/monitoring"
)

// S3Config configures the archival sink.
type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Prefix          string        `yaml:"prefix"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`          // custom endpoint for S3-compatible stores
	AccessKeyID     string        `yaml:"access_key_id"`     // empty uses the default credential chain
	SecretAccessKey string        `yaml:"secret_access_key"` //nolint:gosec
	UsePathStyle    bool          `yaml:"use_path_style"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	MaxBatch        int           `yaml:"max_batch"` // records per object before an early flush
}

// S3Sink batches records into gzipped JSONL objects.
type S3Sink struct {
	client *s3.Client
	cfg    S3Config
	logger *monitoring.Logger

	mu      sync.Mutex
	buf     bytes.Buffer
	pending int

	flushChan chan struct{}
	stopChan  chan struct{}
	wg        sync.WaitGroup
	running   bool
}

// NewS3Sink builds the client and starts the flush worker. Static
// credentials are used when configured; otherwise the default AWS
// credential chain (env, shared config, instance role) applies.
func NewS3Sink(cfg S3Config, logger *monitoring.Logger) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 sink: bucket is required")
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 1000
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 sink: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	s := &S3Sink{
		client:    client,
		cfg:       cfg,
		logger:    logger,
		flushChan: make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
		running:   true,
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

func (s *S3Sink) Name() string { return "s3" }

// Write buffers one record and signals an early flush when the batch is
// full.
func (s *S3Sink) Write(ev *Event) error {
	data, err := json.Marshal(ev.Record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	s.mu.Lock()
	s.buf.Write(data)
	s.buf.WriteByte('\n')
	s.pending++
	full := s.pending >= s.cfg.MaxBatch
	s.mu.Unlock()

	if full {
		select {
		case s.flushChan <- struct{}{}:
		default:
		}
	}
	return nil
}

// Close flushes the remaining batch and stops the worker.
func (s *S3Sink) Close() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	return nil
}

func (s *S3Sink) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			s.flush()
			return
		case <-ticker.C:
			s.flush()
		case <-s.flushChan:
			s.flush()
		}
	}
}

// flush uploads the current batch as one object.
func (s *S3Sink) flush() {
	s.mu.Lock()
	if s.pending == 0 {
		s.mu.Unlock()
		return
	}
	batch := make([]byte, s.buf.Len())
	copy(batch, s.buf.Bytes())
	count := s.pending
	s.buf.Reset()
	s.pending = 0
	s.mu.Unlock()

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(batch); err != nil {
		s.logger.Error().Err(err).Msg("s3 sink: compress batch failed")
		return
	}
	if err := gz.Close(); err != nil {
		s.logger.Error().Err(err).Msg("s3 sink: compress batch failed")
		return
	}

	key := s.objectKey(time.Now().UTC())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(compressed.Bytes()),
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Int("records", count).Msg("s3 sink: upload failed")
		return
	}
	s.logger.Debug().Str("key", key).Int("records", count).Msg("s3 sink: batch shipped")
}

// objectKey shards objects by date so list operations stay cheap.
func (s *S3Sink) objectKey(ts time.Time) string {
	prefix := s.cfg.Prefix
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	return fmt.Sprintf("%s%s/access-%s-%s.jsonl.gz",
		prefix,
		ts.Format("2006/01/02"),
		ts.Format("150405"),
		uuid.NewString()[:8],
	)
}

// Ensure S3Sink implements Sink
var _ Sink = (*S3Sink)(nil)
