// Package s3 provides an object storage backing device: one object per page
// under "<prefix><region>/<offset>".
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/marmos91/dittoswap/internal/logger"
	"github.com/marmos91/dittoswap/internal/telemetry"
	"github.com/marmos91/dittoswap/pkg/backing"
	"github.com/marmos91/dittoswap/pkg/cache"
)

// Config holds configuration for the S3 device.
type Config struct {
	// Bucket is the bucket holding page objects. It must exist.
	Bucket string `mapstructure:"bucket" yaml:"bucket" validate:"required"`

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string `mapstructure:"region" yaml:"region,omitempty"`

	// Endpoint is the S3 endpoint URL, for S3-compatible services.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// KeyPrefix is prepended to every key. Should end with "/" if non-empty.
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`

	// AccessKeyID and SecretAccessKey select static credentials. When empty
	// the SDK's default chain is used.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`

	// ForcePathStyle forces path-style addressing (required for Localstack/MinIO).
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`

	// PageSize is the page size. Default: cache.DefaultPageSize.
	PageSize int `mapstructure:"-" yaml:"-"`
}

// Device stores pages as objects.
type Device struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	pageSize  int
	slots     *backing.SlotMap

	mu     sync.RWMutex
	closed bool
}

var _ backing.Device = (*Device)(nil)

// New wraps an existing client and deletes the objects an earlier process
// left under the key prefix.
func New(ctx context.Context, client *s3.Client, cfg Config) (*Device, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 device: bucket is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = cache.DefaultPageSize
	}

	d := &Device{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		pageSize:  cfg.PageSize,
		slots:     backing.NewSlotMap(),
	}
	n, err := d.deleteAll(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		logger.Info("Removed stale page objects", logger.Bucket(d.bucket), logger.Pages(n))
	}
	return d, nil
}

// NewFromConfig builds an S3 client from cfg and returns a device using it.
func NewFromConfig(ctx context.Context, cfg Config) (*Device, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return New(ctx, client, cfg)
}

func (d *Device) Kind() string  { return "s3" }
func (d *Device) PageSize() int { return d.pageSize }

// Key returns the object key of a page.
func (d *Device) Key(region cache.RegionID, offset uint64) string {
	return fmt.Sprintf("%s%04d/%016x", d.keyPrefix, region, offset)
}

// objectKey is Key, also recorded on the device span in ctx.
func (d *Device) objectKey(ctx context.Context, region cache.RegionID, offset uint64) string {
	key := d.Key(region, offset)
	telemetry.SetAttributes(ctx, telemetry.Bucket(d.bucket), telemetry.StorageKey(key))
	return key
}

func (d *Device) checkOpen() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return backing.ErrDeviceClosed
	}
	return nil
}

// ReadPage downloads the page object into dst.
func (d *Device) ReadPage(ctx context.Context, region cache.RegionID, offset uint64, dst []byte) error {
	if err := backing.CheckPage(dst, d.pageSize); err != nil {
		return err
	}
	if err := d.checkOpen(); err != nil {
		return err
	}
	if !d.slots.Test(region, offset) {
		return backing.ErrSlotNotFound
	}

	resp, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(ctx, region, offset)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return backing.ErrSlotNotFound
		}
		return fmt.Errorf("s3 get object: %w", err)
	}
	defer resp.Body.Close()

	if _, err := io.ReadFull(resp.Body, dst[:d.pageSize]); err != nil {
		return fmt.Errorf("read s3 object body: %w", err)
	}
	return nil
}

// WritePage uploads src as the page object.
func (d *Device) WritePage(ctx context.Context, region cache.RegionID, offset uint64, src []byte) error {
	if err := backing.CheckPage(src, d.pageSize); err != nil {
		return err
	}
	if err := d.checkOpen(); err != nil {
		return err
	}

	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(d.objectKey(ctx, region, offset)),
		Body:          bytes.NewReader(src[:d.pageSize]),
		ContentLength: aws.Int64(int64(d.pageSize)),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	d.slots.Set(region, offset)
	return nil
}

// FreePage deletes the page object.
func (d *Device) FreePage(ctx context.Context, region cache.RegionID, offset uint64) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if !d.slots.Clear(region, offset) {
		return nil
	}

	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(ctx, region, offset)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

func (d *Device) SlotInUse(region cache.RegionID, offset uint64) bool {
	return d.slots.Test(region, offset)
}

// deleteAll removes every object under the key prefix in batches.
func (d *Device) deleteAll(ctx context.Context) (int, error) {
	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(d.keyPrefix),
	})

	deleted := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("s3 list objects: %w", err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, len(page.Contents))
		for i, obj := range page.Contents {
			objects[i] = types.ObjectIdentifier{Key: obj.Key}
		}
		_, err = d.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(d.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, fmt.Errorf("s3 delete objects: %w", err)
		}
		deleted += len(objects)
	}
	return deleted, nil
}

// HealthCheck verifies the bucket is reachable with a HeadBucket call.
func (d *Device) HealthCheck(ctx context.Context) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	_, err := d.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(d.bucket),
	})
	if err != nil {
		return fmt.Errorf("S3 health check failed: %w", err)
	}
	return nil
}

// Close marks the device closed. Page objects are left for the next New to
// remove.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func isNotFoundError(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
