// Package publish uploads rendered frames to S3-compatible object storage.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// UploadTimeout bounds a single object upload.
const UploadTimeout = 10 * time.Second

// ErrNoBucket is returned by New when Config.Bucket is empty.
var ErrNoBucket = errors.New("publish: no bucket configured")

// Config locates the bucket frames are written to.
type Config struct {
	Endpoint  string `toml:"endpoint" yaml:"endpoint"`
	Region    string `toml:"region" yaml:"region"`
	Bucket    string `toml:"bucket" yaml:"bucket"`
	Prefix    string `toml:"prefix" yaml:"prefix"`
	AccessKey string `toml:"access_key" yaml:"access_key"`
	SecretKey string `toml:"secret_key" yaml:"secret_key"`

	// Public marks uploaded objects public-read.
	Public bool `toml:"public" yaml:"public"`
}

// Publisher uploads files under a key prefix.
type Publisher struct {
	cfg Config
	api s3iface.S3API
}

// New creates a Publisher with a session for cfg. Static credentials are
// used when both keys are set; otherwise the SDK's default chain applies.
func New(cfg Config) (*Publisher, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(true),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("publish: create session: %w", err)
	}
	return NewWithClient(cfg, s3.New(sess)), nil
}

// NewWithClient creates a Publisher on an existing S3 client.
func NewWithClient(cfg Config, api s3iface.S3API) *Publisher {
	return &Publisher{cfg: cfg, api: api}
}

// Key returns the object key name is stored under.
func (p *Publisher) Key(name string) string {
	return path.Join(p.cfg.Prefix, name)
}

// Upload stores data under name and returns the object key.
func (p *Publisher) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, UploadTimeout)
	defer cancel()

	key := p.Key(name)
	in := &s3.PutObjectInput{
		Bucket:        aws.String(p.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	}
	if p.cfg.Public {
		in.ACL = aws.String(s3.ObjectCannedACLPublicRead)
	}
	if _, err := p.api.PutObjectWithContext(ctx, in); err != nil {
		return "", fmt.Errorf("publish: upload %s: %w", key, err)
	}
	return key, nil
}

// ContentType returns the MIME type for a frame file name.
func ContentType(name string) string {
	switch path.Ext(name) {
	case ".png":
		return "image/png"
	case ".exr":
		return "image/x-exr"
	default:
		return "application/octet-stream"
	}
}
