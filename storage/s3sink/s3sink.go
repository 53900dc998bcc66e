// Package s3sink is the object-store storage.Sink: one object per resource
// under "<prefix>/bundles/<bid>/resources_<name>" plus a terminal
// "<prefix>/bundles/<bid>/metadata.json". It is grounded directly on
// storage.HetznerUploadFile/storage.S3AwsListObjects (aws-sdk-go-v2 client
// construction against a custom S3-compatible endpoint, a shared
// connection-pooled *http.Client, manager.Uploader for streamed multipart
// uploads, MD5 metadata for integrity), generalized from one-shot file
// uploads into a bundle-scoped resource writer.
package s3sink

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ocfetch/fetcher/model"
	"github.com/ocfetch/fetcher/storage"
)

// sharedHTTPClient pools connections across every bundle this process
// writes.
var sharedHTTPClient = &http.Client{
	Timeout: 60 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	},
}

// Config configures a Sink against one S3-compatible bucket.
type Config struct {
	Endpoint  string // custom endpoint URL; empty uses the AWS default resolver
	Region    string
	Bucket    string
	Prefix    string // key prefix; "bundles/<bid>/..." is appended under it
	AccessKey string
	SecretKey string
}

// Sink is a storage.Sink backed by an S3-compatible object store.
type Sink struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// New builds a Sink, resolving a custom endpoint when cfg.Endpoint is set
// (the Hetzner/MinIO/LakeFS deployment shape) and the AWS default resolver
// otherwise.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3sink: Bucket is required")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		region := cfg.Region
		opts = append(opts, config.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
			func(service, _ string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               endpoint,
					SigningRegion:     region,
					HostnameImmutable: true,
				}, nil
			})))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: loading aws config: %v", model.ErrStorage, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.HTTPClient = sharedHTTPClient
		if cfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	prefix := cfg.Prefix
	if prefix != "" {
		prefix = prefix + "/"
	}

	return &Sink{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   prefix,
	}, nil
}

func (s *Sink) bundleKey(bid, suffix string) string {
	return fmt.Sprintf("%sbundles/%s/%s", s.prefix, bid, suffix)
}

func (s *Sink) OpenBundle(ctx context.Context, ref model.BundleRef) (storage.BundleContext, error) {
	if ref.BID == "" {
		return nil, fmt.Errorf("%w: bundle ref has no BID", model.ErrStorage)
	}
	return &bundleContext{sink: s, ref: ref}, nil
}

type resourceSummary struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Status      int    `json:"status"`
	Size        int64  `json:"size"`
	MD5         string `json:"md5"`
}

type bundleContext struct {
	sink *Sink
	ref  model.BundleRef

	mu        sync.Mutex
	resources []resourceSummary
	seenNames map[string]int
}

// WriteResource spools the resource to a buffer to compute its MD5 before
// upload, storing it as object metadata for later integrity verification,
// then uploads it under resources_<safe name>, disambiguated
// with a numeric suffix when the safe name repeats within one bundle.
func (c *bundleContext) WriteResource(ctx context.Context, name, contentType string, status int, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: buffering resource %q: %v", model.ErrStorage, name, err)
	}

	sum := md5.Sum(data)
	safe := storage.SafeFilename(name)

	c.mu.Lock()
	if c.seenNames == nil {
		c.seenNames = make(map[string]int)
	}
	count := c.seenNames[safe]
	c.seenNames[safe] = count + 1
	c.mu.Unlock()

	resourceName := "resources_" + safe
	if count > 0 {
		resourceName = "resources_" + safe + "_" + strconv.Itoa(count)
	}
	key := c.sink.bundleKey(c.ref.BID, resourceName)

	_, err = c.sink.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.sink.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"md5":    hex.EncodeToString(sum[:]),
			"status": strconv.Itoa(status),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: uploading resource %q: %v", model.ErrStorage, name, err)
	}

	c.mu.Lock()
	c.resources = append(c.resources, resourceSummary{
		Name: name, Key: key, ContentType: contentType, Status: status,
		Size: int64(len(data)), MD5: hex.EncodeToString(sum[:]),
	})
	c.mu.Unlock()
	return nil
}

type bundleMetadata struct {
	BundleID   string            `json:"bundle_id"`
	PrimaryURL string            `json:"primary_url"`
	CreatedAt  time.Time         `json:"created_at"`
	OK         bool              `json:"ok"`
	Resources  []resourceSummary `json:"resources"`
}

// Close writes the terminal metadata.json object. A StorageError here
// leaves any already-uploaded resource objects in place: the core does not
// garbage collect partial bundles, the absence of metadata.json is the
// signal an external sweep can use.
func (c *bundleContext) Close(ctx context.Context, ok bool) error {
	c.mu.Lock()
	resources := append([]resourceSummary(nil), c.resources...)
	c.mu.Unlock()

	meta := bundleMetadata{
		BundleID:   c.ref.BID,
		PrimaryURL: c.ref.PrimaryURL,
		CreatedAt:  time.Now(),
		OK:         ok,
		Resources:  resources,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshaling bundle metadata: %v", model.ErrStorage, err)
	}

	key := c.sink.bundleKey(c.ref.BID, "metadata.json")
	_, err = c.sink.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.sink.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("%w: uploading bundle metadata: %v", model.ErrStorage, err)
	}
	return nil
}
