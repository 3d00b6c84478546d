package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// marks an otherwise empty prefix as a container
const placeholderObject = ".keep"

// GCSConfig configures the Cloud Storage connector
type GCSConfig struct {
	Bucket string
	// Endpoint overrides the JSON API endpoint, mostly for emulators
	Endpoint string
}

// GCSConnector stores batches as object prefixes in a bucket
type GCSConnector struct {
	bucket   string
	endpoint string
}

// NewGCSConnector creates a GCSConnector
func NewGCSConnector(cfg GCSConfig) *GCSConnector {
	return &GCSConnector{bucket: cfg.Bucket, endpoint: cfg.Endpoint}
}

// Connect opens a storage client authorised by the access token
func (c *GCSConnector) Connect(ctx context.Context, token *oauth2.Token) (Store, error) {
	if c.bucket == "" {
		return nil, errors.New("connecting to cloud storage: bucket is required")
	}

	opts := []option.ClientOption{option.WithTokenSource(oauth2.StaticTokenSource(token))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	return &gcsStore{client: client, bucketName: c.bucket, bucket: client.Bucket(c.bucket)}, nil
}

type gcsStore struct {
	client     *storage.Client
	bucketName string
	bucket     *storage.BucketHandle
}

func (s *gcsStore) CreateFolder(ctx context.Context, name, parentID string) (*Container, error) {
	prefix := containerPrefix(parentID, name)

	if err := s.write(ctx, prefix+placeholderObject, "text/plain", nil); err != nil {
		return nil, fmt.Errorf("creating folder %q: %w", prefix, err)
	}

	slog.Info("Created storage prefix", "bucket", s.bucketName, "prefix", prefix)
	return &Container{ID: prefix, Link: consoleURL(s.bucketName, prefix)}, nil
}

func (s *gcsStore) Upload(ctx context.Context, file File) (*UploadedFile, error) {
	name := objectName(file.ParentID, file.Name)
	if err := s.write(ctx, name, file.MimeType, file.Data); err != nil {
		return nil, fmt.Errorf("uploading %q: %w", file.Name, err)
	}
	return &UploadedFile{ID: name, Link: publicURL(s.bucketName, name)}, nil
}

func (s *gcsStore) SetPublic(ctx context.Context, id string) error {
	if err := s.bucket.Object(aclTarget(id)).ACL().Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
		return fmt.Errorf("setting public permission on %s: %w", id, err)
	}
	return nil
}

func (s *gcsStore) ShareWith(ctx context.Context, id, email string) error {
	return fmt.Errorf("sharing %s with %s: %w", id, email, errors.ErrUnsupported)
}

func (s *gcsStore) DeleteFolder(ctx context.Context, id string) error {
	// without the trailing slash the prefix also matches sibling containers
	if id == "/" || !strings.HasSuffix(id, "/") {
		return fmt.Errorf("deleting %q: %w", id, ErrInvalidContainer)
	}
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: id})
	deleted := 0
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("listing %s: %w", id, err)
		}
		if err := s.bucket.Object(attrs.Name).Delete(ctx); err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == 404 {
				continue
			}
			return fmt.Errorf("deleting %s: %w", attrs.Name, err)
		}
		deleted++
	}
	slog.Info("Deleted storage prefix", "bucket", s.bucketName, "prefix", id, "objects", deleted)
	return nil
}

func (s *gcsStore) Close() error {
	return s.client.Close()
}

func (s *gcsStore) write(ctx context.Context, name, contentType string, data []byte) error {
	writer := s.bucket.Object(name).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("writing object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalizing object: %w", err)
	}
	return nil
}

func containerPrefix(parentID, name string) string {
	return strings.TrimPrefix(path.Join(parentID, name), "/") + "/"
}

func objectName(containerID, fileName string) string {
	return containerID + path.Base(fileName)
}

// aclTarget maps a container prefix to its placeholder object
func aclTarget(id string) string {
	if strings.HasSuffix(id, "/") {
		return id + placeholderObject
	}
	return id
}

func publicURL(bucket, object string) string {
	return "https://storage.googleapis.com/" + bucket + "/" + escapeObject(object)
}

func consoleURL(bucket, prefix string) string {
	return "https://console.cloud.google.com/storage/browser/" + bucket + "/" + escapeObject(prefix)
}

func escapeObject(object string) string {
	parts := strings.Split(object, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
