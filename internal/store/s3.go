package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	leecherrors "github.com/csvleech/leech/internal/errors"
)

// leaseTTL is how long an S3Store lease is honoured before the next
// writer is entitled to steal it.
const leaseTTL = 30 * time.Second

// S3Config configures an S3Store.
type S3Config struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint and UsePathStyle support S3-compatible services (MinIO,
	// LocalStack) rather than AWS S3 itself.
	Endpoint     string
	UsePathStyle bool
}

// S3Store implements Store against an S3-compatible bucket. PutObject
// is already atomic from a reader's perspective, so writes need no
// local tmp file. Because object stores have no native advisory-lock
// primitive, writers are serialised with a lease object — name.lock
// holds a holder token and an expiry; a lease whose expiry has passed
// is stolen rather than honoured, so a crashed holder can't wedge the
// store forever.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store builds an S3Store from cfg, loading AWS credentials from
// the default provider chain.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, leecherrors.NewIoError(leecherrors.CodeLockFailed, "load AWS config", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.Endpoint) })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *S3Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// Read fetches the named object. No lock is needed: S3 reads already
// observe either the prior or the new object version, never a partial
// one.
func (s *S3Store) Read(ctx context.Context, name string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, leecherrors.NotFoundFile(name)
		}
		return nil, leecherrors.NewIoError(leecherrors.CodeReadFailed, "get "+name, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, leecherrors.NewIoError(leecherrors.CodeReadFailed, "read body of "+name, err)
	}
	return data, nil
}

// Write acquires the lease for name, puts the object, then releases
// the lease.
func (s *S3Store) Write(ctx context.Context, name string, data []byte) error {
	token, err := s.acquireLease(ctx, name)
	if err != nil {
		return err
	}
	defer s.releaseLease(ctx, name, token)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return leecherrors.NewIoError(leecherrors.CodeWriteFailed, "put "+name, err)
	}
	return nil
}

// Remove acquires the lease for name, deletes the object, then
// releases the lease.
func (s *S3Store) Remove(ctx context.Context, name string) error {
	token, err := s.acquireLease(ctx, name)
	if err != nil {
		return err
	}
	defer s.releaseLease(ctx, name, token)

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return leecherrors.NewIoError(leecherrors.CodeWriteFailed, "delete "+name, err)
	}
	return nil
}

// List returns every object under the store's prefix, excluding lease
// objects.
func (s *S3Store) List(ctx context.Context) ([]string, error) {
	var names []string
	prefix := s.prefix
	if prefix != "" {
		prefix += "/"
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, leecherrors.NewIoError(leecherrors.CodeReadFailed, "list objects", err)
		}
		for _, obj := range page.Contents {
			name := aws.ToString(obj.Key)[len(prefix):]
			if isLeaseKey(name) {
				continue
			}
			names = append(names, name)
		}
	}
	return names, nil
}

// lease is the payload stored at name.lock while name is being
// written or removed.
type lease struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

func isLeaseKey(name string) bool {
	return len(name) > 5 && name[len(name)-5:] == ".lock"
}

// acquireLease puts a lease object for name, stealing any lease whose
// expiry has already passed. It is not linearizable against a
// concurrent steal by another writer: two writers that both find the
// lease absent or expired each put their own lease and go ahead, and
// the PutObject on the real object is unconditional, so the later
// write wins.
func (s *S3Store) acquireLease(ctx context.Context, name string) (string, error) {
	leaseName := name + ".lock"
	token := uuid.New().String()

	deadline := time.Now().Add(leaseTTL * 4)
	for {
		existing, err := s.readLease(ctx, leaseName)
		if err == nil && time.Now().Before(existing.Expires) {
			if time.Now().After(deadline) {
				return "", leecherrors.NewIoError(leecherrors.CodeLockFailed, "lease on "+name+" held past deadline", nil)
			}
			select {
			case <-ctx.Done():
				return "", leecherrors.NewIoError(leecherrors.CodeLockFailed, "acquire lease on "+name, ctx.Err())
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}

		mine := lease{Token: token, Expires: time.Now().Add(leaseTTL)}
		if err := s.writeLease(ctx, leaseName, mine); err != nil {
			return "", err
		}
		return token, nil
	}
}

func (s *S3Store) releaseLease(ctx context.Context, name, token string) {
	leaseName := name + ".lock"
	current, err := s.readLease(ctx, leaseName)
	if err != nil || current.Token != token {
		return
	}
	s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(leaseName)),
	})
}

func (s *S3Store) readLease(ctx context.Context, leaseName string) (lease, error) {
	data, err := s.Read(ctx, leaseName)
	if err != nil {
		return lease{}, err
	}
	parts := splitLease(string(data))
	if len(parts) != 2 {
		return lease{}, leecherrors.NewCorruptError(leecherrors.CodePointerMalformed, "malformed lease "+leaseName, nil)
	}
	expires, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return lease{}, leecherrors.NewCorruptError(leecherrors.CodePointerMalformed, "malformed lease expiry "+leaseName, err)
	}
	return lease{Token: parts[0], Expires: expires}, nil
}

func (s *S3Store) writeLease(ctx context.Context, leaseName string, l lease) error {
	body := l.Token + " " + l.Expires.Format(time.RFC3339Nano)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(leaseName)),
		Body:   bytes.NewReader([]byte(body)),
	})
	if err != nil {
		return leecherrors.NewIoError(leecherrors.CodeLockFailed, "write lease "+leaseName, err)
	}
	return nil
}

func splitLease(s string) []string {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			return []string{s[:i], s[i+1:]}
		}
	}
	return []string{s}
}
