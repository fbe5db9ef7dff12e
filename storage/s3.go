package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/endpoints"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"

	"github.com/peak/s5nav/cache"
)

var _ Backend = (*S3)(nil)

const (
	// DeleteItemsMax is the max allowed items to be deleted on single HTTP request.
	DeleteItemsMax = 1000

	// delimiter of the hierarchical listings.
	s3Separator = "/"

	defaultPartSize    = 50 * 1024 * 1024
	defaultConcurrency = 5
)

// S3Options stores configuration for S3 storage.
type S3Options struct {
	MaxRetries  int
	Endpoint    string
	Region      string
	Profile     string
	NoVerifySSL bool

	// AccessKeyID and SecretAccessKey, when both set, replace the default
	// credential chain.
	AccessKeyID     string
	SecretAccessKey string

	PartSize    int64
	Concurrency int
}

// S3 is a storage type which interacts with S3API, DownloaderAPI and
// UploaderAPI.
type S3 struct {
	api        s3iface.S3API
	downloader s3manageriface.DownloaderAPI
	uploader   s3manageriface.UploaderAPI
	opts       S3Options
	identity   string
	caches     *cache.Session

	mu      sync.Mutex
	lastErr error
}

// NewS3Storage creates new S3 session.
func NewS3Storage(opts S3Options, caches *cache.Session) (*S3, error) {
	awsSession, err := newAWSSession(opts)
	if err != nil {
		return nil, err
	}

	return newS3(s3.New(awsSession), s3manager.NewDownloader(awsSession), s3manager.NewUploader(awsSession), opts, caches), nil
}

func newS3(
	api s3iface.S3API,
	downloader s3manageriface.DownloaderAPI,
	uploader s3manageriface.UploaderAPI,
	opts S3Options,
	caches *cache.Session,
) *S3 {
	if opts.PartSize <= 0 {
		opts.PartSize = defaultPartSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	identity := "s3"
	if opts.Endpoint != "" {
		identity = "s3:" + opts.Endpoint
	}

	return &S3{
		api:        api,
		downloader: downloader,
		uploader:   uploader,
		opts:       opts,
		identity:   identity,
		caches:     caches,
	}
}

// Kind implements Backend.
func (s *S3) Kind() Kind { return Remote }

// Identity implements Backend.
func (s *S3) Identity() string { return s.identity }

// LastError returns the error of the last failed List call.
func (s *S3) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *S3) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *S3) metadata() *cache.Cache {
	if s.caches == nil {
		return nil
	}
	return s.caches.Metadata
}

// List is a delimited listing of the keys directly under prefix. An empty
// bucket lists the buckets themselves as directories.
func (s *S3) List(ctx context.Context, bucket, prefix string) ([]Entry, []Entry) {
	if bucket == "" {
		buckets, err := s.ListBuckets(ctx, "")
		if err != nil {
			s.setLastError(err)
			return nil, nil
		}
		s.setLastError(nil)

		dirs := make([]Entry, 0, len(buckets))
		for _, b := range buckets {
			created := b.CreationDate
			dirs = append(dirs, Entry{
				Ref:     RemoteRef(b.Name, "", ""),
				Name:    b.Name,
				IsDir:   true,
				ModTime: &created,
			})
		}
		return dirs, nil
	}

	key := cache.Key(s.identity, bucket, prefix, opList)
	if l, ok := cachedListing(s.caches, key); ok {
		return cloneEntries(l.dirs), cloneEntries(l.files)
	}

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(s3Separator),
	}

	var l listing
	err := s.api.ListObjectsV2PagesWithContext(ctx, input, func(p *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, c := range p.CommonPrefixes {
			dirkey := aws.StringValue(c.Prefix)
			l.dirs = append(l.dirs, Entry{
				Ref:   RemoteRef(bucket, dirkey, ""),
				Name:  strings.TrimSuffix(strings.TrimPrefix(dirkey, prefix), s3Separator),
				IsDir: true,
			})
		}

		for _, c := range p.Contents {
			objkey := aws.StringValue(c.Key)
			// folder marker of the listed prefix itself
			if objkey == prefix || strings.HasSuffix(objkey, s3Separator) {
				continue
			}
			mod := aws.TimeValue(c.LastModified)
			l.files = append(l.files, Entry{
				Ref:     RemoteRef(bucket, objkey, ""),
				Name:    strings.TrimPrefix(objkey, prefix),
				Size:    aws.Int64Value(c.Size),
				ModTime: &mod,
			})
		}
		return !lastPage
	})
	if err != nil {
		s.setLastError(err)
		return nil, nil
	}

	s.setLastError(nil)
	storeListing(s.caches, key, l)
	return cloneEntries(l.dirs), cloneEntries(l.files)
}

// Exists retrieves metadata from S3 object without returning the object
// itself. It returns nil if the object doesn't exist.
func (s *S3) Exists(ctx context.Context, bucket, key string) (*Metadata, error) {
	output, err := s.api.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if errHasCode(err, "NotFound") || errHasCode(err, s3.ErrCodeNoSuchKey) {
			return nil, nil
		}
		return nil, err
	}

	mod := aws.TimeValue(output.LastModified)
	return &Metadata{
		Size:      aws.Int64Value(output.ContentLength),
		ModTime:   &mod,
		Etag:      strings.Trim(aws.StringValue(output.ETag), `"`),
		VersionID: aws.StringValue(output.VersionId),
	}, nil
}

// ReadTo is a multipart download operation which downloads the object into
// localPath. The object is written into a temporary file next to localPath
// and renamed on success.
func (s *S3) ReadTo(ctx context.Context, bucket, key, localPath, versionID string) error {
	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}

	file, err := os.CreateTemp(dir, filepath.Base(localPath)+".s5nav-*")
	if err != nil {
		return err
	}
	tmpname := file.Name()

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if versionID != "" {
		input.VersionId = aws.String(versionID)
	}

	_, err = s.downloader.DownloadWithContext(ctx, file, input, func(u *s3manager.Downloader) {
		u.PartSize = s.opts.PartSize
		u.Concurrency = s.opts.Concurrency
	})
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpname)
		return err
	}

	if err := os.Rename(tmpname, localPath); err != nil {
		_ = os.Remove(tmpname)
		return err
	}

	invalidateLocal(s.caches, dir)
	return nil
}

// WriteFrom is a multipart upload operation to upload localPath into the
// given bucket and key.
func (s *S3) WriteFrom(ctx context.Context, localPath, bucket, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(guessContentType(file)),
	}, func(u *s3manager.Uploader) {
		u.PartSize = s.opts.PartSize
		u.Concurrency = s.opts.Concurrency
	})
	if err != nil {
		return err
	}

	invalidateRemote(s.caches, s.identity, bucket)
	return nil
}

// Copy is a single-object copy operation which copies objects to S3
// destination from another S3 source.
func (s *S3) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey, versionID string) error {
	// SDK expects CopySource like "bucket[/key]"
	copySource := escapedCopySource(srcBucket, srcKey)
	if versionID != "" {
		copySource += "?versionId=" + versionID
	}

	_, err := s.api.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource),
	})
	if err != nil {
		return err
	}

	invalidateRemote(s.caches, s.identity, dstBucket)
	return nil
}

// escapedCopySource returns "bucket/key" with every path element escaped.
// The copy source header is decoded by the server, so a literal '+' must not
// reach it unescaped.
func escapedCopySource(bucket, key string) string {
	elements := strings.Split(bucket+s3Separator+key, s3Separator)
	for i, element := range elements {
		elements[i] = strings.ReplaceAll(url.QueryEscape(element), "+", "%20")
	}
	return strings.Join(elements, s3Separator)
}

// Delete removes a single object, or a single version of it if versionID is
// set.
func (s *S3) Delete(ctx context.Context, bucket, key, versionID string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if versionID != "" {
		input.VersionId = aws.String(versionID)
	}

	if _, err := s.api.DeleteObjectWithContext(ctx, input); err != nil {
		return err
	}

	invalidateRemote(s.caches, s.identity, bucket)
	return nil
}

// ListVersions returns all versions of the given key, latest first.
func (s *S3) ListVersions(ctx context.Context, bucket, key string) ([]Version, error) {
	var versions []Version
	err := s.api.ListObjectVersionsPagesWithContext(ctx, &s3.ListObjectVersionsInput{
		Bucket: aws.String(bucket),
		Prefix: aws.String(key),
	}, func(p *s3.ListObjectVersionsOutput, lastPage bool) bool {
		for _, v := range p.Versions {
			if aws.StringValue(v.Key) != key {
				continue
			}
			versions = append(versions, Version{
				VersionID: aws.StringValue(v.VersionId),
				IsLatest:  aws.BoolValue(v.IsLatest),
				Size:      aws.Int64Value(v.Size),
				ModTime:   aws.TimeValue(v.LastModified),
				Etag:      strings.Trim(aws.StringValue(v.ETag), `"`),
			})
		}
		for _, m := range p.DeleteMarkers {
			if aws.StringValue(m.Key) != key {
				continue
			}
			versions = append(versions, Version{
				VersionID:      aws.StringValue(m.VersionId),
				IsLatest:       aws.BoolValue(m.IsLatest),
				IsDeleteMarker: true,
				ModTime:        aws.TimeValue(m.LastModified),
			})
		}
		return !lastPage
	})
	if err != nil {
		return nil, err
	}

	sortVersions(versions)
	return versions, nil
}

// Walk lists every object below prefix without a delimiter. Entry names are
// relative to prefix.
func (s *S3) Walk(ctx context.Context, bucket, prefix string) ([]Entry, error) {
	var entries []Entry
	err := s.api.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}, func(p *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, c := range p.Contents {
			objkey := aws.StringValue(c.Key)
			if strings.HasSuffix(objkey, s3Separator) {
				continue
			}
			mod := aws.TimeValue(c.LastModified)
			entries = append(entries, Entry{
				Ref:     RemoteRef(bucket, objkey, ""),
				Name:    strings.TrimPrefix(objkey, prefix),
				Size:    aws.Int64Value(c.Size),
				ModTime: &mod,
			})
		}
		return !lastPage
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// RemoveContainer deletes the folder markers left under prefix. An empty
// prefix deletes the bucket itself, which fails unless the bucket is empty.
func (s *S3) RemoveContainer(ctx context.Context, bucket, prefix string) error {
	defer invalidateRemote(s.caches, s.identity, bucket)

	if prefix == "" {
		_, err := s.api.DeleteBucketWithContext(ctx, &s3.DeleteBucketInput{
			Bucket: aws.String(bucket),
		})
		if err != nil {
			return err
		}
		// bucket list
		invalidateRemote(s.caches, s.identity, "")
		return nil
	}

	var keys []*s3.ObjectIdentifier
	err := s.api.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}, func(p *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, c := range p.Contents {
			keys = append(keys, &s3.ObjectIdentifier{Key: c.Key})
		}
		return !lastPage
	})
	if err != nil {
		return err
	}

	for _, k := range keys {
		if !strings.HasSuffix(aws.StringValue(k.Key), s3Separator) {
			return fmt.Errorf("prefix %q is not empty: %q", prefix, aws.StringValue(k.Key))
		}
	}

	for start := 0; start < len(keys); start += DeleteItemsMax {
		end := start + DeleteItemsMax
		if end > len(keys) {
			end = len(keys)
		}
		o, err := s.api.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3.Delete{Objects: keys[start:end]},
		})
		if err != nil {
			return err
		}
		if len(o.Errors) > 0 {
			e := o.Errors[0]
			return fmt.Errorf("%v: %v", aws.StringValue(e.Key), aws.StringValue(e.Message))
		}
	}
	return nil
}

// ListBuckets is a blocking list-operation which gets bucket list and returns
// the buckets that match with given prefix. Results are kept in the metadata
// cache.
func (s *S3) ListBuckets(ctx context.Context, prefix string) ([]Bucket, error) {
	key := cache.Key(s.identity, "", "", opBuckets)

	var all []Bucket
	if v, ok := s.metadata().Get(key); ok {
		all, _ = v.([]Bucket)
	} else {
		o, err := s.api.ListBucketsWithContext(ctx, &s3.ListBucketsInput{})
		if err != nil {
			return nil, err
		}
		for _, b := range o.Buckets {
			all = append(all, Bucket{
				CreationDate: aws.TimeValue(b.CreationDate),
				Name:         aws.StringValue(b.Name),
			})
		}
		s.metadata().Put(key, all)
	}

	var buckets []Bucket
	for _, b := range all {
		if prefix == "" || strings.HasPrefix(b.Name, prefix) {
			buckets = append(buckets, b)
		}
	}
	return buckets, nil
}

// VersioningEnabled reports whether versioning is enabled on the bucket.
// Results are kept in the metadata cache.
func (s *S3) VersioningEnabled(ctx context.Context, bucket string) (bool, error) {
	key := cache.Key(s.identity, bucket, "", opVersions)
	if v, ok := s.metadata().Get(key); ok {
		if enabled, ok := v.(bool); ok {
			return enabled, nil
		}
	}

	o, err := s.api.GetBucketVersioningWithContext(ctx, &s3.GetBucketVersioningInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return false, err
	}

	enabled := aws.StringValue(o.Status) == s3.BucketVersioningStatusEnabled
	s.metadata().Put(key, enabled)
	return enabled, nil
}

// guessContentType gets content type of the file.
func guessContentType(file *os.File) string {
	contentType := mime.TypeByExtension(filepath.Ext(file.Name()))
	if contentType == "" {
		defer file.Seek(0, io.SeekStart)

		const bufsize = 512
		buf, err := io.ReadAll(io.LimitReader(file, bufsize))
		if err != nil {
			return ""
		}

		return http.DetectContentType(buf)
	}
	return contentType
}

// sortVersions orders versions from newest to oldest, keeping the latest
// version first.
func sortVersions(versions []Version) {
	sort.SliceStable(versions, func(i, j int) bool {
		if versions[i].IsLatest != versions[j].IsLatest {
			return versions[i].IsLatest
		}
		return versions[i].ModTime.After(versions[j].ModTime)
	})
}

// NewAwsSession initializes a new AWS session with region fallback and custom
// options.
func newAWSSession(opts S3Options) (*session.Session, error) {
	newSession := func(c *aws.Config) (*session.Session, error) {
		useSharedConfig := session.SharedConfigEnable

		// Reverse of what the SDK does: if AWS_SDK_LOAD_CONFIG is 0 (or a falsy value) disable shared configs
		loadCfg := os.Getenv("AWS_SDK_LOAD_CONFIG")
		if loadCfg != "" {
			if enable, _ := strconv.ParseBool(loadCfg); !enable {
				useSharedConfig = session.SharedConfigDisable
			}
		}
		return session.NewSessionWithOptions(session.Options{
			Config:            *c,
			Profile:           opts.Profile,
			SharedConfigState: useSharedConfig,
		})
	}

	awsCfg := aws.NewConfig().WithMaxRetries(opts.MaxRetries)

	if opts.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(opts.Endpoint).WithS3ForcePathStyle(true)
	}

	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		awsCfg = awsCfg.WithCredentials(
			credentials.NewStaticCredentials(opts.AccessKeyID, opts.SecretAccessKey, ""),
		)
	}

	if opts.NoVerifySSL {
		awsCfg = awsCfg.WithHTTPClient(&http.Client{Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}})
	}

	if opts.Region != "" {
		awsCfg = awsCfg.WithRegion(opts.Region)
		return newSession(awsCfg)
	}

	ses, err := newSession(awsCfg)
	if err != nil {
		return nil, err
	}
	if (*ses).Config.Region == nil || *(*ses).Config.Region == "" {
		// No region specified in env or config, fallback to us-east-1
		awsCfg = awsCfg.WithRegion(endpoints.UsEast1RegionID)
		ses, err = newSession(awsCfg)
	}

	return ses, err
}

func errHasCode(err error, code string) bool {
	if code == "" || err == nil {
		return false
	}

	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		if awsErr.Code() == code {
			return true
		}
	}
	return false
}

// IsCancelationError reports whether given error is a cancelation error of
// the AWS SDK.
func IsCancelationError(err error) bool {
	return errHasCode(err, request.CanceledErrorCode)
}
