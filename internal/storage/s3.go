// Package storage keeps uploaded proof artifacts in an S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	ErrNotConfigured = errors.New("object storage is not configured")
	// ErrUnsafeURL marks external artifact URLs the server refuses to fetch.
	ErrUnsafeURL = errors.New("artifact url not allowed")
)

// maxFetch bounds how much of an artifact is read back for analysis.
const maxFetch = 20 << 20

type Options struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKeyID   string
	SecretKey     string
	PublicBaseURL string
}

// ObjectAPI is the subset of *s3.Client the store needs.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Store struct {
	api        ObjectAPI
	bucket     string
	publicBase string
	http       *http.Client
}

// NewS3 builds a client for AWS S3 or any S3-compatible endpoint (R2, MinIO).
func NewS3(ctx context.Context, opts Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, ErrNotConfigured
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return New(client, opts.Bucket, opts.PublicBaseURL), nil
}

func New(api ObjectAPI, bucket, publicBaseURL string) *S3Store {
	return &S3Store{
		api:        api,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBaseURL, "/"),
		http:       newExternalClient(),
	}
}

// Put uploads body under key and returns the reference to store on the
// task: the public URL when a public base is configured, the key otherwise.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(key))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	if s.publicBase != "" {
		return s.publicBase + "/" + key, nil
	}
	return key, nil
}

// Delete removes the object a reference points at.
func (s *S3Store) Delete(ctx context.Context, ref string) error {
	key, ok := s.keyFor(ref)
	if !ok {
		return fmt.Errorf("delete %s: not an object in this bucket", ref)
	}
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Fetch reads an artifact back. Bucket keys (and public URLs under our own
// base) go through GetObject; any other http(s) URL is downloaded directly.
func (s *S3Store) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	if key, ok := s.keyFor(ref); ok {
		out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, "", fmt.Errorf("get %s: %w", key, err)
		}
		defer out.Body.Close()

		data, err := io.ReadAll(io.LimitReader(out.Body, maxFetch))
		if err != nil {
			return nil, "", fmt.Errorf("read %s: %w", key, err)
		}
		return data, aws.ToString(out.ContentType), nil
	}

	return s.download(ctx, ref)
}

func (s *S3Store) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := checkExternalURL(rawURL); err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("download %s: status %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetch))
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// keyFor resolves a stored reference to a bucket key.
func (s *S3Store) keyFor(ref string) (string, bool) {
	if s.publicBase != "" && strings.HasPrefix(ref, s.publicBase+"/") {
		return strings.TrimPrefix(ref, s.publicBase+"/"), true
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return "", false
	}
	return strings.TrimPrefix(ref, "/"), ref != ""
}

// ProofKey is where an artifact for a task lives: proofs/<user>/<task>/<unix-ms><ext>.
func ProofKey(userID, taskID string, at time.Time, fileName string) string {
	return fmt.Sprintf("proofs/%s/%s/%d%s", userID, taskID, at.UnixMilli(), strings.ToLower(path.Ext(fileName)))
}

// newExternalClient only reaches public hosts. The resolved address is
// checked on every dial, redirects included.
func newExternalClient() *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, Control: refusePrivateDial}
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			Proxy:               nil,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return checkExternalURL(req.URL.String())
		},
	}
}

func checkExternalURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrUnsafeURL, u.Scheme)
	}
	host := u.Hostname()
	if host == "" || strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("%w: host %q", ErrUnsafeURL, host)
	}
	if ip, err := netip.ParseAddr(host); err == nil && !publicAddr(ip) {
		return fmt.Errorf("%w: host %q", ErrUnsafeURL, host)
	}
	return nil
}

func refusePrivateDial(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}
	if !publicAddr(ap.Addr()) {
		return fmt.Errorf("%w: address %s", ErrUnsafeURL, ap.Addr())
	}
	return nil
}

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

func publicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsValid() &&
		!ip.IsLoopback() &&
		!ip.IsPrivate() &&
		!ip.IsLinkLocalUnicast() &&
		!ip.IsLinkLocalMulticast() &&
		!ip.IsInterfaceLocalMulticast() &&
		!ip.IsMulticast() &&
		!ip.IsUnspecified() &&
		!sharedAddressSpace.Contains(ip)
}
