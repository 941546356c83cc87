package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memObjects struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMem() *memObjects {
	return &memObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, _ := io.ReadAll(in.Body)
	m.objects[aws.ToString(in.Key)] = data
	m.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (m *memObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(data)),
		ContentType: aws.String(m.types[aws.ToString(in.Key)]),
	}, nil
}

func (m *memObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(m.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestPutFetchDelete_Key(t *testing.T) {
	mem := newMem()
	s := New(mem, "proofs-bucket", "")
	ctx := context.Background()

	ref, err := s.Put(ctx, "proofs/u/t/1.png", []byte("png-bytes"), "")
	require.NoError(t, err)
	assert.Equal(t, "proofs/u/t/1.png", ref)
	assert.Equal(t, "image/png", mem.types[ref])

	data, ct, err := s.Fetch(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
	assert.Equal(t, "image/png", ct)

	require.NoError(t, s.Delete(ctx, ref))
	assert.Empty(t, mem.objects)
}

func TestPut_PublicBase(t *testing.T) {
	mem := newMem()
	s := New(mem, "b", "https://cdn.example.com/")
	ctx := context.Background()

	ref, err := s.Put(ctx, "proofs/u/t/1.jpg", []byte("x"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/proofs/u/t/1.jpg", ref)

	data, _, err := s.Fetch(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	require.NoError(t, s.Delete(ctx, ref))
	assert.Empty(t, mem.objects)
}

func TestPut_Error(t *testing.T) {
	mem := newMem()
	mem.putErr = errors.New("denied")
	_, err := New(mem, "b", "").Put(context.Background(), "k", []byte("x"), "")
	assert.ErrorContains(t, err, "denied")
}

func TestFetch_ExternalURL(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/webp")
		_, _ = w.Write([]byte("webp"))
	}))
	defer srv.Close()

	s := New(newMem(), "b", "")
	// the test server lives on loopback, which the default client refuses
	s.http = srv.Client()

	data, ct, err := s.Fetch(context.Background(), srv.URL+"/photo.webp")
	require.NoError(t, err)
	assert.Equal(t, []byte("webp"), data)
	assert.Equal(t, "image/webp", ct)

	_, _, err = s.Fetch(context.Background(), srv.URL+"/missing.png")
	assert.ErrorContains(t, err, "status 404")

	assert.Error(t, s.Delete(context.Background(), srv.URL+"/photo.webp"))
}

func TestFetch_RefusesUnsafeURLs(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secret"))
	}))
	defer srv.Close()

	s := New(newMem(), "b", "https://cdn.example.com")
	for _, ref := range []string{
		"http://cdn.other.com/proofs/image.png",
		"https://169.254.169.254/latest/meta-data/image",
		"https://10.0.0.7/image.png",
		"https://[::1]/image.png",
		"https://localhost/image.png",
		srv.URL + "/image.png",
	} {
		_, _, err := s.Fetch(context.Background(), ref)
		assert.ErrorIs(t, err, ErrUnsafeURL, ref)
	}
}

func TestCheckExternalURL(t *testing.T) {
	assert.NoError(t, checkExternalURL("https://images.example.com/a.png"))
	assert.NoError(t, checkExternalURL("https://93.184.216.34/a.png"))
	assert.ErrorIs(t, checkExternalURL("ftp://images.example.com/a.png"), ErrUnsafeURL)
	assert.ErrorIs(t, checkExternalURL("https://100.64.1.1/a.png"), ErrUnsafeURL)
	assert.ErrorIs(t, checkExternalURL("https://[::ffff:127.0.0.1]/a.png"), ErrUnsafeURL)

	assert.ErrorIs(t, refusePrivateDial("tcp4", "192.168.1.10:443", nil), ErrUnsafeURL)
	assert.NoError(t, refusePrivateDial("tcp4", "93.184.216.34:443", nil))
}

func TestProofKey(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "proofs/u1/t1/1700000000123.jpg", ProofKey("u1", "t1", at, "IMG_0001.JPG"))
	assert.Equal(t, "proofs/u1/t1/1700000000123", ProofKey("u1", "t1", at, "notes"))
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
