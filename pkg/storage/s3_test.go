package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listResponse = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>bucket</Name>
  <Prefix>chat-images/</Prefix>
  <KeyCount>1</KeyCount>
  <MaxKeys>1</MaxKeys>
  <IsTruncated>true</IsTruncated>
  <NextContinuationToken>next-token</NextContinuationToken>
  <Contents>
    <Key>chat-images/0001-a.png</Key>
    <LastModified>2024-02-14T10:00:00.000Z</LastModified>
    <Size>42</Size>
  </Contents>
</ListBucketResult>`

type fakeS3 struct {
	mu    sync.Mutex
	puts  map[string]string
	query string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.puts[r.URL.Path] = r.Header.Get("Content-Type") + "|" + string(body)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		f.query = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, listResponse)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T) (*S3Client, *fakeS3) {
	t.Helper()
	fake := &fakeS3{puts: make(map[string]string)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return NewS3Client(S3Config{
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Bucket:          "bucket",
		ForcePathStyle:  true,
	}), fake
}

func TestS3Put(t *testing.T) {
	client, fake := newTestClient(t)

	url, err := client.Put(context.Background(), "chat-images/a.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, "/bucket/chat-images/a.png"))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "image/png|png", fake.puts["/bucket/chat-images/a.png"])
}

func TestS3List(t *testing.T) {
	client, fake := newTestClient(t)

	objects, next, err := client.List(context.Background(), "chat-images/", "prev-token", 1)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "chat-images/0001-a.png", objects[0].Key)
	assert.EqualValues(t, 42, objects[0].Size)
	assert.Equal(t, "next-token", next)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Contains(t, fake.query, "continuation-token=prev-token")
	assert.Contains(t, fake.query, "list-type=2")
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name   string
		client *S3Client
		want   string
	}{
		{"cdn", &S3Client{cdnURL: "https://cdn.example.com", bucket: "b"}, "https://cdn.example.com/chat-audio%20--dev/x.webm"},
		{"path style", &S3Client{endpoint: "http://minio:9000", bucket: "b", pathStyle: true}, "http://minio:9000/b/chat-audio%20--dev/x.webm"},
		{"virtual host", &S3Client{endpoint: "https://r2.example.com", bucket: "b"}, "https://b.r2.example.com/chat-audio%20--dev/x.webm"},
		{"aws", &S3Client{bucket: "b", region: "eu-west-1"}, "https://b.s3.eu-west-1.amazonaws.com/chat-audio%20--dev/x.webm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.client.PublicURL("chat-audio --dev/x.webm"))
		})
	}
}
