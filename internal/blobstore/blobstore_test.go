package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockS3Client struct {
	objects map[string][]byte
	pages   int
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = body
	return &s3.PutObjectOutput{}, nil
}

// ListObjectsV2 returns one object per page to exercise continuation.
func (m *mockS3Client) ListObjectsV2(_ context.Context, input *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.pages++
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, aws.ToString(input.Prefix)) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return &s3.ListObjectsV2Output{}, nil
	}
	sort.Strings(keys)
	idx := 0
	if input.ContinuationToken != nil {
		for i, k := range keys {
			if k == *input.ContinuationToken {
				idx = i
			}
		}
	}
	out := &s3.ListObjectsV2Output{
		Contents: []s3types.Object{{Key: aws.String(keys[idx]), Size: aws.Int64(int64(len(m.objects[keys[idx]])))}},
	}
	if idx+1 < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[idx+1])
	}
	return out, nil
}

type fakePresigner struct {
	expires time.Duration
	err     error
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://" + aws.ToString(in.Bucket) + ".s3.local/" + aws.ToString(in.Key)}, nil
}

func TestS3StoreUploadListAndURL(t *testing.T) {
	client := newMockS3()
	presigner := &fakePresigner{}
	store := newS3Store(client, presigner, "clinic-files", time.Minute, nil)
	ctx := context.Background()

	ref, err := store.Upload(ctx, DocumentPath("chat1", "informe.pdf"), bytes.NewReader([]byte("pdf")), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "documents/chat1/informe.pdf", ref.Path)
	assert.Equal(t, "informe.pdf", ref.Name)
	assert.Equal(t, int64(3), ref.Size)

	_, err = store.Upload(ctx, DocumentPath("chat1", "foto.png"), strings.NewReader("png!"), "")
	require.NoError(t, err)
	_, err = store.Upload(ctx, DocumentPath("chat2", "otro.txt"), strings.NewReader("x"), "text/plain")
	require.NoError(t, err)

	refs, err := store.List(ctx, "documents/chat1/")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "foto.png", refs[0].Name)
	assert.Equal(t, "informe.pdf", refs[1].Name)
	assert.Equal(t, 2, client.pages)

	url, err := store.DownloadURL(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "https://clinic-files.s3.local/documents/chat1/informe.pdf", url)
	assert.Equal(t, time.Minute, presigner.expires)
}

func TestS3StorePresignFailure(t *testing.T) {
	store := newS3Store(newMockS3(), &fakePresigner{err: errors.New("no creds")}, "b", 0, nil)
	_, err := store.DownloadURL(context.Background(), Ref{Path: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blobstore: presign x")
}

func TestMemoryStoreLastWriteWins(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	path := DocumentPath("chat1", "dir/a.txt")
	assert.Equal(t, "documents/chat1/a.txt", path)

	_, err := store.Upload(ctx, path, strings.NewReader("one"), "text/plain")
	require.NoError(t, err)
	_, err = store.Upload(ctx, path, strings.NewReader("two"), "text/plain")
	require.NoError(t, err)

	data, ok := store.Read(path)
	require.True(t, ok)
	assert.Equal(t, "two", string(data))

	refs, err := store.List(ctx, "documents/chat1/")
	require.NoError(t, err)
	require.Len(t, refs, 1)

	url, err := store.DownloadURL(ctx, refs[0])
	require.NoError(t, err)
	assert.Equal(t, "memory:///documents/chat1/a.txt", url)

	_, err = store.DownloadURL(ctx, Ref{Path: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}
