package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
	"github.com/meschain/webhook-gateway/internal/infrastructure/config"
)

type fakeS3 struct {
	objects     map[string][]byte
	contentType map[string]string
	buckets     map[string]bool
	headErr     error
	puts        int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:     map[string][]byte{},
		contentType: map[string]string{},
		buckets:     map[string]bool{},
	}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts++
	f.objects[*in.Key] = b
	f.contentType[*in.Key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[*in.Key]; ok {
		return &s3.HeadObjectOutput{}, nil
	}
	return nil, &types.NotFound{}
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.buckets[*in.Bucket] {
		return &s3.HeadBucketOutput{}, nil
	}
	return nil, &types.NotFound{}
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.buckets[*in.Bucket] = true
	return &s3.CreateBucketOutput{}, nil
}

func testStorageConfig() *config.StorageConfig {
	return &config.StorageConfig{
		Enabled:      true,
		Endpoint:     "localhost:9000",
		Bucket:       "webhook-payloads",
		AccessKey:    "minio",
		SecretKey:    "minio123",
		UsePathStyle: true,
		Prefix:       "raw",
	}
}

func sampleEvent(payload string) *webhook.WebhookEvent {
	return &webhook.WebhookEvent{
		ID:         uuid.MustParse("7b0c1f3e-2d4a-4c55-9b7e-0a1b2c3d4e5f"),
		Sender:     webhook.SenderTrendyol,
		EventType:  webhook.EventType("order.created"),
		ExternalID: "TY-1001",
		RawPayload: []byte(payload),
		ReceivedAt: time.Date(2026, 3, 9, 23, 30, 0, 0, time.FixedZone("TRT", 3*3600)),
	}
}

func TestNewS3PayloadArchive_Validation(t *testing.T) {
	_, err := NewS3PayloadArchive(nil)
	require.Error(t, err)

	cfg := testStorageConfig()
	cfg.Bucket = ""
	_, err = NewS3PayloadArchive(cfg)
	assert.ErrorContains(t, err, "bucket")

	cfg = testStorageConfig()
	cfg.SecretKey = ""
	_, err = NewS3PayloadArchive(cfg)
	assert.ErrorContains(t, err, "secret key")
}

func TestNewS3PayloadArchive_BuildsClient(t *testing.T) {
	a, err := NewS3PayloadArchive(testStorageConfig())
	require.NoError(t, err)
	assert.Equal(t, "webhook-payloads", a.Bucket())
	assert.NotNil(t, a.client)
}

func TestArchiveKey(t *testing.T) {
	e := sampleEvent(`{"orderNumber":"TY-1001"}`)
	assert.Equal(t, "raw/trendyol/2026/03/09/7b0c1f3e-2d4a-4c55-9b7e-0a1b2c3d4e5f.json", ArchiveKey("raw", e))

	e.RawPayload = []byte("\n  <order/>")
	assert.Equal(t, "trendyol/2026/03/09/7b0c1f3e-2d4a-4c55-9b7e-0a1b2c3d4e5f.xml", ArchiveKey("", e))
}

func TestS3PayloadArchive_Archive(t *testing.T) {
	fake := newFakeS3()
	a, err := NewS3PayloadArchive(testStorageConfig(), withClient(fake))
	require.NoError(t, err)

	e := sampleEvent(`<?xml version="1.0"?><order/>`)
	require.NoError(t, a.Archive(context.Background(), e))

	key := ArchiveKey("raw", e)
	assert.Equal(t, e.RawPayload, fake.objects[key])
	assert.Equal(t, "application/xml", fake.contentType[key])

	// Second write for the same event keeps the first copy.
	require.NoError(t, a.Archive(context.Background(), e))
	assert.Equal(t, 1, fake.puts)
}

func TestS3PayloadArchive_HeadFailure(t *testing.T) {
	fake := newFakeS3()
	fake.headErr = errors.New("connection refused")
	a, err := NewS3PayloadArchive(testStorageConfig(), withClient(fake))
	require.NoError(t, err)

	err = a.Archive(context.Background(), sampleEvent(`{}`))
	assert.ErrorContains(t, err, "connection refused")
	assert.Zero(t, fake.puts)
}

func TestS3PayloadArchive_EnsureBucket(t *testing.T) {
	fake := newFakeS3()
	a, err := NewS3PayloadArchive(testStorageConfig(), withClient(fake))
	require.NoError(t, err)

	require.NoError(t, a.EnsureBucket(context.Background()))
	assert.True(t, fake.buckets["webhook-payloads"])
	require.NoError(t, a.EnsureBucket(context.Background()))
}

func TestMemoryPayloadArchive(t *testing.T) {
	m := NewMemoryPayloadArchive("raw")
	e := sampleEvent(`{"a":1}`)

	require.NoError(t, m.Archive(context.Background(), e))
	e2 := *e
	e2.RawPayload = []byte(`{"a":2}`)
	require.NoError(t, m.Archive(context.Background(), &e2))

	got, ok := m.Get(ArchiveKey("raw", e))
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(got))
	assert.Equal(t, 1, m.Len())
}

func TestEndpointURL(t *testing.T) {
	cases := []struct {
		raw    string
		ssl    bool
		want   string
		errMsg string
	}{
		{raw: "", want: "http://localhost:9000"},
		{raw: "minio:9000", want: "http://minio:9000"},
		{raw: "s3.eu-central-1.amazonaws.com", ssl: true, want: "https://s3.eu-central-1.amazonaws.com"},
		{raw: "https://minio.internal", want: "https://minio.internal"},
		{raw: "ftp://minio.internal", errMsg: "scheme"},
	}
	for _, tc := range cases {
		got, err := endpointURL(tc.raw, tc.ssl)
		if tc.errMsg != "" {
			assert.ErrorContains(t, err, tc.errMsg, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got)
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		`{"orderNumber":"1"}`:                   "application/json",
		"  \n<Notification/>":                   "application/xml",
		"\ufeff<?xml version=\"1.0\"?><order/>": "application/xml",
		"\ufeff{}":                              "application/json",
		"":                                      "application/json",
	}
	for raw, want := range cases {
		assert.Equal(t, want, ContentType([]byte(raw)), "%q", raw)
	}
}
