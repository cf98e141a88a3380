package evidence

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicpulse/config"
)

func TestNewKey_Namespaced(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	ref, err := NewKey("user-1", ".JPG", now)
	require.NoError(t, err)

	s := string(ref)
	assert.True(t, strings.HasPrefix(s, "user-1/1700000000123-"), s)
	assert.True(t, strings.HasSuffix(s, ".jpg"), s)
}

func TestNewKey_RejectsBadOwner(t *testing.T) {
	for _, owner := range []string{"", "a/b", "..", `a\b`} {
		_, err := NewKey(owner, "jpg", time.Now())
		assert.ErrorIs(t, err, ErrInvalidOwner, owner)
	}
}

func TestNewKey_UniqueWithinSameMillisecond(t *testing.T) {
	now := time.Now()
	seen := map[Ref]bool{}
	for i := 0; i < 500; i++ {
		ref, err := NewKey("u", "png", now)
		require.NoError(t, err)
		require.False(t, seen[ref], "duplicate key %s", ref)
		seen[ref] = true
	}
}

func TestCleanExt(t *testing.T) {
	cases := map[string]string{
		"jpg":          "jpg",
		".PNG":         "png",
		"":             "jpg",
		"../../etc":    "etc",
		"verylongext1": "verylong",
		"???":          "jpg",
	}
	for in, want := range cases {
		assert.Equal(t, want, CleanExt(in), in)
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/jpeg", ContentType("u/1.jpg"))
	assert.Equal(t, "image/png", ContentType("u/1.png"))
	assert.Equal(t, "application/octet-stream", ContentType("u/1.bin"))
}

func TestFileStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir(), "http://cdn.test/uploads/")
	require.NoError(t, err)

	ref, err := fs.Upload(ctx, "owner", []byte("img"), "jpg")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.test/uploads/"+string(ref), fs.PublicURL(ref))
	assert.Equal(t, fs.PublicURL(ref), fs.PublicURL(ref))

	ok, err := fs.Exists(ctx, ref)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, fs.Delete(ctx, ref))
	ok, err = fs.Exists(ctx, ref)
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting again, or a key that never existed, is not an error.
	assert.NoError(t, fs.Delete(ctx, ref))
	assert.NoError(t, fs.Delete(ctx, "owner/never.jpg"))
}

func TestFileStore_RejectsEscapingKeys(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), "http://x")
	require.NoError(t, err)

	assert.Error(t, fs.Delete(context.Background(), "../outside.jpg"))
	_, err = fs.Exists(context.Background(), "../../etc/passwd")
	assert.Error(t, err)
}

func TestFileStore_ConcurrentUploads(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir(), "http://x")
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		refs = map[Ref]bool{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := "a"
			if i%2 == 0 {
				owner = "b"
			}
			ref, err := fs.Upload(ctx, owner, []byte{byte(i)}, "jpg")
			assert.NoError(t, err)
			mu.Lock()
			refs[ref] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	assert.Len(t, refs, 20)
}

func TestS3PublicBase(t *testing.T) {
	assert.Equal(t, "https://b.s3.eu-west-1.amazonaws.com",
		s3PublicBase(S3StoreConfig{Bucket: "b", Region: "eu-west-1"}))
	assert.Equal(t, "http://minio:9000/b",
		s3PublicBase(S3StoreConfig{Bucket: "b", Endpoint: "http://minio:9000/"}))
	assert.Equal(t, "https://cdn",
		s3PublicBase(S3StoreConfig{Bucket: "b", PublicBase: "https://cdn"}))
}

func TestNew_Backends(t *testing.T) {
	cfg := &config.Config{EvidenceBackend: "fs", UploadDir: t.TempDir(), PublicBaseURL: "http://x"}
	st, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, st)

	cfg.EvidenceBackend = "ftp"
	_, err = New(context.Background(), cfg)
	assert.ErrorContains(t, err, "unsupported")

	cfg.EvidenceBackend = "s3"
	cfg.S3Bucket = ""
	_, err = New(context.Background(), cfg)
	assert.ErrorContains(t, err, "S3_BUCKET")
}
