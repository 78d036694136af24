package socialcontent_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/social-content/pkg/socialcontent"
	"github.com/tendant/social-content/pkg/socialcontent/repo/memory"
	memorystorage "github.com/tendant/social-content/pkg/socialcontent/storage/memory"
)

// failingBlobStore lets okWrites writes through, fails the rest and
// otherwise delegates.
type failingBlobStore struct {
	*memorystorage.Backend
	okWrites   int
	writes     int
	failDelete bool
}

func (f *failingBlobStore) UploadWithParams(ctx context.Context, r io.Reader, p socialcontent.UploadParams) error {
	if f.writes >= f.okWrites {
		return errors.New("disk full")
	}
	f.writes++
	return f.Backend.UploadWithParams(ctx, r, p)
}

func (f *failingBlobStore) Delete(ctx context.Context, key string) error {
	if f.failDelete {
		return errors.New("device busy")
	}
	return f.Backend.Delete(ctx, key)
}

func setupContentStore(t *testing.T, blobs socialcontent.BlobStore, maxBytes int64) (*socialcontent.ContentStore, *memory.Repository) {
	t.Helper()
	repo := memory.New()
	store, err := socialcontent.NewContentStore(socialcontent.ContentStoreConfig{
		Files:          repo,
		Blobs:          blobs,
		PublicBaseURL:  "https://cdn.example.com/files/",
		MaxUploadBytes: maxBytes,
	})
	require.NoError(t, err)
	return store, repo
}

func upload(data, name string) socialcontent.Upload {
	return socialcontent.Upload{Reader: strings.NewReader(data), OriginalName: name, MediaType: "image/png"}
}

func readAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func TestComputeFingerprint(t *testing.T) {
	a := socialcontent.ComputeFingerprint([]byte("hello"))
	b := socialcontent.ComputeFingerprint([]byte("hello"))
	c := socialcontent.ComputeFingerprint([]byte("hello!"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", a)
}

func TestStoredFileName(t *testing.T) {
	tests := []struct {
		name     string
		original string
		want     string
	}{
		{"lower-cases extension", "Photo.PNG", "abc.png"},
		{"keeps last extension", "archive.tar.gz", "abc.gz"},
		{"no extension", "README", "abc"},
		{"trailing dot", "weird.", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, socialcontent.StoredFileName("abc", tt.original))
		})
	}
}

func TestIngestDeduplicatesAcrossCalls(t *testing.T) {
	store, repo := setupContentStore(t, memorystorage.New(), 0)
	ctx := context.Background()

	first, err := store.Ingest(ctx, []socialcontent.Upload{upload("same-bytes", "a.png")})
	require.NoError(t, err)
	second, err := store.Ingest(ctx, []socialcontent.Upload{upload("same-bytes", "b.png")})
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].FileName, second[0].FileName)
	assert.Equal(t, socialcontent.ComputeFingerprint([]byte("same-bytes"))+".png", first[0].FileName)

	rows, err := repo.FindFilesByFingerprints(ctx, []string{first[0].Fingerprint})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestIngestKnownContentKeepsOneBlob(t *testing.T) {
	blobs := memorystorage.New()
	store, _ := setupContentStore(t, blobs, 0)
	ctx := context.Background()

	first, err := store.Ingest(ctx, []socialcontent.Upload{upload("same", "a.png")})
	require.NoError(t, err)
	second, err := store.Ingest(ctx, []socialcontent.Upload{upload("same", "b.jpg")})
	require.NoError(t, err)

	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].FileName, second[0].FileName)
	assert.Equal(t, 1, blobs.Len())

	require.NoError(t, store.Purge(ctx, []uuid.UUID{first[0].ID}))
	assert.Equal(t, 0, blobs.Len())

	fp := socialcontent.ComputeFingerprint([]byte("same"))
	for _, name := range []string{fp + ".png", fp + ".jpg"} {
		_, err := store.Resolve(ctx, name)
		assert.ErrorIs(t, err, socialcontent.ErrFileNotFound, name)
	}
}

func TestIngestDeduplicatesWithinCall(t *testing.T) {
	blobs := memorystorage.New()
	store, repo := setupContentStore(t, blobs, 0)
	ctx := context.Background()

	files, err := store.Ingest(ctx, []socialcontent.Upload{
		upload("dup", "a.png"),
		upload("other", "c.png"),
		upload("dup", "b.jpg"),
	})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, files[0].ID, files[2].ID)
	assert.NotEqual(t, files[0].ID, files[1].ID)

	rows, err := repo.FindFilesByFingerprints(ctx, []string{files[0].Fingerprint, files[1].Fingerprint})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 2, blobs.Len())
}

func TestIngestResolveRoundTrip(t *testing.T) {
	store, _ := setupContentStore(t, memorystorage.New(), 0)
	ctx := context.Background()
	payload := []byte("\x89PNG\r\n\x1a\nrest-of-image")

	files, err := store.Ingest(ctx, []socialcontent.Upload{{
		Reader:       bytes.NewReader(payload),
		OriginalName: "pic.png",
		MediaType:    "image/png",
	}})
	require.NoError(t, err)

	file := files[0]
	assert.Equal(t, "https://cdn.example.com/files/"+file.FileName, file.URL)
	assert.Equal(t, int64(len(payload)), file.SizeBytes)
	assert.Equal(t, socialcontent.CategoryImage, file.Category)

	rc, err := store.Resolve(ctx, file.URL)
	require.NoError(t, err)
	assert.Equal(t, payload, readAll(t, rc))

	rc, err = store.Resolve(ctx, file.FileName)
	require.NoError(t, err)
	assert.Equal(t, payload, readAll(t, rc))
}

func TestIngestRejectsInvalidUploads(t *testing.T) {
	tests := []struct {
		name    string
		uploads []socialcontent.Upload
	}{
		{"no uploads", nil},
		{"empty payload", []socialcontent.Upload{upload("ok", "a.png"), upload("", "b.png")}},
		{"too large", []socialcontent.Upload{upload("0123456789abcdef", "big.png")}},
		{"nil reader", []socialcontent.Upload{{OriginalName: "x.png"}}},
		{"inline text", []socialcontent.Upload{{Reader: strings.NewReader("hi"), OriginalName: "a.txt", MediaType: "text/plain"}}},
		{"cover is not an image", []socialcontent.Upload{{
			Reader:       strings.NewReader("video"),
			OriginalName: "a.mp4",
			MediaType:    "video/mp4",
			Cover:        &socialcontent.CoverUpload{Reader: strings.NewReader("audio"), OriginalName: "c.mp3", MediaType: "audio/mpeg"},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blobs := memorystorage.New()
			store, repo := setupContentStore(t, blobs, 10)

			_, err := store.Ingest(context.Background(), tt.uploads)
			assert.ErrorIs(t, err, socialcontent.ErrInvalidInput)
			assert.Equal(t, 0, blobs.Len())

			rows, err := repo.FindFilesByFingerprints(context.Background(), []string{socialcontent.ComputeFingerprint([]byte("ok"))})
			require.NoError(t, err)
			assert.Empty(t, rows)
		})
	}
}

func TestIngestStorageFailureWritesNoRows(t *testing.T) {
	store, repo := setupContentStore(t, &failingBlobStore{Backend: memorystorage.New()}, 0)
	ctx := context.Background()

	_, err := store.Ingest(ctx, []socialcontent.Upload{upload("bytes", "a.png")})
	require.Error(t, err)
	assert.ErrorIs(t, err, socialcontent.ErrStorageFailure)

	var storageErr *socialcontent.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "upload", storageErr.Op)

	rows, err := repo.FindFilesByFingerprints(ctx, []string{socialcontent.ComputeFingerprint([]byte("bytes"))})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestIngestStorageFailureRemovesWrittenBytes(t *testing.T) {
	ctx := context.Background()
	backend := memorystorage.New()
	store, repo := setupContentStore(t, &failingBlobStore{Backend: backend, okWrites: 2}, 0)

	known, err := socialcontent.NewContentStore(socialcontent.ContentStoreConfig{Files: repo, Blobs: backend})
	require.NoError(t, err)
	kept, err := known.Ingest(ctx, []socialcontent.Upload{upload("already-stored", "k.png")})
	require.NoError(t, err)

	_, err = store.Ingest(ctx, []socialcontent.Upload{
		upload("first", "a.png"),
		upload("already-stored", "k2.png"),
		upload("second", "b.png"),
		upload("third", "c.png"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, socialcontent.ErrStorageFailure)

	assert.Equal(t, 1, backend.Len(), "only the bytes of the existing record remain")
	rc, err := known.Resolve(ctx, kept[0].FileName)
	require.NoError(t, err)
	assert.Equal(t, []byte("already-stored"), readAll(t, rc))

	rows, err := repo.FindFilesByFingerprints(ctx, []string{
		socialcontent.ComputeFingerprint([]byte("first")),
		socialcontent.ComputeFingerprint([]byte("second")),
		socialcontent.ComputeFingerprint([]byte("third")),
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestIngestCovers(t *testing.T) {
	store, repo := setupContentStore(t, memorystorage.New(), 0)
	ctx := context.Background()

	t.Run("new media gets cover", func(t *testing.T) {
		files, err := store.Ingest(ctx, []socialcontent.Upload{{
			Reader:       strings.NewReader("video-1"),
			OriginalName: "clip.mp4",
			MediaType:    "video/mp4",
			Duration:     12 * time.Second,
			Cover:        &socialcontent.CoverUpload{Reader: strings.NewReader("cover-1"), OriginalName: "c.jpg", MediaType: "image/jpeg"},
		}})
		require.NoError(t, err)
		video := files[0]
		assert.Equal(t, socialcontent.CategoryVideo, video.Category)
		assert.Equal(t, 12*time.Second, video.Duration)
		require.NotNil(t, video.CoverID)

		covers, err := repo.GetFiles(ctx, []uuid.UUID{*video.CoverID})
		require.NoError(t, err)
		require.Len(t, covers, 1)
		assert.Equal(t, socialcontent.ComputeFingerprint([]byte("cover-1")), covers[0].Fingerprint)
	})

	t.Run("existing media adopts cover", func(t *testing.T) {
		files, err := store.Ingest(ctx, []socialcontent.Upload{{
			Reader: strings.NewReader("video-2"), OriginalName: "clip2.mp4", MediaType: "video/mp4",
		}})
		require.NoError(t, err)
		assert.Nil(t, files[0].CoverID)

		again, err := store.Ingest(ctx, []socialcontent.Upload{{
			Reader:       strings.NewReader("video-2"),
			OriginalName: "clip2.mp4",
			MediaType:    "video/mp4",
			Cover:        &socialcontent.CoverUpload{Reader: strings.NewReader("cover-2"), OriginalName: "c2.png", MediaType: "image/png"},
		}})
		require.NoError(t, err)
		assert.Equal(t, files[0].ID, again[0].ID)
		require.NotNil(t, again[0].CoverID)

		stored, err := repo.GetFiles(ctx, []uuid.UUID{files[0].ID})
		require.NoError(t, err)
		require.NotNil(t, stored[0].CoverID)
		assert.Equal(t, *again[0].CoverID, *stored[0].CoverID)
	})
}

func TestSoftDeleteThenPurge(t *testing.T) {
	blobs := memorystorage.New()
	store, _ := setupContentStore(t, blobs, 0)
	ctx := context.Background()

	files, err := store.Ingest(ctx, []socialcontent.Upload{upload("to-delete", "a.png")})
	require.NoError(t, err)
	file := files[0]

	require.NoError(t, store.MarkForDeletion(ctx, []uuid.UUID{file.ID}, time.Now()))

	live, err := store.Get(ctx, []uuid.UUID{file.ID})
	require.NoError(t, err)
	assert.Empty(t, live)

	rc, err := store.Resolve(ctx, file.URL)
	require.NoError(t, err, "bytes stay until purge")
	rc.Close()

	require.NoError(t, store.Purge(ctx, []uuid.UUID{file.ID}))

	_, err = store.Resolve(ctx, file.URL)
	assert.ErrorIs(t, err, socialcontent.ErrNotFound)
	assert.ErrorIs(t, err, socialcontent.ErrFileNotFound)
	assert.Equal(t, 0, blobs.Len())
}

func TestIngestRevivesPendingFile(t *testing.T) {
	store, _ := setupContentStore(t, memorystorage.New(), 0)
	ctx := context.Background()

	files, err := store.Ingest(ctx, []socialcontent.Upload{upload("revive-me", "a.png")})
	require.NoError(t, err)
	require.NoError(t, store.MarkForDeletion(ctx, []uuid.UUID{files[0].ID}, time.Now()))

	again, err := store.Ingest(ctx, []socialcontent.Upload{upload("revive-me", "a.png")})
	require.NoError(t, err)
	assert.Equal(t, files[0].ID, again[0].ID)
	assert.True(t, again[0].Purge.IsActive())

	live, err := store.Get(ctx, []uuid.UUID{files[0].ID})
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestPurge(t *testing.T) {
	ctx := context.Background()

	t.Run("tolerates missing bytes", func(t *testing.T) {
		blobs := memorystorage.New()
		store, repo := setupContentStore(t, blobs, 0)
		files, err := store.Ingest(ctx, []socialcontent.Upload{upload("gone", "a.png")})
		require.NoError(t, err)
		require.NoError(t, blobs.Delete(ctx, files[0].FileName))

		require.NoError(t, store.Purge(ctx, []uuid.UUID{files[0].ID}))
		rows, err := repo.GetFiles(ctx, []uuid.UUID{files[0].ID})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("keeps record when bytes cannot be deleted", func(t *testing.T) {
		blobs := &failingBlobStore{Backend: memorystorage.New(), failDelete: true}
		repo := memory.New()
		file := &socialcontent.StoredFile{
			ID:          uuid.New(),
			Fingerprint: "fp",
			Category:    socialcontent.CategoryImage,
			FileName:    "fp.png",
		}
		require.NoError(t, repo.CreateFiles(ctx, []*socialcontent.StoredFile{file}))
		store, err := socialcontent.NewContentStore(socialcontent.ContentStoreConfig{Files: repo, Blobs: blobs})
		require.NoError(t, err)

		err = store.Purge(ctx, []uuid.UUID{file.ID})
		assert.ErrorIs(t, err, socialcontent.ErrStorageFailure)
		rows, err := repo.GetFiles(ctx, []uuid.UUID{file.ID})
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})
}

func TestResolveMissing(t *testing.T) {
	store, _ := setupContentStore(t, memorystorage.New(), 0)

	_, err := store.Resolve(context.Background(), "https://cdn.example.com/files/nothing.png")
	assert.ErrorIs(t, err, socialcontent.ErrFileNotFound)

	_, err = store.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, socialcontent.ErrInvalidInput)
}
