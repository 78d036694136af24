package socialcontent

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxUploadBytes is the per-upload size limit when none is configured.
const DefaultMaxUploadBytes int64 = 32 << 20

// Upload is one raw media upload handed to Ingest.
type Upload struct {
	Reader       io.Reader
	OriginalName string
	MediaType    string
	Duration     time.Duration
	Cover        *CoverUpload
}

// CoverUpload is an optional cover image uploaded alongside a media file.
type CoverUpload struct {
	Reader       io.Reader
	OriginalName string
	MediaType    string
}

// ContentStoreConfig configures a ContentStore.
type ContentStoreConfig struct {
	Files          FileRepository
	Blobs          BlobStore
	BackendName    string
	PublicBaseURL  string
	MaxUploadBytes int64
	Logger         *slog.Logger
	Now            func() time.Time
}

// ContentStore turns uploaded byte streams into deduplicated, content
// addressed StoredFile records.
type ContentStore struct {
	files          FileRepository
	blobs          BlobStore
	backendName    string
	publicBaseURL  string
	maxUploadBytes int64
	logger         *slog.Logger
	now            func() time.Time
}

// NewContentStore creates a ContentStore.
func NewContentStore(cfg ContentStoreConfig) (*ContentStore, error) {
	if cfg.Files == nil {
		return nil, fmt.Errorf("file repository is required")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.BackendName == "" {
		cfg.BackendName = "default"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ContentStore{
		files:          cfg.Files,
		blobs:          cfg.Blobs,
		backendName:    cfg.BackendName,
		publicBaseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		maxUploadBytes: cfg.MaxUploadBytes,
		logger:         cfg.Logger,
		now:            cfg.Now,
	}, nil
}

// ComputeFingerprint returns the hex SHA-256 digest of data.
func ComputeFingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// StoredFileName derives the storage key for a payload: the fingerprint plus
// the lower-cased extension of the original name, if any.
func StoredFileName(fingerprint, originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "." {
		ext = ""
	}
	return fingerprint + ext
}

// URLFor returns the public URL of a stored file name.
func (cs *ContentStore) URLFor(fileName string) string {
	return cs.publicBaseURL + "/" + fileName
}

// payload is a fully read and fingerprinted upload.
type payload struct {
	data        []byte
	fingerprint string
	fileName    string
	mediaType   string
	category    Category
	duration    time.Duration
}

// ingestResult is the outcome of an ingest: one record per upload plus the
// records the call inserted or moved out of pending purge.
type ingestResult struct {
	files   []*StoredFile
	created []uuid.UUID
	revived []uuid.UUID
}

// Ingest stores every upload and returns one StoredFile per input, in input
// order. Identical bytes resolve to the same record regardless of name. A
// failed call leaves no new record and no new bytes behind.
func (cs *ContentStore) Ingest(ctx context.Context, uploads []Upload) ([]*StoredFile, error) {
	res, err := cs.ingest(ctx, uploads)
	if err != nil {
		return nil, err
	}
	return res.files, nil
}

func (cs *ContentStore) ingest(ctx context.Context, uploads []Upload) (*ingestResult, error) {
	if len(uploads) == 0 {
		return nil, invalidInput("no uploads")
	}

	media := make([]payload, len(uploads))
	covers := make([]*payload, len(uploads))
	for i, u := range uploads {
		p, err := cs.readPayload(u.Reader, u.OriginalName, u.MediaType)
		if err != nil {
			return nil, fmt.Errorf("upload %d: %w", i, err)
		}
		p.duration = u.Duration
		media[i] = p

		if u.Cover != nil {
			c, err := cs.readPayload(u.Cover.Reader, u.Cover.OriginalName, u.Cover.MediaType)
			if err != nil {
				return nil, fmt.Errorf("cover %d: %w", i, err)
			}
			if c.category != CategoryImage {
				return nil, invalidInput("cover %d: media type %s is not an image", i, c.mediaType)
			}
			covers[i] = &c
		}
	}
	all := append(derefPayloads(covers), media...)

	fingerprints := make([]string, len(all))
	for i, p := range all {
		fingerprints[i] = p.fingerprint
	}
	existing, err := cs.lookup(ctx, fingerprints)
	if err != nil {
		return nil, err
	}
	preexisting := make(map[string]bool, len(existing))
	for fp := range existing {
		preexisting[fp] = true
	}

	// Known fingerprints keep the bytes of their record. New content is
	// written once, under the name its record will carry.
	written := make(map[string]string)
	for _, p := range all {
		if preexisting[p.fingerprint] || written[p.fingerprint] != "" {
			continue
		}
		if err := cs.writePayload(ctx, p); err != nil {
			cs.discardUnowned(ctx, written, nil)
			return nil, err
		}
		written[p.fingerprint] = p.fileName
	}

	res := &ingestResult{}
	adopted := make(map[uuid.UUID]bool)
	fail := func(err error) (*ingestResult, error) {
		cs.rollback(ctx, subtractAdopted(res.created, adopted), written)
		return nil, err
	}

	// Covers are created first so new media rows can point at them.
	created, err := cs.createMissing(ctx, derefPayloads(covers), existing, nil)
	res.created = append(res.created, created...)
	if err != nil {
		return fail(err)
	}
	coverIDs := make(map[string]uuid.UUID)
	for i := range media {
		if covers[i] != nil {
			coverIDs[media[i].fingerprint] = existing[covers[i].fingerprint].ID
		}
	}
	created, err = cs.createMissing(ctx, media, existing, coverIDs)
	res.created = append(res.created, created...)
	if err != nil {
		return fail(err)
	}

	// Existing media that never had a cover adopt the uploaded one.
	for fp, coverID := range coverIDs {
		file := existing[fp]
		if file.CoverID != nil || file.ID == coverID {
			continue
		}
		if err := cs.files.SetFileCover(ctx, file.ID, coverID); err != nil {
			return fail(&FileError{FileID: file.ID, Op: "set_cover", Err: err})
		}
		id := coverID
		file.CoverID = &id
		adopted[coverID] = true
	}

	seen := make(map[uuid.UUID]bool)
	for _, p := range all {
		file := existing[p.fingerprint]
		if seen[file.ID] {
			continue
		}
		seen[file.ID] = true
		if preexisting[p.fingerprint] && !file.Purge.IsActive() {
			res.revived = append(res.revived, file.ID)
		}
	}
	if len(res.revived) > 0 {
		if err := cs.files.RestoreFiles(ctx, res.revived); err != nil {
			return fail(fmt.Errorf("failed to restore files: %w", err))
		}
		for _, p := range all {
			existing[p.fingerprint].Purge = PurgeState{}
		}
	}

	// A concurrent ingest may have won the insert under another extension.
	cs.discardUnowned(ctx, written, existing)

	res.files = make([]*StoredFile, len(media))
	for i := range media {
		res.files[i] = existing[media[i].fingerprint]
	}
	cs.logger.Debug("ingested uploads", "count", len(uploads), "preexisting", len(preexisting), "created", len(res.created))
	return res, nil
}

// Resolve opens the bytes behind a public URL or bare stored file name.
func (cs *ContentStore) Resolve(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	key, err := cs.keyFromURL(rawURL)
	if err != nil {
		return nil, err
	}
	rc, err := cs.blobs.Download(ctx, key)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, key)
		}
		return nil, &StorageError{Backend: cs.backendName, Key: key, Op: "download", Err: err}
	}
	return rc, nil
}

// Stat returns the backend metadata of the bytes behind a public URL or bare
// stored file name.
func (cs *ContentStore) Stat(ctx context.Context, rawURL string) (*ObjectMeta, error) {
	key, err := cs.keyFromURL(rawURL)
	if err != nil {
		return nil, err
	}
	meta, err := cs.blobs.GetObjectMeta(ctx, key)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, key)
		}
		return nil, &StorageError{Backend: cs.backendName, Key: key, Op: "stat", Err: err}
	}
	return meta, nil
}

// Get returns the live records among ids.
func (cs *ContentStore) Get(ctx context.Context, ids []uuid.UUID) ([]*StoredFile, error) {
	files, err := cs.files.GetFiles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get files: %w", err)
	}
	live := files[:0]
	for _, f := range files {
		if f.Purge.IsActive() {
			live = append(live, f)
		}
	}
	return live, nil
}

// MarkForDeletion moves records to pending purge. Bytes are kept.
func (cs *ContentStore) MarkForDeletion(ctx context.Context, ids []uuid.UUID, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if err := cs.files.MarkFilesForPurge(ctx, ids, now.UTC()); err != nil {
		return fmt.Errorf("failed to mark files for purge: %w", err)
	}
	return nil
}

// Purge irreversibly deletes the bytes and records of ids, pending or not.
// Callers must have established that nothing references them. Missing bytes
// are tolerated; records whose bytes could not be deleted are kept.
func (cs *ContentStore) Purge(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	files, err := cs.files.GetFiles(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to get files: %w", err)
	}

	var purged []uuid.UUID
	var errs []error
	for _, f := range files {
		if f.Category.HasPhysicalPayload() {
			err := cs.blobs.Delete(ctx, f.FileName)
			if err != nil && !errors.Is(err, ErrBlobNotFound) {
				errs = append(errs, &StorageError{Backend: cs.backendName, Key: f.FileName, Op: "delete", Err: err})
				continue
			}
		}
		purged = append(purged, f.ID)
	}

	if len(purged) > 0 {
		if err := cs.files.DeleteFiles(ctx, purged); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete file records: %w", err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	cs.logger.Debug("purged files", "count", len(purged))
	return nil
}

func (cs *ContentStore) readPayload(r io.Reader, originalName, mediaType string) (payload, error) {
	if r == nil {
		return payload{}, invalidInput("missing payload")
	}
	data, err := io.ReadAll(io.LimitReader(r, cs.maxUploadBytes+1))
	if err != nil {
		return payload{}, invalidInput("read payload: %v", err)
	}
	if len(data) == 0 {
		return payload{}, invalidInput("empty upload %q", originalName)
	}
	if int64(len(data)) > cs.maxUploadBytes {
		return payload{}, invalidInput("upload %q exceeds %d bytes", originalName, cs.maxUploadBytes)
	}

	if strings.TrimSpace(mediaType) == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(data)
	}
	category := CategoryFromMediaType(mediaType)
	if !category.HasPhysicalPayload() {
		return payload{}, invalidInput("media type %s is stored inline, not as a file", mediaType)
	}

	fp := ComputeFingerprint(data)
	return payload{
		data:        data,
		fingerprint: fp,
		fileName:    StoredFileName(fp, originalName),
		mediaType:   mediaType,
		category:    category,
	}, nil
}

func (cs *ContentStore) writePayload(ctx context.Context, p payload) error {
	err := cs.blobs.UploadWithParams(ctx, bytes.NewReader(p.data), UploadParams{
		ObjectKey: p.fileName,
		MimeType:  p.mediaType,
		Size:      int64(len(p.data)),
	})
	if err != nil {
		return &StorageError{Backend: cs.backendName, Key: p.fileName, Op: "upload", Err: err}
	}
	return nil
}

func (cs *ContentStore) lookup(ctx context.Context, fingerprints []string) (map[string]*StoredFile, error) {
	found, err := cs.files.FindFilesByFingerprints(ctx, uniqueStrings(fingerprints))
	if err != nil {
		return nil, fmt.Errorf("failed to look up fingerprints: %w", err)
	}
	byFingerprint := make(map[string]*StoredFile, len(found))
	for _, f := range found {
		byFingerprint[f.Fingerprint] = f
	}
	return byFingerprint, nil
}

// createMissing inserts records for payloads not in existing, then re-reads
// them so that existing holds the canonical row for every fingerprint even
// when a concurrent ingest won the insert.
func (cs *ContentStore) createMissing(ctx context.Context, payloads []payload, existing map[string]*StoredFile, coverIDs map[string]uuid.UUID) ([]uuid.UUID, error) {
	now := cs.now().UTC()
	var create []*StoredFile
	var missing []string
	queued := make(map[string]bool)
	for _, p := range payloads {
		if existing[p.fingerprint] != nil || queued[p.fingerprint] {
			continue
		}
		queued[p.fingerprint] = true
		file := &StoredFile{
			ID:          uuid.New(),
			Fingerprint: p.fingerprint,
			MediaType:   p.mediaType,
			Category:    p.category,
			FileName:    p.fileName,
			SizeBytes:   int64(len(p.data)),
			Duration:    p.duration,
			URL:         cs.URLFor(p.fileName),
			CreatedAt:   now,
		}
		if coverID, ok := coverIDs[p.fingerprint]; ok {
			file.CoverID = &coverID
		}
		create = append(create, file)
		missing = append(missing, p.fingerprint)
	}
	if len(create) == 0 {
		return nil, nil
	}

	if err := cs.files.CreateFiles(ctx, create); err != nil {
		return nil, fmt.Errorf("failed to create files: %w", err)
	}
	canonical, err := cs.lookup(ctx, missing)
	if err != nil {
		return nil, err
	}
	var created []uuid.UUID
	for _, file := range create {
		row, ok := canonical[file.Fingerprint]
		if !ok {
			return created, fmt.Errorf("file with fingerprint %s missing after create", file.Fingerprint)
		}
		if row.ID == file.ID {
			created = append(created, row.ID)
		}
		existing[file.Fingerprint] = row
	}
	return created, nil
}

// rollback removes the records a failed ingest created and the bytes it
// wrote that no record owns afterwards.
func (cs *ContentStore) rollback(ctx context.Context, created []uuid.UUID, written map[string]string) {
	if len(created) > 0 {
		if err := cs.files.DeleteFiles(ctx, created); err != nil {
			cs.logger.Error("failed to roll back file records", "ids", created, "error", err)
		}
	}
	cs.discardUnowned(ctx, written, nil)
}

// discardUnowned deletes written blobs, keyed by fingerprint, unless the
// record of that fingerprint uses the same name. A nil owners map is looked
// up from the repository.
func (cs *ContentStore) discardUnowned(ctx context.Context, written map[string]string, owners map[string]*StoredFile) {
	if len(written) == 0 {
		return
	}
	if owners == nil {
		fingerprints := make([]string, 0, len(written))
		for fp := range written {
			fingerprints = append(fingerprints, fp)
		}
		found, err := cs.lookup(ctx, fingerprints)
		if err != nil {
			cs.logger.Warn("failed to check owners of written blobs", "error", err)
			return
		}
		owners = found
	}
	for fp, key := range written {
		if f := owners[fp]; f != nil && f.FileName == key {
			continue
		}
		if err := cs.blobs.Delete(ctx, key); err != nil && !errors.Is(err, ErrBlobNotFound) {
			cs.logger.Warn("failed to delete unowned blob", "key", key, "error", err)
		}
	}
}

func subtractAdopted(ids []uuid.UUID, adopted map[uuid.UUID]bool) []uuid.UUID {
	var out []uuid.UUID
	for _, id := range ids {
		if !adopted[id] {
			out = append(out, id)
		}
	}
	return out
}

func (cs *ContentStore) keyFromURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", invalidInput("empty url")
	}
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	key := path.Base(p)
	if key == "." || key == "/" || key == ".." {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, rawURL)
	}
	return key, nil
}

func derefPayloads(ps []*payload) []payload {
	out := make([]payload, 0, len(ps))
	for _, p := range ps {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
