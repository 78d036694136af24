package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/social-content/pkg/socialcontent"
	"github.com/tendant/social-content/pkg/socialcontent/api"
	"github.com/tendant/social-content/pkg/socialcontent/repo/memory"
	memorystorage "github.com/tendant/social-content/pkg/socialcontent/storage/memory"
	"github.com/tendant/social-content/pkg/socialcontent/sweep"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake image data")

type apiFixture struct {
	t       *testing.T
	handler http.Handler
}

func setupRouter(t *testing.T) *apiFixture {
	t.Helper()
	repo := memory.New()
	blobs := memorystorage.New()

	svc, err := socialcontent.New(
		socialcontent.WithRepository(repo),
		socialcontent.WithBlobStore("memory", blobs),
	)
	require.NoError(t, err)

	store, err := socialcontent.NewContentStore(socialcontent.ContentStoreConfig{
		Files:       repo,
		Blobs:       blobs,
		BackendName: "memory",
	})
	require.NoError(t, err)
	sweeper, err := sweep.New(sweep.Config{Repository: repo, Store: store})
	require.NoError(t, err)

	return &apiFixture{t: t, handler: api.NewRouter(api.RouterConfig{Service: svc, Sweeper: sweeper})}
}

func (f *apiFixture) do(method, path, principal string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	f.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if principal != "" {
		req.Header.Set(api.PrincipalHeader, principal)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) doJSON(method, path, principal string, v interface{}) *httptest.ResponseRecorder {
	f.t.Helper()
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		require.NoError(f.t, err)
		body = bytes.NewReader(data)
	}
	return f.do(method, path, principal, body, "application/json")
}

func (f *apiFixture) register(principal, handle string) socialcontent.Account {
	f.t.Helper()
	w := f.doJSON(http.MethodPost, "/api/v1/accounts", principal, api.RegisterAccountRequest{Handle: handle})
	require.Equal(f.t, http.StatusCreated, w.Code, w.Body.String())
	var account socialcontent.Account
	require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &account))
	return account
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// multipartPost builds a create-post form with one image attachment.
func multipartPost(t *testing.T, body string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	payload, err := json.Marshal(api.PostPayload{
		Body:        body,
		Attachments: []api.AttachmentPayload{{File: "photo", Position: 0}},
	})
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("payload", string(payload)))

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="photo"; filename="photo.png"`)
	header.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(pngBytes)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestAccountsAPI(t *testing.T) {
	f := setupRouter(t)

	alice := f.register("principal-alice", "alice")
	assert.Equal(t, "alice", alice.Handle)

	t.Run("duplicate registration conflicts", func(t *testing.T) {
		w := f.doJSON(http.MethodPost, "/api/v1/accounts", "principal-alice", api.RegisterAccountRequest{Handle: "again"})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "conflict", decode[api.ErrorBody](t, w).Error.Code)
	})

	t.Run("registration needs a principal", func(t *testing.T) {
		w := f.doJSON(http.MethodPost, "/api/v1/accounts", "", api.RegisterAccountRequest{Handle: "nobody"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("me resolves the principal", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/accounts/me", "principal-alice", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, alice.ID, decode[socialcontent.Account](t, w).ID)

		w = f.do(http.MethodGet, "/api/v1/accounts/me", "principal-unknown", nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("follow and unfollow", func(t *testing.T) {
		bob := f.register("principal-bob", "bob")
		path := fmt.Sprintf("/api/v1/accounts/%s/follow", alice.ID)

		assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, path, "principal-bob", nil, "").Code)
		assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, path, "principal-bob", nil, "").Code)
		assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, path, "principal-bob", nil, "").Code)
		assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, path, "principal-bob", nil, "").Code)

		self := fmt.Sprintf("/api/v1/accounts/%s/follow", bob.ID)
		assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, self, "principal-bob", nil, "").Code)
	})
}

func TestPostLifecycleAPI(t *testing.T) {
	f := setupRouter(t)
	author := f.register("principal-author", "author")
	f.register("principal-reader", "reader")
	followPath := fmt.Sprintf("/api/v1/accounts/%s/follow", author.ID)
	require.Equal(t, http.StatusNoContent, f.do(http.MethodPost, followPath, "principal-reader", nil, "").Code)

	body, contentType := multipartPost(t, "first post")
	w := f.do(http.MethodPost, "/api/v1/posts", "principal-author", body, contentType)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[api.CreatePostResponse](t, w)
	require.Len(t, created.Attachments, 1)
	require.NotNil(t, created.Propagation)
	assert.Equal(t, 1, created.Propagation.Inserted)
	postPath := "/api/v1/posts/" + created.Post.ID.String()

	t.Run("attachment bytes are served from the public URL", func(t *testing.T) {
		w := f.do(http.MethodGet, postPath+"/attachments", "", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		attachments := decode[[]socialcontent.Attachment](t, w)
		require.Len(t, attachments, 1)
		require.NotNil(t, attachments[0].FileID)

		w = f.do(http.MethodGet, "/api/v1/files?id="+attachments[0].FileID.String(), "", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		files := decode[[]socialcontent.StoredFile](t, w)
		require.Len(t, files, 1)

		w = f.do(http.MethodGet, files[0].URL, "", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, pngBytes, w.Body.Bytes())
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.Equal(t, strconv.Itoa(len(pngBytes)), w.Header().Get("Content-Length"))
	})

	t.Run("followers see the post", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/feed?size=10", "principal-reader", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		page := decode[socialcontent.FeedPage](t, w)
		require.NotEmpty(t, page.Items)
		assert.Equal(t, created.Post.ID, page.Items[0].Post.ID)
		assert.False(t, page.Items[0].Recommended)
	})

	t.Run("anonymous feed is recommendations only", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/feed", "", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		page := decode[socialcontent.FeedPage](t, w)
		for _, item := range page.Items {
			assert.True(t, item.Recommended)
		}
	})

	t.Run("only the author can publish", func(t *testing.T) {
		w := f.do(http.MethodPost, postPath+"/publish", "principal-reader", nil, "")
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = f.do(http.MethodPost, postPath+"/publish", "principal-author", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, socialcontent.EditorialStateValidated, decode[socialcontent.Post](t, w).State)
	})

	t.Run("propagate again inserts nothing", func(t *testing.T) {
		w := f.do(http.MethodPost, postPath+"/propagate", "principal-author", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		result := decode[socialcontent.PropagationResult](t, w)
		assert.Equal(t, 1, result.Followers)
		assert.Zero(t, result.Inserted)
	})

	t.Run("text attachments can be added by JSON", func(t *testing.T) {
		w := f.doJSON(http.MethodPut, postPath+"/attachments", "principal-author", api.PostPayload{
			Attachments: []api.AttachmentPayload{{Category: "text", Body: "caption", Position: 1}},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Len(t, decode[[]socialcontent.Attachment](t, w), 2)
	})

	t.Run("delete removes the post", func(t *testing.T) {
		w := f.do(http.MethodDelete, postPath, "principal-reader", nil, "")
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = f.do(http.MethodDelete, postPath, "principal-author", nil, "")
		require.Equal(t, http.StatusNoContent, w.Code)

		w = f.do(http.MethodGet, postPath, "", nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("sweep dry run reports the released file", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/admin/sweep", "", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		result := decode[sweep.Result](t, w)
		assert.True(t, result.DryRun)
		assert.Zero(t, result.Deleted)
	})
}

func TestPostsAPIValidation(t *testing.T) {
	f := setupRouter(t)
	f.register("principal-writer", "writer")

	tests := []struct {
		name      string
		method    string
		path      string
		principal string
		body      interface{}
		want      int
	}{
		{"anonymous create", http.MethodPost, "/api/v1/posts", "", api.PostPayload{Body: "hi"}, http.StatusUnauthorized},
		{"empty post", http.MethodPost, "/api/v1/posts", "principal-writer", api.PostPayload{}, http.StatusBadRequest},
		{"file without multipart", http.MethodPost, "/api/v1/posts", "principal-writer", api.PostPayload{Attachments: []api.AttachmentPayload{{File: "x"}}}, http.StatusBadRequest},
		{"bad post id", http.MethodGet, "/api/v1/posts/not-a-uuid", "", nil, http.StatusBadRequest},
		{"unknown post", http.MethodGet, "/api/v1/posts/" + uuid.NewString(), "", nil, http.StatusNotFound},
		{"negative page", http.MethodGet, "/api/v1/feed?page=-1", "", nil, http.StatusBadRequest},
		{"non-numeric size", http.MethodGet, "/api/v1/feed?size=ten", "", nil, http.StatusBadRequest},
		{"missing file ids", http.MethodGet, "/api/v1/files", "", nil, http.StatusBadRequest},
		{"bad sweep flag", http.MethodPost, "/api/v1/admin/sweep?apply=maybe", "", nil, http.StatusBadRequest},
		{"oversized account body", http.MethodPost, "/api/v1/accounts", "principal-big", api.RegisterAccountRequest{Handle: strings.Repeat("h", 2<<20)}, http.StatusRequestEntityTooLarge},
		{"oversized attachment delete body", http.MethodDelete, "/api/v1/posts/" + uuid.NewString() + "/attachments", "principal-writer", map[string]string{"pad": strings.Repeat("x", 2<<20)}, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.doJSON(tt.method, tt.path, tt.principal, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestUploadAPI(t *testing.T) {
	f := setupRouter(t)
	f.register("principal-uploader", "uploader")

	uploadNamed := func(filename string, data []byte) *httptest.ResponseRecorder {
		buf := &bytes.Buffer{}
		mw := multipart.NewWriter(buf)
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		header.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
		require.NoError(t, mw.Close())
		return f.do(http.MethodPost, "/api/v1/files", "principal-uploader", buf, mw.FormDataContentType())
	}
	upload := func() *httptest.ResponseRecorder { return uploadNamed("a.png", pngBytes) }

	first := upload()
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := upload()
	require.Equal(t, http.StatusCreated, second.Code)

	a := decode[socialcontent.StoredFile](t, first)
	b := decode[socialcontent.StoredFile](t, second)
	assert.Equal(t, a.ID, b.ID, "identical bytes share one stored file")
	assert.Equal(t, socialcontent.CategoryImage, a.Category)

	w := f.do(http.MethodGet, "/files/missing.png", "", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	t.Run("content type comes from stored metadata", func(t *testing.T) {
		data := append(append([]byte{}, pngBytes...), []byte("-raw")...)
		created := uploadNamed("raw.dat", data)
		require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
		file := decode[socialcontent.StoredFile](t, created)

		w := f.do(http.MethodGet, file.URL, "", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.Equal(t, strconv.Itoa(len(data)), w.Header().Get("Content-Length"))
		assert.Equal(t, data, w.Body.Bytes())
	})
}
