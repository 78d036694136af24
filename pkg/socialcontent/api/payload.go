package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/social-content/pkg/socialcontent"
)

// AttachmentPayload is one attachment slot in a post request. Media slots
// name the multipart parts holding their bytes.
type AttachmentPayload struct {
	ID         string `json:"id,omitempty"`
	Category   string `json:"category,omitempty"`
	Body       string `json:"body,omitempty"`
	Position   int    `json:"position"`
	Deleted    bool   `json:"deleted,omitempty"`
	File       string `json:"file,omitempty"`
	Cover      string `json:"cover,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// PostPayload is the body of create-post and update-attachments requests.
// It is sent as JSON, or as the "payload" field of a multipart form when
// attachments carry files.
type PostPayload struct {
	Body        string              `json:"body"`
	Attachments []AttachmentPayload `json:"attachments"`
}

// decodedPost holds attachment inputs whose uploads read from open
// multipart files; close releases them.
type decodedPost struct {
	Body   string
	Inputs []socialcontent.AttachmentInput
	files  []multipart.File
}

func (d *decodedPost) close() {
	for _, f := range d.files {
		_ = f.Close()
	}
	d.files = nil
}

// maxJSONBodyBytes bounds JSON bodies that never carry uploads.
const maxJSONBodyBytes int64 = 1 << 20

// decodeJSON decodes a body of at most limit bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(v)
}

// badBody answers a body that could not be decoded: 413 when it was over
// its limit, 400 otherwise.
func badBody(w http.ResponseWriter, r *http.Request, message string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeErrorStatus(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	badRequest(w, r, message)
}

func decodePostPayload(w http.ResponseWriter, r *http.Request, maxBytes int64) (*decodedPost, error) {
	var (
		payload PostPayload
		form    *multipart.Form
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			return nil, fmt.Errorf("invalid multipart form: %w", err)
		}
		form = r.MultipartForm
		raw := r.FormValue("payload")
		if raw == "" {
			return nil, fmt.Errorf("missing payload field")
		}
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("invalid payload: %w", err)
		}
	} else {
		if err := decodeJSON(w, r, maxBytes, &payload); err != nil {
			return nil, fmt.Errorf("invalid request body: %w", err)
		}
	}

	decoded := &decodedPost{Body: payload.Body}
	for i, a := range payload.Attachments {
		input := socialcontent.AttachmentInput{
			Category: socialcontent.Category(a.Category),
			Body:     a.Body,
			Position: a.Position,
			Deleted:  a.Deleted,
		}
		if a.ID != "" {
			id, err := uuid.Parse(a.ID)
			if err != nil {
				decoded.close()
				return nil, fmt.Errorf("attachment %d: invalid id %q", i, a.ID)
			}
			input.ID = &id
		}
		if a.File != "" {
			upload, err := decoded.openUpload(form, a.File)
			if err != nil {
				decoded.close()
				return nil, fmt.Errorf("attachment %d: %w", i, err)
			}
			upload.Duration = time.Duration(a.DurationMS) * time.Millisecond
			if a.Cover != "" {
				cover, err := decoded.openUpload(form, a.Cover)
				if err != nil {
					decoded.close()
					return nil, fmt.Errorf("attachment %d cover: %w", i, err)
				}
				upload.Cover = &socialcontent.CoverUpload{
					Reader:       cover.Reader,
					OriginalName: cover.OriginalName,
					MediaType:    cover.MediaType,
				}
			}
			input.Upload = upload
			if input.Category == "" {
				input.Category = socialcontent.CategoryFromMediaType(upload.MediaType)
			}
		}
		decoded.Inputs = append(decoded.Inputs, input)
	}
	return decoded, nil
}

func (d *decodedPost) openUpload(form *multipart.Form, field string) (*socialcontent.Upload, error) {
	if form == nil {
		return nil, fmt.Errorf("file %q requires a multipart request", field)
	}
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, fmt.Errorf("missing file part %q", field)
	}
	upload, f, err := uploadFromHeader(headers[0])
	if err != nil {
		return nil, err
	}
	d.files = append(d.files, f)
	return upload, nil
}

func uploadFromHeader(fh *multipart.FileHeader) (*socialcontent.Upload, multipart.File, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
	}
	return &socialcontent.Upload{
		Reader:       f,
		OriginalName: fh.Filename,
		MediaType:    fh.Header.Get("Content-Type"),
	}, f, nil
}

func parsePage(r *http.Request) (socialcontent.PageRequest, error) {
	var page socialcontent.PageRequest
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, fmt.Errorf("invalid page %q", v)
		}
		page.Page = n
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, fmt.Errorf("invalid size %q", v)
		}
		page.Size = n
	}
	return page, nil
}
