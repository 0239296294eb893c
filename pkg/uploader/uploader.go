// Package uploader implements the Uploader: it serializes a grouped
// operation batch and dispatches it to the remote sync endpoint over HTTP.
//
// The client wrapper follows a REST-over-net/http idiom: a *http.Client held
// on a small struct, with a response wrapper exposing decode helpers, rather
// than reaching for a third-party REST client. The multipart field layout
// (payload plus repeated files fields) mirrors a form with named payload and
// file parts.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/syncore-project/syncore/pkg/model"
)

// entryDTO is the wire representation of a FileEntry within an operation
// group, matching the JSON shape mandated for the remote sync endpoint.
type entryDTO struct {
	Path         string `json:"file_path"`
	Hash         string `json:"file_hash,omitempty"`
	Size         int64  `json:"file_size"`
	ModifiedTime int64  `json:"modified_time"`
}

func toDTO(e model.FileEntry) entryDTO {
	return entryDTO{
		Path:         e.Path,
		Hash:         e.Hash,
		Size:         int64(e.Size),
		ModifiedTime: e.Modified.UnixMilli(),
	}
}

// payload is the JSON object posted to the remote endpoint.
type payload struct {
	Insert []entryDTO `json:"insert"`
	Update []entryDTO `json:"update"`
	Delete []entryDTO `json:"delete"`
}

// Groups holds the three operation buckets the reconciler produces for a
// single reconciliation pass.
type Groups struct {
	Insert []model.FileEntry
	Update []model.FileEntry
	Delete []model.FileEntry
}

// Empty reports whether every bucket is empty.
func (g Groups) Empty() bool {
	return len(g.Insert) == 0 && len(g.Update) == 0 && len(g.Delete) == 0
}

func (g Groups) toPayload() payload {
	p := payload{
		Insert: make([]entryDTO, len(g.Insert)),
		Update: make([]entryDTO, len(g.Update)),
		Delete: make([]entryDTO, len(g.Delete)),
	}
	for i, e := range g.Insert {
		p.Insert[i] = toDTO(e)
	}
	for i, e := range g.Update {
		p.Update[i] = toDTO(e)
	}
	for i, e := range g.Delete {
		// Deletes carry no hash: the file no longer exists to be digested.
		dto := toDTO(e)
		dto.Hash = ""
		p.Delete[i] = dto
	}
	return p
}

func (g Groups) allFiles() []model.FileEntry {
	all := make([]model.FileEntry, 0, len(g.Insert)+len(g.Update))
	all = append(all, g.Insert...)
	all = append(all, g.Update...)
	return all
}

// Result carries the terminal status of a sync dispatch.
type Result struct {
	StatusCode int
	Body       string
}

// Uploader dispatches operation batches to a fixed remote endpoint.
type Uploader struct {
	endpoint       string
	client         *http.Client
	attachContents bool
}

// New creates an Uploader targeting endpoint. When attachContents is true,
// the multipart variant is used and file bodies are attached under the
// "files" field; otherwise a plain JSON POST is issued.
func New(endpoint string, attachContents bool) *Uploader {
	return &Uploader{
		endpoint:       endpoint,
		client:         http.DefaultClient,
		attachContents: attachContents,
	}
}

// Sync transmits groups to the remote endpoint and returns its terminal
// status. If every bucket in groups is empty, Sync returns immediately
// without making a network request.
func (u *Uploader) Sync(ctx context.Context, groups Groups) (Result, error) {
	if groups.Empty() {
		return Result{}, nil
	}

	if u.attachContents {
		return u.syncMultipart(ctx, groups)
	}
	return u.syncJSON(ctx, groups)
}

func (u *Uploader) syncJSON(ctx context.Context, groups Groups) (Result, error) {
	body, err := json.Marshal(groups.toPayload())
	if err != nil {
		return Result{}, errors.Wrap(err, "unable to encode sync payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, errors.Wrap(err, "unable to construct sync request")
	}
	req.Header.Set("Content-Type", "application/json")

	return u.do(req)
}

func (u *Uploader) syncMultipart(ctx context.Context, groups Groups) (Result, error) {
	encoded, err := json.Marshal(groups.toPayload())
	if err != nil {
		return Result{}, errors.Wrap(err, "unable to encode sync payload")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("payload", string(encoded)); err != nil {
		return Result{}, errors.Wrap(err, "unable to write payload field")
	}

	for _, entry := range groups.allFiles() {
		if err := attachFile(writer, entry.Path); err != nil {
			// A file that vanished between hashing and upload is a transient
			// condition, not a reason to abandon the whole batch: its entry
			// stays in the payload without a file part. If the file is
			// genuinely gone, the next reconciliation pass finds it missing
			// from disk and emits a Delete for it.
			continue
		}
	}

	if err := writer.Close(); err != nil {
		return Result{}, errors.Wrap(err, "unable to finalize multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return Result{}, errors.Wrap(err, "unable to construct sync request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return u.do(req)
}

func attachFile(writer *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := writer.CreatePart(fileHeader(filepath.Base(path)))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

func fileHeader(filename string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, filename))
	h.Set("Content-Type", "application/octet-stream")
	return h
}

func (u *Uploader) do(req *http.Request) (Result, error) {
	resp, err := u.client.Do(req)
	if err != nil {
		return Result{}, errors.Wrap(err, "sync request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{StatusCode: resp.StatusCode}, errors.Wrap(err, "unable to read sync response")
	}

	return Result{StatusCode: resp.StatusCode, Body: string(body)}, nil
}
