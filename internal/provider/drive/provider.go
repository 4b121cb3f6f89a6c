// Package drive adapts the Google Drive v2 REST API to the provider
// contract. Uploads use Drive's three-step resumable protocol even for
// small files, matching what the upload service does.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/openscholar/platform/internal/common"
	"github.com/openscholar/platform/internal/provider"
)

const (
	defaultBaseURL   = "https://www.googleapis.com/drive/v2"
	defaultUploadURL = "https://www.googleapis.com/upload/drive/v2"

	folderMimeType = "application/vnd.google-apps.folder"

	// Google-native documents carry no downloadUrl; they are fetched
	// through an export link instead.
	exportMimeType = "application/pdf"
)

// Provider talks to one Drive account with a bearer token.
type Provider struct {
	token     string
	baseURL   string
	uploadURL string
	http      *http.Client
}

// Option tweaks a Provider; used by tests to point at a local server.
type Option func(*Provider)

func WithBaseURL(base, upload string) Option {
	return func(p *Provider) {
		p.baseURL = base
		p.uploadURL = upload
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.http = c }
}

func New(token string, opts ...Option) *Provider {
	p := &Provider{
		token:     token,
		baseURL:   defaultBaseURL,
		uploadURL: defaultUploadURL,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ provider.Provider = (*Provider)(nil)

type driveItem struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	MimeType    string            `json:"mimeType"`
	FileSize    string            `json:"fileSize"`
	DownloadURL string            `json:"downloadUrl"`
	ExportLinks map[string]string `json:"exportLinks"`
}

func (it *driveItem) toFileInfo() *provider.FileInfo {
	size, _ := strconv.ParseInt(it.FileSize, 10, 64)
	return &provider.FileInfo{
		ID:       it.ID,
		Name:     it.Title,
		MimeType: it.MimeType,
		Size:     size,
		IsFolder: it.MimeType == folderMimeType,
	}
}

func (p *Provider) do(ctx context.Context, method, rawURL string, header http.Header, body io.Reader, wantStatus int) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("drive request failed: %w", err)
	}
	if resp.StatusCode != wantStatus {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("drive returned %s for %s %s", resp.Status, method, rawURL)
	}
	return resp, nil
}

func (p *Provider) getJSON(ctx context.Context, rawURL string, out any) error {
	resp, err := p.do(ctx, http.MethodGet, rawURL, nil, nil, http.StatusOK)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (p *Provider) getItem(ctx context.Context, fileID string) (*driveItem, error) {
	item := &driveItem{}
	if err := p.getJSON(ctx, p.baseURL+"/files/"+url.PathEscape(fileID), item); err != nil {
		return nil, err
	}
	return item, nil
}

// Download fetches the file's bytes, falling back to the PDF export link for
// Google-native documents that have no direct download URL.
func (p *Provider) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	item, err := p.getItem(ctx, fileID)
	if err != nil {
		return nil, err
	}

	downloadURL := item.DownloadURL
	if downloadURL == "" {
		downloadURL = item.ExportLinks[exportMimeType]
	}
	if downloadURL == "" {
		return nil, fmt.Errorf("file %s has no downloadable content: %w", fileID, common.ErrNotFound)
	}

	resp, err := p.do(ctx, http.MethodGet, downloadURL, nil, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Upload pushes content under folderID via the resumable protocol: open a
// session, read the session URI from the Location header, then PUT the bytes.
func (p *Provider) Upload(ctx context.Context, folderID, name string, content io.Reader, size int64) (*provider.FileInfo, bool, error) {
	created := false
	if _, err := p.Metadata(ctx, folderID, name); errors.Is(err, common.ErrNotFound) {
		created = true
	} else if err != nil {
		return nil, false, err
	}

	meta, err := json.Marshal(map[string]any{
		"parents": []map[string]string{{"kind": "drive#parentReference", "id": folderID}},
		"title":   name,
	})
	if err != nil {
		return nil, false, err
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json; charset=UTF-8")
	header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))

	sessURL := p.uploadURL + "/files?uploadType=resumable"
	resp, err := p.do(ctx, http.MethodPost, sessURL, header, bytes.NewReader(meta), http.StatusOK)
	if err != nil {
		return nil, false, fmt.Errorf("open upload session: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, false, errors.New("upload session returned no location")
	}
	uploadID, err := uploadIDFromLocation(location)
	if err != nil {
		return nil, false, err
	}

	putURL := p.uploadURL + "/files?uploadType=resumable&upload_id=" + url.QueryEscape(uploadID)
	putHeader := http.Header{}
	putHeader.Set("Content-Length", strconv.FormatInt(size, 10))
	putResp, err := p.do(ctx, http.MethodPut, putURL, putHeader, content, http.StatusOK)
	if err != nil {
		return nil, false, fmt.Errorf("upload content: %w", err)
	}
	defer putResp.Body.Close()

	item := &driveItem{}
	if err := json.NewDecoder(putResp.Body).Decode(item); err != nil {
		return nil, false, err
	}
	return item.toFileInfo(), created, nil
}

func uploadIDFromLocation(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("malformed upload session location: %w", err)
	}
	id := u.Query().Get("upload_id")
	if id == "" {
		return "", fmt.Errorf("upload session location %q carries no upload_id", location)
	}
	return id, nil
}

// Metadata resolves a file by title within a folder.
func (p *Provider) Metadata(ctx context.Context, folderID, name string) (*provider.FileInfo, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false and title = '%s'", folderID, name)
	listURL := p.baseURL + "/files?alt=json&q=" + url.QueryEscape(query)

	var out struct {
		Items []*driveItem `json:"items"`
	}
	if err := p.getJSON(ctx, listURL, &out); err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, common.ErrNotFound
	}
	return out.Items[0].toFileInfo(), nil
}

// List returns the folder's direct, non-trashed children.
func (p *Provider) List(ctx context.Context, folderID string) ([]*provider.FileInfo, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false", folderID)
	listURL := p.baseURL + "/files?alt=json&q=" + url.QueryEscape(query)

	var out struct {
		Items []*driveItem `json:"items"`
	}
	if err := p.getJSON(ctx, listURL, &out); err != nil {
		return nil, err
	}

	infos := make([]*provider.FileInfo, 0, len(out.Items))
	for _, it := range out.Items {
		infos = append(infos, it.toFileInfo())
	}
	return infos, nil
}

// Delete removes the file. The lookup first confirms the id still resolves,
// so deleting a vanished file reports not-found rather than silently passing.
func (p *Provider) Delete(ctx context.Context, fileID string) error {
	if _, err := p.getItem(ctx, fileID); err != nil {
		return err
	}

	resp, err := p.do(ctx, http.MethodDelete, p.baseURL+"/files/"+url.PathEscape(fileID), nil, nil, http.StatusNoContent)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Revisions lists the file's revisions newest first (Drive reports oldest
// first).
func (p *Provider) Revisions(ctx context.Context, fileID string) ([]*provider.Revision, error) {
	var out struct {
		Items []struct {
			ID           string    `json:"id"`
			ModifiedDate time.Time `json:"modifiedDate"`
		} `json:"items"`
	}
	if err := p.getJSON(ctx, p.baseURL+"/files/"+url.PathEscape(fileID)+"/revisions", &out); err != nil {
		return nil, err
	}

	revs := make([]*provider.Revision, 0, len(out.Items))
	for i := len(out.Items) - 1; i >= 0; i-- {
		revs = append(revs, &provider.Revision{ID: out.Items[i].ID, Modified: out.Items[i].ModifiedDate})
	}
	return revs, nil
}
