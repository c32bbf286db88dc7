package gateway

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/CrestNiraj12/nwitter/domain"
)

// BlobStore implements app.BlobStore over the gateway's file storage.
type BlobStore struct {
	client *Client
}

func NewBlobStore(client *Client) *BlobStore {
	return &BlobStore{client: client}
}

func blobPath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return "/v1/blobs/" + strings.Join(parts, "/")
}

// Upload PUTs the raw bytes, overwriting any blob at path.
func (s *BlobStore) Upload(ctx context.Context, path string, photo domain.Photo) (string, error) {
	contentType := photo.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(photo.Data)
	}
	var resp BlobResponse
	err := s.client.do(ctx, "upload", http.MethodPut, blobPath(path), contentType, bytes.NewReader(photo.Data), &resp)
	if err != nil {
		return "", err
	}
	return resp.Ref, nil
}

func (s *BlobStore) DownloadURL(ctx context.Context, ref string) (string, error) {
	var resp URLResponse
	q := url.Values{"ref": {ref}}.Encode()
	if err := s.client.doJSON(ctx, "download url", http.MethodGet, "/v1/blob-url?"+q, nil, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (s *BlobStore) Delete(ctx context.Context, path string) error {
	return s.client.doJSON(ctx, "delete blob", http.MethodDelete, blobPath(path), nil, nil)
}

// Verifier implements app.Verifier by asking the gateway for a one-time
// verification token.
type Verifier struct {
	client *Client
}

func NewVerifier(client *Client) *Verifier {
	return &Verifier{client: client}
}

func (v *Verifier) Token(ctx context.Context) (string, error) {
	var resp VerificationResponse
	if err := v.client.doJSON(ctx, "verification", http.MethodPost, "/v1/verification", nil, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}
