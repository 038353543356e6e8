package disk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vemelin055/background-remover/internal/domain"
	"github.com/vemelin055/background-remover/internal/infra"
)

// ErrMissingToken indicates that the client was configured without an OAuth token.
var ErrMissingToken = errors.New("disk: oauth token is required")

const defaultBaseURL = "https://cloud-api.yandex.net/v1"

// Options configures the Yandex Disk resource client.
type Options struct {
	Token   string
	BaseURL string
	// MetadataClient serves listing/link calls; PayloadClient serves
	// image download/upload traffic and follows redirects.
	MetadataClient  *http.Client
	PayloadClient   *http.Client
	MetadataTimeout time.Duration
	PayloadTimeout  time.Duration
	Logger          *infra.Logger
}

// Client performs HTTP calls to the Yandex Disk resource API.
type Client struct {
	token    string
	baseURL  string
	metaHTTP *http.Client
	dataHTTP *http.Client
	logger   *infra.Logger
}

// Resource is one entry of a directory listing.
type Resource struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	MIMEType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// IsDir reports whether the resource is a directory.
func (r Resource) IsDir() bool { return r.Type == "dir" }

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tiff": true,
}

// IsImage reports whether the resource looks like a raster image, by
// mime-type when the API provides one, by extension otherwise.
func (r Resource) IsImage() bool {
	if r.Type != "file" {
		return false
	}
	if strings.HasPrefix(r.MIMEType, "image/") {
		return true
	}
	return imageExtensions[strings.ToLower(path.Ext(r.Name))]
}

// AccountInfo describes the authenticated Yandex Disk account.
type AccountInfo struct {
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
	TotalSpace  int64  `json:"total_space"`
	UsedSpace   int64  `json:"used_space"`
}

type listResponse struct {
	Embedded struct {
		Items []Resource `json:"items"`
	} `json:"_embedded"`
}

type linkResponse struct {
	Href string `json:"href"`
}

type apiErrorResponse struct {
	Message     string `json:"message"`
	Description string `json:"description"`
	ErrorCode   string `json:"error"`
}

// New constructs a client with sane defaults and injected dependencies.
func New(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, ErrMissingToken
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	metaHTTP := opts.MetadataClient
	if metaHTTP == nil {
		timeout := opts.MetadataTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		metaHTTP = &http.Client{Timeout: timeout}
	}
	dataHTTP := opts.PayloadClient
	if dataHTTP == nil {
		timeout := opts.PayloadTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		dataHTTP = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.New(io.Discard))
		logger = &discard
	}
	return &Client{
		token:    token,
		baseURL:  baseURL,
		metaHTTP: metaHTTP,
		dataHTTP: dataHTTP,
		logger:   logger,
	}, nil
}

// List returns the immediate children of a private disk path.
func (c *Client) List(ctx context.Context, diskPath string) ([]Resource, error) {
	q := url.Values{"path": {diskPath}, "limit": {"1000"}}
	var decoded listResponse
	if err := c.getJSON(ctx, "/disk/resources", q, "list "+diskPath, &decoded); err != nil {
		return nil, err
	}
	return decoded.Embedded.Items, nil
}

// ListPublic returns the immediate children of a path inside a public share.
// An empty path addresses the share root.
func (c *Client) ListPublic(ctx context.Context, publicKey, subPath string) ([]Resource, error) {
	q := url.Values{"public_key": {publicKey}, "limit": {"1000"}}
	if subPath != "" {
		q.Set("path", subPath)
	}
	var decoded listResponse
	if err := c.getJSON(ctx, "/disk/public/resources", q, "list public "+publicKey, &decoded); err != nil {
		return nil, err
	}
	return decoded.Embedded.Items, nil
}

// DownloadLink resolves the short-lived download href for a private path.
func (c *Client) DownloadLink(ctx context.Context, diskPath string) (string, error) {
	q := url.Values{"path": {diskPath}}
	var decoded linkResponse
	if err := c.getJSON(ctx, "/disk/resources/download", q, "download link "+diskPath, &decoded); err != nil {
		return "", err
	}
	return decoded.Href, nil
}

// PublicDownloadLink resolves the download href for a file inside a public share.
func (c *Client) PublicDownloadLink(ctx context.Context, publicKey, subPath string) (string, error) {
	q := url.Values{"public_key": {publicKey}}
	if subPath != "" {
		q.Set("path", subPath)
	}
	var decoded linkResponse
	if err := c.getJSON(ctx, "/disk/public/resources/download", q, "public download link", &decoded); err != nil {
		return "", err
	}
	return decoded.Href, nil
}

// Download fetches the payload behind a previously resolved href,
// following redirects.
func (c *Client) Download(ctx context.Context, href string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, "", fmt.Errorf("disk: build download request: %w", err)
	}
	resp, err := c.dataHTTP.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("disk: download: %w", errors.Join(domain.ErrDownloadFailed, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("disk: download status %d: %w", resp.StatusCode, domain.ErrDownloadFailed)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("disk: read download: %w", errors.Join(domain.ErrDownloadFailed, err))
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}
	return data, mime, nil
}

// Upload writes data to a private disk path, overwriting any existing file.
func (c *Client) Upload(ctx context.Context, diskPath string, data []byte, mime string) error {
	q := url.Values{"path": {diskPath}, "overwrite": {"true"}}
	var decoded linkResponse
	if err := c.getJSON(ctx, "/disk/resources/upload", q, "upload link "+diskPath, &decoded); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, decoded.Href, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("disk: build upload request: %w", err)
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	req.Header.Set("Content-Type", mime)
	resp, err := c.dataHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("disk: upload: %w", errors.Join(domain.ErrUploadFailed, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("disk: upload status %d: %w", resp.StatusCode, domain.ErrUploadFailed)
	}
	c.logger.Debug().Str("path", diskPath).Int("bytes", len(data)).Msg("disk: uploaded file")
	return nil
}

// CreateDir creates a directory. A directory that already exists is success.
func (c *Client) CreateDir(ctx context.Context, diskPath string) error {
	endpoint := c.baseURL + "/disk/resources?" + url.Values{"path": {diskPath}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return fmt.Errorf("disk: build create request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+c.token)
	resp, err := c.metaHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("disk: create dir: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusCreated, http.StatusAccepted, http.StatusConflict:
		return nil
	}
	raw, _ := io.ReadAll(resp.Body)
	return c.apiError("create dir "+diskPath, resp.StatusCode, raw)
}

// AccountInfo returns quota and user information for the token's account.
func (c *Client) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	var decoded struct {
		TotalSpace int64 `json:"total_space"`
		UsedSpace  int64 `json:"used_space"`
		User       struct {
			Login       string `json:"login"`
			DisplayName string `json:"display_name"`
		} `json:"user"`
	}
	if err := c.getJSON(ctx, "/disk", nil, "account info", &decoded); err != nil {
		return nil, err
	}
	return &AccountInfo{
		Login:       decoded.User.Login,
		DisplayName: decoded.User.DisplayName,
		TotalSpace:  decoded.TotalSpace,
		UsedSpace:   decoded.UsedSpace,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, apiPath string, q url.Values, op string, out any) error {
	endpoint := c.baseURL + apiPath
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("disk: build request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+c.token)
	resp, err := c.metaHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("disk: %s: %w", op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("disk: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return c.apiError(op, resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("disk: decode response: %w", err)
	}
	return nil
}

func (c *Client) apiError(op string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var decoded apiErrorResponse
	if err := json.Unmarshal(body, &decoded); err == nil {
		if decoded.Message != "" {
			msg = decoded.Message
		} else if decoded.Description != "" {
			msg = decoded.Description
		}
	}
	failure := domain.NewFailure(status, "disk: %s: %s", op, msg)
	var kind error
	switch status {
	case http.StatusUnauthorized:
		kind = domain.ErrAuthenticationInvalid
	case http.StatusForbidden:
		kind = domain.ErrUpstreamForbidden
	case http.StatusNotFound:
		kind = domain.ErrUpstreamNotFound
	case http.StatusTooManyRequests, http.StatusMethodNotAllowed:
		kind = domain.ErrUpstreamRateLimited
	}
	if kind != nil {
		return errors.Join(failure, kind)
	}
	return failure
}

var publicKeyPattern = regexp.MustCompile(`/d/([^/?#]+)`)

// ParsePublicKey extracts the share identifier from a public folder URL of
// the form https://disk.yandex.ru/d/<id>. A bare identifier passes through.
func ParsePublicKey(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", domain.NewFailure(400, "public share URL is required")
	}
	if !strings.Contains(raw, "/") {
		return raw, nil
	}
	if m := publicKeyPattern.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}
	return "", domain.NewFailure(400, "invalid Yandex Disk URL: %s", raw)
}
