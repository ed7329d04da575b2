package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/crs4/moodle.omero-repository/internal/config"
	"github.com/crs4/moodle.omero-repository/internal/httpx"
	"github.com/crs4/moodle.omero-repository/internal/logging"
	"github.com/crs4/moodle.omero-repository/internal/metrics"
	"github.com/crs4/moodle.omero-repository/internal/models"
	"github.com/crs4/moodle.omero-repository/internal/router"
)

// Client performs authenticated requests against the OMERO server and
// decodes its JSON responses. Credentials are supplied per call and never
// stored across calls.
type Client struct {
	httpClient *http.Client
	baseURL    string
	dialect    router.Dialect
	timeout    time.Duration
	logger     *logging.Logger
}

// FileResult describes a file fetched to local storage.
type FileResult struct {
	Path string
	URL  string
}

// NewClient creates a client from the configuration store. The dialect and
// request timeout are fixed at construction.
func NewClient(cfg config.Store, logger *logging.Logger) (*Client, error) {
	base := strings.TrimSuffix(cfg.Value(config.KeyEndpoint), "/")
	if base == "" {
		return nil, fmt.Errorf("omero endpoint is empty")
	}

	timeoutSecs, _ := strconv.Atoi(cfg.Value(config.KeyRequestTimeout))

	return &Client{
		httpClient: httpx.NewRetryingClient(logger),
		baseURL:    base,
		dialect:    router.ForName(cfg.Value(config.KeyAPIDialect)),
		timeout:    time.Duration(timeoutSecs) * time.Second,
		logger:     logger.Component("api"),
	}, nil
}

// Dialect returns the remote URL grammar this client speaks.
func (c *Client) Dialect() router.Dialect {
	return c.dialect
}

// BaseURL returns the configured server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// withTimeout applies the configured per-call timeout. Zero means the call
// runs without a deadline of its own.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// doRequest performs one HTTP request with authentication. path may be
// server-relative or absolute.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, creds models.Credentials) (*http.Response, error) {
	ctx, cancel := c.withTimeout(ctx)

	reqURL := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		reqURL = c.baseURL + path
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost && body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if !creds.IsZero() {
		req.Header.Set("Authorization", "Bearer "+creds.AccessKey)
		if creds.AccessSecret != "" {
			req.Header.Set("X-Access-Secret", creds.AccessSecret)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RemoteRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		cancel()
		c.logger.Debug().Str("method", method).Str("path", path).Err(err).Msg("remote call failed")
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}

	// Tie the timeout to the response body lifetime.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// getJSON fetches path and decodes the response into out. Unknown JSON
// fields are ignored; a non-2xx status or malformed body is reported as
// ErrRemoteUnavailable.
func (c *Client) getJSON(ctx context.Context, path string, creds models.Credentials, out interface{}) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, creds)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return fmt.Errorf("%w: status %d for %s", ErrSourceGone, resp.StatusCode, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrRemoteUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", ErrRemoteUnavailable, err)
	}
	return nil
}

// FetchEntity resolves a single entity (project, dataset, image or tag) by
// its descriptor.
func (c *Client) FetchEntity(ctx context.Context, desc router.Descriptor, creds models.Credentials) (*models.Entity, error) {
	path := router.RequestURL(c.dialect, desc)
	if path == "" {
		return nil, fmt.Errorf("%w: no remote URL for kind %s", ErrRemoteUnavailable, desc.Kind)
	}
	var entity models.Entity
	if err := c.getJSON(ctx, path, creds, &entity); err != nil {
		return nil, err
	}
	if entity.Type == "" {
		entity.Type = defaultTypeFor(desc.Kind)
	}
	return &entity, nil
}

func defaultTypeFor(kind router.Kind) string {
	switch kind {
	case router.KindProject:
		return "Project"
	case router.KindDataset:
		return "Dataset"
	case router.KindImage:
		return "Image"
	case router.KindTag:
		return "Tag"
	}
	return ""
}

// ListProjects fetches the top-level project list.
func (c *Client) ListProjects(ctx context.Context, creds models.Credentials) (models.EntityList, error) {
	var list models.EntityList
	err := c.getJSON(ctx, c.dialect.ProjectListURL(), creds, &list)
	return list, err
}

// ListDatasets fetches the datasets of a project.
func (c *Client) ListDatasets(ctx context.Context, projectID int64, creds models.Credentials) (models.EntityList, error) {
	var list models.EntityList
	err := c.getJSON(ctx, c.dialect.DatasetListURL(projectID), creds, &list)
	return list, err
}

// ListImages fetches the images of a dataset.
func (c *Client) ListImages(ctx context.Context, datasetID int64, creds models.Credentials) (models.EntityList, error) {
	var list models.EntityList
	err := c.getJSON(ctx, c.dialect.ImageListURL(datasetID), creds, &list)
	return list, err
}

// ListTags fetches the annotation taxonomy.
func (c *Client) ListTags(ctx context.Context, creds models.Credentials) (models.EntityList, error) {
	var list models.EntityList
	err := c.getJSON(ctx, c.dialect.TagListURL(), creds, &list)
	return list, err
}

// ListTagImages fetches the images annotated with a tag.
func (c *Client) ListTagImages(ctx context.Context, tagID int64, creds models.Credentials) (models.EntityList, error) {
	var list models.EntityList
	err := c.getJSON(ctx, c.dialect.TagDetailURL(tagID), creds, &list)
	return list, err
}

// Search runs an annotation query and returns the matching entities.
func (c *Client) Search(ctx context.Context, query string, creds models.Credentials) (models.EntityList, error) {
	var list models.EntityList
	err := c.getJSON(ctx, c.dialect.AnnotationQueryURL(query), creds, &list)
	return list, err
}

// FetchImageDetail fetches an image's detail record, including its meta
// block (timestamp and author).
func (c *Client) FetchImageDetail(ctx context.Context, imageID int64, creds models.Credentials) (*models.Entity, error) {
	return c.FetchEntity(ctx, router.Descriptor{Kind: router.KindImage, ID: imageID}, creds)
}

// FetchThumbnail downloads rendered thumbnail bytes for an image.
func (c *Client) FetchThumbnail(ctx context.Context, imageID int64, height int) ([]byte, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, c.dialect.ThumbnailURL(imageID, height), nil, models.Credentials{})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: thumbnail status %d", ErrRemoteUnavailable, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return data, nil
}

// FetchFile downloads an externally referenced file to dst. On failure the
// partial file is removed.
func (c *Client) FetchFile(ctx context.Context, remotePath, dst string, creds models.Credentials) (*FileResult, error) {
	fileURL := c.baseURL + c.dialect.FileURL(remotePath)
	if err := c.downloadTo(ctx, fileURL, dst, creds); err != nil {
		return nil, err
	}
	return &FileResult{Path: dst, URL: fileURL}, nil
}

// DownloadURL fetches an absolute URL (typically a share link) to dst.
func (c *Client) DownloadURL(ctx context.Context, absURL, dst string) error {
	return c.downloadTo(ctx, absURL, dst, models.Credentials{})
}

func (c *Client) downloadTo(ctx context.Context, fileURL, dst string, creds models.Credentials) error {
	resp, err := c.doRequest(ctx, http.MethodGet, fileURL, nil, creds)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return fmt.Errorf("%w: status %d", ErrSourceGone, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: download status %d", ErrRemoteUnavailable, resp.StatusCode)
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dst, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dst)
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return f.Close()
}

// ProbeSize issues a HEAD-style request for an absolute URL and returns the
// declared content length, or -1 when the server does not report one.
func (c *Client) ProbeSize(ctx context.Context, absURL string) (int64, error) {
	resp, err := c.doRequest(ctx, http.MethodHead, absURL, nil, models.Credentials{})
	if err != nil {
		return -1, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return -1, fmt.Errorf("%w: status %d", ErrSourceGone, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return -1, fmt.Errorf("%w: probe status %d", ErrRemoteUnavailable, resp.StatusCode)
	}
	return resp.ContentLength, nil
}

// FetchShareLink asks the server for a durable public URL for a remote file
// path. A missing link is returned as "", not an error.
func (c *Client) FetchShareLink(ctx context.Context, remotePath string, creds models.Credentials) (string, error) {
	form := url.Values{"short_url": {"0"}}
	resp, err := c.doRequest(ctx, http.MethodPost,
		c.dialect.ShareLinkURL(remotePath), strings.NewReader(form.Encode()), creds)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: share status %d", ErrRemoteUnavailable, resp.StatusCode)
	}

	var result struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: malformed share response: %v", ErrRemoteUnavailable, err)
	}
	return result.URL, nil
}
