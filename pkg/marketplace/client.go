package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/config"
	"github.com/spf13/afero"
)

const (
	maxPageSize       = 100
	downloadChunkSize = 8192

	jsonRequestTimeout = 30 * time.Second
	downloadTimeout    = 60 * time.Second
)

// StatusError reports a non-2xx response after retries were exhausted or
// for codes that are not retried at all.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("marketplace returned HTTP %d for %s", e.StatusCode, e.URL)
}

// ProgressFunc receives byte counters while a binary download streams to
// disk. total is -1 when the server sent no Content-Length.
type ProgressFunc func(downloaded, total int64)

// BinaryResult describes one finished streamed download.
type BinaryResult struct {
	BytesWritten  int64
	ContentLength int64
}

// Client talks to the Atlassian Marketplace REST API v2. Every JSON call
// goes through the shared rate limiter and a bounded retry loop; binary
// downloads stream straight to the injected filesystem and leave retrying
// to the download manager.
type Client struct {
	baseURL         string
	downloadBaseURL string
	username        string
	apiToken        string

	limiter    *RateLimiter
	maxRetries int

	httpClient     *http.Client
	downloadClient *http.Client
	fs             afero.Fs

	backoff func(attempt int)
}

func NewClient(cfg config.Settings, fs afero.Fs) *Client {
	return &Client{
		baseURL:         cfg.MarketplaceAPIBaseURL,
		downloadBaseURL: cfg.MarketplaceBaseURL,
		username:        cfg.MarketplaceUsername,
		apiToken:        cfg.MarketplaceAPIToken,
		limiter:         NewRateLimiter(cfg.RequestDelay),
		maxRetries:      cfg.MaxRetryAttempts,
		httpClient:      &http.Client{Timeout: jsonRequestTimeout},
		downloadClient:  &http.Client{Timeout: downloadTimeout},
		fs:              fs,
		backoff: func(attempt int) {
			time.Sleep(time.Duration(1<<attempt) * time.Second)
		},
	}
}

// RateLimiter exposes the shared limiter so collaborators throttle through
// the same instance.
func (c *Client) RateLimiter() *RateLimiter { return c.limiter }

// getJSON performs one rate-limited GET with retries. 429 and 5xx responses
// and transport failures are retried up to maxRetries times with 2^attempt
// seconds of backoff; other 4xx codes fail immediately.
func (c *Client) getJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	requestURL := rawURL
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	for attempt := 0; ; attempt++ {
		c.limiter.WaitIfNeeded()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if c.username != "" && c.apiToken != "" {
			req.SetBasicAuth(c.username, c.apiToken)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() == nil && attempt < c.maxRetries {
				log.Printf("[marketplace] request error, retrying in %ds (attempt %d/%d): %v",
					1<<attempt, attempt+1, c.maxRetries, err)
				c.backoff(attempt)
				continue
			}
			return fmt.Errorf("request failed for %s: %w", rawURL, err)
		}

		c.limiter.AdaptiveDelay(resp.StatusCode)

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			resp.Body.Close()
			if attempt < c.maxRetries {
				log.Printf("[marketplace] HTTP %d, retrying in %ds (attempt %d/%d)",
					resp.StatusCode, 1<<attempt, attempt+1, c.maxRetries)
				c.backoff(attempt)
				continue
			}
			return &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
		case resp.StatusCode >= 400:
			// Permanent client error, not worth retrying.
			resp.Body.Close()
			return &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response from %s: %w", rawURL, err)
		}
		return nil
	}
}

// SearchApps fetches one page of addon search results. A failed search is
// logged and yields an empty page so sweep loops can treat it as
// "no more results".
func (c *Client) SearchApps(ctx context.Context, hosting, application string, offset, limit int, cost string) *AddonPage {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(clampLimit(limit)))
	if hosting != "" {
		params.Set("hosting", hosting)
	}
	if application != "" {
		params.Set("application", application)
	}
	if cost != "" {
		params.Set("cost", cost)
	}

	log.Printf("[marketplace] searching apps: hosting=%s application=%s offset=%d limit=%d",
		hosting, application, offset, limit)

	var page AddonPage
	if err := c.getJSON(ctx, c.baseURL+"/addons", params, &page); err != nil {
		log.Printf("[marketplace] search failed: %v", err)
		return &AddonPage{}
	}
	return &page
}

// GetAppDetails fetches a single addon with its latest version embedded.
// Returns nil when the addon cannot be fetched.
func (c *Client) GetAppDetails(ctx context.Context, addonKey string) *Addon {
	params := url.Values{}
	params.Set("withVersion", "true")

	var addon Addon
	if err := c.getJSON(ctx, c.baseURL+"/addons/"+addonKey, params, &addon); err != nil {
		log.Printf("[marketplace] get details failed for %s: %v", addonKey, err)
		return nil
	}
	return &addon
}

// GetAppVersions fetches one page of an addon's version history. A failed
// fetch is logged and yields an empty page.
func (c *Client) GetAppVersions(ctx context.Context, addonKey string, offset, limit int) *VersionPage {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(clampLimit(limit)))

	var page VersionPage
	if err := c.getJSON(ctx, c.baseURL+"/addons/"+addonKey+"/versions", params, &page); err != nil {
		log.Printf("[marketplace] get versions failed for %s: %v", addonKey, err)
		return &VersionPage{}
	}
	return &page
}

// GetAllAppVersions pages through the whole version history of an addon.
// The offset advances by the number of versions actually received, so the
// sweep terminates even if the server repeats a page or keeps advertising a
// next link.
func (c *Client) GetAllAppVersions(ctx context.Context, addonKey string) []VersionInfo {
	var all []VersionInfo
	offset := 0

	for {
		page := c.GetAppVersions(ctx, addonKey, offset, maxPageSize)
		versions := page.Versions()
		if len(versions) == 0 {
			break
		}
		all = append(all, versions...)
		if page.Links.Next == nil {
			break
		}
		offset += len(versions)
	}

	log.Printf("[marketplace] retrieved %d total versions for %s", len(all), addonKey)
	return all
}

// GetDownloadURL constructs the binary download URL for a version. The
// version id is preferred; the build number pattern is a less reliable
// fallback. Returns "" when neither identifier is available.
func (c *Client) GetDownloadURL(addonKey, versionID, buildNumber string) string {
	switch {
	case versionID != "":
		return fmt.Sprintf("%s/download/apps/%s/version/%s", c.downloadBaseURL, addonKey, versionID)
	case buildNumber != "":
		return fmt.Sprintf("%s/download/apps/%s/version/%s", c.downloadBaseURL, addonKey, buildNumber)
	default:
		log.Printf("[marketplace] cannot construct download URL for %s: no version id or build number", addonKey)
		return ""
	}
}

// DownloadBinary streams one binary to savePath in fixed-size chunks,
// reporting progress along the way. It makes a single attempt; retrying
// and integrity checking belong to the caller.
func (c *Client) DownloadBinary(ctx context.Context, downloadURL, savePath string, progress ProgressFunc) (BinaryResult, error) {
	c.limiter.WaitIfNeeded()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return BinaryResult{}, err
	}
	if c.username != "" && c.apiToken != "" {
		req.SetBasicAuth(c.username, c.apiToken)
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return BinaryResult{}, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return BinaryResult{}, &StatusError{StatusCode: resp.StatusCode, URL: downloadURL}
	}

	f, err := c.fs.Create(savePath)
	if err != nil {
		return BinaryResult{}, fmt.Errorf("create %s: %w", savePath, err)
	}

	result := BinaryResult{ContentLength: resp.ContentLength}
	buf := make([]byte, downloadChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				f.Close()
				return result, fmt.Errorf("write %s: %w", savePath, writeErr)
			}
			result.BytesWritten += int64(n)
			if progress != nil {
				progress(result.BytesWritten, result.ContentLength)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			return result, fmt.Errorf("stream from %s: %w", downloadURL, readErr)
		}
	}

	if err := f.Close(); err != nil {
		return result, fmt.Errorf("close %s: %w", savePath, err)
	}

	log.Printf("[marketplace] downloaded %d bytes to %s", result.BytesWritten, savePath)
	return result, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
