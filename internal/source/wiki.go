package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/seanblong/docschat/pkg/models"
)

const pageLimit = 50

// WikiClient fetches pages from a Confluence-style wiki REST API, paginating
// space listings and retrying transient failures.
type WikiClient struct {
	baseURL  string
	username string
	apiToken string
	spaces   []string
	http     *http.Client
}

// NewWikiClient creates a client for the given wiki. spaces lists the space
// keys AllPages iterates.
func NewWikiClient(baseURL, username, apiToken string, spaces []string) *WikiClient {
	return &WikiClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		apiToken: apiToken,
		spaces:   spaces,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// wire types for the wiki content API

type contentList struct {
	Results []contentItem `json:"results"`
	Size    int           `json:"size"`
}

type contentItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Space struct {
		Key string `json:"key"`
	} `json:"space"`
	Body struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Version struct {
		When time.Time `json:"when"`
		By   struct {
			DisplayName string `json:"displayName"`
		} `json:"by"`
	} `json:"version"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

// AllPages fetches every page of every configured space.
func (w *WikiClient) AllPages(ctx context.Context) ([]models.Page, error) {
	var pages []models.Page
	for _, space := range w.spaces {
		sp, err := w.pagesInSpace(ctx, space)
		if err != nil {
			return nil, fmt.Errorf("space %s: %w", space, err)
		}
		pages = append(pages, sp...)
	}
	return pages, nil
}

func (w *WikiClient) pagesInSpace(ctx context.Context, spaceKey string) ([]models.Page, error) {
	var pages []models.Page
	start := 0
	for {
		q := url.Values{}
		q.Set("spaceKey", spaceKey)
		q.Set("type", "page")
		q.Set("start", strconv.Itoa(start))
		q.Set("limit", strconv.Itoa(pageLimit))
		q.Set("expand", "body.storage,version,space")

		var list contentList
		if err := w.get(ctx, "/rest/api/content?"+q.Encode(), &list); err != nil {
			return nil, err
		}
		for _, item := range list.Results {
			pages = append(pages, w.toPage(item, spaceKey))
		}
		if len(list.Results) < pageLimit {
			break
		}
		start += pageLimit
	}
	return pages, nil
}

// UpdatedPagesSince fetches pages in one space modified at or after since,
// via a CQL search.
func (w *WikiClient) UpdatedPagesSince(ctx context.Context, spaceKey string, since time.Time) ([]models.Page, error) {
	cql := fmt.Sprintf(`space = %q AND type = page AND lastModified >= %q`,
		spaceKey, since.Format("2006-01-02"))

	var pages []models.Page
	start := 0
	for {
		q := url.Values{}
		q.Set("cql", cql)
		q.Set("start", strconv.Itoa(start))
		q.Set("limit", strconv.Itoa(pageLimit))
		q.Set("expand", "body.storage,version,space")

		var list contentList
		if err := w.get(ctx, "/rest/api/content/search?"+q.Encode(), &list); err != nil {
			return nil, err
		}
		for _, item := range list.Results {
			pages = append(pages, w.toPage(item, spaceKey))
		}
		if len(list.Results) < pageLimit {
			break
		}
		start += pageLimit
	}
	return pages, nil
}

// PageByID fetches a single page. A 404 is reported as ok=false.
func (w *WikiClient) PageByID(ctx context.Context, id string) (models.Page, bool, error) {
	q := url.Values{}
	q.Set("expand", "body.storage,version,space")

	var item contentItem
	err := w.get(ctx, "/rest/api/content/"+url.PathEscape(id)+"?"+q.Encode(), &item)
	if err != nil {
		if errStatus(err) == http.StatusNotFound {
			return models.Page{}, false, nil
		}
		return models.Page{}, false, err
	}
	return w.toPage(item, item.Space.Key), true, nil
}

func (w *WikiClient) toPage(item contentItem, spaceKey string) models.Page {
	pageURL := w.baseURL + item.Links.WebUI
	return models.Page{
		ID:           item.ID,
		Title:        item.Title,
		SpaceKey:     spaceKey,
		URL:          pageURL,
		HTMLContent:  item.Body.Storage.Value,
		LastModified: item.Version.When,
		Author:       item.Version.By.DisplayName,
	}
}

// statusError marks HTTP failures so callers can tell not-found apart from
// transport errors.
type statusError struct {
	status int
	url    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("wiki request %s returned status %d", e.url, e.status)
}

func errStatus(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}
	return 0
}

// get performs one authenticated GET with exponential-backoff retries on
// transport errors and 5xx responses. 4xx responses are permanent.
func (w *WikiClient) get(ctx context.Context, path string, into any) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.SetBasicAuth(w.username, w.apiToken)
		req.Header.Set("Accept", "application/json")

		resp, err := w.http.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				log.Warn().Err(err).Msg("closing wiki response body")
			}
		}()

		if resp.StatusCode >= 500 {
			return &statusError{status: resp.StatusCode, url: path}
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(&statusError{status: resp.StatusCode, url: path})
		}
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			return backoff.Permanent(fmt.Errorf("decode wiki response: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	return backoff.Retry(op, policy)
}
