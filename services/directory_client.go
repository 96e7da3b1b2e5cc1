package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andre-fig/backoffice/db"
)

const directoryScanPageSize = 100

// DirectoryClient talks to the external user directory over HTTP.
// The bearer token is provisioned out of band.
type DirectoryClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewDirectoryClient creates a new directory client
func NewDirectoryClient(baseURL, token string, timeout time.Duration) *DirectoryClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DirectoryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ Directory = (*DirectoryClient)(nil)

// doRequest performs an authenticated GET and decodes the JSON body into out
func (c *DirectoryClient) doRequest(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	target := c.baseURL + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call directory: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read directory response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: directory %s", ErrNotFound, endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("directory error: status %d, body: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse directory response: %w", err)
	}
	return nil
}

// GetUser fetches a full user profile
func (c *DirectoryClient) GetUser(ctx context.Context, userID string) (*db.DirectoryUser, error) {
	var user db.DirectoryUser
	if err := c.doRequest(ctx, "/admin/users/"+url.PathEscape(userID), nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return &user, nil
}

// ListUsers fetches one page of the user listing
func (c *DirectoryClient) ListUsers(ctx context.Context, q db.DirectoryUserQuery) (*db.DirectoryUserPage, error) {
	params := url.Values{}
	if q.Filter != "" {
		params.Set("filter", q.Filter)
	}
	if q.PerPage > 0 {
		params.Set("perPage", strconv.Itoa(q.PerPage))
	}
	if q.Direction != "" {
		params.Set("direction", q.Direction)
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}

	var page db.DirectoryUserPage
	if err := c.doRequest(ctx, "/admin/users", params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// MatchesApplication reports whether the user's messaging identity belongs to appID
func (c *DirectoryClient) MatchesApplication(ctx context.Context, userID, appID string) (bool, error) {
	var identity db.MessagingIdentity
	err := c.doRequest(ctx, "/admin/users/"+url.PathEscape(userID)+"/messaging-identity", nil, &identity)
	if err != nil {
		return false, err
	}
	return identity.AppID != "" && identity.AppID == appID, nil
}

// FindUserBySector walks the whole directory until a member of sectorCode is found.
// Cost grows with directory size, CachedDirectory keeps an index instead.
func (c *DirectoryClient) FindUserBySector(ctx context.Context, sectorCode, exclude string) (*db.DirectoryUser, error) {
	var found *db.DirectoryUser
	err := c.EachUser(ctx, func(user *db.DirectoryUser) bool {
		if user.ID != exclude && user.HasSector(sectorCode) {
			found = user
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: no user in sector %s", ErrNotFound, sectorCode)
	}
	return found, nil
}

// EachUser pages through the listing and fetches every profile until fn returns false
func (c *DirectoryClient) EachUser(ctx context.Context, fn func(*db.DirectoryUser) bool) error {
	q := db.DirectoryUserQuery{PerPage: directoryScanPageSize}
	for {
		page, err := c.ListUsers(ctx, q)
		if err != nil {
			return err
		}

		for _, summary := range page.Data {
			user, err := c.GetUser(ctx, summary.ID)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// A user deleted mid-scan is not fatal
				continue
			}
			if !fn(user) {
				return nil
			}
		}

		if !page.Meta.HasNextPage || page.Meta.Next == nil || *page.Meta.Next == "" {
			return nil
		}
		q.Cursor = *page.Meta.Next
	}
}
