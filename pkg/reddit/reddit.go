// Package reddit fetches public profile data from Reddit's JSON endpoints.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultBaseURL = "https://www.reddit.com"

// Client talks to the public reddit.com JSON API. No authentication is
// required for public profile data, only a descriptive User-Agent.
type Client struct {
	// BaseURL may be overridden in tests.
	BaseURL   string
	UserAgent string

	http *http.Client
}

// NewClient creates a Reddit client.
func NewClient(userAgent string) *Client {
	if userAgent == "" {
		userAgent = "redwatch/1.0"
	}
	return &Client{
		BaseURL:   defaultBaseURL,
		UserAgent: userAgent,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

// About is the profile payload behind /user/<name>/about.json.
type About struct {
	Name             string  `json:"name"`
	LinkKarma        int     `json:"link_karma"`
	CommentKarma     int     `json:"comment_karma"`
	TotalKarma       int     `json:"total_karma"`
	CreatedUTC       float64 `json:"created_utc"`
	IsGold           bool    `json:"is_gold"`
	IsMod            bool    `json:"is_mod"`
	HasVerifiedEmail bool    `json:"has_verified_email"`
}

// Created returns the account creation time, or the zero time when the
// payload carried none.
func (a *About) Created() time.Time {
	if a.CreatedUTC == 0 {
		return time.Time{}
	}
	return time.Unix(int64(a.CreatedUTC), 0).UTC()
}

// PostData is one submission from /user/<name>/submitted.json.
type PostData struct {
	ID          string  `json:"id"`
	Subreddit   string  `json:"subreddit"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	URL         string  `json:"url"`
	Score       int     `json:"score"`
	UpvoteRatio float64 `json:"upvote_ratio"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	IsSelf      bool    `json:"is_self"`
	Over18      bool    `json:"over_18"`
	Permalink   string  `json:"permalink"`
}

// CommentData is one comment from /user/<name>/comments.json.
type CommentData struct {
	ID         string  `json:"id"`
	Subreddit  string  `json:"subreddit"`
	Body       string  `json:"body"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
	ParentID   string  `json:"parent_id"`
	LinkID     string  `json:"link_id"`
	Permalink  string  `json:"permalink"`
}

// About fetches the account profile. The raw payload is returned alongside
// the decoded struct so the caller can archive it verbatim.
func (c *Client) About(ctx context.Context, username string) (*About, json.RawMessage, error) {
	reqURL := fmt.Sprintf("%s/user/%s/about.json", c.BaseURL, url.PathEscape(username))
	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch about u/%s: %w", username, err)
	}

	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, nil, fmt.Errorf("decode about u/%s: %w", username, err)
	}

	var about About
	if err := json.Unmarshal(wrapper.Data, &about); err != nil {
		return nil, nil, fmt.Errorf("decode about u/%s: %w", username, err)
	}
	return &about, wrapper.Data, nil
}

// Posts fetches the account's recent submissions, newest first.
func (c *Client) Posts(ctx context.Context, username string, limit int) ([]PostData, error) {
	body, err := c.listing(ctx, username, "submitted", limit)
	if err != nil {
		return nil, fmt.Errorf("fetch posts u/%s: %w", username, err)
	}

	children, err := decodeChildren(body)
	if err != nil {
		return nil, fmt.Errorf("decode posts u/%s: %w", username, err)
	}

	posts := make([]PostData, 0, len(children))
	for _, raw := range children {
		var p PostData
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode posts u/%s: %w", username, err)
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// Comments fetches the account's recent comments, newest first.
func (c *Client) Comments(ctx context.Context, username string, limit int) ([]CommentData, error) {
	body, err := c.listing(ctx, username, "comments", limit)
	if err != nil {
		return nil, fmt.Errorf("fetch comments u/%s: %w", username, err)
	}

	children, err := decodeChildren(body)
	if err != nil {
		return nil, fmt.Errorf("decode comments u/%s: %w", username, err)
	}

	comments := make([]CommentData, 0, len(children))
	for _, raw := range children {
		var cm CommentData
		if err := json.Unmarshal(raw, &cm); err != nil {
			return nil, fmt.Errorf("decode comments u/%s: %w", username, err)
		}
		comments = append(comments, cm)
	}
	return comments, nil
}

func (c *Client) listing(ctx context.Context, username, feed string, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = 100
	}
	reqURL := fmt.Sprintf("%s/user/%s/%s.json?sort=new&limit=%s",
		c.BaseURL, url.PathEscape(username), feed, strconv.Itoa(limit))
	return c.get(ctx, reqURL)
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func decodeChildren(body []byte) ([]json.RawMessage, error) {
	var listing struct {
		Data struct {
			Children []struct {
				Data json.RawMessage `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, err
	}

	children := make([]json.RawMessage, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		children = append(children, child.Data)
	}
	return children, nil
}
