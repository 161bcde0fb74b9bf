package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://www.googleapis.com/youtube/v3"

var ErrVideoNotFound = errors.New("youtube: video not found")

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type Video struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Thumbnail       string `json:"thumbnail"`
	DurationSeconds int    `json:"duration_seconds"`
	Embeddable      bool   `json:"embeddable"`
}

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title      string `json:"title"`
			Thumbnails map[string]struct {
				URL    string `json:"url"`
				Width  int    `json:"width"`
				Height int    `json:"height"`
			} `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Status struct {
			Embeddable bool `json:"embeddable"`
		} `json:"status"`
	} `json:"items"`
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL points the client at another API host.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// GetVideo looks up title, thumbnail and duration for a video id.
func (c *Client) GetVideo(ctx context.Context, videoID string) (*Video, error) {
	params := url.Values{}
	params.Add("id", videoID)
	params.Add("part", "snippet,contentDetails,status")
	params.Add("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtube: videos request failed with status %d", resp.StatusCode)
	}

	var result videosResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("youtube: failed to decode response: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, ErrVideoNotFound
	}

	item := result.Items[0]
	duration, err := ParseDuration(item.ContentDetails.Duration)
	if err != nil {
		return nil, err
	}

	video := &Video{
		ID:              item.ID,
		Title:           item.Snippet.Title,
		DurationSeconds: duration,
		Embeddable:      item.Status.Embeddable,
	}
	for _, size := range []string{"high", "medium", "default"} {
		if thumb, ok := item.Snippet.Thumbnails[size]; ok && thumb.URL != "" {
			video.Thumbnail = thumb.URL
			break
		}
	}
	return video, nil
}

var durationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration converts an ISO 8601 duration such as PT4M13S to seconds.
// Live streams report P0D.
func ParseDuration(s string) (int, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil || s == "P" || strings.HasSuffix(s, "T") {
		return 0, fmt.Errorf("youtube: invalid duration %q", s)
	}

	units := []int{24 * 3600, 3600, 60, 1}
	total := 0
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("youtube: invalid duration %q: %w", s, err)
		}
		total += n * unit
	}
	return total, nil
}
