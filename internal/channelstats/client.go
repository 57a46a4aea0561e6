// Package channelstats reads public channel counters from the t.me/s preview page.
package channelstats

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

var ErrNoCounter = errors.New("subscriber counter not found")

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
	log        *zap.Logger
}

func NewClient(timeoutMS, maxRetries int, log *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: time.Duration(timeoutMS) * time.Millisecond},
		baseURL:    "https://t.me/s/",
		maxRetries: maxRetries,
		log:        log,
	}
}

// Subscribers returns the subscriber (or member) count of a public channel.
func (c *Client) Subscribers(ctx context.Context, channel string) (int64, error) {
	channel = strings.TrimPrefix(strings.TrimSpace(channel), "@")
	if channel == "" {
		return 0, fmt.Errorf("channel username is empty")
	}
	url := c.baseURL + channel

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		n, err := c.fetch(ctx, url)
		if err == nil || errors.Is(err, ErrNoCounter) {
			return n, err
		}
		lastErr = err
		c.log.Debug("channel page fetch failed", zap.String("channel", channel), zap.Int("attempt", attempt), zap.Error(err))
	}
	return 0, lastErr
}

func (c *Client) fetch(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}
	return ParseSubscribers(resp.Body)
}

// ParseSubscribers extracts the subscriber count from a t.me/s page.
func ParseSubscribers(r io.Reader) (int64, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return 0, err
	}

	var n int64
	doc.Find(".tgme_channel_info_counter").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label := strings.ToLower(strings.TrimSpace(s.Find(".counter_type").Text()))
		if strings.Contains(label, "subscriber") || strings.Contains(label, "member") {
			n = parseCount(s.Find(".counter_value").Text())
			return false
		}
		return true
	})

	// Small channels only render the header line, e.g. "1 234 subscribers".
	if n == 0 {
		doc.Find(".tgme_channel_info_header_counter, .tgme_page_extra").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.ToLower(s.Text())
			if strings.Contains(text, "subscriber") || strings.Contains(text, "member") {
				n = parseCount(text)
				return n == 0
			}
			return true
		})
	}

	if n == 0 {
		return 0, ErrNoCounter
	}
	return n, nil
}

var (
	// digit groups are separated by spaces, nbsp or commas: "1 234", "12,345"
	digitGapRE = regexp.MustCompile(`(\d)[ \x{00a0},]+(\d)`)
	// a K/M suffix only counts when it does not start a word like "members"
	countRE = regexp.MustCompile(`(\d[\d.]*)([KkMm])?(?:[^A-Za-z]|$)`)
)

func parseCount(text string) int64 {
	for i := 0; i < 2; i++ {
		text = digitGapRE.ReplaceAllString(text, "$1$2")
	}

	m := countRE.FindStringSubmatch(text)
	if m == nil {
		return 0
	}

	multiplier := 1.0
	switch m[2] {
	case "K", "k":
		multiplier = 1e3
	case "M", "m":
		multiplier = 1e6
	}

	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return int64(f*multiplier + 0.5)
}
