package scraper

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/xhad/storagerag/internal/models"
	"golang.org/x/time/rate"
)

type ScraperConfig struct {
	RateLimit  float64 // requests per second
	Timeout    time.Duration
	MaxBytes   int64
	OnProgress func(url string)
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
}

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

// Extensions the extractor understands; anything else is named by content type.
var knownExtensions = map[string]bool{
	".pdf":  true,
	".html": true,
	".htm":  true,
	".txt":  true,
	".md":   true,
}

func NewWithConfig(config ScraperConfig) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 20 << 20
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

func New() *Scraper {
	return NewWithConfig(ScraperConfig{})
}

// FindURL returns the first http(s) URL in text, or "".
func FindURL(text string) string {
	return strings.TrimRight(urlRegex.FindString(text), ".,;)")
}

// Fetch downloads a single page and returns it as a document whose filename
// carries an extension the extractor can dispatch on.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (models.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return models.Document{}, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.Document{}, fmt.Errorf("unsupported URL: %s", rawURL)
	}

	if s.config.OnProgress != nil {
		s.config.OnProgress(rawURL)
	}

	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return models.Document{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.Document{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Document{}, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, rawURL)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBytes+1))
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to read %s: %w", rawURL, err)
	}
	if int64(len(data)) > s.config.MaxBytes {
		return models.Document{}, fmt.Errorf("document at %s exceeds %d bytes", rawURL, s.config.MaxBytes)
	}

	return models.Document{
		Filename: documentName(u, resp.Header.Get("Content-Type")),
		Data:     data,
	}, nil
}

func documentName(u *url.URL, contentType string) string {
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		name = u.Hostname()
	}

	if knownExtensions[strings.ToLower(path.Ext(name))] {
		return name
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "application/pdf":
		return name + ".pdf"
	case "text/plain":
		return name + ".txt"
	case "text/markdown":
		return name + ".md"
	default:
		return name + ".html"
	}
}
