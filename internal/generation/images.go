package generation

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"site-builder/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultFallbackImage = "https://images.pexels.com/photos/1181244/pexels-photo-1181244.jpeg"
	maxConcurrentChecks  = 8
)

var pexelsURL = regexp.MustCompile(`https://images\.pexels\.com/photos/\d+/pexels-photo-\d+\.jpeg`)

// ImageValidator swaps unreachable stock photo URLs for a known-good one
type ImageValidator struct {
	httpClient *http.Client
	fallback   string
	timeout    time.Duration
	log        *zap.Logger
}

func NewImageValidator(fallback string, timeout time.Duration, log *zap.Logger) *ImageValidator {
	if fallback == "" {
		fallback = DefaultFallbackImage
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ImageValidator{
		httpClient: &http.Client{},
		fallback:   fallback,
		timeout:    timeout,
		log:        log,
	}
}

// Fix HEAD-checks every distinct image URL in doc and replaces each failing
// one everywhere it appears. Check failures are never returned.
func (v *ImageValidator) Fix(ctx context.Context, doc string) string {
	urls := uniqueImageURLs(doc)
	if len(urls) == 0 {
		return doc
	}

	ctx, span := telemetry.StartSpan(ctx, "images.validate", attribute.Int("images.count", len(urls)))
	defer span.End()

	reachable := make([]bool, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChecks)
	for i, u := range urls {
		g.Go(func() error {
			reachable[i] = v.reachable(gctx, u)
			return nil
		})
	}
	_ = g.Wait()

	broken := 0
	for i, u := range urls {
		if reachable[i] || u == v.fallback {
			continue
		}
		broken++
		doc = strings.ReplaceAll(doc, u, v.fallback)
	}
	if broken > 0 {
		v.log.Info("replaced unreachable images", zap.Int("broken", broken), zap.Int("checked", len(urls)))
	}
	span.SetAttributes(attribute.Int("images.broken", broken))

	return doc
}

func (v *ImageValidator) reachable(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func uniqueImageURLs(doc string) []string {
	matches := pexelsURL.FindAllString(doc, -1)
	seen := make(map[string]struct{}, len(matches))
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		urls = append(urls, m)
	}
	return urls
}
