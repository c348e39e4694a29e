// Package content fingerprints posted placements and re-checks them
// against the live t.me page, so edits and deletions after publication
// are detected without asking the posting bot.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Fingerprint returns the canonical fingerprint of posted content:
// SHA256 hex over the whitespace-normalized text. Both the publish path
// and the verification path must go through this one function.
func Fingerprint(text string) string {
	h := sha256.Sum256([]byte(normalize(text)))
	return hex.EncodeToString(h[:])
}

// normalize collapses whitespace runs into single spaces. Telegram
// re-renders messages with different wrapping, the text itself is what
// must stay intact.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

type Checker struct {
	httpClient *http.Client
	log        *zap.Logger
	maxRetries int
}

func NewChecker(timeoutMS, maxRetries int, log *zap.Logger) *Checker {
	return &Checker{
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutMS) * time.Millisecond,
		},
		log:        log,
		maxRetries: maxRetries,
	}
}

// FetchFingerprint loads the public embed page of a posted message and
// returns the fingerprint of its current text. exists is false when the
// message is no longer there (deleted or never public).
func (c *Checker) FetchFingerprint(ctx context.Context, postURL string) (fingerprint string, exists bool, err error) {
	url := postURL
	if !strings.Contains(url, "?") {
		url += "?embed=1&mode=tme"
	}

	var doc *goquery.Document
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", false, err
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return "", false, nil
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
			time.Sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
			continue
		}

		doc, err = goquery.NewDocumentFromReader(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		break
	}

	if doc == nil {
		return "", false, fmt.Errorf("fetch post %s: %w", postURL, lastErr)
	}

	sel := doc.Find(".tgme_widget_message_text").First()
	if sel.Length() == 0 {
		// t.me serves an empty shell for deleted messages
		return "", false, nil
	}

	return Fingerprint(sel.Text()), true, nil
}
