package sources

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mudler/xlog"
	sitemap "github.com/oxffaa/gopher-parse-sitemap"
	"jaytaylor.com/html2text"
)

var webClient = &http.Client{Timeout: 30 * time.Second}

// GetWebPage fetches a page and converts its HTML to plain text so the
// chunker sees prose instead of markup.
func GetWebPage(url string) (string, error) {
	resp, err := webClient.Get(url)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}
	return html2text.FromString(string(body), html2text.Options{PrettyTables: true})
}

// GetWebSitemapContent fetches every page listed in a sitemap. Pages that
// fail to download are logged and skipped so one dead link does not lose
// the rest of the site.
func GetWebSitemapContent(url string) (pages []string, err error) {
	err = sitemap.ParseFromSite(url, func(e sitemap.Entry) error {
		location := e.GetLocation()
		content, err := GetWebPage(location)
		if err != nil {
			xlog.Warn("Skipping sitemap page", "url", location, "error", err)
			return nil
		}
		xlog.Info("Downloaded sitemap page", "url", location, "length", len(content))
		pages = append(pages, content)
		return nil
	})
	return pages, err
}
