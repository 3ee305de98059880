package sources

import (
	"strings"

	"github.com/mudler/xlog"
)

// Config carries credentials for sources that need them.
type Config struct {
	// GitPrivateKey is a base64-encoded SSH private key for cloning
	// private repositories.
	GitPrivateKey string
}

// SourceRouter picks the fetcher matching the URL shape.
func SourceRouter(url string, config *Config) (string, error) {
	xlog.Info("Downloading content from", "url", url)

	switch {
	case strings.HasSuffix(url, ".git"):
		return GetGitRepositoryContent(url, config.GitPrivateKey)
	case strings.HasSuffix(url, "sitemap.xml"):
		content, err := GetWebSitemapContent(url)
		if err != nil {
			return "", err
		}
		xlog.Info("Downloaded all content from sitemap", "url", url, "length", len(content))
		return strings.Join(content, "\n"), nil
	}

	return GetWebPage(url)
}
