package sources

import (
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/mudler/xlog"
)

// GetGitRepositoryContent shallow-clones a repository and concatenates its
// text files, each prefixed with its repo-relative path so search hits can
// be traced back to a file. privateKey, when set, is a base64-encoded SSH
// key for private repositories.
func GetGitRepositoryContent(url string, privateKey string) (string, error) {
	checkout, err := os.MkdirTemp("", "git-repo-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(checkout)

	opts := &git.CloneOptions{
		URL:           url,
		Depth:         1,
		SingleBranch:  true,
		ReferenceName: plumbing.HEAD,
	}
	if privateKey != "" {
		auth, err := sshAuthFromKey(privateKey)
		if err != nil {
			return "", err
		}
		opts.Auth = auth
	}

	if _, err := git.PlainClone(checkout, false, opts); err != nil {
		return "", fmt.Errorf("cloning %s: %w", url, err)
	}

	var content strings.Builder
	err = filepath.WalkDir(checkout, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !isTextFile(path) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(checkout, path)
		if err != nil {
			relPath = path
		}
		content.WriteString("\n--- File: " + relPath + " ---\n")
		content.Write(data)
		content.WriteString("\n")
		return nil
	})
	if err != nil {
		return "", err
	}

	xlog.Info("Collected repository content", "url", url, "length", content.Len())
	return content.String(), nil
}

func sshAuthFromKey(privateKey string) (*ssh.PublicKeys, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(privateKey)
	if err != nil {
		return nil, fmt.Errorf("decoding private key: %w", err)
	}
	auth, err := ssh.NewPublicKeys("git", keyBytes, "")
	if err != nil {
		return nil, fmt.Errorf("loading private key: %w", err)
	}
	return auth, nil
}

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".go": true, ".py": true, ".js": true,
	".ts": true, ".html": true, ".css": true, ".json": true, ".yaml": true,
	".yml": true, ".xml": true, ".sh": true, ".bash": true, ".c": true,
	".cpp": true, ".h": true, ".hpp": true, ".java": true, ".rb": true,
	".php": true, ".rs": true, ".swift": true, ".kt": true, ".scala": true,
	".sql": true, ".proto": true, ".toml": true, ".ini": true, ".conf": true,
	".log": true, ".csv": true, ".tsv": true, ".rst": true, ".tex": true,
	".adoc": true, ".asciidoc": true, ".wiki": true,
}

func isTextFile(path string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(path))]
}
