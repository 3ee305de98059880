package rag

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dslipak/pdf"
	"github.com/mudler/xlog"
	"github.com/ragstack/localrag/pkg/chunk"
)

// chunkFile extracts the text of a file and splits it into chunks of at
// most maxChunkSize characters. Supported types: .txt, .md, .pdf.
func chunkFile(fpath string, maxChunkSize int) ([]string, error) {
	if _, err := os.Stat(fpath); os.IsNotExist(err) {
		return nil, fmt.Errorf("file does not exist: %s", fpath)
	}

	extension := filepath.Ext(fpath)
	switch extension {
	case ".pdf":
		r, err := pdf.Open(fpath)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		b, err := r.GetPlainText()
		if err != nil {
			return nil, err
		}
		buf.ReadFrom(b)
		return chunk.SplitParagraphIntoChunks(buf.String(), maxChunkSize), nil
	case ".txt", ".md":
		xlog.Debug("Reading text file", "file", fpath)
		f, err := os.Open(fpath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		return chunk.SplitParagraphIntoChunks(string(content), maxChunkSize), nil
	}

	return nil, fmt.Errorf("unsupported file type: %s", extension)
}
