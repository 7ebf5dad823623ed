package urlsource

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"questionpaper-ingest/internal/modules/pipeline"
)

// DefaultURLs is the list ingested when neither a file nor arguments are given.
// Add new question paper PDFs here.
var DefaultURLs = []string{
	"https://res.cloudinary.com/student-res/image/upload/question-papers/pdf1.pdf",
	"https://res.cloudinary.com/student-res/image/upload/question-papers/pdf2.pdf",
	"https://res.cloudinary.com/student-res/image/upload/question-papers/pdf3.pdf",
}

// Source produces the ordered list of PDF URLs for a run.
type Source interface {
	URLs(ctx context.Context) ([]string, error)
}

// ListSource serves a fixed, in-memory list.
type ListSource struct {
	urls []string
}

// NewList creates a ListSource over urls. The slice is copied.
func NewList(urls []string) *ListSource {
	return &ListSource{urls: append([]string(nil), urls...)}
}

func (ls *ListSource) URLs(ctx context.Context) ([]string, error) {
	return append([]string(nil), ls.urls...), nil
}

// Execute emits every URL in order as the first pipeline stage.
func (ls *ListSource) Execute(ctx context.Context, input <-chan interface{}, output chan<- interface{}, logger *zap.Logger) error {
	for _, url := range ls.urls {
		logger.Debug("queued url", zap.String("url", url))
		if err := pipeline.Send(ctx, output, url); err != nil {
			logger.Warn("url emission interrupted", zap.Error(err))
			return err
		}
	}
	logger.Info("finished reading URLs", zap.Int("total_urls", len(ls.urls)))
	return nil
}

// FileSource reads URLs from a text file, one per line. Blank lines and lines
// starting with # are ignored, as is a leading "url" or "urls" header.
type FileSource struct {
	path string
}

// NewFile creates a FileSource for path.
func NewFile(path string) *FileSource {
	return &FileSource{path: path}
}

func (fs *FileSource) URLs(ctx context.Context) ([]string, error) {
	file, err := os.Open(fs.path)
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer file.Close()

	urls, err := Parse(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("read url list %s: %w", fs.path, err)
	}
	return urls, nil
}

// Parse reads a URL list from r.
func Parse(ctx context.Context, r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	urls := []string{}
	first := true

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if first {
			first = false
			if h := strings.ToLower(line); h == "url" || h == "urls" {
				continue
			}
		}
		urls = append(urls, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}

// Select picks the source for a run: explicit args win over a file, which
// wins over DefaultURLs.
func Select(args []string, path string) Source {
	switch {
	case len(args) > 0:
		return NewList(args)
	case path != "":
		return NewFile(path)
	default:
		return NewList(DefaultURLs)
	}
}
