package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/trogers1052/nzx-scorer/internal/models"
)

// FileSource reads a scrape batch from a JSON file
type FileSource struct {
	Path string
	now  func() time.Time
}

// NewFileSource creates a FileSource for path
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path, now: time.Now}
}

// Load decodes the batch. A missing scrape date defaults to today.
func (s *FileSource) Load() (models.ScrapeBatch, error) {
	var batch models.ScrapeBatch

	f, err := os.Open(s.Path)
	if err != nil {
		return batch, fmt.Errorf("failed to open batch file: %w", err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&batch); err != nil {
		return batch, fmt.Errorf("failed to decode batch file %s: %w", s.Path, err)
	}
	if batch.ScrapeDate.IsZero() {
		batch.ScrapeDate = s.now()
	}
	return batch, nil
}
