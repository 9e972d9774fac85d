package watcher

import (
	"os"
	"path/filepath"
	"strings"
)

// ChangeType classifies an inbox path.
type ChangeType int

const (
	ChangeTypeIgnored ChangeType = iota
	ChangeTypeImage
)

// MaxFileSize bounds what the inbox will import.
const MaxFileSize = 20 << 20

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// Classify decides from the name alone whether a path looks like an image.
// Hidden files and editor temporaries are ignored.
func Classify(path string) ChangeType {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return ChangeTypeIgnored
	}
	if imageExtensions[strings.ToLower(filepath.Ext(name))] {
		return ChangeTypeImage
	}
	return ChangeTypeIgnored
}

// ChangeAnalysis describes which files of a batch should be imported.
type ChangeAnalysis struct {
	Import  []string
	Skipped []string
}

// AnalyzeChanges keeps the paths that are still regular, non-empty image
// files of acceptable size.
func AnalyzeChanges(event ChangeEvent) *ChangeAnalysis {
	analysis := &ChangeAnalysis{}
	for _, p := range event.Paths {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() || info.Size() == 0 || info.Size() > MaxFileSize ||
			Classify(p) != ChangeTypeImage {
			analysis.Skipped = append(analysis.Skipped, p)
			continue
		}
		analysis.Import = append(analysis.Import, p)
	}
	return analysis
}
