package writer

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"time"

	"github.com/spf13/afero"
)

// matches channel.jsonl, channel.log, channel.3.jsonl, ...
var channelFilePattern = regexp.MustCompile(`^([^.]+)(?:\.\d+)?\.(?:jsonl|log)$`)

type FileInfo struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

type ChannelFiles struct {
	Files     []FileInfo `json:"files"`
	TotalSize int64      `json:"totalSize"`
}

// LogFiles lists the active file followed by the rotated generations 1..MaxFiles that exist.
func (w *Writer) LogFiles(channel string) ([]string, error) {
	cfg := w.configs.ChannelConfig(channel)

	candidates := make([]string, 0, cfg.MaxFiles+1)
	candidates = append(candidates, w.activePath(channel, cfg))
	for i := 1; i <= cfg.MaxFiles; i++ {
		candidates = append(candidates, w.rotatedPath(channel, i, cfg))
	}

	var files []string
	for _, path := range candidates {
		ok, err := w.exists(path)
		if err != nil {
			return nil, fmt.Errorf("failed to get file stats: %w", err)
		}
		if ok {
			files = append(files, path)
		}
	}
	return files, nil
}

// Channels returns the sorted names of every channel that has at least one file on disk.
func (w *Writer) Channels() ([]string, error) {
	entries, err := afero.ReadDir(w.fs, w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read logs directory: %w", err)
	}

	seen := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if match := channelFilePattern.FindStringSubmatch(entry.Name()); match != nil {
			seen[match[1]] = struct{}{}
		}
	}

	channels := make([]string, 0, len(seen))
	for name := range seen {
		channels = append(channels, name)
	}
	sort.Strings(channels)
	return channels, nil
}

func (w *Writer) ChannelFileInfo(channel string) (ChannelFiles, error) {
	paths, err := w.LogFiles(channel)
	if err != nil {
		return ChannelFiles{}, err
	}

	result := ChannelFiles{Files: make([]FileInfo, 0, len(paths))}
	for _, path := range paths {
		info, err := w.fs.Stat(path)
		if err != nil {
			return ChannelFiles{}, fmt.Errorf("failed to get file stats: %w", err)
		}
		result.Files = append(result.Files, FileInfo{
			Path:     path,
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
		result.TotalSize += info.Size()
	}
	return result, nil
}
