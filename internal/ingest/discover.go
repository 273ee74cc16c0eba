package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var ErrNoFiles = errors.New("no pdf files found")

// Discover 展开文件、目录与 glob（支持 **），返回去重并排序后的 PDF 绝对路径。
// 目录会被递归扫描；显式给出的文件不检查扩展名。
func Discover(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	add := func(path string) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", path, err)
		}
		seen[abs] = struct{}{}
		return nil
	}

	for _, pattern := range patterns {
		if info, err := os.Stat(pattern); err == nil {
			if !info.IsDir() {
				if err := add(pattern); err != nil {
					return nil, err
				}
				continue
			}
			pattern = filepath.Join(pattern, "**", "*")
		}

		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !isPDF(m) {
				continue
			}
			if err := add(m); err != nil {
				return nil, err
			}
		}
	}

	if len(seen) == 0 {
		return nil, ErrNoFiles
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// statFile 与 os.Stat 相同，但拒绝目录。
func statFile(path string) (fs.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return info, nil
}
