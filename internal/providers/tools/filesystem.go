package tools

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sandevgo/tuskmem/internal/service/dispatch"
)

const (
	maxReadSize      = 1 << 20 // 1MB
	maxSearchMatches = 100
	maxMatchLineLen  = 200
)

var ErrOutsideWorkDir = errors.New("path is outside the working directory")

type PathInput struct {
	Path string `json:"path" jsonschema:"path relative to the working directory"`
}

type WriteFileInput struct {
	Path    string `json:"path" jsonschema:"path relative to the working directory"`
	Content string `json:"content" jsonschema:"the full new content of the file"`
}

type EditFileInput struct {
	Path    string `json:"path" jsonschema:"path relative to the working directory"`
	Find    string `json:"find" jsonschema:"the exact text to find"`
	Replace string `json:"replace" jsonschema:"the text to put in its place"`
}

type SearchFilesInput struct {
	Path  string `json:"path,omitempty" jsonschema:"directory or file to search, defaults to the working directory"`
	Query string `json:"query" jsonschema:"the text to search for"`
}

type DirEntry struct {
	Name string `json:"name"`
	Dir  bool   `json:"dir"`
	Size int64  `json:"size"`
}

type FileInfo struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	Dir     bool      `json:"dir"`
	Mode    string    `json:"mode"`
	ModTime time.Time `json:"mod_time"`
}

// Filesystem serves file tools confined to one directory. Paths escaping
// it, through ".." or symlinks, are refused.
type Filesystem struct {
	root *os.Root
	dir  string
}

// NewFilesystem opens dir, or the current directory when dir is empty.
func NewFilesystem(dir string) (*Filesystem, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open working directory: %w", err)
	}
	return &Filesystem{root: root, dir: dir}, nil
}

func (f *Filesystem) Close() error {
	return f.root.Close()
}

func (f *Filesystem) Tools() []dispatch.Tool {
	return []dispatch.Tool{
		dispatch.MustFunc("read_file", "Read a text file from the working directory", f.ReadFile),
		dispatch.MustFunc("write_file", "Create or overwrite a file in the working directory", f.WriteFile),
		dispatch.MustFunc("edit_file", "Replace every occurrence of an exact string in a file", f.EditFile),
		dispatch.MustFunc("list_directory", "List the entries of a directory", f.ListDirectory),
		dispatch.MustFunc("search_files", "Search text files recursively for a string", f.SearchFiles),
		dispatch.MustFunc("get_file_info", "Get size, mode and modification time of a path", f.GetFileInfo),
	}
}

// rel turns p into a root relative path. Absolute paths must lie inside
// the working directory. Symlinks are checked by os.Root on access.
func (f *Filesystem) rel(p string) (string, error) {
	if p == "" {
		return ".", nil
	}
	name := p
	if filepath.IsAbs(name) {
		r, err := filepath.Rel(f.dir, name)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrOutsideWorkDir, p)
		}
		name = r
	}

	name = filepath.Clean(name)
	if name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkDir, p)
	}
	return name, nil
}

func (f *Filesystem) ReadFile(ctx context.Context, in PathInput) (string, error) {
	name, err := f.rel(in.Path)
	if err != nil {
		return "", err
	}

	info, err := f.root.Stat(name)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", in.Path)
	}
	if info.Size() > maxReadSize {
		return "", fmt.Errorf("%s is %d bytes, the limit is %d", in.Path, info.Size(), maxReadSize)
	}

	data, err := f.root.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

func (f *Filesystem) WriteFile(ctx context.Context, in WriteFileInput) (string, error) {
	name, err := f.rel(in.Path)
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(name); dir != "." {
		if err := f.root.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directories: %w", err)
		}
	}
	if err := f.root.WriteFile(name, []byte(in.Content), 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path), nil
}

func (f *Filesystem) EditFile(ctx context.Context, in EditFileInput) (string, error) {
	if in.Find == "" {
		return "", errors.New("find must not be empty")
	}
	name, err := f.rel(in.Path)
	if err != nil {
		return "", err
	}

	data, err := f.root.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	content := string(data)

	n := strings.Count(content, in.Find)
	if n == 0 {
		return "", fmt.Errorf("text not found in %s", in.Path)
	}

	content = strings.ReplaceAll(content, in.Find, in.Replace)
	if err := f.root.WriteFile(name, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return fmt.Sprintf("replaced %d occurrence(s) in %s", n, in.Path), nil
}

func (f *Filesystem) ListDirectory(ctx context.Context, in PathInput) ([]DirEntry, error) {
	name, err := f.rel(in.Path)
	if err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(f.root.FS(), filepath.ToSlash(name))
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		entry := DirEntry{Name: e.Name(), Dir: e.IsDir()}
		if info, err := e.Info(); err == nil && !e.IsDir() {
			entry.Size = info.Size()
		}
		out = append(out, entry)
	}
	return out, nil
}

func (f *Filesystem) SearchFiles(ctx context.Context, in SearchFilesInput) (string, error) {
	if in.Query == "" {
		return "", errors.New("query must not be empty")
	}
	name, err := f.rel(in.Path)
	if err != nil {
		return "", err
	}

	var (
		sb      strings.Builder
		matches int
	)
	fsys := f.root.FS()
	err = fs.WalkDir(fsys, filepath.ToSlash(name), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if p != "." && skipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}

		found, err := searchFile(fsys, p, in.Query, maxSearchMatches-matches)
		if err != nil {
			return nil
		}
		for _, line := range found {
			fmt.Fprintf(&sb, "%s:%s\n", p, line)
		}
		matches += len(found)
		if matches >= maxSearchMatches {
			sb.WriteString("... (too many matches, stopping search)\n")
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}

	if matches == 0 {
		return "No matches found.", nil
	}
	return sb.String(), nil
}

func (f *Filesystem) GetFileInfo(ctx context.Context, in PathInput) (FileInfo, error) {
	name, err := f.rel(in.Path)
	if err != nil {
		return FileInfo{}, err
	}

	info, err := f.root.Stat(name)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to get file info: %w", err)
	}
	return FileInfo{
		Path:    filepath.ToSlash(name),
		Size:    info.Size(),
		Dir:     info.IsDir(),
		Mode:    info.Mode().String(),
		ModTime: info.ModTime().UTC(),
	}, nil
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "vendor" || name == "node_modules"
}

// searchFile returns up to limit "line: text" matches. Binary files are skipped.
func searchFile(fsys fs.FS, name, query string, limit int) ([]string, error) {
	file, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	head, _ := reader.Peek(512)
	if bytes.IndexByte(head, 0) >= 0 {
		return nil, nil
	}

	var out []string
	scanner := bufio.NewScanner(reader)
	for n := 1; scanner.Scan() && len(out) < limit; n++ {
		line := scanner.Text()
		if !utf8.ValidString(line) || !strings.Contains(line, query) {
			continue
		}
		line = strings.TrimSpace(line)
		if len(line) > maxMatchLineLen {
			line = line[:maxMatchLineLen] + "..."
		}
		out = append(out, fmt.Sprintf("%d: %s", n, line))
	}
	return out, nil
}
