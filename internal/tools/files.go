package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

const maxReadBytes = 200 << 10

// resolveIn joins relative paths onto base; absolute paths are kept.
func resolveIn(base, p string) string {
	p = strings.TrimSpace(p)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// Files reads and writes under a workspace directory.
type Files struct {
	workspace string
}

func NewFiles(workspace string) *Files {
	return &Files{workspace: workspace}
}

func (f *Files) Read(path string) (string, error) {
	full := resolveIn(f.workspace, path)
	if strings.EqualFold(filepath.Ext(full), ".pdf") {
		return readPDF(full)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	if len(data) > maxReadBytes {
		return string(data[:maxReadBytes]) + "\n[truncated]", nil
	}
	return string(data), nil
}

func readPDF(path string) (string, error) {
	file, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer file.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	text := strings.TrimSpace(buf.String())
	if len(text) > maxReadBytes {
		text = text[:maxReadBytes] + "\n[truncated]"
	}
	if text == "" {
		return "(pdf has no extractable text)", nil
	}
	return text, nil
}

func (f *Files) Write(path, content string, appendMode bool) (string, error) {
	full := resolveIn(f.workspace, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	fh, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := fh.WriteString(content); err != nil {
		fh.Close()
		return "", err
	}
	if err := fh.Close(); err != nil {
		return "", err
	}
	return "written: " + full, nil
}

func (f *Files) List(path string) (string, error) {
	full := resolveIn(f.workspace, path)
	entries, err := os.ReadDir(full)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "(empty directory)", nil
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			lines = append(lines, "[DIR]  "+e.Name())
		} else {
			lines = append(lines, "       "+e.Name())
		}
	}
	return strings.Join(lines, "\n"), nil
}

func fileTools(f *Files) []Tool {
	return []Tool{
		{
			Name:        "read_file",
			Description: "Read a file's content. PDF files are converted to plain text.",
			Params: []Param{
				{Name: "path", Type: String, Description: "File path, relative to the workspace or absolute", Required: true},
			},
			Handler: func(_ context.Context, _ Caller, args Args) (string, error) {
				return f.Read(args.String("path"))
			},
		},
		{
			Name:        "write_file",
			Description: "Write or overwrite a file. Parent directories are created.",
			Params: []Param{
				{Name: "path", Type: String, Description: "File path", Required: true},
				{Name: "content", Type: String, Description: "Content to write", Required: true},
				{Name: "append", Type: Boolean, Description: "Append instead of overwriting when true"},
			},
			Handler: func(_ context.Context, _ Caller, args Args) (string, error) {
				return f.Write(args.String("path"), args.String("content"), args.Bool("append"))
			},
		},
		{
			Name:        "list_dir",
			Description: "List files and subdirectories of a directory.",
			Params: []Param{
				{Name: "path", Type: String, Description: "Directory path", Required: true},
			},
			Handler: func(_ context.Context, _ Caller, args Args) (string, error) {
				return f.List(args.String("path"))
			},
		},
	}
}
