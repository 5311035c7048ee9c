package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSystemToolID is the stable identifier for the built-in file system
// tool. Security: every path goes through sanitizePath, which rejects
// traversal attempts and anchors relative paths to the working directory.
const FileSystemToolID = "filesystem"

// NewFileSystemTool builds the built-in file system tool: read, write,
// append, delete, list, existence-check, and directory-create, each
// exposed as its own method so the LLM-facing name is
// "filesystem__read_file", "filesystem__write_file", and so on.
func NewFileSystemTool() Tool {
	return &fileSystemTool{}
}

type fileSystemTool struct{}

func (t *fileSystemTool) ToolID() string { return FileSystemToolID }

func (t *fileSystemTool) Methods() []Method {
	pathParams := map[string]interface{}{
		"type":     "object",
		"required": []string{"path"},
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "File or directory path (relative or absolute)",
			},
		},
	}
	writeParams := map[string]interface{}{
		"type":     "object",
		"required": []string{"path", "content"},
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "File path",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Content to write",
			},
		},
	}

	return []Method{
		{
			Name:        "read_file",
			Description: "Read the contents of a file",
			Parameters:  pathParams,
			Handler:     fsPathHandler(readFile),
		},
		{
			Name:        "write_file",
			Description: "Write content to a file, creating it if it does not exist",
			Parameters:  writeParams,
			Handler:     fsWriteHandler(writeFile),
		},
		{
			Name:        "append_file",
			Description: "Append content to a file, creating it if it does not exist",
			Parameters:  writeParams,
			Handler:     fsWriteHandler(appendFile),
		},
		{
			Name:        "delete_file",
			Description: "Delete a file",
			Parameters:  pathParams,
			Handler:     fsPathHandler(deleteFile),
		},
		{
			Name:        "list_directory",
			Description: "List files and directories at a path",
			Parameters:  pathParams,
			Handler:     fsPathHandler(listDirectory),
		},
		{
			Name:        "file_exists",
			Description: "Check whether a file or directory exists",
			Parameters:  pathParams,
			Handler:     fsPathHandler(fileExists),
			InlineMarkup: &InlineMarkupSchema{
				Tag: "file_exists",
				Params: map[string]ParamSource{
					"path": {Kind: ParamFromAttribute},
				},
				Example: `<file_exists path="data.txt"/>`,
			},
		},
		{
			Name:        "create_directory",
			Description: "Create a directory and any missing parents",
			Parameters:  pathParams,
			Handler:     fsPathHandler(createDirectory),
		},
	}
}

// fsPathHandler adapts a (path) -> (string, error) operation to the
// Handler shape, reading "path" from the invocation params.
func fsPathHandler(op func(path string) (string, error)) Handler {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		path, _ := params["path"].(string)
		clean, err := sanitizePath(path)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		return op(clean)
	}
}

// fsWriteHandler adapts a (path, content) -> (string, error) operation.
func fsWriteHandler(op func(path, content string) (string, error)) Handler {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		path, _ := params["path"].(string)
		content, _ := params["content"].(string)
		clean, err := sanitizePath(path)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		return op(clean, content)
	}
}

// sanitizePath prevents path traversal attacks and validates the path.
func sanitizePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return "", ErrSecurityViolation
	}

	if !filepath.IsAbs(cleanPath) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		cleanPath = filepath.Join(cwd, cleanPath)
	}

	return cleanPath, nil
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return fmt.Sprintf("File content (%d bytes):\n%s", len(data), string(data)), nil
}

func writeFile(path string, content string) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil
}

func appendFile(path string, content string) (string, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	n, err := f.WriteString(content)
	if err != nil {
		return "", fmt.Errorf("failed to append to file: %w", err)
	}
	return fmt.Sprintf("Successfully appended %d bytes to %s", n, path), nil
}

func deleteFile(path string) (string, error) {
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("failed to delete file: %w", err)
	}
	return fmt.Sprintf("Successfully deleted %s", path), nil
}

func listDirectory(path string) (string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("failed to read directory: %w", err)
	}

	if len(entries) == 0 {
		return fmt.Sprintf("Directory %s is empty", path), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Directory %s (%d items):\n", path, len(entries)))

	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}

		fileType := "FILE"
		if entry.IsDir() {
			fileType = "DIR "
		}

		result.WriteString(fmt.Sprintf("  [%s] %s (%d bytes)\n", fileType, entry.Name(), info.Size()))
	}

	return result.String(), nil
}

func fileExists(path string) (string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Sprintf("Path does not exist: %s", path), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to check path: %w", err)
	}

	fileType := "file"
	if info.IsDir() {
		fileType = "directory"
	}
	return fmt.Sprintf("Path exists: %s (%s, %d bytes)", path, fileType, info.Size()), nil
}

func createDirectory(path string) (string, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	return fmt.Sprintf("Successfully created directory: %s", path), nil
}
