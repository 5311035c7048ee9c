package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func findMethod(t *testing.T, tool Tool, name string) Method {
	t.Helper()
	for _, m := range tool.Methods() {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("method %q not found on tool %q", name, tool.ToolID())
	return Method{}
}

func callMethod(t *testing.T, tool Tool, name string, params map[string]interface{}) (string, error) {
	t.Helper()
	m := findMethod(t, tool, name)
	result, err := m.Handler(context.Background(), params)
	if err != nil {
		return "", err
	}
	s, _ := result.(string)
	return s, nil
}

func TestFileSystemTool(t *testing.T) {
	tempDir := t.TempDir()
	tool := NewFileSystemTool()

	if tool.ToolID() != FileSystemToolID {
		t.Fatalf("unexpected tool id: %s", tool.ToolID())
	}

	t.Run("WriteFile", func(t *testing.T) {
		result, err := callMethod(t, tool, "write_file", map[string]interface{}{
			"path":    filepath.Join(tempDir, "test.txt"),
			"content": "Hello World",
		})
		if err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		if !strings.Contains(result, "Successfully wrote") {
			t.Errorf("Unexpected result: %s", result)
		}
	})

	t.Run("ReadFile", func(t *testing.T) {
		testFile := filepath.Join(tempDir, "read_test.txt")
		os.WriteFile(testFile, []byte("Test Content"), 0644)

		result, err := callMethod(t, tool, "read_file", map[string]interface{}{"path": testFile})
		if err != nil {
			t.Fatalf("ReadFile failed: %v", err)
		}
		if !strings.Contains(result, "Test Content") {
			t.Errorf("File content not found in result: %s", result)
		}
	})

	t.Run("AppendFile", func(t *testing.T) {
		testFile := filepath.Join(tempDir, "append_test.txt")
		os.WriteFile(testFile, []byte("Line 1\n"), 0644)

		result, err := callMethod(t, tool, "append_file", map[string]interface{}{
			"path":    testFile,
			"content": "Line 2\n",
		})
		if err != nil {
			t.Fatalf("AppendFile failed: %v", err)
		}
		if !strings.Contains(result, "Successfully appended") {
			t.Errorf("Unexpected result: %s", result)
		}

		content, _ := os.ReadFile(testFile)
		if !strings.Contains(string(content), "Line 1") || !strings.Contains(string(content), "Line 2") {
			t.Errorf("Append failed, content: %s", string(content))
		}
	})

	t.Run("ListDirectory", func(t *testing.T) {
		os.WriteFile(filepath.Join(tempDir, "file1.txt"), []byte("test"), 0644)
		os.WriteFile(filepath.Join(tempDir, "file2.txt"), []byte("test"), 0644)

		result, err := callMethod(t, tool, "list_directory", map[string]interface{}{"path": tempDir})
		if err != nil {
			t.Fatalf("ListDirectory failed: %v", err)
		}
		if !strings.Contains(result, "file1.txt") || !strings.Contains(result, "file2.txt") {
			t.Errorf("Files not found in listing: %s", result)
		}
	})

	t.Run("FileExists", func(t *testing.T) {
		testFile := filepath.Join(tempDir, "exists_test.txt")
		os.WriteFile(testFile, []byte("test"), 0644)

		result, err := callMethod(t, tool, "file_exists", map[string]interface{}{"path": testFile})
		if err != nil {
			t.Fatalf("FileExists failed: %v", err)
		}
		if !strings.Contains(result, "Path exists") {
			t.Errorf("Unexpected result: %s", result)
		}
	})

	t.Run("CreateDirectory", func(t *testing.T) {
		newDir := filepath.Join(tempDir, "subdir", "nested")

		result, err := callMethod(t, tool, "create_directory", map[string]interface{}{"path": newDir})
		if err != nil {
			t.Fatalf("CreateDirectory failed: %v", err)
		}
		if !strings.Contains(result, "Successfully created") {
			t.Errorf("Unexpected result: %s", result)
		}

		if _, err := os.Stat(newDir); os.IsNotExist(err) {
			t.Errorf("Directory was not created: %s", newDir)
		}
	})

	t.Run("DeleteFile", func(t *testing.T) {
		testFile := filepath.Join(tempDir, "delete_test.txt")
		os.WriteFile(testFile, []byte("test"), 0644)

		result, err := callMethod(t, tool, "delete_file", map[string]interface{}{"path": testFile})
		if err != nil {
			t.Fatalf("DeleteFile failed: %v", err)
		}
		if !strings.Contains(result, "Successfully deleted") {
			t.Errorf("Unexpected result: %s", result)
		}

		if _, err := os.Stat(testFile); !os.IsNotExist(err) {
			t.Errorf("File was not deleted: %s", testFile)
		}
	})

	t.Run("PathTraversalPrevention", func(t *testing.T) {
		_, err := callMethod(t, tool, "read_file", map[string]interface{}{"path": "../../../etc/passwd"})
		if err == nil {
			t.Error("Expected error for path traversal attempt")
		}
		if !strings.Contains(err.Error(), "security violation") {
			t.Errorf("Expected security violation error, got: %v", err)
		}
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := callMethod(t, tool, "read_file", map[string]interface{}{"path": ""})
		if err == nil {
			t.Error("Expected error for empty path")
		}
	})
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"Valid relative path", "test.txt", false},
		{"Valid absolute path", "/tmp/test.txt", false},
		{"Path traversal ..", "../test.txt", true},
		{"Path traversal multiple", "../../etc/passwd", true},
		{"Empty path", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sanitizePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("sanitizePath() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
