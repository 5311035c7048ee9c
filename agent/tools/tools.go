// Package tools provides the tool registry and a set of built-in tools:
// a directory of named, callable capabilities an agent's Planner and
// Executor can assign to tasks and invoke by a composite
// "<toolId>__<methodName>" identifier.
//
// Built-in tools:
//   - filesystem: read/write/append/delete files, list directories
//   - http_request: make GET/POST/PUT/DELETE requests
//   - datetime: current time, formatting, parsing, duration arithmetic
//   - math: expression evaluation, statistics, unit conversion, random values
//
// Usage:
//
//	registry := tools.NewRegistry()
//	registry.RegisterTool(tools.NewFileSystemTool())
//	registry.RegisterTool(tools.NewHTTPRequestTool())
//	inv := registry.ExecuteTool(ctx, "filesystem", "read_file", params)
//
// Security Notes:
//   - filesystem includes path traversal prevention
//   - http_request has timeout protection
//   - every invocation runs with a panic-recovering, context-bounded dispatch
package tools

import (
	"fmt"
)

// Common error messages
var (
	ErrInvalidInput      = fmt.Errorf("invalid input parameters")
	ErrOperationFailed   = fmt.Errorf("operation failed")
	ErrSecurityViolation = fmt.Errorf("security violation detected")
	ErrTimeout           = fmt.Errorf("operation timeout")
)

// Version information
const (
	Version             = "0.5.3"
	ToolsPackageVersion = "1.0.0"
)
