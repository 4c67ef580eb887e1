package agentloop

import (
	"context"
	"encoding/json"

	"github.com/corralhq/corral/modelservice"
)

// Tool names, fixed by the wire protocol the model is prompted with.
const (
	ToolGetFilesInfo   = "get_files_info"
	ToolGetFileContent = "get_file_content"
	ToolWriteFile      = "write_file"
	ToolRunPythonFile  = "run_python_file"
)

type getFilesInfoRequest struct {
	Directory string `json:"directory"`
}

type getFileContentRequest struct {
	FilePath string `json:"file_path"`
}

type writeFileRequest struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

type runPythonFileRequest struct {
	FilePath string   `json:"file_path"`
	Args     []string `json:"args"`
}

func decodeRequest[T any](tool string, arguments json.RawMessage, req *T) error {
	if len(arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(arguments, req); err != nil {
		return &InvalidArgumentsError{Tool: tool, Cause: err}
	}
	return nil
}

// RegisterCoreTools registers the four sandbox tools against the given
// registry. The sandbox root is bound here, never taken from the model's
// arguments.
func RegisterCoreTools(registry *ToolRegistry, sandbox *Sandbox) {
	registry.Register(RegisteredTool{
		Schema: modelservice.ToolSchema{
			Name:        ToolGetFilesInfo,
			Description: "Lists files in a directory with sizes and directory flags.",
			Parameters: []modelservice.ParameterSpec{
				{Name: "directory", Type: modelservice.ParamString, Description: "Target directory relative to the working directory."},
			},
		},
		Executor: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			var req getFilesInfoRequest
			if err := decodeRequest(ToolGetFilesInfo, arguments, &req); err != nil {
				return "", err
			}
			return sandbox.List(req.Directory)
		},
	})

	registry.Register(RegisteredTool{
		Schema: modelservice.ToolSchema{
			Name:        ToolGetFileContent,
			Description: "Returns the content of a file.",
			Parameters: []modelservice.ParameterSpec{
				{Name: "file_path", Type: modelservice.ParamString, Description: "Path to the file relative to the working directory."},
			},
		},
		Executor: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			var req getFileContentRequest
			if err := decodeRequest(ToolGetFileContent, arguments, &req); err != nil {
				return "", err
			}
			return sandbox.Read(req.FilePath)
		},
	})

	registry.Register(RegisteredTool{
		Schema: modelservice.ToolSchema{
			Name:        ToolWriteFile,
			Description: "Writes content to a file.",
			Parameters: []modelservice.ParameterSpec{
				{Name: "file_path", Type: modelservice.ParamString, Description: "Path to the file relative to the working directory."},
				{Name: "content", Type: modelservice.ParamString, Description: "Content to write to the file."},
			},
		},
		Executor: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			var req writeFileRequest
			if err := decodeRequest(ToolWriteFile, arguments, &req); err != nil {
				return "", err
			}
			return sandbox.Write(req.FilePath, req.Content)
		},
	})

	registry.Register(RegisteredTool{
		Schema: modelservice.ToolSchema{
			Name:        ToolRunPythonFile,
			Description: "Runs a Python file.",
			Parameters: []modelservice.ParameterSpec{
				{Name: "file_path", Type: modelservice.ParamString, Description: "Python file path relative to the working directory."},
				{Name: "args", Type: modelservice.ParamStringArray, Description: "Optional command-line arguments."},
			},
		},
		Executor: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			var req runPythonFileRequest
			if err := decodeRequest(ToolRunPythonFile, arguments, &req); err != nil {
				return "", err
			}
			return sandbox.Run(ctx, req.FilePath, req.Args)
		},
	})
}
