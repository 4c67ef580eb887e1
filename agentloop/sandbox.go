package agentloop

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"
)

const (
	// DefaultMaxFileChars caps how many characters a single read returns.
	DefaultMaxFileChars = 10000

	// DefaultScriptTimeout is the wall-clock limit for script execution.
	DefaultScriptTimeout = 30 * time.Second

	pythonInterpreter = "python3"
	scriptExtension   = ".py"
)

// Sandbox confines all filesystem and subprocess activity to a single
// root directory. Every operation takes a caller-supplied path, resolves
// it against the root with symlinks expanded, and refuses to touch
// anything that lands outside. No I/O happens before the containment
// check passes.
type Sandbox struct {
	root          string // absolute, symlink-resolved
	maxFileChars  int
	scriptTimeout time.Duration
}

// SandboxOption configures a Sandbox.
type SandboxOption func(*Sandbox)

// WithMaxFileChars overrides the read cap.
func WithMaxFileChars(n int) SandboxOption {
	return func(s *Sandbox) {
		if n > 0 {
			s.maxFileChars = n
		}
	}
}

// WithScriptTimeout overrides the script execution limit.
func WithScriptTimeout(d time.Duration) SandboxOption {
	return func(s *Sandbox) {
		if d > 0 {
			s.scriptTimeout = d
		}
	}
}

// NewSandbox creates a sandbox rooted at dir. The directory must exist;
// its canonical (symlink-resolved) form becomes the containment boundary.
func NewSandbox(dir string, opts ...SandboxOption) (*Sandbox, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat sandbox root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox root %q is not a directory", dir)
	}

	s := &Sandbox{
		root:          root,
		maxFileChars:  DefaultMaxFileChars,
		scriptTimeout: DefaultScriptTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the canonical sandbox root.
func (s *Sandbox) Root() string { return s.root }

// MaxFileChars returns the configured read cap.
func (s *Sandbox) MaxFileChars() int { return s.maxFileChars }

// resolve joins path onto the root and verifies the result stays inside
// the boundary. Symlinks are expanded before the comparison; for targets
// that do not exist yet, the deepest existing ancestor is expanded and
// the remaining components are appended. The returned path is the
// canonical absolute target.
func (s *Sandbox) resolve(path string) (string, error) {
	// Paths are caller-relative by contract; an absolute path is never
	// inside the boundary.
	if filepath.IsAbs(path) {
		return "", &ContainmentError{Path: path}
	}
	joined := filepath.Clean(filepath.Join(s.root, path))

	resolved, err := resolveExisting(joined)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}

	rel, err := filepath.Rel(s.root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &ContainmentError{Path: path}
	}
	return resolved, nil
}

// resolveExisting expands symlinks in path. When path does not exist,
// the deepest existing ancestor is expanded instead and the missing
// suffix is re-joined, so a not-yet-created file under a symlinked
// directory still canonicalizes correctly.
func resolveExisting(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}
	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}

// List returns a textual listing of the directory at dir, one entry per
// line in name order: "name: file_size=N bytes, is_dir=b". Directories
// report size 0.
func (s *Sandbox) List(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	target, err := s.resolve(dir)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		return "", &NotADirectoryError{Path: dir}
	}

	// os.ReadDir returns entries sorted by name, which keeps listings
	// deterministic across runs.
	entries, err := os.ReadDir(target)
	if err != nil {
		return "", fmt.Errorf("list %q: %w", dir, err)
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		var size int64
		if !entry.IsDir() {
			fi, err := entry.Info()
			if err != nil {
				return "", fmt.Errorf("stat %q: %w", filepath.Join(dir, entry.Name()), err)
			}
			size = fi.Size()
		}
		lines = append(lines, fmt.Sprintf("%s: file_size=%d bytes, is_dir=%t", entry.Name(), size, entry.IsDir()))
	}
	return strings.Join(lines, "\n"), nil
}

// Read returns up to MaxFileChars characters of the file at path. When
// the file is larger than the cap, the content is cut at the cap and a
// truncation marker naming the cap is appended. Files at or under the
// cap come back unmodified.
func (s *Sandbox) Read(path string) (string, error) {
	target, err := s.resolve(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &NotFoundError{Path: path}
		}
		return "", fmt.Errorf("stat %q: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", &NotAFileError{Path: path}
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", path, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%q is not valid UTF-8 text", path)
	}

	// The cap counts characters, not bytes.
	content := string(data)
	if utf8.RuneCountInString(content) > s.maxFileChars {
		runes := []rune(content)
		content = string(runes[:s.maxFileChars])
		content += fmt.Sprintf("\n...File truncated at %d characters.", s.maxFileChars)
	}
	return content, nil
}

// Write writes content to the file at path, creating parent directories
// as needed. Directory creation happens only after the containment check
// passes. The returned report names the path and character count.
func (s *Sandbox) Write(path, content string) (string, error) {
	target, err := s.resolve(path)
	if err != nil {
		return "", err
	}

	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return "", &NotAFileError{Path: path}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create parent directories for %q: %w", path, err)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %q: %w", path, err)
	}
	return fmt.Sprintf("Successfully wrote %d characters to %s.", utf8.RuneCountInString(content), path), nil
}

// Run executes the Python script at path with the given arguments,
// working directory set to the sandbox root. Stdout and stderr are
// captured separately and reported along with a nonzero exit code; a
// script that produces nothing reports a fixed success message. The
// process group is killed if the wall-clock limit is exceeded.
func (s *Sandbox) Run(ctx context.Context, path string, args []string) (string, error) {
	target, err := s.resolve(path)
	if err != nil {
		return "", err
	}

	// The extension gate comes before any process is spawned.
	if !strings.HasSuffix(target, scriptExtension) {
		return "", &UnsupportedExtensionError{Path: path}
	}
	if _, err := os.Stat(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &NotFoundError{Path: path}
		}
		return "", fmt.Errorf("stat %q: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.scriptTimeout)
	defer cancel()

	argv := append([]string{target}, args...)
	cmd := exec.CommandContext(ctx, pythonInterpreter, argv...)
	cmd.Dir = s.root
	// Run the script in its own process group so a timeout kills any
	// children it spawned, not just the interpreter.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", &SubprocessTimeoutError{Path: path, Limit: s.scriptTimeout}
	}
	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return "", &SubprocessError{Path: path, Cause: runErr}
		}
	}

	var sections []string
	if stdout.Len() > 0 {
		sections = append(sections, "STDOUT:\n"+stdout.String())
	}
	if stderr.Len() > 0 {
		sections = append(sections, "STDERR:\n"+stderr.String())
	}
	if exitCode != 0 {
		sections = append(sections, fmt.Sprintf("Exit code: %d", exitCode))
	}
	if len(sections) == 0 {
		return "Script executed successfully.", nil
	}
	return strings.Join(sections, "\n"), nil
}
