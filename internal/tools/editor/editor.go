// Package editor implements the str_replace_editor tool: view, create,
// exact-match string replacement, line insertion, and per-file undo, all
// confined to the session workspace.
package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/haasonsaas/agentd/internal/agent"
	"github.com/haasonsaas/agentd/internal/bus"
	"github.com/haasonsaas/agentd/internal/workspace"
	"github.com/haasonsaas/agentd/pkg/models"
)

const (
	// snippetLines is the context radius shown around an edit.
	snippetLines = 4

	// maxResponseLen caps editor output before the clipped notice.
	maxResponseLen = 200000

	truncatedNotice = "<response clipped><NOTE>To save on context only part of this file has been shown to you. You should retry this tool after you have searched inside the file with `grep -n` in order to find the line numbers of what you are looking for.</NOTE>"
)

// Config configures the editor tool.
type Config struct {
	// Workspace confines all paths.
	Workspace *workspace.Manager

	// Bus receives file_edit events on every write (optional).
	Bus *bus.Bus

	// IgnoreIndentation switches str_replace to indentation-insensitive
	// matching.
	IgnoreIndentation bool
}

// Tool is the str_replace_editor implementation. Undo stacks are per path
// and local to this instance.
type Tool struct {
	cfg Config

	mu      sync.Mutex
	history map[string][]string
}

// New creates the editor tool.
func New(cfg Config) *Tool {
	return &Tool{cfg: cfg, history: make(map[string][]string)}
}

func (t *Tool) Name() string { return "str_replace_editor" }

func (t *Tool) Description() string {
	return `Custom editing tool for viewing, creating and editing files
* State is persistent across command calls and discussions with the user
* If ` + "`path`" + ` is a file, ` + "`view`" + ` displays the result of applying ` + "`cat -n`" + `. If ` + "`path`" + ` is a directory, ` + "`view`" + ` lists non-hidden files and directories up to 2 levels deep
* The ` + "`create`" + ` command cannot be used if the specified ` + "`path`" + ` already exists as a non-empty file
* If a ` + "`command`" + ` generates a long output, it will be truncated and marked with ` + "`<response clipped>`" + `
* The ` + "`undo_edit`" + ` command will revert the last edit made to the file at ` + "`path`" + `

Notes for using the ` + "`str_replace`" + ` command:
* The ` + "`old_str`" + ` parameter should match EXACTLY one or more consecutive lines from the original file. Be mindful of whitespaces!
* If the ` + "`old_str`" + ` parameter is not unique in the file, the replacement will not be performed. Make sure to include enough context in ` + "`old_str`" + ` to make it unique
* The ` + "`new_str`" + ` parameter should contain the edited lines that should replace the ` + "`old_str`"
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "string",
				"enum": ["view", "create", "str_replace", "insert", "undo_edit"],
				"description": "The command to run. Allowed options are: view, create, str_replace, insert, undo_edit."
			},
			"path": {"type": "string", "description": "Path to file or directory."},
			"file_text": {"type": "string", "description": "Required parameter of the create command, with the content of the file to be created."},
			"old_str": {"type": "string", "description": "Required parameter of the str_replace command containing the string in path to replace."},
			"new_str": {"type": "string", "description": "New string for str_replace, or the string to insert for insert."},
			"insert_line": {"type": "integer", "description": "Required parameter of the insert command. new_str is inserted AFTER this line."},
			"view_range": {
				"type": "array",
				"items": {"type": "integer"},
				"description": "Optional [start, end] line range for view on a file. 1-indexed; end -1 means end of file."
			}
		},
		"required": ["command", "path"]
	}`)
}

type editorInput struct {
	Command    string  `json:"command"`
	Path       string  `json:"path"`
	FileText   *string `json:"file_text"`
	OldStr     *string `json:"old_str"`
	NewStr     *string `json:"new_str"`
	InsertLine *int    `json:"insert_line"`
	ViewRange  []int   `json:"view_range"`
}

func (t *Tool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input editorInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, err
	}

	path := t.cfg.Workspace.WorkspacePath(input.Path)
	rel := t.cfg.Workspace.RelativePath(path)
	if !t.cfg.Workspace.Contains(path) {
		return agent.ToolError(fmt.Sprintf("Path %s is outside the workspace root directory. You can only access files within the workspace root directory.", rel)), nil
	}
	if err := t.validatePath(input.Command, path, rel); err != nil {
		return agent.ToolError(err.Error()), nil
	}

	switch input.Command {
	case "view":
		return t.view(path, rel, input.ViewRange)
	case "create":
		if input.FileText == nil {
			return agent.ToolError("Parameter `file_text` is required for command: create"), nil
		}
		return t.create(path, rel, *input.FileText)
	case "str_replace":
		if input.OldStr == nil {
			return agent.ToolError("Parameter `old_str` is required for command: str_replace"), nil
		}
		newStr := ""
		if input.NewStr != nil {
			newStr = *input.NewStr
		}
		if t.cfg.IgnoreIndentation {
			return t.strReplaceIgnoreIndent(path, rel, *input.OldStr, newStr)
		}
		return t.strReplace(path, rel, *input.OldStr, newStr)
	case "insert":
		if input.InsertLine == nil {
			return agent.ToolError("Parameter `insert_line` is required for command: insert"), nil
		}
		if input.NewStr == nil {
			return agent.ToolError("Parameter `new_str` is required for command: insert"), nil
		}
		return t.insert(path, rel, *input.InsertLine, *input.NewStr)
	case "undo_edit":
		return t.undoEdit(path, rel)
	default:
		return agent.ToolError(fmt.Sprintf("Unrecognized command %s. The allowed commands are: view, create, str_replace, insert, undo_edit", input.Command)), nil
	}
}

func (t *Tool) validatePath(command, path, rel string) error {
	info, err := os.Stat(path)
	exists := err == nil
	if !exists && command != "create" {
		return fmt.Errorf("The path %s does not exist. Please provide a valid path.", rel)
	}
	if exists && command == "create" {
		if info.IsDir() {
			return fmt.Errorf("The path %s is a directory and only the `view` command can be used on directories", rel)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("Ran into %v while trying to read %s", err, rel)
		}
		if strings.TrimSpace(string(content)) != "" {
			return fmt.Errorf("File already exists and is not empty at: %s. Cannot overwrite non empty files using command `create`.", rel)
		}
	}
	if exists && info.IsDir() && command != "view" {
		return fmt.Errorf("The path %s is a directory and only the `view` command can be used on directories", rel)
	}
	return nil
}

func (t *Tool) view(path, rel string, viewRange []int) (*agent.ToolResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return agent.ToolError(fmt.Sprintf("Ran into %v while trying to read %s", err, rel)), nil
	}
	if info.IsDir() {
		if len(viewRange) > 0 {
			return agent.ToolError("The `view_range` parameter is not allowed when `path` points to a directory."), nil
		}
		listing, err := listTwoLevels(path)
		if err != nil {
			return agent.ToolError(fmt.Sprintf("Ran into %v while trying to list %s", err, rel)), nil
		}
		output := fmt.Sprintf("Here's the files and directories up to 2 levels deep in %s, excluding hidden items:\n%s\n", rel, listing)
		return &agent.ToolResult{Content: output, Message: "Listed directory contents"}, nil
	}

	content, err := t.readFile(path, rel)
	if err != nil {
		return agent.ToolError(err.Error()), nil
	}
	lines := strings.Split(content, "\n")
	totalLines := len(lines)
	initLine := 1

	if len(viewRange) > 0 {
		if len(viewRange) != 2 {
			return agent.ToolError("Invalid `view_range`. It should be a list of two integers."), nil
		}
		first, last := viewRange[0], viewRange[1]
		if first < 1 || first > totalLines {
			return agent.ToolError(fmt.Sprintf("Invalid `view_range`: %v. Its first element `%d` should be within the range of lines of the file: [1, %d]", viewRange, first, totalLines)), nil
		}
		if last > totalLines {
			return agent.ToolError(fmt.Sprintf("Invalid `view_range`: %v. Its second element `%d` should be smaller than the number of lines in the file: `%d`", viewRange, last, totalLines)), nil
		}
		if last != -1 && last < first {
			return agent.ToolError(fmt.Sprintf("Invalid `view_range`: %v. Its second element `%d` should be larger or equal than its first `%d`", viewRange, last, first)), nil
		}
		if last == -1 {
			content = strings.Join(lines[first-1:], "\n")
		} else {
			content = strings.Join(lines[first-1:last], "\n")
		}
		initLine = first
	}

	output := makeOutput(content, rel, totalLines, initLine)
	return &agent.ToolResult{Content: output, Message: "Displayed file content"}, nil
}

func (t *Tool) create(path, rel, fileText string) (*agent.ToolResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return agent.ToolError(fmt.Sprintf("Ran into %v while trying to write to %s", err, rel)), nil
	}
	prior := ""
	if data, err := os.ReadFile(path); err == nil {
		prior = string(data)
	}
	if err := t.writeFile(path, rel, fileText); err != nil {
		return agent.ToolError(err.Error()), nil
	}
	t.pushUndo(path, prior)
	msg := fmt.Sprintf("File created successfully at: %s", rel)
	return &agent.ToolResult{Content: msg, Message: msg}, nil
}

func (t *Tool) strReplace(path, rel, oldStr, newStr string) (*agent.ToolResult, error) {
	content, err := t.readFile(path, rel)
	if err != nil {
		return agent.ToolError(err.Error()), nil
	}

	// A blank old_str only means "set the whole file" when the file is empty.
	if strings.TrimSpace(oldStr) == "" {
		if strings.TrimSpace(content) != "" {
			return agent.ToolError(fmt.Sprintf("No replacement was performed, old_str is empty which is only allowed when the file is empty. The file %s is not empty.", rel)), nil
		}
		t.pushUndo(path, content)
		if err := t.writeFile(path, rel, newStr); err != nil {
			return agent.ToolError(err.Error()), nil
		}
		msg := fmt.Sprintf("The file %s has been edited. ", rel) +
			makeOutput(newStr, rel, len(strings.Split(newStr, "\n")), 1) +
			"Review the changes and make sure they are as expected. Edit the file again if necessary."
		return &agent.ToolResult{Content: msg, Message: fmt.Sprintf("The file %s has been edited.", rel)}, nil
	}

	occurrences := strings.Count(content, oldStr)
	if occurrences == 0 {
		return agent.ToolError(fmt.Sprintf("No replacement was performed, old_str \n```\n%s\n```\ndid not appear verbatim in %s.", oldStr, rel)), nil
	}
	if occurrences > 1 {
		var matchLines []int
		for idx, line := range strings.Split(content, "\n") {
			if strings.Contains(line, oldStr) {
				matchLines = append(matchLines, idx+1)
			}
		}
		return agent.ToolError(fmt.Sprintf("No replacement was performed. Multiple occurrences of old_str \n```\n%s\n```\nin lines %v. Please ensure it is unique", oldStr, matchLines)), nil
	}

	newContent := strings.Replace(content, oldStr, newStr, 1)
	t.pushUndo(path, content)
	if err := t.writeFile(path, rel, newContent); err != nil {
		return agent.ToolError(err.Error()), nil
	}

	replacementLine := strings.Count(strings.Split(content, oldStr)[0], "\n")
	startLine := max(0, replacementLine-snippetLines)
	endLine := replacementLine + snippetLines + strings.Count(newStr, "\n")
	newLines := strings.Split(newContent, "\n")
	snippet := strings.Join(newLines[startLine:min(endLine+1, len(newLines))], "\n")

	msg := fmt.Sprintf("The file %s has been edited. ", rel) +
		makeOutput(snippet, fmt.Sprintf("a snippet of %s", rel), len(newLines), startLine+1) +
		"Review the changes and make sure they are as expected. Edit the file again if necessary."
	return &agent.ToolResult{Content: msg, Message: fmt.Sprintf("The file %s has been edited.", rel)}, nil
}

func (t *Tool) insert(path, rel string, insertLine int, newStr string) (*agent.ToolResult, error) {
	content, err := t.readFile(path, rel)
	if err != nil {
		return agent.ToolError(err.Error()), nil
	}
	lines := strings.Split(content, "\n")
	n := len(lines)
	if insertLine < 0 || insertLine > n {
		return agent.ToolError(fmt.Sprintf("Invalid `insert_line` parameter: %d. It should be within the range of lines of the file: [0, %d]", insertLine, n)), nil
	}

	newLines := strings.Split(newStr, "\n")
	combined := make([]string, 0, n+len(newLines))
	combined = append(combined, lines[:insertLine]...)
	combined = append(combined, newLines...)
	combined = append(combined, lines[insertLine:]...)

	snippetStart := max(0, insertLine-snippetLines)
	snippetEnd := min(n, insertLine+snippetLines)
	snippet := make([]string, 0, snippetEnd-snippetStart+len(newLines))
	snippet = append(snippet, lines[snippetStart:insertLine]...)
	snippet = append(snippet, newLines...)
	snippet = append(snippet, lines[insertLine:snippetEnd]...)

	newContent := strings.Join(combined, "\n")
	t.pushUndo(path, content)
	if err := t.writeFile(path, rel, newContent); err != nil {
		return agent.ToolError(err.Error()), nil
	}

	msg := fmt.Sprintf("The file %s has been edited. ", rel) +
		makeOutput(strings.Join(snippet, "\n"), "a snippet of the edited file", len(combined), max(1, insertLine-snippetLines+1)) +
		"Review the changes and make sure they are as expected (correct indentation, no duplicate lines, etc). Edit the file again if necessary."
	return &agent.ToolResult{Content: msg, Message: "Insert successful"}, nil
}

func (t *Tool) undoEdit(path, rel string) (*agent.ToolResult, error) {
	t.mu.Lock()
	stack := t.history[path]
	if len(stack) == 0 {
		t.mu.Unlock()
		return agent.ToolError(fmt.Sprintf("No edit history found for %s.", rel)), nil
	}
	prior := stack[len(stack)-1]
	t.history[path] = stack[:len(stack)-1]
	t.mu.Unlock()

	if err := t.writeFile(path, rel, prior); err != nil {
		return agent.ToolError(err.Error()), nil
	}
	output := fmt.Sprintf("Last edit to %s undone successfully.\n%s", rel,
		makeOutput(prior, rel, len(strings.Split(prior, "\n")), 1))
	return &agent.ToolResult{Content: output, Message: "Undo successful"}, nil
}

func (t *Tool) pushUndo(path, content string) {
	t.mu.Lock()
	t.history[path] = append(t.history[path], content)
	t.mu.Unlock()
}

func (t *Tool) readFile(path, rel string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("Ran into %v while trying to read %s", err, rel)
	}
	return string(data), nil
}

func (t *Tool) writeFile(path, rel, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("Ran into %v while trying to write to %s", err, rel)
	}
	if t.cfg.Bus != nil {
		t.cfg.Bus.Publish(models.NewEvent(models.EventFileEdit, map[string]any{
			"path":        rel,
			"content":     content,
			"total_lines": len(strings.Split(content, "\n")),
		}))
	}
	return nil
}

// makeOutput renders content the way cat -n would, plus the whole-file line
// count.
func makeOutput(content, descriptor string, totalLines, initLine int) string {
	if len(content) > maxResponseLen {
		content = content[:maxResponseLen] + truncatedNotice
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Here's the result of running `cat -n` on %s:\n", descriptor)
	for i, line := range strings.Split(content, "\n") {
		fmt.Fprintf(&sb, "%6d\t%s\n", i+initLine, line)
	}
	fmt.Fprintf(&sb, "Total lines in file: %d\n", totalLines)
	return sb.String()
}

// listTwoLevels lists non-hidden entries up to two levels below dir.
func listTwoLevels(dir string) (string, error) {
	var entries []string
	entries = append(entries, dir)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		depth := len(strings.Split(rel, string(filepath.Separator)))
		if depth > 2 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		entries = append(entries, path)
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(entries)
	return strings.Join(entries, "\n"), nil
}
