package editor

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/agentd/internal/agent"
)

// strReplaceIgnoreIndent matches old_str against the file with leading and
// trailing whitespace stripped per line, then reindents new_str to the
// indentation of the first matched line. A final old_str line that is a
// prefix of its matched line keeps the remainder of that line.
func (t *Tool) strReplaceIgnoreIndent(path, rel, oldStr, newStr string) (*agent.ToolResult, error) {
	content, err := t.readFile(path, rel)
	if err != nil {
		return agent.ToolError(err.Error()), nil
	}
	if strings.TrimSpace(oldStr) == "" {
		return t.strReplace(path, rel, oldStr, newStr)
	}

	contentLines := strings.Split(content, "\n")
	stripped := make([]string, len(contentLines))
	for i, line := range contentLines {
		stripped[i] = strings.TrimSpace(line)
	}
	oldLines := strings.Split(oldStr, "\n")
	for i, line := range oldLines {
		oldLines[i] = strings.TrimSpace(line)
	}

	var matches []int
	var suffix string
	for i := 0; i+len(oldLines) <= len(stripped); i++ {
		ok := true
		candidateSuffix := ""
		for j, pattern := range oldLines {
			if j == len(oldLines)-1 {
				if strings.HasPrefix(stripped[i+j], pattern) {
					candidateSuffix = stripped[i+j][len(pattern):]
				} else {
					ok = false
				}
				break
			}
			if stripped[i+j] != pattern {
				ok = false
				break
			}
		}
		if ok {
			matches = append(matches, i)
			suffix = candidateSuffix
		}
	}

	if len(matches) == 0 {
		return agent.ToolError(fmt.Sprintf("No replacement was performed, old_str \n```\n%s\n```\ndid not appear in %s.", oldStr, rel)), nil
	}
	if len(matches) > 1 {
		matchLines := make([]int, len(matches))
		for i, idx := range matches {
			matchLines[i] = idx + 1
		}
		return agent.ToolError(fmt.Sprintf("No replacement was performed. Multiple occurrences of old_str \n```\n%s\n```\nstarting at lines %v. Please ensure it is unique", oldStr, matchLines)), nil
	}

	matchStart := matches[0]
	matchEnd := matchStart + len(oldLines)
	indented := matchIndentByFirstLine(newStr+suffix, contentLines[matchStart])

	replacement := strings.Split(indented, "\n")
	combined := make([]string, 0, len(contentLines)-len(oldLines)+len(replacement))
	combined = append(combined, contentLines[:matchStart]...)
	combined = append(combined, replacement...)
	combined = append(combined, contentLines[matchEnd:]...)
	newContent := strings.Join(combined, "\n")

	t.pushUndo(path, content)
	if err := t.writeFile(path, rel, newContent); err != nil {
		return agent.ToolError(err.Error()), nil
	}

	startLine := max(0, matchStart-snippetLines)
	endLine := matchStart + snippetLines + strings.Count(indented, "\n")
	snippet := strings.Join(combined[startLine:min(endLine+1, len(combined))], "\n")

	msg := fmt.Sprintf("The file %s has been edited. ", rel) +
		makeOutput(snippet, fmt.Sprintf("a snippet of %s", rel), len(combined), startLine+1) +
		"Review the changes and make sure they are as expected. Edit the file again if necessary."
	return &agent.ToolResult{Content: msg, Message: fmt.Sprintf("The file %s has been edited.", rel)}, nil
}

// leadingWhitespace returns the run of spaces and tabs opening the line.
func leadingWhitespace(line string) string {
	for i, r := range line {
		if r != ' ' && r != '\t' {
			return line[:i]
		}
	}
	return line
}

// matchIndentByFirstLine shifts every line of code so its first line carries
// the same indentation as target, preserving relative indentation.
func matchIndentByFirstLine(code, target string) string {
	lines := strings.Split(code, "\n")
	if len(lines) == 0 {
		return code
	}
	targetIndent := len(leadingWhitespace(target))
	currentIndent := len(leadingWhitespace(lines[0]))
	diff := targetIndent - currentIndent

	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			out[i] = line
			continue
		}
		indent := len(leadingWhitespace(line))
		width := indent + diff
		if width < 0 {
			width = 0
		}
		out[i] = strings.Repeat(" ", width) + strings.TrimLeft(line, " \t")
	}
	return strings.Join(out, "\n")
}
