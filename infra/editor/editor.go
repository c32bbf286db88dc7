package editor

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/CrestNiraj12/nwitter/domain"
)

// EnvEditor prepares an external editor command using $EDITOR (fallback: "vi").
// It does NOT run the editor itself. Callers hand the returned *exec.Cmd to
// tea.ExecProcess so Bubble Tea suspends raw terminal mode.
type EnvEditor struct {
	editor string
}

// NewEnvEditor creates an EnvEditor for the current $EDITOR.
func NewEnvEditor() *EnvEditor {
	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	return &EnvEditor{editor: editor}
}

var instructionComment = fmt.Sprintf(`<!--
nwitter: write your post below.

- SAVE and EXIT to use the text (e.g., :wq in vi).
- Posts are 1 to %d characters.
- An empty file cancels.
-->

`, domain.MaxBodyRunes)

// Cmd writes content below the instruction comment to a temp file and
// returns the editor command for it along with the file path.
func (e *EnvEditor) Cmd(content string) (*exec.Cmd, string, error) {
	tmpFile, err := os.CreateTemp("", "nwitter-*.md")
	if err != nil {
		return nil, "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer tmpFile.Close()

	if _, err := tmpFile.WriteString(instructionComment + content); err != nil {
		os.Remove(tmpPath)
		return nil, "", fmt.Errorf("writing to temp file: %w", err)
	}

	// $EDITOR may carry flags, e.g. "code --wait".
	fields := strings.Fields(e.editor)
	args := append(fields[1:], tmpPath)
	return exec.Command(fields[0], args...), tmpPath, nil
}

// ReadContent reads the temp file, strips the instruction comment and removes
// the file. Only a single trailing newline is dropped so the body keeps the
// whitespace the user typed.
func (e *EnvEditor) ReadContent(path string) (string, error) {
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading temp file: %w", err)
	}

	content := string(data)
	if idx := strings.Index(content, "-->"); idx != -1 {
		content = strings.TrimLeft(content[idx+3:], "\n")
	}
	content = strings.TrimSuffix(content, "\n")
	if strings.TrimSpace(content) == "" {
		return "", nil
	}
	return content, nil
}
