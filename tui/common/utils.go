package common

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/CrestNiraj12/nwitter/domain"
)

// Truncate cuts s to width terminal cells, appending an ellipsis when cut.
func Truncate(s string, width int) string {
	if width <= 0 || ansi.StringWidth(s) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return ansi.Truncate(s, width, "…")
}

// RelativeTime renders t relative to now, falling back to a date for old posts.
func RelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
	return t.Format("Jan 2, 2006")
}

// LoadPhoto reads the image at path as an attachment candidate. The size is
// checked before reading so oversized files never load into memory.
func LoadPhoto(path string) (domain.Photo, error) {
	path = expandHome(strings.TrimSpace(path))
	if path == "" {
		return domain.Photo{}, domain.ErrPhotoCount
	}
	info, err := os.Stat(path)
	if err != nil {
		return domain.Photo{}, fmt.Errorf("reading photo: %w", err)
	}
	if info.IsDir() {
		return domain.Photo{}, domain.ErrPhotoCount
	}
	if info.Size() > domain.MaxPhotoBytes {
		return domain.Photo{}, domain.ErrPhotoTooLarge
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Photo{}, fmt.Errorf("reading photo: %w", err)
	}
	return domain.SinglePhoto([]domain.Photo{{
		Name:        filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}})
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// ErrorText is the inline message for err; file errors keep their detail.
func ErrorText(err error) string {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return "Cannot read " + filepath.Base(pathErr.Path) + "."
	}
	return domain.Describe(err)
}
