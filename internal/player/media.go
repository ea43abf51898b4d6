package player

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// EnqueueMode says where a loaded item goes in mpv's playlist.
type EnqueueMode string

const (
	EnqueueReplace EnqueueMode = "replace" // replace the playlist and play
	EnqueueAppend  EnqueueMode = "append"  // append to the end
	EnqueueNext    EnqueueMode = "next"    // insert after the current entry
	EnqueuePlay    EnqueueMode = "play"    // insert after the current entry and jump to it
)

// ParseEnqueueMode accepts the mode names above; empty means replace.
func ParseEnqueueMode(s string) (EnqueueMode, error) {
	switch m := EnqueueMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return EnqueueReplace, nil
	case EnqueueReplace, EnqueueAppend, EnqueueNext, EnqueuePlay:
		return m, nil
	}
	return "", fmt.Errorf("%w: enqueue mode %q", ErrInvalidArgument, s)
}

// loadfile flag for the mode
func (m EnqueueMode) flag() string {
	switch m {
	case EnqueueAppend:
		return "append"
	case EnqueueNext, EnqueuePlay:
		return "insert-next"
	}
	return "replace"
}

// MediaRef is what the host platform asks to play: a local path, a file://
// URL or any URL mpv can open itself.
type MediaRef struct {
	URI     string
	Enqueue EnqueueMode
}

// localPath reports the filesystem path behind ref, if it names a local file.
func (ref MediaRef) localPath() (string, bool) {
	uri := strings.TrimSpace(ref.URI)
	if uri == "" {
		return "", false
	}
	if filepath.IsAbs(uri) {
		return filepath.Clean(uri), true
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", false
	}
	if u.Scheme == "file" {
		return filepath.Clean(filepath.FromSlash(u.Path)), u.Path != ""
	}
	if u.Scheme == "" {
		// relative path, resolved by whoever can see the file
		return filepath.Clean(uri), true
	}
	return "", false
}
