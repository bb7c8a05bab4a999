package media

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Kind is the broad category of an attachment.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	// KindFile covers documents and anything else.
	KindFile Kind = "file"
)

// KindOf classifies a MIME type.
func KindOf(mimeType string) Kind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return KindAudio
	default:
		return KindFile
	}
}

// File is an attachment's raw contents.
type File struct {
	Name string
	// Type is the MIME type, without parameters.
	Type string
	Data []byte
}

// Size returns the file size in bytes.
func (f *File) Size() int64 { return int64(len(f.Data)) }

// Open returns a reader over the file contents.
func (f *File) Open() io.Reader { return bytes.NewReader(f.Data) }

// ReadFile loads path and determines its MIME type from the extension,
// falling back to content sniffing.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	name := filepath.Base(path)
	return &File{Name: name, Type: DetectType(name, data), Data: data}, nil
}

// DetectType guesses the MIME type of a named blob. Known aliases are
// reported under their canonical name.
func DetectType(name string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return canonicalType(mt)
		}
	}
	mt, _, err := mime.ParseMediaType(http.DetectContentType(data))
	if err != nil {
		return "application/octet-stream"
	}
	return canonicalType(mt)
}

var typeAliases = map[string]string{
	"audio/x-wav":     "audio/wav",
	"audio/wave":      "audio/wav",
	"audio/vnd.wave":  "audio/wav",
	"application/ogg": "audio/ogg",
	"audio/x-m4a":     "audio/mp4",
	"audio/mp3":       "audio/mpeg",
	"image/jpg":       "image/jpeg",
	"image/pjpeg":     "image/jpeg",
}

func canonicalType(mt string) string {
	if c, ok := typeAliases[mt]; ok {
		return c
	}
	return mt
}
