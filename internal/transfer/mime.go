package transfer

import (
	"path/filepath"
	"strings"
)

const OctetStream = "application/octet-stream"

const textPlain = "text/plain; charset=utf-8"

// contentTypes is fixed on purpose: the served type must not depend on the
// host's mime database. Markup and scripts are sent as plain text so a shared
// .html file is shown, not executed, in the browser.
var contentTypes = map[string]string{
	// text
	".txt":  textPlain,
	".log":  textPlain,
	".md":   textPlain,
	".csv":  textPlain,
	".json": textPlain,
	".yaml": textPlain,
	".yml":  textPlain,
	".py":   textPlain,
	".js":   textPlain,
	".css":  textPlain,
	".html": textPlain,
	".go":   textPlain,
	".sh":   textPlain,
	// images
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	// video
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	// audio
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	// docs/archives
	".pdf": "application/pdf",
	".zip": "application/zip",
	".tar": "application/x-tar",
	".gz":  "application/gzip",
}

// ContentType maps a file name to its served Content-Type by extension,
// case-insensitively, defaulting to application/octet-stream.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return OctetStream
}

// IsImage reports whether name is one of the raster formats the thumbnailer decodes.
func IsImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp":
		return true
	}
	return false
}
