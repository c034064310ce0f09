package blob

import (
	"path/filepath"
	"strings"
)

// extensionMimeTypes is the accepted-media-type table spec.md §4.2 names
// (PDF, common image, common audio/video, subtitles), grounded on the
// teacher's entity.Media.ContentType extension switch, extended to the
// full accepted set.
var extensionMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".tif":  "image/tiff",
	".tiff": "image/tiff",

	".pdf": "application/pdf",

	".mp3": "audio/mpeg",
	".wav": "audio/wav",
	".m4a": "audio/mp4",
	".flac": "audio/flac",

	".mp4": "video/mp4",
	".mov": "video/quicktime",
	".avi": "video/x-msvideo",
	".mkv": "video/x-matroska",

	".srt": "application/x-subrip",
	".vtt": "text/vtt",
}

// mimeForExtension returns the mime type for ext (with or without a
// leading dot) and whether it is in the accepted set.
func mimeForExtension(ext string) (string, bool) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	mime, ok := extensionMimeTypes[ext]
	return mime, ok
}

// extensionForPath derives the extension (without the leading dot) from a
// source file path.
func extensionForPath(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func isImageMime(mime string) bool {
	return strings.HasPrefix(mime, "image/")
}
