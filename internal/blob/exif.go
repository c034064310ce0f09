package blob

import (
	"context"
	"time"

	"github.com/barasher/go-exiftool"

	"github.com/conatus-oss/dana-archive/pkg/logger"
)

// exifTagPriority mirrors the teacher's entity.Media.GetCapturedTime table:
// the first of these tags present on the file wins.
var exifTagPriority = []struct {
	tag    string
	layout string
}{
	{"ModifyDate", "2006:01:02 15:04:05"},
	{"CreateDate", "2006:01:02 15:04:05"},
	{"FileModifyDate", "2006:01:02 15:04:05-07:00"},
}

// exifReader extracts capture time from a media file's EXIF tags,
// best-effort: any failure to read or parse falls back to nil (ingest time
// is used for ordering instead), never failing the enclosing put.
type exifReader struct {
	log *logger.StructuredLogger
	et  *exiftool.Exiftool
}

func newExifReader(log *logger.StructuredLogger) *exifReader {
	et, err := exiftool.NewExiftool()
	if err != nil {
		log.Warnw("exiftool unavailable, capture time enrichment disabled", "error", err)
		return &exifReader{log: log}
	}
	return &exifReader{log: log, et: et}
}

func (r *exifReader) capturedAt(ctx context.Context, path string) *time.Time {
	if r.et == nil {
		return nil
	}

	metas := r.et.ExtractMetadata(path)
	if len(metas) == 0 || metas[0].Err != nil {
		return nil
	}

	for _, candidate := range exifTagPriority {
		raw, err := metas[0].GetString(candidate.tag)
		if err != nil {
			continue
		}
		t, err := time.Parse(candidate.layout, raw)
		if err != nil {
			continue
		}
		return &t
	}
	return nil
}

func (r *exifReader) Close() {
	if r.et != nil {
		r.et.Close()
	}
}
