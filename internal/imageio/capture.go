package imageio

import (
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"photocull/internal/config"
)

const exifLayout = "2006:01:02 15:04:05"

// CaptureTime resolves a photo's capture time in epoch seconds.
// In auto and exif modes the EXIF date tags are consulted first; every mode
// falls back to the file modification time, and 0 is returned when neither is
// available. Unknown modes behave like auto.
func CaptureTime(path, source string) float64 {
	src := strings.ToLower(strings.TrimSpace(source))
	if src != config.TimeSourceMtime {
		if ts, ok := exifTime(path); ok {
			return ts
		}
	}

	stat, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return float64(stat.ModTime().UnixNano()) / 1e9
}

func exifTime(path string) (float64, bool) {
	file, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer file.Close()

	x, err := exif.Decode(file)
	if err != nil {
		return 0, false
	}

	for _, name := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized, exif.DateTime} {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		s, err := tag.StringVal()
		if err != nil {
			continue
		}
		// EXIF dates carry no zone; interpret them as local time.
		t, err := time.ParseInLocation(exifLayout, strings.TrimSpace(strings.TrimRight(s, "\x00")), time.Local)
		if err != nil {
			continue
		}
		return float64(t.Unix()), true
	}
	return 0, false
}
