package service

import (
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
)

// scheduleLayouts are the accepted ISO 8601 forms. Times without an offset are UTC.
var scheduleLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func ParseScheduleTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range scheduleLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperr.Newf(apperr.InvalidInput, "invalid scheduled time %q, expected ISO 8601", value)
}

func platformKnown(p models.Platform) (models.Platform, bool) {
	return models.ParsePlatform(string(p))
}

// dedupePlatforms normalizes names and drops repeats, keeping the first occurrence.
func dedupePlatforms(platforms []models.Platform) []models.Platform {
	seen := make(map[models.Platform]bool, len(platforms))
	out := make([]models.Platform, 0, len(platforms))
	for _, p := range platforms {
		if n, ok := platformKnown(p); ok {
			p = n
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
