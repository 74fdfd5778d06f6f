package seeder

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gosimple/slug"
	"github.com/shishobooks/comicseed/pkg/htmlutil"
	"github.com/shishobooks/comicseed/pkg/metadatacache"
	"github.com/shishobooks/comicseed/pkg/models"
)

// MaxDescriptionLength is measured in runes.
const MaxDescriptionLength = 5000

const (
	minYear        = 1000
	maxYear        = 9999
	minEpochDigits = 9
)

var sentinelNames = map[string]struct{}{
	"":         {},
	"unknown":  {},
	"n/a":      {},
	"-":        {},
	"updating": {},
}

var statusAliases = map[string]string{
	"ongoing":      models.ComicStatusOngoing,
	"on going":     models.ComicStatusOngoing,
	"on-going":     models.ComicStatusOngoing,
	"publishing":   models.ComicStatusOngoing,
	"releasing":    models.ComicStatusOngoing,
	"completed":    models.ComicStatusCompleted,
	"complete":     models.ComicStatusCompleted,
	"finished":     models.ComicStatusCompleted,
	"ended":        models.ComicStatusCompleted,
	"hiatus":       models.ComicStatusHiatus,
	"on hiatus":    models.ComicStatusHiatus,
	"paused":       models.ComicStatusHiatus,
	"cancelled":    models.ComicStatusCancelled,
	"canceled":     models.ComicStatusCancelled,
	"dropped":      models.ComicStatusCancelled,
	"discontinued": models.ComicStatusCancelled,
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"20060102",
	"2006-01",
	"2006",
}

// IsSentinelName reports whether a scraped name stands for "no value".
func IsSentinelName(name string) bool {
	_, ok := sentinelNames[strings.ToLower(metadatacache.NormalizeName(name))]
	return ok
}

// NormalizeStatus maps a scraped status onto the closed status set,
// defaulting to ongoing.
func NormalizeStatus(status string) string {
	key := strings.ToLower(metadatacache.NormalizeName(status))
	if s, ok := statusAliases[key]; ok {
		return s
	}
	return models.ComicStatusOngoing
}

// NormalizeDescription strips markup and caps the result at
// MaxDescriptionLength runes. Nil means there is no description.
func NormalizeDescription(desc string) *string {
	desc = htmlutil.StripTags(desc)
	if desc == "" {
		return nil
	}
	desc = TruncateRunes(desc, MaxDescriptionLength)
	return &desc
}

func TruncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Slugify derives a URL slug from a title.
func Slugify(title string) string {
	s := slug.Make(title)
	if s == "" {
		s = "comic"
	}
	return s
}

// ParseTime accepts RFC 3339 and several common date layouts, plus unix
// seconds or milliseconds as numbers or digit strings. Unparseable values
// yield nil.
func ParseTime(v interface{}) *time.Time {
	switch val := v.(type) {
	case float64:
		if val >= minYear && val <= maxYear && val == math.Trunc(val) {
			t := time.Date(int(val), time.January, 1, 0, 0, 0, 0, time.UTC)
			return &t
		}
		return fromUnix(val)
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				t = t.UTC()
				return &t
			}
		}
		// Shorter digit strings are years or compact dates, never epochs.
		if len(s) >= minEpochDigits {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return fromUnix(f)
			}
		}
	}
	return nil
}

func fromUnix(f float64) *time.Time {
	if f <= 0 {
		return nil
	}
	var t time.Time
	if f > 1e12 {
		t = time.UnixMilli(int64(f)).UTC()
	} else {
		t = time.Unix(int64(f), 0).UTC()
	}
	return &t
}

// firstTime returns the first parseable value among the given aliases.
func firstTime(dates map[string]interface{}, aliases []string) *time.Time {
	for _, key := range aliases {
		if v, ok := dates[key]; ok {
			if t := ParseTime(v); t != nil {
				return t
			}
		}
	}
	return nil
}

// referenceNames normalizes names, drops sentinels and removes
// case-insensitive duplicates while keeping order.
func referenceNames(names ...string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, n := range names {
		n = metadatacache.NormalizeName(n)
		if IsSentinelName(n) {
			continue
		}
		key := strings.ToLower(n)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
