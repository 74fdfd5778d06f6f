package seeder

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// StringList decodes from either a JSON array of strings or a single
// comma-separated string.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.WithStack(err)
		}
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*l = out
		return nil
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return errors.WithStack(err)
	}
	*l = out
	return nil
}

// Number decodes from a JSON number or a numeric string such as "12.5".
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.Errorf("invalid number %s", string(data))
	}
	*n = Number(f)
	return nil
}

// ComicRecord is one scraped series entry.
type ComicRecord struct {
	Title       string     `json:"title" mod:"trim" validate:"required"`
	Slug        string     `json:"slug" mod:"trim"`
	AltTitles   StringList `json:"alt_titles"`
	Description string     `json:"description"`
	Status      string     `json:"status" mod:"trim"`
	Category    string     `json:"category" mod:"trim"`
	Author      string     `json:"author" mod:"trim"`
	Artist      string     `json:"artist" mod:"trim"`
	Creators    StringList `json:"creators"`
	Tags        StringList `json:"tags"`
	ImageURLs   StringList `json:"image_urls"`
	Images      StringList `json:"images"`
	Cover       string     `json:"cover" mod:"trim"`
	SourceURL   string     `json:"source_url" mod:"trim"`

	// Dates holds the raw value of every timestamp alias present on the
	// input object.
	Dates map[string]interface{} `json:"-"`
}

// Label identifies the record in logs.
func (r *ComicRecord) Label() string {
	return r.Title
}

// ChapterRecord is one scraped chapter entry.
type ChapterRecord struct {
	ComicTitle string     `json:"comic_title" mod:"trim" validate:"required_without=ComicSlug"`
	ComicSlug  string     `json:"comic_slug" mod:"trim"`
	Number     *Number    `json:"number" validate:"required"`
	Title      string     `json:"title" mod:"trim"`
	Pages      StringList `json:"pages"`
	ImageURLs  StringList `json:"image_urls"`
	SourceURL  string     `json:"source_url" mod:"trim"`

	Dates map[string]interface{} `json:"-"`
}

func (r *ChapterRecord) Label() string {
	parent := r.ComicTitle
	if parent == "" {
		parent = r.ComicSlug
	}
	if r.Number == nil {
		return parent
	}
	return parent + " #" + formatNumber(float64(*r.Number))
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
