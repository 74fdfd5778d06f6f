package seeder

import (
	"context"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/mold/v4"
	"github.com/go-playground/mold/v4/modifiers"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/comicseed/pkg/errcodes"
)

var (
	publishedAliases = []string{"published_at", "publishedAt", "release_date", "released_at", "created_at", "createdAt"}
	updatedAliases   = []string{"updated_at", "updatedAt", "last_updated", "lastUpdated", "modified_at"}
)

// Invalid describes an input record that failed upstream validation. It never
// reaches a seeder.
type Invalid struct {
	Index  int
	Label  string
	Reason string
}

// Loader decodes record files, trims string fields with mold and validates
// the result.
type Loader struct {
	conform  *mold.Transformer
	validate *validator.Validate
}

func NewLoader() *Loader {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Loader{conform: modifiers.New(), validate: validate}
}

func (l *Loader) LoadComicFile(ctx context.Context, path string) ([]*ComicRecord, []Invalid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	defer f.Close()
	return l.LoadComicRecords(ctx, f)
}

func (l *Loader) LoadChapterFile(ctx context.Context, path string) ([]*ChapterRecord, []Invalid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	defer f.Close()
	return l.LoadChapterRecords(ctx, f)
}

// LoadComicRecords reads a JSON array of records, or an object with the array
// under "data".
func (l *Loader) LoadComicRecords(ctx context.Context, r io.Reader) ([]*ComicRecord, []Invalid, error) {
	raws, err := readArray(r)
	if err != nil {
		return nil, nil, err
	}

	records := make([]*ComicRecord, 0, len(raws))
	var invalid []Invalid
	for i, raw := range raws {
		rec := &ComicRecord{}
		if reason := l.bind(ctx, raw, rec); reason != "" {
			invalid = append(invalid, Invalid{Index: i, Label: rec.Title, Reason: reason})
			continue
		}
		rec.Dates = extractDates(raw)
		records = append(records, rec)
	}
	return records, invalid, nil
}

func (l *Loader) LoadChapterRecords(ctx context.Context, r io.Reader) ([]*ChapterRecord, []Invalid, error) {
	raws, err := readArray(r)
	if err != nil {
		return nil, nil, err
	}

	records := make([]*ChapterRecord, 0, len(raws))
	var invalid []Invalid
	for i, raw := range raws {
		rec := &ChapterRecord{}
		if reason := l.bind(ctx, raw, rec); reason != "" {
			invalid = append(invalid, Invalid{Index: i, Label: rec.Label(), Reason: reason})
			continue
		}
		rec.Dates = extractDates(raw)
		records = append(records, rec)
	}
	return records, invalid, nil
}

// bind decodes, conforms and validates one record. A non-empty return is the
// reason the record is invalid.
func (l *Loader) bind(ctx context.Context, raw json.RawMessage, rec interface{}) string {
	if err := json.Unmarshal(raw, rec); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Sprintf("%q should be of type %s", strings.Trim(typeErr.Field, "."), typeErr.Type)
		}
		return "malformed record"
	}
	if err := l.conform.Struct(ctx, rec); err != nil {
		return err.Error()
	}
	if err := l.validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return formatValidationError(verrs[0])
		}
		return err.Error()
	}
	return ""
}

func formatValidationError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", err.Field())
	case "required_without":
		return fmt.Sprintf("%q is required when %q is missing", err.Field(), err.Param())
	default:
		return fmt.Sprintf("%q failed %s validation", err.Field(), err.Tag())
	}
}

func readArray(r io.Reader) ([]json.RawMessage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err == nil {
		return raws, nil
	}

	var wrapped struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, errcodes.InvalidRecord("input must be a JSON array or an object with a \"data\" array")
	}
	return wrapped.Data, nil
}

func extractDates(raw json.RawMessage) map[string]interface{} {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	dates := map[string]interface{}{}
	for _, aliases := range [][]string{publishedAliases, updatedAliases} {
		for _, key := range aliases {
			if v, ok := fields[key]; ok && v != nil {
				dates[key] = v
			}
		}
	}
	return dates
}
