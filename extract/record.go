package extract

import (
	"fmt"
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// Ordered field aliases per logical field, resolved first-present-wins.
var (
	textAliases    = []string{"text", "body"}
	upvoteAliases  = []string{"likesCount", "likes"}
	dateAliases    = []string{"createdAt", "dateAdded"}
	commentAliases = []string{"commentCount", "commentsCount"}
)

var (
	brTagRegex   = regexp.MustCompile(`(?i)<br\s*/?>`)
	htmlTagRegex = regexp.MustCompile(`<[^>]+>`)
)

// CleanHTML converts <br> tags to newlines, strips all remaining markup,
// and unescapes entities.
func CleanHTML(s string) string {
	s = brTagRegex.ReplaceAllString(s, "\n")
	s = htmlTagRegex.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(s)
}

// outputTimeLayout is the timestamp format of the emitted table.
const outputTimeLayout = "2006-01-02T15:04:05"

var inputTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	outputTimeLayout,
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02",
}

// NormalizeTimestamp coerces an upstream date value into the output layout.
// Upstream delivers either epoch milliseconds or one of a few formatted
// strings; unrecognized strings pass through untouched.
func NormalizeTimestamp(v any) string {
	switch value := v.(type) {
	case float64:
		if value <= 0 {
			return ""
		}
		return time.UnixMilli(int64(value)).UTC().Format(outputTimeLayout)
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return ""
		}
		for _, layout := range inputTimeLayouts {
			if parsed, err := time.Parse(layout, trimmed); err == nil {
				return parsed.Format(outputTimeLayout)
			}
		}
		return trimmed
	default:
		return ""
	}
}

// parseReviewObject normalizes one raw review object into a ReviewRecord.
// store is the flat typed-key object table for resolving references, nil
// for strategies whose objects are fully inline. index numbers the record
// within the current extraction batch for synthetic reviewer ids.
// ok is false when the object fails the text-or-rating invariant.
func parseReviewObject(obj map[string]any, store map[string]any, index int) (models.ReviewRecord, bool) {
	record := models.ReviewRecord{}

	text := rawField(obj, textAliases...)
	// The text field may itself be a reference needing one more hop.
	if ref, isRef := refTarget(text); isRef && store != nil {
		if resolved, ok := store[ref].(map[string]any); ok {
			text = rawField(resolved, textAliases...)
		} else {
			text = nil
		}
	}
	if s, ok := text.(string); ok {
		record.Text = CleanHTML(s)
	}

	if rating, ok := floatField(obj, "rating"); ok {
		whole := int(rating)
		if float64(whole) == rating && whole >= 1 && whole <= 5 {
			record.Rating = whole
		}
	}

	record.ReviewerID, record.ReviewerName = reviewerFields(obj, store)
	record.Upvotes = intField(obj, upvoteAliases...)
	record.CreatedAt = NormalizeTimestamp(rawField(obj, dateAliases...))
	record.URL = stringField(obj, "url")
	record.Shelves = shelfNames(obj["shelves"])
	record.CommentCount = intField(obj, commentAliases...)

	if record.Text == "" && !record.HasRating() {
		return models.ReviewRecord{}, false
	}
	if record.ReviewerID == "" {
		record.ReviewerID = fmt.Sprintf("unknown_%d", index)
	}
	return record, true
}

// reviewerFields resolves the reviewer id and name. A creator/user
// reference is resolved against the store (legacyId preferred over id);
// inline user objects and flat userId/userName fields are the fallbacks.
func reviewerFields(obj map[string]any, store map[string]any) (id, name string) {
	userRaw, ok := obj["creator"]
	if !ok {
		userRaw = obj["user"]
	}

	if userMap, isMap := userRaw.(map[string]any); isMap {
		if ref, isRef := refTarget(userMap); isRef {
			if store != nil {
				if userObj, found := store[ref].(map[string]any); found {
					id = stringField(userObj, "legacyId", "id")
					name = stringField(userObj, "name")
				}
			}
		} else {
			id = stringField(userMap, "id")
			name = stringField(userMap, "name")
		}
	}

	if id == "" {
		id = stringField(obj, "userId", "id")
	}
	if name == "" {
		name = stringField(obj, "userName")
	}
	return id, name
}

// refTarget reports whether v is a typed-key reference marker and returns
// the target key.
func refTarget(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	ref, ok := m["__ref"].(string)
	return ref, ok
}

func shelfNames(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var names []string
	for _, item := range items {
		switch shelf := item.(type) {
		case string:
			if shelf != "" {
				names = append(names, shelf)
			}
		case map[string]any:
			if name := stringField(shelf, "name"); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

// rawField returns the first present alias value, whatever its type.
func rawField(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if value, ok := m[key]; ok && value != nil {
			return value
		}
	}
	return nil
}

// stringField returns the first present alias as a string. JSON numbers
// are rendered as integers when they are whole, matching upstream ids.
func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		value, ok := m[key]
		if !ok || value == nil {
			continue
		}
		switch typed := value.(type) {
		case string:
			if typed != "" {
				return typed
			}
		case float64:
			if typed == math.Trunc(typed) {
				return strconv.FormatInt(int64(typed), 10)
			}
			return strconv.FormatFloat(typed, 'f', -1, 64)
		}
	}
	return ""
}

func intField(m map[string]any, keys ...string) int {
	for _, key := range keys {
		if value, ok := m[key].(float64); ok {
			if value < 0 {
				return 0
			}
			return int(value)
		}
	}
	return 0
}

func floatField(m map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if value, ok := m[key].(float64); ok {
			return value, true
		}
	}
	return 0, false
}

// childMap walks nested objects along path, returning nil when any hop is
// missing or not an object.
func childMap(m map[string]any, path ...string) map[string]any {
	current := m
	for _, key := range path {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// childSlice walks nested objects along path, expecting a list at the last
// hop.
func childSlice(m map[string]any, path ...string) []any {
	if len(path) == 0 {
		return nil
	}
	parent := m
	if len(path) > 1 {
		parent = childMap(m, path[:len(path)-1]...)
	}
	if parent == nil {
		return nil
	}
	items, _ := parent[path[len(path)-1]].([]any)
	return items
}
