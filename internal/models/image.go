// Package models defines the records exchanged with the identity provider,
// the backend API and the dashboard front ends.
package models

import (
	"encoding/json"
	"strings"
)

// Image is an image record as listed, searched or created by the backend.
// The hash is the content identifier and the stable key of the record.
type Image struct {
	// ID is the backend's row id, when it reports one.
	ID int64 `json:"id,omitempty"`
	// Hash identifies the image content.
	Hash string `json:"hash"`
	// Description is the generated caption; empty when absent.
	Description string `json:"description,omitempty"`
	// Tags are always trimmed, non-empty strings.
	Tags Tags `json:"tags"`
}

// Tags is an ordered list of image tags. On input it accepts a JSON list, a
// comma-separated string or null.
type Tags []string

// UnmarshalJSON normalizes the backend's tag representations.
func (t *Tags) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = NormalizeTags(raw)
	return nil
}

// MarshalJSON writes nil tags as an empty list.
func (t Tags) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(t))
}

// NormalizeTags turns a comma-separated string, a list of strings or nil
// into a sequence of trimmed, non-empty tags. Anything else yields an empty
// sequence.
func NormalizeTags(v any) Tags {
	out := Tags{}
	switch tags := v.(type) {
	case string:
		for _, tag := range strings.Split(tags, ",") {
			out = appendTag(out, tag)
		}
	case []string:
		for _, tag := range tags {
			out = appendTag(out, tag)
		}
	case Tags:
		for _, tag := range tags {
			out = appendTag(out, tag)
		}
	case []any:
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				out = appendTag(out, s)
			}
		}
	}
	return out
}

func appendTag(tags Tags, tag string) Tags {
	if tag = strings.TrimSpace(tag); tag != "" {
		return append(tags, tag)
	}
	return tags
}

// NormalizeImages normalizes the tags of every record in place and returns
// the slice, never nil.
func NormalizeImages(images []Image) []Image {
	if images == nil {
		return []Image{}
	}
	for i := range images {
		images[i].Tags = NormalizeTags(images[i].Tags)
		images[i].Description = strings.TrimSpace(images[i].Description)
	}
	return images
}

// ImageContent is the raw payload stored under an image hash.
type ImageContent struct {
	Data        []byte
	ContentType string
}
