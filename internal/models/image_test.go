package models

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Tags
	}{
		{name: "nil", in: nil, want: Tags{}},
		{name: "comma string", in: "pet, cute", want: Tags{"pet", "cute"}},
		{name: "drops empty pieces", in: " a,, b ,", want: Tags{"a", "b"}},
		{name: "empty string", in: "", want: Tags{}},
		{name: "list is identity", in: []string{"pet", "cute"}, want: Tags{"pet", "cute"}},
		{name: "decoded json list", in: []any{"x", 1, " y "}, want: Tags{"x", "y"}},
		{name: "unsupported type", in: 42, want: Tags{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTags(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("NormalizeTags(%v) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestImage_UnmarshalSearchResult(t *testing.T) {
	body := `[{"hash":"abc","description":"cat","tags":"pet, cute"}]`

	var images []Image
	require.NoError(t, json.Unmarshal([]byte(body), &images))

	want := []Image{{Hash: "abc", Description: "cat", Tags: Tags{"pet", "cute"}}}
	if diff := cmp.Diff(want, images); diff != "" {
		t.Errorf("decoded images mismatch (-want +got):\n%s", diff)
	}
}

func TestImage_UnmarshalNullTags(t *testing.T) {
	var img Image
	require.NoError(t, json.Unmarshal([]byte(`{"id":7,"hash":"h","description":null,"tags":null}`), &img))
	assert.Equal(t, int64(7), img.ID)
	assert.Empty(t, img.Description)
	assert.Equal(t, Tags{}, img.Tags)
}

func TestImage_MarshalAlwaysWritesTagList(t *testing.T) {
	b, err := json.Marshal(Image{Hash: "h"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"hash":"h","tags":[]}`, string(b))
}

func TestNormalizeImages(t *testing.T) {
	assert.Equal(t, []Image{}, NormalizeImages(nil))

	in := []Image{{Hash: "a", Description: " dog ", Tags: Tags{" x ", ""}}}
	out := NormalizeImages(in)
	assert.Equal(t, "dog", out[0].Description)
	assert.Equal(t, Tags{"x"}, out[0].Tags)
}

func TestUser_HasRole(t *testing.T) {
	u := &User{Username: "alice", Roles: []string{"viewer", "uploader"}}
	assert.True(t, u.HasRole("uploader"))
	assert.False(t, u.HasRole("admin"))

	var nobody *User
	assert.False(t, nobody.HasRole("viewer"))
}
