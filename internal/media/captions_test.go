package media

import (
	"strings"
	"testing"
)

func TestBuildCaption(t *testing.T) {
	tests := []struct {
		name      string
		caption   string
		text      string
		template  string
		hashtags  string
		maxLength int
		want      string
	}{
		{
			name:     "caption wins over text",
			caption:  "cat video",
			text:     "ignored",
			template: "From TG: {text}",
			want:     "From TG: cat video",
		},
		{
			name:     "text used when caption empty",
			text:     "fallback text",
			template: "From TG: {text}",
			want:     "From TG: fallback text",
		},
		{
			name:     "hashtags appended",
			caption:  "cat",
			template: "{text}",
			hashtags: "#cats #daily",
			want:     "cat #cats #daily",
		},
		{
			name:     "empty source keeps hashtags only",
			template: "{text}",
			hashtags: "#cats",
			want:     "#cats",
		},
		{
			name:     "template without placeholder",
			caption:  "ignored by template",
			template: "static title",
			want:     "static title",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildCaption(tt.caption, tt.text, tt.template, tt.hashtags, tt.maxLength)
			if got != tt.want {
				t.Errorf("BuildCaption() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildCaptionTruncation(t *testing.T) {
	long := strings.Repeat("x", 3000)
	got := BuildCaption(long, "", "{text}", "", 2200)
	if len([]rune(got)) != 2200 {
		t.Errorf("truncated length = %d, want 2200", len([]rune(got)))
	}
}

func TestBuildCaptionTruncationIsRuneSafe(t *testing.T) {
	got := BuildCaption(strings.Repeat("日", 10), "", "{text}", "", 5)
	if got != strings.Repeat("日", 5) {
		t.Errorf("got %q, want 5 runes", got)
	}
}
