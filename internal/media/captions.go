package media

import "strings"

// BuildCaption renders the post title from the source message. The template's
// {text} placeholder is replaced with the first non-empty of caption and text,
// hashtags are appended, and the result is truncated to maxLength runes.
func BuildCaption(sourceCaption, sourceText, template, hashtags string, maxLength int) string {
	text := strings.TrimSpace(sourceCaption)
	if text == "" {
		text = strings.TrimSpace(sourceText)
	}

	caption := strings.ReplaceAll(template, "{text}", text)
	caption = strings.TrimSpace(caption)

	if hashtags != "" {
		if caption != "" {
			caption += " "
		}
		caption += hashtags
	}

	if maxLength > 0 {
		runes := []rune(caption)
		if len(runes) > maxLength {
			caption = string(runes[:maxLength])
		}
	}
	return caption
}
