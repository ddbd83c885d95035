package utils

import "github.com/microcosm-cc/bluemonday"

var (
	contentPolicy = bluemonday.UGCPolicy()
	textPolicy    = bluemonday.StrictPolicy()
)

// Sanitize cleans HTML content to prevent XSS attacks, keeping user-generated-content markup.
func Sanitize(input string) string {
	return contentPolicy.Sanitize(input)
}

// SanitizeText strips every tag; used for single-line fields such as titles.
func SanitizeText(input string) string {
	return textPolicy.Sanitize(input)
}
