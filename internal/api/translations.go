package api

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var translationTitlePattern = regexp.MustCompile(`^(.*?)\s*\((\d+)\s*эп\.\)\s*$`)

// ParseTranslationTitle splits a label such as "AniLibria (12 эп.)" into its
// name and episode count. ok is false when the label carries no count.
func ParseTranslationTitle(label string) (name string, episodes int, ok bool) {
	label = strings.TrimSpace(label)
	match := translationTitlePattern.FindStringSubmatch(label)
	if match == nil {
		return label, 0, false
	}
	count, err := strconv.Atoi(match[2])
	if err != nil {
		return label, 0, false
	}
	return strings.TrimSpace(match[1]), count, true
}

// NormalizeTranslations fills missing episode counts from title labels and
// trims names in place.
func NormalizeTranslations(list []Translation) []Translation {
	for i := range list {
		name, count, ok := ParseTranslationTitle(list[i].Title)
		if !ok {
			list[i].Title = name
			continue
		}
		list[i].Title = name
		if list[i].Episodes == 0 {
			list[i].Episodes = count
		}
	}
	return list
}

// DisplayTitle title-cases a label for terminal output.
func DisplayTitle(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return ""
	}
	return cases.Title(language.Und, cases.NoLower).String(label)
}

// EventLabel turns an event kind such as "DownloadProgress" into
// "Download progress".
func EventLabel(kind string) string {
	var words []string
	start := 0
	for i, r := range kind {
		if i > start && r >= 'A' && r <= 'Z' {
			words = append(words, kind[start:i])
			start = i
		}
	}
	if start < len(kind) {
		words = append(words, kind[start:])
	}
	if len(words) == 0 {
		return ""
	}
	caser := cases.Lower(language.Und)
	for i := range words {
		words[i] = caser.String(words[i])
	}
	return cases.Title(language.Und).String(words[0]) + joinTail(words[1:])
}

func joinTail(words []string) string {
	if len(words) == 0 {
		return ""
	}
	return " " + strings.Join(words, " ")
}
