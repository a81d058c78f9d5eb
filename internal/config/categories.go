package config

import (
	"fmt"
	"html"
	"strings"

	"github.com/thurstonsan/anypod/internal/model"
)

// appleCategories is the closed Apple Podcasts taxonomy (spec §6.5): 19 main
// categories, each with zero or more subcategories. Keys and values are
// canonical display names.
var appleCategories = map[string][]string{
	"Arts":                 {"Books", "Design", "Fashion & Beauty", "Food", "Performing Arts", "Visual Arts"},
	"Business":             {"Careers", "Entrepreneurship", "Investing", "Management", "Marketing", "Non-Profit"},
	"Comedy":               {"Comedy Interviews", "Improv", "Stand-Up"},
	"Education":            {"Courses", "How To", "Language Learning", "Self-Improvement"},
	"Fiction":              {"Comedy Fiction", "Drama", "Science Fiction"},
	"Government":           {},
	"History":              {},
	"Health & Fitness":      {"Alternative Health", "Fitness", "Medicine", "Mental Health", "Nutrition", "Sexuality"},
	"Kids & Family":         {"Education for Kids", "Parenting", "Pets & Animals", "Stories for Kids"},
	"Leisure":              {"Animation & Manga", "Automotive", "Aviation", "Crafts", "Games", "Hobbies", "Home & Garden", "Video Games"},
	"Music":                {"Music Commentary", "Music History", "Music Interviews"},
	"News":                 {"Business News", "Daily News", "Entertainment News", "News Commentary", "Politics", "Sports News", "Tech News"},
	"Religion & Spirituality": {"Buddhism", "Christianity", "Hinduism", "Islam", "Judaism", "Religion", "Spirituality"},
	"Science":              {"Astronomy", "Chemistry", "Earth Sciences", "Life Sciences", "Mathematics", "Natural Sciences", "Nature", "Physics", "Social Sciences"},
	"Society & Culture":     {"Documentary", "Personal Journals", "Philosophy", "Places & Travel", "Relationships"},
	"Sports":               {"Baseball", "Basketball", "Cricket", "Fantasy Sports", "Football", "Golf", "Hockey", "Rugby", "Running", "Soccer", "Swimming", "Tennis", "Volleyball", "Wilderness", "Wrestling"},
	"Technology":           {},
	"True Crime":           {},
	"TV & Film":            {"After Shows", "Film History", "Film Interviews", "Film Reviews", "TV Reviews"},
}

const maxCategories = 2

// normalizeCategoryName unescapes HTML entities, collapses internal
// whitespace, and lowercases the name for case-insensitive lookup.
func normalizeCategoryName(s string) string {
	s = html.UnescapeString(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// canonicalMain resolves a normalized main-category name to its canonical
// spelling, or ("", false) if unknown.
func canonicalMain(normalized string) (string, bool) {
	for main := range appleCategories {
		if normalizeCategoryName(main) == normalized {
			return main, true
		}
	}
	return "", false
}

// canonicalSub resolves a normalized subcategory name under a canonical main
// category, or ("", false) if unknown.
func canonicalSub(main, normalized string) (string, bool) {
	for _, sub := range appleCategories[main] {
		if normalizeCategoryName(sub) == normalized {
			return sub, true
		}
	}
	return "", false
}

// ParseCategoryPair validates and canonicalizes a single "Main" or
// "Main > Sub" string.
func ParseCategoryPair(raw string) (model.Category, error) {
	main, sub, hasSub := strings.Cut(raw, ">")
	mainNorm := normalizeCategoryName(main)
	mainCanon, ok := canonicalMain(mainNorm)
	if !ok {
		return model.Category{}, fmt.Errorf("unknown category %q", main)
	}
	if !hasSub || normalizeCategoryName(sub) == "" {
		return model.Category{Main: mainCanon}, nil
	}
	subCanon, ok := canonicalSub(mainCanon, normalizeCategoryName(sub))
	if !ok {
		return model.Category{}, fmt.Errorf("unknown subcategory %q under %q", sub, mainCanon)
	}
	return model.Category{Main: mainCanon, Sub: subCanon}, nil
}

// ParseCategories accepts any of the shapes spec §6.5 allows: a single
// "Main > Sub" string, a comma-separated list, a YAML list of strings, or a
// YAML list of {main, sub} pairs (handled by the caller's YAML decoding into
// categoryYAML before this is invoked on the resulting strings).
func ParseCategories(raw []string) ([]model.Category, error) {
	var out []model.Category
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			cat, err := ParseCategoryPair(part)
			if err != nil {
				return nil, err
			}
			out = append(out, cat)
		}
	}
	if len(out) > maxCategories {
		return nil, fmt.Errorf("at most %d categories allowed, got %d", maxCategories, len(out))
	}
	return out, nil
}
