package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thurstonsan/anypod/internal/apperrors"
	"github.com/thurstonsan/anypod/internal/model"
)

const defaultMaxErrors = 3

// FeedConfig is one entry under `feeds:` in feeds.yaml (spec §6.1).
type FeedConfig struct {
	ID                        string
	URL                       string
	Enabled                   bool
	IsManual                  bool
	Schedule                  string
	YtArgs                    []string
	KeepLast                  *int
	Since                     *time.Time
	MaxErrors                 int
	TranscriptLang            string
	TranscriptSourcePriority  []model.TranscriptSource
	Metadata                  FeedMetadata
}

// FeedMetadata is the `metadata:` block of a feed config entry.
type FeedMetadata struct {
	Title          string
	Subtitle       string
	Description    string
	Language       string
	Author         string
	AuthorEmail    string
	ImageURL       string
	Category       []model.Category
	PodcastType    model.PodcastType
	Explicit       model.PodcastExplicit
}

// feedsDocument mirrors the raw YAML shape before validation.
type feedsDocument struct {
	Feeds map[string]rawFeed `yaml:"feeds"`
}

type rawFeed struct {
	URL                      string        `yaml:"url"`
	Enabled                  *bool         `yaml:"enabled"`
	IsManual                 bool          `yaml:"is_manual"`
	Schedule                 string        `yaml:"schedule"`
	YtArgs                   string        `yaml:"yt_args"`
	KeepLast                 *int          `yaml:"keep_last"`
	Since                    *string       `yaml:"since"`
	MaxErrors                *int          `yaml:"max_errors"`
	TranscriptLang           string        `yaml:"transcript_lang"`
	TranscriptSourcePriority []string      `yaml:"transcript_source_priority"`
	Metadata                 rawMetadata   `yaml:"metadata"`
}

type rawMetadata struct {
	Title       string       `yaml:"title"`
	Subtitle    string       `yaml:"subtitle"`
	Description string       `yaml:"description"`
	Language    string       `yaml:"language"`
	Author      string       `yaml:"author"`
	AuthorEmail string       `yaml:"author_email"`
	ImageURL    string       `yaml:"image_url"`
	Category    categoryYAML `yaml:"category"`
	PodcastType string       `yaml:"podcast_type"`
	Explicit    string       `yaml:"explicit"`
}

// categoryYAML accepts every shape spec §6.5 allows: a "Main > Sub" string,
// a comma-separated string, a list of strings, or a list of {main, sub} maps.
type categoryYAML struct {
	tokens []string
}

func (c *categoryYAML) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		c.tokens = []string{s}
		return nil
	case yaml.SequenceNode:
		for _, item := range node.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				var s string
				if err := item.Decode(&s); err != nil {
					return err
				}
				c.tokens = append(c.tokens, s)
			case yaml.MappingNode, yaml.SequenceNode:
				var pair struct {
					Main string `yaml:"main"`
					Sub  string `yaml:"sub"`
				}
				if item.Kind == yaml.SequenceNode {
					var arr []string
					if err := item.Decode(&arr); err != nil {
						return err
					}
					if len(arr) > 0 {
						pair.Main = arr[0]
					}
					if len(arr) > 1 {
						pair.Sub = arr[1]
					}
				} else if err := item.Decode(&pair); err != nil {
					return err
				}
				if pair.Sub != "" {
					c.tokens = append(c.tokens, pair.Main+" > "+pair.Sub)
				} else {
					c.tokens = append(c.tokens, pair.Main)
				}
			default:
				return fmt.Errorf("unsupported category entry kind %v", item.Kind)
			}
		}
		return nil
	case 0:
		return nil // absent
	default:
		return fmt.Errorf("unsupported category node kind %v", node.Kind)
	}
}

// LoadFeeds reads and validates the feeds document at path.
func LoadFeeds(path string) (map[string]FeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigLoadError("failed to read feeds file", err)
	}

	var doc feedsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.NewConfigLoadError("failed to parse feeds yaml", err)
	}

	out := make(map[string]FeedConfig, len(doc.Feeds))
	for id, raw := range doc.Feeds {
		if err := validateFeedID(id); err != nil {
			return nil, apperrors.NewConfigLoadError(fmt.Sprintf("invalid feed id %q", id), err)
		}
		cfg, err := raw.toFeedConfig(id)
		if err != nil {
			return nil, apperrors.NewConfigLoadError(fmt.Sprintf("invalid config for feed %q", id), err)
		}
		out[id] = cfg
	}
	return out, nil
}

func (r rawFeed) toFeedConfig(id string) (FeedConfig, error) {
	if r.URL == "" {
		return FeedConfig{}, fmt.Errorf("url is required")
	}
	if !r.IsManual && r.Schedule == "" {
		return FeedConfig{}, fmt.Errorf("schedule is required unless is_manual is true")
	}

	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}

	maxErrors := defaultMaxErrors
	if r.MaxErrors != nil {
		if *r.MaxErrors < 1 {
			return FeedConfig{}, fmt.Errorf("max_errors must be >= 1")
		}
		maxErrors = *r.MaxErrors
	}

	if r.KeepLast != nil && *r.KeepLast < 1 {
		return FeedConfig{}, fmt.Errorf("keep_last must be >= 1")
	}

	var since *time.Time
	if r.Since != nil && *r.Since != "" {
		t, err := time.Parse(time.RFC3339, *r.Since)
		if err != nil {
			return FeedConfig{}, fmt.Errorf("invalid since: %w", err)
		}
		utc := t.UTC()
		since = &utc
	}

	var priorities []model.TranscriptSource
	for _, p := range r.TranscriptSourcePriority {
		ts := model.TranscriptSource(p)
		if !ts.Valid() {
			return FeedConfig{}, fmt.Errorf("invalid transcript_source_priority entry %q", p)
		}
		priorities = append(priorities, ts)
	}

	meta, err := r.Metadata.toFeedMetadata()
	if err != nil {
		return FeedConfig{}, err
	}

	return FeedConfig{
		ID:                       id,
		URL:                      r.URL,
		Enabled:                  enabled,
		IsManual:                 r.IsManual,
		Schedule:                 r.Schedule,
		YtArgs:                   tokenizeShellArgs(r.YtArgs),
		KeepLast:                 r.KeepLast,
		Since:                    since,
		MaxErrors:                maxErrors,
		TranscriptLang:           r.TranscriptLang,
		TranscriptSourcePriority: priorities,
		Metadata:                meta,
	}, nil
}

func (m rawMetadata) toFeedMetadata() (FeedMetadata, error) {
	cats, err := ParseCategories(m.Category.tokens)
	if err != nil {
		return FeedMetadata{}, err
	}

	podcastType := model.PodcastTypeEpisodic
	if m.PodcastType != "" {
		podcastType = model.PodcastType(m.PodcastType)
		if !podcastType.Valid() {
			return FeedMetadata{}, fmt.Errorf("invalid podcast_type %q", m.PodcastType)
		}
	}

	explicit := model.ExplicitNo
	if m.Explicit != "" {
		explicit, err = model.ParsePodcastExplicit(m.Explicit)
		if err != nil {
			return FeedMetadata{}, err
		}
	}

	return FeedMetadata{
		Title:       m.Title,
		Subtitle:    m.Subtitle,
		Description: m.Description,
		Language:    orDefault(m.Language, "en"),
		Author:      m.Author,
		AuthorEmail: m.AuthorEmail,
		ImageURL:    m.ImageURL,
		Category:    cats,
		PodcastType: podcastType,
		Explicit:    explicit,
	}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func validateFeedID(id string) error {
	if len(id) < 1 || len(id) > 255 {
		return fmt.Errorf("must be 1-255 characters")
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return fmt.Errorf("must match [A-Za-z0-9_-]")
		}
	}
	return nil
}

// tokenizeShellArgs splits a yt_args string "like a shell argv" (spec §6.1):
// whitespace-separated, with single/double-quoted spans treated as one token.
func tokenizeShellArgs(s string) []string {
	var tokens []string
	var cur []rune
	inSingle, inDouble := false, false
	hasToken := false

	flush := func() {
		if hasToken {
			tokens = append(tokens, string(cur))
		}
		cur = cur[:0]
		hasToken = false
	}

	for _, r := range s {
		switch {
		case inSingle:
			if r == '\'' {
				inSingle = false
			} else {
				cur = append(cur, r)
			}
		case inDouble:
			if r == '"' {
				inDouble = false
			} else {
				cur = append(cur, r)
			}
		case r == '\'':
			inSingle, hasToken = true, true
		case r == '"':
			inDouble, hasToken = true, true
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			cur = append(cur, r)
			hasToken = true
		}
	}
	flush()
	return tokens
}
