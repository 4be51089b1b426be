package autocomplete

import (
	"errors"
	"regexp"
	"time"
)

// defaultCharacterFilter drops everything that is not a lowercase ASCII
// letter, digit, underscore or space.
var defaultCharacterFilter = regexp.MustCompile(`[^a-z0-9_ ]`)

// Settings is the global tier of engine configuration. Provider and
// autocompleter+provider overrides layer on top of it, see Override.
type Settings struct {
	// MaxResults caps the total number of results of a suggest call.
	MaxResults int

	// MinLetters is the minimum query length (in runes) before a
	// provider is searched at all.
	MinLetters int

	// MaxExactMatchWords is the maximum word count of a term variant
	// that still gets an exact-match posting. 0 disables exact
	// indexing entirely.
	MaxExactMatchWords int

	// MoveExactMatchesToTop promotes exact matches to the head of each
	// provider's results, ignoring score.
	MoveExactMatchesToTop bool

	// CacheTimeout bounds the lifetime of cached query results.
	// 0 disables the cache.
	CacheTimeout time.Duration

	// JoinChars are interpreted as both a space and nothing when
	// normalizing, so "U/S-A" is indexed as "usa", "u sa", "us a"
	// and "u s a".
	JoinChars string

	// CharacterFilter removes ignored characters during normalization.
	CharacterFilter *regexp.Regexp

	// FlattenSingleResults returns a plain list instead of a
	// provider -> list mapping when only one provider produced results.
	FlattenSingleResults bool
}

// DefaultSettings mirrors the stock configuration of the engine.
func DefaultSettings() Settings {
	return Settings{
		MaxResults:            10,
		MinLetters:            1,
		MaxExactMatchWords:    0,
		MoveExactMatchesToTop: false,
		CacheTimeout:          0,
		JoinChars:             "-/",
		CharacterFilter:       defaultCharacterFilter,
		FlattenSingleResults:  true,
	}
}

// Validate rejects configurations the engine cannot run with.
func (s Settings) Validate() error {
	if s.MaxResults <= 0 {
		return errors.New("autocomplete: MaxResults must be positive")
	}
	if s.MinLetters < 1 {
		return errors.New("autocomplete: MinLetters must be at least 1")
	}
	if s.MaxExactMatchWords < 0 {
		return errors.New("autocomplete: MaxExactMatchWords must not be negative")
	}
	if s.CacheTimeout < 0 {
		return errors.New("autocomplete: CacheTimeout must not be negative")
	}
	if s.CharacterFilter == nil {
		return errors.New("autocomplete: CharacterFilter must be set")
	}
	return nil
}

// Override is a sparse settings layer. Nil fields fall through to the
// next tier: autocompleter+provider -> provider -> global.
type Override struct {
	MaxResults            *int
	MinLetters            *int
	MaxExactMatchWords    *int
	MoveExactMatchesToTop *bool
	CacheTimeout          *time.Duration
	JoinChars             *string
	CharacterFilter       *regexp.Regexp
	FlattenSingleResults  *bool
}

func Int(v int) *int                         { return &v }
func Bool(v bool) *bool                      { return &v }
func String(v string) *string                { return &v }
func Duration(v time.Duration) *time.Duration { return &v }
