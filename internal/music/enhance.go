package music

import (
	"fmt"
	"strings"
)

// Prompt enhancement runs locally, before the prompt ever reaches a
// backend, so it can never trip a content filter by itself. It only adds
// musical descriptors; it never rewrites what the user asked for.

type moodWords struct {
	energetic string
	calm      string
	happy     string
	sad       string
	neutral   string
}

// pick resolves the mood slot. Fields a genre does not react to stay
// empty and are skipped.
func (m moodWords) pick(energetic, calm, happy, sad bool) string {
	switch {
	case energetic && m.energetic != "":
		return m.energetic
	case calm && m.calm != "":
		return m.calm
	case happy && m.happy != "":
		return m.happy
	case sad && m.sad != "":
		return m.sad
	}
	return m.neutral
}

type genreRule struct {
	keywords []string
	// suffix is appended to the original prompt; a %s slot takes the mood.
	suffix string
	moods  moodWords
}

// genreRules is evaluated in order; the first keyword hit wins.
var genreRules = []genreRule{
	{
		keywords: []string{"electronic", "edm", "techno", "house", "trance"},
		suffix:   " - featuring synthesizers, electronic drums, pulsing bass, and %s electronic textures",
		moods:    moodWords{energetic: "high-energy and driving", calm: "atmospheric and ambient", neutral: "dynamic and engaging"},
	},
	{
		keywords: []string{"acoustic", "folk"},
		suffix:   " - with fingerstyle guitar, natural acoustic instruments, and %s folk melodies",
		moods:    moodWords{happy: "bright and uplifting", sad: "introspective and emotional", neutral: "warm and organic"},
	},
	{
		keywords: []string{"piano", "classical"},
		suffix:   " - an %s piano composition with classical influences and rich harmonies",
		moods:    moodWords{energetic: "dramatic and powerful", calm: "gentle and serene", neutral: "expressive and flowing"},
	},
	{
		keywords: []string{"jazz", "swing", "bebop"},
		suffix:   " - featuring %s jazz instrumentation with piano, bass, and drums",
		moods:    moodWords{energetic: "uptempo and swinging", calm: "smooth and laid-back", neutral: "sophisticated and groovy"},
	},
	{
		keywords: []string{"rock", "guitar"},
		suffix:   " - with %s electric guitar riffs, solid drums, and bass groove",
		moods:    moodWords{energetic: "high-octane and aggressive", calm: "melodic and atmospheric", neutral: "driving and powerful"},
	},
	{
		keywords: []string{"ambient", "chill", "lofi"},
		suffix:   " - creating an atmospheric soundscape with soft textures, gentle rhythms, and calming sonic layers",
	},
	{
		keywords: []string{"hip hop", "rap", "beat", "trap", "boom bap"},
		suffix:   " - a %s beat with deep 808 bass, crisp drums, and melodic elements",
		moods:    moodWords{energetic: "hard-hitting and aggressive", calm: "smooth and laid-back", neutral: "modern and groovy"},
	},
	{
		keywords: []string{"orchestral", "cinematic", "epic", "symphony"},
		suffix:   " - a %s orchestral composition with strings, brass, and dynamic percussion",
		moods:    moodWords{energetic: "epic and powerful", sad: "emotional and dramatic", neutral: "sweeping and majestic"},
	},
	{
		keywords: []string{"country", "bluegrass"},
		suffix:   " - featuring acoustic guitar, banjo, fiddle, and authentic country instrumentation with storytelling melodies",
	},
	{
		keywords: []string{"reggae", "ska", "dub"},
		suffix:   " - with offbeat guitar rhythms, groovy bass lines, and uplifting reggae vibes",
	},
	{
		keywords: []string{"metal", "heavy"},
		suffix:   " - featuring heavy distorted guitars, double bass drums, and intense powerful energy",
	},
	{
		keywords: []string{"pop"},
		suffix:   " - with %s pop production, memorable hooks, and modern instrumentation",
		moods:    moodWords{happy: "catchy and upbeat", sad: "emotional and melodic", neutral: "contemporary and polished"},
	},
	{
		keywords: []string{"blues"},
		suffix:   " - featuring soulful guitar, expressive melodies, and authentic blues feel with emotional depth",
	},
	{
		keywords: []string{"funk", "groove"},
		suffix:   " - with syncopated rhythms, funky bass lines, tight drums, and infectious groove",
	},
	{
		keywords: []string{"r&b", "soul"},
		suffix:   " - featuring smooth rhythms, soulful melodies, and rich harmonies with contemporary production",
	},
}

var (
	happyWords     = []string{"happy", "joyful", "upbeat", "cheerful", "bright"}
	sadWords       = []string{"sad", "melancholy", "somber", "dark", "moody", "emotional"}
	energeticWords = []string{"energetic", "intense", "powerful", "fast", "aggressive", "driving"}
	calmWords      = []string{"calm", "peaceful", "relaxing", "soft", "gentle", "slow"}
)

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// EnhancePrompt expands a short, vague prompt with genre-appropriate
// musical detail. Detailed or deliberately specific prompts pass through
// untouched:
//   - prompts with quotation marks (a specific song or title)
//   - prompts containing "instrumental" (user knows what they want)
//   - prompts over 100 characters or 15 words
func EnhancePrompt(original string) string {
	if strings.ContainsAny(original, `"'`) {
		return original
	}
	lower := strings.ToLower(original)
	if strings.Contains(lower, "instrumental") {
		return original
	}
	words := len(strings.Fields(original))
	if len(original) > 100 || words > 15 {
		return original
	}

	happy := containsAny(lower, happyWords)
	sad := containsAny(lower, sadWords)
	energetic := containsAny(lower, energeticWords)
	calm := containsAny(lower, calmWords)

	for _, rule := range genreRules {
		if !containsAny(lower, rule.keywords) {
			continue
		}
		if strings.Contains(rule.suffix, "%s") {
			mood := rule.moods.pick(energetic, calm, happy, sad)
			return original + fmt.Sprintf(rule.suffix, mood)
		}
		return original + rule.suffix
	}

	// Very short prompts are likely just a mood or feeling.
	if words <= 3 {
		return original + " instrumental music - an expressive musical composition with rich melodies, harmonies, and dynamic instrumentation"
	}
	return original + " - an instrumental musical composition with expressive melodies, rich harmonies, and dynamic arrangements"
}
