package config

import "sort"

// Built-in topic set names.
const (
	TopicSetLessons = "lessons"
	TopicSetHistory = "history"
)

// DefaultTopicSets returns the built-in topic sets.
func DefaultTopicSets() map[string][]string {
	return map[string][]string{
		TopicSetLessons: {
			// Beginner
			"chess basics for beginners",
			"how to play chess rules",
			"chess piece movements tutorial",
			"chess opening principles",
			"basic chess tactics",
			"chess checkmate patterns beginners",

			// Intermediate
			"chess opening theory",
			"chess middlegame strategy",
			"chess endgame techniques",
			"chess tactics puzzles",
			"positional chess concepts",
			"chess pawn structure",

			// Advanced
			"advanced chess strategy grandmaster",
			"chess calculation techniques",
			"chess prophylaxis strategy",
			"complex chess endgames",
			"chess sacrifices combinations",
			"famous chess games analysis",

			// Openings
			"sicilian defense chess",
			"ruy lopez opening",
			"queen's gambit chess",
			"italian game chess",
			"french defense chess",
			"caro-kann defense",

			// Players
			"magnus carlsen games analysis",
			"bobby fischer best games",
			"garry kasparov chess",
			"mikhail tal attacking chess",
			"anatoly karpov positional chess",

			// Concepts
			"chess piece activity",
			"king safety chess",
			"chess initiative tempo",
			"weak squares chess strategy",
			"chess outpost strategy",
			"chess exchange sacrifice",
		},
		TopicSetHistory: {
			"history of chess origins chaturanga",
			"romantic era chess",
			"paul morphy opera game",
			"wilhelm steinitz first world champion",
			"jose raul capablanca endgames",
			"alexander alekhine combinations",
			"hypermodern chess school",
			"soviet chess school",
			"fischer spassky 1972 match",
			"kasparov karpov world championship",
			"deep blue kasparov match",
			"chess olympiad history",
		},
	}
}

// TopicSetNames returns the configured topic set names, sorted.
func (c *Config) TopicSetNames() []string {
	names := make([]string, 0, len(c.TopicSets))
	for name := range c.TopicSets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
