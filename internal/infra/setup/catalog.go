package setup

import (
	"fmt"

	"party-game/internal/domain"
)

// DefaultGames 返回内置的题库，未配置 CATALOG_FILE 时使用。
func DefaultGames() []domain.Game {
	icebreakers := []string{
		"What is the best meal you have ever had?",
		"If you could live anywhere for a year, where would it be?",
		"What skill would you learn overnight if you could?",
		"What was your first job?",
		"Which song do you know every word of?",
		"What is a small thing that always makes your day?",
		"What would your perfect weekend look like?",
		"Which fictional character would you be friends with?",
		"What is the most useless talent you have?",
		"What did you want to be when you were a kid?",
		"What is the strangest food you have tried?",
		"Where did you go on your favourite trip?",
	}
	deep := []string{
		"What is a belief you changed your mind about?",
		"Who has influenced you the most and why?",
		"What does a good friendship need?",
		"When did you last feel really proud of yourself?",
		"What advice would you give your younger self?",
		"What is something you are still learning to accept?",
		"What would you do if you knew you could not fail?",
		"What tradition would you like to start?",
		"What do people often misunderstand about you?",
		"What is a risk you are glad you took?",
	}
	return []domain.Game{
		{ID: "icebreaker", Name: "Icebreaker", Category: "casual", MaxPlayers: 8, Prompts: prompts("ice", icebreakers)},
		{ID: "deep-talk", Name: "Deep Talk", Category: "conversation", MaxPlayers: 6, Prompts: prompts("deep", deep)},
	}
}

func prompts(prefix string, texts []string) []domain.Prompt {
	out := make([]domain.Prompt, len(texts))
	for i, t := range texts {
		out[i] = domain.Prompt{ID: fmt.Sprintf("%s-%02d", prefix, i+1), Text: t}
	}
	return out
}
