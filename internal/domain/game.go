package domain

// Prompt 是一道可供投票的题目。
type Prompt struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Game 是题库（只读目录）中的一个游戏条目。
type Game struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Category   string   `json:"category"`
	MaxPlayers int      `json:"maxPlayers"`
	Prompts    []Prompt `json:"prompts"`
}
