package icon

// Icon identifies a UI symbol in the global registry.
type Icon int

const (
	Fail Icon = iota
	Success
	Progress
	Question
	Mark
	Link
	Search
)

// icons maps every Icon identifier onto its per-variant representations.
var icons = map[Icon]*iconDef{
	Fail: {
		emoji:   "❌",
		nerd:    "",
		plain:   "[x]",
		kaomoji: "(╯°□°）╯",
		squares: "▣",
	},
	Success: {
		emoji:   "✅",
		nerd:    "",
		plain:   "[ok]",
		kaomoji: "(￣▽￣)",
		squares: "▣",
	},
	Progress: {
		emoji:   "⏳",
		nerd:    "",
		plain:   "...",
		kaomoji: "(･ω･)",
		squares: "▤",
	},
	Question: {
		emoji:   "❓",
		nerd:    "",
		plain:   "[?]",
		kaomoji: "(・・?)",
		squares: "▨",
	},
	Mark: {
		emoji:   "🔖",
		nerd:    "",
		plain:   "[*]",
		kaomoji: "(｀・ω・´)",
		squares: "▪",
	},
	Link: {
		emoji:   "🔗",
		nerd:    "",
		plain:   "[~]",
		kaomoji: "(つ≧▽≦)つ",
		squares: "▫",
	},
	Search: {
		emoji:   "🔍",
		nerd:    "",
		plain:   "[?]",
		kaomoji: "(o・・o)",
		squares: "▧",
	},
}
