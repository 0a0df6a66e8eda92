package moderation

// defaultBannedTerms is the built-in blocklist used when no custom word
// list is configured. Exact word-boundary matches only, so ordinary words
// that merely contain one of these as a substring are not affected.
var defaultBannedTerms = []string{
	// slurs and targeted abuse
	"nigger",
	"faggot",
	"retard",
	"tranny",

	// harassment and threats
	"kys",
	"kill yourself",
	"go die",
	"bomb threat",

	// scams and spam bait
	"scammer",
	"free bitcoin",
	"send nudes",

	// extremist content
	"heil hitler",
}
