package access

// Level is one label from the fixed, totally ordered access-level set.
type Level string

const (
	LevelNone      Level = "None"
	LevelReadOnly  Level = "Read-only"
	LevelReadWrite Level = "Read/Write"
	LevelFiltered  Level = "Filtered"
	LevelFull      Level = "Full"
	LevelAdmin     Level = "Admin"
)

// levelRanks fixes the total order. Resolution everywhere relies on this
// table being the single source of truth.
var levelRanks = map[Level]int{
	LevelNone:      0,
	LevelReadOnly:  1,
	LevelReadWrite: 2,
	LevelFiltered:  3,
	LevelFull:      4,
	LevelAdmin:     5,
}

// Levels returns the full set ordered from lowest to highest.
func Levels() []Level {
	return []Level{LevelNone, LevelReadOnly, LevelReadWrite, LevelFiltered, LevelFull, LevelAdmin}
}

// Rank maps a level to its position in the order. Unknown labels rank as
// LevelNone so a malformed payload can never grant access.
func Rank(l Level) int {
	if r, ok := levelRanks[l]; ok {
		return r
	}
	return levelRanks[LevelNone]
}

// Compare returns -1, 0 or 1 as a orders below, equal to, or above b.
func Compare(a, b Level) int {
	ra, rb := Rank(a), Rank(b)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	default:
		return 0
	}
}

// Meets reports whether actual satisfies the required level.
func Meets(actual, required Level) bool {
	return Rank(actual) >= Rank(required)
}

// ParseLevel normalizes a raw label. Unknown input collapses to LevelNone.
func ParseLevel(raw string) Level {
	l := Level(raw)
	if _, ok := levelRanks[l]; ok {
		return l
	}
	return LevelNone
}

// Valid reports whether l is a member of the fixed set.
func (l Level) Valid() bool {
	_, ok := levelRanks[l]
	return ok
}
