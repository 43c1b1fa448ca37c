package catalog

// Track is one resolved catalog entry. The ID is an opaque upstream
// identifier and is the only field the rest of the system keys on.
type Track struct {
	ID        string
	Title     string
	Artist    string
	Thumbnail string
	Duration  int // seconds
}

type searchResponse struct {
	Err  int `json:"err"`
	Data struct {
		Songs []searchSong `json:"songs"`
	} `json:"data"`
}

type searchSong struct {
	EncodeID     string `json:"encodeId"`
	Title        string `json:"title"`
	ArtistsNames string `json:"artistsNames"`
	Thumbnail    string `json:"thumbnail"`
	Duration     int    `json:"duration"`
}

// LyricMeta is the raw upstream lyric representation: either a URL to a
// plain-text lyric file, or inline sentence/word timings. Both may be
// empty, which callers treat as lyrics-unavailable.
type LyricMeta struct {
	File      string     `json:"file"`
	Sentences []Sentence `json:"sentences"`
}

type Sentence struct {
	Words []Word `json:"words"`
}

type Word struct {
	StartTime int64  `json:"startTime"` // milliseconds
	Data      string `json:"data"`
}

func (m *LyricMeta) HasLyrics() bool {
	return m != nil && (m.File != "" || len(m.Sentences) > 0)
}
