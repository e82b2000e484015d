package predictor

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/syeo66/cadence/models"
)

// Kind selects which tag family a voter votes on.
type Kind int

const (
	Genres Kind = iota
	Moods
)

func (k Kind) String() string {
	if k == Moods {
		return "mood"
	}
	return "genre"
}

// Vote is one voter's support for a label.
type Vote struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Voter string  `json:"voter"`
}

// Voter is a named heuristic. A voter without an opinion returns nothing.
type Voter struct {
	Name string
	Vote func(m *Model, song models.Song, kind Kind) []Vote
}

// Voters is the default ensemble.
var Voters = []Voter{
	{Name: "audio-profile", Vote: audioVotes},
	{Name: "keywords", Vote: keywordVotes},
	{Name: "known-artist", Vote: knownArtistVotes},
	{Name: "release-decade", Vote: decadeVotes},
}

const (
	audioVoteWeight   = 0.6
	audioMinShared    = 2
	audioMaxVotes     = 3
	audioMinMatch     = 0.5
	minCentroidSongs  = 2
	decadeVoteWeight  = 0.4
	decadeMaxVotes    = 2
	secondLabelCutoff = 0.5
)

// LabelScore is a label with its summed vote.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Combine sums votes per canonical label and ranks them, ties broken by
// label.
func Combine(votes []Vote) []LabelScore {
	totals := make(map[string]float64)
	for _, v := range votes {
		label := canonicalLabel(v.Label)
		if label == "" || v.Score <= 0 {
			continue
		}
		totals[label] += v.Score
	}
	out := make([]LabelScore, 0, len(totals))
	for label, score := range totals {
		out = append(out, LabelScore{Label: label, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// Select keeps the top label and the runner-up when it scores at least half
// of the top.
func Select(ranked []LabelScore) []string {
	if len(ranked) == 0 {
		return nil
	}
	out := []string{ranked[0].Label}
	if len(ranked) > 1 && ranked[1].Score >= ranked[0].Score*secondLabelCutoff {
		out = append(out, ranked[1].Label)
	}
	return out
}

// Votes runs every voter.
func (m *Model) Votes(song models.Song, kind Kind) []Vote {
	var out []Vote
	for _, voter := range Voters {
		for _, v := range voter.Vote(m, song, kind) {
			v.Voter = voter.Name
			out = append(out, v)
		}
	}
	return out
}

// PredictGenres returns the song's genres when it has any, otherwise the
// ensemble's top one or two.
func (m *Model) PredictGenres(song models.Song) []string {
	return m.predictLabels(song, song.Genres, Genres)
}

// PredictMoods mirrors PredictGenres for moods.
func (m *Model) PredictMoods(song models.Song) []string {
	return m.predictLabels(song, song.Moods, Moods)
}

func (m *Model) predictLabels(song models.Song, existing []string, kind Kind) []string {
	if len(uniqueLabels(existing)) > 0 {
		return existing
	}
	return Select(Combine(m.Votes(song, kind)))
}

func audioVotes(m *Model, song models.Song, kind Kind) []Vote {
	centroids := m.genres
	if kind == Moods {
		centroids = m.moods
	}
	vector := song.Features.Normalize()
	if vector.Len() < audioMinShared {
		return nil
	}

	var votes []Vote
	for _, c := range centroids {
		if !m.IsFallback() && c.songs < minCentroidSongs {
			continue
		}
		shared := len(vector.Shared(c.vector))
		if shared < audioMinShared {
			continue
		}
		// RMS distance in [0,1] since every normalized value is in [0,1]
		match := 1 - vector.Euclidean(c.vector)/math.Sqrt(float64(shared))
		if match < audioMinMatch {
			continue
		}
		votes = append(votes, Vote{Label: c.label, Score: match * audioVoteWeight})
	}
	sort.Slice(votes, func(i, j int) bool {
		if votes[i].Score != votes[j].Score {
			return votes[i].Score > votes[j].Score
		}
		return votes[i].Label < votes[j].Label
	})
	if len(votes) > audioMaxVotes {
		votes = votes[:audioMaxVotes]
	}
	return votes
}

type pattern struct {
	re     *regexp.Regexp
	genres []Vote
	moods  []Vote
}

func (p pattern) votes(kind Kind) []Vote {
	if kind == Moods {
		return p.moods
	}
	return p.genres
}

func v(label string, score float64) Vote {
	return Vote{Label: label, Score: score}
}

var keywordPatterns = []pattern{
	{re: regexp.MustCompile(`\b(remix|club mix|extended mix|vip mix)\b`), genres: []Vote{v("Electronic", 0.4)}, moods: []Vote{v("energetic", 0.3)}},
	{re: regexp.MustCompile(`\b(house|techno|trance|dubstep|edm|drum and bass)\b`), genres: []Vote{v("Electronic", 0.6)}},
	{re: regexp.MustCompile(`\b(symphony|concerto|sonata|nocturne|prelude|etude|op\. ?\d+|bwv ?\d+)\b`), genres: []Vote{v("Classical", 0.7)}, moods: []Vote{v("melancholic", 0.2)}},
	{re: regexp.MustCompile(`\btrap\b`), genres: []Vote{v("Trap", 0.6)}},
	{re: regexp.MustCompile(`\b(rap|freestyle|cypher)\b`), genres: []Vote{v("Hip-Hop", 0.6)}},
	{re: regexp.MustCompile(`\b(feat\.?|ft\.)\s`), genres: []Vote{v("Hip-Hop", 0.2), v("Pop", 0.2)}},
	{re: regexp.MustCompile(`\b(jazz|swing|bebop)\b`), genres: []Vote{v("Jazz", 0.6)}, moods: []Vote{v("chill", 0.3)}},
	{re: regexp.MustCompile(`\b(metal|thrash|doom)\b`), genres: []Vote{v("Metal", 0.6)}, moods: []Vote{v("aggressive", 0.4)}},
	{re: regexp.MustCompile(`\b(country|honky|cowboy)\b`), genres: []Vote{v("Country", 0.5)}},
	{re: regexp.MustCompile(`\b(rock|punk|grunge)\b`), genres: []Vote{v("Rock", 0.5)}},
	{re: regexp.MustCompile(`\bacoustic\b`), genres: []Vote{v("Folk", 0.4)}, moods: []Vote{v("chill", 0.3)}},
	{re: regexp.MustCompile(`\blo-?fi\b`), genres: []Vote{v("Hip-Hop", 0.3)}, moods: []Vote{v("chill", 0.6)}},
	{re: regexp.MustCompile(`\b(love|heart|kiss|baby)\b`), moods: []Vote{v("romantic", 0.5)}},
	{re: regexp.MustCompile(`\b(sad|tears|cry|crying|lonely|goodbye)\b`), moods: []Vote{v("sad", 0.5)}},
	{re: regexp.MustCompile(`\b(party|dance|club|hype|jump)\b`), moods: []Vote{v("energetic", 0.5)}},
	{re: regexp.MustCompile(`\b(happy|sunshine|smile|good day)\b`), moods: []Vote{v("happy", 0.5)}},
	{re: regexp.MustCompile(`\b(rain|night|dream|slow|chill)\b`), moods: []Vote{v("chill", 0.4)}},
	{re: regexp.MustCompile(`\b(rage|fight|war|kill|hate)\b`), moods: []Vote{v("aggressive", 0.5)}},
	{re: regexp.MustCompile(`\b(memories|yesterday|lost|alone)\b`), moods: []Vote{v("melancholic", 0.4)}},
}

var knownArtists = []pattern{
	{re: regexp.MustCompile(`uzi`), genres: []Vote{v("Trap", 0.9), v("Hip-Hop", 0.8)}, moods: []Vote{v("energetic", 0.6)}},
	{re: regexp.MustCompile(`\b(lil|yung|young)\b`), genres: []Vote{v("Hip-Hop", 0.6), v("Trap", 0.5)}},
	{re: regexp.MustCompile(`\b(drake|kendrick|eminem|jay-z|kanye|nas)\b`), genres: []Vote{v("Hip-Hop", 0.9), v("R&B", 0.3)}},
	{re: regexp.MustCompile(`travis scott|21 savage|migos|future`), genres: []Vote{v("Trap", 0.8), v("Hip-Hop", 0.8)}, moods: []Vote{v("energetic", 0.5)}},
	{re: regexp.MustCompile(`taylor swift|dua lipa|ed sheeran|ariana grande`), genres: []Vote{v("Pop", 0.9)}, moods: []Vote{v("happy", 0.3)}},
	{re: regexp.MustCompile(`metallica|iron maiden|slayer|black sabbath`), genres: []Vote{v("Metal", 0.9), v("Rock", 0.5)}, moods: []Vote{v("aggressive", 0.6)}},
	{re: regexp.MustCompile(`daft punk|deadmau5|avicii|skrillex|calvin harris`), genres: []Vote{v("Electronic", 0.9)}, moods: []Vote{v("energetic", 0.5)}},
	{re: regexp.MustCompile(`miles davis|john coltrane|ella fitzgerald|louis armstrong`), genres: []Vote{v("Jazz", 0.95)}, moods: []Vote{v("chill", 0.4)}},
	{re: regexp.MustCompile(`beethoven|mozart|bach|chopin|vivaldi|debussy`), genres: []Vote{v("Classical", 0.95)}},
	{re: regexp.MustCompile(`beatles|rolling stones|led zeppelin|queen|nirvana`), genres: []Vote{v("Rock", 0.9)}},
	{re: regexp.MustCompile(`johnny cash|dolly parton|willie nelson`), genres: []Vote{v("Country", 0.9)}},
	{re: regexp.MustCompile(`bob dylan|joni mitchell|simon & garfunkel`), genres: []Vote{v("Folk", 0.8), v("Rock", 0.3)}, moods: []Vote{v("melancholic", 0.3)}},
	{re: regexp.MustCompile(`beyonc|rihanna|usher|the weeknd|sza`), genres: []Vote{v("R&B", 0.8), v("Pop", 0.5)}, moods: []Vote{v("romantic", 0.4)}},
}

func keywordVotes(_ *Model, song models.Song, kind Kind) []Vote {
	text := strings.ToLower(strings.Join([]string{song.Title, song.Artist, song.Album}, " "))
	return matchPatterns(keywordPatterns, text, kind)
}

func knownArtistVotes(_ *Model, song models.Song, kind Kind) []Vote {
	return matchPatterns(knownArtists, artistKey(song.Artist), kind)
}

func matchPatterns(patterns []pattern, text string, kind Kind) []Vote {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []Vote
	for _, p := range patterns {
		if p.re.MatchString(text) {
			out = append(out, p.votes(kind)...)
		}
	}
	return out
}

// eraGenres is the prior used when the model has too little tagged data for
// the decade.
var eraGenres = map[int][]Vote{
	1950: {v("Jazz", 0.3), v("Rock", 0.25)},
	1960: {v("Rock", 0.3), v("Folk", 0.2)},
	1970: {v("Rock", 0.3), v("Folk", 0.15)},
	1980: {v("Pop", 0.3), v("Rock", 0.25)},
	1990: {v("Rock", 0.25), v("Hip-Hop", 0.25)},
	2000: {v("Pop", 0.3), v("Hip-Hop", 0.2)},
	2010: {v("Pop", 0.3), v("Hip-Hop", 0.25)},
	2020: {v("Hip-Hop", 0.3), v("Pop", 0.3)},
}

func decadeVotes(m *Model, song models.Song, kind Kind) []Vote {
	decade := song.Decade()
	if decade == 0 {
		return nil
	}

	counts := m.decadeGenres[decade]
	if kind == Moods {
		counts = m.decadeMoods[decade]
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total >= minDecadeSongs {
		ranked := make([]LabelScore, 0, len(counts))
		for label, n := range counts {
			ranked = append(ranked, LabelScore{Label: label, Score: decadeVoteWeight * float64(n) / float64(total)})
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].Score != ranked[j].Score {
				return ranked[i].Score > ranked[j].Score
			}
			return ranked[i].Label < ranked[j].Label
		})
		if len(ranked) > decadeMaxVotes {
			ranked = ranked[:decadeMaxVotes]
		}
		out := make([]Vote, len(ranked))
		for i, r := range ranked {
			out[i] = Vote{Label: r.Label, Score: r.Score}
		}
		return out
	}

	if kind == Genres {
		return eraGenres[decade]
	}
	return nil
}
