package popularity

import (
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/syeo66/cadence/models"
)

func largeCatalogue(size int) []models.Song {
	songs := make([]models.Song, size)
	for i := range songs {
		songs[i] = models.Song{
			ID:        fmt.Sprintf("song_%d", i),
			Title:     fmt.Sprintf("Song %d", i),
			Artist:    fmt.Sprintf("Artist %d", i%100),
			PlayCount: i % 97,
			SkipCount: i % 13,
			LikeCount: i % 7,
		}
	}
	return songs
}

func benchmarkRank(b *testing.B, size int) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	service := New(logger)
	songs := largeCatalogue(size)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if ranked := service.Rank(songs, nil, 50); len(ranked) == 0 {
			b.Fatal("No songs returned")
		}
	}
}

func BenchmarkRankSmallCatalogue(b *testing.B) { benchmarkRank(b, 1000) }

func BenchmarkRankLargeCatalogue(b *testing.B) { benchmarkRank(b, 50000) }
