package moderation

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// dictionaries spreads wordCount distinct words over one file per language.
func dictionaries(wordCount int, languages ...string) fstest.MapFS {
	files := make(map[string]*strings.Builder, len(languages))
	for _, lang := range languages {
		files[lang] = &strings.Builder{}
	}
	for i := 0; i < wordCount; i++ {
		b := files[languages[i%len(languages)]]
		// every tenth line is repeated in CRLF form, dedup must absorb it
		fmt.Fprintf(b, "word_%d\n", i)
		if i%10 == 0 {
			fmt.Fprintf(b, "word_%d\r\n", i)
		}
	}
	fsys := fstest.MapFS{}
	for lang, b := range files {
		fsys["censored/"+lang+".txt"] = &fstest.MapFile{Data: []byte(b.String())}
	}
	return fsys
}

func Test_Moderation_Startup(t *testing.T) {
	req := require.New(t)
	wordCount := 20_000
	fsys := dictionaries(wordCount, "en", "fr", "es", "de")

	// --- Phase 1: LOADING ---
	startLoad := time.Now()
	data, err := LoadWords(fsys, "censored")
	req.NoError(err)
	req.Len(data.Words, wordCount)
	req.ElementsMatch([]string{"en", "fr", "es", "de"}, data.Languages)
	t.Logf("Loading %d words from %d files: %v", wordCount, len(fsys), time.Since(startLoad))

	// --- Phase 2: BUILDING AHO-CORASICK ---
	startBuild := time.Now()
	moderator, err := NewModerator(data.Words, '*', logs.GetLoggerFromLevel(slog.LevelError))
	req.NoError(err)
	t.Logf("Building AC automaton: %v", time.Since(startBuild))
	t.Logf("Total startup time for moderation: %v", time.Since(startLoad))

	// Then the last word of the last file is censored like the first
	censored, found := moderator.Censor(fmt.Sprintf("say word_%d now", wordCount-1))
	req.NotContains(censored, fmt.Sprintf("word_%d", wordCount-1))
	req.NotEmpty(found)
}

func BenchmarkLoadWords(b *testing.B) {
	fsys := dictionaries(20_000, "en", "fr", "es", "de")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := LoadWords(fsys, "censored"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkModerator_Censor(b *testing.B) {
	data, err := LoadWords(dictionaries(20_000, "en", "fr"), "censored")
	if err != nil {
		b.Fatal(err)
	}
	moderator, err := NewModerator(data.Words, '*', logs.GetLoggerFromLevel(slog.LevelError))
	if err != nil {
		b.Fatal(err)
	}
	text := strings.Repeat("nothing to see here, word_19999 maybe ", 8)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		moderator.Censor(text)
	}
}
