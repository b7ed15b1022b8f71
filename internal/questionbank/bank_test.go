package questionbank

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectPlacesIntroFirst(t *testing.T) {
	b := Default()
	qs, err := b.Select("Software Engineer", "", 3, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, qs, 3)
	assert.Equal(t, DefaultIntro, qs[0].Text)
	for i, q := range qs {
		assert.Equal(t, i, q.Ordinal)
		assert.NotEmpty(t, q.ID)
	}
}

func TestSelectHasNoDuplicates(t *testing.T) {
	b := &Bank{
		Intro:   "Intro?",
		Common:  []string{"A?", "B?", "a? "},
		Generic: []string{"G?"},
		Roles:   map[string][]string{"dev": {"B?", "C?", "Intro?"}},
	}
	require.NoError(t, b.normalize())

	qs, err := b.Select("DEV", "", 10, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	// Intro + A, B, C
	require.Len(t, qs, 4)
	seen := map[string]bool{}
	for _, q := range qs {
		assert.False(t, seen[q.ID], "duplicate question %q", q.Text)
		seen[q.ID] = true
	}
	assert.Equal(t, 4, b.Size("dev", ""))
}

func TestUnknownRoleUsesGenericPool(t *testing.T) {
	b := Default()
	qs, err := b.Select("Astronaut", "", 5, nil)
	require.NoError(t, err)
	require.Len(t, qs, 5)

	texts := map[string]bool{}
	for _, q := range qs[1:] {
		texts[q.Text] = true
	}
	for _, q := range b.Roles["software engineer"] {
		assert.False(t, texts[q])
	}
}

func TestSectorPoolIsIncluded(t *testing.T) {
	b := Default()
	all, err := b.Select("software engineer", "healthcare", 100, nil)
	require.NoError(t, err)
	found := false
	for _, q := range all {
		if q.Text == "How would you handle sensitive patient data in your work?" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestInvalidRoleWithoutFallback(t *testing.T) {
	b := &Bank{Intro: "Intro?", Roles: map[string][]string{}}
	_, err := b.Select("anything", "", 3, nil)
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "questions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
common: ["One?"]
generic: ["Two?"]
roles:
  Software Engineer: ["Three?"]
`), 0o644))

	b, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultIntro, b.Intro)
	assert.Equal(t, 3, b.Size("software engineer", ""))

	require.NoError(t, os.WriteFile(path, []byte("common: [\"x\"]\n"), 0o644))
	_, err = LoadFile(path)
	assert.ErrorIs(t, err, ErrEmptyBank)
}

func TestBundledQuestionFile(t *testing.T) {
	b, err := LoadFile(filepath.Join("..", "..", "configs", "questions.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Size("Software Engineer", ""), b.Size("Software Engineer", ""))
}
