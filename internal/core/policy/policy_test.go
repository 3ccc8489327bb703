package policy

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/skills-audit/constants"
	"github.com/joseph-ayodele/skills-audit/internal/common"
	"github.com/joseph-ayodele/skills-audit/internal/entity"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func tax(langs ...entity.LanguageLevels) entity.Taxonomy { return entity.Taxonomy(langs) }

func lang(name string, labels ...string) entity.LanguageLevels {
	ll := entity.LanguageLevels{Language: name}
	for _, l := range labels {
		ll.Levels = append(ll.Levels, entity.LevelLink{Label: l, URL: "https://lms/" + name + "/" + l})
	}
	return ll
}

func TestFilter_DropsLabelsOutsideTheCodeSet(t *testing.T) {
	items, err := Filter(tax(lang("X", "A1 Level", "B3 Level")), DefaultPolicy(), quiet)

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, entity.WorkItem{
		Language:   "X",
		LevelLabel: "A1 Level",
		Level:      constants.A1,
		LevelURL:   "https://lms/X/A1 Level",
	}, items[0])
}

func TestFilter_OnlyAllowedLevelsSurvive(t *testing.T) {
	p := DefaultPolicy()
	in := tax(
		lang("Almanca", "Almanca A1", "Almanca B2", "almanca c1 seviyesi", "Almanca A2"),
		lang("İngilizce", "İngilizce C1", "İngilizce C2", "İngilizce B2"),
		lang("Rusça", "Başlangıç", "Rusça A12"),
	)

	items, err := Filter(in, p, quiet)
	require.NoError(t, err)

	for _, it := range items {
		assert.Contains(t, p.Allowed(it.Language), it.Level, "%s %s", it.Language, it.LevelLabel)
	}
	var got []string
	for _, it := range items {
		got = append(got, it.Language+"/"+string(it.Level))
	}
	assert.Equal(t, []string{"Almanca/A1", "Almanca/A2", "İngilizce/C1", "İngilizce/B2"}, got)
}

func TestFilter_CaseInsensitiveWholeWord(t *testing.T) {
	items, err := Filter(tax(lang("X", "seviye b1", "AB1", "B1x")), DefaultPolicy(), quiet)

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, constants.B1, items[0].Level)
}

func TestFilter_EmptyResultIsNoWorkItems(t *testing.T) {
	_, err := Filter(tax(lang("X", "C2 Advanced")), DefaultPolicy(), quiet)

	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNoWorkItems))
	assert.Equal(t, common.CodeNoWorkItems, common.ErrorCode(err))
}

func TestSelectLanguages(t *testing.T) {
	in := tax(lang("Almanca", "A1"), lang("Fransızca", "A1"), lang("İngilizce", "A1"))

	t.Run("empty request keeps all", func(t *testing.T) {
		out, err := SelectLanguages(in, nil)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("keeps discovery order", func(t *testing.T) {
		out, err := SelectLanguages(in, []string{"İngilizce", " almanca "})
		require.NoError(t, err)
		assert.Equal(t, []string{"Almanca", "İngilizce"}, out.Languages())
	})

	t.Run("no intersection", func(t *testing.T) {
		_, err := SelectLanguages(in, []string{"Klingon"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrNoMatch))
	})
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(common.LevelsConfig{
		Default:     []string{"a1", "A2"},
		PerLanguage: map[string][]string{"Y": {"C2"}},
	})

	assert.Equal(t, []constants.Level{constants.A1, constants.A2}, p.Allowed("X"))
	assert.Equal(t, []constants.Level{constants.C2}, p.Allowed("Y"))
}
