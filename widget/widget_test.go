package widget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m4xw311/strudelgate/errors"
)

func title(s string) *string { return &s }

func drums(options ...string) Definition {
	return Definition{Groups: []GroupDef{{Label: "Drums", Options: options}}}
}

func TestSelectionSurvivesRedefinition(t *testing.T) {
	m := NewMultiSelect()
	require.True(t, m.Apply(drums("bd", "sd")))

	m.ToggleLabel("Drums", "bd")
	assert.Equal(t, []string{"bd"}, m.State().Groups[0].Selected)

	require.True(t, m.Apply(drums("bd", "sd", "hh")))
	g := m.State().Groups[0]
	assert.Equal(t, []string{"bd", "sd", "hh"}, g.Options)
	assert.Equal(t, []string{"bd"}, g.Selected)
}

func TestSelectionKeptWhenOptionsChange(t *testing.T) {
	m := NewMultiSelect()
	m.Apply(drums("bd", "sd"))
	m.Toggle(0, "bd")
	m.Toggle(0, "sd")

	m.Apply(drums("hh", "cp"))
	assert.ElementsMatch(t, []string{"bd", "sd"}, m.State().Groups[0].Selected)
}

func TestSelectionEvictedWhenLabelDisappears(t *testing.T) {
	m := NewMultiSelect()
	m.Apply(drums("bd", "sd"))
	m.Toggle(0, "bd")

	m.Apply(Definition{Groups: []GroupDef{{Label: "Bass", Options: []string{"c2", "e2"}}}})
	st := m.State()
	require.Len(t, st.Groups, 1)
	assert.Equal(t, "Bass", st.Groups[0].Label)
	assert.False(t, m.HasAnySelections())

	m.Apply(Definition{Groups: []GroupDef{
		{Label: "Bass", Options: []string{"c2", "e2"}},
		{Label: "Drums", Options: []string{"bd", "sd"}},
	}})
	st = m.State()
	require.Len(t, st.Groups, 2)
	assert.Empty(t, st.Groups[1].Selected, "re-added group starts empty")
}

func TestIdenticalPayloadsMergeOnce(t *testing.T) {
	m := NewMultiSelect()
	for i := 0; i < 10; i++ {
		// A fresh container every tick, as a re-render would produce.
		m.Apply(Definition{Title: title("Beat"), Groups: []GroupDef{{Label: "Drums", Options: []string{"bd", "sd"}}}})
	}
	assert.Equal(t, 1, m.Merges())

	m.Toggle(0, "sd")
	assert.False(t, m.Apply(Definition{Title: title("Beat"), Groups: []GroupDef{{Label: "Drums", Options: []string{"bd", "sd"}}}}))
	assert.Equal(t, []string{"sd"}, m.State().Groups[0].Selected, "user edits do not trigger a re-merge")
}

func TestAbsentPayloadIgnored(t *testing.T) {
	m := NewMultiSelect()
	m.Apply(Definition{Title: title("Beat"), Groups: []GroupDef{{Label: "Drums", Options: []string{"bd"}}}})
	m.Toggle(0, "bd")

	assert.False(t, m.Apply(Definition{}))
	st := m.State()
	assert.Equal(t, "Beat", st.Title)
	assert.Equal(t, []string{"bd"}, st.Groups[0].Selected)
}

func TestMergeTitle(t *testing.T) {
	m := NewMultiSelect()
	m.Apply(Definition{Title: title("Beat")})
	assert.Equal(t, "Beat", m.State().Title)

	m.Apply(drums("bd"))
	assert.Equal(t, "Beat", m.State().Title, "missing title keeps the current one")

	m.Apply(Definition{Title: title("Groove"), Groups: []GroupDef{{Label: "Drums", Options: []string{"bd"}}}})
	assert.Equal(t, "Groove", m.State().Title)
}

func TestUnlabelledGroupsSkipped(t *testing.T) {
	m := NewMultiSelect()
	m.Apply(Definition{Groups: []GroupDef{{Options: []string{"a"}}, {Label: "Bass", Options: []string{"c2"}}}})
	st := m.State()
	require.Len(t, st.Groups, 1)
	assert.Equal(t, "Bass", st.Groups[0].Label)
}

func TestUserActions(t *testing.T) {
	m := NewMultiSelect()
	m.Apply(Definition{Groups: []GroupDef{
		{Label: "Drums", Options: []string{"bd", "sd"}},
		{Label: "Bass", Options: []string{"c2"}},
	}})

	m.Toggle(0, "bd")
	m.Toggle(0, "sd")
	m.Toggle(1, "c2")
	m.Toggle(1, "zz")
	m.Toggle(5, "bd")
	assert.Equal(t, "Drums: bd, sd | Bass: c2", m.Summary())

	m.Toggle(0, "bd")
	assert.Equal(t, "Drums: sd | Bass: c2", m.Summary())

	m.ClearGroup(0)
	assert.Equal(t, "Bass: c2", m.Summary())

	m.ClearAll()
	assert.False(t, m.HasAnySelections())
	assert.Empty(t, m.Summary())
}

func TestStateIsACopy(t *testing.T) {
	m := NewMultiSelect()
	m.Apply(drums("bd"))
	m.Toggle(0, "bd")

	st := m.State()
	st.Groups[0].Selected[0] = "mutated"
	assert.Equal(t, []string{"bd"}, m.State().Groups[0].Selected)
}

type counterPayload struct {
	A *int    `json:"a"`
	B *string `json:"b"`
}

func TestSynchronizerDefaultPresence(t *testing.T) {
	s := NewSynchronizer(0, func(cur int, p counterPayload) int { return cur + 1 })

	_, merged := s.Tick(counterPayload{})
	assert.False(t, merged)

	one := 1
	got, merged := s.Tick(counterPayload{A: &one})
	assert.True(t, merged)
	assert.Equal(t, 1, got)

	same := 1
	_, merged = s.Tick(counterPayload{A: &same})
	assert.False(t, merged, "equal values through a different pointer")

	got = s.Update(func(v int) int { return v * 10 })
	assert.Equal(t, 10, got)
	assert.Equal(t, 1, s.Merges())
}

func TestDecodeMultiSelect(t *testing.T) {
	def, err := DecodeMultiSelect([]byte(`{"title":"Beat","groups":[{"label":"Drums","options":["bd","sd"]}]}`))
	require.NoError(t, err)
	require.NotNil(t, def.Title)
	assert.Equal(t, "Beat", *def.Title)
	assert.Equal(t, []GroupDef{{Label: "Drums", Options: []string{"bd", "sd"}}}, def.Groups)
}

func TestDecodeIncomplete(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		title  string
		labels []string
	}{
		{"truncated string", `{"title":"Be`, "Be", nil},
		{"truncated group", `{"title":"Beat","groups":[{"label":"Drums","options":["bd"`, "Beat", []string{"Drums"}},
		{"label not arrived", `{"groups":[{"label":"Bass","options":["c2"]},{"options":["a"]}]}`, "", []string{"Bass"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := DecodeMultiSelect([]byte(tt.input))
			assert.True(t, errors.Is(err, ErrIncomplete), "got %v", err)

			var invalid *InvalidPayloadError
			assert.False(t, errors.As(err, &invalid))

			if tt.title != "" {
				require.NotNil(t, def.Title)
				assert.Equal(t, tt.title, *def.Title)
			}
			var labels []string
			for _, g := range def.Groups {
				labels = append(labels, g.Label)
			}
			assert.Equal(t, tt.labels, labels)
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	for _, input := range []string{
		`{"title":5}`,
		`{"groups":"drums"}`,
		`{"groups":[{"label":"Drums","options":[1,2]}]}`,
		`[1,2,3]`,
	} {
		t.Run(input, func(t *testing.T) {
			_, err := DecodeMultiSelect([]byte(input))
			var invalid *InvalidPayloadError
			assert.True(t, errors.As(err, &invalid), "got %v", err)
			assert.False(t, errors.Is(err, ErrIncomplete))
		})
	}
}

func TestDecodedFramesDriveTheForm(t *testing.T) {
	m := NewMultiSelect()
	frames := []string{
		`{"title":"Pick sounds","groups":[{"label":"Dru`,
		`{"title":"Pick sounds","groups":[{"label":"Drums","options":["bd","sd"]}`,
		`{"title":"Pick sounds","groups":[{"label":"Drums","options":["bd","sd"]}]}`,
	}
	for i, f := range frames {
		def, err := DecodeMultiSelect([]byte(f))
		if err != nil {
			require.True(t, errors.Is(err, ErrIncomplete), "frame %d: %v", i, err)
		}
		m.Apply(def)
		if i == 1 {
			m.ToggleLabel("Drums", "sd")
		}
	}
	st := m.State()
	require.Len(t, st.Groups, 1)
	assert.Equal(t, "Drums", st.Groups[0].Label)
	assert.Equal(t, []string{"sd"}, st.Groups[0].Selected)
}

func TestRestreamKeepsSelections(t *testing.T) {
	m := NewMultiSelect()
	m.Apply(Definition{Title: title("Beat"), Groups: []GroupDef{{Label: "Drums", Options: []string{"bd", "sd"}}}})
	m.ToggleLabel("Drums", "bd")

	frames := []string{
		`{"title":"Beat","groups":[`,
		`{"title":"Beat","groups":[{"label":"Dr`,
		`{"title":"Beat","groups":[{"label":"Drums","options":["bd","sd","h`,
		`{"title":"Beat","groups":[{"label":"Drums","options":["bd","sd","hh"]},{"label":"Ba`,
	}
	for _, f := range frames {
		def, err := DecodeMultiSelect([]byte(f))
		require.True(t, errors.Is(err, ErrIncomplete), "%s: %v", f, err)
		assert.True(t, def.Partial)
		m.Apply(def)

		st := m.State()
		require.Len(t, st.Groups, 1, f)
		assert.Equal(t, "Drums", st.Groups[0].Label, f)
		assert.Equal(t, []string{"bd"}, st.Groups[0].Selected, f)
	}

	def, err := DecodeMultiSelect([]byte(`{"title":"Beat","groups":[{"label":"Drums","options":["bd","sd","hh"]},{"label":"Bass","options":["c2"]}]}`))
	require.NoError(t, err)
	require.True(t, m.Apply(def))
	st := m.State()
	require.Len(t, st.Groups, 2)
	assert.Equal(t, []string{"bd", "sd", "hh"}, st.Groups[0].Options)
	assert.Equal(t, []string{"bd"}, st.Groups[0].Selected)
	assert.Equal(t, "Bass", st.Groups[1].Label)
}

func TestCompleteFrameEvictsAfterPartial(t *testing.T) {
	m := NewMultiSelect()
	m.Apply(Definition{Groups: []GroupDef{
		{Label: "Drums", Options: []string{"bd"}},
		{Label: "Bass", Options: []string{"c2"}},
	}})
	m.ToggleLabel("Bass", "c2")

	partial := drums("bd")
	partial.Partial = true
	require.True(t, m.Apply(partial))
	assert.Len(t, m.State().Groups, 2, "a partial frame never evicts")

	require.True(t, m.Apply(drums("bd")), "same values, now complete")
	st := m.State()
	require.Len(t, st.Groups, 1)
	assert.Equal(t, "Drums", st.Groups[0].Label)
	assert.False(t, m.HasAnySelections())
}

func TestEmptyGroupsAfterTitleOnlyFrame(t *testing.T) {
	m := NewMultiSelect()
	m.Apply(Definition{Title: title("Beat"), Groups: []GroupDef{{Label: "Drums", Options: []string{"bd"}}}})
	m.Toggle(0, "bd")

	require.True(t, m.Apply(Definition{Title: title("Beat")}))
	assert.Len(t, m.State().Groups, 1, "absent groups keep the current ones")

	require.True(t, m.Apply(Definition{Title: title("Beat"), Groups: []GroupDef{}}))
	assert.Empty(t, m.State().Groups)
	assert.False(t, m.HasAnySelections())
}

func TestCompleteLabels(t *testing.T) {
	tests := []struct {
		input string
		want  map[string]bool
	}{
		{`{"groups":[`, map[string]bool{}},
		{`{"groups":[{"label":"Dr`, map[string]bool{}},
		{`{"groups":[{"label":"Drums"`, map[string]bool{"Drums": true}},
		{`{"title":"label","groups":[{"options":["label","x"],"label":"Bass"},{"label":"Ke`, map[string]bool{"Bass": true}},
		{`{"label":"top","groups":[{"meta":{"label":"deep"}}`, map[string]bool{}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, completeLabels([]byte(tt.input)))
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("w1")
	assert.False(t, ok)

	f := r.Form("w1")
	assert.Same(t, f, r.Form("w1"))

	got, ok := r.Lookup("w1")
	require.True(t, ok)
	assert.Same(t, f, got)

	r.Remove("w1")
	_, ok = r.Lookup("w1")
	assert.False(t, ok)
}
