package widget

import (
	"slices"
	"strings"
)

// GroupDef is one agent-defined selection group.
type GroupDef struct {
	Label   string   `json:"label,omitempty" jsonschema:"The label/title for this group"`
	Options []string `json:"options,omitempty" jsonschema:"Option values that can be selected in this group"`
}

// Definition is the agent-controlled part of a multi-select form. Nil fields
// have not arrived yet.
type Definition struct {
	Title  *string    `json:"title,omitempty" jsonschema:"Optional title displayed at the top of the form"`
	Groups []GroupDef `json:"groups,omitempty" jsonschema:"Selection groups, each with a label and selectable options"`

	// Partial marks a frame that is still streaming. Its groups are not the
	// whole list, so they may add and update groups but never evict one.
	Partial bool `json:"-"`
}

// definitionSnapshot is the identity of a frame. Unlike the wire form it
// tells absent groups from an empty list, and a partial frame from the
// complete one carrying the same values.
func definitionSnapshot(d Definition) any {
	return struct {
		Title   *string    `json:"title"`
		Groups  []GroupDef `json:"groups"`
		Partial bool       `json:"partial"`
	}{d.Title, d.Groups, d.Partial}
}

// Group is a definitional group together with the user's selection.
type Group struct {
	Label    string   `json:"label"`
	Options  []string `json:"options"`
	Selected []string `json:"selected"`
}

// FormState is the merged multi-select state. It is what the agent sees when
// it asks what the user picked.
type FormState struct {
	Title  string  `json:"title"`
	Groups []Group `json:"groups"`
}

// MergeGroups is the merge strategy for multi-select forms. Incoming labels
// and options are authoritative; selections are carried over by label and
// dropped for labels that are no longer present. Groups without a label have
// not finished streaming and are skipped. A definition without groups keeps
// the current groups. A partial definition keeps the current groups it does
// not mention after the ones it does.
func MergeGroups(current FormState, incoming Definition) FormState {
	out := FormState{Title: current.Title}
	if incoming.Title != nil {
		out.Title = *incoming.Title
	}
	if incoming.Groups == nil {
		out.Groups = current.Groups
		return out
	}

	out.Groups = make([]Group, 0, len(incoming.Groups))
	for _, g := range incoming.Groups {
		if g.Label == "" {
			continue
		}
		selected := []string{}
		if i := indexOf(current.Groups, g.Label); i >= 0 {
			selected = slices.Clone(current.Groups[i].Selected)
		}
		options := slices.Clone(g.Options)
		if options == nil {
			options = []string{}
		}
		out.Groups = append(out.Groups, Group{Label: g.Label, Options: options, Selected: selected})
	}
	if incoming.Partial {
		for _, g := range current.Groups {
			if indexOf(out.Groups, g.Label) < 0 {
				out.Groups = append(out.Groups, g)
			}
		}
	}
	return out
}

func indexOf(groups []Group, label string) int {
	return slices.IndexFunc(groups, func(g Group) bool { return g.Label == label })
}

func definitionPresent(d Definition) bool {
	return d.Title != nil || d.Groups != nil
}

// MultiSelect is a form whose groups are streamed by the agent and whose
// selections belong to the user.
type MultiSelect struct {
	sync *Synchronizer[FormState, Definition]
}

func NewMultiSelect() *MultiSelect {
	return &MultiSelect{
		sync: NewSynchronizer(
			FormState{Groups: []Group{}},
			MergeGroups,
			WithPresence[FormState](definitionPresent),
			WithSnapshot[FormState](definitionSnapshot),
		),
	}
}

// Apply merges a definition frame. It reports whether the state changed.
func (m *MultiSelect) Apply(def Definition) bool {
	_, merged := m.sync.Tick(def)
	return merged
}

// Toggle flips option in the group at index. Unknown groups and options the
// group does not offer are ignored.
func (m *MultiSelect) Toggle(groupIndex int, option string) {
	m.sync.Update(func(s FormState) FormState {
		if groupIndex < 0 || groupIndex >= len(s.Groups) {
			return s
		}
		g := s.Groups[groupIndex]
		if !slices.Contains(g.Options, option) {
			return s
		}
		if i := slices.Index(g.Selected, option); i >= 0 {
			g.Selected = slices.Delete(slices.Clone(g.Selected), i, i+1)
		} else {
			g.Selected = append(slices.Clone(g.Selected), option)
		}
		return withGroup(s, groupIndex, g)
	})
}

// ToggleLabel is Toggle addressed by group label.
func (m *MultiSelect) ToggleLabel(label, option string) {
	m.Toggle(indexOf(m.State().Groups, label), option)
}

func (m *MultiSelect) ClearGroup(groupIndex int) {
	m.sync.Update(func(s FormState) FormState {
		if groupIndex < 0 || groupIndex >= len(s.Groups) {
			return s
		}
		g := s.Groups[groupIndex]
		g.Selected = []string{}
		return withGroup(s, groupIndex, g)
	})
}

func (m *MultiSelect) ClearAll() {
	m.sync.Update(func(s FormState) FormState {
		groups := make([]Group, len(s.Groups))
		for i, g := range s.Groups {
			g.Selected = []string{}
			groups[i] = g
		}
		s.Groups = groups
		return s
	})
}

// State returns a copy of the merged state.
func (m *MultiSelect) State() FormState {
	s := m.sync.State()
	groups := make([]Group, len(s.Groups))
	for i, g := range s.Groups {
		groups[i] = Group{Label: g.Label, Options: slices.Clone(g.Options), Selected: slices.Clone(g.Selected)}
	}
	s.Groups = groups
	return s
}

func (m *MultiSelect) HasAnySelections() bool {
	for _, g := range m.sync.State().Groups {
		if len(g.Selected) > 0 {
			return true
		}
	}
	return false
}

// Summary renders the selections as "Drums: bd, sd | Bass: c2".
func (m *MultiSelect) Summary() string {
	var parts []string
	for _, g := range m.sync.State().Groups {
		if len(g.Selected) == 0 {
			continue
		}
		parts = append(parts, g.Label+": "+strings.Join(g.Selected, ", "))
	}
	return strings.Join(parts, " | ")
}

// Merges reports how many definition frames were merged.
func (m *MultiSelect) Merges() int { return m.sync.Merges() }

// withGroup returns s with the group at i replaced, leaving the original
// slice untouched.
func withGroup(s FormState, i int, g Group) FormState {
	groups := slices.Clone(s.Groups)
	groups[i] = g
	s.Groups = groups
	return s
}
