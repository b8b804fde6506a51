package definition

import (
	"fmt"
	"slices"

	"go.uber.org/multierr"

	"github.com/dukex/procshift/pkg/models"
)

// Modifier derives a new definition document from an existing one. Every
// method returns the modifier so calls can be chained; the first problem of
// each call is recorded and reported by Done.
type Modifier struct {
	doc  Document
	errs error
}

// Modify starts a derivation of def. The derived document keeps def's key and
// version unless changed with WithKey or WithVersion.
func Modify(def *Definition) *Modifier {
	return &Modifier{doc: def.Document()}
}

// ModifyDocument starts a derivation of doc.
func ModifyDocument(doc Document) *Modifier {
	activities := make([]Activity, 0, len(doc.Activities))
	for _, a := range doc.Activities {
		activities = append(activities, a.clone())
	}

	doc.Activities = activities

	return &Modifier{doc: doc}
}

// WithKey sets the key of the derived definition.
func (m *Modifier) WithKey(key string) *Modifier {
	m.doc.Key = key
	return m
}

// WithVersion sets the version of the derived definition.
func (m *Modifier) WithVersion(version int) *Modifier {
	m.doc.Version = version
	return m
}

// ChangeActivityID renames an activity and every reference to it.
func (m *Modifier) ChangeActivityID(oldID, newID string) *Modifier {
	if !m.require(oldID) {
		return m
	}

	if m.index(newID) >= 0 {
		m.fail(fmt.Errorf("activity %q already exists", newID))
		return m
	}

	m.replaceReferences(map[string]string{oldID: newID})

	return m
}

// SwapActivityIDs exchanges the ids of two activities and their references.
func (m *Modifier) SwapActivityIDs(firstID, secondID string) *Modifier {
	if !m.require(firstID) || !m.require(secondID) {
		return m
	}

	m.replaceReferences(map[string]string{firstID: secondID, secondID: firstID})

	return m
}

// ChangeActivityName sets the display name of an activity.
func (m *Modifier) ChangeActivityName(id, name string) *Modifier {
	return m.Update(id, func(a *Activity) { a.Name = name })
}

// RenameMessage changes the message name of every trigger waiting for oldName.
func (m *Modifier) RenameMessage(oldName, newName string) *Modifier {
	return m.renameTrigger(models.EventKindMessage, oldName, newName)
}

// RenameSignal changes the signal name of every trigger waiting for oldName.
func (m *Modifier) RenameSignal(oldName, newName string) *Modifier {
	return m.renameTrigger(models.EventKindSignal, oldName, newName)
}

// Update applies fn to the activity with the given id.
func (m *Modifier) Update(id string, fn func(a *Activity)) *Modifier {
	i := m.index(id)
	if i < 0 {
		m.fail(fmt.Errorf("%w: %s", ErrActivityNotFound, id))
		return m
	}

	fn(&m.doc.Activities[i])

	return m
}

// Add appends a new activity.
func (m *Modifier) Add(a Activity) *Modifier {
	if m.index(a.ID) >= 0 {
		m.fail(fmt.Errorf("activity %q already exists", a.ID))
		return m
	}

	m.doc.Activities = append(m.doc.Activities, a.clone())

	return m
}

// Move places an activity into another flow scope. Sequence flows are left
// untouched.
func (m *Modifier) Move(id, parentID string) *Modifier {
	if parentID != "" && !m.require(parentID) {
		return m
	}

	return m.Update(id, func(a *Activity) { a.ParentID = parentID })
}

// RemoveActivity deletes an activity together with the boundary events attached
// to it, its nested activities and every sequence flow pointing at them.
func (m *Modifier) RemoveActivity(id string) *Modifier {
	if !m.require(id) {
		return m
	}

	removed := map[string]bool{id: true}

	for changed := true; changed; {
		changed = false

		for _, a := range m.doc.Activities {
			if removed[a.ID] {
				continue
			}

			if removed[a.ParentID] || removed[a.AttachedTo] {
				removed[a.ID] = true
				changed = true
			}
		}
	}

	m.doc.Activities = slices.DeleteFunc(m.doc.Activities, func(a Activity) bool { return removed[a.ID] })

	for i := range m.doc.Activities {
		m.doc.Activities[i].Outgoing = slices.DeleteFunc(m.doc.Activities[i].Outgoing, func(t string) bool { return removed[t] })
	}

	return m
}

// WrapInSubProcess introduces a new sub process around activityIDs, which must
// share one flow scope. Flows entering the wrapped activities now enter the sub
// process and reach them through a new start event; flows leaving them now
// leave through a new end event and continue from the sub process. Boundary
// events of wrapped activities move along with their hosts.
func (m *Modifier) WrapInSubProcess(subProcessID string, activityIDs ...string) *Modifier {
	if len(activityIDs) == 0 {
		m.fail(fmt.Errorf("sub process %q must wrap at least one activity", subProcessID))
		return m
	}

	if m.index(subProcessID) >= 0 {
		m.fail(fmt.Errorf("activity %q already exists", subProcessID))
		return m
	}

	wrapped := map[string]bool{}
	parentID := ""

	for i, id := range activityIDs {
		if !m.require(id) {
			return m
		}

		a := m.doc.Activities[m.index(id)]
		if i == 0 {
			parentID = a.ParentID
		} else if a.ParentID != parentID {
			m.fail(fmt.Errorf("activities %q and %q are in different scopes", activityIDs[0], id))
			return m
		}

		wrapped[id] = true
	}

	for _, a := range m.doc.Activities {
		if a.Kind == KindBoundaryEvent && wrapped[a.AttachedTo] {
			wrapped[a.ID] = true
		}
	}

	startID := subProcessID + "_start"
	endID := subProcessID + "_end"

	var entries, exits []string

	for i := range m.doc.Activities {
		a := &m.doc.Activities[i]

		outgoing := make([]string, 0, len(a.Outgoing))

		for _, target := range a.Outgoing {
			switch {
			case wrapped[a.ID] && !wrapped[target]:
				exits = appendUnique(exits, target)
				outgoing = appendUnique(outgoing, endID)
			case !wrapped[a.ID] && wrapped[target]:
				entries = appendUnique(entries, target)
				outgoing = appendUnique(outgoing, subProcessID)
			default:
				outgoing = appendUnique(outgoing, target)
			}
		}

		a.Outgoing = outgoing

		if wrapped[a.ID] && a.Kind != KindBoundaryEvent {
			a.ParentID = subProcessID
		}
	}

	if len(entries) == 0 {
		entries = []string{activityIDs[0]}
	}

	m.doc.Activities = append(m.doc.Activities,
		Activity{ID: subProcessID, Kind: KindSubProcess, ParentID: parentID, Outgoing: exits},
		Activity{ID: startID, Kind: KindStartEvent, ParentID: subProcessID, Outgoing: entries},
		Activity{ID: endID, Kind: KindEndEvent, ParentID: subProcessID},
	)

	return m
}

// Document returns the derived document without validating it.
func (m *Modifier) Document() Document {
	return ModifyDocument(m.doc).doc
}

// Done validates the derived document and builds the definition.
func (m *Modifier) Done() (*Definition, error) {
	if m.errs != nil {
		return nil, m.errs
	}

	return New(m.Document())
}

// MustDone is like Done but panics on error.
func (m *Modifier) MustDone() *Definition {
	def, err := m.Done()
	if err != nil {
		panic(err)
	}

	return def
}

func (m *Modifier) renameTrigger(kind models.EventKind, oldName, newName string) *Modifier {
	found := false

	for i := range m.doc.Activities {
		t := m.doc.Activities[i].Trigger
		if t != nil && t.Kind == kind && t.Name == oldName {
			t.Name = newName
			found = true
		}
	}

	if !found {
		m.fail(fmt.Errorf("no %s trigger named %q", kind, oldName))
	}

	return m
}

func (m *Modifier) replaceReferences(ids map[string]string) {
	rename := func(id string) string {
		if n, ok := ids[id]; ok {
			return n
		}

		return id
	}

	for i := range m.doc.Activities {
		a := &m.doc.Activities[i]
		a.ID = rename(a.ID)
		a.ParentID = rename(a.ParentID)
		a.AttachedTo = rename(a.AttachedTo)

		for j, t := range a.Outgoing {
			a.Outgoing[j] = rename(t)
		}
	}
}

func (m *Modifier) index(id string) int {
	return slices.IndexFunc(m.doc.Activities, func(a Activity) bool { return a.ID == id })
}

func (m *Modifier) require(id string) bool {
	if m.index(id) < 0 {
		m.fail(fmt.Errorf("%w: %s", ErrActivityNotFound, id))
		return false
	}

	return true
}

func (m *Modifier) fail(err error) {
	m.errs = multierr.Append(m.errs, err)
}

func appendUnique(s []string, v string) []string {
	if slices.Contains(s, v) {
		return s
	}

	return append(s, v)
}
