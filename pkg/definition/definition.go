// Package definition provides immutable, versioned process definitions: a graph
// of activities nested in scopes, with declared event triggers.
package definition

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/dukex/procshift/pkg/models"
)

var (
	ErrInvalidDefinition  = errors.New("invalid process definition")
	ErrDefinitionNotFound = errors.New("process definition not found")
	ErrActivityNotFound   = errors.New("activity not found")
	ErrDefinitionExists   = errors.New("process definition already registered")
)

// Definition is an immutable, versioned process blueprint. Multi-instance
// activities are wrapped in a synthesized body activity, and boundary events
// share the flow scope of the activity they are attached to.
type Definition struct {
	key      string
	version  int
	name     string
	declared []Activity

	activities map[string]Activity
	order      []string
	children   map[string][]string
	boundaries map[string][]string
}

// New validates doc and builds a definition from it.
func New(doc Document) (*Definition, error) {
	d := &Definition{
		key:        doc.Key,
		version:    doc.Version,
		name:       doc.Name,
		activities: map[string]Activity{},
		children:   map[string][]string{},
		boundaries: map[string][]string{},
	}

	var errs error

	if doc.Key == "" || strings.Contains(doc.Key, ":") {
		errs = multierr.Append(errs, fmt.Errorf("%w: key %q must be non-empty and must not contain ':'", ErrInvalidDefinition, doc.Key))
	}

	if doc.Version < 1 {
		errs = multierr.Append(errs, fmt.Errorf("%w: version must be positive, got %d", ErrInvalidDefinition, doc.Version))
	}

	declared := map[string]Activity{}

	for _, a := range doc.Activities {
		switch {
		case a.ID == "" || strings.Contains(a.ID, "#"):
			errs = multierr.Append(errs, activityError(a.ID, "id must be non-empty and must not contain '#'"))
			continue
		case !a.Kind.IsValid():
			errs = multierr.Append(errs, activityError(a.ID, fmt.Sprintf("unknown kind %q", a.Kind)))
			continue
		}

		if _, ok := declared[a.ID]; ok {
			errs = multierr.Append(errs, activityError(a.ID, "duplicate id"))
			continue
		}

		declared[a.ID] = a
		d.declared = append(d.declared, a.clone())
	}

	for _, a := range d.declared {
		eff := a.clone()

		if a.Kind == KindBoundaryEvent {
			if host, ok := declared[a.AttachedTo]; ok {
				eff.ParentID = host.ParentID
				d.boundaries[host.ID] = append(d.boundaries[host.ID], a.ID)
			}
		}

		if a.MultiInstance {
			if eff.LoopCardinality == 0 {
				eff.LoopCardinality = 1
			}

			body := Activity{
				ID:              MultiInstanceBodyID(a.ID),
				Name:            a.Name,
				Kind:            KindMultiInstanceBody,
				ParentID:        a.ParentID,
				MultiInstance:   true,
				LoopCardinality: eff.LoopCardinality,
				Outgoing:        eff.Outgoing,
			}

			eff.ParentID = body.ID
			eff.Outgoing = nil

			d.add(body)
		}

		d.add(eff)
	}

	for _, a := range d.declared {
		errs = multierr.Append(errs, d.validate(a))
	}

	if errs != nil {
		return nil, errs
	}

	return d, nil
}

// MustNew is like New but panics on an invalid document.
func MustNew(doc Document) *Definition {
	d, err := New(doc)
	if err != nil {
		panic(err)
	}

	return d
}

func (d *Definition) add(a Activity) {
	d.activities[a.ID] = a
	d.order = append(d.order, a.ID)
	d.children[a.ParentID] = append(d.children[a.ParentID], a.ID)
}

func (d *Definition) validate(a Activity) error {
	var errs error

	eff := d.activities[a.ID]

	if eff.ParentID != "" {
		parent, ok := d.activities[eff.ParentID]
		if !ok {
			errs = multierr.Append(errs, activityError(a.ID, fmt.Sprintf("parent %q does not exist", eff.ParentID)))
		} else if parent.Kind != KindSubProcess && parent.Kind != KindMultiInstanceBody {
			errs = multierr.Append(errs, activityError(a.ID, fmt.Sprintf("parent %q is not a sub process", eff.ParentID)))
		}
	}

	scope := eff.ParentID
	if body, ok := d.activities[MultiInstanceBodyID(a.ID)]; ok {
		scope = body.ParentID
	}

	for _, target := range a.Outgoing {
		next, ok := d.activities[target]
		if !ok {
			errs = multierr.Append(errs, activityError(a.ID, fmt.Sprintf("outgoing target %q does not exist", target)))
			continue
		}

		nextScope := next.ParentID
		if body, ok := d.activities[MultiInstanceBodyID(target)]; ok {
			nextScope = body.ParentID
		}

		if nextScope != scope {
			errs = multierr.Append(errs, activityError(a.ID, fmt.Sprintf("outgoing target %q is in a different scope", target)))
		}
	}

	if a.MultiInstance {
		switch a.Kind {
		case KindUserTask, KindReceiveTask, KindServiceTask, KindSubProcess:
		default:
			errs = multierr.Append(errs, activityError(a.ID, fmt.Sprintf("kind %s cannot be multi-instance", a.Kind)))
		}

		if a.LoopCardinality < 0 {
			errs = multierr.Append(errs, activityError(a.ID, "loop cardinality must not be negative"))
		}
	}

	if a.Kind == KindBoundaryEvent {
		host, ok := d.activities[a.AttachedTo]

		switch {
		case a.AttachedTo == "":
			errs = multierr.Append(errs, activityError(a.ID, "boundary event must be attached to an activity"))
		case !ok:
			errs = multierr.Append(errs, activityError(a.ID, fmt.Sprintf("host %q does not exist", a.AttachedTo)))
		case host.MultiInstance:
			errs = multierr.Append(errs, activityError(a.ID, "boundary events on multi-instance activities are not supported"))
		case host.Kind != KindUserTask && host.Kind != KindReceiveTask && host.Kind != KindServiceTask && host.Kind != KindSubProcess:
			errs = multierr.Append(errs, activityError(a.ID, fmt.Sprintf("cannot attach to %s", host.Kind)))
		}
	} else {
		if a.AttachedTo != "" {
			errs = multierr.Append(errs, activityError(a.ID, "only boundary events can be attached"))
		}

		if a.NonInterrupting {
			errs = multierr.Append(errs, activityError(a.ID, "only boundary events can be non-interrupting"))
		}
	}

	return multierr.Append(errs, validateTrigger(a))
}

func validateTrigger(a Activity) error {
	if a.Trigger == nil {
		if a.Kind.IsCatchEvent() {
			return activityError(a.ID, "catch event must declare a trigger")
		}

		return nil
	}

	if !a.Kind.IsCatchEvent() && a.Kind != KindReceiveTask {
		return activityError(a.ID, fmt.Sprintf("kind %s cannot declare a trigger", a.Kind))
	}

	if a.Kind == KindReceiveTask && a.Trigger.Kind != models.EventKindMessage {
		return activityError(a.ID, "receive task can only wait for a message")
	}

	switch a.Trigger.Kind {
	case models.EventKindTimer:
		if a.Trigger.Timer == nil {
			return activityError(a.ID, "timer trigger requires a timer definition")
		}

		if err := a.Trigger.Timer.Validate(); err != nil {
			return activityError(a.ID, err.Error())
		}
	case models.EventKindMessage, models.EventKindSignal, models.EventKindConditional:
		if a.Trigger.Name == "" {
			return activityError(a.ID, fmt.Sprintf("%s trigger requires a name", a.Trigger.Kind))
		}

		if a.Trigger.Timer != nil {
			return activityError(a.ID, fmt.Sprintf("%s trigger cannot declare a timer", a.Trigger.Kind))
		}
	default:
		return activityError(a.ID, fmt.Sprintf("unknown trigger kind %q", a.Trigger.Kind))
	}

	return nil
}

func activityError(id, msg string) error {
	return fmt.Errorf("%w: activity %q: %s", ErrInvalidDefinition, id, msg)
}

// ID returns the "<key>:<version>" identity of the definition.
func (d *Definition) ID() string {
	return FormatID(d.key, d.version)
}

func (d *Definition) Key() string  { return d.key }
func (d *Definition) Version() int { return d.version }
func (d *Definition) Name() string { return d.name }

// Activity looks up an activity, including synthesized multi-instance bodies.
func (d *Definition) Activity(id string) (Activity, bool) {
	a, ok := d.activities[id]
	if !ok {
		return Activity{}, false
	}

	return a.clone(), true
}

// Activities returns every activity in declaration order, each multi-instance
// body directly before the activity it wraps.
func (d *Definition) Activities() []Activity {
	out := make([]Activity, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.activities[id].clone())
	}

	return out
}

// Children returns the activities whose flow scope is scopeID. An empty
// scopeID denotes the process scope.
func (d *Definition) Children(scopeID string) []Activity {
	ids := d.children[scopeID]

	out := make([]Activity, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.activities[id].clone())
	}

	return out
}

// StartEvents returns the start events of a scope.
func (d *Definition) StartEvents(scopeID string) []Activity {
	var out []Activity

	for _, a := range d.Children(scopeID) {
		if a.Kind == KindStartEvent {
			out = append(out, a)
		}
	}

	return out
}

// BoundaryEvents returns the boundary events attached to hostID.
func (d *Definition) BoundaryEvents(hostID string) []Activity {
	ids := d.boundaries[hostID]

	out := make([]Activity, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.activities[id].clone())
	}

	return out
}

// IsScope reports whether executions at the activity own a scope: sub
// processes, multi-instance bodies and activities with boundary events.
func (d *Definition) IsScope(id string) bool {
	a, ok := d.activities[id]
	if !ok {
		return false
	}

	return a.Kind == KindSubProcess || a.Kind == KindMultiInstanceBody || len(d.boundaries[id]) > 0
}

// FlowScope returns the id of the scope containing the activity, or "" for the
// process scope.
func (d *Definition) FlowScope(id string) string {
	return d.activities[id].ParentID
}

// Ancestors returns the flow scope chain of an activity from the innermost
// scope outwards, excluding the process scope.
func (d *Definition) Ancestors(id string) []string {
	var out []string

	for scope := d.FlowScope(id); scope != ""; scope = d.FlowScope(scope) {
		out = append(out, scope)
	}

	return out
}

// Document returns the declared form of the definition.
func (d *Definition) Document() Document {
	activities := make([]Activity, 0, len(d.declared))
	for _, a := range d.declared {
		activities = append(activities, a.clone())
	}

	return Document{Key: d.key, Version: d.version, Name: d.name, Activities: activities}
}

// MarshalJSON encodes the declared form of the definition.
func (d *Definition) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Document())
}

// FormatID builds a definition id from key and version.
func FormatID(key string, version int) string {
	return key + ":" + strconv.Itoa(version)
}

// ParseID splits a definition id into key and version.
func ParseID(id string) (string, int, error) {
	i := strings.LastIndex(id, ":")
	if i <= 0 {
		return "", 0, fmt.Errorf("malformed definition id %q", id)
	}

	version, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed definition id %q: %w", id, err)
	}

	return id[:i], version, nil
}
