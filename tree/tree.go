package tree

import (
	"errors"
	"maps"
	"slices"

	"github.com/camden-git/familytree/gedcom"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrPersonNotFound = errors.New("person not found")
)

// ValidationError is returned when an edit is rejected. It matches ErrValidation
// with errors.Is, and ErrPersonNotFound as well when the edit names an unknown id.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	cause   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

func (e *ValidationError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrValidation, e.cause}
	}
	return []error{ErrValidation}
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func notFound(field, id string) error {
	return &ValidationError{Field: field, Message: "unknown person " + id, cause: ErrPersonNotFound}
}

// Tree is an immutable snapshot of one family tree. Edits go through Apply, which
// returns a new snapshot.
type Tree struct {
	people []gedcom.Person
	index  map[string]int
}

// New builds a snapshot from people after repairing relation invariants.
func New(people []gedcom.Person) *Tree {
	return newTree(gedcom.Reconcile(people))
}

func newTree(people []gedcom.Person) *Tree {
	t := &Tree{people: people, index: make(map[string]int, len(people))}
	for i, p := range people {
		t.index[p.ID] = i
	}
	return t
}

// Len returns the number of people.
func (t *Tree) Len() int {
	return len(t.people)
}

// People returns a deep copy of every person in insertion order.
func (t *Tree) People() []gedcom.Person {
	out := make([]gedcom.Person, len(t.people))
	for i, p := range t.people {
		out[i] = p.Clone()
	}
	return out
}

// Person returns a copy of the person with id.
func (t *Tree) Person(id string) (gedcom.Person, bool) {
	i, ok := t.index[id]
	if !ok {
		return gedcom.Person{}, false
	}
	return t.people[i].Clone(), true
}

// Graph derives the link list and solved generations for the snapshot.
func (t *Tree) Graph() ([]Link, Generations) {
	links := DeriveLinks(t.people)
	return links, SolveGenerations(t.people, links, DefaultMaxPasses)
}

// Apply runs cmd against a private copy and returns the repaired result. On error
// the receiver is returned unchanged together with the error.
func (t *Tree) Apply(cmd Command) (*Tree, error) {
	if err := validateCommand(cmd); err != nil {
		return t, err
	}
	d := t.draft()
	if err := cmd.apply(d); err != nil {
		return t, err
	}
	return newTree(gedcom.Reconcile(d.people)), nil
}

func (t *Tree) draft() *draft {
	return &draft{people: t.People(), index: maps.Clone(t.index)}
}

// draft is the mutable working copy an edit runs against.
type draft struct {
	people []gedcom.Person
	index  map[string]int
}

func (d *draft) get(field, id string) (*gedcom.Person, error) {
	i, ok := d.index[id]
	if id == "" || !ok {
		return nil, notFound(field, id)
	}
	return &d.people[i], nil
}

func (d *draft) lookup(id string) *gedcom.Person {
	if i, ok := d.index[id]; ok && id != "" {
		return &d.people[i]
	}
	return nil
}

func (d *draft) insert(p gedcom.Person) {
	d.index[p.ID] = len(d.people)
	d.people = append(d.people, p)
}

func (d *draft) remove(id string) {
	i, ok := d.index[id]
	if !ok {
		return
	}
	d.people = slices.Delete(d.people, i, i+1)
	d.index = make(map[string]int, len(d.people))
	for j, p := range d.people {
		d.index[p.ID] = j
	}
}

// setParent points child's role slot at parentID, moving the child between the
// old and new parent's children lists. An empty parentID clears the slot.
func (d *draft) setParent(childID, role, parentID string) error {
	c, err := d.get("childId", childID)
	if err != nil {
		return err
	}

	var p *gedcom.Person
	if parentID != "" {
		if parentID == childID {
			return invalid(role, "a person cannot be their own parent")
		}
		if p, err = d.get(role, parentID); err != nil {
			return err
		}
		if parentID == c.Spouse {
			return invalid(role, "a parent cannot also be the spouse")
		}
		if other := otherParent(c, role); other == parentID {
			return invalid(role, "father and mother must be different people")
		}
		if p.Father == childID || p.Mother == childID {
			return invalid(role, "a child cannot be the parent of their own parent")
		}
	}

	slot := parentSlot(c, role)
	if *slot == parentID {
		if p != nil && !p.HasChild(childID) {
			p.Children = append(p.Children, childID)
		}
		return nil
	}
	if old := d.lookup(*slot); old != nil {
		old.Children = without(old.Children, childID)
	}
	*slot = parentID
	if p != nil && !p.HasChild(childID) {
		p.Children = append(p.Children, childID)
	}
	return nil
}

// setSpouse links two people symmetrically and clears both previous partners.
// An empty spouseID only clears.
func (d *draft) setSpouse(personID, spouseID string) error {
	p, err := d.get("personId", personID)
	if err != nil {
		return err
	}

	if spouseID == "" {
		if old := d.lookup(p.Spouse); old != nil && old.Spouse == p.ID {
			old.Spouse = ""
		}
		p.Spouse = ""
		return nil
	}
	if spouseID == personID {
		return invalid("spouseId", "a person cannot be their own spouse")
	}
	q, err := d.get("spouseId", spouseID)
	if err != nil {
		return err
	}
	if q.ID == p.Father || q.ID == p.Mother || p.ID == q.Father || p.ID == q.Mother {
		return invalid("spouseId", "a parent cannot also be the spouse")
	}
	if p.Spouse == q.ID && q.Spouse == p.ID {
		return nil
	}

	for _, side := range []*gedcom.Person{p, q} {
		if old := d.lookup(side.Spouse); old != nil && old.Spouse == side.ID {
			old.Spouse = ""
		}
	}
	p.Spouse, q.Spouse = q.ID, p.ID
	return nil
}

// addChild links childID under parentID. With no role the parent's gender picks
// the slot, falling back to the first free one.
func (d *draft) addChild(parentID, childID, role string) error {
	p, err := d.get("parentId", parentID)
	if err != nil {
		return err
	}
	c, err := d.get("childId", childID)
	if err != nil {
		return err
	}

	if role == "" {
		role = roleFor(p, c)
	}
	if slot := *parentSlot(c, role); slot != "" && slot != p.ID {
		return invalid("role", "child already has a "+role)
	}
	return d.setParent(childID, role, parentID)
}

func (d *draft) removeChild(parentID, childID string) error {
	p, err := d.get("parentId", parentID)
	if err != nil {
		return err
	}
	c, err := d.get("childId", childID)
	if err != nil {
		return err
	}
	p.Children = without(p.Children, childID)
	if c.Father == p.ID {
		c.Father = ""
	}
	if c.Mother == p.ID {
		c.Mother = ""
	}
	return nil
}

// detach clears every relation other people hold to id.
func (d *draft) detach(id string) {
	for i := range d.people {
		p := &d.people[i]
		if p.Father == id {
			p.Father = ""
		}
		if p.Mother == id {
			p.Mother = ""
		}
		if p.Spouse == id {
			p.Spouse = ""
		}
		p.Children = without(p.Children, id)
	}
}

const (
	RoleFather = "father"
	RoleMother = "mother"
)

func parentSlot(c *gedcom.Person, role string) *string {
	if role == RoleMother {
		return &c.Mother
	}
	return &c.Father
}

func otherParent(c *gedcom.Person, role string) string {
	if role == RoleMother {
		return c.Father
	}
	return c.Mother
}

func roleFor(p, c *gedcom.Person) string {
	switch gedcom.NormalizeGender(p.Gender) {
	case "M":
		return RoleFather
	case "F":
		return RoleMother
	}
	switch {
	case c.Father == p.ID || c.Father == "":
		return RoleFather
	case c.Mother == p.ID || c.Mother == "":
		return RoleMother
	}
	return RoleFather
}

func without(ids []string, id string) []string {
	return slices.DeleteFunc(ids, func(s string) bool { return s == id })
}
