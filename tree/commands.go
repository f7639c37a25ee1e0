package tree

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/camden-git/familytree/gedcom"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Command is a single interactive edit. Every command is applied atomically by
// Tree.Apply.
type Command interface {
	Name() string
	apply(d *draft) error
}

// AddPerson inserts a new person. An empty id is replaced with a UUID. Relations
// set on Person are linked in both directions.
type AddPerson struct {
	Person gedcom.Person `json:"person"`
}

// UpdatePerson replaces the fields of an existing person. A nil Children list
// leaves the children unchanged.
type UpdatePerson struct {
	Person gedcom.Person `json:"person"`
}

// DeletePerson removes a person and every relation pointing at them.
type DeletePerson struct {
	ID string `json:"id" validate:"required"`
}

// SetSpouse links two people. An empty SpouseID clears the current spouse.
type SetSpouse struct {
	PersonID string `json:"personId" validate:"required"`
	SpouseID string `json:"spouseId"`
}

// SetParent assigns the father or mother of a child. An empty ParentID clears it.
type SetParent struct {
	ChildID  string `json:"childId" validate:"required"`
	ParentID string `json:"parentId"`
	Role     string `json:"role" validate:"required,oneof=father mother"`
}

// AddChild appends a child to a parent. Role is derived from the parent's gender
// when empty.
type AddChild struct {
	ParentID string `json:"parentId" validate:"required"`
	ChildID  string `json:"childId" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=father mother"`
}

// RemoveChild unlinks a child from a parent on both sides.
type RemoveChild struct {
	ParentID string `json:"parentId" validate:"required"`
	ChildID  string `json:"childId" validate:"required"`
}

func (AddPerson) Name() string    { return "add_person" }
func (UpdatePerson) Name() string { return "update_person" }
func (DeletePerson) Name() string { return "delete_person" }
func (SetSpouse) Name() string    { return "set_spouse" }
func (SetParent) Name() string    { return "set_parent" }
func (AddChild) Name() string     { return "add_child" }
func (RemoveChild) Name() string  { return "remove_child" }

func (c AddPerson) apply(d *draft) error {
	p := c.Person.Clone()
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if d.lookup(p.ID) != nil {
		return invalid("id", "person "+p.ID+" already exists")
	}
	if !p.HasName() {
		return invalid("names", "name is required")
	}
	p.Gender = gedcom.NormalizeGender(p.Gender)

	father, mother, spouse, children := p.Father, p.Mother, p.Spouse, p.Children
	p.Father, p.Mother, p.Spouse, p.Children = "", "", "", []string{}
	d.insert(p)

	return d.link(p.ID, father, mother, spouse, children)
}

func (c UpdatePerson) apply(d *draft) error {
	upd := c.Person
	if upd.ID == "" {
		return invalid("id", "id is required")
	}
	cur, err := d.get("id", upd.ID)
	if err != nil {
		return err
	}
	if !upd.HasName() {
		return invalid("names", "name is required")
	}

	father, mother, spouse := upd.Father, upd.Mother, upd.Spouse
	children := upd.Children
	if children == nil {
		children = slices.Clone(cur.Children)
	}

	next := upd.Clone()
	next.Gender = gedcom.NormalizeGender(next.Gender)
	next.Father, next.Mother, next.Spouse, next.Children = cur.Father, cur.Mother, cur.Spouse, cur.Children
	*cur = next

	for _, id := range slices.Clone(cur.Children) {
		if !slices.Contains(children, id) {
			if err := d.removeChild(upd.ID, id); err != nil {
				return err
			}
		}
	}
	return d.link(upd.ID, father, mother, spouse, children)
}

// link brings id's relations in line with the requested values.
func (d *draft) link(id, father, mother, spouse string, children []string) error {
	p := d.lookup(id)
	if p.Father != father || p.Mother != mother {
		// clear both first so father and mother can be swapped in one edit
		if err := d.setParent(id, RoleFather, ""); err != nil {
			return err
		}
		if err := d.setParent(id, RoleMother, ""); err != nil {
			return err
		}
		if father != "" {
			if err := d.setParent(id, RoleFather, father); err != nil {
				return err
			}
		}
		if mother != "" {
			if err := d.setParent(id, RoleMother, mother); err != nil {
				return err
			}
		}
	}
	if p.Spouse != spouse {
		if err := d.setSpouse(id, spouse); err != nil {
			return err
		}
	}
	for _, c := range children {
		if p.HasChild(c) {
			continue
		}
		if err := d.addChild(id, c, ""); err != nil {
			return err
		}
	}
	return nil
}

func (c DeletePerson) apply(d *draft) error {
	if _, err := d.get("id", c.ID); err != nil {
		return err
	}
	d.detach(c.ID)
	d.remove(c.ID)
	return nil
}

func (c SetSpouse) apply(d *draft) error {
	return d.setSpouse(c.PersonID, c.SpouseID)
}

func (c SetParent) apply(d *draft) error {
	return d.setParent(c.ChildID, c.Role, c.ParentID)
}

func (c AddChild) apply(d *draft) error {
	return d.addChild(c.ParentID, c.ChildID, c.Role)
}

func (c RemoveChild) apply(d *draft) error {
	return d.removeChild(c.ParentID, c.ChildID)
}

func validateCommand(cmd Command) error {
	if cmd == nil {
		return invalid("op", "missing command")
	}
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Field()
		if len(field) > 0 {
			field = strings.ToLower(field[:1]) + field[1:]
		}
		return invalid(field, fmt.Sprintf("failed %q check", fe.Tag()))
	}
	return invalid("", err.Error())
}

// EditRequest is the wire form of a Command.
type EditRequest struct {
	Op       string         `json:"op" validate:"required,oneof=add_person update_person delete_person set_spouse set_parent add_child remove_child"`
	Person   *gedcom.Person `json:"person,omitempty"`
	PersonID string         `json:"personId,omitempty"`
	TargetID string         `json:"targetId,omitempty"`
	Role     string         `json:"role,omitempty"`
}

// Command converts the request. PersonID is the subject of the edit and TargetID
// the other side: the spouse, the parent for set_parent, the child for
// add_child and remove_child.
func (r EditRequest) Command() (Command, error) {
	if err := validate.Struct(r); err != nil {
		return nil, invalid("op", fmt.Sprintf("unsupported operation %q", r.Op))
	}
	switch r.Op {
	case "add_person", "update_person":
		if r.Person == nil {
			return nil, invalid("person", "person is required")
		}
		if r.Op == "add_person" {
			return AddPerson{Person: *r.Person}, nil
		}
		return UpdatePerson{Person: *r.Person}, nil
	case "delete_person":
		return DeletePerson{ID: r.PersonID}, nil
	case "set_spouse":
		return SetSpouse{PersonID: r.PersonID, SpouseID: r.TargetID}, nil
	case "set_parent":
		return SetParent{ChildID: r.PersonID, ParentID: r.TargetID, Role: r.Role}, nil
	case "add_child":
		return AddChild{ParentID: r.PersonID, ChildID: r.TargetID, Role: r.Role}, nil
	default:
		return RemoveChild{ParentID: r.PersonID, ChildID: r.TargetID}, nil
	}
}
