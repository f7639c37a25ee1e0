package gedcom

import "slices"

// FamilyUnit is a FAM record rebuilt from flat people at export time.
type FamilyUnit struct {
	ID        string
	HusbandID string
	WifeID    string
	ChildIDs  []string
}

// SortedPairKey is the dedup key for two people regardless of argument order.
func SortedPairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// familyBuilder reconstructs family units in two phases: parent pairs taken from
// children first, then spouse pairs that have no recorded children.
type familyBuilder struct {
	people map[string]*Person
	units  []*FamilyUnit
	byKey  map[string]*FamilyUnit
	famc   map[string]*FamilyUnit
	fams   map[string][]*FamilyUnit
}

func newFamilyBuilder(people []Person) *familyBuilder {
	fb := &familyBuilder{
		people: make(map[string]*Person, len(people)),
		byKey:  make(map[string]*FamilyUnit),
		famc:   make(map[string]*FamilyUnit),
		fams:   make(map[string][]*FamilyUnit),
	}
	for i := range people {
		if _, dup := fb.people[people[i].ID]; !dup {
			fb.people[people[i].ID] = &people[i]
		}
	}
	return fb
}

func (fb *familyBuilder) known(id string) string {
	if _, ok := fb.people[id]; ok {
		return id
	}
	return ""
}

// addParentUnits is phase one. Roles come from the child's own father/mother fields.
func (fb *familyBuilder) addParentUnits(people []Person) {
	for _, child := range people {
		father, mother := fb.known(child.Father), fb.known(child.Mother)
		if father == child.ID {
			father = ""
		}
		if mother == child.ID {
			mother = ""
		}
		if father == "" && mother == "" {
			continue
		}
		if _, done := fb.famc[child.ID]; done {
			continue
		}

		unit := fb.unit(father, mother)
		if !slices.Contains(unit.ChildIDs, child.ID) {
			unit.ChildIDs = append(unit.ChildIDs, child.ID)
		}
		fb.famc[child.ID] = unit
	}
}

// addSpouseUnits is phase two: one unit per spouse pair, even without children.
func (fb *familyBuilder) addSpouseUnits(people []Person) {
	for _, p := range people {
		partner := fb.known(p.Spouse)
		if partner == "" || partner == p.ID {
			continue
		}
		if _, ok := fb.byKey[SortedPairKey(p.ID, partner)]; ok {
			continue
		}
		husband, wife := fb.assignRoles(p.ID, partner)
		fb.unit(husband, wife)
	}
}

// assignRoles picks HUSB and WIFE for a couple without explicit roles: genders
// when they disambiguate, otherwise the lexicographically smaller id is HUSB.
func (fb *familyBuilder) assignRoles(a, b string) (husband, wife string) {
	ga, gb := fb.people[a].Gender, fb.people[b].Gender
	switch {
	case ga == "M" && gb != "M", gb == "F" && ga != "F":
		return a, b
	case gb == "M" && ga != "M", ga == "F" && gb != "F":
		return b, a
	}
	if b < a {
		return b, a
	}
	return a, b
}

// marriedFirst moves units whose parents are each other's spouse ahead of the
// rest. Readers link spouses first-write-wins in FAM order, so a remarried
// person must meet their current spouse before a former co-parent.
func (fb *familyBuilder) marriedFirst() {
	rank := func(u *FamilyUnit) int {
		if u.HusbandID == "" || u.WifeID == "" {
			return 1
		}
		if fb.people[u.HusbandID].Spouse == u.WifeID || fb.people[u.WifeID].Spouse == u.HusbandID {
			return 0
		}
		return 1
	}
	slices.SortStableFunc(fb.units, func(a, b *FamilyUnit) int { return rank(a) - rank(b) })

	pos := make(map[*FamilyUnit]int, len(fb.units))
	for i, u := range fb.units {
		pos[u] = i
	}
	for _, units := range fb.fams {
		slices.SortFunc(units, func(a, b *FamilyUnit) int { return pos[a] - pos[b] })
	}
}

// build runs both phases and fixes the emission order.
func (fb *familyBuilder) build(people []Person) {
	fb.addParentUnits(people)
	fb.addSpouseUnits(people)
	fb.marriedFirst()
}

func (fb *familyBuilder) unit(husband, wife string) *FamilyUnit {
	key := SortedPairKey(husband, wife)
	if husband == "" || wife == "" {
		// single-parent units keep their role in the key
		key = husband + "|" + wife
	}
	if u, ok := fb.byKey[key]; ok {
		return u
	}
	u := &FamilyUnit{HusbandID: husband, WifeID: wife}
	fb.units = append(fb.units, u)
	fb.byKey[key] = u
	for _, id := range []string{husband, wife} {
		if id != "" && !slices.Contains(fb.fams[id], u) {
			fb.fams[id] = append(fb.fams[id], u)
		}
	}
	return u
}

// BuildFamilies reconstructs the family units of people. Returned units carry
// no ids; the writer assigns them.
func BuildFamilies(people []Person) []FamilyUnit {
	fb := newFamilyBuilder(people)
	fb.build(people)
	out := make([]FamilyUnit, len(fb.units))
	for i, u := range fb.units {
		out[i] = *u
	}
	return out
}
