package gedcom

import "slices"

// Build consolidates parsed INDI and FAM records into flat people. Family units are
// not retained: their HUSB/WIFE/CHIL pointers become father, mother, spouse and
// children fields. Pointers to unknown individuals are dropped.
func Build(individuals []*rawIndividual, families []*rawFamily) []Person {
	people := make([]Person, len(individuals))
	index := make(map[string]int, len(individuals))
	for i, ind := range individuals {
		people[i] = ind.person
		index[ind.person.ID] = i
	}

	exists := func(id string) bool {
		_, ok := index[id]
		return id != "" && ok
	}

	famByID := make(map[string]*rawFamily, len(families))
	for _, fam := range families {
		if !exists(fam.husband) {
			fam.husband = ""
		}
		if !exists(fam.wife) {
			fam.wife = ""
		}
		kept := fam.children[:0]
		for _, c := range fam.children {
			if exists(c) {
				kept = append(kept, c)
			}
		}
		fam.children = kept
		famByID[fam.id] = fam
	}

	// FAMS pointers fill parent slots that the FAM record itself left empty.
	for _, ind := range individuals {
		for _, fid := range ind.fams {
			fam, ok := famByID[fid]
			if !ok || fam.husband == ind.person.ID || fam.wife == ind.person.ID {
				continue
			}
			switch {
			case ind.person.Gender == "F" && fam.wife == "":
				fam.wife = ind.person.ID
			case ind.person.Gender != "F" && fam.husband == "":
				fam.husband = ind.person.ID
			case fam.wife == "":
				fam.wife = ind.person.ID
			}
		}
	}

	assignParents := func(child int, fam *rawFamily) {
		c := &people[child]
		if c.Father == "" && fam.husband != "" && fam.husband != c.ID {
			c.Father = fam.husband
		}
		if c.Mother == "" && fam.wife != "" && fam.wife != c.ID {
			c.Mother = fam.wife
		}
	}
	for i, ind := range individuals {
		for _, fid := range ind.famc {
			if fam, ok := famByID[fid]; ok {
				assignParents(i, fam)
			}
		}
	}
	for _, fam := range families {
		for _, c := range fam.children {
			assignParents(index[c], fam)
		}
	}

	for _, fam := range families {
		if fam.husband == "" || fam.wife == "" || fam.husband == fam.wife {
			continue
		}
		h, w := &people[index[fam.husband]], &people[index[fam.wife]]
		if h.Spouse == "" && w.Spouse == "" {
			h.Spouse, w.Spouse = w.ID, h.ID
		}
	}

	for _, fam := range families {
		for _, cid := range fam.children {
			c := people[index[cid]]
			if fam.husband != "" && c.Father == fam.husband {
				h := &people[index[fam.husband]]
				if !h.HasChild(cid) {
					h.Children = append(h.Children, cid)
				}
			}
			if fam.wife != "" && c.Mother == fam.wife {
				w := &people[index[fam.wife]]
				if !w.HasChild(cid) {
					w.Children = append(w.Children, cid)
				}
			}
		}
	}

	return Reconcile(people)
}

// Reconcile repairs relation invariants on a flat person set and returns a new
// slice; the input is not modified. It is idempotent.
//
//   - father, mother and spouse never point at the person itself or at unknown ids
//   - father and mother never equal the person's spouse
//   - spouse links are symmetric
//   - every child listed by a parent names that parent as father or mother, and every
//     father/mother back-reference appears in the parent's children
func Reconcile(in []Person) []Person {
	people := make([]Person, len(in))
	index := make(map[string]int, len(in))
	for i, p := range in {
		people[i] = p.Clone()
		if people[i].Children == nil {
			people[i].Children = []string{}
		}
		if people[i].Names == nil {
			people[i].Names = map[string]string{}
		}
		index[p.ID] = i
	}
	exists := func(id string) bool {
		_, ok := index[id]
		return id != "" && ok
	}

	for i := range people {
		p := &people[i]
		if !exists(p.Father) || p.Father == p.ID {
			p.Father = ""
		}
		if !exists(p.Mother) || p.Mother == p.ID {
			p.Mother = ""
		}
		if p.Mother == p.Father {
			p.Mother = ""
		}
		if !exists(p.Spouse) || p.Spouse == p.ID {
			p.Spouse = ""
		}
		if p.Spouse != "" && (p.Spouse == p.Father || p.Spouse == p.Mother) {
			p.Spouse = ""
		}
	}

	for i := range people {
		p := &people[i]
		if p.Spouse == "" {
			continue
		}
		q := &people[index[p.Spouse]]
		if q.Spouse == p.ID {
			continue
		}
		if q.Father == p.ID || q.Mother == p.ID {
			p.Spouse = ""
			continue
		}
		if q.Spouse == "" {
			q.Spouse = p.ID
			continue
		}
		if r := people[index[q.Spouse]]; r.Spouse == q.ID {
			p.Spouse = ""
			continue
		}
		q.Spouse = p.ID
	}
	for i := range people {
		p := &people[i]
		if p.Spouse != "" && people[index[p.Spouse]].Spouse != p.ID {
			p.Spouse = ""
		}
	}

	for i := range people {
		p := &people[i]
		kept := make([]string, 0, len(p.Children))
		for _, cid := range p.Children {
			if !exists(cid) || cid == p.ID || slices.Contains(kept, cid) {
				continue
			}
			c := &people[index[cid]]
			if c.Father == p.ID || c.Mother == p.ID || claimChild(p, c) {
				kept = append(kept, cid)
			}
		}
		p.Children = kept
	}
	for i := range people {
		c := people[i]
		for _, pid := range []string{c.Father, c.Mother} {
			if pid == "" {
				continue
			}
			parent := &people[index[pid]]
			if !parent.HasChild(c.ID) {
				parent.Children = append(parent.Children, c.ID)
			}
		}
	}

	return people
}

// claimChild sets p as a parent of c when the matching slot is free.
func claimChild(p, c *Person) bool {
	if c.Spouse == p.ID {
		return false
	}
	switch p.Gender {
	case "M":
		if c.Father == "" {
			c.Father = p.ID
			return true
		}
	case "F":
		if c.Mother == "" {
			c.Mother = p.ID
			return true
		}
	default:
		if c.Father == "" {
			c.Father = p.ID
			return true
		}
		if c.Mother == "" {
			c.Mother = p.ID
			return true
		}
	}
	return false
}
