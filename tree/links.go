package tree

import "github.com/camden-git/familytree/gedcom"

type LinkType string

const (
	LinkChild  LinkType = "child"
	LinkCouple LinkType = "couple"
)

// Link is a graph edge between two people. Child links point from parent to child;
// couple links are unordered.
type Link struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   LinkType `json:"type"`
}

// DeriveLinks builds one edge per distinct parent->child relation and one per
// spouse pair. Relations recorded on either side (child's father/mother or the
// parent's children list) produce the same single edge. Unknown ids are skipped.
func DeriveLinks(people []gedcom.Person) []Link {
	known := make(map[string]bool, len(people))
	for _, p := range people {
		known[p.ID] = true
	}

	var links []Link
	seen := make(map[string]bool)
	addChild := func(parent, child string) {
		if parent == "" || child == "" || parent == child || !known[parent] || !known[child] {
			return
		}
		key := "c|" + parent + "|" + child
		if seen[key] {
			return
		}
		seen[key] = true
		links = append(links, Link{Source: parent, Target: child, Type: LinkChild})
	}

	for _, p := range people {
		addChild(p.Father, p.ID)
		addChild(p.Mother, p.ID)
		for _, c := range p.Children {
			addChild(p.ID, c)
		}
	}

	for _, p := range people {
		if p.Spouse == "" || p.Spouse == p.ID || !known[p.Spouse] {
			continue
		}
		key := "s|" + gedcom.SortedPairKey(p.ID, p.Spouse)
		if seen[key] {
			continue
		}
		seen[key] = true
		links = append(links, Link{Source: p.ID, Target: p.Spouse, Type: LinkCouple})
	}

	return links
}
