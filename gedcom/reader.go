package gedcom

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoIndividuals is returned by Import when the input has no INDI record at all,
// which usually means the file is not GEDCOM.
var ErrNoIndividuals = errors.New("no individuals found")

// SkippedLine describes an input line the reader could not use.
type SkippedLine struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// Result is the outcome of reading a GEDCOM document.
type Result struct {
	People   []Person      `json:"people"`
	Families int           `json:"families"`
	Skipped  []SkippedLine `json:"skipped,omitempty"`
}

type nameEntry struct {
	value string
	lang  string
}

type noteEntry struct {
	text string
	ref  string
}

type rawIndividual struct {
	person      Person
	names       []nameEntry
	notes       []noteEntry
	givenSet    bool
	surnameSet  bool
	famc        []string
	fams        []string
	uid         string
	currentName int
}

type rawFamily struct {
	id       string
	husband  string
	wife     string
	children []string
}

type noteBuffer struct {
	level int
	text  strings.Builder
	flush func(string)
}

type reader struct {
	individuals []*rawIndividual
	families    []*rawFamily
	sharedNotes map[string]string
	seen        map[string]bool

	indi  *rawIndividual
	fam   *rawFamily
	event string
	note  *noteBuffer

	skipped []SkippedLine
}

// HasIndividuals reports whether raw contains at least one level-0 INDI record.
func HasIndividuals(raw string) bool {
	for _, l := range splitLines(raw) {
		line, ok := ParseLine(l)
		if ok && line.Level == 0 && line.Pointer != "" && line.Tag == "INDI" {
			return true
		}
	}
	return false
}

// Import pre-checks raw for individuals before parsing it, so callers can tell an
// empty tree apart from input that is not GEDCOM.
func Import(raw string) (Result, error) {
	if !HasIndividuals(raw) {
		return Result{}, ErrNoIndividuals
	}
	return Parse(raw), nil
}

// Parse reads GEDCOM text into flat people. Malformed lines are reported in
// Result.Skipped and never abort the parse.
func Parse(raw string) Result {
	r := &reader{
		sharedNotes: make(map[string]string),
		seen:        make(map[string]bool),
	}
	for i, text := range splitLines(raw) {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		line, ok := ParseLine(text)
		if !ok {
			r.skipped = append(r.skipped, SkippedLine{Number: i + 1, Text: text, Reason: "malformed line"})
			continue
		}
		r.line(i+1, text, line)
	}
	r.flushNote()

	people := r.build()
	return Result{People: people, Families: len(r.families), Skipped: r.skipped}
}

func (r *reader) line(number int, text string, line Line) {
	if r.note != nil {
		if line.Level > r.note.level {
			switch line.Tag {
			case "CONT":
				r.note.text.WriteString("\n")
				r.note.text.WriteString(line.Value)
			case "CONC":
				r.note.text.WriteString(line.Value)
			}
			return
		}
		r.flushNote()
	}

	if line.Level == 0 {
		r.record(number, text, line)
		return
	}

	switch {
	case r.indi != nil:
		r.individualLine(line)
	case r.fam != nil:
		r.familyLine(line)
	}
}

func (r *reader) record(number int, text string, line Line) {
	r.indi, r.fam, r.event = nil, nil, ""
	if line.Pointer == "" {
		return
	}

	switch line.Tag {
	case "INDI":
		if r.seen["I:"+line.Pointer] {
			r.skipped = append(r.skipped, SkippedLine{Number: number, Text: text, Reason: "duplicate individual"})
			return
		}
		r.seen["I:"+line.Pointer] = true
		r.indi = &rawIndividual{
			person:      Person{ID: line.Pointer, Names: map[string]string{}, Children: []string{}},
			currentName: -1,
		}
		r.individuals = append(r.individuals, r.indi)
	case "FAM":
		if r.seen["F:"+line.Pointer] {
			r.skipped = append(r.skipped, SkippedLine{Number: number, Text: text, Reason: "duplicate family"})
			return
		}
		r.seen["F:"+line.Pointer] = true
		r.fam = &rawFamily{id: line.Pointer}
		r.families = append(r.families, r.fam)
	case "NOTE":
		id := line.Pointer
		r.startNote(0, line.Value, func(s string) { r.sharedNotes[id] = s })
	}
}

func (r *reader) individualLine(line Line) {
	ind := r.indi
	p := &ind.person

	if line.Level == 1 {
		r.event = line.Tag
	}

	switch line.Tag {
	case "NAME":
		if line.Level == 1 {
			ind.names = append(ind.names, nameEntry{value: line.Value})
			ind.currentName = len(ind.names) - 1
		}
	case "LANG":
		if r.event == "NAME" && ind.currentName >= 0 {
			ind.names[ind.currentName].lang = strings.TrimSpace(line.Value)
		}
	case "GIVN":
		p.Given = line.Value
		ind.givenSet = true
	case "SURN":
		p.Surname = line.Value
		ind.surnameSet = true
	case "SEX":
		p.Gender = NormalizeGender(line.Value)
	case "DEAT":
		if line.Level == 1 && strings.EqualFold(line.Value, "Y") {
			p.Deceased = true
		}
	case "DATE":
		if line.Level != 2 {
			return
		}
		switch r.event {
		case "BIRT":
			p.BirthYear = line.Value
		case "DEAT":
			p.DeathDate = line.Value
		}
	case "PLAC":
		if line.Level != 2 {
			return
		}
		switch r.event {
		case "BIRT":
			p.BirthPlace = line.Value
		case "DEAT":
			p.DeathPlace = line.Value
		}
	case "NOTE":
		if line.Level != 1 {
			return
		}
		if IsPointer(line.Value) {
			ind.notes = append(ind.notes, noteEntry{ref: StripPointer(line.Value)})
			return
		}
		r.startNote(line.Level, line.Value, func(s string) {
			ind.notes = append(ind.notes, noteEntry{text: s})
		})
	case "OCCU":
		if line.Level == 1 {
			p.Profession = line.Value
		}
	case "SOUR":
		if line.Level == 1 {
			p.ArchiveSource = line.Value
		}
	case "REFN", "_DOC":
		if line.Level == 1 {
			p.DocumentCode = line.Value
		}
	case "_RELI", "RELI":
		p.Reliability = line.Value
	case "_COLOR", "COLOR":
		p.Color = line.Value
	case "FAMC":
		if id := StripPointer(line.Value); id != "" {
			ind.famc = append(ind.famc, id)
		}
	case "FAMS":
		if id := StripPointer(line.Value); id != "" {
			ind.fams = append(ind.fams, id)
		}
	case UIDTag:
		if line.Level == 1 && ind.uid == "" {
			ind.uid = strings.TrimSpace(line.Value)
		}
	}
}

func (r *reader) familyLine(line Line) {
	if line.Level != 1 {
		return
	}
	id := StripPointer(line.Value)
	switch line.Tag {
	case "HUSB":
		r.fam.husband = id
	case "WIFE":
		r.fam.wife = id
	case "CHIL":
		if id != "" {
			r.fam.children = append(r.fam.children, id)
		}
	}
}

func (r *reader) startNote(level int, first string, flush func(string)) {
	r.note = &noteBuffer{level: level, flush: flush}
	r.note.text.WriteString(first)
}

func (r *reader) flushNote() {
	if r.note == nil {
		return
	}
	n := r.note
	r.note = nil
	n.flush(n.text.String())
}

func (r *reader) build() []Person {
	uids := make(map[string]string)
	for _, ind := range r.individuals {
		ind.finish(r.sharedNotes)
		if ind.uid != "" {
			uids[ind.person.ID] = ind.uid
		}
	}
	return rekey(Build(r.individuals, r.families), uids)
}

// rekey replaces xref ids with the _UID values recorded for them. The first
// person to claim a _UID gets it; everyone else keeps the xref, suffixed if a
// _UID already took it.
func rekey(people []Person, uids map[string]string) []Person {
	if len(uids) == 0 {
		return people
	}
	final := make(map[string]string, len(people))
	taken := make(map[string]bool, len(people))
	for _, p := range people {
		if uid := uids[p.ID]; uid != "" && !taken[uid] {
			final[p.ID] = uid
			taken[uid] = true
		}
	}
	for _, p := range people {
		if _, ok := final[p.ID]; ok {
			continue
		}
		id := p.ID
		for n := 2; taken[id]; n++ {
			id = fmt.Sprintf("%s-%d", p.ID, n)
		}
		final[p.ID] = id
		taken[id] = true
	}

	mapID := func(id string) string {
		if f, ok := final[id]; ok {
			return f
		}
		return id
	}
	for i := range people {
		p := &people[i]
		p.ID = mapID(p.ID)
		p.Father = mapID(p.Father)
		p.Mother = mapID(p.Mother)
		p.Spouse = mapID(p.Spouse)
		children := make([]string, len(p.Children))
		for j, c := range p.Children {
			children[j] = mapID(c)
		}
		p.Children = children
	}
	return people
}

// finish resolves names and notes once the whole record has been read.
func (ind *rawIndividual) finish(sharedNotes map[string]string) {
	p := &ind.person

	primary := -1
	for i, n := range ind.names {
		if n.lang == "" {
			primary = i
			break
		}
	}
	if primary < 0 && len(ind.names) > 0 {
		primary = 0
	}

	for i, n := range ind.names {
		given, surname, display := SplitName(n.value)
		if i == primary {
			if !ind.givenSet {
				p.Given = given
			}
			if !ind.surnameSet {
				p.Surname = surname
			}
			p.SetName(DefaultLocale, display)
			continue
		}
		if n.lang != "" {
			p.SetName(n.lang, display)
		}
	}
	if primary < 0 {
		if synthesized := joinName(p.Given, p.Surname); synthesized != "" {
			p.SetName(DefaultLocale, synthesized)
		}
	}

	var notes []string
	for _, n := range ind.notes {
		if n.ref != "" {
			if text, ok := sharedNotes[n.ref]; ok {
				notes = append(notes, text)
			}
			continue
		}
		notes = append(notes, n.text)
	}
	p.Details = strings.Join(notes, "\n")
}

// SplitName decomposes a GEDCOM NAME value into given name, surname and a
// cleaned display name. It understands "Given /Surname/", "Surname, Given" and
// otherwise treats the last word as the surname.
func SplitName(value string) (given, surname, display string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", "", ""
	}

	if first := strings.Index(value, "/"); first >= 0 {
		before := strings.TrimSpace(value[:first])
		rest := value[first+1:]
		middle, after := rest, ""
		if second := strings.Index(rest, "/"); second >= 0 {
			middle, after = rest[:second], rest[second+1:]
		}
		given = before
		surname = strings.TrimSpace(middle)
		return given, surname, joinName(before, surname, after)
	}

	if comma := strings.Index(value, ","); comma >= 0 {
		surname = strings.TrimSpace(value[:comma])
		given = strings.TrimSpace(value[comma+1:])
		return given, surname, joinName(given, surname)
	}

	fields := strings.Fields(value)
	if len(fields) == 1 {
		return fields[0], "", fields[0]
	}
	surname = fields[len(fields)-1]
	given = strings.Join(fields[:len(fields)-1], " ")
	return given, surname, strings.Join(fields, " ")
}
