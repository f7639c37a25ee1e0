package gedcom

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func person(id, given, surname, gender string) Person {
	return Person{
		ID:       id,
		Names:    map[string]string{DefaultLocale: joinName(given, surname)},
		Given:    given,
		Surname:  surname,
		Gender:   gender,
		Children: []string{},
	}
}

// sampleTree is three generations plus a childless couple, a single-parent child
// and a half-sibling from the father's earlier partner.
func sampleTree() []Person {
	gp := person("gp", "Taras", "Bondar", "M")
	gm := person("gm", "Olena", "Bondar", "F")
	dad := person("dad", "Petro", "Bondar", "M")
	mom := person("mom", "Iryna", "Koval", "F")
	ex := person("ex", "Olha", "Shevchenko", "F")
	half := person("half", "Bohdan", "Bondar", "M")
	kid1 := person("kid1", "Ostap", "Bondar", "M")
	kid2 := person("kid2", "Marta", "Bondar", "F")
	uncle := person("uncle", "Ivan", "Bondar", "M")
	a := person("zed", "Alex", "", "")
	b := person("amy", "Sam", "", "")

	gp.Spouse, gm.Spouse = "gm", "gp"
	gp.Children = []string{"dad", "uncle"}
	gm.Children = []string{"dad"}
	dad.Father, dad.Mother = "gp", "gm"
	uncle.Father = "gp"
	dad.Spouse, mom.Spouse = "mom", "dad"
	dad.Children = []string{"half", "kid1", "kid2"}
	mom.Children = []string{"kid1", "kid2"}
	ex.Children = []string{"half"}
	half.Father, half.Mother = "dad", "ex"
	kid1.Father, kid1.Mother = "dad", "mom"
	kid2.Father, kid2.Mother = "dad", "mom"
	a.Spouse, b.Spouse = "amy", "zed"

	gp.BirthYear, gp.BirthPlace = "1901", "Poltava"
	gp.Deceased, gp.DeathDate, gp.DeathPlace = true, "1970", "Kyiv"
	mom.Details = "Nurse in Lviv\nMoved in 1990"
	mom.SetName("ru", "Ирина Коваль")
	kid1.Deceased = true
	kid2.Profession = "Engineer"
	kid2.ArchiveSource = "State archive f.1"
	kid2.DocumentCode = "DOC-42"
	kid2.Reliability = "high"
	kid2.Color = "#336699"

	// half comes before kid1 so the earlier partnership is found first
	return []Person{gp, gm, dad, mom, ex, half, kid1, kid2, uncle, a, b}
}

type shape struct {
	Given, Surname, Gender           string
	Names                            map[string]string
	BirthYear, BirthPlace            string
	DeathDate, DeathPlace            string
	Deceased                         bool
	Details, Profession, Source      string
	DocumentCode, Reliability, Color string
	Father, Mother, Spouse           string
	Children                         []string
}

// shapes re-keys people by display name so trees with different ids compare equal
// when their relational structure matches.
func shapes(t *testing.T, people []Person) map[string]shape {
	t.Helper()
	name := make(map[string]string, len(people))
	for _, p := range people {
		name[p.ID] = p.Name(DefaultLocale)
	}
	out := make(map[string]shape, len(people))
	for _, p := range people {
		children := make([]string, 0, len(p.Children))
		for _, c := range p.Children {
			children = append(children, name[c])
		}
		sort.Strings(children)
		out[name[p.ID]] = shape{
			Given: p.Given, Surname: p.Surname, Gender: p.Gender, Names: p.Names,
			BirthYear: p.BirthYear, BirthPlace: p.BirthPlace,
			DeathDate: p.DeathDate, DeathPlace: p.DeathPlace, Deceased: p.Deceased,
			Details: p.Details, Profession: p.Profession, Source: p.ArchiveSource,
			DocumentCode: p.DocumentCode, Reliability: p.Reliability, Color: p.Color,
			Father: name[p.Father], Mother: name[p.Mother], Spouse: name[p.Spouse],
			Children: children,
		}
	}
	require.Len(t, out, len(people), "display names must be unique in fixtures")
	return out
}

func TestWrite_RoundTrip(t *testing.T) {
	people := sampleTree()
	out := Write(people)

	back := Parse(out)
	require.Empty(t, back.Skipped)
	require.Len(t, back.People, len(people))
	assert.Equal(t, shapes(t, people), shapes(t, back.People))

	// a second pass must be stable byte for byte
	assert.Equal(t, out, Write(back.People))
}

func TestWrite_RoundTripFromGedcom(t *testing.T) {
	first := Parse(familyGedcom).People
	second := Parse(Write(first)).People
	assert.Equal(t, shapes(t, first), shapes(t, second))
}

func TestWrite_HeaderAndTrailer(t *testing.T) {
	out := Write(sampleTree())

	assert.True(t, strings.HasPrefix(out, "0 HEAD\r\n1 SOUR FAMILYTREE\r\n1 GEDC\r\n2 VERS 5.5.1\r\n2 FORM LINEAGE-LINKED\r\n1 CHAR UTF-8\r\n"))
	assert.True(t, strings.HasSuffix(out, "0 TRLR\r\n"))
	assert.NotContains(t, strings.ReplaceAll(out, "\r\n", ""), "\n", "all line endings must be CRLF")
}

func TestWrite_EmptyInput(t *testing.T) {
	out := Write(nil)
	assert.Contains(t, out, "0 HEAD\r\n")
	assert.True(t, strings.HasSuffix(out, "0 TRLR\r\n"))
	assert.NotContains(t, out, "INDI")
}

func blocks(out string) map[string][]string {
	res := make(map[string][]string)
	var current string
	for _, l := range strings.Split(strings.TrimSpace(out), "\r\n") {
		if strings.HasPrefix(l, "0 ") {
			current = l
			continue
		}
		res[current] = append(res[current], l)
	}
	return res
}

func countPrefix(lines []string, prefix string) int {
	n := 0
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

func TestWrite_FamilyUnits(t *testing.T) {
	out := Write(sampleTree())
	b := blocks(out)

	// gp=I1 gm=I2 dad=I3 mom=I4 ex=I5 half=I6 kid1=I7 kid2=I8 uncle=I9 zed=I10 amy=I11
	assert.Equal(t, 1, countPrefix(b["0 @I4@ INDI"], "1 FAMS"), "parent unit and spouse unit must merge")
	assert.Equal(t, 2, countPrefix(b["0 @I1@ INDI"], "1 FAMS"), "couple unit plus single-parent unit")
	assert.Equal(t, 1, countPrefix(b["0 @I7@ INDI"], "1 FAMC"))
	assert.Equal(t, []string{"1 FAMC @F1@", "1 FAMS @F2@", "1 FAMS @F4@"}, b["0 @I3@ INDI"][len(b["0 @I3@ INDI"])-3:])

	var famBlocks [][]string
	for head, lines := range b {
		if strings.HasSuffix(head, " FAM") {
			famBlocks = append(famBlocks, lines)
		}
	}
	assert.Len(t, famBlocks, 5)

	// married couples come first, then co-parents and single parents
	assert.Equal(t, []string{"1 HUSB @I1@", "1 WIFE @I2@", "1 CHIL @I3@"}, b["0 @F1@ FAM"])
	assert.Equal(t, []string{"1 HUSB @I3@", "1 WIFE @I4@", "1 CHIL @I7@", "1 CHIL @I8@"}, b["0 @F2@ FAM"])
	// no genders: the lexicographically smaller id ("amy") takes the HUSB slot
	assert.Equal(t, []string{"1 HUSB @I11@", "1 WIFE @I10@"}, b["0 @F3@ FAM"])
	assert.Equal(t, []string{"1 HUSB @I3@", "1 WIFE @I5@", "1 CHIL @I6@"}, b["0 @F4@ FAM"])
	assert.Equal(t, []string{"1 HUSB @I1@", "1 CHIL @I9@"}, b["0 @F5@ FAM"])
}

func TestWrite_IndividualLines(t *testing.T) {
	b := blocks(Write(sampleTree()))

	assert.Equal(t, []string{
		"1 NAME Taras /Bondar/",
		"2 GIVN Taras",
		"2 SURN Bondar",
		"1 SEX M",
		"1 BIRT",
		"2 DATE 1901",
		"2 PLAC Poltava",
		"1 DEAT Y",
		"2 DATE 1970",
		"2 PLAC Kyiv",
		"1 _UID gp",
		"1 FAMS @F1@",
		"1 FAMS @F5@",
	}, b["0 @I1@ INDI"])

	assert.Equal(t, []string{
		"1 NAME Iryna /Koval/",
		"2 GIVN Iryna",
		"2 SURN Koval",
		"1 NAME Ирина Коваль",
		"2 LANG ru",
		"1 SEX F",
		"1 NOTE Nurse in Lviv",
		"2 CONT Moved in 1990",
		"1 _UID mom",
		"1 FAMS @F2@",
	}, b["0 @I4@ INDI"])

	assert.Contains(t, b["0 @I8@ INDI"], "1 OCCU Engineer")
	assert.Contains(t, b["0 @I8@ INDI"], "1 SOUR State archive f.1")
	assert.Contains(t, b["0 @I8@ INDI"], "1 REFN DOC-42")
	assert.Contains(t, b["0 @I8@ INDI"], "1 _RELI high")
	assert.Contains(t, b["0 @I8@ INDI"], "1 _COLOR #336699")
	assert.Contains(t, b["0 @I10@ INDI"], "1 NAME Alex //")
}

func TestWrite_DanglingRelationsOmitted(t *testing.T) {
	p := person("p", "Lone", "Wolf", "M")
	p.Spouse = "ghost"
	p.Father = "nobody"
	p.Children = []string{"missing"}

	var out string
	require.NotPanics(t, func() { out = Write([]Person{p}) })
	assert.NotContains(t, out, " FAM\r\n")
	assert.NotContains(t, out, "FAMC")
	assert.NotContains(t, out, "FAMS")
	assert.NotContains(t, out, "ghost")
}

func TestWrite_LongNoteUsesConc(t *testing.T) {
	p := person("p", "Long", "Note", "")
	p.Details = strings.Repeat("ab ", 200) + "\n" + strings.Repeat("x", 600)

	out := Write([]Person{p})
	assert.Contains(t, out, "2 CONC ")
	for _, l := range strings.Split(out, "\r\n") {
		assert.LessOrEqual(t, len([]rune(l)), maxLineValue+7)
	}

	back := Parse(out).People[0]
	assert.Equal(t, strings.TrimSpace(strings.Repeat("ab ", 200))+"\n"+strings.Repeat("x", 600), back.Details)
}

func TestSortedPairKey(t *testing.T) {
	assert.Equal(t, "a|b", SortedPairKey("a", "b"))
	assert.Equal(t, SortedPairKey("a", "b"), SortedPairKey("b", "a"))
	assert.NotEqual(t, SortedPairKey("a", "bc"), SortedPairKey("ab", "c"))
}

func TestBuildFamilies_SpouseWithoutChildren(t *testing.T) {
	h := person("h", "H", "X", "F")
	w := person("w", "W", "X", "M")
	h.Spouse, w.Spouse = "w", "h"

	units := BuildFamilies([]Person{h, w})
	require.Len(t, units, 1)
	assert.Equal(t, "w", units[0].HusbandID, "gender decides the slot before id order")
	assert.Equal(t, "h", units[0].WifeID)
	assert.Empty(t, units[0].ChildIDs)
}

func TestWrite_RemarriedKeepsCurrentSpouse(t *testing.T) {
	dad := person("dad", "Petro", "Bondar", "M")
	ex := person("ex", "Olha", "Shevchenko", "F")
	wife := person("wife", "Iryna", "Koval", "F")
	son := person("son", "Bohdan", "Bondar", "M")
	son.Father, son.Mother = "dad", "ex"
	dad.Spouse, wife.Spouse = "wife", "dad"

	people := Reconcile([]Person{son, dad, ex, wife})
	back := Parse(Write(people))
	require.Empty(t, back.Skipped)
	assert.Equal(t, shapes(t, people), shapes(t, back.People))

	got := byID(t, back.People)
	assert.Equal(t, "wife", got["dad"].Spouse)
	assert.Empty(t, got["ex"].Spouse)
	assert.Equal(t, "ex", got["son"].Mother)
}

func TestWrite_ValuesCannotStartRecords(t *testing.T) {
	p := person("p", "Ivan", "Bondar", "M")
	p.Profession = "Baker\r\n0 @X9@ INDI\r\n1 NAME Ghost /Person/"
	p.ArchiveSource = "Book 1\nvolume 2"
	p.Given = "Ivan\r"

	out := Write([]Person{p})
	assert.Contains(t, out, "1 OCCU Baker 0 @X9@ INDI 1 NAME Ghost /Person/\r\n")
	assert.Contains(t, out, "1 SOUR Book 1 volume 2\r\n")

	back := Parse(out)
	require.Empty(t, back.Skipped)
	require.Len(t, back.People, 1)
	assert.Equal(t, "p", back.People[0].ID)
	assert.Equal(t, "Baker 0 @X9@ INDI 1 NAME Ghost /Person/", back.People[0].Profession)
}

func TestWrite_PersonIDsSurviveRenumbering(t *testing.T) {
	// ids that clash with the xrefs the writer assigns
	a := person("I2", "Ann", "Smith", "F")
	b := person("I1", "Bob", "Smith", "M")
	c := person("3f1c1a52-8d0e-4c1e-9d0a-6b1f2b6c9e11", "Cid", "Smith", "M")
	a.Spouse, b.Spouse = "I1", "I2"
	c.Father, c.Mother = "I1", "I2"
	a.Children = []string{c.ID}
	b.Children = []string{c.ID}

	out := Write([]Person{a, b, c})
	back := byID(t, Parse(out).People)
	require.Len(t, back, 3)
	assert.Equal(t, "Ann Smith", back["I2"].Name(DefaultLocale))
	assert.Equal(t, "Bob Smith", back["I1"].Name(DefaultLocale))
	assert.Equal(t, "I1", back["I2"].Spouse)
	assert.Equal(t, "I1", back[c.ID].Father)
	assert.Equal(t, "I2", back[c.ID].Mother)
	assert.Equal(t, []string{c.ID}, back["I1"].Children)
}

func TestSplitConc_LongRuns(t *testing.T) {
	s := strings.Repeat("é", 10*maxLineValue+3)
	chunks := splitConc(s, maxLineValue)
	require.Len(t, chunks, 11)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), maxLineValue)
	}
	assert.Equal(t, s, strings.Join(chunks, ""))

	assert.Equal(t, []string{"short"}, splitConc("short", maxLineValue))
}
