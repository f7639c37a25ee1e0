package gedcom

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// SourceName is written into the HEAD SOUR line.
	SourceName = "FAMILYTREE"

	maxLineValue = 248
	crlf         = "\r\n"

	// UIDTag carries a person's own id, which survives the @I<n>@ renumbering.
	UIDTag = "_UID"
)

// lineBreaks turns embedded line breaks into spaces so a value can never start
// a new record.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Write serializes people to GEDCOM 5.5.1 text with CRLF line endings.
func Write(people []Person) string {
	var sb strings.Builder
	_ = WriteTo(&sb, people)
	return sb.String()
}

// WriteTo serializes people to w. Relations that point at ids not present in
// people are omitted.
func WriteTo(w io.Writer, people []Person) error {
	bw := bufio.NewWriter(w)
	gw := &lineWriter{w: bw}

	fb := newFamilyBuilder(people)
	fb.build(people)

	xref := make(map[string]string, len(people))
	for i, p := range people {
		if _, dup := xref[p.ID]; !dup {
			xref[p.ID] = fmt.Sprintf("@I%d@", i+1)
		}
	}
	famRef := make(map[*FamilyUnit]string, len(fb.units))
	for i, u := range fb.units {
		famRef[u] = fmt.Sprintf("@F%d@", i+1)
	}

	gw.line(0, "", "HEAD", "")
	gw.line(1, "", "SOUR", SourceName)
	gw.line(1, "", "GEDC", "")
	gw.line(2, "", "VERS", "5.5.1")
	gw.line(2, "", "FORM", "LINEAGE-LINKED")
	gw.line(1, "", "CHAR", "UTF-8")

	written := make(map[string]bool, len(people))
	for i, p := range people {
		if written[p.ID] {
			continue
		}
		written[p.ID] = true
		gw.line(0, fmt.Sprintf("@I%d@", i+1), "INDI", "")
		writeIndividual(gw, p)
		gw.optional(1, UIDTag, p.ID)
		if u, ok := fb.famc[p.ID]; ok {
			gw.line(1, "", "FAMC", famRef[u])
		}
		for _, u := range fb.fams[p.ID] {
			gw.line(1, "", "FAMS", famRef[u])
		}
	}

	for _, u := range fb.units {
		gw.line(0, famRef[u], "FAM", "")
		if ref, ok := xref[u.HusbandID]; ok {
			gw.line(1, "", "HUSB", ref)
		}
		if ref, ok := xref[u.WifeID]; ok {
			gw.line(1, "", "WIFE", ref)
		}
		for _, c := range u.ChildIDs {
			if ref, ok := xref[c]; ok {
				gw.line(1, "", "CHIL", ref)
			}
		}
	}

	gw.line(0, "", "TRLR", "")
	if gw.err != nil {
		return fmt.Errorf("failed to write gedcom: %w", gw.err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush gedcom output: %w", err)
	}
	return nil
}

func writeIndividual(gw *lineWriter, p Person) {
	name := gedcomName(p)
	if name != "" {
		gw.line(1, "", "NAME", name)
		if p.Given != "" {
			gw.line(2, "", "GIVN", p.Given)
		}
		if p.Surname != "" {
			gw.line(2, "", "SURN", p.Surname)
		}
	}

	locales := make([]string, 0, len(p.Names))
	for loc, n := range p.Names {
		if loc != DefaultLocale && strings.TrimSpace(n) != "" {
			locales = append(locales, loc)
		}
	}
	sort.Strings(locales)
	for _, loc := range locales {
		gw.line(1, "", "NAME", strings.TrimSpace(p.Names[loc]))
		gw.line(2, "", "LANG", loc)
	}

	if g := NormalizeGender(p.Gender); g != "" {
		gw.line(1, "", "SEX", g)
	}
	if p.BirthYear != "" || p.BirthPlace != "" {
		gw.line(1, "", "BIRT", "")
		gw.optional(2, "DATE", p.BirthYear)
		gw.optional(2, "PLAC", p.BirthPlace)
	}
	if p.Deceased || p.DeathDate != "" || p.DeathPlace != "" {
		marker := ""
		if p.Deceased {
			marker = "Y"
		}
		gw.line(1, "", "DEAT", marker)
		gw.optional(2, "DATE", p.DeathDate)
		gw.optional(2, "PLAC", p.DeathPlace)
	}
	if p.Details != "" {
		gw.note(1, p.Details)
	}
	gw.optional(1, "OCCU", p.Profession)
	gw.optional(1, "SOUR", p.ArchiveSource)
	gw.optional(1, "REFN", p.DocumentCode)
	gw.optional(1, "_RELI", p.Reliability)
	gw.optional(1, "_COLOR", p.Color)
}

// gedcomName rebuilds the NAME value: "Given /Surname/" when the parts are known,
// otherwise the display name. An empty "//" marks a known given name without a
// surname so readers do not split it again.
func gedcomName(p Person) string {
	switch {
	case p.Surname != "":
		return strings.TrimSpace(p.Given + " /" + p.Surname + "/")
	case p.Given != "":
		return p.Given + " //"
	}
	return p.Name(DefaultLocale)
}

type lineWriter struct {
	w   *bufio.Writer
	err error
}

func (gw *lineWriter) line(level int, xref, tag, value string) {
	if gw.err != nil {
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d ", level)
	if xref != "" {
		sb.WriteString(xref)
		sb.WriteByte(' ')
	}
	sb.WriteString(tag)
	value = lineBreaks.Replace(value)
	if value != "" {
		sb.WriteByte(' ')
		sb.WriteString(value)
	}
	sb.WriteString(crlf)
	_, gw.err = gw.w.WriteString(sb.String())
}

func (gw *lineWriter) optional(level int, tag, value string) {
	if value = strings.TrimSpace(value); value != "" {
		gw.line(level, "", tag, value)
	}
}

// note writes a NOTE with one CONT per extra line and CONC for overlong lines.
func (gw *lineWriter) note(level int, text string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for i, l := range strings.Split(text, "\n") {
		chunks := splitConc(l, maxLineValue)
		if i == 0 {
			gw.line(level, "", "NOTE", chunks[0])
		} else {
			gw.line(level+1, "", "CONT", chunks[0])
		}
		for _, c := range chunks[1:] {
			gw.line(level+1, "", "CONC", c)
		}
	}
}

// splitConc cuts s into chunks of at most limit runes. Cuts only fall between two
// non-space runes, since readers trim every line.
func splitConc(s string, limit int) []string {
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	var out []string
	runes := []rune(s)
	for len(runes) > limit {
		cut := -1
		for i := limit; i > 0; i-- {
			if !unicode.IsSpace(runes[i-1]) && !unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
		if cut < 0 {
			break
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	return append(out, string(runes))
}
