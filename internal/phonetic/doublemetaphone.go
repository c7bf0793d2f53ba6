// Package phonetic implements the Double Metaphone phonetic encoding
// algorithm (Lawrence Philips, 2000). No third-party Go implementation of
// Double Metaphone was found among the available dependencies, so this is
// an original port of the published algorithm: a sequence of positional
// rules over the input string that produce a primary and an optional
// secondary phonetic code.
//
// The tokeniser and scorer packages use these codes to treat likely
// misspellings of a name (e.g. SMYTH vs SMITH) as partial matches.
package phonetic

import "strings"

// maxCodeLen bounds the length of generated codes, matching the reference
// algorithm's default.
const maxCodeLen = 4

// Encode returns the primary and secondary Double Metaphone codes for word.
// The secondary code is empty when the algorithm does not produce an
// alternate encoding. Input is treated case-insensitively; the codes
// themselves are always uppercase ASCII.
func Encode(word string) (primary, secondary string) {
	w := strings.ToUpper(strings.TrimSpace(word))
	if w == "" {
		return "", ""
	}

	// Strip anything that isn't a letter; Double Metaphone operates on
	// alphabetic input only.
	var b strings.Builder
	for _, r := range w {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	w = b.String()
	if w == "" {
		return "", ""
	}

	e := &encoder{word: w, length: len(w)}
	e.run()
	return e.primary.String(), e.secondary.String()
}

type encoder struct {
	word    string
	length  int
	current int
	primary strings.Builder
	secondary strings.Builder
}

func (e *encoder) at(pos int) byte {
	if pos < 0 || pos >= e.length {
		return 0
	}
	return e.word[pos]
}

func (e *encoder) substr(start, length int) string {
	if start < 0 {
		return ""
	}
	end := start + length
	if end > e.length {
		end = e.length
	}
	if start >= end {
		return ""
	}
	return e.word[start:end]
}

func (e *encoder) isVowel(pos int) bool {
	switch e.at(pos) {
	case 'A', 'E', 'I', 'O', 'U', 'Y':
		return true
	}
	return false
}

func (e *encoder) stringAt(start int, candidates ...string) bool {
	if start < 0 || start >= e.length {
		return false
	}
	for _, c := range candidates {
		l := len(c)
		if start+l <= e.length && e.word[start:start+l] == c {
			return true
		}
	}
	return false
}

func (e *encoder) add(primary, secondaryOrNothing string) {
	e.primary.WriteString(primary)
	if secondaryOrNothing == "" {
		e.secondary.WriteString(primary)
	} else {
		e.secondary.WriteString(secondaryOrNothing)
	}
}

func (e *encoder) addExact(primary, secondary string) {
	e.primary.WriteString(primary)
	e.secondary.WriteString(secondary)
}

func (e *encoder) run() {
	pos := 0
	w := e.word
	length := e.length

	// Skip initial letter-pairs that are silent or resolve to 'N' / 'S'.
	if e.stringAt(0, "GN", "KN", "PN", "WR", "PS") {
		pos++
	}
	if e.at(0) == 'X' {
		// Initial X is pronounced like S (ex: Xavier is sometimes an
		// exception, but the reference algorithm treats initial X as S).
		e.addExact("S", "S")
		pos++
	}

	for pos < length && (e.primary.Len() < maxCodeLen || e.secondary.Len() < maxCodeLen) {
		if pos > 0 && pos == indexAfterInitialVowel(w) && e.isVowel(pos) {
			// Initial vowels are only encoded as 'A' at the very start.
			pos++
			continue
		}

		switch e.at(pos) {
		case 'A', 'E', 'I', 'O', 'U', 'Y':
			if pos == 0 {
				e.addExact("A", "A")
			}
			pos++
		case 'B':
			e.addExact("P", "P")
			if e.at(pos+1) == 'B' {
				pos += 2
			} else {
				pos++
			}
		case 'Ç':
			e.addExact("S", "S")
			pos++
		case 'C':
			pos = e.handleC(pos)
		case 'D':
			pos = e.handleD(pos)
		case 'F':
			e.addExact("F", "F")
			if e.at(pos+1) == 'F' {
				pos += 2
			} else {
				pos++
			}
		case 'G':
			pos = e.handleG(pos)
		case 'H':
			pos = e.handleH(pos)
		case 'J':
			pos = e.handleJ(pos)
		case 'K':
			e.addExact("K", "K")
			if e.at(pos+1) == 'K' {
				pos += 2
			} else {
				pos++
			}
		case 'L':
			pos = e.handleL(pos)
		case 'M':
			e.addExact("M", "M")
			if e.stringAt(pos+1, "UMB") && (pos+1 == length-2 || e.stringAt(pos+2, "ER")) {
				pos += 2
			} else if e.at(pos+1) == 'M' {
				pos += 2
			} else {
				pos++
			}
		case 'N':
			e.addExact("N", "N")
			if e.at(pos+1) == 'N' {
				pos += 2
			} else {
				pos++
			}
		case 'Ñ':
			e.addExact("N", "N")
			pos++
		case 'P':
			pos = e.handleP(pos)
		case 'Q':
			e.addExact("K", "K")
			if e.at(pos+1) == 'Q' {
				pos += 2
			} else {
				pos++
			}
		case 'R':
			pos = e.handleR(pos)
		case 'S':
			pos = e.handleS(pos)
		case 'T':
			pos = e.handleT(pos)
		case 'V':
			e.addExact("F", "F")
			if e.at(pos+1) == 'V' {
				pos += 2
			} else {
				pos++
			}
		case 'W':
			pos = e.handleW(pos)
		case 'X':
			if !(pos == length-1 && (e.stringAt(pos-3, "IAU", "EAU") || e.stringAt(pos-2, "AU", "OU"))) {
				e.addExact("KS", "KS")
			}
			if e.at(pos+1) == 'X' {
				pos += 2
			} else {
				pos++
			}
		case 'Z':
			pos = e.handleZ(pos)
		default:
			pos++
		}
	}

	e.truncate()
}

func (e *encoder) truncate() {
	p := e.primary.String()
	s := e.secondary.String()
	if len(p) > maxCodeLen {
		p = p[:maxCodeLen]
	}
	if len(s) > maxCodeLen {
		s = s[:maxCodeLen]
	}
	e.primary.Reset()
	e.primary.WriteString(p)
	e.secondary.Reset()
	e.secondary.WriteString(s)
	if e.secondary.String() == e.primary.String() {
		e.secondary.Reset()
	}
}

func indexAfterInitialVowel(w string) int {
	return 1
}

func (e *encoder) handleC(pos int) int {
	length := e.length
	if e.stringAt(pos, "CAESAR") {
		e.addExact("S", "S")
		return pos + 2
	}
	if e.stringAt(pos+1, "H") {
		if pos > 0 && e.stringAt(pos-1, "ACH") && e.at(pos+2) != 'I' && !e.stringAt(pos-2, "EACH") {
			e.addExact("K", "K")
			return pos + 2
		}
		if e.stringAt(pos, "CHAE") {
			e.addExact("K", "X")
			return pos + 2
		}
		if pos == 0 && (e.stringAt(pos+3, "HARAC", "HARIS") || e.stringAt(pos+3, "HOR", "HYM", "HIA", "HEM")) && !e.stringAt(0, "CHORE") {
			e.addExact("K", "K")
			return pos + 2
		}
		if e.stringAt(0, "VAN ", "VON ") || e.stringAt(0, "SCH") {
			e.addExact("K", "K")
			return pos + 2
		}
		if e.stringAt(pos-2, "MC") {
			e.addExact("K", "K")
			return pos + 2
		}
		if pos > 0 {
			e.addExact("X", "K")
		} else {
			e.addExact("X", "X")
		}
		return pos + 2
	}
	if e.stringAt(pos, "CZ") && !e.stringAt(pos-2, "WICZ") {
		e.addExact("S", "X")
		return pos + 2
	}
	if e.stringAt(pos+1, "CIA") {
		e.addExact("X", "X")
		return pos + 3
	}
	if e.stringAt(pos+1, "C") && !(pos == 1 && e.at(0) == 'M') {
		if e.stringAt(pos+2, "I", "E", "H") && !e.stringAt(pos+2, "HU") {
			if e.stringAt(pos+2, "ERT") || e.stringAt(pos+2, "EASE") {
				e.addExact("KS", "KS")
			} else if e.stringAt(pos+2, "I", "E") {
				e.addExact("X", "X")
			} else {
				e.addExact("K", "K")
			}
			return pos + 3
		}
		e.addExact("K", "K")
		return pos + 2
	}
	if e.stringAt(pos, "CK", "CG", "CQ") {
		e.addExact("K", "K")
		return pos + 2
	}
	if e.stringAt(pos, "CI", "CE", "CY") {
		if e.stringAt(pos, "CIO", "CIE", "CIA") {
			e.addExact("S", "X")
		} else {
			e.addExact("S", "S")
		}
		return pos + 2
	}
	e.addExact("K", "K")
	if e.stringAt(pos+1, " C", " Q", " G") {
		return pos + 3
	}
	if e.stringAt(pos+1, "C", "K", "Q") && !e.stringAt(pos+1, "CE", "CI") {
		return pos + 2
	}
	_ = length
	return pos + 1
}

func (e *encoder) handleD(pos int) int {
	if e.stringAt(pos, "DG") {
		if e.stringAt(pos+2, "I", "E", "Y") {
			e.addExact("J", "J")
			return pos + 3
		}
		e.addExact("TK", "TK")
		return pos + 2
	}
	if e.stringAt(pos, "DT", "DD") {
		e.addExact("T", "T")
		return pos + 2
	}
	e.addExact("T", "T")
	return pos + 1
}

func (e *encoder) handleG(pos int) int {
	length := e.length
	if e.at(pos+1) == 'H' {
		if pos > 0 && !e.isVowel(pos-1) {
			e.addExact("K", "K")
			return pos + 2
		}
		if pos == 0 {
			if e.at(pos+2) == 'I' {
				e.addExact("J", "J")
			} else {
				e.addExact("K", "K")
			}
			return pos + 2
		}
		if (pos > 1 && e.stringAt(pos-2, "B", "H", "D")) ||
			(pos > 2 && e.stringAt(pos-3, "B", "H", "D")) ||
			(pos > 3 && e.stringAt(pos-4, "B", "H")) {
			return pos + 2
		}
		if pos > 2 && e.at(pos-1) == 'U' && e.stringAt(pos-3, "C", "G", "L", "R", "T") {
			e.addExact("F", "F")
		} else if pos > 0 && e.at(pos-1) != 'I' {
			e.addExact("K", "K")
		}
		return pos + 2
	}
	if e.at(pos+1) == 'N' {
		if pos == 1 && e.isVowel(0) && !e.slavoGermanic() {
			e.addExact("KN", "N")
		} else if !e.stringAt(pos+2, "EY") && e.at(pos+1) != 'Y' && !e.slavoGermanic() {
			e.addExact("N", "KN")
		} else {
			e.addExact("KN", "KN")
		}
		return pos + 2
	}
	if e.stringAt(pos+1, "LI") && !e.slavoGermanic() {
		e.addExact("KL", "L")
		return pos + 2
	}
	if pos == 0 && (e.at(pos+1) == 'Y' || e.stringAt(pos+1, "ES", "EP", "EB", "EL", "EY", "IB", "IL", "IN", "IE", "EI", "ER")) {
		e.addExact("K", "J")
		return pos + 2
	}
	if (e.stringAt(pos+1, "ER") || e.at(pos+1) == 'Y') && !e.stringAt(0, "DANGER", "RANGER", "MANGER") &&
		!e.stringAt(pos-1, "E", "I") && !e.stringAt(pos-1, "RGY", "OGY") {
		e.addExact("K", "J")
		return pos + 2
	}
	if e.stringAt(pos+1, "E", "I", "Y") || e.stringAt(pos-1, "AGGI", "OGGI") {
		if e.stringAt(0, "VAN ", "VON ") || e.stringAt(0, "SCH") || e.stringAt(pos+1, "ET") {
			e.addExact("K", "K")
		} else if e.stringAt(pos+1, "IER") {
			e.addExact("J", "J")
		} else {
			e.addExact("J", "K")
		}
		return pos + 2
	}
	e.addExact("K", "K")
	if e.at(pos+1) == 'G' {
		return pos + 2
	}
	_ = length
	return pos + 1
}

func (e *encoder) slavoGermanic() bool {
	w := e.word
	return strings.Contains(w, "W") || strings.Contains(w, "K") || strings.Contains(w, "CZ") || strings.Contains(w, "WITZ")
}

func (e *encoder) handleH(pos int) int {
	length := e.length
	if (pos == 0 || e.isVowel(pos-1)) && e.isVowel(pos+1) {
		e.addExact("H", "H")
		return pos + 2
	}
	_ = length
	return pos + 1
}

func (e *encoder) handleJ(pos int) int {
	if e.stringAt(pos, "JOSE") || e.stringAt(0, "SAN ") {
		if (pos == 0 && e.at(pos+4) == ' ') || e.stringAt(0, "SAN ") {
			e.addExact("H", "H")
		} else {
			e.addExact("J", "H")
		}
		return pos + 1
	}
	if pos == 0 && !e.stringAt(pos, "JOSE") {
		e.addExact("J", "A")
	} else if e.isVowel(pos-1) && !e.slavoGermanic() && (e.at(pos+1) == 'A' || e.at(pos+1) == 'O') {
		e.addExact("J", "H")
	} else if pos == e.length-1 {
		e.addExact("J", "")
	} else if !e.stringAt(pos+1, "L", "T", "K", "S", "N", "M", "B", "Z") && !e.stringAt(pos-1, "S", "K", "L") {
		e.addExact("J", "J")
	}
	if e.at(pos+1) == 'J' {
		return pos + 2
	}
	return pos + 1
}

func (e *encoder) handleL(pos int) int {
	if e.at(pos+1) == 'L' {
		if e.condL1(pos) {
			e.addExact("L", "")
			return pos + 2
		}
		e.addExact("L", "L")
		return pos + 2
	}
	e.addExact("L", "L")
	return pos + 1
}

func (e *encoder) condL1(pos int) bool {
	length := e.length
	if pos == length-3 && e.stringAt(pos-1, "ILLO", "ILLA", "ALLE") {
		return true
	}
	if (e.stringAt(length-2, "AS", "OS") || e.stringAt(length-1, "A", "O")) && e.stringAt(pos-1, "ALLE") {
		return true
	}
	return false
}

func (e *encoder) handleP(pos int) int {
	if e.at(pos+1) == 'H' {
		e.addExact("F", "F")
		return pos + 2
	}
	e.addExact("P", "P")
	if e.stringAt(pos+1, "P", "B") {
		return pos + 2
	}
	return pos + 1
}

func (e *encoder) handleR(pos int) int {
	length := e.length
	if pos == length-1 && !e.slavoGermanic() && e.stringAt(pos-2, "IE") && !e.stringAt(pos-4, "ME", "MA") {
		e.add("", "R")
	} else {
		e.addExact("R", "R")
	}
	if e.at(pos+1) == 'R' {
		return pos + 2
	}
	return pos + 1
}

func (e *encoder) handleS(pos int) int {
	length := e.length
	if e.stringAt(pos-1, "ISL", "YSL") {
		return pos + 1
	}
	if pos == 0 && e.stringAt(pos, "SUGAR") {
		e.addExact("X", "S")
		return pos + 1
	}
	if e.stringAt(pos, "SH") {
		if e.stringAt(pos+1, "HEIM", "HOEK", "HOLM", "HOLZ") {
			e.addExact("S", "S")
		} else {
			e.addExact("X", "X")
		}
		return pos + 2
	}
	if e.stringAt(pos, "SIO", "SIA") {
		if e.slavoGermanic() {
			e.addExact("S", "S")
		} else {
			e.addExact("S", "X")
		}
		return pos + 3
	}
	if (pos == 0 && e.stringAt(pos+1, "M", "N", "L", "W")) || e.stringAt(pos+1, "Z") {
		e.addExact("S", "X")
		if e.at(pos+1) == 'Z' {
			return pos + 2
		}
		return pos + 1
	}
	if e.stringAt(pos, "SC") {
		if e.at(pos+2) == 'H' {
			if e.stringAt(pos+3, "OO", "ER", "EN", "UY", "ED", "EM") {
				if e.stringAt(pos+3, "ER", "EN") {
					e.addExact("X", "SK")
				} else {
					e.addExact("SK", "SK")
				}
			} else if pos == 0 && !e.isVowel(3) && e.at(3) != 'W' {
				e.addExact("X", "S")
			} else {
				e.addExact("X", "X")
			}
			return pos + 3
		}
		if e.stringAt(pos+2, "I", "E", "Y") {
			e.addExact("S", "S")
			return pos + 3
		}
		e.addExact("SK", "SK")
		return pos + 3
	}
	if pos == length-1 && e.stringAt(pos-2, "AI", "OI") {
		e.add("", "S")
	} else {
		e.addExact("S", "S")
	}
	if e.stringAt(pos+1, "S", "Z") {
		return pos + 2
	}
	_ = length
	return pos + 1
}

func (e *encoder) handleT(pos int) int {
	if e.stringAt(pos, "TION") {
		e.addExact("X", "X")
		return pos + 3
	}
	if e.stringAt(pos, "TIA", "TCH") {
		e.addExact("X", "X")
		return pos + 3
	}
	if e.stringAt(pos, "TH") || e.stringAt(pos, "TTH") {
		if e.stringAt(pos+2, "OM", "AM") || e.stringAt(0, "VAN ", "VON ") || e.stringAt(0, "SCH") {
			e.addExact("T", "T")
		} else {
			e.addExact("0", "T")
		}
		return pos + 2
	}
	if e.stringAt(pos+1, "T", "D") {
		return pos + 2
	}
	e.addExact("T", "T")
	return pos + 1
}

func (e *encoder) handleW(pos int) int {
	if e.stringAt(pos, "WR") {
		e.addExact("R", "R")
		return pos + 2
	}
	if pos == 0 && (e.isVowel(pos+1) || e.stringAt(pos, "WH")) {
		if e.isVowel(pos + 1) {
			e.addExact("A", "F")
		} else {
			e.addExact("A", "A")
		}
		return pos + 1
	}
	if (pos == e.length-1 && e.isVowel(pos-1)) || e.stringAt(pos-1, "EWSKI", "EWSKY", "OWSKI", "OWSKY") || e.stringAt(0, "SCH") {
		e.add("", "F")
		return pos + 1
	}
	if e.stringAt(pos, "WICZ", "WITZ") {
		e.addExact("TS", "FX")
		return pos + 4
	}
	return pos + 1
}

func (e *encoder) handleZ(pos int) int {
	if e.at(pos+1) == 'H' {
		e.addExact("J", "J")
		return pos + 2
	}
	if e.stringAt(pos+1, "ZO", "ZI", "ZA") || (e.slavoGermanic() && pos > 0 && e.at(pos-1) == 'T') {
		e.addExact("S", "TS")
		if e.at(pos+1) == 'Z' {
			return pos + 2
		}
		return pos + 1
	}
	e.addExact("S", "S")
	if e.at(pos+1) == 'Z' {
		return pos + 2
	}
	return pos + 1
}
