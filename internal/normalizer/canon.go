package normalizer

import (
	"regexp"
	"strings"

	"github.com/AniJ15/timbr/internal/models"
)

var rePunct = regexp.MustCompile(`[^A-Za-z0-9\s]`)

var suffixes = map[string]string{
	" STREET":    " ST",
	" ROAD":      " RD",
	" AVENUE":    " AVE",
	" BOULEVARD": " BLVD",
	" DRIVE":     " DR",
	" LANE":      " LN",
	" COURT":     " CT",
	" CIRCLE":    " CIR",
	" TERRACE":   " TER",
	" PLACE":     " PL",
	" PARKWAY":   " PKWY",
	" HIGHWAY":   " HWY",
}

// addressKey folds an address into a lower-case key that ignores
// punctuation, unit designator spelling and street suffix spelling.
// The unit number itself is kept: "Apt 1" and "#1" match, "Apt 2" does not.
func addressKey(street, city, state, zip string) string {
	line := strings.ToUpper(strings.TrimSpace(street))
	line = normalizeUnit(line)
	line = rePunct.ReplaceAllString(line, " ")
	line = collapseSpaces(line)
	line = abbreviateSuffix(line)

	c := collapseSpaces(rePunct.ReplaceAllString(strings.ToUpper(strings.TrimSpace(city)), " "))
	z := strings.TrimSpace(zip)
	if len(z) > 5 {
		z = z[:5]
	}

	return strings.ToLower(line + "|" + c + "|" + models.StateCode(state) + "|" + z)
}

var unitDesignators = []string{" APT ", " APARTMENT ", " UNIT ", " STE ", " SUITE ", " #"}

// normalizeUnit rewrites the first unit designator and its value as
// "UNIT <value>", dropping anything after the value
func normalizeUnit(s string) string {
	padded := " " + s + " "
	at, width := -1, 0
	for _, tok := range unitDesignators {
		if i := strings.Index(padded, tok); i >= 0 && (at < 0 || i < at) {
			at, width = i, len(tok)
		}
	}
	if at < 0 {
		return strings.TrimSpace(s)
	}

	base := strings.TrimSpace(padded[:at])
	rest := strings.Fields(strings.TrimLeft(padded[at+width:], "# "))
	if len(rest) == 0 {
		return base
	}
	return base + " UNIT " + rest[0]
}

func abbreviateSuffix(s string) string {
	padded := s + " "
	for long, short := range suffixes {
		padded = strings.ReplaceAll(padded, long+" ", short+" ")
	}
	return strings.TrimSpace(padded)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
