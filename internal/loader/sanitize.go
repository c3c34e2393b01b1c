package loader

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	identifierChars = regexp.MustCompile(`[^a-z0-9_]`)
	multiUnderscore = regexp.MustCompile(`_+`)
)

// SanitizeTableName converts a dataset folder or file name into a valid
// PostgreSQL table name.
func SanitizeTableName(name string) string {
	s := strings.ToLower(name)
	s = identifierChars.ReplaceAllString(s, "_")
	return multiUnderscore.ReplaceAllString(s, "_")
}

// SanitizeColumnName converts a CSV header into a valid PostgreSQL column
// name. Identifiers cannot start with a digit, those get a col_ prefix.
func SanitizeColumnName(name string) string {
	s := strings.ToLower(name)
	s = identifierChars.ReplaceAllString(s, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s != "" && s[0] >= '0' && s[0] <= '9' {
		s = "col_" + s
	}
	return s
}

// missingValue reports whether the cell is one of the markers the source
// files use for suppressed or absent values.
func missingValue(s string) bool {
	switch s {
	case "–", "-", "", "nan", "None", "NULL":
		return true
	}
	return false
}

// NormalizeDecimal parses a German-formatted decimal ("129,1") into a
// float. Missing-value markers and unparseable cells yield nil.
func NormalizeDecimal(value string) *float64 {
	s := strings.TrimSpace(value)
	if missingValue(s) {
		return nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// NormalizeInteger parses a cell into an integer. Values with a decimal
// part are not integers and yield nil; a trailing comma without digits is
// tolerated.
func NormalizeInteger(value string) *int64 {
	s := strings.TrimSpace(value)
	if missingValue(s) {
		return nil
	}
	if idx := strings.Index(s, ","); idx >= 0 {
		if strings.TrimSpace(s[idx+1:]) != "" {
			return nil
		}
		s = s[:idx]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// hasDecimalComma reports whether the cell carries a German decimal comma
// with digits after it, the signal that a column is numeric rather than
// integer.
func hasDecimalComma(value string) bool {
	idx := strings.Index(value, ",")
	if idx < 0 {
		return false
	}
	rest := strings.TrimSpace(value[idx+1:])
	if rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
