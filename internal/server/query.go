package server

import (
	"errors"
	"regexp"
	"strings"
)

var errNotSelect = errors.New("only a single SELECT statement is allowed")

var (
	selectPrefix = regexp.MustCompile(`(?is)^select\b`)
	intoKeyword  = regexp.MustCompile(`(?i)\binto\b`)
)

// checkSelect accepts exactly one SELECT statement with an optional trailing
// semicolon. SELECT ... INTO is refused since it writes on several dialects.
func checkSelect(sqlText string) error {
	stmt := strings.TrimSpace(sqlText)
	stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
	if strings.Contains(stmt, ";") || !selectPrefix.MatchString(stmt) || intoKeyword.MatchString(stmt) {
		return errNotSelect
	}
	return nil
}
