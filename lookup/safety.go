package lookup

import (
	"fmt"
	"regexp"
	"strings"
)

var forbiddenKeywords = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|EXEC|EXECUTE|DECLARE|CURSOR)\b`,
)

// StripFences removes markdown code fences a model may wrap a statement in.
func StripFences(statement string) string {
	s := strings.TrimSpace(statement)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		lang := strings.TrimSpace(s[:nl])
		if lang == "" || strings.EqualFold(lang, "sql") {
			s = s[nl+1:]
		}
	} else {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "sql"), "SQL")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// CheckSafe reports whether statement is a single read-only SELECT. The
// returned message explains a rejection.
func CheckSafe(statement string) (bool, string) {
	s := strings.TrimSpace(StripFences(statement))
	s = strings.TrimSuffix(s, ";")

	if s == "" {
		return false, "empty statement"
	}
	if !strings.HasPrefix(strings.ToUpper(s), "SELECT") {
		return false, "only SELECT statements are allowed"
	}
	if strings.Contains(s, ";") {
		return false, "multiple statements are not allowed"
	}
	if kw := forbiddenKeywords.FindString(s); kw != "" {
		return false, fmt.Sprintf("keyword %s is not allowed", strings.ToUpper(kw))
	}
	return true, "statement is safe"
}

// Validate returns ErrUnsafeStatement when CheckSafe rejects statement.
func Validate(statement string) error {
	if ok, msg := CheckSafe(statement); !ok {
		return &StatementError{
			Statement: statement,
			Err:       fmt.Errorf("%w: %s", ErrUnsafeStatement, msg),
		}
	}
	return nil
}
