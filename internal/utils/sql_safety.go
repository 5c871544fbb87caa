package utils

import (
	"errors"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// sqlKeywords 不允许作为表名或列名的 SQL 关键字
var sqlKeywords = map[string]struct{}{
	"SELECT": {}, "INSERT": {}, "UPDATE": {}, "DELETE": {}, "DROP": {}, "ALTER": {}, "CREATE": {},
	"EXEC": {}, "EXECUTE": {}, "UNION": {}, "DECLARE": {}, "FROM": {}, "WHERE": {}, "TABLE": {},
	"GRANT": {}, "TRUNCATE": {},
}

// ValidateIdentifier 验证配置中的表名或列名, 防止 SQL 注入
// 允许 schema.table 形式
func ValidateIdentifier(name string) error {
	if name == "" {
		return errors.New("identifier cannot be empty")
	}
	if len(name) > 128 {
		return errors.New("identifier exceeds maximum length")
	}
	if !identifierPattern.MatchString(name) {
		return errors.New("invalid identifier format")
	}
	for _, part := range strings.Split(name, ".") {
		if _, ok := sqlKeywords[strings.ToUpper(part)]; ok {
			return errors.New("identifier is a SQL keyword")
		}
	}
	return nil
}

// ValidateIdentifiers 批量验证, 空字符串跳过
func ValidateIdentifiers(names ...string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		if err := ValidateIdentifier(name); err != nil {
			return errors.New(name + ": " + err.Error())
		}
	}
	return nil
}

// ValidateSortOrder 验证排序方向
func ValidateSortOrder(order string) error {
	upperOrder := strings.ToUpper(strings.TrimSpace(order))
	if upperOrder != "ASC" && upperOrder != "DESC" {
		return errors.New("sort order must be ASC or DESC")
	}
	return nil
}
