package utils

import (
	"regexp"
	"strings"
	"unicode"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

// MaxCommentLength 审批意见最大长度
const MaxCommentLength = 4000

// StripControlChars 移除控制字符(保留换行符和制表符)
func StripControlChars(input string) string {
	var result strings.Builder
	for _, r := range input {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}

// ValidateID 验证 ID 格式 (请求 ID、单据 ID、流程 ID)
func ValidateID(id string) error {
	// 1. 检查是否为空
	if id == "" {
		return ErrEmptyID
	}

	// 2. 检查格式
	if !idPattern.MatchString(id) {
		return ErrInvalidIDFormat
	}

	// 3. 检查长度
	if len(id) > 64 {
		return ErrIDTooLong
	}

	return nil
}

// NormalizeComment 清理审批意见, 全空白的意见视为未填写
func NormalizeComment(comment *string) (*string, error) {
	if comment == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(StripControlChars(*comment))
	if trimmed == "" {
		return nil, nil
	}
	if len(trimmed) > MaxCommentLength {
		return nil, ErrStringTooLong
	}
	return &trimmed, nil
}

// 错误定义
var (
	ErrEmptyID         = &ValidationError{Code: "EMPTY_ID", Message: "id cannot be empty"}
	ErrInvalidIDFormat = &ValidationError{Code: "INVALID_ID_FORMAT", Message: "id contains invalid characters"}
	ErrIDTooLong       = &ValidationError{Code: "ID_TOO_LONG", Message: "id exceeds maximum length"}
	ErrStringTooLong   = &ValidationError{Code: "STRING_TOO_LONG", Message: "string exceeds maximum length"}
)

// ValidationError 验证错误
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
