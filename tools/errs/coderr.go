package errs

import (
	"errors"
	"strconv"
	"strings"

	pkgerr "github.com/pkg/errors"
)

// CodeError 业务错误：code 标识错误类别，msg 固定语义，detail 携带现场信息。
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  msg,
	}
}

// WithDetail 返回带补充信息的副本（原值保持只读，可安全做包级哨兵）。
func (e *CodeError) WithDetail(detail string) *CodeError {
	var d string
	if e.Detail == "" {
		d = detail
	} else {
		d = e.Detail + ", " + detail
	}
	return &CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: d,
	}
}

// Wrap 附带调用栈
func (e *CodeError) Wrap() error {
	return pkgerr.WithStack(e)
}

// WrapMsg 补充 detail 并附带调用栈
func (e *CodeError) WrapMsg(detail string) error {
	return pkgerr.WithStack(e.WithDetail(detail))
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// Is 让 errors.Is(err, ErrXxx) 按 code 匹配（忽略 detail）。
func (e *CodeError) Is(target error) bool {
	var ce *CodeError
	if !errors.As(target, &ce) {
		return false
	}
	return e.Code == ce.Code
}

// Code 提取错误类别；非 CodeError 返回 0。
func Code(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}

// New 普通错误（无 code），带调用栈。
func New(msg string) error {
	return pkgerr.New(msg)
}

// WrapMsg 包装任意错误并附加说明。
func WrapMsg(err error, msg string) error {
	if err == nil {
		return nil
	}
	return pkgerr.WithMessage(err, msg)
}
