package domain

import "github.com/pkg/errors"

// 领域错误定义
var (
	// ErrStoreUnavailable 存储无法打开，服务拒绝启动
	ErrStoreUnavailable = errors.New("note store unavailable")
	// ErrRead 读取存储失败
	ErrRead = errors.New("note store read error")
	// ErrWrite 写入存储失败
	ErrWrite = errors.New("note store write error")
	// ErrNotFound 便签不存在
	ErrNotFound = errors.New("note not found")
	// ErrDragInProgress 已有拖拽会话
	ErrDragInProgress = errors.New("drag already in progress")
	// ErrNoDrag 当前没有拖拽会话
	ErrNoDrag = errors.New("no drag in progress")
	// ErrDragNotOwner 拖拽会话属于其他客户端
	ErrDragNotOwner = errors.New("drag owned by another client")
)

// IsStoreError 判断是否为存储读写类错误（非致命，可重试）
func IsStoreError(err error) bool {
	return errors.Is(err, ErrWrite) || errors.Is(err, ErrRead)
}

// StoreError 存储错误，同时保留错误类别（ErrWrite 等）和底层原因
type StoreError struct {
	Op   string
	Kind error
	Err  error
}

// NewStoreError 创建存储错误，err 为 nil 时只携带类别
func NewStoreError(kind error, op string, err error) error {
	return &StoreError{Op: op, Kind: kind, Err: err}
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap 让 errors.Is 同时匹配类别和原因
func (e *StoreError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
