// Package safe_close 关闭信号扇出与等待
package safe_close

import (
	"sync"
)

// SafeClose 向所有挂载的协程广播关闭信号，并等待它们全部结束
type SafeClose struct {
	closeOnce sync.Once
	closeCh   chan struct{}
	wg        sync.WaitGroup

	mu  sync.Mutex
	err error
}

func NewSafeClose() *SafeClose {
	return &SafeClose{closeCh: make(chan struct{})}
}

// Attach 启动一个受管理的协程
// fn 在收到 closeSignal 后清理资源并调用 done
func (s *SafeClose) Attach(fn func(done func(), closeSignal <-chan struct{})) {
	s.wg.Add(1)
	var once sync.Once
	done := func() { once.Do(s.wg.Done) }
	go fn(done, s.closeCh)
}

// SendCloseSignal 发送关闭信号，只有第一次调用生效；err 记录关闭原因
func (s *SafeClose) SendCloseSignal(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.closeCh)
	})
}

// CloseSignal 关闭信号通道
func (s *SafeClose) CloseSignal() <-chan struct{} {
	return s.closeCh
}

// WaitClosed 等待所有协程调用 done，返回关闭原因
func (s *SafeClose) WaitClosed() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
