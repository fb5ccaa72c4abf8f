package throttle

import (
	"sync"
	"time"
)

// Limiter 进程内滑动窗口限流器，按 客户端+资源 维度记账。
// 两条独立限制：同键相邻请求的最小间隔、窗口内最大次数。
// 状态只存在于本进程内存，进程重启即清空；它不是账本幂等的
// 替代品，防重复扣费只能靠账本的幂等键。
type Limiter struct {
	mu          sync.Mutex
	entries     map[string]*entry
	window      time.Duration
	maxRequests int
	minInterval time.Duration
	idleTTL     time.Duration
	stopChan    chan struct{}
	stopOnce    sync.Once
}

type entry struct {
	windowStart time.Time
	count       int
	lastAllowed time.Time // 上次放行时间，拒绝不更新
	lastSeen    time.Time
}

// Result 限流判定结果
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

func NewLimiter(window time.Duration, maxRequests int, minInterval, idleTTL time.Duration) *Limiter {
	return &Limiter{
		entries:     make(map[string]*entry),
		window:      window,
		maxRequests: maxRequests,
		minInterval: minInterval,
		idleTTL:     idleTTL,
		stopChan:    make(chan struct{}),
	}
}

// CheckAndRecord 判定并记账。放行时计数 +1 并刷新上次放行时间；
// 拒绝时返回需要等待的时长，不改动放行记录。
func (l *Limiter) CheckAndRecord(key string, now time.Time) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{windowStart: now}
		l.entries[key] = e
	}
	e.lastSeen = now

	// 最小间隔限制
	if !e.lastAllowed.IsZero() {
		elapsed := now.Sub(e.lastAllowed)
		if elapsed < l.minInterval {
			return Result{Allowed: false, RetryAfter: l.minInterval - elapsed}
		}
	}

	// 窗口滚动
	if now.Sub(e.windowStart) >= l.window {
		e.windowStart = now
		e.count = 0
	}

	// 窗口计数限制
	if e.count >= l.maxRequests {
		return Result{Allowed: false, RetryAfter: l.window - now.Sub(e.windowStart)}
	}

	e.count++
	e.lastAllowed = now
	return Result{Allowed: true}
}

// StartEviction 启动后台清理，按固定节奏剔除空闲键，
// 与请求判定互不阻塞（只在摘桶瞬间短暂持锁）。
func (l *Limiter) StartEviction(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-l.stopChan:
				return
			case <-ticker.C:
				l.evictIdle(time.Now())
			}
		}
	}()
}

// Stop 停止后台清理并清空状态（进程退出时调用）
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
	l.mu.Lock()
	l.entries = make(map[string]*entry)
	l.mu.Unlock()
}

// Size 当前记账键数量
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Limiter) evictIdle(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, e := range l.entries {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.entries, key)
		}
	}
}
