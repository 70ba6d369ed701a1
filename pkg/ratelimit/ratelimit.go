package ratelimit

import (
	"context"
	"sync"
	"time"
)

// 端点名称
const (
	EndpointRPCRead       = "rpc:read"       // eth_call / eth_getBalance 等只读调用
	EndpointRPCSend       = "rpc:send"       // eth_sendRawTransaction 等写调用
	EndpointPinningUpload = "pinning:upload" // IPFS pinning 上传
	endpointGeneral       = "general"
)

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	GetRemaining() int
	GetResetTime() time.Time
}

// TokenBucket 令牌桶速率限制器
type TokenBucket struct {
	capacity   int           // 桶容量
	tokens     float64       // 当前令牌数
	refillRate int           // 每秒补充的令牌数
	windowSize time.Duration // refillRate 为 0 时的等待窗口
	lastRefill time.Time     // 上次补充时间
	mu         sync.Mutex
}

// NewTokenBucket 创建新的令牌桶
func NewTokenBucket(capacity, refillRate int, windowSize time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     float64(capacity),
		refillRate: refillRate,
		windowSize: windowSize,
		lastRefill: time.Now(),
	}
}

// refill 按经过的时间补充令牌（保留小数部分，避免亚秒级调用饿死）
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	tb.lastRefill = now
	if tb.refillRate <= 0 {
		return
	}
	tb.tokens += elapsed.Seconds() * float64(tb.refillRate)
	if tb.tokens > float64(tb.capacity) {
		tb.tokens = float64(tb.capacity)
	}
}

// Allow 检查是否允许请求
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Wait 等待直到允许请求
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}

		tb.mu.Lock()
		waitTime := tb.windowSize
		if tb.refillRate > 0 {
			waitTime = time.Duration((1 - tb.tokens) / float64(tb.refillRate) * float64(time.Second))
			if waitTime < time.Millisecond {
				waitTime = time.Millisecond
			}
		}
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// GetRemaining 获取剩余令牌数
func (tb *TokenBucket) GetRemaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return int(tb.tokens)
}

// GetResetTime 获取桶填满的时间
func (tb *TokenBucket) GetResetTime() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	needed := float64(tb.capacity) - tb.tokens
	if needed <= 0 || tb.refillRate <= 0 {
		return time.Now()
	}
	return time.Now().Add(time.Duration(needed / float64(tb.refillRate) * float64(time.Second)))
}

// SlidingWindow 滑动窗口速率限制器
type SlidingWindow struct {
	limit      int           // 限制数量
	windowSize time.Duration // 窗口大小
	requests   []time.Time   // 请求时间戳
	mu         sync.Mutex
}

// NewSlidingWindow 创建新的滑动窗口速率限制器
func NewSlidingWindow(limit int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:      limit,
		windowSize: windowSize,
		requests:   make([]time.Time, 0),
	}
}

// prune 移除窗口外的请求，调用方持有锁
func (sw *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-sw.windowSize)
	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	sw.requests = sw.requests[i:]
}

// Allow 检查是否允许请求
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.prune(now)
	if len(sw.requests) >= sw.limit {
		return false
	}
	sw.requests = append(sw.requests, now)
	return true
}

// Wait 等待直到允许请求
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		if sw.Allow() {
			return nil
		}

		sw.mu.Lock()
		waitTime := 100 * time.Millisecond
		if len(sw.requests) > 0 {
			if w := sw.windowSize - time.Since(sw.requests[0]); w > 0 {
				waitTime = w
			}
		}
		sw.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// GetRemaining 获取剩余请求数
func (sw *SlidingWindow) GetRemaining() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.prune(time.Now())
	return max(0, sw.limit-len(sw.requests))
}

// GetResetTime 获取重置时间
func (sw *SlidingWindow) GetResetTime() time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if len(sw.requests) == 0 {
		return time.Now()
	}
	return sw.requests[0].Add(sw.windowSize)
}

// RateLimitManager 速率限制管理器
type RateLimitManager struct {
	limiters map[string]RateLimiter
	mu       sync.RWMutex
}

// NewRateLimitManager 创建新的速率限制管理器
func NewRateLimitManager() *RateLimitManager {
	manager := &RateLimitManager{
		limiters: make(map[string]RateLimiter),
	}
	manager.initDefaultLimiters()
	return manager
}

// initDefaultLimiters 初始化默认的速率限制器
// 公共 RPC（polygon-rpc.com 等）大约 25 req/s，Pinata 免费档 180 req/min
func (rlm *RateLimitManager) initDefaultLimiters() {
	rlm.limiters[EndpointRPCRead] = NewTokenBucket(50, 20, time.Second)
	rlm.limiters[EndpointRPCSend] = NewTokenBucket(10, 5, time.Second)
	rlm.limiters[EndpointPinningUpload] = NewSlidingWindow(180, time.Minute)
	rlm.limiters[endpointGeneral] = NewSlidingWindow(500, 10*time.Second)
}

// SetLimiter 替换指定端点的速率限制器（配置覆盖默认值）
func (rlm *RateLimitManager) SetLimiter(endpoint string, limiter RateLimiter) {
	rlm.mu.Lock()
	defer rlm.mu.Unlock()
	rlm.limiters[endpoint] = limiter
}

// GetLimiter 获取指定端点的速率限制器
func (rlm *RateLimitManager) GetLimiter(endpoint string) RateLimiter {
	rlm.mu.RLock()
	defer rlm.mu.RUnlock()

	if limiter, exists := rlm.limiters[endpoint]; exists {
		return limiter
	}
	// 未知端点共用通用限制器
	return rlm.limiters[endpointGeneral]
}

// Wait 等待直到允许请求
func (rlm *RateLimitManager) Wait(ctx context.Context, endpoint string) error {
	return rlm.GetLimiter(endpoint).Wait(ctx)
}

// Allow 检查是否允许请求
func (rlm *RateLimitManager) Allow(endpoint string) bool {
	return rlm.GetLimiter(endpoint).Allow()
}

// GetRemaining 获取剩余请求数
func (rlm *RateLimitManager) GetRemaining(endpoint string) int {
	return rlm.GetLimiter(endpoint).GetRemaining()
}
