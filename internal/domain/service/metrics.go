// Package service defines the interfaces for domain services.
package service

import (
	"time"
)

// Metrics defines the interface for collecting business metrics.
// This abstraction allows the application layer to remain independent of the specific monitoring implementation (e.g., Prometheus).
// Metrics 定义了收集业务指标的接口。
// 这种抽象使应用层能够独立于具体的监控实现（例如 Prometheus）。
type Metrics interface {
	// RecordKeyGeneration records a key pair generation attempt.
	// RecordKeyGeneration 记录一次密钥对生成。
	RecordKeyGeneration(algorithm string, success bool, duration time.Duration)

	// RecordSign records a signing operation and its error code ("" on success).
	// RecordSign 记录一次签名操作。
	RecordSign(algorithm string, success bool, duration time.Duration, errorCode string)

	// RecordVerify records the outcome of a signature verification.
	// RecordVerify 记录签名验证结果。
	RecordVerify(algorithm string, valid bool)

	// RecordKeyStoreOp records the latency and error status of a key store call.
	// RecordKeyStoreOp 记录密钥存储调用的延迟和错误状态。
	RecordKeyStoreOp(backend, operation string, duration time.Duration, err error)

	// RecordAppRegistration records an application registration attempt.
	// RecordAppRegistration 记录应用注册。
	RecordAppRegistration(success bool, errorCode string)

	// RecordRateLimitHit records an event when a rate limit is triggered.
	// RecordRateLimitHit 记录触发速率限制的事件。
	RecordRateLimitHit(appID, scope string)

	// RecordCacheAccess records a cache hit or miss.
	// RecordCacheAccess 记录缓存命中或未命中。
	RecordCacheAccess(cacheType string, hit bool)
}

// NoopMetrics discards every observation. Useful in tests and tools.
type NoopMetrics struct{}

func (NoopMetrics) RecordKeyGeneration(string, bool, time.Duration) {}
func (NoopMetrics) RecordSign(string, bool, time.Duration, string) {}
func (NoopMetrics) RecordVerify(string, bool) {}
func (NoopMetrics) RecordKeyStoreOp(string, string, time.Duration, error) {}
func (NoopMetrics) RecordAppRegistration(bool, string) {}
func (NoopMetrics) RecordRateLimitHit(string, string) {}
func (NoopMetrics) RecordCacheAccess(string, bool) {}
