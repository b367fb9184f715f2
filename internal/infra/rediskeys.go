package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "examguard"
)

// Ключи для Sets (состояние)
const (
	RedisKeyTerminatedAttempts = RedisNamespace + ":attempts:terminated_set"
	RedisKeyLockTerminated     = RedisNamespace + ":lock:warmup:terminated"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanTermination — канал мгновенной остановки попытки ревьюером.
	RedisChanTermination = RedisNamespace + ":attempts:termination-signal"
	// RedisChanFlags — трансляция авто-флагов коллектора в консоль.
	RedisChanFlags = RedisNamespace + ":attempts:flag-signal"
)

// GetWarmupLockKey Генератор ключей для блокировок (если нужны динамические)
func GetWarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}
