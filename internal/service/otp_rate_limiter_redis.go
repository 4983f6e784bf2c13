package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ventana fija por clave: INCR, EXPIRE solo en el primer hit y veredicto
// dentro del script, así no hay segunda ida a Redis para leer el contador.
const otpSendBudgetScript = `
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
if hits > tonumber(ARGV[2]) then
  return 0
end
return 1
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisOTPRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

// NewRedisOTPRateLimiter crea un limitador de envíos de OTP sobre Redis. Las
// claves llegan prefijadas por flujo (reg:, reset:), de modo que el
// presupuesto de registro y el de reset se cuentan por separado.
func NewRedisOTPRateLimiter(client *redis.Client, window time.Duration, max int) OTPRateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = PendingTTL
	}
	if max <= 0 {
		max = 1
	}
	return &redisOTPRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "otp:sends:",
	}
}

func (l *redisOTPRateLimiter) Allow(key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	seconds := int(l.window / time.Second)
	if seconds <= 0 {
		seconds = 60
	}
	verdict, err := l.client.Eval(ctx, otpSendBudgetScript, []string{l.prefix + key}, seconds, l.max).Int()
	if err != nil {
		// Redis caído no debe frenar registros; el límite es best effort.
		return true
	}
	return verdict == 1
}
