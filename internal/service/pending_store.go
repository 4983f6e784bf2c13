package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL de registros y resets pendientes, igual para ambos.
const PendingTTL = 10 * time.Minute

// PendingRegistration es el bundle efímero creado en start-registration y
// consumido al verificar el OTP. Un resend lo sobreescribe entero con un
// código nuevo (last write wins).
type PendingRegistration struct {
	Username     string `json:"username"`
	PasswordHash string `json:"hashed_password"`
	OTP          string `json:"otp"`
}

// PendingReset es el código pendiente de un password reset.
type PendingReset struct {
	OTP string `json:"otp"`
}

// PendingStore guarda estado pendiente con TTL, keyed por email. Consume es
// atómico: con dos verificaciones concurrentes solo una obtiene el valor.
type PendingStore interface {
	PutRegistration(ctx context.Context, email string, reg PendingRegistration) error
	GetRegistration(ctx context.Context, email string) (PendingRegistration, bool, error)
	ConsumeRegistration(ctx context.Context, email string) (PendingRegistration, bool, error)

	PutReset(ctx context.Context, email string, reset PendingReset) error
	GetReset(ctx context.Context, email string) (PendingReset, bool, error)
	ConsumeReset(ctx context.Context, email string) (PendingReset, bool, error)
}

const (
	regKeyPrefix   = "otp:reg:"
	resetKeyPrefix = "otp:reset:"
)

type redisPendingClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

type redisPendingStore struct {
	client redisPendingClient
	ttl    time.Duration
}

// NewRedisPendingStore crea un PendingStore sobre Redis; la expiración corre
// por cuenta del TTL de cada clave.
func NewRedisPendingStore(client *redis.Client, ttl time.Duration) PendingStore {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = PendingTTL
	}
	return &redisPendingStore{client: client, ttl: ttl}
}

func (s *redisPendingStore) PutRegistration(ctx context.Context, email string, reg PendingRegistration) error {
	return s.put(ctx, regKeyPrefix+email, reg)
}

func (s *redisPendingStore) GetRegistration(ctx context.Context, email string) (PendingRegistration, bool, error) {
	var reg PendingRegistration
	ok, err := s.get(ctx, regKeyPrefix+email, &reg)
	return reg, ok, err
}

func (s *redisPendingStore) ConsumeRegistration(ctx context.Context, email string) (PendingRegistration, bool, error) {
	var reg PendingRegistration
	ok, err := s.consume(ctx, regKeyPrefix+email, &reg)
	return reg, ok, err
}

func (s *redisPendingStore) PutReset(ctx context.Context, email string, reset PendingReset) error {
	return s.put(ctx, resetKeyPrefix+email, reset)
}

func (s *redisPendingStore) GetReset(ctx context.Context, email string) (PendingReset, bool, error) {
	var reset PendingReset
	ok, err := s.get(ctx, resetKeyPrefix+email, &reset)
	return reset, ok, err
}

func (s *redisPendingStore) ConsumeReset(ctx context.Context, email string) (PendingReset, bool, error) {
	var reset PendingReset
	ok, err := s.consume(ctx, resetKeyPrefix+email, &reset)
	return reset, ok, err
}

func (s *redisPendingStore) put(ctx context.Context, key string, value any) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("pending store: empty key")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, s.ttl).Err()
}

func (s *redisPendingStore) get(ctx context.Context, key string, out any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, out)
}

// consume usa GETDEL: ante lecturas concurrentes solo un caller recibe el
// valor, lo que garantiza creación de cuenta at-most-once por registro.
func (s *redisPendingStore) consume(ctx context.Context, key string, out any) (bool, error) {
	data, err := s.client.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, out)
}

type memoryPendingEntry struct {
	data      []byte
	expiresAt time.Time
}

type memoryPendingStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]memoryPendingEntry
}

// NewMemoryPendingStore crea un PendingStore en memoria, útil en tests y en
// despliegues sin Redis.
func NewMemoryPendingStore(ttl time.Duration) PendingStore {
	if ttl <= 0 {
		ttl = PendingTTL
	}
	return &memoryPendingStore{
		ttl:   ttl,
		items: make(map[string]memoryPendingEntry),
	}
}

func (s *memoryPendingStore) PutRegistration(_ context.Context, email string, reg PendingRegistration) error {
	return s.put(regKeyPrefix+email, reg)
}

func (s *memoryPendingStore) GetRegistration(_ context.Context, email string) (PendingRegistration, bool, error) {
	var reg PendingRegistration
	ok, err := s.get(regKeyPrefix+email, &reg, false)
	return reg, ok, err
}

func (s *memoryPendingStore) ConsumeRegistration(_ context.Context, email string) (PendingRegistration, bool, error) {
	var reg PendingRegistration
	ok, err := s.get(regKeyPrefix+email, &reg, true)
	return reg, ok, err
}

func (s *memoryPendingStore) PutReset(_ context.Context, email string, reset PendingReset) error {
	return s.put(resetKeyPrefix+email, reset)
}

func (s *memoryPendingStore) GetReset(_ context.Context, email string) (PendingReset, bool, error) {
	var reset PendingReset
	ok, err := s.get(resetKeyPrefix+email, &reset, false)
	return reset, ok, err
}

func (s *memoryPendingStore) ConsumeReset(_ context.Context, email string) (PendingReset, bool, error) {
	var reset PendingReset
	ok, err := s.get(resetKeyPrefix+email, &reset, true)
	return reset, ok, err
}

func (s *memoryPendingStore) put(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = memoryPendingEntry{
		data:      data,
		expiresAt: time.Now().UTC().Add(s.ttl),
	}
	return nil
}

func (s *memoryPendingStore) get(key string, out any, consume bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[key]
	if !ok {
		return false, nil
	}
	if time.Now().UTC().After(entry.expiresAt) {
		delete(s.items, key)
		return false, nil
	}
	if consume {
		delete(s.items, key)
	}
	return true, json.Unmarshal(entry.data, out)
}
