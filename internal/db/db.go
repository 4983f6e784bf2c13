package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"unkit-api/internal/config"
)

// NewPool construye el pool de conexiones. Los tamaños vienen de la
// configuración; el resto son cotas fijas para que una conexión colgada no
// sobreviva indefinidamente.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	poolCfg.MaxConns = int32(cfg.DBMaxConns)
	if poolCfg.MaxConns < 1 {
		poolCfg.MaxConns = 1
	}
	poolCfg.MinConns = int32(cfg.DBMinConns)
	if poolCfg.MinConns < 0 || poolCfg.MinConns > poolCfg.MaxConns {
		poolCfg.MinConns = 0
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 10 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "unkit-api"

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// Ping verifica conectividad con la base de datos.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	return pool.Ping(ctx)
}
