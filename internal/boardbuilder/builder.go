package boardbuilder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/chess-insights-board/internal/chess/uci"
	"github.com/park285/chess-insights-board/internal/config"
	"github.com/park285/chess-insights-board/internal/insights"
	"github.com/park285/chess-insights-board/internal/msgcat"
	"github.com/park285/chess-insights-board/internal/service/board"
	"github.com/park285/chess-insights-board/internal/web"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisDialTimeout = 5 * time.Second

// Deps is the wired application. Close releases everything New opened.
type Deps struct {
	Hub    *board.Hub
	Server *web.Server
	Pool   *uci.Pool
	Redis  *redis.Client
	DB     *sql.DB
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (deps *Deps, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	deps = &Deps{}
	defer func() {
		if err != nil {
			_ = deps.Close()
			deps = nil
		}
	}()

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	// Engine pool (optional: boards work without analysis)
	var engines board.EngineProvider
	if strings.TrimSpace(cfg.StockfishPath) != "" {
		deps.Pool, err = uci.NewPool(uci.PoolConfig{
			BinaryPath: cfg.StockfishPath,
			Options: uci.Options{
				Threads:    cfg.EngineThreads,
				HashMB:     cfg.EngineHashMB,
				SkillLevel: cfg.EngineSkillLevel,
			},
			Capacity: cfg.EnginePoolCapacity,
			Logger:   logger.Named("uci"),
		})
		if err != nil {
			return nil, fmt.Errorf("init engine pool: %w", err)
		}
		engines = board.PoolEngines(deps.Pool)
	} else {
		logger.Warn("STOCKFISH_PATH not set, boards run without engine analysis")
	}

	deps.Hub = board.NewHub(board.HubConfig{
		Engines:     engines,
		Scheduler:   board.WallClock(),
		Messages:    msgs,
		Logger:      logger.Named("board"),
		IdleTTL:     cfg.SessionIdleTTL,
		MaxSessions: cfg.MaxSessions,
	})

	// Archive repository (Postgres optional)
	repo := board.NewMemoryRepository()
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		deps.DB, err = board.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		repo = board.NewRepository(deps.DB)
	}
	archiver := board.NewArchiver(repo, logger.Named("archive"))

	// Insights client with Redis cache in front (optional)
	var fetcher insights.Fetcher = insights.NewClient(cfg.InsightsBaseURL,
		insights.WithTimeout(cfg.InsightsTimeout),
		insights.WithLogger(logger.Named("insights")))
	if strings.TrimSpace(cfg.RedisURL) != "" && cfg.InsightsCacheTTL > 0 {
		opts, perr := parseRedisURL(cfg.RedisURL)
		if perr != nil {
			return nil, fmt.Errorf("parse redis url: %w", perr)
		}
		deps.Redis = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		perr = deps.Redis.Ping(pingCtx).Err()
		cancel()
		if perr != nil {
			// the cache is best effort; the fetcher logs its failures
			logger.Warn("redis unreachable, insights cache degraded", zap.Error(perr))
		}
		fetcher = insights.NewCachedFetcher(fetcher, insights.NewCache(deps.Redis, cfg.InsightsCacheTTL), logger.Named("insights"))
	}

	deps.Server = web.NewServer(web.Deps{
		Hub:      deps.Hub,
		Archiver: archiver,
		Insights: fetcher,
		Messages: msgs,
		Logger:   logger.Named("http"),
	})
	return deps, nil
}

// Close shuts down boards first so their engines return to the pool before it closes.
func (d *Deps) Close() error {
	var errs []error
	if d.Hub != nil {
		errs = append(errs, d.Hub.Close())
	}
	if d.Pool != nil {
		errs = append(errs, d.Pool.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.DB != nil {
		errs = append(errs, d.DB.Close())
	}
	return errors.Join(errs...)
}

// parseRedisURL accepts redis:// and rediss:// URLs; rediss enables TLS.
func parseRedisURL(raw string) (*redis.Options, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = redisDialTimeout
	}
	return opts, nil
}
