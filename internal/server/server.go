package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/supaquiz/server/internal/api"
	"github.com/supaquiz/server/internal/event"
	"github.com/supaquiz/server/internal/leaderboard"
	"github.com/supaquiz/server/internal/memory"
	"github.com/supaquiz/server/internal/play"
	"github.com/supaquiz/server/internal/postgres"
	"github.com/supaquiz/server/internal/quiz"
	"github.com/supaquiz/server/internal/recommend"
	"github.com/supaquiz/server/internal/reconcile"
	"github.com/supaquiz/server/internal/room"
	"github.com/supaquiz/server/internal/telemetry"
	"github.com/supaquiz/server/internal/user"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Game struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	// Postgres is optional. With an empty Addr the server falls back to
	// in-memory stores, which is how local development and tests run.
	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	AI struct {
		BaseURL         string
		Secret          string
		TimeoutSeconds  int
		Retries         int
		CacheTTLSeconds int
	}

	Room struct {
		SweepIntervalSeconds int
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			game   redis.UniversalClient
			pubsub redis.UniversalClient
		}

		postgres *pgxpool.Pool
	}

	store struct {
		users    reconcileUserStore
		sessions play.SessionStore
		quizzes  quiz.Store
		summer   reconcile.SessionSummer
	}

	service struct {
		user        *user.Service
		quiz        *quiz.Service
		play        *play.Service
		reconcile   *reconcile.Service
		room        *room.Service
		leaderboard *leaderboard.Service
		recommend   *recommend.Client
	}

	scheduler *room.Scheduler
	stopSweep context.CancelFunc

	http *http.Server
}

// reconcileUserStore is the union of what the user service and the
// reconciler need from the users table.
type reconcileUserStore interface {
	user.Store
	reconcile.UserStore
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initStore()
	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.game, err = connect(s.c.Redis.Game.Addrs, s.c.Redis.Game.Pass)
	if err != nil {
		return fmt.Errorf("game: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() error {
	if s.c.Postgres.Addr == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s",
		s.c.Postgres.User, s.c.Postgres.Pass, s.c.Postgres.Addr, s.c.Postgres.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	s.infra.postgres = db
	return nil
}

func (s *Server) initStore() {
	if s.infra.postgres != nil {
		s.store.users = postgres.NewUserStore(s.infra.postgres)
		sessions := postgres.NewSessionStore(s.infra.postgres)
		s.store.sessions = sessions
		s.store.summer = sessions
		s.store.quizzes = postgres.NewQuizStore(s.infra.postgres)
		return
	}

	slog.Info("server: no postgres address configured, using in-memory stores")

	s.store.users = memory.NewUserStore()
	sessions := memory.NewSessionStore()
	s.store.sessions = sessions
	s.store.summer = sessions
	s.store.quizzes = memory.NewQuizStore()
}

func (s *Server) initService() {
	s.service.user = user.NewService(user.Config{
		Store: s.store.users,
	})

	s.service.quiz = quiz.NewService(quiz.Config{
		Store: s.store.quizzes,
	})

	s.service.reconcile = reconcile.NewService(reconcile.Config{
		EventBus: s.eb,
		Users:    s.store.users,
		Sessions: s.store.summer,
	})

	aiTimeout := time.Duration(s.c.AI.TimeoutSeconds) * time.Second
	cacheTTL := time.Duration(s.c.AI.CacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	s.service.recommend = recommend.NewClient(recommend.Config{
		BaseURL:      s.c.AI.BaseURL,
		SharedSecret: s.c.AI.Secret,
		Timeout:      aiTimeout,
		Retries:      s.c.AI.Retries,
		Cache:        recommend.NewCache(s.infra.redis.game, s.c.Redis.Game.Prefix, cacheTTL),
	})

	s.service.play = play.NewService(play.Config{
		Store:      s.store.sessions,
		Reconciler: s.service.reconcile,
		Prewarmer:  s.service.recommend,
	})

	s.service.room = room.NewService(room.Config{
		EventBus:  s.eb,
		Redis:     s.infra.redis.game,
		Prefix:    s.c.Redis.Game.Prefix,
		Questions: s.store.quizzes,
		Opener:    s.service.play,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.game,
		Prefix:   s.c.Redis.Game.Prefix,
	})

	sweep := time.Duration(s.c.Room.SweepIntervalSeconds) * time.Second
	s.scheduler = room.NewScheduler(s.service.room, sweep)
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.GinLogger())

	api.New(api.Config{
		Engine:       e,
		EventBus:     s.eb,
		User:         s.service.user,
		Quiz:         s.service.quiz,
		Play:         s.service.play,
		Reconcile:    s.service.reconcile,
		Room:         s.service.room,
		Leaderboard:  s.service.leaderboard,
		Recommend:    s.service.recommend,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopSweep = cancel

	var eg errgroup.Group
	eg.Go(func() error {
		s.scheduler.Run(ctx)
		return nil
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.stopSweep != nil {
		s.stopSweep()
	}

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	slog.InfoContext(ctx, "server: shutdown completed")
}
