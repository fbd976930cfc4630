package cmd

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"github.com/Soln1shko/AI-HR/config"
	"github.com/Soln1shko/AI-HR/internal/backend"
	"github.com/Soln1shko/AI-HR/internal/cache"
	"github.com/Soln1shko/AI-HR/internal/capture"
	"github.com/Soln1shko/AI-HR/internal/interview"
	"github.com/Soln1shko/AI-HR/internal/logger"
	"github.com/Soln1shko/AI-HR/internal/providers/reconnect"
	"github.com/Soln1shko/AI-HR/internal/providers/stt"
	"github.com/Soln1shko/AI-HR/internal/providers/transcription"
	"github.com/Soln1shko/AI-HR/internal/providers/tts"
	mongorepo "github.com/Soln1shko/AI-HR/internal/repositories/mongo"
	pgrepo "github.com/Soln1shko/AI-HR/internal/repositories/postgres"
	"github.com/Soln1shko/AI-HR/internal/services"
	"github.com/Soln1shko/AI-HR/internal/storage"
	"github.com/Soln1shko/AI-HR/internal/timer"
	"github.com/Soln1shko/AI-HR/internal/workers"
)

const cachePrefix = "aihr:"

// runtime holds the wired process: stores, providers and the orchestrator.
type runtime struct {
	cfg *config.Config
	log *logrus.Logger

	redis *redis.Client
	mongo *mongo.Client
	pg    *gorm.DB

	api      *backend.Client
	sessions services.SessionService
	answers  services.AnswerService
	events   *interview.Broadcaster
	timer    *timer.Timer
	voice    *transcription.Channel
	speech   *tts.Client

	interview *interview.Orchestrator

	closers []func()
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	return cfg, logger.New(cfg.LogLevel), nil
}

// openStores connects every configured store. Unset stores stay nil; a
// configured store that cannot be reached is an error.
func openStores(cfg *config.Config, log *logrus.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, log: log}

	if cfg.RedisURL != "" {
		rdb, err := config.InitRedis(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		rt.redis = rdb
		rt.onClose(func() { _ = rdb.Close() })
		log.Info("redis connected")
	}

	if cfg.MongoURI != "" {
		mc, err := config.InitMongo(cfg.MongoURI)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("mongo: %w", err)
		}
		rt.mongo = mc
		rt.onClose(func() { _ = mc.Disconnect(context.Background()) })
		log.WithField("db", cfg.MongoDB).Info("mongo connected")
	}

	if cfg.PostgresURI != "" {
		db, err := config.InitPostgres(cfg.PostgresURI)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		rt.pg = db
		rt.onClose(func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
		log.Info("postgres connected")
	}
	return rt, nil
}

func (rt *runtime) onClose(fn func()) {
	rt.closers = append(rt.closers, fn)
}

// Close releases everything in reverse order of acquisition.
func (rt *runtime) Close() {
	if rt.interview != nil {
		rt.interview.Close()
	}
	if rt.voice != nil {
		rt.voice.Disconnect()
	}
	if rt.speech != nil {
		rt.speech.Disconnect()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// buildInterview wires the orchestrator and its collaborators. player may be
// nil to play questions through ffplay.
func (rt *runtime) buildInterview(ctx context.Context, player tts.Player) error {
	cfg, log := rt.cfg, rt.log

	journal, err := rt.buildJournal(ctx)
	if err != nil {
		return err
	}

	rt.api = backend.NewClient(cfg.APIBaseURL, cfg.APIToken, backend.WithLogger(log))

	var videos storage.VideoUploader = storage.NewBackendUploader(rt.api)
	if cfg.VideoBucket != "" {
		gcs, err := storage.NewGCSUploader(ctx, cfg.VideoBucket)
		if err != nil {
			return fmt.Errorf("gcs: %w", err)
		}
		rt.onClose(func() { _ = gcs.Close() })
		videos = storage.NewArchivingUploader(videos, gcs, "answers/", log)
		log.WithField("bucket", cfg.VideoBucket).Info("video archive enabled")
	}

	var fallback stt.Provider
	if cfg.STTFallback == "google" {
		gs, err := stt.NewGoogleSpeech(ctx)
		if err != nil {
			return fmt.Errorf("speech: %w", err)
		}
		rt.onClose(func() { _ = gs.Close() })
		fallback = gs
		log.Info("google speech fallback enabled")
	}

	policy := reconnect.Policy{Interval: cfg.ReconnectInterval, MaxAttempts: cfg.ReconnectMaxAttempts}
	rt.voice = transcription.New(cfg.VoiceWSURL, transcription.WithPolicy(policy), transcription.WithLogger(log))
	rt.speech = tts.NewClient(cfg.TTSWSURL, tts.WithPolicy(policy), tts.WithLogger(log))
	if player == nil {
		player = tts.NewFFplayPlayer(cfg.FFplayBin, log)
	}

	if err := capture.CheckInstallation(ctx, cfg.FFmpegBin); err != nil {
		log.WithError(err).Warn("ffmpeg not found; camera and microphone will be unavailable")
	}
	camera := capture.NewController(
		capture.NewFFmpegDevice(cfg.FFmpegBin, cfg.FFmpegInputFormat, cfg.CameraDevice, log),
		capture.PreferredVideo,
		capture.WithLogger(log),
	)
	mic := capture.NewController(
		capture.NewFFmpegDevice(cfg.FFmpegBin, cfg.MicInputFormat, cfg.MicDevice, log),
		capture.PreferredAudio,
		capture.WithLogger(log),
	)

	rt.timer = rt.newTimer()

	rt.events = interview.NewBroadcaster(log)
	publishers := interview.MultiPublisher{rt.events}
	if rt.redis != nil {
		publishers = append(publishers, interview.NewRedisPublisher(rt.redis))
	}

	rt.interview = interview.New(interview.Deps{
		API:         rt.api,
		Videos:      videos,
		Transcriber: rt.voice,
		Synthesizer: rt.speech,
		Player:      player,
		Camera:      camera,
		Microphone:  mic,
		Timer:       rt.timer,
		Journal:     journal,
		Events:      publishers,
		Fallback:    fallback,
		Log:         log,
	}, interview.Settings{
		Voice:              cfg.TTSSpeaker,
		SampleRate:         cfg.TTSSampleRate,
		DefaultOptimalTime: cfg.DefaultOptimalTime,
		Language:           cfg.STTLanguage,
	})
	return nil
}

// newTimer persists the countdown in redis when available, so a restarted
// runner resumes it; otherwise the record lives in memory.
func (rt *runtime) newTimer() *timer.Timer {
	var store cache.Cache = cache.NewMemoryCache()
	if rt.redis != nil {
		store = cache.NewRedisCache(rt.redis, cachePrefix)
	}
	return timer.New(store, timer.WithLogger(rt.log))
}

func (rt *runtime) buildJournal(ctx context.Context) (services.JournalService, error) {
	var buffers services.BufferService
	if rt.mongo != nil {
		db := rt.mongo.Database(rt.cfg.MongoDB)
		rt.sessions = services.NewSessionService(mongorepo.NewSessionRepo(db))
		buffers = services.NewBufferService(mongorepo.NewBufferRepo(db), 0)

		if rt.redis != nil {
			pool := &workers.JournalWorkerPool{Redis: rt.redis, Buffers: buffers, Logger: rt.log}
			if err := pool.Start(ctx); err != nil {
				return nil, fmt.Errorf("journal worker: %w", err)
			}
			buffers = workers.NewQueuedBuffer(rt.redis, workers.DefaultStream, buffers)
		}
	}
	if rt.pg != nil {
		rt.answers = services.NewAnswerService(pgrepo.NewAnswerRepo(rt.pg))
	}
	if rt.sessions == nil && buffers == nil && rt.answers == nil {
		return services.NopJournal{}, nil
	}
	return services.NewJournalService(rt.sessions, buffers, rt.answers, rt.log), nil
}
