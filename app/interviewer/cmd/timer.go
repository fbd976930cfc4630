package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Soln1shko/AI-HR/internal/cache"
	"github.com/Soln1shko/AI-HR/internal/models"
	"github.com/Soln1shko/AI-HR/internal/timer"
)

var timerClear bool

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Show (or --clear) the persisted answer countdown",
	RunE:  runTimer,
}

func init() {
	timerCmd.Flags().BoolVar(&timerClear, "clear", false, "delete the persisted countdown")
}

type timerView struct {
	models.TimerState
	Active    bool      `json:"active"`
	Remaining int       `json:"remaining"`
	StartedAt time.Time `json:"started_at"`
}

func runTimer(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.RedisURL == "" {
		return errors.New("timer: the countdown is only persisted in redis; set REDIS_ADDR")
	}

	rt, err := openStores(cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	store := cache.NewRedisCache(rt.redis, cachePrefix)

	if timerClear {
		if err := store.Del(ctx, timer.StorageKey); err != nil {
			return fmt.Errorf("timer: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "countdown cleared")
		return nil
	}

	// restoring drops an expired record, the same as a fresh interview would
	tm := timer.New(store, timer.WithTickInterval(0), timer.WithLogger(log))
	if _, _, err := tm.Restore(ctx); err != nil {
		return fmt.Errorf("timer: %w", err)
	}
	st, ok := tm.State()
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "no countdown")
		return nil
	}
	if !tm.QuestionSpoken() {
		log.Warn("countdown record was saved before its question was spoken")
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(timerView{
		TimerState: st,
		Active:     tm.Active(),
		Remaining:  tm.Remaining(),
		StartedAt:  time.UnixMilli(st.StartTime).UTC(),
	})
}
