package result

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"noisemap/internal/config"
	"noisemap/internal/model"
	"noisemap/internal/noisemap"
	pg "noisemap/internal/postgres"
	redis_client "noisemap/internal/redis"
	"noisemap/internal/service/storage"
	"noisemap/internal/util"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LevelsRedisKey prefixes the Redis hash holding the levels of one run
const LevelsRedisKey = "levels"

var (
	// ErrNotFound is returned for unknown runs and receivers
	ErrNotFound = errors.New("not found")
	// ErrRunActive is returned when a run that is still evaluating is deleted
	ErrRunActive = errors.New("run still active")
)

// levelKey identifies the level of one receiver in one run
type levelKey struct {
	RunID      string
	ReceiverID int64
}

// storedLevel is a finalized level with the completeness of its run
type storedLevel struct {
	noisemap.Level
	Complete bool `json:"complete"`
}

// ResultService keeps run states and finalized levels in memory and persists
// the levels to Redis and PostgreSQL
type ResultService struct {
	runs   storage.Storage[string, *Run]
	levels storage.Storage[levelKey, *storedLevel]

	db    *gorm.DB
	redis *redis.Client
}

var (
	resultServiceInstance *ResultService
	resultServiceOnce     sync.Once
)

// GetResultService returns the singleton bound to the global database and Redis clients
func GetResultService() *ResultService {
	resultServiceOnce.Do(func() {
		resultServiceInstance = NewResultService(pg.GetDB(), redis_client.GetClient())
	})
	return resultServiceInstance
}

// NewResultService creates a service. Nil clients disable the matching persistence.
func NewResultService(db *gorm.DB, client *redis.Client) *ResultService {
	return &ResultService{
		runs:   storage.NewMemoryStorage[string, *Run](),
		levels: storage.NewShardedMemoryStorage[levelKey, *storedLevel](16, nil),
		db:     db,
		redis:  client,
	}
}

// StartRun registers a new run
func (s *ResultService) StartRun() *Run {
	run := &Run{ID: util.ShortUUID(), StartedAt: time.Now()}
	s.runs.Set(run.ID, run)
	return run
}

// GetRun returns a run by ID
func (s *ResultService) GetRun(id string) (*Run, bool) {
	return s.runs.Get(id)
}

// Runs returns the status of every run, oldest first
func (s *ResultService) Runs() []RunStatus {
	var out []RunStatus
	s.runs.ForEach(func(_ string, r *Run) bool {
		out = append(out, r.Status())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// CancelRun asks a running evaluation to stop
func (s *ResultService) CancelRun(id string) error {
	run, ok := s.runs.Get(id)
	if !ok {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	run.Cancel()
	return nil
}

// Finish stores the levels of an evaluation and closes its run
func (s *ResultService) Finish(res *noisemap.RunResult) {
	run, ok := s.runs.Get(res.RunID)
	if !ok {
		run = &Run{ID: res.RunID, StartedAt: time.Now().Add(-res.Duration)}
		s.runs.Set(run.ID, run)
	}
	for _, l := range res.Levels {
		s.levels.Set(levelKey{RunID: res.RunID, ReceiverID: l.ReceiverID}, &storedLevel{Level: l, Complete: res.Complete})
	}
	run.Progress(res.CellsDone, res.CellsTotal)
	run.finish(res.Complete)
	log.Printf("Stored %d levels of run %s", len(res.Levels), res.RunID)
}

// GetLevel returns the level of one receiver, from memory or else from Redis
func (s *ResultService) GetLevel(ctx context.Context, runID string, receiverID int64) (noisemap.Level, error) {
	if l, ok := s.levels.Get(levelKey{RunID: runID, ReceiverID: receiverID}); ok {
		return l.Level, nil
	}
	if s.redis == nil {
		return noisemap.Level{}, fmt.Errorf("receiver %d of run %s: %w", receiverID, runID, ErrNotFound)
	}

	data, err := s.redis.HGet(ctx, redisKey(runID), strconv.FormatInt(receiverID, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return noisemap.Level{}, fmt.Errorf("receiver %d of run %s: %w", receiverID, runID, ErrNotFound)
	}
	if err != nil {
		return noisemap.Level{}, err
	}
	var l storedLevel
	if err := json.Unmarshal([]byte(data), &l); err != nil {
		return noisemap.Level{}, fmt.Errorf("invalid level in Redis: %w", err)
	}
	return l.Level, nil
}

// Levels returns the levels of a run held in memory, ordered by receiver ID
func (s *ResultService) Levels(runID string) []noisemap.Level {
	var out []noisemap.Level
	s.levels.ForEach(func(k levelKey, l *storedLevel) bool {
		if k.RunID == runID {
			out = append(out, l.Level)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ReceiverID < out[j].ReceiverID })
	return out
}

func redisKey(runID string) string {
	return fmt.Sprintf("%s:%s", LevelsRedisKey, runID)
}

// StartPersistenceWorkers periodically flushes levels until ctx is done
func (s *ResultService) StartPersistenceWorkers(ctx context.Context) {
	if s.redis != nil {
		redisTimer := time.NewTicker(config.RedisFlushInterval)
		go func() {
			defer redisTimer.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-redisTimer.C:
					if err := s.SaveDirtyLevelsToRedis(ctx); err != nil {
						log.Printf("ERROR: saving levels to Redis: %v", err)
					}
				}
			}
		}()
	}

	if s.db != nil {
		pgTimer := time.NewTicker(config.PostgresFlushInterval)
		go func() {
			defer pgTimer.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-pgTimer.C:
					if err := s.SaveAllLevelsToPG(ctx); err != nil {
						log.Printf("ERROR: saving levels to PostgreSQL: %v", err)
					}
				}
			}
		}()
	}
}

// SaveDirtyLevelsToRedis writes the levels stored since the last flush, one hash per run
func (s *ResultService) SaveDirtyLevelsToRedis(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	dirty := s.levels.GetDirty()
	if len(dirty) == 0 {
		return nil
	}

	pipe := s.redis.Pipeline()
	keys := make([]levelKey, 0, len(dirty))
	for key, l := range dirty {
		data, err := json.Marshal(l)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, redisKey(key.RunID), strconv.FormatInt(key.ReceiverID, 10), data)
		keys = append(keys, key)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	// Clear flags only after successful save
	s.levels.ClearDirty(keys)

	log.Printf("Saved %d levels to Redis", len(keys))
	return nil
}

// levelToPG converts a stored level to its table row
func levelToPG(k levelKey, l *storedLevel) *model.ReceiverLevelPG {
	return &model.ReceiverLevelPG{
		RunID:      k.RunID,
		ReceiverID: k.ReceiverID,
		Levels:     l.Levels,
		Global:     l.Global,
		Complete:   l.Complete,
		UpdatedAt:  time.Now(),
	}
}

// SaveAllLevelsToPG upserts every level held in memory in batches
func (s *ResultService) SaveAllLevelsToPG(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	all := s.levels.GetAll()
	if len(all) == 0 {
		return nil
	}

	rows := make([]*model.ReceiverLevelPG, 0, len(all))
	for k, l := range all {
		rows = append(rows, levelToPG(k, l))
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].RunID != rows[j].RunID {
			return rows[i].RunID < rows[j].RunID
		}
		return rows[i].ReceiverID < rows[j].ReceiverID
	})

	batchSize := 1000
	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))
		batch := rows[i:end]

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&batch).Error
		})
		if err != nil {
			return err
		}

		log.Printf("Saved batch of %d levels to PostgreSQL (%d/%d)", len(batch), end, len(rows))
	}
	return nil
}

// DeleteRun drops a finished run and its levels from memory and Redis
func (s *ResultService) DeleteRun(ctx context.Context, id string) error {
	run, ok := s.runs.Get(id)
	if !ok {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if !run.Status().Finished {
		return fmt.Errorf("run %s: %w", id, ErrRunActive)
	}
	s.runs.Delete(id)
	s.levels.ForEach(func(k levelKey, _ *storedLevel) bool {
		if k.RunID == id {
			s.levels.Delete(k)
		}
		return true
	})
	if s.redis != nil {
		return s.redis.Del(ctx, redisKey(id)).Err()
	}
	return nil
}
