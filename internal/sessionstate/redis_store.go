package sessionstate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"vncsentinel/pkg/models"
)

// RedisConfig configures Redis access for session-state persistence.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// SessionState stores compact per-session counters the dashboard reads:
// latest classification plus flagged-window bookkeeping.
type SessionState struct {
	SessionID      string    `json:"session_id"`
	LastRiskLevel  string    `json:"last_risk_level"`
	LastAction     string    `json:"last_action"`
	Detections     int64     `json:"detections"`
	FlaggedWindows int64     `json:"flagged_windows"`
	FirstFlaggedTS time.Time `json:"first_flagged_ts,omitempty"`
	LastFlaggedTS  time.Time `json:"last_flagged_ts,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// RedisStore manages writer/reader operations over session-state keys.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a Redis-backed session-state store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "vncsentinel:session_state"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis session-state: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

// WriteRecords updates session-state from a batch of detection records.
func (s *RedisStore) WriteRecords(records []*models.DetectionRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx := context.Background()
	pipe := s.client.Pipeline()

	for _, record := range records {
		if record == nil || strings.TrimSpace(record.SessionID) == "" {
			continue
		}
		session := strings.TrimSpace(record.SessionID)
		nowUnix := time.Now().Unix()
		observed := record.ObservedAt
		if observed.IsZero() {
			observed = time.Unix(nowUnix, 0)
		}

		stateKey := s.sessionKey(session)
		pipe.HSet(ctx, stateKey,
			"session_id", session,
			"last_risk_level", string(record.Result.RiskLevel),
			"last_action", string(record.Result.RecommendedAction),
			"updated_at", strconv.FormatInt(nowUnix, 10),
		)
		pipe.HIncrBy(ctx, stateKey, "detections", 1)

		if record.Result.RiskLevel == models.RiskNone {
			continue
		}
		pipe.HIncrBy(ctx, stateKey, "flagged_windows", 1)

		ts := float64(observed.Unix())
		pipe.ZAddArgs(ctx, s.firstSetKey(), redis.ZAddArgs{LT: true, Members: []redis.Z{{Score: ts, Member: session}}})
		pipe.ZAddArgs(ctx, s.lastSetKey(), redis.ZAddArgs{GT: true, Members: []redis.Z{{Score: ts, Member: session}}})
		pipe.ZAdd(ctx, s.dirtySetKey(), redis.Z{Score: float64(nowUnix), Member: session})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update session-state redis keys: %w", err)
	}
	return nil
}

// FetchDirtySince returns session states flagged since the given time.
func (s *RedisStore) FetchDirtySince(since time.Time, limit int64) ([]SessionState, error) {
	if limit <= 0 {
		limit = 1000
	}
	ctx := context.Background()
	members, err := s.client.ZRangeByScoreWithScores(ctx, s.dirtySetKey(), &redis.ZRangeBy{
		Min:    fmt.Sprintf("%d", since.Unix()),
		Max:    "+inf",
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read dirty session-state members: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	states := make([]SessionState, 0, len(members))
	for _, z := range members {
		session, ok := z.Member.(string)
		if !ok || session == "" {
			continue
		}

		hash, err := s.client.HGetAll(ctx, s.sessionKey(session)).Result()
		if err != nil || len(hash) == 0 {
			continue
		}

		detections, _ := strconv.ParseInt(hash["detections"], 10, 64)
		flagged, _ := strconv.ParseInt(hash["flagged_windows"], 10, 64)
		updatedUnix, _ := strconv.ParseInt(hash["updated_at"], 10, 64)
		first, _ := s.client.ZScore(ctx, s.firstSetKey(), session).Result()
		last, _ := s.client.ZScore(ctx, s.lastSetKey(), session).Result()

		st := SessionState{
			SessionID:      session,
			LastRiskLevel:  hash["last_risk_level"],
			LastAction:     hash["last_action"],
			Detections:     detections,
			FlaggedWindows: flagged,
		}
		if updatedUnix > 0 {
			st.UpdatedAt = time.Unix(updatedUnix, 0).UTC()
		}
		if first > 0 {
			st.FirstFlaggedTS = time.Unix(int64(first), 0).UTC()
		}
		if last > 0 {
			st.LastFlaggedTS = time.Unix(int64(last), 0).UTC()
		}
		states = append(states, st)
	}

	return states, nil
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) sessionKey(session string) string {
	return s.prefix + ":session:" + session
}

func (s *RedisStore) firstSetKey() string {
	return s.prefix + ":first_flagged"
}

func (s *RedisStore) lastSetKey() string {
	return s.prefix + ":last_flagged"
}

func (s *RedisStore) dirtySetKey() string {
	return s.prefix + ":dirty"
}
