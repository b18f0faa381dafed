package waitlist

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"teed-waitlist/internal/common/logger"
)

var ErrProfileNotFound = stderrors.New("profile not found")

// profileFields are the columns counted towards profile completion.
var profileFields = []string{"display_name", "avatar_url", "bio", "location", "handicap"}

// Enricher reads profile and equipment signals from Postgres behind a Redis
// cache-aside layer. Redis failures fall through to the database.
type Enricher struct {
	db     *sql.DB
	redis  redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewEnricher(db *sql.DB, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *Enricher {
	return &Enricher{db: db, redis: rdb, ttl: ttl, logger: log}
}

func (e *Enricher) Profile(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	if e.cached(ctx, "waitlist:profile:"+userID, &p) {
		return &p, nil
	}

	row := e.db.QueryRowContext(ctx, `
		SELECT display_name, avatar_url, bio, location, handicap
		FROM profiles WHERE id = $1`, userID)

	values := make([]sql.NullString, len(profileFields))
	dest := make([]interface{}, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := row.Scan(dest...); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}

	filled := 0
	for _, v := range values {
		if v.Valid && v.String != "" {
			filled++
		}
	}
	p = Profile{
		UserID:            userID,
		CompletionPercent: float64(filled) / float64(len(profileFields)) * 100,
		HasLocation:       values[3].Valid && values[3].String != "",
	}

	e.store(ctx, "waitlist:profile:"+userID, p)
	return &p, nil
}

func (e *Enricher) Equipment(ctx context.Context, userID string) (*Equipment, error) {
	var eq Equipment
	if e.cached(ctx, "waitlist:equipment:"+userID, &eq) {
		return &eq, nil
	}

	row := e.db.QueryRowContext(ctx, `
		SELECT COUNT(be.id), COALESCE(BOOL_OR(be.custom_photo_url IS NOT NULL), FALSE)
		FROM user_bags ub
		JOIN bag_equipment be ON be.bag_id = ub.id
		WHERE ub.user_id = $1`, userID)

	eq.UserID = userID
	if err := row.Scan(&eq.ItemCount, &eq.HasPhoto); err != nil {
		return nil, fmt.Errorf("query equipment: %w", err)
	}

	e.store(ctx, "waitlist:equipment:"+userID, eq)
	return &eq, nil
}

func (e *Enricher) cached(ctx context.Context, key string, dest interface{}) bool {
	if e.redis == nil {
		return false
	}
	val, err := e.redis.Get(ctx, key).Result()
	if err != nil {
		if !stderrors.Is(err, redis.Nil) {
			e.logger.Warn("enrichment cache read failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		return false
	}
	return json.Unmarshal([]byte(val), dest) == nil
}

func (e *Enricher) store(ctx context.Context, key string, v interface{}) {
	if e.redis == nil {
		return
	}
	data, _ := json.Marshal(v)
	if err := e.redis.Set(ctx, key, data, e.ttl).Err(); err != nil {
		e.logger.Warn("enrichment cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}
