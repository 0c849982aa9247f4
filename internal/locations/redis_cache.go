package locations

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/medride/internal/models"
)

// RedisCache keeps the most recent vehicle location and ETA per booking in
// a redis hash. Writes are guarded by the update's sequence number so a
// replayed or raced sample never overwrites a newer one.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string) *RedisCache {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisCache{client: c}
}

func lastKey(bookingID string) string { return "booking:last:" + bookingID }

func (r *RedisCache) SetLast(ctx context.Context, upd models.LocationUpdate) error {
	key := lastKey(upd.BookingID)
	if cur, err := r.client.HGet(ctx, key, "seq").Result(); err == nil {
		if seq, perr := strconv.ParseUint(cur, 10, 64); perr == nil && seq >= upd.Seq {
			return nil
		}
	}
	vals := map[string]interface{}{
		"lat":     strconv.FormatFloat(upd.Location.Lat, 'f', -1, 64),
		"lng":     strconv.FormatFloat(upd.Location.Lng, 'f', -1, 64),
		"seq":     strconv.FormatUint(upd.Seq, 10),
		"updated": time.Now().Format(time.RFC3339),
	}
	if upd.ETA != nil {
		vals["eta"] = strconv.Itoa(*upd.ETA)
	} else {
		vals["eta"] = ""
	}
	return r.client.HSet(ctx, key, vals).Err()
}

// Last returns the cached update for a booking, or false when none exists.
func (r *RedisCache) Last(ctx context.Context, bookingID string) (models.LocationUpdate, bool, error) {
	m, err := r.client.HGetAll(ctx, lastKey(bookingID)).Result()
	if err != nil {
		return models.LocationUpdate{}, false, err
	}
	if len(m) == 0 {
		return models.LocationUpdate{}, false, nil
	}
	upd := models.LocationUpdate{BookingID: bookingID}
	if v, err := strconv.ParseFloat(m["lat"], 64); err == nil {
		upd.Location.Lat = v
	}
	if v, err := strconv.ParseFloat(m["lng"], 64); err == nil {
		upd.Location.Lng = v
	}
	if v, err := strconv.ParseUint(m["seq"], 10, 64); err == nil {
		upd.Seq = v
	}
	if m["eta"] != "" {
		if v, err := strconv.Atoi(m["eta"]); err == nil {
			upd.ETA = &v
		}
	}
	return upd, true, nil
}

func (r *RedisCache) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisCache) Close() error { return r.client.Close() }
