package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator hands out short human readable codes. Codes are display identifiers only;
// primary keys stay snowflake ids.
type Generator interface {
	NextOrderCode(ctx context.Context) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
	now func() time.Time
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
		now: time.Now,
	}
}

func (g *RedisGenerator) NextOrderCode(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, "ORD")
}

func (g *RedisGenerator) nextDailyCode(ctx context.Context, prefix string) (string, error) {
	now := g.now().UTC()
	today := now.Format("060102")
	key := dailyKey(prefix, today)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}

	if seq == 1 {
		endOfDay := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		_ = g.rdb.ExpireAt(ctx, key, endOfDay).Err()
	}

	return FormatCode(prefix, today, seq, randomAlphaNumeric(2)), nil
}

// dailyKey is "seq:{prefix}:{yymmdd}"; it expires at the end of the UTC day.
func dailyKey(prefix, day string) string {
	return "seq:" + prefix + ":" + day
}

// FormatCode renders PREFIX-YYMMDD-<base36 seq, min 3 chars><suffix>.
func FormatCode(prefix, day string, seq int64, suffix string) string {
	encoded := strings.ToUpper(strconv.FormatInt(seq, 36))
	if len(encoded) < 3 {
		encoded = strings.Repeat("0", 3-len(encoded)) + encoded
	}
	return fmt.Sprintf("%s-%s-%s%s", prefix, day, encoded, suffix)
}

func randomAlphaNumeric(n int) string {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			b[i] = chars[0]
			continue
		}
		b[i] = chars[num.Int64()]
	}
	return string(b)
}
