package redis

import (
	"context"

	"github.com/kailas-cloud/kbase/internal/db"
)

// ZAdd inserts or rescores a member.
func (s *Store) ZAdd(ctx context.Context, key string, score int64, member string) error {
	cmd := s.b().Zadd().Key(key).ScoreMember().ScoreMember(float64(score), member).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpZAdd, Err: err}
	}
	return nil
}

// ZRem removes a member and reports whether it was present.
func (s *Store) ZRem(ctx context.Context, key, member string) (bool, error) {
	cmd := s.b().Zrem().Key(key).Member(member).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return false, &db.Error{Op: db.OpZRem, Err: err}
	}
	return n > 0, nil
}

// ZRangeAll returns every member in ascending score order.
func (s *Store) ZRangeAll(ctx context.Context, key string) ([]string, error) {
	cmd := s.b().Zrange().Key(key).Min("0").Max("-1").Build()
	members, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpZRange, Err: err}
	}
	return members, nil
}
