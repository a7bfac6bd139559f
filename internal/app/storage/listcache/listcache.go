// Package listcache layers a Redis TTL cache over the hot list reads. Writes
// pass through to the inner store and advance a generation counter, so
// cached lists serve at most one TTL of staleness and cache outages degrade
// to the inner store.
package listcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/classforge/enrollment/internal/app/domain/application"
	"github.com/classforge/enrollment/internal/app/storage"
	"github.com/classforge/enrollment/pkg/logger"
)

const (
	viewsGenKey    = "enrollment:views:gen"
	rosterKeyShape = "enrollment:roster:%s"
)

// Store wraps an ApplicationStore and EnrollmentStore with cached list reads.
type Store struct {
	apps        storage.ApplicationStore
	enrollments storage.EnrollmentStore
	rdb         *redis.Client
	ttl         time.Duration
	log         *logger.Logger
}

var _ storage.ApplicationStore = (*Store)(nil)
var _ storage.EnrollmentStore = (*Store)(nil)

// New wraps the given stores. TTL at or below zero disables expiry-based
// caching and is coerced to a small default.
func New(apps storage.ApplicationStore, enrollments storage.EnrollmentStore, rdb *redis.Client, ttl time.Duration, log *logger.Logger) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = logger.NewDefault("listcache")
	}
	return &Store{apps: apps, enrollments: enrollments, rdb: rdb, ttl: ttl, log: log}
}

// --- ApplicationStore -------------------------------------------------------

func (s *Store) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	created, err := s.apps.CreateApplication(ctx, app)
	if err == nil {
		s.bumpGeneration(ctx)
	}
	return created, err
}

func (s *Store) GetApplication(ctx context.Context, id string) (application.Application, error) {
	return s.apps.GetApplication(ctx, id)
}

func (s *Store) ListApplications(ctx context.Context, f application.Filter) ([]application.Application, error) {
	return s.apps.ListApplications(ctx, f)
}

func (s *Store) ListApplicationViews(ctx context.Context, f application.Filter) ([]application.View, error) {
	key, ok := s.viewsKey(ctx, f)
	if ok {
		if raw, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
			var views []application.View
			if json.Unmarshal(raw, &views) == nil {
				return views, nil
			}
		} else if err != redis.Nil {
			s.log.WithError(err).Warn("cache read failed; serving from store")
		}
	}

	views, err := s.apps.ListApplicationViews(ctx, f)
	if err != nil {
		return nil, err
	}
	if ok {
		if raw, err := json.Marshal(views); err == nil {
			if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
				s.log.WithError(err).Warn("cache write failed")
			}
		}
	}
	return views, nil
}

func (s *Store) TransitionStatus(ctx context.Context, id string, expected, next application.Status) (application.Application, error) {
	updated, err := s.apps.TransitionStatus(ctx, id, expected, next)
	if err == nil {
		s.bumpGeneration(ctx)
	}
	return updated, err
}

// --- EnrollmentStore --------------------------------------------------------

func (s *Store) CreateEnrollment(ctx context.Context, userID, groupID string) error {
	if err := s.enrollments.CreateEnrollment(ctx, userID, groupID); err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, fmt.Sprintf(rosterKeyShape, groupID)).Err(); err != nil {
		s.log.WithError(err).Warn("roster invalidation failed")
	}
	return nil
}

// CountEnrollmentsByGroup always hits the store: the capacity guard must not
// see stale counts.
func (s *Store) CountEnrollmentsByGroup(ctx context.Context, groupID string) (int, error) {
	return s.enrollments.CountEnrollmentsByGroup(ctx, groupID)
}

func (s *Store) ListEnrolledUsersByGroup(ctx context.Context, groupID string) ([]string, error) {
	key := fmt.Sprintf(rosterKeyShape, groupID)
	if raw, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var users []string
		if json.Unmarshal(raw, &users) == nil {
			return users, nil
		}
	} else if err != redis.Nil {
		s.log.WithError(err).Warn("cache read failed; serving from store")
	}

	users, err := s.enrollments.ListEnrolledUsersByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(users); err == nil {
		if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
			s.log.WithError(err).Warn("cache write failed")
		}
	}
	return users, nil
}

// viewsKey builds a generation-scoped cache key for the filter. The second
// return is false when the generation cannot be read; callers then skip the
// cache entirely.
func (s *Store) viewsKey(ctx context.Context, f application.Filter) (string, bool) {
	gen, err := s.rdb.Get(ctx, viewsGenKey).Int64()
	if err == redis.Nil {
		gen = 0
	} else if err != nil {
		s.log.WithError(err).Warn("cache generation read failed; serving from store")
		return "", false
	}
	return fmt.Sprintf("enrollment:views:%d:%s|%s|%s|%d|%s|%s",
		gen, f.GroupID, f.ProgramID, f.Status, f.Year, f.UserID, f.TeacherUserID), true
}

func (s *Store) bumpGeneration(ctx context.Context) {
	if err := s.rdb.Incr(ctx, viewsGenKey).Err(); err != nil {
		s.log.WithError(err).Warn("cache generation bump failed")
	}
}
