package room

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/supaquiz/server/internal/domain"
	"github.com/supaquiz/server/internal/errors"
	"github.com/supaquiz/server/internal/event"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6

	defaultDurationMinutes = 5
	gracePeriod            = 3 * time.Minute
)

// QuestionLister loads the questions of a room's quiz.
type QuestionLister interface {
	ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// SessionOpener opens a game play session for a joining participant.
type SessionOpener interface {
	OpenGameSession(ctx context.Context, userID, roomCode, quizID string) error
}

type Config struct {
	EventBus  *event.Bus
	Redis     redis.UniversalClient
	Prefix    string
	Questions QuestionLister
	Opener    SessionOpener
}

// Service manages multiplayer game rooms. Rooms live in Redis: a hash per
// room, a set per participant list, and a single sorted-set expiry queue
// scored by the close deadline, so pending expirations survive restarts.
type Service struct {
	eb        *event.Bus
	redis     redis.UniversalClient
	prefix    string
	questions QuestionLister
	opener    SessionOpener
}

func NewService(c Config) *Service {
	return &Service{
		eb:        c.EventBus,
		redis:     c.Redis,
		prefix:    c.Prefix,
		questions: c.Questions,
		opener:    c.Opener,
	}
}

type CreateRequest struct {
	HostID          string
	QuizID          string
	DurationMinutes int
}

// Create opens a room with a generated shareable code and queues its
// auto-close at duration plus the grace period.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Room, error) {
	if req.HostID == "" || req.QuizID == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("host id and quiz id are required"))
	}

	duration := req.DurationMinutes
	if duration <= 0 {
		duration = defaultDurationMinutes
	}

	code, err := generateCode()
	if err != nil {
		return nil, errors.Internal(err)
	}

	now := time.Now()
	r := &domain.Room{
		Code:            code,
		HostID:          req.HostID,
		QuizID:          req.QuizID,
		Active:          true,
		DurationMinutes: duration,
		CreateTime:      now,
		ExpireTime:      now.Add(time.Duration(duration)*time.Minute + gracePeriod),
	}

	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, s.roomKey(code), map[string]any{
		"host_id":          r.HostID,
		"quiz_id":          r.QuizID,
		"active":           1,
		"duration_minutes": r.DurationMinutes,
		"create_time":      r.CreateTime.Unix(),
		"expire_time":      r.ExpireTime.Unix(),
	})
	pipe.ZAdd(ctx, s.expiryKey(), redis.Z{
		Score:  float64(r.ExpireTime.Unix()),
		Member: code,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	slog.InfoContext(ctx, "room: created",
		"code", code,
		"host", r.HostID,
		"quiz", r.QuizID,
		"close_at", r.ExpireTime,
	)

	return r, nil
}

// Get loads a room and its participants.
func (s *Service) Get(ctx context.Context, code string) (*domain.Room, error) {
	fields, err := s.redis.HGetAll(ctx, s.roomKey(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if len(fields) == 0 {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("room not found: %s", code))
	}

	members, err := s.redis.SMembers(ctx, s.membersKey(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("get room members: %w", err)
	}

	return roomFromFields(code, fields, members), nil
}

type JoinRequest struct {
	Code   string
	UserID string
}

// Join adds the user to the room's participant set. Membership is a set:
// joining twice leaves a single entry. Expired or closed rooms reject joins.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*domain.Room, error) {
	if _, err := uuid.Parse(req.UserID); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("user_id must be a UUID: %q", req.UserID),
			errors.WithCause(err))
	}

	r, err := s.Get(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if !r.Active {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("room closed: %s", req.Code))
	}

	added, err := s.redis.SAdd(ctx, s.membersKey(req.Code), req.UserID).Result()
	if err != nil {
		return nil, fmt.Errorf("join room: %w", err)
	}

	// A first-time join opens the participant's play session for the quiz.
	if added > 0 && s.opener != nil {
		if err := s.opener.OpenGameSession(ctx, req.UserID, req.Code, r.QuizID); err != nil {
			return nil, err
		}
	}

	return s.Get(ctx, req.Code)
}

// End closes a room manually. Closing an already-closed room is a success,
// and the pending expiry-queue entry is dropped.
func (s *Service) End(ctx context.Context, code string) (*domain.Room, error) {
	r, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	if !r.Active {
		return r, nil
	}

	return s.close(ctx, code, "manual")
}

// Expire is invoked by the scheduler when a room's deadline passes. If the
// room was already closed manually it is a no-op.
func (s *Service) Expire(ctx context.Context, code string) error {
	r, err := s.Get(ctx, code)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return nil
		}
		return err
	}

	if !r.Active {
		slog.InfoContext(ctx, "room: already closed before expiry", "code", code)
		return nil
	}

	if _, err := s.close(ctx, code, "expired"); err != nil {
		return err
	}

	return nil
}

func (s *Service) close(ctx context.Context, code, reason string) (*domain.Room, error) {
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, s.roomKey(code), "active", 0)
	pipe.ZRem(ctx, s.expiryKey(), code)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("close room: %w", err)
	}

	r, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "room: closed", "code", code, "reason", reason)

	s.eb.Publish(ctx, domain.EventRoomClosed{Room: *r, Reason: reason})

	return r, nil
}

// Questions returns the questions of the room's quiz.
func (s *Service) Questions(ctx context.Context, code string) ([]domain.Question, error) {
	r, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	return s.questions.ListQuestions(ctx, r.QuizID)
}

func (s *Service) roomKey(code string) string {
	return fmt.Sprintf("%s:room:%s", s.prefix, code)
}

func (s *Service) membersKey(code string) string {
	return fmt.Sprintf("%s:room:%s:members", s.prefix, code)
}

func (s *Service) expiryKey() string {
	return fmt.Sprintf("%s:rooms:expiry", s.prefix)
}

func roomFromFields(code string, fields map[string]string, members []string) *domain.Room {
	duration, _ := strconv.Atoi(fields["duration_minutes"])
	created, _ := strconv.ParseInt(fields["create_time"], 10, 64)
	expires, _ := strconv.ParseInt(fields["expire_time"], 10, 64)

	return &domain.Room{
		Code:            code,
		HostID:          fields["host_id"],
		QuizID:          fields["quiz_id"],
		Active:          fields["active"] == "1",
		DurationMinutes: duration,
		Participants:    members,
		CreateTime:      time.Unix(created, 0),
		ExpireTime:      time.Unix(expires, 0),
	}
}

func generateCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}
