package app

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"jupyter-proxy-apps/internal/model"
)

const (
	MaxNameRunes    = 64
	MaxMessageRunes = 2000
)

var (
	ErrNameEmpty      = errors.New("name is empty")
	ErrMessageEmpty   = errors.New("message is empty")
	ErrNameTooLong    = errors.New("name is too long")
	ErrMessageTooLong = errors.New("message is too long")
	ErrCommentEnqueue = errors.New("comment enqueue failed")
)

type CommentStore interface {
	Create(comment *model.Comment) error
	ListLatest(limit int) ([]model.Comment, error)
}

type CommentCache interface {
	GetLatest(ctx context.Context) ([]model.Comment, bool, error)
	SetLatest(ctx context.Context, comments []model.Comment) error
	Invalidate(ctx context.Context) error
}

type AsyncCommentPublisher interface {
	Publish(ctx context.Context, comment model.Comment) error
}

type PostCommentInput struct {
	Name    string
	Message string
}

type BoardService struct {
	store     CommentStore
	cache     CommentCache
	publisher AsyncCommentPublisher
	listLimit int
	now       func() time.Time
	log       *logrus.Entry
}

// NewBoardService wires the board. cache and publisher are optional; with a
// publisher set, comments are queued instead of written directly.
func NewBoardService(
	store CommentStore,
	cache CommentCache,
	publisher AsyncCommentPublisher,
	listLimit int,
	log *logrus.Entry,
) *BoardService {
	if listLimit <= 0 {
		listLimit = 100
	}
	return &BoardService{
		store:     store,
		cache:     cache,
		publisher: publisher,
		listLimit: listLimit,
		now:       time.Now,
		log:       log,
	}
}

// ValidateComment trims the input and checks the board's limits.
func ValidateComment(input PostCommentInput) (PostCommentInput, error) {
	name := strings.TrimSpace(input.Name)
	message := strings.TrimSpace(input.Message)
	switch {
	case name == "":
		return input, ErrNameEmpty
	case message == "":
		return input, ErrMessageEmpty
	case utf8.RuneCountInString(name) > MaxNameRunes:
		return input, ErrNameTooLong
	case utf8.RuneCountInString(message) > MaxMessageRunes:
		return input, ErrMessageTooLong
	}
	return PostCommentInput{Name: name, Message: message}, nil
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrNameEmpty) ||
		errors.Is(err, ErrMessageEmpty) ||
		errors.Is(err, ErrNameTooLong) ||
		errors.Is(err, ErrMessageTooLong)
}

func (s *BoardService) Post(ctx context.Context, input PostCommentInput) (*model.Comment, error) {
	input, err := ValidateComment(input)
	if err != nil {
		return nil, err
	}

	comment := &model.Comment{
		Date:    s.now(),
		Name:    input.Name,
		Message: input.Message,
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, *comment); err != nil {
			s.log.WithError(err).Error("publish comment failed")
			return nil, ErrCommentEnqueue
		}
		return comment, nil
	}

	if err := s.store.Create(comment); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.log.WithError(err).Warn("invalidate comment cache failed")
		}
	}
	return comment, nil
}

// List returns up to limit comments, newest first. limit is clamped to the
// configured page size.
func (s *BoardService) List(ctx context.Context, limit int) ([]model.Comment, error) {
	if limit <= 0 || limit > s.listLimit {
		limit = s.listLimit
	}

	if s.cache != nil {
		cached, hit, err := s.cache.GetLatest(ctx)
		if err != nil {
			s.log.WithError(err).Warn("read comment cache failed")
		} else if hit {
			return trimComments(cached, limit), nil
		}
	}

	comments, err := s.store.ListLatest(s.listLimit)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetLatest(ctx, comments); err != nil {
			s.log.WithError(err).Warn("write comment cache failed")
		}
	}
	return trimComments(comments, limit), nil
}

func trimComments(comments []model.Comment, limit int) []model.Comment {
	if limit <= 0 || limit >= len(comments) {
		return comments
	}
	return comments[:limit]
}
