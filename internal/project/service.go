package project

import (
	"context"
	defError "errors"
	"fmt"
	"strings"
	"time"

	"site-builder/internal/errors"
	"site-builder/redis"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxPromptLength      = 4000
	maxInstructionLength = 2000
	listCacheTTL         = 24 * time.Hour
)

type Service interface {
	CreateProject(ctx context.Context, userID uint64, prompt string) (*Project, error)
	GetProject(ctx context.Context, id string, userID uint64) (*Project, error)
	UpdateProject(ctx context.Context, id string, userID uint64, content string) (*Project, error)
	ListProjects(ctx context.Context, userID uint64, page, pageSize int) (*ProjectPage, error)
	ProposeEdit(ctx context.Context, instruction, current string) (string, error)
}

// Generator produces site documents; implemented by generation.Generator
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Edit(ctx context.Context, instruction, current string) (string, error)
}

type DefaultService struct {
	repository ProjectRepository
	generator  Generator
	cache      *redis.Cache
	log        *zap.Logger
}

func NewService(repository ProjectRepository, generator Generator, cache *redis.Cache, log *zap.Logger) Service {
	return &DefaultService{
		repository: repository,
		generator:  generator,
		cache:      cache,
		log:        log,
	}
}

// IsCompleteDocument is an ozzo rule: only whole pages are stored, never fragments
func IsCompleteDocument(value interface{}) error {
	s, _ := value.(string)
	head := strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html") {
		return nil
	}
	return defError.New("must be a complete html document")
}

// ValidateDocument checks a document before it is persisted
func ValidateDocument(content string) error {
	err := validation.Validate(content,
		validation.Required.Error("is required"),
		validation.By(IsCompleteDocument),
	)
	if err != nil {
		return fieldError("html", err)
	}
	return nil
}

func fieldError(field string, err error) error {
	apiErr := errors.BadRequest("Invalid input", err)
	apiErr.Fields = map[string]string{field: err.Error()}
	return apiErr
}

func listVersionKey(userID uint64) string {
	return fmt.Sprintf("user:%d:projects:version", userID)
}

func (s *DefaultService) CreateProject(ctx context.Context, userID uint64, prompt string) (*Project, error) {
	prompt = strings.TrimSpace(prompt)
	err := validation.Validate(prompt,
		validation.Required.Error("is required"),
		validation.RuneLength(1, maxPromptLength),
	)
	if err != nil {
		return nil, fieldError("prompt", err)
	}

	content, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if err := ValidateDocument(content); err != nil {
		return nil, errors.BadGateway("Generation did not return a complete page", err)
	}

	project := &Project{
		UserID:  userID,
		Prompt:  prompt,
		Content: content,
	}
	if err := s.repository.Create(ctx, project); err != nil {
		return nil, err
	}

	// bump the version so cached list pages for this user go stale
	s.cache.IncrementVersion(ctx, listVersionKey(userID))
	s.log.Info("project created", zap.String("project_id", project.ID), zap.Uint64("user_id", userID))

	return project, nil
}

func (s *DefaultService) GetProject(ctx context.Context, id string, userID uint64) (*Project, error) {
	project, err := s.repository.FindByID(ctx, id)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Project not found", err)
		}
		return nil, err
	}
	if project.UserID != userID {
		return nil, errors.Forbidden("You don't have access to this project", nil)
	}
	return project, nil
}

func (s *DefaultService) UpdateProject(ctx context.Context, id string, userID uint64, content string) (*Project, error) {
	if err := ValidateDocument(content); err != nil {
		return nil, err
	}
	if _, err := s.GetProject(ctx, id, userID); err != nil {
		return nil, err
	}

	project, err := s.repository.UpdateContent(ctx, id, content)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Project not found", err)
		}
		return nil, err
	}
	return project, nil
}

func (s *DefaultService) ListProjects(ctx context.Context, userID uint64, page, pageSize int) (*ProjectPage, error) {
	v := s.cache.GetVersion(ctx, listVersionKey(userID))
	cacheKey := fmt.Sprintf("projects:u:%d:v:%d:p:%d:ps:%d", userID, v, page, pageSize)

	var result ProjectPage
	found, err := s.cache.Get(ctx, cacheKey, &result)
	if err != nil {
		s.log.Warn("project list cache read failed", zap.Error(err))
	}
	if found {
		return &result, nil
	}

	summaries, err := s.repository.ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, err
	}
	result = ProjectPage{
		Data:    summaries,
		Page:    page,
		HasMore: len(summaries) == pageSize,
	}

	if err := s.cache.Set(ctx, cacheKey, result, listCacheTTL); err != nil {
		s.log.Warn("project list cache write failed", zap.Error(err))
	}
	return &result, nil
}

// ProposeEdit returns an edited copy of current without storing anything
func (s *DefaultService) ProposeEdit(ctx context.Context, instruction, current string) (string, error) {
	instruction = strings.TrimSpace(instruction)
	err := validation.Errors{
		"prompt": validation.Validate(instruction, validation.Required.Error("is required"), validation.RuneLength(1, maxInstructionLength)),
		"html":   validation.Validate(current, validation.Required.Error("is required")),
	}.Filter()
	if err != nil {
		apiErr := errors.BadRequest("Invalid input", err)
		apiErr.Fields = map[string]string{}
		for field, fe := range err.(validation.Errors) {
			apiErr.Fields[field] = fe.Error()
		}
		return "", apiErr
	}

	return s.generator.Edit(ctx, instruction, current)
}
