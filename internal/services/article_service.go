package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/oitdesk/oitdesk/internal/models"
)

// ErrArticleNotFound is returned for missing knowledge base articles.
var ErrArticleNotFound = errors.New("article service: article not found")

// CreateArticleInput describes a new knowledge base article.
type CreateArticleInput struct {
	Title    string
	Body     string
	Category string
	AuthorID string
}

// UpdateArticleInput carries optional article changes. Nil fields are untouched.
type UpdateArticleInput struct {
	Title    *string
	Body     *string
	Category *string
}

// ArticleFilters narrows List results. When IncludeDrafts is false only
// published articles are returned.
type ArticleFilters struct {
	Category      string
	Search        string
	IncludeDrafts bool
}

// ArticleListOptions controls pagination and filtering for article queries.
type ArticleListOptions struct {
	Page     int
	PageSize int
	Filters  ArticleFilters
}

// ArticleService manages the knowledge base.
type ArticleService struct {
	db *gorm.DB
}

// NewArticleService constructs an ArticleService.
func NewArticleService(db *gorm.DB) (*ArticleService, error) {
	if db == nil {
		return nil, errors.New("article service: db is required")
	}
	return &ArticleService{db: db}, nil
}

// Create stores a draft article.
func (s *ArticleService) Create(ctx context.Context, input CreateArticleInput) (*models.Article, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.Title) == "" {
		return nil, errors.New("article service: title is required")
	}
	if strings.TrimSpace(input.AuthorID) == "" {
		return nil, errors.New("article service: author is required")
	}

	article := models.Article{
		Title:    strings.TrimSpace(input.Title),
		Body:     input.Body,
		Category: strings.TrimSpace(input.Category),
		AuthorID: strings.TrimSpace(input.AuthorID),
	}
	if err := s.db.WithContext(ctx).Create(&article).Error; err != nil {
		return nil, fmt.Errorf("article service: create: %w", err)
	}
	return &article, nil
}

// Get loads an article. When countView is set the view counter is bumped
// atomically before the load.
func (s *ArticleService) Get(ctx context.Context, id string, countView bool) (*models.Article, error) {
	ctx = ensureContext(ctx)

	if countView {
		err := s.db.WithContext(ctx).
			Model(&models.Article{}).
			Where("id = ?", id).
			UpdateColumn("views", gorm.Expr("views + 1")).Error
		if err != nil {
			return nil, fmt.Errorf("article service: count view: %w", err)
		}
	}

	var article models.Article
	err := s.db.WithContext(ctx).
		Preload("Author").
		Take(&article, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrArticleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("article service: get: %w", err)
	}
	return &article, nil
}

// Update applies partial article changes.
func (s *ArticleService) Update(ctx context.Context, id string, input UpdateArticleInput) (*models.Article, error) {
	ctx = ensureContext(ctx)

	if _, err := s.Get(ctx, id, false); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Title != nil && strings.TrimSpace(*input.Title) != "" {
		updates["title"] = strings.TrimSpace(*input.Title)
	}
	if input.Body != nil {
		updates["body"] = *input.Body
	}
	if input.Category != nil {
		updates["category"] = strings.TrimSpace(*input.Category)
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Article{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("article service: update: %w", err)
		}
	}
	return s.Get(ctx, id, false)
}

// SetPublished publishes or unpublishes an article.
func (s *ArticleService) SetPublished(ctx context.Context, id string, published bool) (*models.Article, error) {
	ctx = ensureContext(ctx)

	updates := map[string]any{"published": published}
	if published {
		now := time.Now()
		updates["published_at"] = &now
	} else {
		updates["published_at"] = nil
	}

	res := s.db.WithContext(ctx).
		Model(&models.Article{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("article service: set published: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrArticleNotFound
	}
	return s.Get(ctx, id, false)
}

// Delete removes an article.
func (s *ArticleService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Article{})
	if res.Error != nil {
		return fmt.Errorf("article service: delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrArticleNotFound
	}
	return nil
}

// List returns paginated articles, matching title and body against the
// search term.
func (s *ArticleService) List(ctx context.Context, opts ArticleListOptions) ([]models.Article, int64, error) {
	ctx = ensureContext(ctx)

	page, pageSize := normalizePage(opts.Page, opts.PageSize)

	query := s.db.WithContext(ctx).Model(&models.Article{})
	if !opts.Filters.IncludeDrafts {
		query = query.Where("published = ?", true)
	}
	if v := strings.TrimSpace(opts.Filters.Category); v != "" {
		query = query.Where("category = ?", v)
	}
	if v := strings.TrimSpace(opts.Filters.Search); v != "" {
		pattern := "%" + strings.ToLower(v) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(body) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("article service: count: %w", err)
	}

	var articles []models.Article
	err := query.
		Preload("Author").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&articles).Error
	if err != nil {
		return nil, 0, fmt.Errorf("article service: list: %w", err)
	}
	return articles, total, nil
}
