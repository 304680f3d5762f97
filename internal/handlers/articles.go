package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oitdesk/oitdesk/internal/services"
	appErrors "github.com/oitdesk/oitdesk/pkg/errors"
	"github.com/oitdesk/oitdesk/pkg/response"
)

// ArticleHandler serves the knowledge base endpoints.
type ArticleHandler struct {
	articles *services.ArticleService
}

// NewArticleHandler constructs an ArticleHandler.
func NewArticleHandler(articles *services.ArticleService) (*ArticleHandler, error) {
	if articles == nil {
		return nil, errors.New("article handler: article service is required")
	}
	return &ArticleHandler{articles: articles}, nil
}

type createArticleRequest struct {
	Title    string `json:"title" validate:"required,min=1,max=255"`
	Body     string `json:"body" validate:"max=1048576"`
	Category string `json:"category" validate:"max=128"`
}

type updateArticleRequest struct {
	Title    *string `json:"title" validate:"omitempty,min=1,max=255"`
	Body     *string `json:"body" validate:"omitempty,max=1048576"`
	Category *string `json:"category" validate:"omitempty,max=128"`
}

type publishArticleRequest struct {
	Published bool `json:"published"`
}

// Create stores a draft article. Staff only.
func (h *ArticleHandler) Create(c *gin.Context) {
	var req createArticleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	article, err := h.articles.Create(requestContext(c), services.CreateArticleInput{
		Title:    req.Title,
		Body:     req.Body,
		Category: req.Category,
		AuthorID: currentUserID(c),
	})
	if err != nil {
		response.Error(c, appErrors.NewBadRequest(err.Error()))
		return
	}
	response.Success(c, http.StatusCreated, article)
}

// Get returns an article, counting the view for published reads. Drafts are
// only visible to staff.
func (h *ArticleHandler) Get(c *gin.Context) {
	ctx := requestContext(c)

	article, err := h.articles.Get(ctx, c.Param("id"), false)
	if err != nil {
		if errors.Is(err, services.ErrArticleNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, err)
		return
	}

	if !article.Published {
		if !isStaff(c) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Success(c, http.StatusOK, article)
		return
	}

	article, err = h.articles.Get(ctx, article.ID, true)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, article)
}

// List returns articles with search and pagination. Staff may include drafts
// via ?drafts=1.
func (h *ArticleHandler) List(c *gin.Context) {
	opts := services.ArticleListOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "page_size", 50),
		Filters: services.ArticleFilters{
			Category:      c.Query("category"),
			Search:        c.Query("q"),
			IncludeDrafts: isStaff(c) && c.Query("drafts") != "",
		},
	}

	articles, total, err := h.articles.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, articles, paginationMeta(opts.Page, opts.PageSize, total))
}

// Update applies partial changes. Staff only.
func (h *ArticleHandler) Update(c *gin.Context) {
	var req updateArticleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	article, err := h.articles.Update(requestContext(c), c.Param("id"), services.UpdateArticleInput{
		Title:    req.Title,
		Body:     req.Body,
		Category: req.Category,
	})
	if err != nil {
		if errors.Is(err, services.ErrArticleNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, appErrors.NewBadRequest(err.Error()))
		return
	}
	response.Success(c, http.StatusOK, article)
}

// SetPublished publishes or unpublishes an article. Staff only.
func (h *ArticleHandler) SetPublished(c *gin.Context) {
	var req publishArticleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	article, err := h.articles.SetPublished(requestContext(c), c.Param("id"), req.Published)
	if err != nil {
		if errors.Is(err, services.ErrArticleNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, article)
}

// Delete removes an article. Staff only.
func (h *ArticleHandler) Delete(c *gin.Context) {
	if err := h.articles.Delete(requestContext(c), c.Param("id")); err != nil {
		if errors.Is(err, services.ErrArticleNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
