package core

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Article mirrors the backend's article response. Timestamps are kept as the
// backend's LocalDateTime strings; the frontend only displays them.
type Article struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Content         string `json:"content"`
	RenderedContent string `json:"renderedContent"`
	Status          string `json:"status"`
	CategoryID      int64  `json:"categoryId"`
	CategoryName    string `json:"categoryName"`
	PublishedAt     string `json:"publishedAt"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

// Published reports whether the article is visible to the public site.
func (a Article) Published() bool { return a.Status == "PUBLISHED" }

// ArticleInput is the create/update payload for admin article endpoints.
type ArticleInput struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	CategoryID int64  `json:"categoryId"`
	Keywords   string `json:"keywords,omitempty"`
}

// ArticlePage is the paginated shape returned by the public search endpoint.
type ArticlePage struct {
	Content       []Article `json:"content"`
	TotalElements int64     `json:"totalElements"`
	TotalPages    int       `json:"totalPages"`
	Number        int       `json:"number"`
	Size          int       `json:"size"`
}

// PublishedArticles lists published articles, optionally restricted to a
// category (categoryID <= 0 means all).
func (c *APIClient) PublishedArticles(ctx context.Context, categoryID int64) ([]Article, error) {
	query := url.Values{}
	if categoryID > 0 {
		query.Set("categoryId", strconv.FormatInt(categoryID, 10))
	}
	var articles []Article
	if err := c.Get(ctx, "/public/articles", query, &articles); err != nil {
		return nil, err
	}
	return articles, nil
}

// SearchArticles queries published articles by keyword and/or category.
func (c *APIClient) SearchArticles(ctx context.Context, keyword string, categoryID int64, page, size int) (ArticlePage, error) {
	query := url.Values{}
	if keyword != "" {
		query.Set("keyword", keyword)
	}
	if categoryID > 0 {
		query.Set("categoryId", strconv.FormatInt(categoryID, 10))
	}
	if page >= 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if size > 0 {
		query.Set("size", strconv.Itoa(size))
	}
	var result ArticlePage
	if err := c.Get(ctx, "/public/articles/search", query, &result); err != nil {
		return ArticlePage{}, err
	}
	return result, nil
}

// Article fetches a published article by id.
func (c *APIClient) Article(ctx context.Context, id int64) (Article, error) {
	var article Article
	if err := c.Get(ctx, fmt.Sprintf("/public/articles/%d", id), nil, &article); err != nil {
		return Article{}, err
	}
	return article, nil
}

// AdminArticles lists all articles regardless of status.
func (c *APIClient) AdminArticles(ctx context.Context) ([]Article, error) {
	var articles []Article
	if err := c.Get(ctx, "/admin/articles", nil, &articles); err != nil {
		return nil, err
	}
	return articles, nil
}

// AdminArticle fetches an article by id including drafts.
func (c *APIClient) AdminArticle(ctx context.Context, id int64) (Article, error) {
	var article Article
	if err := c.Get(ctx, fmt.Sprintf("/admin/articles/%d", id), nil, &article); err != nil {
		return Article{}, err
	}
	return article, nil
}

// CreateArticle creates a draft article.
func (c *APIClient) CreateArticle(ctx context.Context, input ArticleInput) (Article, error) {
	var article Article
	if err := c.Post(ctx, "/admin/articles", input, &article); err != nil {
		return Article{}, err
	}
	return article, nil
}

// UpdateArticle updates title/content/category of an article.
func (c *APIClient) UpdateArticle(ctx context.Context, id int64, input ArticleInput) (Article, error) {
	var article Article
	if err := c.Put(ctx, fmt.Sprintf("/admin/articles/%d", id), input, &article); err != nil {
		return Article{}, err
	}
	return article, nil
}

// DeleteArticle removes an article.
func (c *APIClient) DeleteArticle(ctx context.Context, id int64) error {
	return c.Delete(ctx, fmt.Sprintf("/admin/articles/%d", id), nil, nil)
}

// PublishArticle makes an article publicly visible.
func (c *APIClient) PublishArticle(ctx context.Context, id int64) (Article, error) {
	var article Article
	if err := c.Post(ctx, fmt.Sprintf("/admin/articles/%d/publish", id), nil, &article); err != nil {
		return Article{}, err
	}
	return article, nil
}

// UnpublishArticle takes an article back to draft.
func (c *APIClient) UnpublishArticle(ctx context.Context, id int64) (Article, error) {
	var article Article
	if err := c.Post(ctx, fmt.Sprintf("/admin/articles/%d/unpublish", id), nil, &article); err != nil {
		return Article{}, err
	}
	return article, nil
}
