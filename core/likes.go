package core

import (
	"context"
	"fmt"
)

// LikeStatus reports whether the current credential has liked an article.
type LikeStatus struct {
	Liked bool `json:"liked"`
}

// LikeCount carries an article's total like count.
type LikeCount struct {
	Count int64 `json:"count"`
}

// LikeArticle records a like for the current credential.
func (c *APIClient) LikeArticle(ctx context.Context, articleID int64) error {
	return c.Post(ctx, fmt.Sprintf("/public/articles/%d/like", articleID), nil, nil)
}

// UnlikeArticle withdraws a like.
func (c *APIClient) UnlikeArticle(ctx context.Context, articleID int64) error {
	return c.Delete(ctx, fmt.Sprintf("/public/articles/%d/like", articleID), nil, nil)
}

// ArticleLikeStatus reports whether the current credential likes the article.
func (c *APIClient) ArticleLikeStatus(ctx context.Context, articleID int64) (LikeStatus, error) {
	var status LikeStatus
	if err := c.Get(ctx, fmt.Sprintf("/public/articles/%d/like/status", articleID), nil, &status); err != nil {
		return LikeStatus{}, err
	}
	return status, nil
}

// ArticleLikeCount returns the article's like count.
func (c *APIClient) ArticleLikeCount(ctx context.Context, articleID int64) (LikeCount, error) {
	var count LikeCount
	if err := c.Get(ctx, fmt.Sprintf("/public/articles/%d/like/count", articleID), nil, &count); err != nil {
		return LikeCount{}, err
	}
	return count, nil
}
