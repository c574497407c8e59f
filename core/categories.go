package core

import (
	"context"
	"fmt"
	"net/url"
)

// Category mirrors the backend's flat category response.
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// CategoryTreeNode is one node of the nested category tree.
type CategoryTreeNode struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	SortOrder   int                `json:"sortOrder"`
	ParentID    *int64             `json:"parentId"`
	Children    []CategoryTreeNode `json:"children"`
}

// CategoryTree is the tree endpoint's payload.
type CategoryTree struct {
	Tree []CategoryTreeNode `json:"tree"`
}

// CategoryInput is the create/update payload for admin category endpoints.
type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ParentID    *int64 `json:"parentId,omitempty"`
	SortOrder   int    `json:"sortOrder"`
}

// Resource types used by the reorder endpoint.
const (
	ResourceCategory = "CATEGORY"
	ResourceArticle  = "ARTICLE"
)

// OrderItem assigns a sort position to one resource.
type OrderItem struct {
	ResourceType string `json:"resourceType"`
	ResourceID   int64  `json:"resourceId"`
	SortOrder    int    `json:"sortOrder"`
}

// ReorderInput rewrites the ordering of all items under one parent.
type ReorderInput struct {
	ParentType string      `json:"parentType"`
	ParentID   *int64      `json:"parentId"`
	Items      []OrderItem `json:"items"`
}

// Categories lists all categories (public).
func (c *APIClient) Categories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := c.Get(ctx, "/public/categories", nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// PublicCategoryTree fetches the public nested category tree.
func (c *APIClient) PublicCategoryTree(ctx context.Context) (CategoryTree, error) {
	var tree CategoryTree
	if err := c.Get(ctx, "/public/categories/tree", nil, &tree); err != nil {
		return CategoryTree{}, err
	}
	return tree, nil
}

// AdminCategories lists all categories for the admin console.
func (c *APIClient) AdminCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := c.Get(ctx, "/admin/categories", nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// AdminCategoryTree fetches the admin nested category tree.
func (c *APIClient) AdminCategoryTree(ctx context.Context) (CategoryTree, error) {
	var tree CategoryTree
	if err := c.Get(ctx, "/admin/categories/tree", nil, &tree); err != nil {
		return CategoryTree{}, err
	}
	return tree, nil
}

// CreateCategory creates a category under the given parent.
func (c *APIClient) CreateCategory(ctx context.Context, input CategoryInput) (Category, error) {
	var category Category
	if err := c.Post(ctx, "/admin/categories", input, &category); err != nil {
		return Category{}, err
	}
	return category, nil
}

// UpdateCategory renames/redescribes a category.
func (c *APIClient) UpdateCategory(ctx context.Context, id int64, input CategoryInput) (Category, error) {
	var category Category
	if err := c.Put(ctx, fmt.Sprintf("/admin/categories/%d", id), input, &category); err != nil {
		return Category{}, err
	}
	return category, nil
}

// MoveCategory reparents a category. A nil newParentID moves it to the root.
func (c *APIClient) MoveCategory(ctx context.Context, id int64, newParentID *int64) error {
	body := struct {
		NewParentID *int64 `json:"newParentId"`
	}{NewParentID: newParentID}
	return c.Put(ctx, fmt.Sprintf("/admin/categories/%d/move", id), body, nil)
}

// DeleteCategory removes a category; cascade also removes its descendants
// and their articles.
func (c *APIClient) DeleteCategory(ctx context.Context, id int64, cascade bool) error {
	query := url.Values{}
	if cascade {
		query.Set("cascade", "true")
	}
	return c.Delete(ctx, fmt.Sprintf("/admin/categories/%d", id), query, nil)
}

// Reorder rewrites the sort order of the items under one parent.
func (c *APIClient) Reorder(ctx context.Context, input ReorderInput) error {
	return c.Put(ctx, "/admin/sort/reorder", input, nil)
}
