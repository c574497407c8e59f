package core

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

// searchPageSize is the fixed page size of the public search page.
const searchPageSize = 20

// NewRouter constructs the Gin engine with all pages wired.
func NewRouter(cfg Config, store *sessions.CookieStore, creds *CredentialStore, api *APIClient, cache *PageCache) *gin.Engine {
	r := gin.Default()
	r.SetHTMLTemplate(loadTemplates())

	// Global middleware: request id -> origin check -> csrf -> route guard
	r.Use(RequestIDMiddleware())
	r.Use(OriginRefererMiddleware(cfg))
	r.Use(CSRFMiddleware(cfg, store))
	r.Use(RouteGuard(creds))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// reqCtx attaches the session credential so the API client can derive
	// the Authorization header for this request.
	reqCtx := func(c *gin.Context) context.Context {
		return WithCredential(c.Request.Context(), creds.Current(c.Request))
	}

	// pageData collects what every template needs besides its own payload.
	pageData := func(c *gin.Context, extra gin.H) gin.H {
		data := gin.H{
			"User": creds.Current(c.Request),
			"CSRF": c.GetString("csrf_token"),
		}
		for k, v := range extra {
			data[k] = v
		}
		return data
	}

	// renderError shows the failure to the user. An unauthenticated reply
	// additionally clears the credential store and forces navigation to the
	// login page, unless the user is already on the login or register page.
	renderError := func(c *gin.Context, err error) {
		if IsUnauthenticated(err) {
			if lerr := creds.Logout(c.Writer, c.Request); lerr != nil {
				Logf(c, "forced logout failed: %v", lerr)
			}
			path := c.Request.URL.Path
			if path != loginPath && path != registerPath {
				c.Redirect(http.StatusFound, loginPath)
				c.Abort()
				return
			}
		}
		status := http.StatusBadGateway
		var berr *BusinessError
		if errors.As(err, &berr) {
			status = http.StatusBadRequest
		}
		c.HTML(status, "error.tmpl", pageData(c, gin.H{"Message": userMessage(err)}))
		c.Abort()
	}

	// ---- public pages ----

	r.GET("/", func(c *gin.Context) {
		ctx := reqCtx(c)

		var tree CategoryTree
		if !cache.Get(ctx, cacheKeyCategoryTree, &tree) {
			var err error
			tree, err = api.PublicCategoryTree(ctx)
			if err != nil {
				renderError(c, err)
				return
			}
			cache.Set(ctx, cacheKeyCategoryTree, tree)
		}

		var articles []Article
		if !cache.Get(ctx, cacheKeyHomeArticles, &articles) {
			var err error
			articles, err = api.PublishedArticles(ctx, 0)
			if err != nil {
				renderError(c, err)
				return
			}
			cache.Set(ctx, cacheKeyHomeArticles, articles)
		}

		c.HTML(http.StatusOK, "home.tmpl", pageData(c, gin.H{
			"Tree":     tree.Tree,
			"Articles": articles,
		}))
	})

	r.GET("/category/:id", func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		ctx := reqCtx(c)
		articles, err := api.PublishedArticles(ctx, id)
		if err != nil {
			renderError(c, err)
			return
		}
		c.HTML(http.StatusOK, "category.tmpl", pageData(c, gin.H{
			"CategoryID": id,
			"Articles":   articles,
		}))
	})

	r.GET("/article/:id", func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		ctx := reqCtx(c)
		article, err := api.Article(ctx, id)
		if err != nil {
			renderError(c, err)
			return
		}

		// Likes are decoration: a failure must not take the page down.
		var likeCount int64
		if count, err := api.ArticleLikeCount(ctx, id); err == nil {
			likeCount = count.Count
		} else {
			Logf(c, "like count for article %d unavailable: %v", id, err)
		}
		liked := false
		if creds.IsLoggedIn(c.Request) {
			if status, err := api.ArticleLikeStatus(ctx, id); err == nil {
				liked = status.Liked
			}
		}

		c.HTML(http.StatusOK, "article.tmpl", pageData(c, gin.H{
			"Article": article,
			// The backend renders the markdown; trust its HTML as-is.
			"Rendered":  template.HTML(article.RenderedContent),
			"LikeCount": likeCount,
			"Liked":     liked,
		}))
	})

	r.POST("/article/:id/like", func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		if !creds.IsLoggedIn(c.Request) {
			c.Redirect(http.StatusFound, loginPath)
			return
		}
		if err := api.LikeArticle(reqCtx(c), id); err != nil {
			renderError(c, err)
			return
		}
		c.Redirect(http.StatusFound, "/article/"+strconv.FormatInt(id, 10))
	})

	r.POST("/article/:id/unlike", func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		if !creds.IsLoggedIn(c.Request) {
			c.Redirect(http.StatusFound, loginPath)
			return
		}
		if err := api.UnlikeArticle(reqCtx(c), id); err != nil {
			renderError(c, err)
			return
		}
		c.Redirect(http.StatusFound, "/article/"+strconv.FormatInt(id, 10))
	})

	r.GET("/search", func(c *gin.Context) {
		ctx := reqCtx(c)
		keyword := strings.TrimSpace(c.Query("q"))
		var categoryID int64
		if v := c.Query("categoryId"); v != "" {
			categoryID, _ = strconv.ParseInt(v, 10, 64)
		}
		page := 0
		if v := c.Query("page"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				page = n
			}
		}

		categories, err := api.Categories(ctx)
		if err != nil {
			renderError(c, err)
			return
		}
		var result ArticlePage
		if keyword != "" || categoryID > 0 {
			result, err = api.SearchArticles(ctx, keyword, categoryID, page, searchPageSize)
			if err != nil {
				renderError(c, err)
				return
			}
		}

		c.HTML(http.StatusOK, "search.tmpl", pageData(c, gin.H{
			"Keyword":    keyword,
			"CategoryID": categoryID,
			"Categories": categories,
			"Result":     result,
		}))
	})

	r.GET("/account", func(c *gin.Context) {
		if !creds.IsLoggedIn(c.Request) {
			c.Redirect(http.StatusFound, loginPath)
			return
		}
		// The backend is authoritative for the profile; the session only
		// holds the credential.
		user, err := api.CurrentUser(reqCtx(c))
		if err != nil {
			renderError(c, err)
			return
		}
		c.HTML(http.StatusOK, "account.tmpl", pageData(c, gin.H{"Account": user}))
	})

	// ---- auth pages ----

	r.GET(loginPath, func(c *gin.Context) {
		c.HTML(http.StatusOK, "login.tmpl", pageData(c, nil))
	})

	r.POST(loginPath, func(c *gin.Context) {
		username := strings.TrimSpace(c.PostForm("username"))
		password := c.PostForm("password")
		if username == "" || password == "" {
			c.HTML(http.StatusBadRequest, "login.tmpl", pageData(c, gin.H{
				"Message": "ユーザー名とパスワードを入力してください。",
			}))
			return
		}

		user, err := api.CheckLogin(reqCtx(c), username, password)
		if err != nil {
			var berr *BusinessError
			if errors.As(err, &berr) {
				c.HTML(http.StatusUnauthorized, "login.tmpl", pageData(c, gin.H{
					"Message": berr.Message,
				}))
				return
			}
			renderError(c, err)
			return
		}

		// Local state transition only: the backend check above is the
		// authentication; the store just remembers the credential.
		if err := creds.Login(c.Writer, c.Request, username, password, user.Role); err != nil {
			renderError(c, err)
			return
		}
		c.Redirect(http.StatusFound, "/")
	})

	r.GET(registerPath, func(c *gin.Context) {
		c.HTML(http.StatusOK, "register.tmpl", pageData(c, nil))
	})

	r.POST(registerPath, func(c *gin.Context) {
		username := strings.TrimSpace(c.PostForm("username"))
		password := c.PostForm("password")
		email := strings.TrimSpace(c.PostForm("email"))
		if username == "" || password == "" {
			c.HTML(http.StatusBadRequest, "register.tmpl", pageData(c, gin.H{
				"Message": "ユーザー名とパスワードを入力してください。",
			}))
			return
		}

		if _, err := api.RegisterUser(reqCtx(c), username, password, email); err != nil {
			var berr *BusinessError
			if errors.As(err, &berr) {
				c.HTML(http.StatusBadRequest, "register.tmpl", pageData(c, gin.H{
					"Message": berr.Message,
				}))
				return
			}
			renderError(c, err)
			return
		}
		c.Redirect(http.StatusFound, loginPath)
	})

	r.POST("/logout", func(c *gin.Context) {
		if err := creds.Logout(c.Writer, c.Request); err != nil {
			Logf(c, "logout failed: %v", err)
		}
		c.Redirect(http.StatusFound, loginPath)
	})

	// ---- admin console ----
	// The route guard already forces anonymous users to the login page; the
	// backend enforces the ADMIN role on every call.

	admin := r.Group(adminPathPrefix)
	{
		admin.GET("", func(c *gin.Context) {
			c.Redirect(http.StatusFound, "/admin/articles")
		})

		admin.GET("/articles", func(c *gin.Context) {
			articles, err := api.AdminArticles(reqCtx(c))
			if err != nil {
				renderError(c, err)
				return
			}
			c.HTML(http.StatusOK, "admin_articles.tmpl", pageData(c, gin.H{"Articles": articles}))
		})

		admin.GET("/articles/new", func(c *gin.Context) {
			categories, err := api.AdminCategories(reqCtx(c))
			if err != nil {
				renderError(c, err)
				return
			}
			c.HTML(http.StatusOK, "admin_article_form.tmpl", pageData(c, gin.H{
				"Categories": categories,
			}))
		})

		admin.POST("/articles", func(c *gin.Context) {
			input, ok := articleForm(c)
			if !ok {
				return
			}
			ctx := reqCtx(c)
			if _, err := api.CreateArticle(ctx, input); err != nil {
				renderError(c, err)
				return
			}
			cache.InvalidatePublic(ctx)
			c.Redirect(http.StatusFound, "/admin/articles")
		})

		admin.GET("/articles/:id/edit", func(c *gin.Context) {
			id, ok := paramID(c)
			if !ok {
				return
			}
			ctx := reqCtx(c)
			article, err := api.AdminArticle(ctx, id)
			if err != nil {
				renderError(c, err)
				return
			}
			categories, err := api.AdminCategories(ctx)
			if err != nil {
				renderError(c, err)
				return
			}
			c.HTML(http.StatusOK, "admin_article_form.tmpl", pageData(c, gin.H{
				"Article":    article,
				"Categories": categories,
			}))
		})

		admin.POST("/articles/:id", func(c *gin.Context) {
			id, ok := paramID(c)
			if !ok {
				return
			}
			input, ok := articleForm(c)
			if !ok {
				return
			}
			ctx := reqCtx(c)
			if _, err := api.UpdateArticle(ctx, id, input); err != nil {
				renderError(c, err)
				return
			}
			cache.InvalidatePublic(ctx)
			c.Redirect(http.StatusFound, "/admin/articles")
		})

		admin.POST("/articles/:id/delete", func(c *gin.Context) {
			id, ok := paramID(c)
			if !ok {
				return
			}
			ctx := reqCtx(c)
			if err := api.DeleteArticle(ctx, id); err != nil {
				renderError(c, err)
				return
			}
			cache.InvalidatePublic(ctx)
			c.Redirect(http.StatusFound, "/admin/articles")
		})

		admin.POST("/articles/:id/publish", func(c *gin.Context) {
			id, ok := paramID(c)
			if !ok {
				return
			}
			ctx := reqCtx(c)
			if _, err := api.PublishArticle(ctx, id); err != nil {
				renderError(c, err)
				return
			}
			cache.InvalidatePublic(ctx)
			c.Redirect(http.StatusFound, "/admin/articles")
		})

		admin.POST("/articles/:id/unpublish", func(c *gin.Context) {
			id, ok := paramID(c)
			if !ok {
				return
			}
			ctx := reqCtx(c)
			if _, err := api.UnpublishArticle(ctx, id); err != nil {
				renderError(c, err)
				return
			}
			cache.InvalidatePublic(ctx)
			c.Redirect(http.StatusFound, "/admin/articles")
		})

		admin.GET("/categories", func(c *gin.Context) {
			ctx := reqCtx(c)
			tree, err := api.AdminCategoryTree(ctx)
			if err != nil {
				renderError(c, err)
				return
			}
			categories, err := api.AdminCategories(ctx)
			if err != nil {
				renderError(c, err)
				return
			}
			c.HTML(http.StatusOK, "admin_categories.tmpl", pageData(c, gin.H{
				"Tree":       tree.Tree,
				"Categories": categories,
			}))
		})

		admin.GET("/categories/new", func(c *gin.Context) {
			categories, err := api.AdminCategories(reqCtx(c))
			if err != nil {
				renderError(c, err)
				return
			}
			c.HTML(http.StatusOK, "admin_category_form.tmpl", pageData(c, gin.H{
				"Parents": categories,
			}))
		})

		admin.POST("/categories", func(c *gin.Context) {
			input := categoryForm(c)
			ctx := reqCtx(c)
			if _, err := api.CreateCategory(ctx, input); err != nil {
				renderError(c, err)
				return
			}
			cache.InvalidatePublic(ctx)
			c.Redirect(http.StatusFound, "/admin/categories")
		})

		admin.GET("/categories/:id/edit", func(c *gin.Context) {
			id, ok := paramID(c)
			if !ok {
				return
			}
			ctx := reqCtx(c)
			categories, err := api.AdminCategories(ctx)
			if err != nil {
				renderError(c, err)
				return
			}
			var current Category
			for _, cat := range categories {
				if cat.ID == id {
					current = cat
					break
				}
			}
			if current.ID == 0 {
				c.String(http.StatusNotFound, "not found")
				return
			}
			c.HTML(http.StatusOK, "admin_category_form.tmpl", pageData(c, gin.H{
				"Category": current,
				"Parents":  categories,
			}))
		})

		admin.POST("/categories/:id", func(c *gin.Context) {
			id, ok := paramID(c)
			if !ok {
				return
			}
			input := categoryForm(c)
			ctx := reqCtx(c)
			if _, err := api.UpdateCategory(ctx, id, input); err != nil {
				renderError(c, err)
				return
			}
			cache.InvalidatePublic(ctx)
			c.Redirect(http.StatusFound, "/admin/categories")
		})

		admin.POST("/categories/:id/delete", func(c *gin.Context) {
			id, ok := paramID(c)
			if !ok {
				return
			}
			cascade := c.PostForm("cascade") == "true"
			ctx := reqCtx(c)
			if err := api.DeleteCategory(ctx, id, cascade); err != nil {
				renderError(c, err)
				return
			}
			cache.InvalidatePublic(ctx)
			c.Redirect(http.StatusFound, "/admin/categories")
		})

		admin.POST("/categories/:id/move", func(c *gin.Context) {
			id, ok := paramID(c)
			if !ok {
				return
			}
			var newParent *int64
			if v := strings.TrimSpace(c.PostForm("newParentId")); v != "" {
				p, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					c.String(http.StatusBadRequest, "invalid parent id")
					return
				}
				newParent = &p
			}
			ctx := reqCtx(c)
			if err := api.MoveCategory(ctx, id, newParent); err != nil {
				renderError(c, err)
				return
			}
			cache.InvalidatePublic(ctx)
			c.Redirect(http.StatusFound, "/admin/categories")
		})

		admin.POST("/categories/reorder", func(c *gin.Context) {
			input, ok := reorderForm(c)
			if !ok {
				return
			}
			ctx := reqCtx(c)
			if err := api.Reorder(ctx, input); err != nil {
				renderError(c, err)
				return
			}
			cache.InvalidatePublic(ctx)
			c.Redirect(http.StatusFound, "/admin/categories")
		})

		admin.GET("/users", func(c *gin.Context) {
			users, err := api.AdminUsers(reqCtx(c))
			if err != nil {
				renderError(c, err)
				return
			}
			c.HTML(http.StatusOK, "admin_users.tmpl", pageData(c, gin.H{"Users": users}))
		})

		admin.GET("/users/new", func(c *gin.Context) {
			c.HTML(http.StatusOK, "admin_user_form.tmpl", pageData(c, nil))
		})

		admin.POST("/users", func(c *gin.Context) {
			input, ok := userForm(c, true)
			if !ok {
				return
			}
			if _, err := api.CreateUser(reqCtx(c), input); err != nil {
				renderError(c, err)
				return
			}
			c.Redirect(http.StatusFound, "/admin/users")
		})

		admin.GET("/users/:id/edit", func(c *gin.Context) {
			id, ok := paramID(c)
			if !ok {
				return
			}
			user, err := api.AdminUser(reqCtx(c), id)
			if err != nil {
				renderError(c, err)
				return
			}
			c.HTML(http.StatusOK, "admin_user_form.tmpl", pageData(c, gin.H{"Account": user}))
		})

		admin.POST("/users/:id", func(c *gin.Context) {
			id, ok := paramID(c)
			if !ok {
				return
			}
			input, ok := userForm(c, false)
			if !ok {
				return
			}
			if _, err := api.UpdateUser(reqCtx(c), id, input); err != nil {
				renderError(c, err)
				return
			}
			c.Redirect(http.StatusFound, "/admin/users")
		})

		admin.POST("/users/:id/delete", func(c *gin.Context) {
			id, ok := paramID(c)
			if !ok {
				return
			}
			if err := api.DeleteUser(reqCtx(c), id); err != nil {
				renderError(c, err)
				return
			}
			c.Redirect(http.StatusFound, "/admin/users")
		})
	}

	return r
}

// paramID parses the :id route parameter; on failure it answers 404 itself.
func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.String(http.StatusNotFound, "not found")
		c.Abort()
		return 0, false
	}
	return id, true
}

// articleForm reads the admin article form; on invalid input it re-answers
// 400 itself.
func articleForm(c *gin.Context) (ArticleInput, bool) {
	categoryID, err := strconv.ParseInt(c.PostForm("categoryId"), 10, 64)
	title := strings.TrimSpace(c.PostForm("title"))
	if err != nil || title == "" {
		c.String(http.StatusBadRequest, "タイトルとカテゴリは必須です")
		c.Abort()
		return ArticleInput{}, false
	}
	return ArticleInput{
		Title:      title,
		Content:    c.PostForm("content"),
		CategoryID: categoryID,
		Keywords:   strings.TrimSpace(c.PostForm("keywords")),
	}, true
}

// userForm reads the admin user form. The password is required on create and
// optional on update, where blank leaves it unchanged.
func userForm(c *gin.Context, create bool) (UserInput, bool) {
	input := UserInput{
		Username: strings.TrimSpace(c.PostForm("username")),
		Password: c.PostForm("password"),
		Email:    strings.TrimSpace(c.PostForm("email")),
		Role:     c.PostForm("role"),
		Status:   c.PostForm("status"),
	}
	if input.Username == "" || (create && input.Password == "") {
		c.String(http.StatusBadRequest, "ユーザー名とパスワードは必須です")
		c.Abort()
		return UserInput{}, false
	}
	return input, true
}

func categoryForm(c *gin.Context) CategoryInput {
	input := CategoryInput{
		Name:        strings.TrimSpace(c.PostForm("name")),
		Description: strings.TrimSpace(c.PostForm("description")),
	}
	if v := c.PostForm("parentId"); v != "" {
		if p, err := strconv.ParseInt(v, 10, 64); err == nil && p > 0 {
			input.ParentID = &p
		}
	}
	if v := c.PostForm("sortOrder"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			input.SortOrder = n
		}
	}
	return input
}

// reorderForm reads the drag-order form: ids holds the children of one
// parent in their new order.
func reorderForm(c *gin.Context) (ReorderInput, bool) {
	input := ReorderInput{ParentType: ResourceCategory}
	if v := strings.TrimSpace(c.PostForm("parentId")); v != "" {
		p, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.String(http.StatusBadRequest, "invalid parent id")
			c.Abort()
			return ReorderInput{}, false
		}
		input.ParentID = &p
	}
	for i, raw := range strings.Split(c.PostForm("ids"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.String(http.StatusBadRequest, "invalid id list")
			c.Abort()
			return ReorderInput{}, false
		}
		input.Items = append(input.Items, OrderItem{
			ResourceType: ResourceCategory,
			ResourceID:   id,
			SortOrder:    i,
		})
	}
	if len(input.Items) == 0 {
		c.String(http.StatusBadRequest, "並び替え対象がありません")
		c.Abort()
		return ReorderInput{}, false
	}
	return input, true
}

// userMessage extracts what the error page should show.
func userMessage(err error) string {
	var berr *BusinessError
	if errors.As(err, &berr) {
		return berr.Message
	}
	var terr *TransportError
	if errors.As(err, &terr) {
		if terr.StatusCode == 0 {
			return "サーバーに接続できませんでした。"
		}
		return terr.Message
	}
	return err.Error()
}
