// File: /routes/routes.go
package routes

import (
	"fmt"
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"chyrp-api/config"
	"chyrp-api/controllers"
	"chyrp-api/middleware"
	"chyrp-api/repositories"
	"chyrp-api/services"
	"chyrp-api/utils"
)

// App carries the long-lived collaborators the HTTP layer is built from.
type App struct {
	Config      *config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	Cache       services.Cache
	Captcha     services.CaptchaStore
	Blobs       services.BlobStore
	Email       *services.EmailService
	RateLimiter *middleware.RateLimiter
	Sentry      bool
}

// NewRouter builds the engine with the global middleware stack and all routes.
func NewRouter(app *App) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery())
	if app.Sentry {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	if app.Config.Tracing.Enabled {
		r.Use(otelgin.Middleware(app.Config.Tracing.ServiceName))
	}
	r.Use(
		middleware.RequestLogger(app.Log),
		middleware.Metrics(),
		middleware.SecurityHeaders(),
		middleware.CORS(app.Config.Server.AllowedOrigins),
		gzip.Gzip(gzip.DefaultCompression),
		middleware.ErrorHandler(app.Log),
	)

	if err := SetupRoutes(r, app); err != nil {
		return nil, err
	}
	return r, nil
}

func SetupRoutes(r *gin.Engine, app *App) error {
	cfg := app.Config
	log := app.Log

	if err := utils.RegisterValidators(); err != nil {
		return fmt.Errorf("register validators: %w", err)
	}

	// Repositories
	userRepo := repositories.NewUserRepository(app.DB)
	postRepo := repositories.NewPostRepository(app.DB)
	tagRepo := repositories.NewTagRepository(app.DB)
	categoryRepo := repositories.NewCategoryRepository(app.DB)
	commentRepo := repositories.NewCommentRepository(app.DB)
	mentionRepo := repositories.NewWebmentionRepository(app.DB)

	// Services
	captchaService := services.NewCaptchaService(app.Captcha, app.Config.Auth.CaptchaTTL)
	authService := services.NewAuthService(userRepo, captchaService, cfg.Auth, log.Named("auth"))
	postService := services.NewPostService(postRepo, tagRepo, categoryRepo, app.Cache, log.Named("posts"))
	commentService := services.NewCommentService(commentRepo, postRepo, userRepo, app.Email, app.Cache, log.Named("comments"))
	taxonomyService := services.NewTaxonomyService(categoryRepo, tagRepo, app.Cache, log)
	sitemapService := services.NewSitemapService(postRepo, categoryRepo, tagRepo, cfg.Site.URL, app.Cache, log)
	uploadService := services.NewUploadService(app.Blobs, cfg.Storage.MaxSizeBytes, log.Named("uploads"))
	mentionService, err := services.NewWebmentionService(mentionRepo, postRepo, userRepo, app.Email, cfg.Site.URL, cfg.Webmention, log.Named("webmentions"))
	if err != nil {
		return err
	}

	// Controllers
	authController := controllers.NewAuthController(authService, log)
	userController := controllers.NewUserController(userRepo, log)
	postController := controllers.NewPostController(postService, log)
	commentController := controllers.NewCommentController(commentService, log)
	captchaController := controllers.NewCaptchaController(captchaService, log)
	uploadController := controllers.NewUploadController(uploadService, log)
	mentionController := controllers.NewWebmentionController(mentionService, log)
	taxonomyController := controllers.NewTaxonomyController(taxonomyService, sitemapService, log)

	requireAuth := middleware.AuthMiddleware(authService)
	optionalAuth := middleware.OptionalAuth(authService)
	limited := func(c *gin.Context) { c.Next() }
	if cfg.RateLimit.Enabled && app.RateLimiter != nil {
		limited = app.RateLimiter.Middleware(cfg.RateLimit.RequestsPerMinute)
	}

	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		dbStatus := "ok"
		if sqlDB, err := app.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = http.StatusServiceUnavailable
			dbStatus = "unavailable"
		}
		c.JSON(status, gin.H{"status": "healthy", "database": dbStatus})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.Storage.Driver == "" || cfg.Storage.Driver == "local" {
		r.Static("/uploads", cfg.Storage.LocalDir)
	}

	// Auth and anti-automation (public, rate limited)
	r.POST("/register", limited, authController.Register)
	r.POST("/login", limited, authController.Login)
	r.GET("/captcha/new", limited, captchaController.NewCaptcha)
	r.POST("/captcha/verify", limited, captchaController.VerifyCaptcha)
	r.POST("/webmention", limited, mentionController.Receive)

	// Public listings
	r.GET("/categories", taxonomyController.GetCategories)
	r.GET("/tags", taxonomyController.GetTags)
	r.GET("/sitemap.xml", taxonomyController.Sitemap)

	// Posts: reads identify the viewer when possible, writes require a token
	posts := r.Group("/posts")
	{
		posts.GET("", optionalAuth, postController.GetPosts)
		posts.GET("/tag/:name", optionalAuth, postController.GetPostsByTag)
		posts.GET("/category/:slug", optionalAuth, postController.GetPostsByCategory)
		posts.GET("/:id", optionalAuth, postController.GetPost)
		posts.GET("/:id/comments", commentController.GetComments)
		posts.GET("/:id/webmentions", mentionController.List)

		posts.POST("", requireAuth, postController.CreatePost)
		posts.PUT("/:id", requireAuth, postController.UpdatePost)
		posts.DELETE("/:id", requireAuth, postController.DeletePost)
		posts.POST("/:id/comments", requireAuth, commentController.CreateComment)
		posts.POST("/:id/like", requireAuth, postController.ToggleLike)
	}

	protected := r.Group("/")
	protected.Use(requireAuth)
	{
		protected.DELETE("/comments/:comment_id", commentController.DeleteComment)
		protected.POST("/upload", uploadController.Upload)
		protected.GET("/me", userController.GetProfile)
	}

	return nil
}
