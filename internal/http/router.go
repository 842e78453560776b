package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/yungbote/certgen-backend/internal/http/handlers"
	httpMW "github.com/yungbote/certgen-backend/internal/http/middleware"
	"github.com/yungbote/certgen-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	HealthHandler   *httpH.HealthHandler
	TemplateHandler *httpH.TemplateHandler
	TableHandler    *httpH.TableHandler
	BatchHandler    *httpH.BatchHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Uploads
		if cfg.TemplateHandler != nil {
			api.POST("/templates", cfg.TemplateHandler.UploadTemplate)
		}
		if cfg.TableHandler != nil {
			api.POST("/tables", cfg.TableHandler.UploadTable)
		}

		// Batches
		if cfg.BatchHandler != nil {
			api.POST("/batches", cfg.BatchHandler.Generate)
			api.GET("/batches/:id", cfg.BatchHandler.Status)
			api.GET("/batches/:id/download", cfg.BatchHandler.Download)
		}
	}

	return r
}
