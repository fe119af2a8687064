package v1

import (
	"github.com/gin-gonic/gin"

	"jan-server/services/knowledge-api/internal/interfaces/httpserver/handlers"
)

// Routes encapsulates versioned route registration.
type Routes struct {
	handlers *handlers.Provider
}

func NewRoutes(provider *handlers.Provider) *Routes {
	return &Routes{handlers: provider}
}

// Register attaches all v1 routes under the /v1 prefix behind the given auth middleware.
func (r *Routes) Register(router gin.IRouter, authMiddleware gin.HandlerFunc) {
	group := router.Group("/v1", authMiddleware)

	projects := group.Group("/projects")
	projects.POST("", r.handlers.Project.Create)
	projects.GET("", r.handlers.Project.List)
	projects.GET("/:id", r.handlers.Project.Get)
	projects.DELETE("/:id", r.handlers.Project.Delete)
	projects.POST("/:id/files", r.projectFiles(r.handlers.File.Upload))
	projects.GET("/:id/files", r.projectFiles(r.handlers.File.List))

	files := group.Group("/files")
	files.GET("/:id", r.handlers.File.Get)
	files.GET("/:id/download", r.handlers.File.Download)
	files.DELETE("/:id", r.handlers.File.Delete)

	kb := group.Group("/knowledge-base")
	kb.POST("/status", r.handlers.KnowledgeBase.Status)
	kb.POST("/query", r.handlers.KnowledgeBase.Query)
	kb.GET("/history/:id", r.handlers.KnowledgeBase.History)
	kb.DELETE("/history/:id", r.handlers.KnowledgeBase.DeleteHistory)
}

// projectFiles exposes the project id under the "projectId" param. Gin requires one
// wildcard name per path segment, so project routes share ":id".
func (r *Routes) projectFiles(next gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Params = append(c.Params, gin.Param{Key: "projectId", Value: c.Param("id")})
		next(c)
	}
}
