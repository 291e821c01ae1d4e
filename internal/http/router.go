package httpapi

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/tanzawa/locationpicker/internal/config"
	"github.com/tanzawa/locationpicker/internal/http/handlers"
	"github.com/tanzawa/locationpicker/internal/http/middleware"
	"github.com/tanzawa/locationpicker/internal/service"
	"github.com/tanzawa/locationpicker/internal/session"

	_ "github.com/tanzawa/locationpicker/docs"
)

type Deps struct {
	Sessions  *session.Registry
	Locations *service.LocationService
	Store     handlers.Pinger
	Cache     handlers.Pinger
}

func Router(cfg config.Config, deps Deps, logger zerolog.Logger) *gin.Engine {
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Admin-Key", "X-Request-Id"},
		ExposeHeaders:    []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		for _, o := range strings.Split(cfg.CORSAllowed, ",") {
			if o = strings.TrimSpace(o); o != "" {
				corsCfg.AllowOrigins = append(corsCfg.AllowOrigins, o)
			}
		}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Sessions:  deps.Sessions,
		Locations: deps.Locations,
		Store:     deps.Store,
		Cache:     deps.Cache,
		Validator: validator.New(),
		Logger:    logger,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.POST("/pickers", h.CreatePicker)
		api.GET("/pickers/:id", h.GetPicker)
		api.DELETE("/pickers/:id", h.DeletePicker)
		api.POST("/pickers/:id/click", h.Click)
		api.GET("/pickers/:id/search", h.Search)
		api.POST("/pickers/:id/search/select", h.SelectResult)
		api.POST("/pickers/:id/locate", h.Locate)
		api.POST("/pickers/:id/reset", h.Reset)
		api.POST("/pickers/:id/remove", h.Remove)
		api.GET("/locations/:entry_id", h.GetLocation)
		api.GET("/geocode/reverse", h.ReverseGeocode)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/pickers/:id/submit", h.Submit)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
