// Package api exposes the diary screens over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voice-diary-go/internal/auth"
	"voice-diary-go/internal/logger"
	"voice-diary-go/internal/pipeline"
	"voice-diary-go/internal/store"
)

// MaxAudioBytes caps a single audio upload request.
const MaxAudioBytes = 50 << 20

// Server holds the handler dependencies.
type Server struct {
	registry *pipeline.Registry
	store    store.Store
	issuer   *auth.Issuer
	log      *logger.Logger
	now      func() time.Time
}

func NewServer(registry *pipeline.Registry, st store.Store, issuer *auth.Issuer, log *logger.Logger) *Server {
	if log == nil {
		log = logger.New()
	}
	return &Server{
		registry: registry,
		store:    st,
		issuer:   issuer,
		log:      log.Component("api"),
		now:      time.Now,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), CORS(), RequestLogger(s.log))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	v1 := r.Group("/api/v1")
	v1.Use(s.issuer.Middleware())
	{
		v1.GET("/diaries", s.listDiaries)
		v1.GET("/diaries/:date", s.getDiary)
		v1.PUT("/diaries/:date", s.saveDiary)
		v1.DELETE("/diaries/:date", s.deleteDiary)

		v1.POST("/diaries/:date/recording", s.startRecording)
		v1.GET("/diaries/:date/recording", s.recordingStatus)
		v1.PUT("/diaries/:date/recording/audio", s.appendAudio)
		v1.POST("/diaries/:date/recording/stop", s.stopRecording)
		v1.DELETE("/diaries/:date/recording", s.cancelRecording)

		v1.GET("/past", s.pastDiaries)
		v1.GET("/keywords/ranking", s.keywordRanking)
		v1.GET("/keywords/ranking/export", s.exportRanking)
	}
	return r
}
