// Package server exposes edge inference and abundance over HTTP.
package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inodb/exonedge/internal/abundance"
	"github.com/inodb/exonedge/internal/batch"
	"github.com/inodb/exonedge/internal/edge"
	"github.com/inodb/exonedge/internal/junction"
	"github.com/inodb/exonedge/internal/locus"
	"github.com/inodb/exonedge/internal/snaptron"
)

// ErrTrackUnknown is matched against resolver errors to answer 404.
var ErrTrackUnknown = errors.New("unknown track")

// TrackResolver returns the coverage source registered under name.
type TrackResolver func(name string) (abundance.TrackSource, error)

// EdgeJSON is one inferred edge in a response.
type EdgeJSON struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// EdgesResponse is the body of GET /edges/:locus.
type EdgesResponse struct {
	Locus     string     `json:"locus"`
	Threshold float64    `json:"threshold"`
	EndMode   string     `json:"end_mode"`
	Records   int        `json:"records"`
	Edges     []EdgeJSON `json:"edges"`
}

// AbundanceJSON is the abundance of one track.
type AbundanceJSON struct {
	Source string  `json:"source"`
	Value  float64 `json:"value"`
}

// AbundanceResponse is the body of GET /abundance/:locus.
type AbundanceResponse struct {
	Locus     string          `json:"locus"`
	Abundance []AbundanceJSON `json:"abundance"`
}

// ErrorResponse carries a failure message.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server holds the collaborators behind the HTTP handlers.
type Server struct {
	source        batch.JunctionSource
	opts          edge.Options
	tracks        TrackResolver
	defaultTracks []string
	logger        *zap.Logger
}

// New creates a server. tracks may be nil when no coverage is loaded.
func New(source batch.JunctionSource, opts edge.Options, tracks TrackResolver) *Server {
	return &Server{
		source: source,
		opts:   opts,
		tracks: tracks,
		logger: zap.NewNop(),
	}
}

// SetLogger sets the logger for request failures.
func (s *Server) SetLogger(l *zap.Logger) {
	s.logger = l
}

// SetDefaultTracks sets the tracks measured when a request names none.
func (s *Server) SetDefaultTracks(names []string) {
	s.defaultTracks = names
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/edges/:locus", s.handleEdges)
	r.GET("/abundance/:locus", s.handleAbundance)
	return r
}

func (s *Server) handleEdges(c *gin.Context) {
	l, err := locus.Parse(c.Param("locus"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	opts := s.opts
	if v := c.Query("threshold"); v != "" {
		opts.Threshold, err = strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid threshold: " + v})
			return
		}
	}
	if v := c.Query("end_mode"); v != "" {
		opts.Mode, err = edge.ParseEndMode(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
	}

	records, err := s.source.Fetch(c.Request.Context(), l, c.QueryArray("filter")...)
	if err != nil {
		s.logger.Warn("junction fetch failed", zap.String("locus", l.String()), zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, snaptron.ErrUpstreamFetch) || errors.Is(err, junction.ErrMalformedRecord) {
			status = http.StatusBadGateway
		}
		c.JSON(status, ErrorResponse{Error: err.Error()})
		return
	}

	edges := edge.Infer(records, opts)
	resp := EdgesResponse{
		Locus:     l.String(),
		Threshold: opts.Threshold,
		EndMode:   opts.Mode.String(),
		Records:   len(records),
		Edges:     make([]EdgeJSON, len(edges)),
	}
	for i, e := range edges {
		resp.Edges[i] = EdgeJSON{Start: e.Start, End: e.End}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAbundance(c *gin.Context) {
	l, err := locus.Parse(c.Param("locus"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	names := c.QueryArray("track")
	if len(names) == 0 {
		names = s.defaultTracks
	}
	if len(names) == 0 || s.tracks == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no coverage tracks requested"})
		return
	}

	sources := make([]abundance.TrackSource, 0, len(names))
	for _, name := range names {
		src, err := s.tracks(name)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrTrackUnknown) {
				status = http.StatusNotFound
			}
			c.JSON(status, ErrorResponse{Error: err.Error()})
			return
		}
		sources = append(sources, src)
	}

	results, err := abundance.Measure(c.Request.Context(), l, sources)
	if err != nil {
		s.logger.Warn("abundance failed", zap.String("locus", l.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	resp := AbundanceResponse{Locus: l.String(), Abundance: make([]AbundanceJSON, len(results))}
	for i, r := range results {
		resp.Abundance[i] = AbundanceJSON{Source: r.Source, Value: r.Value}
	}
	c.JSON(http.StatusOK, resp)
}
