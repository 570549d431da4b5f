// Package server exposes the pool's non-routing control surface over HTTP
// (SPEC_FULL §3 "HTTP inspect/control API"), a thin Gin layer over
// internal/pool's public methods with no business logic of its own.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/procpool/procpool/internal/pool"
)

// Router provides embeddable HTTP handlers for the pool's control surface.
//
// Endpoints:
//
//	GET  {basePath}/pool/info            query: secrets=1 (include connect passwords)
//	GET  {basePath}/pool/status          process/supergroup counts, spawning flag
//	POST {basePath}/pool/detach_process  query: gupid=...
//	POST {basePath}/pool/disable_process query: gupid=...
//	POST {basePath}/pool/detach_supergroup query: name=... OR secret=...
//	POST {basePath}/pool/restart         query: app_root=...&scope=groups|supergroups
//	POST {basePath}/pool/set_max         body: {"max": n}
//	GET  {basePath}/metrics              Prometheus exposition
type Router struct {
	pool      *pool.Pool
	basePath  string
	authToken string
}

// NewRouter constructs a Router. authToken, when non-empty, is required as
// a bearer token on every request; empty disables authentication (intended
// for loopback-only deployments).
func NewRouter(p *pool.Pool, basePath, authToken string) *Router {
	return &Router{pool: p, basePath: sanitizeBase(basePath), authToken: authToken}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	if r.authToken != "" {
		g.Use(bearerAuth(r.authToken))
	}
	grp := g.Group(r.basePath)
	grp.GET("/pool/info", r.handleInfo)
	grp.GET("/pool/status", r.handleStatus)
	grp.POST("/pool/detach_process", r.handleDetachProcess)
	grp.POST("/pool/disable_process", r.handleDisableProcess)
	grp.POST("/pool/detach_supergroup", r.handleDetachSupergroup)
	grp.POST("/pool/restart", r.handleRestart)
	grp.POST("/pool/set_max", r.handleSetMax)
	g.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath, authToken string, p *pool.Pool) *http.Server {
	r := NewRouter(p, basePath, authToken)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- responses ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type statusResp struct {
	ProcessCount    int  `json:"process_count"`
	SupergroupCount int  `json:"supergroup_count"`
	IsSpawning      bool `json:"is_spawning"`
}

type setMaxReq struct {
	Max int `json:"max" binding:"required"`
}

// --- handlers ---

func (r *Router) handleInfo(c *gin.Context) {
	includeSecrets := c.Query("secrets") == "1"
	xmlBytes, err := r.pool.ToXML(includeSecrets)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", xmlBytes)
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, statusResp{
		ProcessCount:    r.pool.GetProcessCount(),
		SupergroupCount: r.pool.GetSupergroupCount(),
		IsSpawning:      r.pool.IsSpawning(),
	})
}

func (r *Router) handleDetachProcess(c *gin.Context) {
	gupid := c.Query("gupid")
	if gupid == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "gupid query param required"})
		return
	}
	if err := r.pool.DetachProcess(gupid); err != nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleDisableProcess(c *gin.Context) {
	gupid := c.Query("gupid")
	if gupid == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "gupid query param required"})
		return
	}
	result, err := r.pool.DisableProcess(gupid, nil)
	if err != nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"result": result.String()})
}

func (r *Router) handleDetachSupergroup(c *gin.Context) {
	name := c.Query("name")
	secret := c.Query("secret")
	if (name == "") == (secret == "") {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "exactly one of name, secret query param required"})
		return
	}
	var err error
	if name != "" {
		err = r.pool.DetachSupergroupByName(name)
	} else {
		err = r.pool.DetachSupergroupBySecret(secret)
	}
	if err != nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRestart(c *gin.Context) {
	appRoot := c.Query("app_root")
	if appRoot == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "app_root query param required"})
		return
	}
	scope := c.DefaultQuery("scope", "groups")
	switch scope {
	case "groups":
		r.pool.RestartGroupsByAppRoot(appRoot)
	case "supergroups":
		r.pool.RestartSupergroupsByAppRoot(appRoot)
	default:
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "scope must be 'groups' or 'supergroups'"})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleSetMax(c *gin.Context) {
	var req setMaxReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Max <= 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "max must be positive"})
		return
	}
	r.pool.SetMax(req.Max)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
