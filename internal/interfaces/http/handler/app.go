package handler

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/application/manifest"
	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/middleware"
)

// AppIDFetcher asks Saleor for the id of the app a token belongs to
type AppIDFetcher func(ctx context.Context, saleorAPIURL, token string) (string, error)

// JWKSSource downloads the signing keys of a Saleor instance
type JWKSSource interface {
	Fetch(ctx context.Context, saleorAPIURL string) (string, error)
}

// AppHandlerConfig contains the dependencies of AppHandler
type AppHandlerConfig struct {
	Kind            string
	Manifest        manifest.Options
	APL             apl.APL
	FetchAppID      AppIDFetcher
	JWKS            JWKSSource
	AllowedDomain   *regexp.Regexp
	RequiredVersion *semver.Constraints
	Logger          *zap.Logger
}

// AppHandler serves the manifest, registration and health endpoints every app has
type AppHandler struct {
	BaseHandler
	cfg       AppHandlerConfig
	startTime time.Time
}

// NewAppHandler creates a new AppHandler
func NewAppHandler(cfg AppHandlerConfig) *AppHandler {
	return &AppHandler{
		BaseHandler: NewBaseHandler(cfg.Logger),
		cfg:         cfg,
		startTime:   time.Now(),
	}
}

// Manifest returns the app manifest Saleor reads on installation
func (h *AppHandler) Manifest(c *gin.Context) {
	m, err := manifest.Build(h.cfg.Kind, h.cfg.Manifest)
	if err != nil {
		h.Log(c).Error("Failed to build manifest", zap.Error(err))
		h.InternalError(c, "Failed to build manifest")
		return
	}
	c.JSON(http.StatusOK, m)
}

// RegisterRequest is the body Saleor posts to the token target URL
type RegisterRequest struct {
	AuthToken string `json:"auth_token"`
}

// Register stores the token Saleor issues when the app is installed
func (h *AppHandler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	saleorAPIURL := strings.TrimSpace(c.GetHeader(middleware.HeaderSaleorAPIURL))
	if saleorAPIURL == "" {
		h.BadRequest(c, "Missing saleor-api-url header")
		return
	}
	log := h.Log(c).With(zap.String("saleor_api_url", saleorAPIURL))

	if h.cfg.AllowedDomain != nil {
		parsed, err := url.Parse(saleorAPIURL)
		if err != nil || !h.cfg.AllowedDomain.MatchString(parsed.Hostname()) {
			log.Warn("Registration from a domain outside the allowed pattern")
			h.Forbidden(c, "This app cannot be installed on "+saleorAPIURL)
			return
		}
	}

	if raw := strings.TrimSpace(c.GetHeader(middleware.HeaderSaleorSchemaVersion)); raw != "" && h.cfg.RequiredVersion != nil {
		version, err := semver.NewVersion(raw)
		if err != nil {
			h.BadRequest(c, "Invalid saleor-schema-version header: "+raw)
			return
		}
		if !h.cfg.RequiredVersion.Check(version) {
			log.Warn("Saleor version does not satisfy the requirement", zap.String("saleor_version", raw))
			h.BadRequest(c, "Saleor version "+raw+" is not supported, required "+h.cfg.RequiredVersion.String())
			return
		}
	}

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AuthToken == "" {
		h.BadRequest(c, "Missing auth token")
		return
	}

	appID, err := h.cfg.FetchAppID(ctx, saleorAPIURL, req.AuthToken)
	if err != nil || appID == "" {
		log.Error("Failed to fetch the app id", zap.Error(err))
		h.InternalError(c, "Failed to fetch the app id")
		return
	}

	jwks, err := h.cfg.JWKS.Fetch(ctx, saleorAPIURL)
	if err != nil {
		log.Error("Failed to fetch JWKS", zap.Error(err))
		h.InternalError(c, "Failed to fetch JWKS")
		return
	}

	if err := h.cfg.APL.Set(ctx, apl.AuthData{
		SaleorAPIURL: saleorAPIURL,
		Token:        req.AuthToken,
		AppID:        appID,
		JWKS:         jwks,
	}); err != nil {
		log.Error("Failed to store auth data", zap.Error(err))
		h.InternalError(c, "Failed to store auth data")
		return
	}

	log.Info("App registered", zap.String("app_id", appID))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// HealthResponse is the body of the health endpoints
type HealthResponse struct {
	Status string `json:"status"`
	App    string `json:"app"`
	Uptime string `json:"uptime"`
	Error  string `json:"error,omitempty"`
}

// Healthz reports that the process is serving
func (h *AppHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, h.health("ok", ""))
}

// Readyz reports whether the APL can serve requests
func (h *AppHandler) Readyz(c *gin.Context) {
	if err := h.cfg.APL.IsReady(c.Request.Context()); err != nil {
		h.Log(c).Warn("APL is not ready", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, h.health("unavailable", err.Error()))
		return
	}
	c.JSON(http.StatusOK, h.health("ok", ""))
}

func (h *AppHandler) health(status, errMsg string) HealthResponse {
	return HealthResponse{
		Status: status,
		App:    h.cfg.Kind,
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
		Error:  errMsg,
	}
}
