package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	feedapp "github.com/trieb-work/saleor-apps/internal/application/productsfeed"
	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	domain "github.com/trieb-work/saleor-apps/internal/domain/productsfeed"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/logger"
)

// ProductsFeedService is the part of the products feed app the handlers use
type ProductsFeedService interface {
	GetFeed(ctx context.Context, authData *apl.AuthData, channelSlug string) (*feedapp.FeedResult, error)
	GetConfig(ctx context.Context, authData *apl.AuthData) (*feedapp.ConfigView, error)
	SetS3(ctx context.Context, authData *apl.AuthData, s3 domain.S3Config) (*feedapp.ConfigView, error)
	SetAttributeMapping(ctx context.Context, authData *apl.AuthData, m domain.AttributeMapping) (*feedapp.ConfigView, error)
	SetChannelUrls(ctx context.Context, authData *apl.AuthData, channelSlug string, urls domain.ChannelURLs) (*feedapp.ConfigView, error)
	SetImageSize(ctx context.Context, authData *apl.AuthData, size int) (*feedapp.ConfigView, error)
	SetTitleTemplate(ctx context.Context, authData *apl.AuthData, tpl string) (*feedapp.TitlePreview, error)
}

// ProductsFeedHandler serves the Google feed and the feed configuration API
type ProductsFeedHandler struct {
	BaseHandler
	service ProductsFeedService
	apl     apl.APL
}

// NewProductsFeedHandler creates a new ProductsFeedHandler. The feed route
// is public, so the installation is looked up from the URL.
func NewProductsFeedHandler(service ProductsFeedService, store apl.APL, log *zap.Logger) *ProductsFeedHandler {
	return &ProductsFeedHandler{BaseHandler: NewBaseHandler(log), service: service, apl: store}
}

// FeedURLPath is the public feed path of a channel.
func FeedURLPath(saleorAPIURL, channelSlug string) string {
	return "/api/feed/" + base64.RawURLEncoding.EncodeToString([]byte(saleorAPIURL)) + "/" + channelSlug + "/google.xml"
}

func decodeSaleorAPIURL(encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// GetFeed redirects to a presigned URL of the channel feed.
func (h *ProductsFeedHandler) GetFeed(c *gin.Context) {
	saleorAPIURL, err := decodeSaleorAPIURL(c.Param("saleorApiUrl"))
	if err != nil || saleorAPIURL == "" {
		h.BadRequest(c, "Invalid saleorApiUrl path parameter")
		return
	}
	channel := c.Param("channel")
	ctx := logger.WithChannel(logger.WithTenant(c.Request.Context(), saleorAPIURL), channel)
	c.Request = c.Request.WithContext(ctx)

	authData, err := h.apl.Get(ctx, saleorAPIURL)
	if err != nil {
		if errors.Is(err, apl.ErrAuthDataNotFound) {
			h.NotFound(c, "The app is not installed for "+saleorAPIURL)
			return
		}
		h.HandleError(c, err)
		return
	}

	result, err := h.service.GetFeed(ctx, authData, channel)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Log(c).Info("Redirecting to feed",
		zap.Bool("regenerated", result.Regenerated),
		zap.Int("items", result.Items),
	)
	c.Redirect(http.StatusFound, result.URL)
}

// GetConfig returns the feed configuration with a masked S3 secret
// @Summary      Get feed configuration
// @Description  Feed configuration with a masked S3 secret
// @Tags         products-feed
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Success      200 {object} dto.Response{data=feedapp.ConfigView}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/products-feed/config [get]
func (h *ProductsFeedHandler) GetConfig(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	view, err := h.service.GetConfig(c.Request.Context(), authData)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}

// SetS3 checks bucket access and stores the S3 settings
// @Summary      Set S3 bucket
// @Description  Checks bucket access and stores the S3 settings
// @Tags         products-feed
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        request body domain.S3Config true "S3 settings"
// @Success      200 {object} dto.Response{data=feedapp.ConfigView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/products-feed/s3 [put]
func (h *ProductsFeedHandler) SetS3(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var req domain.S3Config
	if !h.bindJSON(c, &req) {
		return
	}
	h.reply(c)(h.service.SetS3(c.Request.Context(), authData, req))
}

// SetAttributeMapping stores the attribute mapping
// @Summary      Set attribute mapping
// @Description  Stores the attribute ids read for brand, color, size and the other feed fields
// @Tags         products-feed
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        request body domain.AttributeMapping true "Attribute mapping"
// @Success      200 {object} dto.Response{data=feedapp.ConfigView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/products-feed/attribute-mapping [put]
func (h *ProductsFeedHandler) SetAttributeMapping(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var req domain.AttributeMapping
	if !h.bindJSON(c, &req) {
		return
	}
	h.reply(c)(h.service.SetAttributeMapping(c.Request.Context(), authData, req))
}

// ChannelURLsResponse is the configuration after a channel update with the feed path of that channel
type ChannelURLsResponse struct {
	Config  *feedapp.ConfigView `json:"config"`
	FeedURL string              `json:"feedUrl"`
}

// SetChannelUrls stores the storefront URLs of a channel
// @Summary      Set channel storefront URLs
// @Description  Stores the storefront URL templates of a channel and returns the feed URL
// @Tags         products-feed
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        slug path string true "Channel slug"
// @Param        request body domain.ChannelURLs true "Storefront URLs"
// @Success      200 {object} dto.Response{data=ChannelURLsResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/products-feed/channels/{slug} [put]
func (h *ProductsFeedHandler) SetChannelUrls(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var req domain.ChannelURLs
	if !h.bindJSON(c, &req) {
		return
	}
	view, err := h.service.SetChannelUrls(c.Request.Context(), authData, c.Param("slug"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ChannelURLsResponse{
		Config:  view,
		FeedURL: FeedURLPath(authData.SaleorAPIURL, c.Param("slug")),
	})
}

// ImageSizeRequest sets the thumbnail size of feed images
type ImageSizeRequest struct {
	ImageSize int `json:"imageSize" binding:"required,min=1"`
}

// SetImageSize stores the image size
// @Summary      Set image size
// @Description  Stores the thumbnail size of feed images
// @Tags         products-feed
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        request body ImageSizeRequest true "Image size"
// @Success      200 {object} dto.Response{data=feedapp.ConfigView}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/products-feed/image-size [put]
func (h *ProductsFeedHandler) SetImageSize(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var req ImageSizeRequest
	if !h.bindJSON(c, &req) {
		return
	}
	h.reply(c)(h.service.SetImageSize(c.Request.Context(), authData, req.ImageSize))
}

// TitleTemplateRequest sets the item title template
type TitleTemplateRequest struct {
	TitleTemplate string `json:"titleTemplate" binding:"required"`
}

// SetTitleTemplate stores the title template and returns a preview
// @Summary      Set title template
// @Description  Stores the item title template and returns its rendering for an example variant
// @Tags         products-feed
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        request body TitleTemplateRequest true "Title template"
// @Success      200 {object} dto.Response{data=feedapp.TitlePreview}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/products-feed/title-template [put]
func (h *ProductsFeedHandler) SetTitleTemplate(c *gin.Context) {
	authData := h.authData(c)
	if authData == nil {
		return
	}
	var req TitleTemplateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	preview, err := h.service.SetTitleTemplate(c.Request.Context(), authData, req.TitleTemplate)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, preview)
}

// PreviewTitle renders a title template against an example variant
// @Summary      Preview title template
// @Description  Renders a title template for an example variant without storing it
// @Tags         products-feed
// @Accept       json
// @Produce      json
// @Param        Saleor-Api-Url header string true "GraphQL endpoint of the Saleor instance"
// @Param        request body TitleTemplateRequest true "Title template"
// @Success      200 {object} dto.Response{data=feedapp.TitlePreview}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     DashboardToken
// @Router       /api/products-feed/title-template/preview [post]
func (h *ProductsFeedHandler) PreviewTitle(c *gin.Context) {
	var req TitleTemplateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	preview, err := feedapp.PreviewTitle(req.TitleTemplate)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, feedapp.TitlePreview{Template: req.TitleTemplate, Preview: preview})
}

func (h *ProductsFeedHandler) reply(c *gin.Context) func(*feedapp.ConfigView, error) {
	return func(view *feedapp.ConfigView, err error) {
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, view)
	}
}
