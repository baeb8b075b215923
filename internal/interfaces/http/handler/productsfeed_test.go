package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	feedapp "github.com/trieb-work/saleor-apps/internal/application/productsfeed"
	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/domain/apl/apltest"
	domain "github.com/trieb-work/saleor-apps/internal/domain/productsfeed"
	"github.com/trieb-work/saleor-apps/internal/domain/shared"
)

type MockProductsFeedService struct {
	mock.Mock
}

func (m *MockProductsFeedService) view(args mock.Arguments) (*feedapp.ConfigView, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*feedapp.ConfigView), args.Error(1)
}

func (m *MockProductsFeedService) GetFeed(ctx context.Context, authData *apl.AuthData, channelSlug string) (*feedapp.FeedResult, error) {
	args := m.Called(ctx, authData, channelSlug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*feedapp.FeedResult), args.Error(1)
}

func (m *MockProductsFeedService) GetConfig(ctx context.Context, authData *apl.AuthData) (*feedapp.ConfigView, error) {
	return m.view(m.Called(ctx, authData))
}

func (m *MockProductsFeedService) SetS3(ctx context.Context, authData *apl.AuthData, s3 domain.S3Config) (*feedapp.ConfigView, error) {
	return m.view(m.Called(ctx, authData, s3))
}

func (m *MockProductsFeedService) SetAttributeMapping(ctx context.Context, authData *apl.AuthData, mapping domain.AttributeMapping) (*feedapp.ConfigView, error) {
	return m.view(m.Called(ctx, authData, mapping))
}

func (m *MockProductsFeedService) SetChannelUrls(ctx context.Context, authData *apl.AuthData, channelSlug string, urls domain.ChannelURLs) (*feedapp.ConfigView, error) {
	return m.view(m.Called(ctx, authData, channelSlug, urls))
}

func (m *MockProductsFeedService) SetImageSize(ctx context.Context, authData *apl.AuthData, size int) (*feedapp.ConfigView, error) {
	return m.view(m.Called(ctx, authData, size))
}

func (m *MockProductsFeedService) SetTitleTemplate(ctx context.Context, authData *apl.AuthData, tpl string) (*feedapp.TitlePreview, error) {
	args := m.Called(ctx, authData, tpl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*feedapp.TitlePreview), args.Error(1)
}

func TestFeedURLPath(t *testing.T) {
	path := FeedURLPath(testSaleorAPIURL, "default-channel")
	assert.Equal(t, "/api/feed/aHR0cHM6Ly9kZW1vLnNhbGVvci5jbG91ZC9ncmFwaHFsLw/default-channel/google.xml", path)

	decoded, err := decodeSaleorAPIURL("aHR0cHM6Ly9kZW1vLnNhbGVvci5jbG91ZC9ncmFwaHFsLw")
	require.NoError(t, err)
	assert.Equal(t, testSaleorAPIURL, decoded)

	// Padded input from other encoders is accepted.
	decoded, err = decodeSaleorAPIURL("aHR0cHM6Ly9kZW1vLnNhbGVvci5jbG91ZC9ncmFwaHFsLw==")
	require.NoError(t, err)
	assert.Equal(t, testSaleorAPIURL, decoded)
}

func feedEngine(service ProductsFeedService, store apl.APL) *gin.Engine {
	engine := gin.New()
	engine.GET("/api/feed/:saleorApiUrl/:channel/google.xml", NewProductsFeedHandler(service, store, nil).GetFeed)
	return engine
}

func getFeed(engine *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestProductsFeedHandler_GetFeed(t *testing.T) {
	t.Run("redirects to the stored feed", func(t *testing.T) {
		service := new(MockProductsFeedService)
		service.On("GetFeed", mock.Anything, mock.MatchedBy(func(a *apl.AuthData) bool {
			return a.SaleorAPIURL == testSaleorAPIURL
		}), "default-channel").Return(&feedapp.FeedResult{
			URL:   "https://feeds.s3.amazonaws.com/demo.saleor.cloud/default-channel/google.xml?X-Amz-Signature=abc",
			Items: 12,
		}, nil)

		w := getFeed(feedEngine(service, apltest.NewMemory(*testAuthData())), FeedURLPath(testSaleorAPIURL, "default-channel"))

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Contains(t, w.Header().Get("Location"), "X-Amz-Signature=abc")
		service.AssertExpectations(t)
	})

	t.Run("unknown installation", func(t *testing.T) {
		service := new(MockProductsFeedService)
		w := getFeed(feedEngine(service, apltest.NewMemory()), FeedURLPath(testSaleorAPIURL, "default-channel"))

		assert.Equal(t, http.StatusNotFound, w.Code)
		service.AssertNotCalled(t, "GetFeed", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("malformed api url", func(t *testing.T) {
		w := getFeed(feedEngine(new(MockProductsFeedService), apltest.NewMemory()), "/api/feed/%21%21%21/default-channel/google.xml")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("apl unavailable", func(t *testing.T) {
		store := apltest.NewMemory()
		store.Err = errors.New("redis: connection refused")
		w := getFeed(feedEngine(new(MockProductsFeedService), store), FeedURLPath(testSaleorAPIURL, "default-channel"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("missing configuration", func(t *testing.T) {
		service := new(MockProductsFeedService)
		service.On("GetFeed", mock.Anything, mock.Anything, "default-channel").
			Return(nil, shared.NewClientError("NO_S3_CONFIGURATION", "S3 bucket is not configured", nil))

		w := getFeed(feedEngine(service, apltest.NewMemory(*testAuthData())), FeedURLPath(testSaleorAPIURL, "default-channel"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestProductsFeedHandler_SetChannelUrls(t *testing.T) {
	service := new(MockProductsFeedService)
	urls := domain.ChannelURLs{StorefrontURL: "https://shop.example.com", ProductStorefrontURL: "https://shop.example.com/p/{productSlug}"}
	service.On("SetChannelUrls", mock.Anything, mock.Anything, "default-channel", urls).
		Return(&feedapp.ConfigView{ImageSize: 1024}, nil)

	c, w := webhookContext(http.MethodPut, "/api/products-feed/channels/default-channel",
		`{"storefrontUrl":"https://shop.example.com","productStorefrontUrl":"https://shop.example.com/p/{productSlug}"}`)
	c.AddParam("slug", "default-channel")
	NewProductsFeedHandler(service, apltest.NewMemory(), nil).SetChannelUrls(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), FeedURLPath(testSaleorAPIURL, "default-channel"))
	service.AssertExpectations(t)
}

func TestProductsFeedHandler_SetImageSize(t *testing.T) {
	t.Run("rejects a zero size", func(t *testing.T) {
		service := new(MockProductsFeedService)
		c, w := webhookContext(http.MethodPut, "/api/products-feed/image-size", `{"imageSize":0}`)
		NewProductsFeedHandler(service, apltest.NewMemory(), nil).SetImageSize(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		service.AssertNotCalled(t, "SetImageSize", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("stores the size", func(t *testing.T) {
		service := new(MockProductsFeedService)
		service.On("SetImageSize", mock.Anything, mock.Anything, 512).Return(&feedapp.ConfigView{ImageSize: 512}, nil)

		c, w := webhookContext(http.MethodPut, "/api/products-feed/image-size", `{"imageSize":512}`)
		NewProductsFeedHandler(service, apltest.NewMemory(), nil).SetImageSize(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decodeResponse(t, w).Success)
	})
}
