package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-validator/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-validator/pkg/errors"
)

type tokenStub struct {
	claims *models.JWTClaims
}

func (s tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

type observerStub struct {
	method string
	path   string
	status int
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	o.method, o.path, o.status = method, path, status
}

func protectedRouter(roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	tokens := tokenStub{claims: &models.JWTClaims{UserID: "u-1", Role: models.RoleAdmin}}
	router.PATCH("/constraints/:id", JWT(tokens), RequireRoles(roles...), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	router.GET("/open", OptionalJWT(tokens), func(c *gin.Context) {
		if _, ok := c.Get(ContextUserKey); ok {
			c.Status(http.StatusOK)
			return
		}
		c.Status(http.StatusNoContent)
	})
	return router
}

func serve(router *gin.Engine, method, path, auth string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestJWTRequiresBearerToken(t *testing.T) {
	router := protectedRouter(models.RoleAdmin)

	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodPatch, "/constraints/x", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodPatch, "/constraints/x", "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodPatch, "/constraints/x", "Bearer nope").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodPatch, "/constraints/x", "Bearer good").Code)
}

func TestRequireRolesRejectsOtherRoles(t *testing.T) {
	router := protectedRouter(models.RoleSuperAdmin)
	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodPatch, "/constraints/x", "Bearer good").Code)
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	RequireRoles(models.RoleAdmin)(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	router := protectedRouter()
	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodGet, "/open", "").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodGet, "/open", "Bearer nope").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/open", "Bearer good").Code)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &observerStub{}
	router := gin.New()
	router.Use(Metrics(observer))
	router.GET("/validation/runs/:id", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	serve(router, http.MethodGet, "/validation/runs/abc", "")
	assert.Equal(t, http.MethodGet, observer.method)
	assert.Equal(t, "/validation/runs/:id", observer.path)
	assert.Equal(t, http.StatusAccepted, observer.status)

	serve(router, http.MethodGet, "/missing", "")
	assert.Equal(t, "unmatched", observer.path)
}

func TestResponseMetaRecordsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var meta map[string]interface{}
	router := gin.New()
	router.Use(WithResponseMeta())
	router.GET("/", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	serve(router, http.MethodGet, "/", "")
	require.NotNil(t, meta)
	assert.Equal(t, true, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestSetCacheHitWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, ExtractMeta(c))
	SetCacheHit(c, false)
	assert.Equal(t, false, ExtractMeta(c)["cache_hit"])
}
