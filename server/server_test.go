package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/openidx/scimcore/config"
	"github.com/openidx/scimcore/internal/inmem"
	"github.com/openidx/scimcore/registry"
	"github.com/openidx/scimcore/resources"
	"github.com/openidx/scimcore/schemas"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func defaultProvider() config.ServiceProvider {
	return config.ServiceProvider{
		Patch:  config.FeatureConfig{Supported: true},
		Filter: config.FilterConfig{Supported: true, MaxResults: 200},
		Sort:   config.FeatureConfig{Supported: true},
	}
}

func newTestRouter(t *testing.T, provider config.ServiceProvider) *gin.Engine {
	t.Helper()

	reg := registry.New()
	require.NoError(t, reg.DeclareResourceType(registry.ResourceTypeDecl{
		Name:        "User",
		Description: "User Account",
		Endpoint:    "/Users",
		Definition:  schemas.User,
	}))

	service := resources.NewService(reg, inmem.New(), "http://localhost:8080/scim/v2")
	srv := New(service, reg, provider, "http://localhost:8080/scim/v2", zaptest.NewLogger(t))

	router := gin.New()
	srv.RegisterRoutes(router)
	return router
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", ContentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func createUser(t *testing.T, router *gin.Engine, userName string) map[string]any {
	t.Helper()
	w := doJSON(router, http.MethodPost, "/scim/v2/Users", map[string]any{
		"schemas":  []string{schemas.UserURN},
		"userName": userName,
		"title":    "Engineer",
		"password": "hunter2",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeJSON(t, w)
}

func TestServer_CreateUser(t *testing.T) {
	router := newTestRouter(t, defaultProvider())

	created := createUser(t, router, "jdoe@example.com")

	assert.Equal(t, "jdoe@example.com", created["userName"])
	assert.NotEmpty(t, created["id"])
	assert.NotContains(t, created, "password")

	meta, ok := created["meta"].(map[string]any)
	require.True(t, ok)
	location := fmt.Sprintf("http://localhost:8080/scim/v2/Users/%s", created["id"])
	assert.Equal(t, location, meta["location"])
	assert.Equal(t, "User", meta["resourceType"])
}

func TestServer_CreateHeaders(t *testing.T) {
	router := newTestRouter(t, defaultProvider())

	w := doJSON(router, http.MethodPost, "/scim/v2/Users", map[string]any{
		"schemas":  []string{schemas.UserURN},
		"userName": "jdoe@example.com",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), ContentType)
	assert.Contains(t, w.Header().Get("Location"), "/scim/v2/Users/")
}

func TestServer_CreateRejectsMalformedJSON(t *testing.T) {
	router := newTestRouter(t, defaultProvider())

	req := httptest.NewRequest(http.MethodPost, "/scim/v2/Users", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", ContentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, "400", body["status"])
	assert.Equal(t, "invalidSyntax", body["scimType"])
}

func TestServer_CreateRejectsMissingRequired(t *testing.T) {
	router := newTestRouter(t, defaultProvider())

	w := doJSON(router, http.MethodPost, "/scim/v2/Users", map[string]any{
		"schemas": []string{schemas.UserURN},
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, "invalidValue", body["scimType"])
	assert.Contains(t, body["detail"], "userName")
}

func TestServer_ReadUser(t *testing.T) {
	router := newTestRouter(t, defaultProvider())
	created := createUser(t, router, "jdoe@example.com")

	w := doJSON(router, http.MethodGet, fmt.Sprintf("/scim/v2/Users/%s", created["id"]), nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, created["id"], body["id"])
	assert.Equal(t, "jdoe@example.com", body["userName"])
}

func TestServer_ReadUnknownUser(t *testing.T) {
	router := newTestRouter(t, defaultProvider())

	w := doJSON(router, http.MethodGet, "/scim/v2/Users/nope", nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, "404", body["status"])
}

func TestServer_QueryUsers(t *testing.T) {
	router := newTestRouter(t, defaultProvider())
	createUser(t, router, "jdoe@example.com")
	createUser(t, router, "asmith@example.com")

	query := url.Values{}
	query.Set("filter", `userName sw "jdoe"`)
	query.Set("attributes", "userName")
	w := doJSON(router, http.MethodGet, "/scim/v2/Users?"+query.Encode(), nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, float64(1), body["totalResults"])

	results, ok := body["Resources"].([]any)
	require.True(t, ok)
	require.Len(t, results, 1)
	record := results[0].(map[string]any)
	assert.Equal(t, "jdoe@example.com", record["userName"])
	assert.NotContains(t, record, "title")
}

func TestServer_QueryRejectsBadFilter(t *testing.T) {
	router := newTestRouter(t, defaultProvider())

	query := url.Values{}
	query.Set("filter", `userName eq`)
	w := doJSON(router, http.MethodGet, "/scim/v2/Users?"+query.Encode(), nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, "invalidFilter", body["scimType"])
}

func TestServer_ReplaceUser(t *testing.T) {
	router := newTestRouter(t, defaultProvider())
	created := createUser(t, router, "jdoe@example.com")

	w := doJSON(router, http.MethodPut, fmt.Sprintf("/scim/v2/Users/%s", created["id"]), map[string]any{
		"schemas":  []string{schemas.UserURN},
		"userName": "jdoe@example.com",
		"title":    "Manager",
	})

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, created["id"], body["id"])
	assert.Equal(t, "Manager", body["title"])
}

func TestServer_PatchUser(t *testing.T) {
	router := newTestRouter(t, defaultProvider())
	created := createUser(t, router, "jdoe@example.com")

	w := doJSON(router, http.MethodPatch, fmt.Sprintf("/scim/v2/Users/%s", created["id"]), map[string]any{
		"schemas": []string{"urn:ietf:params:scim:api:messages:2.0:PatchOp"},
		"Operations": []any{
			map[string]any{"op": "replace", "path": "title", "value": "Manager"},
		},
	})

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, "Manager", body["title"])
}

func TestServer_PatchWithoutNetChange(t *testing.T) {
	router := newTestRouter(t, defaultProvider())
	created := createUser(t, router, "jdoe@example.com")

	w := doJSON(router, http.MethodPatch, fmt.Sprintf("/scim/v2/Users/%s", created["id"]), map[string]any{
		"schemas": []string{"urn:ietf:params:scim:api:messages:2.0:PatchOp"},
		"Operations": []any{
			map[string]any{"op": "replace", "path": "title", "value": "Engineer"},
		},
	})

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestServer_PatchUnsupported(t *testing.T) {
	provider := defaultProvider()
	provider.Patch.Supported = false
	router := newTestRouter(t, provider)
	created := createUser(t, router, "jdoe@example.com")

	w := doJSON(router, http.MethodPatch, fmt.Sprintf("/scim/v2/Users/%s", created["id"]), map[string]any{
		"schemas": []string{"urn:ietf:params:scim:api:messages:2.0:PatchOp"},
		"Operations": []any{
			map[string]any{"op": "replace", "path": "title", "value": "Manager"},
		},
	})

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestServer_DeleteUser(t *testing.T) {
	router := newTestRouter(t, defaultProvider())
	created := createUser(t, router, "jdoe@example.com")

	w := doJSON(router, http.MethodDelete, fmt.Sprintf("/scim/v2/Users/%s", created["id"]), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(router, http.MethodGet, fmt.Sprintf("/scim/v2/Users/%s", created["id"]), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ============================================================
// Discovery Endpoints
// ============================================================

func TestServer_ServiceProviderConfig(t *testing.T) {
	provider := defaultProvider()
	provider.DocumentationURI = "https://example.com/docs"
	router := newTestRouter(t, provider)

	w := doJSON(router, http.MethodGet, "/scim/v2/ServiceProviderConfig", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, "https://example.com/docs", body["documentationUri"])
	assert.Equal(t, map[string]any{"supported": true}, body["patch"])
	assert.Equal(t, map[string]any{"supported": false}, body["etag"])

	meta := body["meta"].(map[string]any)
	assert.Equal(t, "ServiceProviderConfig", meta["resourceType"])
	assert.Equal(t, "http://localhost:8080/scim/v2/ServiceProviderConfig", meta["location"])
}

func TestServer_ResourceTypes(t *testing.T) {
	router := newTestRouter(t, defaultProvider())

	w := doJSON(router, http.MethodGet, "/scim/v2/ResourceTypes", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, float64(1), body["totalResults"])

	results := body["Resources"].([]any)
	require.Len(t, results, 1)
	doc := results[0].(map[string]any)
	assert.Equal(t, "User", doc["name"])
	assert.Equal(t, "/Users", doc["endpoint"])
	assert.Equal(t, schemas.UserURN, doc["schema"])
}

func TestServer_Schemas(t *testing.T) {
	router := newTestRouter(t, defaultProvider())

	w := doJSON(router, http.MethodGet, "/scim/v2/Schemas", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)

	results := body["Resources"].([]any)
	require.NotEmpty(t, results)
	doc := results[0].(map[string]any)
	assert.Equal(t, schemas.UserURN, doc["id"])
	assert.Equal(t, "User", doc["name"])
}

// ============================================================
// Authentication Middleware
// ============================================================

func authedRouter(t *testing.T, cfg AuthConfig) *gin.Engine {
	t.Helper()
	router := gin.New()
	router.Use(AuthMiddleware(cfg, zaptest.NewLogger(t)))
	router.GET("/probe", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": c.GetString("subject")})
	})
	return router
}

func probe(router *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_DisabledWithoutCredentials(t *testing.T) {
	router := authedRouter(t, AuthConfig{})
	assert.Equal(t, http.StatusOK, probe(router, "").Code)
}

func TestAuthMiddleware_StaticToken(t *testing.T) {
	router := authedRouter(t, AuthConfig{BearerToken: "provision-me"})

	assert.Equal(t, http.StatusOK, probe(router, "provision-me").Code)
	assert.Equal(t, http.StatusUnauthorized, probe(router, "wrong").Code)

	w := probe(router, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Bearer realm="scim"`, w.Header().Get("WWW-Authenticate"))
}

func TestAuthMiddleware_JWT(t *testing.T) {
	secret := "signing-secret"
	router := authedRouter(t, AuthConfig{JWTSecret: secret})

	claims := jwt.MapClaims{
		"sub": "provisioner@example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	w := probe(router, token)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, "provisioner@example.com", body["subject"])
}

func TestAuthMiddleware_JWTBadSignature(t *testing.T) {
	router := authedRouter(t, AuthConfig{JWTSecret: "signing-secret"})

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "provisioner@example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("another-secret"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, probe(router, token).Code)
}

func TestAuthMiddleware_JWTExpired(t *testing.T) {
	secret := "signing-secret"
	router := authedRouter(t, AuthConfig{JWTSecret: secret})

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "provisioner@example.com",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, probe(router, token).Code)
}
