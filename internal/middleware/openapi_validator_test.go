package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validRoomID    = "6f1c2a9e-3b47-4d2a-9a51-0c8e7f1d2b34"
	validMessageID = "a0b1c2d3-e4f5-4a6b-8c7d-9e0f1a2b3c4d"
)

func TestOpenAPIDocumentIsValid(t *testing.T) {
	doc, err := LoadOpenAPI(nil)
	require.NoError(t, err)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/rooms"},
		{http.MethodGet, "/api/v1/rooms/{id}/messages"},
		{http.MethodPost, "/api/v1/rooms/{id}/messages"},
		{http.MethodPost, "/api/v1/messages/{id}/likes"},
	}
	assert.Len(t, doc.Paths.Map(), 3)

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			item := doc.Paths.Find(route.path)
			require.NotNil(t, item, "path not documented: %s", route.path)
			op := item.GetOperation(route.method)
			require.NotNil(t, op, "operation not documented: %s %s", route.method, route.path)
			assert.NotEmpty(t, op.OperationID)
			assert.NotEmpty(t, op.Tags)
		})
	}
}

func TestLoadOpenAPI_RejectsBrokenDocument(t *testing.T) {
	dangling := `openapi: 3.0.3
info: {title: chat, version: "1"}
paths:
  /api/v1/rooms:
    get:
      responses:
        "200":
          $ref: "#/components/responses/Missing"
`
	_, err := LoadOpenAPI([]byte(dangling))
	assert.Error(t, err)

	_, err = OpenAPIValidator(OpenAPIValidatorConfig{Document: []byte("{not yaml")})
	assert.Error(t, err)
}

// newValidatedRouter mounts the validator in front of handlers that record
// whether they were reached and echo the decoded body.
func newValidatedRouter(t *testing.T, config OpenAPIValidatorConfig) (http.Handler, *int) {
	t.Helper()
	validator, err := OpenAPIValidator(config)
	require.NoError(t, err)

	reached := 0
	echo := func(status int) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			reached++
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(body)
		}
	}

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(validator)
		r.Get("/rooms", func(w http.ResponseWriter, r *http.Request) {
			reached++
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"rooms":[]}`))
		})
		r.Get("/rooms/{id}/messages", echo(http.StatusOK))
		r.Post("/rooms/{id}/messages", echo(http.StatusCreated))
		r.Post("/messages/{id}/likes", echo(http.StatusOK))
	})
	return r, &reached
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestOpenAPIValidator_RejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name    string
		req     *http.Request
		wantErr string
	}{
		{
			name:    "room id is not a uuid",
			req:     httptest.NewRequest(http.MethodGet, "/api/v1/rooms/lobby/messages", nil),
			wantErr: `Invalid path parameter "id"`,
		},
		{
			name:    "send to room id that is not a uuid",
			req:     jsonRequest(http.MethodPost, "/api/v1/rooms/x/messages", `{"content":"gg"}`),
			wantErr: `Invalid path parameter "id"`,
		},
		{
			name:    "reply_to is not a uuid",
			req:     jsonRequest(http.MethodPost, "/api/v1/rooms/"+validRoomID+"/messages", `{"content":"gg","reply_to":"y"}`),
			wantErr: "Invalid request body",
		},
		{
			name:    "content missing",
			req:     jsonRequest(http.MethodPost, "/api/v1/rooms/"+validRoomID+"/messages", `{"reply_to":"`+validMessageID+`"}`),
			wantErr: "Invalid request body",
		},
		{
			name:    "content empty",
			req:     jsonRequest(http.MethodPost, "/api/v1/rooms/"+validRoomID+"/messages", `{"content":""}`),
			wantErr: "Invalid request body",
		},
		{
			name:    "body missing",
			req:     jsonRequest(http.MethodPost, "/api/v1/rooms/"+validRoomID+"/messages", ""),
			wantErr: "Invalid request body",
		},
		{
			name:    "message id is not a uuid",
			req:     jsonRequest(http.MethodPost, "/api/v1/messages/m1/likes", `{"likes":1}`),
			wantErr: `Invalid path parameter "id"`,
		},
		{
			name:    "negative likes",
			req:     jsonRequest(http.MethodPost, "/api/v1/messages/"+validMessageID+"/likes", `{"likes":-1}`),
			wantErr: "Invalid request body",
		},
		{
			name:    "likes not an integer",
			req:     jsonRequest(http.MethodPost, "/api/v1/messages/"+validMessageID+"/likes", `{"likes":"3"}`),
			wantErr: "Invalid request body",
		},
		{
			name:    "likes missing",
			req:     jsonRequest(http.MethodPost, "/api/v1/messages/"+validMessageID+"/likes", `{}`),
			wantErr: "Invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, reached := newValidatedRouter(t, OpenAPIValidatorConfig{})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, tt.req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			var body map[string]string
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.wantErr, body["error"])
			assert.Zero(t, *reached, "handler must not run for an invalid request")
		})
	}
}

func TestOpenAPIValidator_PassesValidRequests(t *testing.T) {
	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
	}{
		{
			name:       "list rooms",
			req:        httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil),
			wantStatus: http.StatusOK,
		},
		{
			name:       "list messages",
			req:        httptest.NewRequest(http.MethodGet, "/api/v1/rooms/"+validRoomID+"/messages", nil),
			wantStatus: http.StatusOK,
		},
		{
			name:       "send reply",
			req:        jsonRequest(http.MethodPost, "/api/v1/rooms/"+validRoomID+"/messages", `{"content":"gg","reply_to":"`+validMessageID+`"}`),
			wantStatus: http.StatusCreated,
		},
		{
			name:       "zero likes",
			req:        jsonRequest(http.MethodPost, "/api/v1/messages/"+validMessageID+"/likes", `{"likes":0}`),
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, reached := newValidatedRouter(t, OpenAPIValidatorConfig{})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, tt.req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, 1, *reached)
		})
	}
}

func TestOpenAPIValidator_BodyStillReadable(t *testing.T) {
	router, _ := newValidatedRouter(t, OpenAPIValidatorConfig{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPost, "/api/v1/rooms/"+validRoomID+"/messages", `{"content":"glhf"}`))

	require.Equal(t, http.StatusCreated, w.Code)
	var echoed map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&echoed))
	assert.Equal(t, "glhf", echoed["content"])
}

func TestOpenAPIValidator_UndocumentedRoutePassesThrough(t *testing.T) {
	router, reached := newValidatedRouter(t, OpenAPIValidatorConfig{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, *reached)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/rooms", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestOpenAPIValidator_ResponseValidationKeepsResponse(t *testing.T) {
	router, reached := newValidatedRouter(t, OpenAPIValidatorConfig{ValidateResponses: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPost, "/api/v1/messages/"+validMessageID+"/likes", `{"likes":4}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, *reached)
	assert.JSONEq(t, `{"likes":4}`, w.Body.String())
}
