package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/api"
	"github.com/BaSui01/roundtable/config"
)

func TestPersonaHandler(t *testing.T) {
	catalog, err := config.NewCatalog(testPersonas, zap.NewNop())
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewPersonaHandler(catalog, nil).Register(mux)

	t.Run("list", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/personas", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var list api.PersonaListResponse
		decodeData(t, w, &list)
		require.Equal(t, 3, list.Total)
		assert.Equal(t, "alice", list.Personas[0].ID)
		assert.Equal(t, "openai", list.Personas[0].Provider)
		assert.Equal(t, "gpt-4o-mini", list.Personas[0].Model)
	})

	t.Run("get", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/personas/bob", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var p api.PersonaResponse
		decodeData(t, w, &p)
		assert.Equal(t, "Bob", p.Name)
		assert.Equal(t, "gemini", p.Provider)
	})

	t.Run("missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/personas/ghost", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
