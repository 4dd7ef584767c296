package ipenrich_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jycamier/chatfanout/backend/internal/chatmodel"
	"github.com/jycamier/chatfanout/backend/internal/ipenrich"
	"github.com/jycamier/chatfanout/backend/internal/store/storetest"
)

func TestHTTPEnricherSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":      "success",
			"isp":         "ExampleISP",
			"country":     "France",
			"countryCode": "FR",
			"regionName":  "Ile-de-France",
			"city":        "Paris",
		})
	}))
	defer srv.Close()

	e := ipenrich.NewHTTPEnricher(srv.URL + "/%s")
	addr, err := e.Enrich(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	require.NotNil(t, addr)
	assert.Equal(t, "ExampleISP", addr.ISP)
	assert.Equal(t, "Paris", addr.City)
	assert.True(t, addr.Enriched())
}

func TestHTTPEnricherNonSuccessIsTolerated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "fail"})
	}))
	defer srv.Close()

	e := ipenrich.NewHTTPEnricher(srv.URL + "/%s")
	addr, err := e.Enrich(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.Nil(t, addr)
}

func TestHTTPEnricherBlankTemplateDisables(t *testing.T) {
	e := ipenrich.NewHTTPEnricher("")
	addr, err := e.Enrich(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.Nil(t, addr)
}

func TestWorkerTrackRecordsBareIPWhenEnricherDisabled(t *testing.T) {
	st := storetest.New()
	user := chatmodel.User{ID: uuid.New(), Username: "alice"}
	st.AddUser(user)

	w := ipenrich.New(st, ipenrich.NewHTTPEnricher(""))
	w.Track(context.Background(), user.ID, "9.9.9.9")

	addr, err := st.GetOrCreateIP(context.Background(), "9.9.9.9", nil)
	require.NoError(t, err)
	assert.Equal(t, "9.9.9.9", addr.IP)
	assert.False(t, addr.Enriched())
}
