package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCommand(t *testing.T) {
	before := testutil.ToFloat64(roomCommands.WithLabelValues("vote", "error"))
	ObserveCommand("vote", time.Now(), errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(roomCommands.WithLabelValues("vote", "error")))
}

func TestRoomGauge(t *testing.T) {
	before := testutil.ToFloat64(activeRooms)
	RoomLoaded()
	RoomLoaded()
	RoomUnloaded()
	assert.Equal(t, before+1, testutil.ToFloat64(activeRooms))
}

func TestHandler(t *testing.T) {
	SongFinished("SKIPPED", "vote")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "worship_songs_finished_total"))
}
