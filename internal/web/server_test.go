package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emotive-engine/groove/internal/gesture"
	"github.com/emotive-engine/groove/internal/rhythm"
	"github.com/emotive-engine/groove/internal/tempo"
)

type stubEngine struct {
	bpm        float64
	groove     *float64
	triggered  []string
	cancelled  []gesture.Handle
	handle     gesture.Handle
	triggerErr error
}

func (s *stubEngine) Estimate() tempo.Estimate {
	return tempo.Estimate{BPM: 120, Confidence: 0.8, LockStage: 3}
}

func (s *stubEngine) Hypotheses() []tempo.Estimate {
	return []tempo.Estimate{{BPM: 120, Confidence: 0.8, LockStage: 3}}
}

func (s *stubEngine) RhythmState() rhythm.State {
	return rhythm.State{BPM: 120, TargetBPM: 120, PhraseIndex: 1, BarIndex: 2, BeatIndex: 3}
}

func (s *stubEngine) ActiveGestures() []gesture.ActiveGesture { return nil }

func (s *stubEngine) GestureNames() []string { return []string{"bounce", "sway"} }

func (s *stubEngine) TriggerGesture(name string, align gesture.Alignment) (gesture.Handle, error) {
	if s.triggerErr != nil {
		return gesture.Handle{}, s.triggerErr
	}
	s.triggered = append(s.triggered, name)
	return s.handle, nil
}

func (s *stubEngine) CancelGesture(h gesture.Handle) bool {
	s.cancelled = append(s.cancelled, h)
	return true
}

func (s *stubEngine) SetBPM(v float64) float64 {
	s.bpm = v
	return v
}

func (s *stubEngine) SetGrooveConfidence(v float64) { s.groove = &v }

func (s *stubEngine) ClearGrooveConfidence() { s.groove = nil }

func newTestServer(t *testing.T) (*Server, *stubEngine) {
	t.Helper()
	handle, err := gesture.ParseHandle("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.NoError(t, err)
	eng := &stubEngine{handle: handle}
	return NewServer(eng, nil), eng
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 120.0, status.Tempo.BPM)
	assert.Equal(t, 3, status.Tempo.LockStage)
	assert.Equal(t, "1.2.3", status.Rhythm.Marker)
	assert.Len(t, status.Tempo.Hypotheses, 1)
}

func TestTriggerEndpoint(t *testing.T) {
	srv, eng := newTestServer(t)

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"gesture":"bounce","alignment":"bar"}`)
	srv.handleTrigger(rec, httptest.NewRequest(http.MethodPost, "/api/trigger", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"bounce"}, eng.triggered)

	var resp TriggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, eng.handle.String(), resp.Handle)
}

func TestTriggerRejectsUnknownGesture(t *testing.T) {
	srv, eng := newTestServer(t)
	eng.triggerErr = gesture.ErrUnknownGesture

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"gesture":"moonwalk"}`)
	srv.handleTrigger(rec, httptest.NewRequest(http.MethodPost, "/api/trigger", body))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerRequiresPost(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleTrigger(rec, httptest.NewRequest(http.MethodGet, "/api/trigger", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCancelEndpoint(t *testing.T) {
	srv, eng := newTestServer(t)

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"handle":"` + eng.handle.String() + `"}`)
	srv.handleCancel(rec, httptest.NewRequest(http.MethodPost, "/api/cancel", body))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, eng.cancelled, 1)
	assert.Equal(t, eng.handle, eng.cancelled[0])
}

func TestCancelRejectsBadHandle(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"handle":"not-a-uuid"}`)
	srv.handleCancel(rec, httptest.NewRequest(http.MethodPost, "/api/cancel", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBPMEndpoint(t *testing.T) {
	srv, eng := newTestServer(t)

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"bpm":140}`)
	srv.handleBPM(rec, httptest.NewRequest(http.MethodPost, "/api/bpm", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 140.0, eng.bpm)
}

func TestGrooveEndpointSetAndClear(t *testing.T) {
	srv, eng := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleGroove(rec, httptest.NewRequest(http.MethodPost, "/api/groove", strings.NewReader(`{"intensity":0.5}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, eng.groove)
	assert.Equal(t, 0.5, *eng.groove)

	rec = httptest.NewRecorder()
	srv.handleGroove(rec, httptest.NewRequest(http.MethodPost, "/api/groove", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, eng.groove)
}

func TestGestureNamesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleGestures(rec, httptest.NewRequest(http.MethodGet, "/api/gestures", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var names []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.Equal(t, []string{"bounce", "sway"}, names)
}
