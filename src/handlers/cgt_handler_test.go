package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/sharepool/src/models"
	"github.com/username/sharepool/src/processors"
	"github.com/username/sharepool/src/services"
)

// stubUploadService hands every request the same result instance, like the
// report cache does for concurrent requests from one user.
type stubUploadService struct {
	result *processors.RunResult
}

func (s *stubUploadService) ProcessUpload(io.Reader, int64, string) (*processors.RunResult, error) {
	return s.result, nil
}
func (s *stubUploadService) GetReport(int64) (*processors.RunResult, error) { return s.result, nil }
func (s *stubUploadService) GetEvents(int64) ([]models.EventRecord, error)  { return nil, nil }
func (s *stubUploadService) AddExercise(int64, services.ExerciseEntry) (*models.EventRecord, error) {
	return nil, nil
}
func (s *stubUploadService) DeleteAllEvents(int64) error { return nil }
func (s *stubUploadService) InvalidateUserCache(int64)   {}
func (s *stubUploadService) ReloadMarketData() error     { return nil }

func authedRequest(t *testing.T, target string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return req.WithContext(context.WithValue(req.Context(), userIDContextKey, int64(1)))
}

func TestHandleGetReport_DoesNotMutateSharedResult(t *testing.T) {
	// A result with nil slices, as an older cached run might hold. The
	// handler must normalize its response without writing back to the
	// instance every other request shares.
	shared := &processors.RunResult{}
	h := NewCGTHandler(&stubUploadService{result: shared})

	rec := httptest.NewRecorder()
	h.HandleGetReport(rec, authedRequest(t, "/api/cgt/report"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"disposals":[]`)
	assert.Contains(t, rec.Body.String(), `"audit_trail":[]`)

	assert.Nil(t, shared.Disposals)
	assert.Nil(t, shared.AuditTrail)
}

func TestHandleGetReport_ConcurrentRequests(t *testing.T) {
	shared := &processors.RunResult{}
	h := NewCGTHandler(&stubUploadService{result: shared})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			h.HandleGetReport(rec, authedRequest(t, "/api/cgt/report"))
			assert.Equal(t, http.StatusOK, rec.Code)
		}()
	}
	wg.Wait()

	assert.Nil(t, shared.Disposals)
	assert.Nil(t, shared.AuditTrail)
}

func TestHandleGetAuditTrail_DoesNotMutateSharedResult(t *testing.T) {
	shared := &processors.RunResult{}
	h := NewCGTHandler(&stubUploadService{result: shared})

	rec := httptest.NewRecorder()
	h.HandleGetAuditTrail(rec, authedRequest(t, "/api/cgt/audit"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
	assert.Nil(t, shared.AuditTrail)
}
