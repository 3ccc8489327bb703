package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/skills-audit/constants"
	"github.com/joseph-ayodele/skills-audit/internal/async"
	"github.com/joseph-ayodele/skills-audit/internal/common"
	"github.com/joseph-ayodele/skills-audit/internal/entity"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeQueue struct {
	SubmitFunc func(ctx context.Context, req async.Request) (uuid.UUID, error)
	StatusFunc func(ctx context.Context, id uuid.UUID) (entity.Job, error)
	CancelFunc func(id uuid.UUID) error

	submitted []async.Request
}

func (f *fakeQueue) Submit(ctx context.Context, req async.Request) (uuid.UUID, error) {
	f.submitted = append(f.submitted, req)
	if f.SubmitFunc != nil {
		return f.SubmitFunc(ctx, req)
	}
	return uuid.New(), nil
}

func (f *fakeQueue) Status(ctx context.Context, id uuid.UUID) (entity.Job, error) {
	if f.StatusFunc != nil {
		return f.StatusFunc(ctx, id)
	}
	return entity.Job{}, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
}

func (f *fakeQueue) Cancel(id uuid.UUID) error {
	if f.CancelFunc != nil {
		return f.CancelFunc(id)
	}
	return nil
}

func (f *fakeQueue) Shutdown(context.Context) {}

func newTestServer(t *testing.T, q async.Queue, dir string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler(q, dir, 42, quiet))
	t.Cleanup(srv.Close)
	return srv
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestSubmit_JSON(t *testing.T) {
	id := uuid.New()
	q := &fakeQueue{SubmitFunc: func(context.Context, async.Request) (uuid.UUID, error) { return id, nil }}
	srv := newTestServer(t, q, t.TempDir())

	body := `{"username":"ogrenci","password":"s3cret","minimum_values":{"İngilizce":50},"selected_languages":["İngilizce"]}`
	resp, err := http.Post(srv.URL+"/audits", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, id.String(), decodeBody(t, resp)["job_id"])

	require.Len(t, q.submitted, 1)
	got := q.submitted[0]
	assert.Equal(t, "ogrenci", got.Credentials.Username)
	assert.Equal(t, "s3cret", got.Credentials.Password)
	assert.Equal(t, 42, got.Thresholds.Default)
	assert.Equal(t, 50, got.Thresholds.For("İngilizce"))
	assert.Equal(t, 42, got.Thresholds.For("Almanca"))
	assert.Equal(t, []string{"İngilizce"}, got.Languages)
}

func TestSubmit_JSONRejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing password", `{"username":"u"}`},
		{"negative minimum", `{"username":"u","password":"p","minimum_values":{"Almanca":-1}}`},
		{"unknown field", `{"username":"u","password":"p","extra":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQueue{}
			srv := newTestServer(t, q, t.TempDir())

			resp, err := http.Post(srv.URL+"/audits", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, common.CodeInvalidInput, decodeBody(t, resp)["error_code"])
			assert.Empty(t, q.submitted)
		})
	}
}

func TestSubmit_Form(t *testing.T) {
	q := &fakeQueue{}
	srv := newTestServer(t, q, t.TempDir())

	form := url.Values{
		"username":           {"ogrenci"},
		"password":           {"s3cret"},
		"minimum_values":     {`{"Almanca": 10}`},
		"selected_languages": {`["Almanca", "Fransızca"]`},
	}
	resp, err := http.PostForm(srv.URL+"/audits", form)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	require.Len(t, q.submitted, 1)
	got := q.submitted[0]
	assert.Equal(t, 10, got.Thresholds.For("Almanca"))
	assert.Equal(t, []string{"Almanca", "Fransızca"}, got.Languages)
}

func TestSubmit_FormRepeatedLanguages(t *testing.T) {
	q := &fakeQueue{}
	srv := newTestServer(t, q, t.TempDir())

	form := url.Values{
		"username":           {"u"},
		"password":           {"p"},
		"selected_languages": {"Almanca", " ", "İspanyolca"},
	}
	resp, err := http.PostForm(srv.URL+"/audits", form)
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, q.submitted, 1)
	assert.Equal(t, []string{"Almanca", "İspanyolca"}, q.submitted[0].Languages)
	assert.Nil(t, q.submitted[0].Thresholds.PerLanguage)
}

func TestSubmit_FormInvalid(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{"missing username", url.Values{"password": {"p"}}, "username"},
		{"bad minimum json", url.Values{"username": {"u"}, "password": {"p"}, "minimum_values": {"42"}}, "minimum_values"},
		{"negative minimum", url.Values{"username": {"u"}, "password": {"p"}, "minimum_values": {`{"Almanca":-3}`}}, "minimum_values[Almanca]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQueue{}
			srv := newTestServer(t, q, t.TempDir())

			resp, err := http.PostForm(srv.URL+"/audits", tt.form)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			out := decodeBody(t, resp)
			assert.Equal(t, common.CodeInvalidInput, out["error_code"])
			assert.Contains(t, out["message"], tt.want)
			assert.Empty(t, q.submitted)
		})
	}
}

func TestSubmit_QueueClosed(t *testing.T) {
	q := &fakeQueue{SubmitFunc: func(context.Context, async.Request) (uuid.UUID, error) {
		return uuid.Nil, common.NewAppError(common.CodeConflict, "runner is shutting down", common.ErrConflict)
	}}
	srv := newTestServer(t, q, t.TempDir())

	resp, err := http.PostForm(srv.URL+"/audits", url.Values{"username": {"u"}, "password": {"p"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, common.CodeConflict, decodeBody(t, resp)["error_code"])
}

func TestStatus_Shapes(t *testing.T) {
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		job     entity.Job
		want    map[string]any
		missing []string
	}{
		{
			name:    "pending",
			job:     entity.Job{Status: constants.JobStatusPending, Message: "Sırada"},
			want:    map[string]any{"state": "PENDING", "progress": float64(0), "log_message": "Sırada"},
			missing: []string{"result", "error_code"},
		},
		{
			name:    "running",
			job:     entity.Job{Status: constants.JobStatusRunning, Progress: 55, Message: "Almanca A1 taranıyor"},
			want:    map[string]any{"state": "RUNNING", "progress": float64(55), "log_message": "Almanca A1 taranıyor"},
			missing: []string{"result", "error_code"},
		},
		{
			name: "failed",
			job: entity.Job{
				Status:       constants.JobStatusFailed,
				ErrorCode:    common.CodeAuthentication,
				ErrorMessage: "authentication failed",
				FinishedAt:   &finished,
			},
			want:    map[string]any{"state": "FAILED", "error_code": common.CodeAuthentication, "log_message": "authentication failed"},
			missing: []string{"result", "progress"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQueue{StatusFunc: func(context.Context, uuid.UUID) (entity.Job, error) { return tt.job, nil }}
			srv := newTestServer(t, q, t.TempDir())

			resp, err := http.Get(srv.URL + "/audits/" + uuid.NewString())
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			out := decodeBody(t, resp)
			for k, v := range tt.want {
				assert.Equal(t, v, out[k], k)
			}
			for _, k := range tt.missing {
				assert.NotContains(t, out, k)
			}
		})
	}
}

func TestStatus_Succeeded(t *testing.T) {
	job := entity.Job{
		Status:   constants.JobStatusSucceeded,
		Progress: 100,
		Result: &entity.AuditResult{
			Data: entity.AggregateTable{
				"Almanca": {constants.A1: {constants.Listening: 12, constants.Reading: 50}},
			},
			ReportArtifact: "abc.xlsx",
		},
	}
	q := &fakeQueue{StatusFunc: func(context.Context, uuid.UUID) (entity.Job, error) { return job, nil }}
	srv := newTestServer(t, q, t.TempDir())

	resp, err := http.Get(srv.URL + "/audits/" + uuid.NewString())
	require.NoError(t, err)
	out := decodeBody(t, resp)
	assert.Equal(t, "SUCCEEDED", out["state"])
	result, ok := out["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "abc.xlsx", result["report_artifact"])
	data := result["data"].(map[string]any)["Almanca"].(map[string]any)["A1"].(map[string]any)
	assert.Equal(t, float64(12), data["D"])
	assert.Equal(t, float64(50), data["O"])
}

func TestStatus_Errors(t *testing.T) {
	srv := newTestServer(t, &fakeQueue{}, t.TempDir())

	resp, err := http.Get(srv.URL + "/audits/not-a-uuid")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/audits/" + uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, common.CodeNotFound, decodeBody(t, resp)["error_code"])
}

func TestCancel(t *testing.T) {
	known := uuid.New()
	q := &fakeQueue{CancelFunc: func(id uuid.UUID) error {
		if id == known {
			return nil
		}
		return common.NewAppError(common.CodeConflict, "job is not queued or running", common.ErrConflict)
	}}
	srv := newTestServer(t, q, t.TempDir())

	do := func(id string) *http.Response {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/audits/"+id, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := do(known.String())
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	resp = do(uuid.NewString())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, common.CodeConflict, decodeBody(t, resp)["error_code"])
}

func TestDownload(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rapor.xlsx"), []byte("xlsx-bytes"), 0o644))
	srv := newTestServer(t, &fakeQueue{}, dir)

	resp, err := http.Get(srv.URL + "/artifacts/rapor.xlsx")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `attachment; filename="rapor.xlsx"`)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "xlsx-bytes", string(b))

	resp2, err := http.Get(srv.URL + "/artifacts/missing.xlsx")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
	resp2.Body.Close()
}

func TestDownload_RejectsTraversal(t *testing.T) {
	h := NewHandler(&fakeQueue{}, t.TempDir(), 42, quiet)
	for _, name := range []string{"..", "..%2Fsecret.xlsx", "a..b.xlsx", "%2Fetc%2Fpasswd", "sub%2Ffile.xlsx", `sub%5Cfile.xlsx`} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/artifacts/x", nil)
			req.SetPathValue("name", mustUnescape(t, name))
			rec := httptest.NewRecorder()
			h.download(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func mustUnescape(t *testing.T, s string) string {
	t.Helper()
	v, err := url.PathUnescape(s)
	require.NoError(t, err)
	return v
}

func TestSafeArtifactName(t *testing.T) {
	assert.True(t, safeArtifactName("audit_20260301_120000.xlsx"))
	assert.True(t, safeArtifactName(uuid.NewString()+".xlsx"))
	assert.False(t, safeArtifactName(""))
	assert.False(t, safeArtifactName("."))
	assert.False(t, safeArtifactName("../x"))
	assert.False(t, safeArtifactName("/x"))
	assert.False(t, safeArtifactName(`a\b`))
}

type pingFunc func(ctx context.Context, timeout time.Duration) error

func (f pingFunc) HealthCheck(ctx context.Context, timeout time.Duration) error { return f(ctx, timeout) }

func TestPingDB_FlipsHealth(t *testing.T) {
	hs := health.NewServer()
	check := func() grpc_health_v1.HealthCheckResponse_ServingStatus {
		resp, err := hs.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	err := PingDB(context.Background(), hs, pingFunc(func(context.Context, time.Duration) error {
		return fmt.Errorf("connection refused")
	}), time.Second, quiet)
	require.Error(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, check())

	require.NoError(t, PingDB(context.Background(), hs, pingFunc(func(context.Context, time.Duration) error { return nil }), time.Second, quiet))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check())
}
