package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/fieldgate/pkg/approval"
	"github.com/dd0wney/fieldgate/pkg/audit"
	"github.com/dd0wney/fieldgate/pkg/auth"
	"github.com/dd0wney/fieldgate/pkg/config"
	"github.com/dd0wney/fieldgate/pkg/diagnosis"
	"github.com/dd0wney/fieldgate/pkg/evidence"
	"github.com/dd0wney/fieldgate/pkg/geo"
	"github.com/dd0wney/fieldgate/pkg/health"
	"github.com/dd0wney/fieldgate/pkg/metrics"
	"github.com/dd0wney/fieldgate/pkg/registry"
	"github.com/dd0wney/fieldgate/pkg/session"
	"github.com/dd0wney/fieldgate/pkg/totp"
	"github.com/dd0wney/fieldgate/pkg/workflow"
)

const e2eTOTPSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

// depot zone center; insideLat is roughly 40 meters north of it
const (
	depotLat  = 39.7392
	depotLng  = -104.9903
	insideLat = depotLat + 40.0/111320.0
	outLat    = depotLat + 300.0/111320.0
)

type apiFixture struct {
	ts         *httptest.Server
	reg        *registry.Registry
	adminKeys  *registry.AdminKeyStore
	auditLog   *audit.Log
	sessions   *session.Manager
	engine     *approval.Engine
	codes      *totp.Validator
	zone       *registry.Zone
	operator   *registry.Operator
	supervisor *registry.Operator
	manager    *registry.Operator

	mu         sync.Mutex
	confidence float64
	planRisk   diagnosis.Tier
}

// newAPIFixture stands up the whole service behind an httptest listener,
// with httptest backends in place of the vision and reasoning services.
// A nil approvalCfg selects the production policy.
func newAPIFixture(t *testing.T, approvalCfg *approval.Config) *apiFixture {
	t.Helper()

	auditLog, err := audit.New(&audit.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { auditLog.Close() })

	reg := registry.New("")
	zone, err := reg.CreateZone("Pump House", depotLat, depotLng, 100, "oncall@example.com")
	require.NoError(t, err)
	operator, err := reg.CreateOperator("Field Op", registry.RoleOperator, e2eTOTPSecret, []string{zone.ID})
	require.NoError(t, err)
	supervisor, err := reg.CreateOperator("Supervisor", registry.RoleSupervisor, e2eTOTPSecret, []string{zone.ID})
	require.NoError(t, err)
	manager, err := reg.CreateOperator("Manager", registry.RoleManager, e2eTOTPSecret, []string{zone.ID})
	require.NoError(t, err)

	adminKeys, err := registry.NewAdminKeyStore("")
	require.NoError(t, err)

	codes := totp.NewValidator(totp.DefaultStep, totp.DefaultSkew)
	fence := geo.NewValidator(2 * time.Minute)
	lockouts := auth.NewLockoutTracker(3, 15*time.Minute, 15*time.Minute)
	gateway := auth.NewGateway(reg, codes, fence, lockouts, auditLog, nil, nil)

	denylist := auth.NewDenylist()
	tokens, err := auth.NewTokenManager("api-e2e-token-secret-0123456789abcd", time.Hour, denylist)
	require.NoError(t, err)
	sessions := session.NewManager(session.Config{}, tokens, denylist, auditLog, nil)
	t.Cleanup(sessions.Stop)

	store, err := evidence.NewStore(t.TempDir(), 1<<20)
	require.NoError(t, err)

	if approvalCfg == nil {
		approvalCfg = approval.DefaultConfig()
	}
	engine := approval.NewEngine(approvalCfg, auditLog, nil, nil)

	f := &apiFixture{
		reg:        reg,
		adminKeys:  adminKeys,
		auditLog:   auditLog,
		sessions:   sessions,
		engine:     engine,
		codes:      codes,
		zone:       zone,
		operator:   operator,
		supervisor: supervisor,
		manager:    manager,
		confidence: 0.92,
		planRisk:   diagnosis.TierMedium,
	}

	analysisBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		confidence := f.confidence
		f.mu.Unlock()
		json.NewEncoder(w).Encode(&diagnosis.AnalysisResult{
			Classification: "worn_bearing",
			Confidence:     confidence,
			Timestamp:      time.Now(),
		})
	}))
	t.Cleanup(analysisBackend.Close)

	planBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		risk := f.planRisk
		f.mu.Unlock()
		json.NewEncoder(w).Encode(&diagnosis.SolutionPlan{
			ID:      uuid.NewString(),
			Actions: []diagnosis.PlannedAction{{Description: "replace bearing", RiskTier: risk}},
		})
	}))
	t.Cleanup(planBackend.Close)

	orchestrator := workflow.NewOrchestrator(store,
		diagnosis.NewHTTPAnalysisClient(analysisBackend.URL, time.Second, 0.5),
		diagnosis.NewHTTPPlanClient(planBackend.URL, time.Second),
		engine, auditLog, nil)

	cfg := config.Default()
	cfg.Auth.TokenSecret = "api-e2e-token-secret-0123456789abcd"

	checker := health.NewChecker()
	checker.RegisterReadiness("audit_log", health.AuditLogCheck(func() error { return nil }))

	srv := NewServer(Deps{
		Config:       cfg,
		Registry:     reg,
		AdminKeys:    adminKeys,
		Gateway:      gateway,
		Tokens:       tokens,
		Sessions:     sessions,
		Engine:       engine,
		Orchestrator: orchestrator,
		AuditLog:     auditLog,
		Checker:      checker,
		Metrics:      metrics.NewRegistry(),
	})

	f.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(f.ts.Close)
	return f
}

// do sends a JSON request over the trusted tunnel and returns the decoded
// status and raw body
func (f *apiFixture) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-Tunnel-Verified", "1")

	resp, err := f.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (f *apiFixture) loginBody(t *testing.T, op *registry.Operator, lat float64) LoginRequest {
	t.Helper()
	code, err := f.codes.GenerateCode(e2eTOTPSecret, time.Now())
	require.NoError(t, err)
	return LoginRequest{
		OperatorID: op.ID,
		Code:       code,
		Latitude:   lat,
		Longitude:  depotLng,
		ObservedAt: time.Now(),
	}
}

func (f *apiFixture) login(t *testing.T, op *registry.Operator) LoginResponse {
	t.Helper()
	status, body := f.do(t, http.MethodPost, "/auth/login", "", f.loginBody(t, op, insideLat))
	require.Equal(t, http.StatusOK, status, "login body: %s", body)

	var out LoginResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotEmpty(t, out.Token)
	require.Equal(t, f.zone.ID, out.ZoneID)
	return out
}

func (f *apiFixture) submitEvidence(t *testing.T, token string) IncidentResponse {
	t.Helper()
	status, body := f.do(t, http.MethodPost, "/incidents", token,
		SubmitEvidenceRequest{Evidence: []byte("thermal image bytes"), EquipmentHint: "pump-7"})
	require.Equal(t, http.StatusAccepted, status, "submit body: %s", body)

	var out IncidentResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func (f *apiFixture) waitChain(t *testing.T, token, planID string, minLen int) []*approval.Request {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, body := f.do(t, http.MethodGet, "/plans/"+planID+"/approvals", token, nil)
		if status == http.StatusOK {
			var chain []*approval.Request
			require.NoError(t, json.Unmarshal(body, &chain))
			if len(chain) >= minLen {
				return chain
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("approval chain for plan %s never reached length %d", planID, minLen)
	return nil
}

func (f *apiFixture) waitSessionState(t *testing.T, token, sessionID, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, body := f.do(t, http.MethodGet, "/sessions/"+sessionID, token, nil)
		require.Equal(t, http.StatusOK, status)
		var out SessionResponse
		require.NoError(t, json.Unmarshal(body, &out))
		if out.State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s never reached state %s", sessionID, want)
}

// A full successful pass: three-factor login from inside the zone, evidence
// submission, a MEDIUM plan opening a level-1 approval with the 15 minute
// deadline, supervisor approval, execution, completion.
func TestDiagnosticWorkflowEndToEnd(t *testing.T) {
	f := newAPIFixture(t, nil)

	login := f.login(t, f.operator)

	inc := f.submitEvidence(t, login.Token)
	require.NotNil(t, inc.Incident.Analysis)
	require.NotNil(t, inc.Incident.Plan)
	assert.Equal(t, "AWAITING_APPROVAL", inc.SessionState)
	assert.InDelta(t, 0.92, inc.Incident.Analysis.Confidence, 0.001)
	assert.Equal(t, diagnosis.TierMedium, inc.Incident.Plan.OverallTier())

	chain := f.waitChain(t, login.Token, inc.Incident.Plan.ID, 1)
	req := chain[0]
	assert.Equal(t, 1, req.Level)
	assert.Equal(t, approval.StatePending, req.State)
	assert.Equal(t, []string{f.supervisor.ID}, req.Candidates)
	assert.Equal(t, 15*time.Minute, req.Deadline.Sub(req.CreatedAt))

	// the supervisor logs in and approves
	supLogin := f.login(t, f.supervisor)
	status, body := f.do(t, http.MethodPost, "/approvals/"+req.ID+"/decision", supLogin.Token,
		DecisionRequest{Approve: true, Comment: "go ahead"})
	require.Equal(t, http.StatusOK, status, "decision body: %s", body)

	f.waitSessionState(t, login.Token, login.SessionID, "EXECUTING")

	status, _ = f.do(t, http.MethodPost, "/incidents/"+inc.Incident.ID+"/complete", login.Token, nil)
	require.Equal(t, http.StatusOK, status)
	f.waitSessionState(t, login.Token, login.SessionID, "ACTIVE")
}

// An unanswered level-1 request escalates on deadline; the manager approves
// at level 2 and the plan executes.
func TestEscalationThenLevelTwoApproval(t *testing.T) {
	cfg := approval.DefaultConfig()
	cfg.Timeouts = map[diagnosis.Tier]time.Duration{
		diagnosis.TierLow:    100 * time.Millisecond,
		diagnosis.TierMedium: 100 * time.Millisecond,
		diagnosis.TierHigh:   100 * time.Millisecond,
	}
	f := newAPIFixture(t, cfg)

	login := f.login(t, f.operator)
	mgrLogin := f.login(t, f.manager)

	inc := f.submitEvidence(t, login.Token)

	chain := f.waitChain(t, login.Token, inc.Incident.Plan.ID, 2)
	assert.Equal(t, approval.StateEscalated, chain[0].State)
	level2 := chain[1]
	assert.Equal(t, 2, level2.Level)
	assert.Equal(t, chain[0].ID, level2.PrevID)
	assert.Equal(t, []string{f.manager.ID}, level2.Candidates)

	status, body := f.do(t, http.MethodPost, "/approvals/"+level2.ID+"/decision", mgrLogin.Token,
		DecisionRequest{Approve: true})
	require.Equal(t, http.StatusOK, status, "decision body: %s", body)

	f.waitSessionState(t, login.Token, login.SessionID, "EXECUTING")
}

// A login 200 meters outside every zone is refused with the uniform 401
// body, opens no session, and leaves an audit record.
func TestLoginOutOfBounds(t *testing.T) {
	f := newAPIFixture(t, nil)

	status, body := f.do(t, http.MethodPost, "/auth/login", "", f.loginBody(t, f.operator, outLat))
	require.Equal(t, http.StatusUnauthorized, status)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, "authentication failed", errResp.Error)

	assert.Equal(t, 0, f.sessions.Count())

	records := f.auditLog.Query(&audit.Filter{Kind: audit.KindAuthFailure})
	require.Len(t, records, 1)
	assert.Equal(t, "location_out_of_bounds", records[0].Payload["reason"])
}

// Low-confidence analysis halts the workflow: 422, no plan, no approval,
// session back to ACTIVE for a retry with better evidence.
func TestLowConfidenceAnalysisHalts(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.mu.Lock()
	f.confidence = 0.3
	f.mu.Unlock()

	login := f.login(t, f.operator)

	status, body := f.do(t, http.MethodPost, "/incidents", login.Token,
		SubmitEvidenceRequest{Evidence: []byte("blurry image")})
	require.Equal(t, http.StatusUnprocessableEntity, status)

	var out IncidentResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotNil(t, out.Incident)
	assert.Nil(t, out.Incident.Plan)
	assert.Equal(t, 0, f.engine.PendingCount())
	f.waitSessionState(t, login.Token, login.SessionID, "ACTIVE")
}

func TestLoginRejectsUntrustedTransport(t *testing.T) {
	f := newAPIFixture(t, nil)

	data, err := json.Marshal(f.loginBody(t, f.operator, insideLat))
	require.NoError(t, err)
	// no X-Tunnel-Verified header
	resp, err := f.ts.Client().Post(f.ts.URL+"/auth/login", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, f.sessions.Count())
}

func TestLoginLockoutReturns429(t *testing.T) {
	f := newAPIFixture(t, nil)

	bad := f.loginBody(t, f.operator, insideLat)
	bad.Code = "000000"
	for i := 0; i < 3; i++ {
		status, _ := f.do(t, http.MethodPost, "/auth/login", "", bad)
		require.Equal(t, http.StatusUnauthorized, status)
	}

	// even a valid code is refused during the cooldown
	status, body := f.do(t, http.MethodPost, "/auth/login", "", f.loginBody(t, f.operator, insideLat))
	require.Equal(t, http.StatusTooManyRequests, status)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, "account temporarily locked", errResp.Error)
}

func TestSessionEndpointsEnforceOwnership(t *testing.T) {
	f := newAPIFixture(t, nil)
	login := f.login(t, f.operator)

	status, _ := f.do(t, http.MethodGet, "/sessions/"+login.SessionID, login.Token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = f.do(t, http.MethodGet, "/sessions/someone-elses-session", login.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = f.do(t, http.MethodPost, "/sessions/someone-elses-session/touch", login.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestMissingBearerTokenRejected(t *testing.T) {
	f := newAPIFixture(t, nil)

	status, _ := f.do(t, http.MethodGet, "/sessions/any", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = f.do(t, http.MethodPost, "/incidents", "garbage-token",
		SubmitEvidenceRequest{Evidence: []byte("x")})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestResumeAndLogout(t *testing.T) {
	f := newAPIFixture(t, nil)
	login := f.login(t, f.operator)

	status, body := f.do(t, http.MethodPost, "/sessions/"+login.SessionID+"/resume", "",
		ResumeRequest{Token: login.Token})
	require.Equal(t, http.StatusOK, status)
	var resumed SessionResponse
	require.NoError(t, json.Unmarshal(body, &resumed))
	assert.Equal(t, f.operator.ID, resumed.OperatorID)

	status, _ = f.do(t, http.MethodPost, "/auth/logout", login.Token, nil)
	require.Equal(t, http.StatusOK, status)

	// the revoked token no longer opens anything
	status, _ = f.do(t, http.MethodGet, "/sessions/"+login.SessionID, login.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAuditEndpointsRequireAdminKey(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.login(t, f.operator)

	_, secret, err := f.adminKeys.CreateKey("ops", false)
	require.NoError(t, err)

	get := func(path, key string) (int, []byte) {
		req, err := http.NewRequest(http.MethodGet, f.ts.URL+path, nil)
		require.NoError(t, err)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		resp, err := f.ts.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, data
	}

	status, _ := get("/audit/export", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = get("/audit/export", "fg_test_not_a_real_key")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := get("/audit/export", secret)
	require.Equal(t, http.StatusOK, status)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.NotEmpty(t, lines)
	var rec audit.Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.NotEmpty(t, rec.RecordHash)

	status, body = get("/audit/verify", secret)
	require.Equal(t, http.StatusOK, status)
	var result audit.VerifyResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.True(t, result.Valid)
	assert.Greater(t, result.RecordsChecked, 0)
}

func TestMetricsEndpointExposed(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.login(t, f.operator)

	status, body := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "fieldgate_http_requests_total")
}

func TestHealthProbes(t *testing.T) {
	f := newAPIFixture(t, nil)

	status, _ := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = f.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = f.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)
}
