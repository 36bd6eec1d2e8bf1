package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noetl/noetl/internal/catalog"
	"github.com/noetl/noetl/internal/claim"
	"github.com/noetl/noetl/internal/credential"
	"github.com/noetl/noetl/internal/dsl"
	"github.com/noetl/noetl/internal/event"
	"github.com/noetl/noetl/internal/execution"
	"github.com/noetl/noetl/internal/keychain"
	"github.com/noetl/noetl/internal/registry"
	"github.com/noetl/noetl/internal/state"
)

const testPlaybook = `
apiVersion: noetl.io/v2
kind: Playbook
metadata:
  name: demo
  path: demo/hello
workflow:
  - step: start
    tool:
      kind: noop
`

// --- in-memory catalog.Store fake ---

type fakeCatalogStore struct {
	mu      sync.Mutex
	entries []catalog.Entry
	nextID  int64
}

func (s *fakeCatalogStore) hydrate(e catalog.Entry) catalog.Entry {
	if pb, err := dsl.Parse([]byte(e.Content)); err == nil {
		e.Layout = pb
	}
	return e
}

func (s *fakeCatalogStore) NextVersion(ctx context.Context, path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.Path == path && e.Version > n {
			n = e.Version
		}
	}
	return n + 1, nil
}

func (s *fakeCatalogStore) Insert(ctx context.Context, e catalog.Entry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	e.CreatedAt = time.Now()
	s.entries = append(s.entries, e)
	return e.ID, nil
}

func (s *fakeCatalogStore) GetByID(ctx context.Context, id int64) (*catalog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id {
			h := s.hydrate(e)
			return &h, nil
		}
	}
	return nil, nil
}

func (s *fakeCatalogStore) GetByPathVersion(ctx context.Context, path string, version int) (*catalog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Path == path && e.Version == version {
			h := s.hydrate(e)
			return &h, nil
		}
	}
	return nil, nil
}

func (s *fakeCatalogStore) Latest(ctx context.Context, path string) (*catalog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *catalog.Entry
	for i := range s.entries {
		e := s.entries[i]
		if e.Path == path && (best == nil || e.Version > best.Version) {
			h := s.hydrate(e)
			best = &h
		}
	}
	return best, nil
}

func (s *fakeCatalogStore) AllVersions(ctx context.Context, path string) ([]catalog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []catalog.Entry
	for _, e := range s.entries {
		if e.Path == path {
			out = append(out, s.hydrate(e))
		}
	}
	return out, nil
}

func (s *fakeCatalogStore) List(ctx context.Context, kind string) ([]catalog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := map[string]catalog.Entry{}
	for _, e := range s.entries {
		if kind != "" && e.Kind != kind {
			continue
		}
		if cur, ok := latest[e.Path]; !ok || e.Version > cur.Version {
			latest[e.Path] = e
		}
	}
	out := make([]catalog.Entry, 0, len(latest))
	for _, e := range latest {
		out = append(out, s.hydrate(e))
	}
	return out, nil
}

func TestCatalogRegisterListResource(t *testing.T) {
	h := &handler{deps: Deps{Catalog: catalog.New(&fakeCatalogStore{})}}

	body, _ := json.Marshal(map[string]string{"content": testPlaybook})
	req := httptest.NewRequest(http.MethodPost, "/api/catalog/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.catalogRegister(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var reg struct {
		CatalogID int64  `json:"catalog_id"`
		Path      string `json:"path"`
		Version   int    `json:"version"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.Equal(t, "demo/hello", reg.Path)
	assert.Equal(t, 1, reg.Version)

	listReq := httptest.NewRequest(http.MethodPost, "/api/catalog/list", bytes.NewReader([]byte(`{}`)))
	listRec := httptest.NewRecorder()
	h.catalogList(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	resBody, _ := json.Marshal(map[string]int64{"catalog_id": reg.CatalogID})
	resReq := httptest.NewRequest(http.MethodPost, "/api/catalog/resource", bytes.NewReader(resBody))
	resRec := httptest.NewRecorder()
	h.catalogResource(resRec, resReq)
	require.Equal(t, http.StatusOK, resRec.Code)

	var entry catalog.Entry
	require.NoError(t, json.Unmarshal(resRec.Body.Bytes(), &entry))
	require.NotNil(t, entry.Layout)
	assert.True(t, entry.Layout.HasStartStep())
}

// --- execution index + event log fakes ---

type memExecutionStore struct {
	mu   sync.Mutex
	rows map[int64]execution.Row
	next int64
}

func newMemExecutionStore() *memExecutionStore {
	return &memExecutionStore{rows: map[int64]execution.Row{}}
}

func (s *memExecutionStore) Insert(ctx context.Context, row execution.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.ExecutionID] = row
	return nil
}

func (s *memExecutionStore) UpdateStatus(ctx context.Context, executionID int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rows[executionID]
	row.Status = status
	s.rows[executionID] = row
	return nil
}

func (s *memExecutionStore) Get(ctx context.Context, executionID int64) (*execution.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[executionID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (s *memExecutionStore) List(ctx context.Context, filter execution.Filter) ([]execution.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []execution.Row
	for _, row := range s.rows {
		if filter.CatalogID != 0 && row.CatalogID != filter.CatalogID {
			continue
		}
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *memExecutionStore) NextID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next, nil
}

type fakeOrchestrator struct {
	started []int64
}

func (f *fakeOrchestrator) Start(ctx context.Context, executionID, catalogID int64, path string, version int, args map[string]any, pb *dsl.Playbook) error {
	f.started = append(f.started, executionID)
	return nil
}
func (f *fakeOrchestrator) Cancel(ctx context.Context, executionID int64) error { return nil }
func (f *fakeOrchestrator) Advance(ctx context.Context, executionID int64, pb *dsl.Playbook) error {
	return nil
}

type memEventStore struct {
	mu     sync.Mutex
	events []event.Event
	nextID int64
}

func newMemEventStore() *memEventStore { return &memEventStore{} }

func (s *memEventStore) Append(ctx context.Context, executionID int64, eventType event.Type, payload any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := event.MarshalPayload(payload)
	if err != nil {
		return 0, err
	}
	s.nextID++
	ev := event.Event{ID: s.nextID, ExecutionID: executionID, Type: eventType, Payload: data, CreatedAt: time.Now()}
	s.events = append(s.events, ev)
	return ev.ID, nil
}

func (s *memEventStore) Read(ctx context.Context, executionID int64, fromID int64, limit int) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.Event
	for _, e := range s.events {
		if e.ExecutionID == executionID && e.ID > fromID {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memEventStore) Last(ctx context.Context, executionID int64) (*event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *event.Event
	for i := range s.events {
		if s.events[i].ExecutionID == executionID {
			e := s.events[i]
			last = &e
		}
	}
	return last, nil
}

func (s *memEventStore) GetByID(ctx context.Context, eventID int64) (*event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ID == eventID {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (s *memEventStore) Pending(ctx context.Context, limit int) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claimed := map[string]bool{}
	for _, e := range s.events {
		if e.Type == event.TypeCommandClaimed {
			var p event.CommandClaimedPayload
			_ = e.DecodePayload(&p)
			claimed[p.CommandID] = true
		}
	}
	var out []event.Event
	for _, e := range s.events {
		if e.Type != event.TypeCommandIssued {
			continue
		}
		var p event.CommandIssuedPayload
		_ = e.DecodePayload(&p)
		if claimed[p.CommandID] {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type foldingEvents struct{ store *memEventStore }

func (f foldingEvents) Project(ctx context.Context, executionID int64) (*state.Projection, error) {
	evs, err := f.store.Read(ctx, executionID, 0, 0)
	if err != nil {
		return nil, err
	}
	return state.Fold(evs)
}

func TestRunPlaybookAndExecutionLifecycle(t *testing.T) {
	catStore := &fakeCatalogStore{}
	catSvc := catalog.New(catStore)
	id, err := catStore.Insert(context.Background(), catalog.Entry{Kind: "Playbook", Path: "demo/hello", Version: 1, Content: testPlaybook})
	require.NoError(t, err)

	evStore := newMemEventStore()
	orch := &fakeOrchestrator{}
	execSvc := execution.New(newMemExecutionStore(), orch, foldingEvents{evStore})

	h := &handler{deps: Deps{Catalog: catSvc, Executions: execSvc, Events: evStore}}

	body, _ := json.Marshal(map[string]any{"catalog_id": id})
	req := httptest.NewRequest(http.MethodPost, "/api/run/playbook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.runPlaybook(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ExecutionID int64 `json:"execution_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.ExecutionID)
	assert.Contains(t, orch.started, resp.ExecutionID)

	getReq := httptest.NewRequest(http.MethodGet, "/api/executions/1", nil)
	getRec := httptest.NewRecorder()
	h.executionResource(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/api/executions?catalog_id=1", nil)
	listRec := httptest.NewRecorder()
	h.executionsList(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	notFoundReq := httptest.NewRequest(http.MethodGet, "/api/executions/999", nil)
	notFoundRec := httptest.NewRecorder()
	h.executionResource(notFoundRec, notFoundReq)
	assert.Equal(t, http.StatusNotFound, notFoundRec.Code)
}

func TestExecutionEventsAndVars(t *testing.T) {
	evStore := newMemEventStore()
	execSvc := execution.New(newMemExecutionStore(), &fakeOrchestrator{}, foldingEvents{evStore})
	h := &handler{deps: Deps{Executions: execSvc, Events: evStore}}

	setBody, _ := json.Marshal(map[string]any{"name": "greeting", "value": "hi"})
	setReq := httptest.NewRequest(http.MethodPost, "/api/vars/1", bytes.NewReader(setBody))
	setRec := httptest.NewRecorder()
	h.vars(setRec, setReq)
	require.Equal(t, http.StatusOK, setRec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/api/vars/1/greeting", nil)
	getRec := httptest.NewRecorder()
	h.vars(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var got struct {
		Value string `json:"value"`
	}
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &got))
	assert.Equal(t, "hi", got.Value)

	delReq := httptest.NewRequest(http.MethodDelete, "/api/vars/1/greeting", nil)
	delRec := httptest.NewRecorder()
	h.vars(delRec, delReq)
	assert.Equal(t, http.StatusNoContent, delRec.Code)
}

// --- credential.Store fake ---

type plainCipher struct{}

func (plainCipher) EncryptJSON(v any) ([]byte, error)      { return json.Marshal(v) }
func (plainCipher) DecryptJSON(blob []byte, v any) error { return json.Unmarshal(blob, v) }

type memCredentialStore struct {
	mu   sync.Mutex
	byID map[int64]credential.Credential
	data map[int64][]byte
	next int64
}

func newMemCredentialStore() *memCredentialStore {
	return &memCredentialStore{byID: map[int64]credential.Credential{}, data: map[int64][]byte{}}
}

func (s *memCredentialStore) Upsert(ctx context.Context, name, credType string, ciphertext []byte, meta map[string]any, tags []string, description string) (credential.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.byID {
		if c.Name == name {
			c.Type = credType
			c.Meta = meta
			c.Tags = tags
			c.Description = description
			s.byID[id] = c
			s.data[id] = ciphertext
			return c, nil
		}
	}
	s.next++
	c := credential.Credential{ID: s.next, Name: name, Type: credType, Meta: meta, Tags: tags, Description: description, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	s.byID[s.next] = c
	s.data[s.next] = ciphertext
	return c, nil
}

func (s *memCredentialStore) GetByID(ctx context.Context, id int64) (*credential.Credential, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, nil, nil
	}
	return &c, s.data[id], nil
}

func (s *memCredentialStore) GetByName(ctx context.Context, name string) (*credential.Credential, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.byID {
		if c.Name == name {
			return &c, s.data[id], nil
		}
	}
	return nil, nil, nil
}

func (s *memCredentialStore) List(ctx context.Context, credType, query string) ([]credential.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []credential.Credential
	for _, c := range s.byID {
		out = append(out, c)
	}
	return out, nil
}

func (s *memCredentialStore) DeleteByID(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	delete(s.data, id)
	return nil
}

func (s *memCredentialStore) DeleteByName(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.byID {
		if c.Name == name {
			delete(s.byID, id)
			delete(s.data, id)
		}
	}
	return nil
}

func TestCredentialsUpsertGetDelete(t *testing.T) {
	svc := credential.New(newMemCredentialStore(), plainCipher{})
	h := &handler{deps: Deps{Credentials: svc}}

	body, _ := json.Marshal(map[string]any{
		"name": "db", "type": "postgres", "data": map[string]any{"password": "s3cr3t"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/credentials", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.credentials(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "s3cr3t")

	getReq := httptest.NewRequest(http.MethodGet, "/api/credentials/db?include_data=true", nil)
	getRec := httptest.NewRecorder()
	h.credentialResource(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
	assert.Contains(t, getRec.Body.String(), "s3cr3t")

	delReq := httptest.NewRequest(http.MethodDelete, "/api/credentials/db", nil)
	delRec := httptest.NewRecorder()
	h.credentialResource(delRec, delReq)
	assert.Equal(t, http.StatusNoContent, delRec.Code)
}

// --- keychain.Store fake ---

type memKeychainStore struct {
	mu      sync.Mutex
	entries map[string]keychain.Entry
}

func newMemKeychainStore() *memKeychainStore {
	return &memKeychainStore{entries: map[string]keychain.Entry{}}
}

func (s *memKeychainStore) Upsert(ctx context.Context, e keychain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.CreatedAt = time.Now()
	s.entries[e.CacheKey] = e
	return nil
}

func (s *memKeychainStore) Get(ctx context.Context, cacheKey string) (*keychain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[cacheKey]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *memKeychainStore) Delete(ctx context.Context, cacheKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, cacheKey)
	return nil
}

func (s *memKeychainStore) ListByCatalog(ctx context.Context, catalogID int64) ([]keychain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []keychain.Entry
	for _, e := range s.entries {
		if e.CatalogID == catalogID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memKeychainStore) IncrementAccess(ctx context.Context, cacheKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[cacheKey]
	e.AccessCount++
	s.entries[cacheKey] = e
	return nil
}

func (s *memKeychainStore) DeleteExpiredWithoutAutoRenew(ctx context.Context) (int64, error) {
	return 0, nil
}

func (s *memKeychainStore) DeleteByExecution(ctx context.Context, executionID int64) (int64, error) {
	return 0, nil
}

func TestKeychainSetGetDelete(t *testing.T) {
	sealer, err := keychain.NewSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	svc := keychain.New(newMemKeychainStore(), sealer, nil)
	h := &handler{deps: Deps{Keychain: svc}}

	setBody, _ := json.Marshal(map[string]any{"data": map[string]any{"token": "abc"}})
	setReq := httptest.NewRequest(http.MethodPost, "/api/keychain/1/github", bytes.NewReader(setBody))
	setRec := httptest.NewRecorder()
	h.keychainResource(setRec, setReq)
	require.Equal(t, http.StatusOK, setRec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/api/keychain/1/github", nil)
	getRec := httptest.NewRecorder()
	h.keychainResource(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
	assert.Contains(t, getRec.Body.String(), "abc")

	missingReq := httptest.NewRequest(http.MethodGet, "/api/keychain/1/nope", nil)
	missingRec := httptest.NewRecorder()
	h.keychainResource(missingRec, missingReq)
	assert.Equal(t, http.StatusNotFound, missingRec.Code)
}

// --- registry.Store fake ---

type memRegistryStore struct {
	mu      sync.Mutex
	workers map[string]registry.Worker
}

func newMemRegistryStore() *memRegistryStore {
	return &memRegistryStore{workers: map[string]registry.Worker{}}
}

func (s *memRegistryStore) Register(ctx context.Context, w registry.Worker, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[w.PoolName+"/"+w.WorkerID] = w
	return nil
}

func (s *memRegistryStore) Heartbeat(ctx context.Context, poolName, workerID string, ttl time.Duration) error {
	return nil
}

func (s *memRegistryStore) Deregister(ctx context.Context, poolName, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workers, poolName+"/"+workerID)
	return nil
}

func (s *memRegistryStore) ListPools(ctx context.Context) ([]registry.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int{}
	for _, w := range s.workers {
		counts[w.PoolName]++
	}
	var out []registry.Pool
	for name, count := range counts {
		out = append(out, registry.Pool{Name: name, WorkerCount: count})
	}
	return out, nil
}

func (s *memRegistryStore) ListWorkers(ctx context.Context, poolName string) ([]registry.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []registry.Worker
	for _, w := range s.workers {
		if w.PoolName == poolName {
			out = append(out, w)
		}
	}
	return out, nil
}

func TestWorkerRegisterHeartbeatPools(t *testing.T) {
	reg := registry.New(newMemRegistryStore(), 0)
	h := &handler{deps: Deps{Registry: reg}}

	body, _ := json.Marshal(map[string]string{"worker_id": "w1", "pool_name": "default", "hostname": "h1"})
	req := httptest.NewRequest(http.MethodPost, "/api/worker/pool/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.workerRegister(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	hbBody, _ := json.Marshal(map[string]string{"worker_id": "w1", "pool_name": "default"})
	hbReq := httptest.NewRequest(http.MethodPost, "/api/worker/pool/heartbeat", bytes.NewReader(hbBody))
	hbRec := httptest.NewRecorder()
	h.workerHeartbeat(hbRec, hbReq)
	require.Equal(t, http.StatusOK, hbRec.Code)

	poolsReq := httptest.NewRequest(http.MethodGet, "/api/worker/pools", nil)
	poolsRec := httptest.NewRecorder()
	h.workerPools(poolsRec, poolsReq)
	require.Equal(t, http.StatusOK, poolsRec.Code)
	assert.Contains(t, poolsRec.Body.String(), "default")
}

// --- claim.Store fake + command fetch ---

type memClaimStore struct {
	mu      sync.Mutex
	events  *memEventStore
	claimed map[string]bool
}

func (s *memClaimStore) AppendClaimIfAbsent(ctx context.Context, executionID int64, commandID, workerID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed[commandID] {
		return 0, false, nil
	}
	s.claimed[commandID] = true
	id, err := s.events.Append(ctx, executionID, event.TypeCommandClaimed, map[string]string{"command_id": commandID, "worker_id": workerID})
	return id, true, err
}

func TestCommandsClaimAndFetch(t *testing.T) {
	evStore := newMemEventStore()
	claimStore := &memClaimStore{events: evStore, claimed: map[string]bool{}}
	claimer := claim.New(claimStore)

	catStore := &fakeCatalogStore{}
	catSvc := catalog.New(catStore)
	catalogID, err := catStore.Insert(context.Background(), catalog.Entry{Kind: "Playbook", Path: "demo/hello", Version: 1, Content: testPlaybook})
	require.NoError(t, err)

	execStore := newMemExecutionStore()
	require.NoError(t, execStore.Insert(context.Background(), execution.Row{ExecutionID: 1, CatalogID: catalogID, Path: "demo/hello", Version: 1, Status: "RUNNING"}))
	execSvc := execution.New(execStore, &fakeOrchestrator{}, foldingEvents{evStore})

	h := &handler{deps: Deps{Catalog: catSvc, Executions: execSvc, Events: evStore, Claimer: claimer}}

	claimBody, _ := json.Marshal(map[string]any{"execution_id": 1, "command_id": "cmd-1", "worker_id": "w1"})
	claimReq := httptest.NewRequest(http.MethodPost, "/api/commands/claim", bytes.NewReader(claimBody))
	claimRec := httptest.NewRecorder()
	h.commandsClaim(claimRec, claimReq)
	require.Equal(t, http.StatusOK, claimRec.Code)
	assert.Contains(t, claimRec.Body.String(), "\"outcome\":\"claimed\"")

	again := httptest.NewRecorder()
	h.commandsClaim(again, httptest.NewRequest(http.MethodPost, "/api/commands/claim", bytes.NewReader(claimBody)))
	assert.Contains(t, again.Body.String(), "already_claimed")

	issuedID, err := evStore.Append(context.Background(), 1, event.TypeCommandIssued, event.CommandIssuedPayload{
		CommandID: "cmd-1", Step: "start", ToolKind: "noop",
	})
	require.NoError(t, err)

	fetchReq := httptest.NewRequest(http.MethodGet, "/api/commands/by-event/"+strconv.FormatInt(issuedID, 10), nil)
	fetchRec := httptest.NewRecorder()
	h.commandByEvent(fetchRec, fetchReq)
	require.Equal(t, http.StatusOK, fetchRec.Code)
	assert.Contains(t, fetchRec.Body.String(), "\"step\":\"start\"")
}

func TestAuthRejectsMissingAndAcceptsValidToken(t *testing.T) {
	validator := NewHMACValidator("test-secret")
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/protected", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := wrapWithAuth(mux, validator)

	healthRec := httptest.NewRecorder()
	wrapped.ServeHTTP(healthRec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, healthRec.Code)

	noTokenRec := httptest.NewRecorder()
	wrapped.ServeHTTP(noTokenRec, httptest.NewRequest(http.MethodGet, "/api/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, noTokenRec.Code)

	token, err := IssueToken("test-secret", "worker-1", time.Hour)
	require.NoError(t, err)
	authedReq := httptest.NewRequest(http.MethodGet, "/api/protected", nil)
	authedReq.Header.Set("Authorization", "Bearer "+token)
	authedRec := httptest.NewRecorder()
	wrapped.ServeHTTP(authedRec, authedReq)
	assert.Equal(t, http.StatusOK, authedRec.Code)
}

func TestAuthLoginIssuesTokenAcceptedByValidator(t *testing.T) {
	h := &handler{deps: Deps{
		AuthSecret:   "test-secret",
		AuthPassword: "hunter2",
		AuthTokenTTL: time.Hour,
	}}

	badRec := httptest.NewRecorder()
	badReq := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"password":"wrong"}`))
	h.authLogin(badRec, badReq)
	assert.Equal(t, http.StatusUnauthorized, badRec.Code)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"password":"hunter2","subject":"noetlctl"}`))
	h.authLogin(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, 3600, resp.ExpiresIn)

	validator := NewHMACValidator("test-secret")
	claims, err := validator.Validate(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "noetlctl", claims.Subject)
}

func TestAuthLoginDisabledWithoutPassword(t *testing.T) {
	h := &handler{deps: Deps{}}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"password":"anything"}`))
	h.authLogin(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
