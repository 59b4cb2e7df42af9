package project

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	core "homefi-backend/core/project"
	"homefi-backend/services"
	storage "homefi-backend/storage/project"
)

type testKey struct {
	priv *btcec.PrivateKey
	addr core.Address
}

func newTestKey(t *testing.T) testKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}
	return testKey{priv: priv, addr: core.AddressFromPubKey(priv.PubKey())}
}

func signHex(digest []byte, keys ...testKey) string {
	var blob []byte
	for _, k := range keys {
		blob = append(blob, ecdsa.SignCompact(k.priv, digest, true)...)
	}
	return fmt.Sprintf("%x", blob)
}

type testEnv struct {
	srv     *httptest.Server
	vault   *services.MemoryVault
	store   *storage.MemoryStore
	builder testKey
	sc      testKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	builder := newTestKey(t)
	sc := newTestKey(t)
	store := storage.NewMemoryStore()
	vault := services.NewMemoryVault()
	registry := core.StaticRegistry{Params: core.ProjectParams{
		Currency: "token-usd",
		FeeRate:  20,
	}}
	custodian := services.NewCustodian(store, vault, registry)
	server := NewServer(custodian, map[string]core.Address{
		"builder-key": builder.addr,
		"sc-key":      sc.addr,
	})

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { store.Close() })

	return &testEnv{srv: srv, vault: vault, store: store, builder: builder, sc: sc}
}

func (e *testEnv) post(t *testing.T, apiKey, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestServerProjectLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.vault.Credit("token-usd", env.builder.addr, 5000)

	resp := env.post(t, "builder-key", "/api/projects", map[string]any{"id": "p1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	add := core.AddTasksPayload{ProjectID: "p1", Hashes: []string{"h1", "h2"}, Costs: []int64{1000, 2000}}
	resp = env.post(t, "builder-key", "/api/projects/p1/tasks", map[string]any{
		"payload":    add,
		"signatures": signHex(add.Digest(), env.builder),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add tasks status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.post(t, "builder-key", "/api/projects/p1/subcontractors", map[string]any{
		"task_ids":       []int{1},
		"subcontractors": []core.Address{env.sc.addr},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("invite status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.post(t, "sc-key", "/api/projects/p1/tasks/1/accept", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("accept status %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.post(t, "builder-key", "/api/projects/p1/lend", map[string]any{"amount": int64(3000)})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lend status %d, want 200", resp.StatusCode)
	}
	var lendBody struct {
		Events []core.Event `json:"events"`
	}
	decodeJSON(t, resp, &lendBody)
	if len(lendBody.Events) == 0 {
		t.Fatal("lend returned no events")
	}

	var p core.Project
	resp = env.get(t, "/api/projects/p1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status %d, want 200", resp.StatusCode)
	}
	decodeJSON(t, resp, &p)
	if p.TotalLent != 3000 || p.TotalAllocated != 3000 {
		t.Fatalf("lent=%d allocated=%d, want 3000/3000", p.TotalLent, p.TotalAllocated)
	}
	if !p.Tasks[0].Allocated || !p.Tasks[1].Allocated {
		t.Fatal("tasks not allocated after lend")
	}

	var eventsBody struct {
		Events     []core.Event `json:"events"`
		TotalCount int          `json:"total_count"`
	}
	resp = env.get(t, "/api/projects/p1/events")
	decodeJSON(t, resp, &eventsBody)
	if eventsBody.TotalCount == 0 {
		t.Fatal("no events recorded")
	}

	resp = env.get(t, "/api/projects/p1/payment-details")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("payment details status %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type %q, want image/png", ct)
	}
	resp.Body.Close()
}

func TestServerAuthRejection(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "", "/api/projects", map[string]any{"id": "p1"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("missing key status %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.post(t, "wrong-key", "/api/projects", map[string]any{"id": "p1"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("bad key status %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestServerSignatureRejection(t *testing.T) {
	env := newTestEnv(t)
	stranger := newTestKey(t)

	resp := env.post(t, "builder-key", "/api/projects", map[string]any{"id": "p1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	add := core.AddTasksPayload{ProjectID: "p1", Hashes: []string{"h1"}, Costs: []int64{1000}}
	resp = env.post(t, "builder-key", "/api/projects/p1/tasks", map[string]any{
		"payload":    add,
		"signatures": signHex(add.Digest(), stranger),
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("forged signature status %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.post(t, "builder-key", "/api/projects/p1/tasks", map[string]any{
		"payload":    add,
		"signatures": "not-hex",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad encoding status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	p, err := env.store.GetProject(context.Background(), "p1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if p.TaskCount != 0 {
		t.Fatalf("task count %d, rejected batch landed", p.TaskCount)
	}
}
