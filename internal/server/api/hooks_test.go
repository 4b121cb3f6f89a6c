package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/openscholar/platform/internal/common"
	"github.com/openscholar/platform/internal/server/models"
)

const hookStartURL = "/api/v1/nodes/n1/osfstorage/hooks/start/docs/protocol.txt"
const hookFinishURL = "/api/v1/nodes/n1/osfstorage/hooks/finish/docs/protocol.txt"

func startBody(t *testing.T, user, signature string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"uploadPayload":   map[string]any{"extra": map[string]string{"user": user}},
		"uploadSignature": signature,
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestStartHook_Success(t *testing.T) {
	f := newFixture(t)
	f.addNode("n1", false, models.PermAdmin)

	var gotPath, gotName, gotActor, gotSig string
	f.storage.startFn = func(ctx context.Context, nodeID, path, name, actorID, signature string) (*models.FileVersion, error) {
		gotPath, gotName, gotActor, gotSig = path, name, actorID, signature
		return &models.FileVersion{Index: 3, Status: models.VersionPending}, nil
	}

	body := startBody(t, "u1", "sig-abc")
	w := f.doSigned(t, hookStartURL, body, f.hooks.Sign(body))

	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	if gotPath != "/docs/protocol.txt" || gotName != "protocol.txt" {
		t.Fatalf("path/name: got %q %q", gotPath, gotName)
	}
	if gotActor != "u1" || gotSig != "sig-abc" {
		t.Fatalf("actor/signature: got %q %q", gotActor, gotSig)
	}
	if v := decodeBody(t, w)["version"]; v != float64(3) {
		t.Fatalf("version: got %v, want 3", v)
	}
}

func TestStartHook_BadBodySignature(t *testing.T) {
	f := newFixture(t)
	f.addNode("n1", false, models.PermAdmin)

	body := startBody(t, "u1", "sig-abc")
	w := f.doSigned(t, hookStartURL, body, "deadbeef")
	wantReason(t, w, http.StatusBadRequest, "Invalid signature")
}

func TestStartHook_PathLocked(t *testing.T) {
	f := newFixture(t)
	f.addNode("n1", false, models.PermAdmin)
	f.storage.startFn = func(ctx context.Context, nodeID, path, name, actorID, signature string) (*models.FileVersion, error) {
		return nil, common.ErrPathLocked
	}

	body := startBody(t, "u1", "sig-abc")
	w := f.doSigned(t, hookStartURL, body, f.hooks.Sign(body))
	wantReason(t, w, http.StatusConflict, "File path is locked")
}

func TestStartHook_SignatureConsumed(t *testing.T) {
	f := newFixture(t)
	f.addNode("n1", false, models.PermAdmin)
	f.storage.startFn = func(ctx context.Context, nodeID, path, name, actorID, signature string) (*models.FileVersion, error) {
		return nil, common.ErrSignatureConsumed
	}

	body := startBody(t, "u1", "sig-abc")
	w := f.doSigned(t, hookStartURL, body, f.hooks.Sign(body))
	wantReason(t, w, http.StatusBadRequest, "Signature consumed")
}

func TestStartHook_MissingUploadSignature(t *testing.T) {
	f := newFixture(t)
	f.addNode("n1", false, models.PermAdmin)

	body := []byte(`{"uploadPayload":{"extra":{"user":"u1"}}}`)
	w := f.doSigned(t, hookStartURL, body, f.hooks.Sign(body))
	wantReason(t, w, http.StatusBadRequest, "Invalid payload")
}

func TestStartHook_UnknownUser(t *testing.T) {
	f := newFixture(t)
	f.addNode("n1", false, models.PermAdmin)

	body := startBody(t, "stranger", "sig-abc")
	w := f.doSigned(t, hookStartURL, body, f.hooks.Sign(body))
	wantReason(t, w, http.StatusBadRequest, "Invalid payload")
}

func TestFinishHook_Success(t *testing.T) {
	f := newFixture(t)
	f.addNode("n1", false, models.PermAdmin)

	var gotSig string
	var gotLocation json.RawMessage
	f.storage.resolveFn = func(ctx context.Context, nodeID, path, signature string, location, metadata json.RawMessage) error {
		gotSig = signature
		gotLocation = location
		return nil
	}

	body := []byte(`{"status":"success","uploadSignature":"sig-abc","location":{"bucket":"b","object":"k"},"metadata":{"size":12}}`)
	w := f.doSigned(t, hookFinishURL, body, f.hooks.Sign(body))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	if gotSig != "sig-abc" {
		t.Fatalf("signature: got %q", gotSig)
	}
	if string(gotLocation) != `{"bucket":"b","object":"k"}` {
		t.Fatalf("location: got %s", gotLocation)
	}
}

func TestFinishHook_Error(t *testing.T) {
	f := newFixture(t)
	f.addNode("n1", false, models.PermAdmin)

	cancelled := false
	f.storage.cancelFn = func(ctx context.Context, nodeID, path, signature string) error {
		cancelled = true
		return nil
	}

	body := []byte(`{"status":"error","uploadSignature":"sig-abc"}`)
	w := f.doSigned(t, hookFinishURL, body, f.hooks.Sign(body))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	if !cancelled {
		t.Fatalf("expected cancel to be called")
	}
}

func TestFinishHook_UnknownStatus(t *testing.T) {
	f := newFixture(t)
	f.addNode("n1", false, models.PermAdmin)

	body := []byte(`{"status":"maybe","uploadSignature":"sig-abc"}`)
	w := f.doSigned(t, hookFinishURL, body, f.hooks.Sign(body))
	wantReason(t, w, http.StatusBadRequest, "Invalid payload")
}

func TestFinishHook_NoPendingUpload(t *testing.T) {
	f := newFixture(t)
	f.addNode("n1", false, models.PermAdmin)
	f.storage.resolveFn = func(ctx context.Context, nodeID, path, signature string, location, metadata json.RawMessage) error {
		return common.ErrVersionNotPending
	}

	body := []byte(`{"status":"success","uploadSignature":"sig-abc"}`)
	w := f.doSigned(t, hookFinishURL, body, f.hooks.Sign(body))
	wantReason(t, w, http.StatusBadRequest, "No pending upload")
}

func TestFinishHook_WrongUploadSignature(t *testing.T) {
	f := newFixture(t)
	f.addNode("n1", false, models.PermAdmin)
	f.storage.resolveFn = func(ctx context.Context, nodeID, path, signature string, location, metadata json.RawMessage) error {
		return common.ErrSignatureMismatch
	}

	body := []byte(`{"status":"success","uploadSignature":"sig-wrong"}`)
	w := f.doSigned(t, hookFinishURL, body, f.hooks.Sign(body))
	wantReason(t, w, http.StatusBadRequest, "Invalid upload signature")
}
