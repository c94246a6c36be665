package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/tera/internal/mapservice"
	"github.com/starford/tera/internal/sectorfile"
	"github.com/starford/tera/internal/testutil"
)

// testEnv sets up a temp store, session, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*mapservice.Session, http.Handler) {
	t.Helper()
	sess := testutil.TestSession(t, nil, nil)
	router := NewRouter(sess, authToken != "", authToken, nil)
	return sess, router
}

func do(t *testing.T, h http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case []byte:
		rd = bytes.NewReader(b)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) mapservice.Result {
	t.Helper()
	var res mapservice.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v (body %s)", err, w.Body.String())
	}
	return res
}

func TestGetMap(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/map", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	res := decodeMap(t, w)
	if len(res.Doc.Nodes) != 12 {
		t.Errorf("nodes = %d, want 12", len(res.Doc.Nodes))
	}
	if got := w.Header().Get("ETag"); got != `"`+res.Revision+`"` {
		t.Errorf("ETag = %q, revision = %q", got, res.Revision)
	}
}

func TestSetAndDeleteSectorImage(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/map/sectors/3/image", SetSectorImageRequest{Image: testutil.PNG})
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", w.Code, w.Body.String())
	}
	if res := decodeMap(t, w); res.Doc.SectorImages[3] != testutil.PNG {
		t.Errorf("image not stored: %+v", res.Doc.SectorImages)
	}

	w = do(t, router, http.MethodDelete, "/map/sectors/3/image", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	res := decodeMap(t, w)
	if _, ok := res.Doc.SectorImages[3]; ok || !res.Changed {
		t.Errorf("image not deleted: %+v", res)
	}

	// Deleting again is a no-op.
	w = do(t, router, http.MethodDelete, "/map/sectors/3/image", nil)
	if w.Code != http.StatusOK || decodeMap(t, w).Changed {
		t.Errorf("second delete: status %d body %s", w.Code, w.Body.String())
	}
}

func TestSetSectorImage_Rejects(t *testing.T) {
	_, router := testEnv(t, "")

	cases := []struct {
		name string
		path string
		body any
		want int
	}{
		{"bad fid", "/map/sectors/abc/image", SetSectorImageRequest{Image: testutil.PNG}, http.StatusBadRequest},
		{"out of range", "/map/sectors/13/image", SetSectorImageRequest{Image: testutil.PNG}, http.StatusUnprocessableEntity},
		{"not an image", "/map/sectors/1/image", SetSectorImageRequest{Image: "hello"}, http.StatusBadRequest},
		{"empty", "/map/sectors/1/image", SetSectorImageRequest{}, http.StatusBadRequest},
		{"bad json", "/map/sectors/1/image", "{", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, router, http.MethodPut, tc.path, tc.body)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestFourSectorModeAddressing(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPatch, "/map", map[string]string{"sector_mode": "4"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodPut, "/map/sectors/2/image", SetSectorImageRequest{Image: testutil.PNG})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("fid 2 in 4-sector mode: status = %d", w.Code)
	}
	w = do(t, router, http.MethodPut, "/map/sectors/4/image", SetSectorImageRequest{Image: testutil.PNG})
	if w.Code != http.StatusOK {
		t.Errorf("fid 4 in 4-sector mode: status = %d", w.Code)
	}
}

func TestOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")

	etag := do(t, router, http.MethodGet, "/map", nil).Header().Get("ETag")

	w := do(t, router, http.MethodPut, "/map/sectors/1/image", SetSectorImageRequest{Image: testutil.PNG}, "If-Match", etag)
	if w.Code != http.StatusOK {
		t.Fatalf("matching If-Match: status = %d", w.Code)
	}

	// The old tag is stale now.
	w = do(t, router, http.MethodPut, "/map/sectors/2/image", SetSectorImageRequest{Image: testutil.GIF}, "If-Match", etag)
	if w.Code != http.StatusConflict {
		t.Errorf("stale If-Match: status = %d, want 409", w.Code)
	}
}

func TestUploadSectorImage(t *testing.T) {
	_, router := testEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "sector.png")
	_, _ = fw.Write([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01"))
	mw.Close()

	w := do(t, router, http.MethodPost, "/map/sectors/7/image/upload", buf.Bytes(), "Content-Type", mw.FormDataContentType())
	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}
	if img := decodeMap(t, w).Doc.SectorImages[7]; !strings.HasPrefix(img, "data:image/png;base64,") {
		t.Errorf("stored payload = %q", img)
	}
}

func TestUploadSectorImage_MissingFileField(t *testing.T) {
	_, router := testEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "value")
	mw.Close()

	w := do(t, router, http.MethodPost, "/map/sectors/7/image/upload", buf.Bytes(), "Content-Type", mw.FormDataContentType())
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestExportImport(t *testing.T) {
	_, router := testEnv(t, "")
	_ = do(t, router, http.MethodPut, "/map/sectors/5/image", SetSectorImageRequest{Image: testutil.PNG})

	w := do(t, router, http.MethodGet, "/map/sector-images/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, sectorfile.Filename) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	file := w.Body.Bytes()

	_ = do(t, router, http.MethodDelete, "/map/sectors/5/image", nil)

	w = do(t, router, http.MethodPost, "/map/sector-images/import", file, "Content-Type", "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("import status = %d, body = %s", w.Code, w.Body.String())
	}
	if decodeMap(t, w).Doc.SectorImages[5] != testutil.PNG {
		t.Error("import did not restore the image")
	}
}

func TestImport_WrongTypeRejected(t *testing.T) {
	_, router := testEnv(t, "")
	_ = do(t, router, http.MethodPut, "/map/sectors/5/image", SetSectorImageRequest{Image: testutil.PNG})

	w := do(t, router, http.MethodPost, "/map/sector-images/import", `{"type":"nope","images":{}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if decodeMap(t, do(t, router, http.MethodGet, "/map", nil)).Doc.SectorImages[5] != testutil.PNG {
		t.Error("rejected import changed the images")
	}
}

func TestImport_Multipart(t *testing.T) {
	_, router := testEnv(t, "")
	file, _ := sectorfile.Encode(map[int]string{2: testutil.GIF})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", sectorfile.Filename)
	_, _ = fw.Write(file)
	mw.Close()

	w := do(t, router, http.MethodPost, "/map/sector-images/import", buf.Bytes(), "Content-Type", mw.FormDataContentType())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if decodeMap(t, w).Doc.SectorImages[2] != testutil.GIF {
		t.Error("multipart import not applied")
	}
}

func TestAddNode_GuardRejects(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/map/nodes", `{"title":"x","function_id":2,"score":1}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Field != "score" {
		t.Errorf("field = %q, want score", body.Field)
	}
}

func TestNodeLifecycle(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/map/nodes", `{"title":"x","function_id":2,"color":"red"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body = %s", w.Code, w.Body.String())
	}
	var added NodeResponse
	_ = json.Unmarshal(w.Body.Bytes(), &added)
	id := added.Node.ID

	w = do(t, router, http.MethodPatch, "/map/nodes/"+id+"/position", `{"x":10,"y":20}`)
	if w.Code != http.StatusOK {
		t.Fatalf("move status = %d", w.Code)
	}

	first := decodeMap(t, w).Doc.Nodes[0].ID
	w = do(t, router, http.MethodPost, "/map/edges", map[string]string{"from": id, "to": first})
	if w.Code != http.StatusCreated {
		t.Fatalf("edge status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodDelete, "/map/nodes/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove status = %d", w.Code)
	}
	if res := decodeMap(t, w); len(res.Doc.Edges) != 0 {
		t.Errorf("edges = %d after removing endpoint", len(res.Doc.Edges))
	}

	w = do(t, router, http.MethodDelete, "/map/nodes/"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d, want 404", w.Code)
	}
}

func TestClick(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/map/click", ClickRequest{X: 500, Y: 250, Width: 1000, Height: 1000})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out ClickResponse
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Action != mapservice.ActionSelectImage || out.FunctionID != 1 {
		t.Errorf("click = %+v", out)
	}

	w = do(t, router, http.MethodPost, "/map/click", ClickRequest{X: 0, Y: 0, Width: 1000, Height: 1000})
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Action != mapservice.ActionIgnored {
		t.Errorf("corner click = %+v", out)
	}
}

func TestLayout(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/map/layout?width=800&height=600", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var layout LayoutResponse
	_ = json.Unmarshal(w.Body.Bytes(), &layout)
	if len(layout.Wedges) != 12 {
		t.Errorf("wedges = %d, want 12", len(layout.Wedges))
	}

	w = do(t, router, http.MethodGet, "/map/layout?width=0&height=600", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("zero width status = %d", w.Code)
	}
}

func TestFunctionsAndOnboarding(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/functions", nil)
	var fns FunctionsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &fns)
	if len(fns.Functions) != 12 || len(fns.Groups) != 4 {
		t.Errorf("functions = %d, groups = %d", len(fns.Functions), len(fns.Groups))
	}

	w = do(t, router, http.MethodGet, "/onboarding", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("onboarding status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Shift+клик") {
		t.Errorf("hint missing: %s", w.Body.String())
	}
}

func TestCheckText(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/guard/text", `{"text":"This is the recommended next step"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
	var body errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Term != "recommended" || body.Lang != "en" {
		t.Errorf("term = %q lang = %q", body.Term, body.Lang)
	}

	for _, ok := range []string{`{"text":"Клик — задать образ"}`, `{"text":42}`, `{}`} {
		if w := do(t, router, http.MethodPost, "/guard/text", ok); w.Code != http.StatusOK {
			t.Errorf("%s: status = %d", ok, w.Code)
		}
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := do(t, router, http.MethodGet, "/map", nil, "Authorization", "Bearer secret123")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := do(t, router, http.MethodGet, "/map", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := do(t, router, http.MethodGet, "/map", nil, "Authorization", "Bearer wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_PublicRoutes(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if w := do(t, router, http.MethodGet, "/functions", nil); w.Code != http.StatusOK {
		t.Errorf("functions without token = %d, want 200", w.Code)
	}
}

func TestCORS(t *testing.T) {
	_, router := testEnv(t, "")
	h := CORS([]string{"http://localhost:5173"})(router)

	req := httptest.NewRequest(http.MethodOptions, "/map", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	req.Header.Set("Access-Control-Request-Headers", "If-Match")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/map", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected Allow-Origin %q for foreign origin", got)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")

	// No token → 401.
	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// testEnvWithSSE creates a router with a dummy SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()
	sess := testutil.TestSession(t, nil, nil)

	// Minimal SSE handler stub that writes headers and blocks until context done.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	return NewRouter(sess, authEnabled, token, sseHandler)
}
