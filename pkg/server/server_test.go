package server

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/util"
)

type diag struct {
	Severity util.Severity
	Line     int
	Text     string
	Warning  string
}

func diags(msgs []util.Message) []diag {
	var out []diag
	for _, m := range msgs {
		out = append(out, diag{m.Severity, m.Line, m.Text, m.Warning})
	}
	return out
}

func dial(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/compile"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, src string) Reply {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(src)); err != nil {
		t.Fatal(err)
	}
	var r Reply
	if err := conn.ReadJSON(&r); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestCompileOverWebsocket(t *testing.T) {
	conn := dial(t, New(config.NewConfig(), nil, nil))

	r := roundTrip(t, conn, "int f() {\n\tint x;\n\treturn x;\n}\n")
	if !r.OK || !strings.Contains(r.Listing, "int f()") {
		t.Errorf("reply %+v", r)
	}
	want := []diag{{util.SevWarning, 3, "'x' is not initialized.", "uninitialized"}}
	if diff := cmp.Diff(want, diags(r.Diagnostics)); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}

	// Binary frames are ignored, the connection stays usable
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	r = roundTrip(t, conn, "int f() {\n\treturn 1 / 0;\n}\n")
	if r.OK {
		t.Error("a script with errors must not be OK")
	}
	want = []diag{{util.SevError, 2, "Divide by zero", ""}}
	if diff := cmp.Diff(want, diags(r.Diagnostics)); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileWithHostInterface(t *testing.T) {
	dir := t.TempDir()
	host := filepath.Join(dir, "host.yaml")
	if err := os.WriteFile(host, []byte("functions:\n  - {decl: \"int answer()\", bind: answer}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(config.NewConfig(), []string{host}, nil).Compile("int f() { return answer(); }")
	if !r.OK || len(r.Diagnostics) != 0 {
		t.Errorf("reply %+v", r)
	}

	r = New(config.NewConfig(), []string{filepath.Join(dir, "missing.yaml")}, nil).Compile("void f() {}")
	if r.OK || len(r.Diagnostics) != 1 || r.Diagnostics[0].Line != 0 {
		t.Fatalf("reply %+v", r)
	}
	if !strings.Contains(r.Diagnostics[0].Text, "missing.yaml") {
		t.Errorf("diagnostic %q does not name the file", r.Diagnostics[0].Text)
	}
}

func TestMarshalReply(t *testing.T) {
	data, err := MarshalReply(Reply{Diagnostics: []util.Message{}, OK: true})
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"diagnostics": []any{}, "listing": "", "ok": true}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}
