// Package server compiles scripts sent over a websocket and answers with diagnostics.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/xplshn/gasc/pkg/builder"
	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/registry"
	"github.com/xplshn/gasc/pkg/util"
)

// Reply answers one script.
type Reply struct {
	Diagnostics []util.Message `json:"diagnostics"`
	Listing     string         `json:"listing"`
	OK          bool           `json:"ok"`
}

type Server struct {
	cfg       *config.Config
	hostFiles []string
	log       io.Writer
	upgrader  websocket.Upgrader
}

// New returns a server that builds every script with cfg plus the given host interface files.
// Connection events go to log, which may be nil.
func New(cfg *config.Config, hostFiles []string, log io.Writer) *Server {
	return &Server{
		cfg:       cfg,
		hostFiles: hostFiles,
		log:       log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		fmt.Fprintf(s.log, format+"\n", args...)
	}
}

// Handler serves GET /compile.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /compile", s.serveCompile)
	return mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.logf("Serving diagnostics on ws://%s/compile", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) serveCompile(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logf("upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()
	s.logf("client %s connected", r.RemoteAddr)

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logf("client %s: %v", r.RemoteAddr, err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		reply := s.Compile(string(msg))
		if err := conn.WriteJSON(reply); err != nil {
			s.logf("client %s: %v", r.RemoteAddr, err)
			return
		}
	}
}

// Compile builds src with a fresh engine. Driver failures, such as a broken host interface
// file, are reported as a diagnostic without a position.
func (s *Server) Compile(src string) Reply {
	rep := util.NewReporter(s.cfg, nil, nil)
	reply := Reply{Diagnostics: []util.Message{}}

	eng, err := registry.NewEngine(s.cfg)
	if err == nil {
		for _, path := range s.hostFiles {
			if err = eng.LoadHostInterfaceFile(path); err != nil {
				break
			}
		}
	}
	if err != nil {
		reply.Diagnostics = append(reply.Diagnostics, util.Message{Severity: util.SevError, Text: err.Error()})
		return reply
	}

	mod, err := builder.CompileSource(eng, rep, "<websocket>", src)
	reply.Diagnostics = append(reply.Diagnostics, rep.Messages...)
	if mod != nil {
		reply.Listing = mod.Listing()
	}
	reply.OK = err == nil && !rep.HadErrors()
	return reply
}

// MarshalReply is the exact payload written for a reply.
func MarshalReply(r Reply) ([]byte, error) { return json.Marshal(r) }
