package server

import (
	"net/http"
	"time"

	"courier/service/crash"
	"courier/service/util"
)

type healthResponse struct {
	Version   string             `json:"version"`
	Uptime    string             `json:"uptime"`
	Liveness  string             `json:"liveness"`
	Alive     bool               `json:"alive"`
	Consumer  consumerHealth     `json:"consumer"`
	KeepAlive *keepAliveHealth   `json:"keepAlive,omitempty"`
	Telegram  *integrationHealth `json:"telegram,omitempty"`
	Crashes   []crashSummary     `json:"recentCrashes,omitempty"`
}

type consumerHealth struct {
	Attached   bool `json:"attached"`
	Registered bool `json:"registered"`
	Pending    int  `json:"pending"`
}

type keepAliveHealth struct {
	Deadline time.Time `json:"deadline"`
}

type integrationHealth struct {
	Linked  bool   `json:"linked"`
	Account string `json:"account,omitempty"`
}

type crashSummary struct {
	Context string    `json:"context"`
	Error   string    `json:"error"`
	Panic   bool      `json:"panic,omitempty"`
	Time    time.Time `json:"time"`
}

type recentCrashes interface {
	Recent() []crash.Report
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.app.Snapshot()
	resp := healthResponse{
		Version:  s.version,
		Uptime:   util.FormatUptime(s.app.Uptime()),
		Liveness: snap.Liveness.String(),
		Alive:    snap.Alive(),
		Consumer: consumerHealth{
			Attached:   snap.HasRegisteredConsumer,
			Registered: s.app.Bridge.Registered(),
			Pending:    s.app.Bridge.Pending(),
		},
	}

	if deadline, ok := s.app.KeepAlive.Deadline(); ok {
		resp.KeepAlive = &keepAliveHealth{Deadline: deadline}
	}

	if s.cfg.IsTelegramEnabled() {
		account, ok := s.app.TelegramAccount(r.Context())
		resp.Telegram = &integrationHealth{Linked: ok, Account: account}
	}

	if rc, ok := s.app.Crash.(recentCrashes); ok {
		for _, c := range rc.Recent() {
			sum := crashSummary{Context: c.Context, Panic: c.Panic, Time: c.Time}
			if c.Err != nil {
				sum.Error = c.Err.Error()
			}
			resp.Crashes = append(resp.Crashes, sum)
		}
	}

	util.JSON(w, http.StatusOK, resp)
}
