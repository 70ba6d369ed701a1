package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cryptolocker/nftwallet/internal/actions"
	"github.com/cryptolocker/nftwallet/internal/dashboard"
	"github.com/cryptolocker/nftwallet/internal/wallet"
)

// readySession 读取类接口：已连接且网络正确
func (s *Server) readySession(w http.ResponseWriter) (*wallet.Session, bool) {
	session, _ := s.current()
	if session == nil {
		writeError(w, statusFor(wallet.ErrNotConnected), wallet.ErrNotConnected.Error())
		return nil, false
	}
	if err := session.RequireNetwork(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return nil, false
	}
	return session, true
}

func (s *Server) dashboardFor(session *wallet.Session) *dashboard.Service {
	return s.dash.WithBackend(session.Backend())
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	session, ok := s.readySession(w)
	if !ok {
		return
	}
	snap, err := s.dashboardFor(session).Fetch(r.Context(), session.Account())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	session, ok := s.readySession(w)
	if !ok {
		return
	}
	pos, err := s.dashboardFor(session).Position(r.Context(), session.Account())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	session, ok := s.readySession(w)
	if !ok {
		return
	}
	listings, err := s.dashboardFor(session).Listings(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, actions.ListingViews(listings))
}

func (s *Server) handleMyListings(w http.ResponseWriter, r *http.Request) {
	session, ok := s.readySession(w)
	if !ok {
		return
	}
	listings, err := s.dashboardFor(session).MyListings(r.Context(), session.Account())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, actions.ListingViews(listings))
}

// handleActivityList 默认当前账户；?account= 查询其他地址，?all=1 返回全部
func (s *Server) handleActivityList(w http.ResponseWriter, r *http.Request) {
	if s.opts.Activity == nil {
		writeError(w, http.StatusServiceUnavailable, "activity log disabled")
		return
	}
	q := r.URL.Query()
	account := strings.TrimSpace(q.Get("account"))
	if account == "" && q.Get("all") == "" {
		if session, _ := s.current(); session != nil && session.Connected() {
			account = session.Account().Hex()
		}
	}
	limit := 100
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	entries, err := s.opts.Activity.List(r.Context(), account, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"account": account, "entries": entries})
}

func (s *Server) handleActivityGet(w http.ResponseWriter, r *http.Request) {
	if s.opts.Activity == nil {
		writeError(w, http.StatusServiceUnavailable, "activity log disabled")
		return
	}
	e, err := s.opts.Activity.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleSagas(w http.ResponseWriter, r *http.Request) {
	_, d := s.current()
	if d == nil {
		writeError(w, statusFor(wallet.ErrNotConnected), wallet.ErrNotConnected.Error())
		return
	}
	sagas, err := d.Sagas()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sagas)
}
