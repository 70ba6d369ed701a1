package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cryptolocker/nftwallet/internal/wallet"
)

// disconnectedState 没有会话时的展示状态
func (s *Server) disconnectedState() wallet.State {
	return wallet.State{
		Status:        wallet.StatusDisconnected,
		ExpectedChain: s.opts.Network.ChainID,
		Network:       s.opts.Network.String(),
	}
}

func (s *Server) handleWalletState(w http.ResponseWriter, r *http.Request) {
	session, _ := s.current()
	if session == nil || !session.Connected() {
		writeJSON(w, http.StatusOK, s.disconnectedState())
		return
	}
	writeJSON(w, http.StatusOK, session.State())
}

func (s *Server) handleWalletConnect(w http.ResponseWriter, r *http.Request) {
	if s.opts.Provider == nil {
		writeError(w, http.StatusServiceUnavailable, "no signing wallet configured; use /api/wallet/watch")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	session, err := wallet.Connect(ctx, s.opts.Provider, s.opts.Network)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, wallet.ErrNoAccounts) || errors.Is(err, wallet.ErrUserRejected) {
			status = http.StatusUnauthorized
		}
		writeError(w, status, err.Error())
		return
	}
	s.setSession(session)
	writeJSON(w, http.StatusOK, session.State())
}

type watchRequest struct {
	Address string `json:"address"`
}

// handleWalletWatch 只读登录：地址在任何网络调用之前校验
func (s *Server) handleWalletWatch(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	backend := s.opts.Factory.Backend()
	if s.opts.Provider != nil {
		backend = s.opts.Provider.Backend()
	}
	session, err := wallet.Watch(req.Address, s.opts.Network, backend)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.setSession(session)
	writeJSON(w, http.StatusOK, session.State())
}

func (s *Server) handleWalletDisconnect(w http.ResponseWriter, r *http.Request) {
	s.setSession(nil)
	writeJSON(w, http.StatusOK, s.disconnectedState())
}

func (s *Server) handleWalletSwitchNetwork(w http.ResponseWriter, r *http.Request) {
	session, _ := s.current()
	if session == nil {
		writeError(w, statusFor(wallet.ErrNotConnected), wallet.ErrNotConnected.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := session.SwitchNetwork(ctx); err != nil {
		writeJSON(w, statusFor(err), map[string]interface{}{"error": err.Error(), "state": session.State()})
		return
	}
	writeJSON(w, http.StatusOK, session.State())
}
