// Package server exposes the wallet session, marketplace actions, dashboard and pinning over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cryptolocker/nftwallet/internal/actions"
	"github.com/cryptolocker/nftwallet/internal/activity"
	"github.com/cryptolocker/nftwallet/internal/dashboard"
	"github.com/cryptolocker/nftwallet/internal/metrics"
	"github.com/cryptolocker/nftwallet/internal/wallet"
	"github.com/cryptolocker/nftwallet/market/client"
	"github.com/cryptolocker/nftwallet/market/types"
	"github.com/cryptolocker/nftwallet/pkg/persistence"
	"github.com/cryptolocker/nftwallet/pkg/pinning"
	"github.com/cryptolocker/nftwallet/pkg/units"
)

var serverLog = logrus.WithField("component", "server")

// Options 除 Network / Factory 外都可以为空
type Options struct {
	Network types.Network
	Factory *client.Factory
	// Provider 为空时只能 watch 地址
	Provider wallet.Provider
	Pinning  *pinning.Client
	Activity *activity.Store
	Sagas    persistence.Service
	Metrics  *metrics.Metrics

	ConfirmTimeout time.Duration
}

type Server struct {
	opts Options
	dash *dashboard.Service
	hub  *hub

	mu          sync.RWMutex
	session     *wallet.Session
	dispatcher  *actions.Dispatcher
	unsubscribe func()
}

func New(opts Options) (*Server, error) {
	if opts.Factory == nil {
		return nil, errors.New("contract factory is required")
	}
	if opts.Network.ChainID == 0 {
		return nil, errors.New("network is required")
	}
	if opts.Sagas == nil {
		opts.Sagas = persistence.NewMemoryService()
	}
	return &Server{
		opts: opts,
		dash: dashboard.NewService(opts.Factory, opts.Network),
		hub:  newHub(),
	}, nil
}

// Close 断开会话并关闭所有 websocket
func (s *Server) Close() error {
	s.setSession(nil)
	s.hub.close()
	return nil
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	if s.opts.Metrics != nil {
		r.Use(s.opts.Metrics.Middleware())
	}

	r.GET("/healthz", s.wrap(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	api := r.Group("/api")
	api.GET("/events", s.wrap(s.handleEvents))
	api.GET("/network", s.wrap(s.handleNetwork))

	walletGroup := api.Group("/wallet")
	walletGroup.GET("", s.wrap(s.handleWalletState))
	walletGroup.POST("/connect", s.wrap(s.handleWalletConnect))
	walletGroup.POST("/watch", s.wrap(s.handleWalletWatch))
	walletGroup.POST("/disconnect", s.wrap(s.handleWalletDisconnect))
	walletGroup.POST("/switch-network", s.wrap(s.handleWalletSwitchNetwork))

	api.GET("/dashboard", s.wrap(s.handleDashboard))
	api.GET("/dashboard/position", s.wrap(s.handlePosition))

	listings := api.Group("/listings")
	listings.GET("", s.wrap(s.handleListings))
	listings.GET("/mine", s.wrap(s.handleMyListings))
	listings.POST("", s.wrap(s.handleList))
	tokenID := listings.Group("/:tokenID")
	tokenID.GET("", s.wrap(s.handleGetListing))
	tokenID.POST("/buy", s.wrap(s.handleBuy))
	tokenID.PUT("/price", s.wrap(s.handleUpdatePrice))
	tokenID.DELETE("", s.wrap(s.handleCancel))

	api.POST("/nfts/mint", s.wrap(s.handleMint))
	api.POST("/nfts/mint/upload", s.wrap(s.handleMintUpload))
	api.POST("/approvals/marketplace", s.wrap(s.handleApproveMarketplace))
	api.POST("/approvals/token", s.wrap(s.handleApproveToken))
	api.POST("/earnings/withdraw", s.wrap(s.handleWithdraw))
	api.POST("/transfer", s.wrap(s.handleTransfer))

	staking := api.Group("/staking")
	staking.POST("/stake", s.wrap(s.handleStake))
	staking.POST("/unstake", s.wrap(s.handleUnstake))
	staking.POST("/claim", s.wrap(s.handleClaim))

	api.POST("/swap", s.wrap(s.handleSwap))
	api.POST("/vaults", s.wrap(s.handleLock))
	api.POST("/vaults/:vaultID/unlock", s.wrap(s.handleUnlock))

	api.GET("/activity", s.wrap(s.handleActivityList))
	api.GET("/activity/:id", s.wrap(s.handleActivityGet))
	api.GET("/sagas", s.wrap(s.handleSagas))

	return r
}

type paramsKeyType string

const paramsKey paramsKeyType = "nftwallet_path_params"

// wrap adapts net/http handlers to gin, injecting path params into request context.
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := map[string]string{}
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		ctx := context.WithValue(c.Request.Context(), paramsKey, m)
		c.Request = c.Request.WithContext(ctx)
		h(c.Writer, c.Request)
	}
}

func pathParam(r *http.Request, key string) string {
	m, _ := r.Context().Value(paramsKey).(map[string]string)
	return m[key]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		serverLog.Warnf("[server] 写响应失败: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid json body")
	}
	return nil
}

// statusFor 错误 -> HTTP 状态码；未识别的按链上失败处理
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidAddress), errors.Is(err, units.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, wallet.ErrNotConnected):
		return http.StatusUnauthorized
	case errors.Is(err, wallet.ErrReadOnly), errors.Is(err, actions.ErrNotOwner), errors.Is(err, actions.ErrOwnListing):
		return http.StatusForbidden
	case errors.Is(err, actions.ErrNotListed), errors.Is(err, activity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, wallet.ErrWrongNetwork), errors.Is(err, actions.ErrNothingToWithdraw),
		errors.Is(err, actions.ErrStillLocked), errors.Is(err, actions.ErrAlreadyWithdrawn):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (s *Server) current() (*wallet.Session, *actions.Dispatcher) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session, s.dispatcher
}

// setSession 替换当前会话；旧会话会被断开
func (s *Server) setSession(session *wallet.Session) {
	s.mu.Lock()
	old, unsubscribe := s.session, s.unsubscribe
	s.session, s.dispatcher, s.unsubscribe = nil, nil, nil
	if session != nil {
		s.session = session
		s.dispatcher = actions.NewDispatcher(session, s.opts.Factory, s.dispatcherOptions())
		s.unsubscribe = session.OnEvent(func(ev wallet.Event) {
			s.hub.publish("wallet", ev)
			if ev.Kind == wallet.EventDisconnected && s.opts.Metrics != nil {
				s.opts.Metrics.SetConnected(false)
			}
		})
	}
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if old != nil && old != session {
		wallet.Disconnect(old)
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.SetConnected(session != nil)
	}
}

func (s *Server) dispatcherOptions() actions.Options {
	opts := actions.Options{Sagas: s.opts.Sagas, ConfirmTimeout: s.opts.ConfirmTimeout}
	// 避免把 typed nil 放进接口
	if s.opts.Activity != nil {
		opts.Recorder = s.opts.Activity
	}
	if s.opts.Metrics != nil {
		opts.Observer = s.opts.Metrics
	}
	return opts
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"network":   s.opts.Network,
		"contracts": s.opts.Factory.Contracts(),
		"addChain":  s.opts.Network.AddChainParams(),
	})
}
