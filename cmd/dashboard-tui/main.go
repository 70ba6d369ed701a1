package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/cryptolocker/nftwallet/internal/actions"
	"github.com/cryptolocker/nftwallet/internal/app"
	"github.com/cryptolocker/nftwallet/internal/dashboard"
	"github.com/cryptolocker/nftwallet/internal/wallet"
	"github.com/cryptolocker/nftwallet/market/types"
	"github.com/cryptolocker/nftwallet/pkg/config"
	"github.com/cryptolocker/nftwallet/pkg/logger"
	"github.com/cryptolocker/nftwallet/pkg/sigchan"
	"github.com/cryptolocker/nftwallet/pkg/units"
)

const refreshInterval = 15 * time.Second

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// model 只读面板：账户概览 + 质押/金库 + 在售列表
type model struct {
	session *wallet.Session
	dash    *dashboard.Service
	network types.Network
	events  *sigchan.Chan

	snapshot *dashboard.Snapshot
	position *dashboard.Position
	listings []actions.ListingView

	loading bool
	err     error
	posErr  error
	updated time.Time
}

type tickMsg time.Time

// walletEventMsg 链或账户变化
type walletEventMsg struct{}

// refreshedMsg 一轮读取的结果；概览失败时整体失败，质押/金库失败只影响该面板
type refreshedMsg struct {
	snapshot *dashboard.Snapshot
	position *dashboard.Position
	listings []actions.ListingView
	err      error
	posErr   error
	at       time.Time
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.refreshCmd(), m.waitEventCmd())
}

// waitEventCmd 连续多个钱包事件只触发一次刷新
func (m model) waitEventCmd() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		<-events.C()
		return walletEventMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			if !m.loading {
				m.loading = true
				return m, m.refreshCmd()
			}
		}

	case walletEventMsg:
		m.loading = true
		return m, tea.Batch(m.refreshCmd(), m.waitEventCmd())

	case tickMsg:
		if m.loading {
			return m, tickCmd()
		}
		m.loading = true
		return m, tea.Batch(tickCmd(), m.refreshCmd())

	case refreshedMsg:
		m.loading = false
		m.err, m.posErr = msg.err, msg.posErr
		if msg.err == nil {
			m.snapshot, m.listings, m.updated = msg.snapshot, msg.listings, msg.at
		}
		if msg.posErr == nil {
			m.position = msg.position
		}
	}
	return m, nil
}

func (m model) View() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(fmt.Sprintf("NFT Wallet · %s", m.network)))
	s.WriteString("\n\n")

	state := m.session.State()
	acct := types.ShortenAddress(state.Account.Hex())
	if state.ReadOnly {
		acct += dimStyle.Render(" (read-only)")
	}
	s.WriteString(titleStyle.Render("Account ") + acct + "\n")
	if !state.CorrectNetwork {
		s.WriteString(errStyle.Render(fmt.Sprintf("Wrong network: connected to %d, expected %d", state.ChainID, state.ExpectedChain)) + "\n")
	}
	s.WriteString("\n")

	if m.err != nil {
		s.WriteString(errStyle.Render("Error: "+m.err.Error()) + "\n\n")
	}
	if m.snapshot == nil {
		s.WriteString(dimStyle.Render("Loading...") + "\n")
		return s.String()
	}

	s.WriteString(borderStyle.Render(m.overview()))
	s.WriteString("\n")
	s.WriteString(borderStyle.Render(m.positionView()))
	s.WriteString("\n")
	s.WriteString(borderStyle.Render(m.listingsView()))
	s.WriteString("\n")

	status := "updated " + m.updated.Format("15:04:05")
	if m.loading {
		status = "refreshing..."
	}
	s.WriteString(dimStyle.Render(status + " · r refresh · q quit"))
	return s.String()
}

func (m model) overview() string {
	snap := m.snapshot
	var s strings.Builder
	s.WriteString(titleStyle.Render("Overview") + "\n")
	s.WriteString(fmt.Sprintf("NFTs owned        %s\n", snap.NFTBalance))
	s.WriteString(fmt.Sprintf("USDC balance      %s\n", okStyle.Render(snap.TokenBalanceFormatted)))
	s.WriteString(fmt.Sprintf("Pending earnings  %s\n", snap.PendingEarningsFormatted))
	s.WriteString(fmt.Sprintf("Platform fee      %s", snap.PlatformFeeFormatted))
	return s.String()
}

func (m model) positionView() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Staking & vaults") + "\n")
	switch {
	case m.posErr != nil:
		s.WriteString(dimStyle.Render("unavailable: " + m.posErr.Error()))
		return s.String()
	case m.position == nil:
		s.WriteString(dimStyle.Render("--"))
		return s.String()
	}
	if st := m.position.Stake; st != nil {
		s.WriteString(fmt.Sprintf("Staked   %s USDC\n", units.FormatFixed(st.Amount, types.PaymentTokenDecimals, 2)))
		s.WriteString(fmt.Sprintf("Rewards  %s USDC\n", units.FormatFixed(st.PendingReward, types.PaymentTokenDecimals, 2)))
	}
	if len(m.position.Vaults) == 0 {
		s.WriteString(dimStyle.Render("no vaults"))
		return s.String()
	}
	now := time.Now()
	for _, v := range m.position.Vaults {
		state := "locked until " + v.UnlockTime.Format("2006-01-02 15:04")
		switch {
		case v.Withdrawn:
			state = dimStyle.Render("withdrawn")
		case v.Unlockable(now):
			state = okStyle.Render("unlockable")
		}
		s.WriteString(fmt.Sprintf("#%s  %s  %s\n", v.ID, v.Amount, state))
	}
	return strings.TrimRight(s.String(), "\n")
}

func (m model) listingsView() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render(fmt.Sprintf("Active listings (%d)", len(m.listings))) + "\n")
	if len(m.listings) == 0 {
		s.WriteString(dimStyle.Render("--"))
		return s.String()
	}
	for i, l := range m.listings {
		if i == 10 {
			s.WriteString(dimStyle.Render(fmt.Sprintf("... %d more", len(m.listings)-10)))
			break
		}
		s.WriteString(fmt.Sprintf("#%-6s %10s USDC  %s\n", l.TokenID, l.PriceFormatted, l.SellerShort))
	}
	return strings.TrimRight(s.String(), "\n")
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) refreshCmd() tea.Cmd {
	session, dash := m.session, m.dash
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		out := refreshedMsg{at: time.Now()}
		if err := session.RequireNetwork(); err != nil {
			out.err = err
			return out
		}
		account := session.Account()
		out.snapshot, out.err = dash.Fetch(ctx, account)
		if out.err == nil {
			var ls []types.Listing
			ls, out.err = dash.Listings(ctx)
			out.listings = actions.ListingViews(ls)
		}
		out.position, out.posErr = dash.Position(ctx, account)
		return out
	}
}

func main() {
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", os.Getenv("NFTWALLET_CONFIG"), "YAML config file (optional)")
		watch      = flag.String("watch", "", "address to display (defaults to the configured wallet)")
		simulate   = flag.Bool("simulate", false, "run against an in-process simulated chain")
	)
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	// TUI 占用终端，日志只写文件
	cfg.Log.Quiet = true
	if err := logger.Init(cfg.Log); err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	a, err := app.New(ctx, cfg, app.Options{Simulate: *simulate, SkipActivity: true})
	if err != nil {
		cancel()
		log.Fatalf("启动失败: %v", err)
	}
	defer a.Close()

	var session *wallet.Session
	switch {
	case *watch != "":
		session, err = wallet.Watch(*watch, cfg.Network, a.Factory.Backend())
	case a.WalletProvider() != nil:
		session, err = wallet.Connect(ctx, a.WalletProvider(), cfg.Network)
	default:
		err = fmt.Errorf("no wallet configured; pass -watch <address>")
	}
	cancel()
	if err != nil {
		log.Fatalf("连接钱包失败: %v", err)
	}
	defer wallet.Disconnect(session)

	m := model{
		session: session,
		dash:    dashboard.NewService(a.Factory, cfg.Network).WithBackend(session.Backend()),
		network: cfg.Network,
		events:  sigchan.New(1),
		loading: true,
	}
	// 链 / 账户切换后立即刷新
	unsubscribe := session.OnEvent(func(wallet.Event) { m.events.Emit() })
	defer unsubscribe()
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("运行程序失败: %v", err)
	}
}
