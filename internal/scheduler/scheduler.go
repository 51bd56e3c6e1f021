package scheduler

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/robfig/cron/v3"

	"VaultTreasury/internal/notifier"
	"VaultTreasury/internal/recorder"
	"VaultTreasury/internal/sim"
	"VaultTreasury/internal/treasury"
)

const (
	sendRetries    = 3
	defaultHistory = 10
	maxHistory     = 50
)

// Scheduler runs the treasury's periodic jobs and operator commands.
type Scheduler struct {
	Cron     *cron.Cron
	Engine   *treasury.Engine
	World    *sim.World
	Notifier notifier.Sender
	Recorder recorder.Recorder
	// Operator is the identity automated calls are made as.
	Operator common.Address
	// SimStateFile, when set, receives the world after every job that changes it.
	SimStateFile string
	Ctx          context.Context

	// jobMu keeps jobs and commands from interleaving.
	jobMu      sync.Mutex
	lastAccrue time.Time
	now        func() time.Time
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, eng *treasury.Engine, world *sim.World, sender notifier.Sender, rec recorder.Recorder, operator common.Address) *Scheduler {
	return &Scheduler{
		Cron:       cron.New(cron.WithSeconds()),
		Engine:     eng,
		World:      world,
		Notifier:   sender,
		Recorder:   rec,
		Operator:   operator,
		Ctx:        ctx,
		lastAccrue: world.Now(),
		now:        world.Now,
	}
}

// RegisterAll registers the yield report, auto-distribution and accrual jobs.
// An empty distributeCron disables auto-distribution.
func (s *Scheduler) RegisterAll(yieldCron, distributeCron, accrueCron string) error {
	if _, err := s.Cron.AddFunc(yieldCron, s.yieldTask); err != nil {
		return fmt.Errorf("register yield task: %w", err)
	}
	if distributeCron != "" {
		if _, err := s.Cron.AddFunc(distributeCron, s.distributeTask); err != nil {
			return fmt.Errorf("register distribute task: %w", err)
		}
	}
	if _, err := s.Cron.AddFunc(accrueCron, s.accrueTask); err != nil {
		return fmt.Errorf("register accrue task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// RunYieldNow executes the yield report immediately.
func (s *Scheduler) RunYieldNow() {
	s.yieldTask()
}

func (s *Scheduler) yieldTask() {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	s.trySend(s.yieldReport())
}

func (s *Scheduler) yieldReport() string {
	log.Println("[INFO] running yield report")
	report, err := s.Engine.YieldReport(s.Ctx)
	if err != nil {
		log.Printf("[ERROR] yield report: %v", err)
		return fmt.Sprintf("❌ yield report failed: %v", err)
	}

	at := s.now()
	state := s.Engine.State()
	if err := s.Recorder.RecordYield(&recorder.YieldSnapshot{
		At:            at,
		StableBalance: state.StableBalance,
		TotalWeight:   state.TotalWeight,
		Yields:        report,
	}); err != nil {
		log.Printf("[ERROR] record yield: %v", err)
	}
	return notifier.FormatYieldReport(at, report, state.Vaults, s.lookup)
}

func (s *Scheduler) distributeTask() {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if s.Engine.TotalWeight().IsZero() {
		log.Println("[INFO] auto-distribution skipped: no weighted vaults")
		return
	}
	idle := s.Engine.StableBalance()
	if idle.IsZero() {
		log.Println("[INFO] auto-distribution skipped: nothing idle")
		return
	}
	s.trySend(s.distribute(idle))
}

func (s *Scheduler) distribute(amount *uint256.Int) string {
	log.Printf("[INFO] distributing %s", amount)
	if err := s.Engine.Distribute(s.Ctx, s.Operator, amount); err != nil {
		log.Printf("[ERROR] distribute: %v", err)
		return fmt.Sprintf("❌ distribution of %s failed: %v", amount, err)
	}
	s.saveWorld()
	state := s.Engine.State()
	symbol, decimals := s.lookup(state.StableCoin)
	return fmt.Sprintf("💸 <b>Distributed</b> %s %s\n\n%s",
		notifier.FormatAmount(amount, decimals), symbol,
		notifier.FormatVaults(state.Vaults, state.TotalWeight, s.lookup))
}

func (s *Scheduler) accrueTask() {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	now := s.now()
	if err := s.accrue(now.Sub(s.lastAccrue)); err != nil {
		log.Printf("[ERROR] accrue: %v", err)
		return
	}
	s.lastAccrue = now
}

func (s *Scheduler) accrue(elapsed time.Duration) error {
	grown, err := s.World.Accrue(elapsed)
	if err != nil {
		return err
	}
	log.Printf("[INFO] accrued %v of yield into %d vaults", elapsed, len(grown))
	s.saveWorld()
	return nil
}

// HandleCommand processes an operator command and returns a reply.
func (s *Scheduler) HandleCommand(command string, args []string) string {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	switch command {
	case "/status":
		state := s.Engine.State()
		return notifier.FormatTreasuryStatus(&state, s.lookup)
	case "/vaults":
		state := s.Engine.State()
		return notifier.FormatVaults(state.Vaults, state.TotalWeight, s.lookup)
	case "/yield":
		return s.yieldReport()
	case "/history":
		limit := defaultHistory
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return "usage: /history [count]"
			}
			limit = min(n, maxHistory)
		}
		events, err := s.Recorder.RecentEvents(limit)
		if err != nil {
			return fmt.Sprintf("❌ read history: %v", err)
		}
		return notifier.FormatEvents(events, s.lookup)
	case "/distribute":
		amount := s.Engine.StableBalance()
		if len(args) > 0 {
			v, err := uint256.FromDecimal(args[0])
			if err != nil {
				return "usage: /distribute [amount in base units]"
			}
			amount = v
		}
		return s.distribute(amount)
	case "/withdraw":
		if len(args) != 2 {
			return "usage: /withdraw <index> <shares>"
		}
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return "usage: /withdraw <index> <shares>"
		}
		shares, err := uint256.FromDecimal(args[1])
		if err != nil {
			return "usage: /withdraw <index> <shares>"
		}
		if err := s.Engine.Withdraw(s.Ctx, s.Operator, index, shares); err != nil {
			return fmt.Sprintf("❌ withdraw failed: %v", err)
		}
		s.saveWorld()
		state := s.Engine.State()
		return notifier.FormatTreasuryStatus(&state, s.lookup)
	case "/accrue":
		if len(args) != 1 {
			return "usage: /accrue <duration, e.g. 720h>"
		}
		elapsed, err := time.ParseDuration(args[0])
		if err != nil || elapsed <= 0 {
			return "usage: /accrue <duration, e.g. 720h>"
		}
		if err := s.accrue(elapsed); err != nil {
			return fmt.Sprintf("❌ accrue failed: %v", err)
		}
		return fmt.Sprintf("⏩ accrued %v of yield", elapsed)
	default:
		return "Commands:\n• /status\n• /vaults\n• /yield\n• /history [count]\n• /distribute [amount]\n• /withdraw &lt;index&gt; &lt;shares&gt;\n• /accrue &lt;duration&gt;"
	}
}

func (s *Scheduler) lookup(asset common.Address) (string, uint8) {
	if meta, ok := s.World.TokenMeta(asset); ok {
		return meta.Symbol, meta.Decimals
	}
	h := asset.Hex()
	return h[:6] + "…" + h[len(h)-4:], 0
}

// SaveWorld writes the simulated chain to SimStateFile.
func (s *Scheduler) SaveWorld() {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	s.saveWorld()
}

func (s *Scheduler) saveWorld() {
	if s.SimStateFile == "" {
		return
	}
	if err := sim.SaveState(s.SimStateFile, s.World); err != nil {
		log.Printf("[ERROR] save sim state: %v", err)
	}
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.SendWithRetry(s.Ctx, text, sendRetries); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
