package initializer

import (
	"context"
	"io"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/lagrangedao/go-compute-market/conf"
	"github.com/lagrangedao/go-compute-market/constants"
	"github.com/lagrangedao/go-compute-market/internal/ledger"
	"github.com/lagrangedao/go-compute-market/internal/market"
	"golang.org/x/xerrors"
)

// Node holds the components of a running market node.
type Node struct {
	Store  ledger.Store
	Ledger *ledger.Ledger
	Hub    *market.Hub
	Relay  *market.EventRelay
	Nonces market.NonceCache
	Info   market.NodeInfo

	stopAudit chan struct{}
	auditDone chan struct{}
}

// OpenStore opens the ledger backend selected in the config.
func OpenStore(c *conf.MarketNode) (ledger.Store, error) {
	switch c.LEDGER.Backend {
	case constants.BackendMemory:
		logs.GetLogger().Warn("ledger runs in memory, state is lost on shutdown")
		return ledger.NewMemoryStore(), nil
	case constants.BackendLevelDB:
		return ledger.OpenLevelDBStore(c.LEDGER.DataPath)
	case constants.BackendRedis:
		pool := ledger.NewRedisPool(c.LEDGER.RedisUrl, c.LEDGER.RedisPassword)
		conn := pool.Get()
		defer conn.Close()
		if _, err := conn.Do("PING"); err != nil {
			pool.Close()
			return nil, xerrors.Errorf("connecting to ledger redis %s: %w", c.LEDGER.RedisUrl, err)
		}
		return ledger.NewRedisStore(pool, c.LEDGER.KeyPrefix), nil
	}
	return nil, xerrors.Errorf("unknown ledger backend: %s", c.LEDGER.Backend)
}

// OpenLedger loads the repo config and opens its ledger without starting
// any background service. Used by offline admin commands.
func OpenLedger(repoPath string) (*ledger.Ledger, ledger.Store, error) {
	if err := conf.InitConfig(repoPath); err != nil {
		return nil, nil, err
	}
	store, err := OpenStore(conf.GetConfig())
	if err != nil {
		return nil, nil, err
	}
	return ledger.New(store), store, nil
}

func ProjectInit(repoPath string) (*Node, error) {
	if err := conf.InitConfig(repoPath); err != nil {
		return nil, err
	}
	c := conf.GetConfig()

	nodeID, address, err := GenerateNodeID(repoPath)
	if err != nil {
		return nil, err
	}
	logs.GetLogger().Infof("Node ID: %s address: %s", nodeID, address)

	store, err := OpenStore(c)
	if err != nil {
		return nil, err
	}

	n := &Node{
		Store: store,
		Hub:   market.NewHub(),
		Info: market.NodeInfo{
			Name:    c.API.NodeName,
			ID:      nodeID,
			Address: address,
			Backend: c.LEDGER.Backend,
		},
	}
	opts := []ledger.Option{ledger.WithListener(n.Hub)}

	if c.EVENTS.Enabled {
		relay, err := market.NewEventRelay(ledger.NewRedisPool(c.EVENTS.RedisUrl, c.EVENTS.RedisPassword), c.EVENTS.Workers)
		if err != nil {
			store.Close()
			return nil, xerrors.Errorf("failed init event relay: %w", err)
		}
		relay.Start()
		n.Relay = relay
		opts = append(opts, ledger.WithListener(relay))
	}

	if c.LEDGER.Backend == constants.BackendRedis {
		n.Nonces = market.NewRedisNonceCache(ledger.NewRedisPool(c.LEDGER.RedisUrl, c.LEDGER.RedisPassword), c.LEDGER.KeyPrefix)
	} else {
		n.Nonces = market.NewMemoryNonceCache()
	}
	n.Ledger = ledger.New(store, opts...)
	n.startAudit(c.LEDGER.AuditInterval.Duration)
	return n, nil
}

func (n *Node) startAudit(interval time.Duration) {
	n.stopAudit = make(chan struct{})
	n.auditDone = make(chan struct{})
	go func() {
		defer close(n.auditDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n.audit()
			case <-n.stopAudit:
				return
			}
		}
	}()
}

func (n *Node) audit() {
	report, err := n.Ledger.CheckInvariants(context.Background())
	if err != nil {
		logs.GetLogger().Errorf("Failed audit ledger, error: %v", err)
		return
	}
	if report.Broken {
		logs.GetLogger().Errorf("ledger invariants broken:\n%s", report)
		return
	}
	logs.GetLogger().Debug(report.String())
}

// Stop shuts the background services down and closes the store.
func (n *Node) Stop(ctx context.Context) error {
	if n.stopAudit != nil {
		close(n.stopAudit)
		<-n.auditDone
		n.stopAudit = nil
	}
	n.Hub.Close()
	if n.Relay != nil {
		if err := n.Relay.Stop(ctx); err != nil {
			logs.GetLogger().Errorf("stopping event relay: %v", err)
		}
	}
	if closer, ok := n.Nonces.(io.Closer); ok {
		closer.Close()
	}
	return n.Store.Close()
}
