package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"billfactor/config"
	"billfactor/core/events"
	"billfactor/core/genesis"
	"billfactor/core/state"
	"billfactor/crypto"
	"billfactor/native/bank"
	"billfactor/native/factoring"
	"billfactor/observability"
	"billfactor/storage"
)

// Node hosts the factoring engine over durable state. Every mutating call runs
// under the node mutex and either commits all of its writes in one batch or
// none of them. Events are published only after a successful commit.
type Node struct {
	mu      sync.RWMutex
	db      storage.Database
	state   *state.Manager
	bank    *bank.Ledger
	engine  *factoring.Engine
	buffer  *events.Buffer
	feed    *events.Feed
	logger  *slog.Logger
	metrics *observability.FactoringMetrics
	params  *genesis.Params
}

// NewNode opens the node over db, applying genesis from cfg when the store is
// empty.
func NewNode(db storage.Database, cfg *config.Config, logger *slog.Logger) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	params, err := genesis.ResolveParams(cfg)
	if err != nil {
		return nil, err
	}

	st := state.NewManager(db)
	if err := genesis.Apply(st, cfg); err != nil {
		st.Discard()
		return nil, err
	}
	if err := st.Commit(); err != nil {
		st.Discard()
		return nil, err
	}

	ledger := bank.NewLedger(st)
	buffer := &events.Buffer{}
	engine := factoring.NewEngine()
	engine.SetState(st)
	engine.SetTransferer(ledger)
	engine.SetVault(params.Vault)
	engine.SetOwner(params.Owner)
	engine.SetCurrencies(params.Currencies)
	engine.SetEmitter(buffer)

	n := &Node{
		db:      db,
		state:   st,
		bank:    ledger,
		engine:  engine,
		buffer:  buffer,
		feed:    events.NewFeed(),
		logger:  logger,
		metrics: observability.Factoring(),
		params:  params,
	}
	n.refreshPoolGauges()
	logger.Info("node ready",
		slog.String("vault", crypto.FromBytes20(params.Vault).String()),
		slog.Any("currencies", params.Currencies))
	return n, nil
}

// SetNowFunc overrides the engine clock.
func (n *Node) SetNowFunc(now func() int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.engine.SetNowFunc(now)
}

// Vault returns the address holding escrowed deposits and pool fees.
func (n *Node) Vault() [20]byte { return n.params.Vault }

// Owner returns the module owner.
func (n *Node) Owner() [20]byte { return n.params.Owner }

// Currencies returns the settlement currencies in sorted order.
func (n *Node) Currencies() []string {
	return append([]string(nil), n.params.Currencies...)
}

// Close closes the underlying store.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.db.Close()
}

// Subscribe streams committed events. See events.Feed.Subscribe.
func (n *Node) Subscribe(ctx context.Context, cursor string) (<-chan events.Update, func(), []events.Update, error) {
	return n.feed.Subscribe(ctx, cursor)
}

// Subscribers reports the number of active event subscribers.
func (n *Node) Subscribers() int { return n.feed.Subscribers() }

func (n *Node) execute(op string, caller [20]byte, fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	start := time.Now()
	n.buffer.Reset()
	err := fn()
	if err == nil {
		err = n.state.Commit()
	}
	if err != nil {
		n.state.Discard()
		n.buffer.Reset()
		kind := factoring.KindOf(err)
		n.metrics.ObserveCall(op, kind, time.Since(start))
		n.logger.Warn("factoring call rejected",
			slog.String("op", op),
			slog.String("caller", crypto.FromBytes20(caller).String()),
			slog.String("kind", kind),
			slog.String("error", err.Error()))
		return err
	}

	published := n.buffer.Drain()
	n.feed.Publish(published)
	for _, evt := range published {
		observability.Events().RecordPublished(evt.Type)
	}
	n.refreshPoolGauges()
	n.metrics.ObserveCall(op, "ok", time.Since(start))
	n.logger.Debug("factoring call committed",
		slog.String("op", op),
		slog.String("caller", crypto.FromBytes20(caller).String()),
		slog.Int("events", len(published)))
	return nil
}

func (n *Node) refreshPoolGauges() {
	for _, currency := range n.params.Currencies {
		pool, err := n.state.FactoringPoolBalance(currency)
		if err != nil {
			continue
		}
		n.metrics.SetPoolBalance(currency, pool)
	}
}

func (n *Node) CreateBillRequest(caller [20]byte, total *big.Int, dueDate uint64) (*factoring.BillRequest, error) {
	var out *factoring.BillRequest
	err := n.execute("createBillRequest", caller, func() (err error) {
		out, err = n.engine.CreateBillRequest(caller, total, dueDate)
		return err
	})
	return out, err
}

func (n *Node) CancelBillRequest(caller [20]byte, id uint64) (*factoring.BillRequest, error) {
	var out *factoring.BillRequest
	err := n.execute("cancelBillRequest", caller, func() (err error) {
		out, err = n.engine.CancelBillRequest(caller, id)
		return err
	})
	return out, err
}

func (n *Node) CreateOffer(caller [20]byte, requestID uint64, currency string, cond factoring.Conditions) (*factoring.Offer, error) {
	var out *factoring.Offer
	err := n.execute("createOffer", caller, func() (err error) {
		out, err = n.engine.CreateOffer(caller, requestID, currency, cond)
		return err
	})
	return out, err
}

func (n *Node) WithdrawOffer(caller [20]byte, offerID uint64) (*factoring.Offer, error) {
	var out *factoring.Offer
	err := n.execute("withdrawOffer", caller, func() (err error) {
		out, err = n.engine.WithdrawOffer(caller, offerID)
		return err
	})
	return out, err
}

func (n *Node) AcceptOffer(caller [20]byte, offerID uint64) (*factoring.Bill, error) {
	var out *factoring.Bill
	err := n.execute("acceptOffer", caller, func() (err error) {
		out, err = n.engine.AcceptOffer(caller, offerID)
		return err
	})
	return out, err
}

func (n *Node) CompleteBill(caller [20]byte, billID uint64) (*factoring.Settlement, error) {
	var out *factoring.Settlement
	err := n.execute("completeBill", caller, func() (err error) {
		out, err = n.engine.CompleteBill(caller, billID)
		return err
	})
	return out, err
}

func (n *Node) MarkBillDefaulted(caller [20]byte, billID uint64) (*factoring.Bill, error) {
	var out *factoring.Bill
	err := n.execute("markBillDefaulted", caller, func() (err error) {
		out, err = n.engine.MarkBillDefaulted(caller, billID)
		return err
	})
	return out, err
}

func (n *Node) TransferBill(caller, from, to [20]byte, id uint64) error {
	return n.execute("transferBill", caller, func() error {
		return n.engine.TransferBill(caller, from, to, id)
	})
}

func (n *Node) Approve(caller [20]byte, id uint64, spender [20]byte) error {
	return n.execute("approve", caller, func() error {
		return n.engine.Approve(caller, id, spender)
	})
}

func (n *Node) SetApprovalForAll(caller, operator [20]byte, approved bool) error {
	return n.execute("setApprovalForAll", caller, func() error {
		return n.engine.SetApprovalForAll(caller, operator, approved)
	})
}

func (n *Node) WithdrawFromPool(caller [20]byte, amount *big.Int, currency string) (*big.Int, error) {
	var out *big.Int
	err := n.execute("withdrawFromPool", caller, func() (err error) {
		out, err = n.engine.WithdrawFromPool(caller, amount, currency)
		return err
	})
	return out, err
}

func (n *Node) SetDefaultConditions(caller [20]byte, cond factoring.Conditions) error {
	return n.execute("setDefaultConditions", caller, func() error {
		return n.engine.SetDefaultConditions(caller, cond)
	})
}

func (n *Node) Pause(caller [20]byte) error {
	return n.execute("pause", caller, func() error { return n.engine.Pause(caller) })
}

func (n *Node) Unpause(caller [20]byte) error {
	return n.execute("unpause", caller, func() error { return n.engine.Unpause(caller) })
}

func (n *Node) GrantRole(caller [20]byte, role string, addr [20]byte) error {
	return n.execute("grantRole", caller, func() error {
		return n.engine.GrantRole(caller, role, addr)
	})
}

func (n *Node) RevokeRole(caller [20]byte, role string, addr [20]byte) error {
	return n.execute("revokeRole", caller, func() error {
		return n.engine.RevokeRole(caller, role, addr)
	})
}

// read runs a query under the read lock.
func (n *Node) read(fn func() error) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return fn()
}

func (n *Node) GetBillRequest(id uint64) (out *factoring.BillRequest, err error) {
	err = n.read(func() error {
		out, err = n.engine.GetBillRequest(id)
		return err
	})
	return out, err
}

func (n *Node) GetOffer(id uint64) (out *factoring.Offer, err error) {
	err = n.read(func() error {
		out, err = n.engine.GetOffer(id)
		return err
	})
	return out, err
}

func (n *Node) GetOffersForBillRequest(requestID uint64) (out []*factoring.Offer, err error) {
	err = n.read(func() error {
		out, err = n.engine.GetOffersForBillRequest(requestID)
		return err
	})
	return out, err
}

func (n *Node) GetBill(id uint64) (out *factoring.Bill, err error) {
	err = n.read(func() error {
		out, err = n.engine.GetBill(id)
		return err
	})
	return out, err
}

func (n *Node) GetBillWithOwner(id uint64) (bill *factoring.Bill, holder [20]byte, err error) {
	err = n.read(func() error {
		bill, holder, err = n.engine.GetBillWithOwner(id)
		return err
	})
	return bill, holder, err
}

func (n *Node) GetBillsByOwner(holder [20]byte) (out []uint64, err error) {
	err = n.read(func() error {
		out, err = n.engine.GetBillsByOwner(holder)
		return err
	})
	return out, err
}

func (n *Node) GetHoldings(holder [20]byte) (out []uint64, err error) {
	err = n.read(func() error {
		out, err = n.engine.HoldingsOf(holder)
		return err
	})
	return out, err
}

func (n *Node) CurrentHolder(id uint64) (out [20]byte, err error) {
	err = n.read(func() error {
		out, err = n.engine.CurrentHolder(id)
		return err
	})
	return out, err
}

func (n *Node) GetApproved(id uint64) (spender [20]byte, ok bool, err error) {
	err = n.read(func() error {
		spender, ok, err = n.engine.GetApproved(id)
		return err
	})
	return spender, ok, err
}

func (n *Node) IsApprovedForAll(holder, operator [20]byte) (ok bool, err error) {
	err = n.read(func() error {
		ok, err = n.engine.IsApprovedForAll(holder, operator)
		return err
	})
	return ok, err
}

func (n *Node) GetPoolBalance(currency string) (out *big.Int, err error) {
	err = n.read(func() error {
		out, err = n.engine.GetPoolBalance(currency)
		return err
	})
	return out, err
}

func (n *Node) GetDefaultConditions() (cond factoring.Conditions, ok bool, err error) {
	err = n.read(func() error {
		cond, ok, err = n.engine.GetDefaultConditions()
		return err
	})
	return cond, ok, err
}

func (n *Node) Paused() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.engine.Paused()
}

func (n *Node) HasRole(role string, addr [20]byte) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.engine.HasRole(role, addr)
}

// Balance returns addr's balance of a settlement currency.
func (n *Node) Balance(token string, addr [20]byte) (out *big.Int, err error) {
	err = n.read(func() error {
		out, err = n.bank.Balance(token, addr)
		if errors.Is(err, bank.ErrUnknownToken) {
			return fmt.Errorf("%w: %q", factoring.ErrUnsupportedCurrency, token)
		}
		return err
	})
	return out, err
}
