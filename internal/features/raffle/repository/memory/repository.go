// Package memory is an in-process store used by tests and single-node deployments.
// Every method holds the mutex for its whole duration, which gives each call the
// same all-or-nothing behaviour the Redis driver gets from MULTI/EXEC.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
)

type roundKey struct {
	den   int
	round int64
}

type round struct {
	tickets map[int]*models.Ticket
	sales   []string
}

type userRecord struct {
	account              *models.Account
	referralCount        int64
	referralBonusClaimed bool
	balance              int64
	purchases            map[int]int64
	sales                []string
}

type Repository struct {
	mu sync.RWMutex

	seq      map[int]int64
	current  map[int]int64
	rounds   map[roundKey]*round
	sales    map[string]*models.Sale
	users    map[int64]*userRecord
	refCodes map[string]int64
	payments map[string]*models.PendingPayment
	draws    map[roundKey]*models.Draw
	history  map[int][]*models.Draw
}

var _ repository.RaffleRepository = (*Repository)(nil)

func New() *Repository {
	return &Repository{
		seq:      make(map[int]int64),
		current:  make(map[int]int64),
		rounds:   make(map[roundKey]*round),
		sales:    make(map[string]*models.Sale),
		users:    make(map[int64]*userRecord),
		refCodes: make(map[string]int64),
		payments: make(map[string]*models.PendingPayment),
		draws:    make(map[roundKey]*models.Draw),
		history:  make(map[int][]*models.Draw),
	}
}

func (r *Repository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *Repository) user(id int64) *userRecord {
	u, ok := r.users[id]
	if !ok {
		u = &userRecord{purchases: make(map[int]int64)}
		r.users[id] = u
	}
	return u
}

// Pool

func (r *Repository) InitializeRound(ctx context.Context, den, poolSize int) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current[den]
	if rd, ok := r.rounds[roundKey{den, cur}]; ok && len(rd.tickets) >= poolSize {
		return cur, false, nil
	}
	r.deleteRoundLocked(den, cur)

	r.seq[den]++
	next := r.seq[den]
	rd := &round{tickets: make(map[int]*models.Ticket, poolSize)}
	for n := 1; n <= poolSize; n++ {
		rd.tickets[n] = &models.Ticket{
			Denomination: den,
			Number:       n,
			RoundID:      next,
			State:        models.TicketAvailable,
		}
	}
	r.rounds[roundKey{den, next}] = rd
	r.current[den] = next
	return next, true, nil
}

func (r *Repository) CurrentRound(ctx context.Context, den int) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current[den], ctx.Err()
}

func (r *Repository) RoundStats(ctx context.Context, den int) (*models.PoolStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &models.PoolStats{Denomination: den, RoundID: r.current[den]}
	if rd, ok := r.rounds[roundKey{den, stats.RoundID}]; ok {
		for _, t := range rd.tickets {
			if t.State == models.TicketSold {
				stats.Sold++
			} else {
				stats.Available++
			}
		}
	}
	return stats, ctx.Err()
}

func (r *Repository) ListAvailable(ctx context.Context, den int) ([]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var numbers []int
	if rd, ok := r.rounds[roundKey{den, r.current[den]}]; ok {
		for n, t := range rd.tickets {
			if t.State == models.TicketAvailable {
				numbers = append(numbers, n)
			}
		}
	}
	sort.Ints(numbers)
	return numbers, ctx.Err()
}

func (r *Repository) GetTicket(ctx context.Context, den, number int) (*models.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rd, ok := r.rounds[roundKey{den, r.current[den]}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t, ok := rd.tickets[number]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, ctx.Err()
}

func (r *Repository) DeleteRound(ctx context.Context, den int, roundID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteRoundLocked(den, roundID)
	return nil
}

func (r *Repository) deleteRoundLocked(den int, roundID int64) {
	key := roundKey{den, roundID}
	rd, ok := r.rounds[key]
	if !ok {
		return
	}
	for _, id := range rd.sales {
		sale, ok := r.sales[id]
		if !ok {
			continue
		}
		if u, ok := r.users[sale.BuyerID]; ok {
			u.sales = slices.DeleteFunc(u.sales, func(s string) bool { return s == id })
		}
		delete(r.sales, id)
	}
	delete(r.rounds, key)
}

// Sales

func (r *Repository) CommitSale(ctx context.Context, sale *models.Sale, opts models.CommitOptions) (*models.CommitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current[sale.Denomination]
	rd, ok := r.rounds[roundKey{sale.Denomination, cur}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	ticket, ok := rd.tickets[sale.Number]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if ticket.State != models.TicketAvailable {
		return nil, repository.ErrConflict
	}
	if _, drawn := r.draws[roundKey{sale.Denomination, cur}]; drawn {
		return nil, repository.ErrConflict
	}
	buyer := r.user(sale.BuyerID)
	if opts.ClaimReferral && buyer.referralBonusClaimed {
		return nil, repository.ErrAlreadyClaimed
	}

	sale.RoundID = cur
	soldAt := sale.Timestamp
	ticket.State = models.TicketSold
	ticket.Owner = sale.BuyerID
	ticket.IsFree = sale.IsFree
	ticket.FreeReason = sale.FreeReason
	ticket.SaleID = sale.ID
	ticket.SoldAt = &soldAt

	stored := *sale
	r.sales[sale.ID] = &stored
	rd.sales = append(rd.sales, sale.ID)
	buyer.sales = append(buyer.sales, sale.ID)
	buyer.purchases[sale.Denomination]++
	if opts.ClaimReferral {
		buyer.referralBonusClaimed = true
	}

	return &models.CommitResult{Sale: sale, PurchaseCount: buyer.purchases[sale.Denomination]}, nil
}

func (r *Repository) ListRoundSales(ctx context.Context, den int, roundID int64) ([]*models.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rd, ok := r.rounds[roundKey{den, roundID}]
	if !ok {
		return nil, ctx.Err()
	}
	return r.collectSalesLocked(rd.sales), ctx.Err()
}

func (r *Repository) ListUserSales(ctx context.Context, userID int64) ([]*models.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, ctx.Err()
	}
	return r.collectSalesLocked(u.sales), ctx.Err()
}

func (r *Repository) collectSalesLocked(ids []string) []*models.Sale {
	out := make([]*models.Sale, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.sales[id]; ok {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Accounts

func (r *Repository) CreateAccount(ctx context.Context, account *models.Account) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.user(account.ID)
	if u.account != nil {
		return false, nil
	}
	if owner, taken := r.refCodes[account.ReferralCode]; taken && owner != account.ID {
		return false, repository.ErrConflict
	}
	stored := *account
	stored.PurchaseCounts = nil
	u.account = &stored
	r.refCodes[account.ReferralCode] = account.ID
	return true, nil
}

func (r *Repository) GetAccount(ctx context.Context, userID int64) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	if !ok || u.account == nil {
		return nil, repository.ErrNotFound
	}
	acc := *u.account
	acc.ReferralCount = u.referralCount
	acc.ReferralBonusClaimed = u.referralBonusClaimed
	acc.Balance = u.balance
	acc.PurchaseCounts = make(map[int]int64, len(u.purchases))
	for den, n := range u.purchases {
		acc.PurchaseCounts[den] = n
	}
	return &acc, ctx.Err()
}

func (r *Repository) FindByReferralCode(ctx context.Context, code string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.refCodes[code]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return id, ctx.Err()
}

func (r *Repository) IncrementReferralCount(ctx context.Context, userID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.user(userID)
	u.referralCount++
	return u.referralCount, nil
}

// Payments

func (r *Repository) CreatePayment(ctx context.Context, payment *models.PendingPayment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payments[payment.ID]; exists {
		return repository.ErrConflict
	}
	stored := *payment
	r.payments[payment.ID] = &stored
	return nil
}

func (r *Repository) GetPayment(ctx context.Context, id string) (*models.PendingPayment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, ctx.Err()
}

func (r *Repository) ListPending(ctx context.Context) ([]*models.PendingPayment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.PendingPayment
	for _, p := range r.payments {
		if p.Status == models.PaymentPending {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, ctx.Err()
}

func (r *Repository) TransitionPayment(ctx context.Context, id string, from models.PaymentStatus, update models.PaymentUpdate) (*models.PendingPayment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if p.Status != from {
		return nil, repository.ErrConflict
	}
	update.Apply(p)
	cp := *p
	return &cp, nil
}

// Draws

func (r *Repository) CreateDraw(ctx context.Context, draw *models.Draw) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := roundKey{draw.Denomination, draw.RoundID}
	if _, exists := r.draws[key]; exists {
		return repository.ErrDrawExists
	}
	stored := *draw
	stored.Winners = slices.Clone(draw.Winners)
	r.draws[key] = &stored
	r.history[draw.Denomination] = append([]*models.Draw{&stored}, r.history[draw.Denomination]...)
	for _, w := range draw.Winners {
		r.user(w.BuyerID).balance += w.Prize
	}
	return nil
}

func (r *Repository) GetDraw(ctx context.Context, den int, roundID int64) (*models.Draw, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.draws[roundKey{den, roundID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	cp.Winners = slices.Clone(d.Winners)
	return &cp, ctx.Err()
}

func (r *Repository) ListDraws(ctx context.Context, den int, limit int) ([]*models.Draw, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Draw
	if den == 0 {
		for _, h := range r.history {
			out = append(out, h...)
		}
	} else {
		out = append(out, r.history[den]...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	res := make([]*models.Draw, len(out))
	for i, d := range out {
		cp := *d
		cp.Winners = slices.Clone(d.Winners)
		res[i] = &cp
	}
	return res, ctx.Err()
}
