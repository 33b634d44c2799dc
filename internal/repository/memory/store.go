// Package memory 内存版仓储，用于测试和不依赖 MySQL 的本地运行。
// 事务通过快照实现：失败时整体恢复到事务开始前的状态。
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"billsplit/internal/apperror"
	"billsplit/internal/model"
	"billsplit/internal/repository"
)

var errForeignKey = errors.New("foreign key constraint violated")

type txKey struct{}

type tables struct {
	users     map[int64]*model.User
	payments  map[int64]*model.Payment
	relations map[int64]*model.DebtRelation
	outbox    map[int64]*model.OutboxMessage
	nextID    int64
}

func newTables() tables {
	return tables{
		users:     make(map[int64]*model.User),
		payments:  make(map[int64]*model.Payment),
		relations: make(map[int64]*model.DebtRelation),
		outbox:    make(map[int64]*model.OutboxMessage),
	}
}

func (t tables) clone() tables {
	c := newTables()
	c.nextID = t.nextID
	for id, u := range t.users {
		cp := *u
		c.users[id] = &cp
	}
	for id, p := range t.payments {
		cp := *p
		c.payments[id] = &cp
	}
	for id, r := range t.relations {
		cp := *r
		c.relations[id] = &cp
	}
	for id, m := range t.outbox {
		cp := *m
		c.outbox[id] = &cp
	}
	return c
}

// Store 所有内存表的持有者，同时实现 repository.Transactor
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	data tables
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{data: newTables(), now: time.Now}
}

// WithinTransaction 事务串行执行；fn 返回错误时恢复快照。
// 事务外的写入通过 writeGuard 与事务互斥，回滚不会覆盖它们。
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// writeGuard 事务外的写入等待当前事务结束；事务内的写入已持有 txMu
func (s *Store) writeGuard(ctx context.Context) func() {
	if ctx.Value(txKey{}) != nil {
		return func() {}
	}
	s.txMu.Lock()
	return s.txMu.Unlock
}

func (s *Store) Payments() *PaymentRepository {
	return &PaymentRepository{s: s}
}

func (s *Store) DebtRelations() *DebtRelationRepository {
	return &DebtRelationRepository{s: s}
}

func (s *Store) Users() *UserRepository {
	return &UserRepository{s: s}
}

func (s *Store) Outbox() *OutboxRepository {
	return &OutboxRepository{s: s}
}

// 调用方持有 s.mu
func (s *Store) nextID() int64 {
	s.data.nextID++
	return s.data.nextID
}

func (s *Store) userCopy(id int64) *model.User {
	u, ok := s.data.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (s *Store) paymentCopy(id int64, withCreator bool) *model.Payment {
	p, ok := s.data.payments[id]
	if !ok {
		return nil
	}
	cp := *p
	if withCreator {
		cp.Creator = s.userCopy(p.CreatorID)
	}
	return &cp
}

func relationCopy(r *model.DebtRelation) *model.DebtRelation {
	cp := *r
	return &cp
}

func sortRelations(relations []*model.DebtRelation, desc bool) {
	sort.SliceStable(relations, func(i, j int) bool {
		a, b := relations[i], relations[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			if desc {
				return a.ID > b.ID
			}
			return a.ID < b.ID
		}
		if desc {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func sortPayments(payments []*model.Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		a, b := payments[i], payments[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

type PaymentRepository struct {
	s *Store
}

var _ repository.PaymentRepository = (*PaymentRepository)(nil)

func (r *PaymentRepository) Save(ctx context.Context, in model.CreatePaymentInput) (*model.Payment, error) {
	defer r.s.writeGuard(ctx)()
	payment, err := model.NewPayment(in)
	if err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.users[payment.CreatorID]; !ok {
		return nil, apperror.Database("Creator not found", errForeignKey)
	}
	now := r.s.now()
	payment.ID = r.s.nextID()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	stored := *payment
	r.s.data.payments[payment.ID] = &stored
	return payment, nil
}

func (r *PaymentRepository) FindByID(_ context.Context, id int64) (*model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p := r.s.paymentCopy(id, true)
	if p == nil {
		return nil, repository.ErrPaymentNotFound
	}
	return p, nil
}

// FindByIDForUpdate 事务已串行，无需额外加锁
func (r *PaymentRepository) FindByIDForUpdate(_ context.Context, id int64) (*model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p := r.s.paymentCopy(id, false)
	if p == nil {
		return nil, repository.ErrPaymentNotFound
	}
	return p, nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	defer r.s.writeGuard(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if p, ok := r.s.data.payments[id]; ok {
		p.Status = status
		p.UpdatedAt = r.s.now()
	}
	return nil
}

func (r *PaymentRepository) ListByCreatorID(_ context.Context, creatorID int64) ([]*model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	payments := []*model.Payment{}
	for id, p := range r.s.data.payments {
		if p.CreatorID == creatorID {
			payments = append(payments, r.s.paymentCopy(id, true))
		}
	}
	sortPayments(payments)
	return payments, nil
}

func (r *PaymentRepository) ListByIDs(_ context.Context, ids []int64) ([]*model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	seen := make(map[int64]bool, len(ids))
	payments := []*model.Payment{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p := r.s.paymentCopy(id, true); p != nil {
			payments = append(payments, p)
		}
	}
	sortPayments(payments)
	return payments, nil
}

// Delete 与 ON DELETE CASCADE 一致，同时删除关联的 DebtRelation
func (r *PaymentRepository) Delete(ctx context.Context, id int64) error {
	defer r.s.writeGuard(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.payments[id]; !ok {
		return repository.ErrPaymentNotFound
	}
	delete(r.s.data.payments, id)
	for rid, rel := range r.s.data.relations {
		if rel.PaymentID == id {
			delete(r.s.data.relations, rid)
		}
	}
	return nil
}

type DebtRelationRepository struct {
	s *Store
}

var _ repository.DebtRelationRepository = (*DebtRelationRepository)(nil)

// SaveMany 任何一行外键校验失败时整批不写入
func (r *DebtRelationRepository) SaveMany(ctx context.Context, inputs []model.CreateDebtRelationInput) ([]*model.DebtRelation, error) {
	defer r.s.writeGuard(ctx)()
	if len(inputs) == 0 {
		return []*model.DebtRelation{}, nil
	}

	rows := make([]*model.DebtRelation, 0, len(inputs))
	for _, in := range inputs {
		row, err := model.NewDebtRelation(in)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, row := range rows {
		_, paymentOK := r.s.data.payments[row.PaymentID]
		_, debtorOK := r.s.data.users[row.DebtorID]
		if !paymentOK || !debtorOK {
			return nil, apperror.Database("Payment or debtor not found", errForeignKey)
		}
	}

	now := r.s.now()
	for _, row := range rows {
		row.ID = r.s.nextID()
		row.CreatedAt = now
		row.UpdatedAt = now
		stored := *row
		r.s.data.relations[row.ID] = &stored
	}
	return rows, nil
}

func (r *DebtRelationRepository) FetchByPaymentID(_ context.Context, paymentID int64) ([]*model.DebtRelation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	relations := []*model.DebtRelation{}
	for _, rel := range r.s.data.relations {
		if rel.PaymentID == paymentID {
			cp := relationCopy(rel)
			cp.Debtor = r.s.userCopy(rel.DebtorID)
			relations = append(relations, cp)
		}
	}
	sortRelations(relations, false)
	return relations, nil
}

func (r *DebtRelationRepository) FetchByPaymentIDs(_ context.Context, paymentIDs []int64) ([]*model.DebtRelation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	wanted := make(map[int64]bool, len(paymentIDs))
	for _, id := range paymentIDs {
		wanted[id] = true
	}
	relations := []*model.DebtRelation{}
	for _, rel := range r.s.data.relations {
		if wanted[rel.PaymentID] {
			cp := relationCopy(rel)
			cp.Debtor = r.s.userCopy(rel.DebtorID)
			relations = append(relations, cp)
		}
	}
	sortRelations(relations, false)
	return relations, nil
}

func (r *DebtRelationRepository) FindByID(_ context.Context, id int64) (*model.DebtRelation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rel, ok := r.s.data.relations[id]
	if !ok {
		return nil, repository.ErrDebtRelationNotFound
	}
	return relationCopy(rel), nil
}

func (r *DebtRelationRepository) UpdateStatus(ctx context.Context, id int64, from, to string, paidAt *time.Time) error {
	defer r.s.writeGuard(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rel, ok := r.s.data.relations[id]
	if !ok {
		return repository.ErrDebtRelationNotFound
	}
	if rel.Status != from {
		return repository.ErrStatusConflict
	}
	rel.Status = to
	if paidAt != nil {
		t := *paidAt
		rel.PaidAt = &t
	} else {
		rel.PaidAt = nil
	}
	rel.UpdatedAt = r.s.now()
	return nil
}

func (r *DebtRelationRepository) ListByDebtorID(_ context.Context, debtorID int64) ([]*model.DebtRelation, error) {
	return r.listWithPayment(func(rel *model.DebtRelation) bool {
		return rel.DebtorID == debtorID
	}), nil
}

func (r *DebtRelationRepository) ListAwaitingByDebtorID(_ context.Context, debtorID int64) ([]*model.DebtRelation, error) {
	return r.listWithPayment(func(rel *model.DebtRelation) bool {
		return rel.DebtorID == debtorID && rel.Status == model.StatusAwaiting
	}), nil
}

func (r *DebtRelationRepository) listWithPayment(match func(*model.DebtRelation) bool) []*model.DebtRelation {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	relations := []*model.DebtRelation{}
	for _, rel := range r.s.data.relations {
		if match(rel) {
			cp := relationCopy(rel)
			cp.Payment = r.s.paymentCopy(rel.PaymentID, true)
			relations = append(relations, cp)
		}
	}
	sortRelations(relations, true)
	return relations
}

func (r *DebtRelationRepository) ListAwaitingByCreatorID(_ context.Context, creatorID int64) ([]*model.DebtRelation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	relations := []*model.DebtRelation{}
	for _, rel := range r.s.data.relations {
		p, ok := r.s.data.payments[rel.PaymentID]
		if !ok || p.CreatorID != creatorID || rel.Status != model.StatusAwaiting {
			continue
		}
		cp := relationCopy(rel)
		cp.Payment = r.s.paymentCopy(rel.PaymentID, false)
		cp.Debtor = r.s.userCopy(rel.DebtorID)
		relations = append(relations, cp)
	}
	sortRelations(relations, true)
	return relations, nil
}

func (r *DebtRelationRepository) DeleteByPaymentID(ctx context.Context, paymentID int64) error {
	defer r.s.writeGuard(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, rel := range r.s.data.relations {
		if rel.PaymentID == paymentID {
			delete(r.s.data.relations, id)
		}
	}
	return nil
}

type UserRepository struct {
	s *Store
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) find(match func(*model.User) bool) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, u := range r.s.data.users {
		if match(u) {
			return r.s.userCopy(id), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *UserRepository) FindByID(_ context.Context, id int64) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.ID == id })
}

func (r *UserRepository) FindByAuthID(_ context.Context, authID string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.AuthID == authID })
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Email == email })
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *UserRepository) Save(ctx context.Context, in model.CreateUserInput) (*model.User, error) {
	defer r.s.writeGuard(ctx)()
	user, err := model.NewUser(in)
	if err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.data.users {
		if u.Email == user.Email || u.AuthID == user.AuthID {
			return nil, apperror.Database("Email already exists", errors.New("duplicate entry"))
		}
	}
	now := r.s.now()
	user.ID = r.s.nextID()
	user.CreatedAt = now
	user.UpdatedAt = now
	stored := *user
	r.s.data.users[user.ID] = &stored
	return user, nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id int64) (*model.User, error) {
	defer r.s.writeGuard(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.data.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	now := r.s.now()
	u.LastLoginAt = &now
	u.UpdatedAt = now
	return r.s.userCopy(id), nil
}

// Delete 仍被 Payment 或 DebtRelation 引用时与数据库外键约束一样拒绝删除
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	defer r.s.writeGuard(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	for _, p := range r.s.data.payments {
		if p.CreatorID == id {
			return apperror.Database("User still has payments", errForeignKey)
		}
	}
	for _, rel := range r.s.data.relations {
		if rel.DebtorID == id {
			return apperror.Database("User still has payments", errForeignKey)
		}
	}
	delete(r.s.data.users, id)
	return nil
}

type OutboxRepository struct {
	s *Store
}

var _ repository.OutboxRepository = (*OutboxRepository)(nil)

func (r *OutboxRepository) Create(ctx context.Context, msg *model.OutboxMessage) error {
	defer r.s.writeGuard(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	msg.ID = r.s.nextID()
	if msg.Status == "" {
		msg.Status = model.OutboxStatusPending
	}
	msg.CreatedAt = now
	msg.UpdatedAt = now
	stored := *msg
	r.s.data.outbox[msg.ID] = &stored
	return nil
}

func (r *OutboxRepository) GetPendingMessages(_ context.Context, limit int) ([]*model.OutboxMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	messages := []*model.OutboxMessage{}
	for _, m := range r.s.data.outbox {
		if m.Status == model.OutboxStatusPending {
			cp := *m
			messages = append(messages, &cp)
		}
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func (r *OutboxRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	defer r.s.writeGuard(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if m, ok := r.s.data.outbox[id]; ok {
		m.Status = status
		m.UpdatedAt = r.s.now()
	}
	return nil
}

func (r *OutboxRepository) IncrementRetryCount(ctx context.Context, id int64) error {
	defer r.s.writeGuard(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if m, ok := r.s.data.outbox[id]; ok {
		m.RetryCount++
	}
	return nil
}

func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id int64) error {
	return r.UpdateStatus(ctx, id, model.OutboxStatusFailed)
}

// Messages 返回全部 outbox 消息，按写入顺序
func (r *OutboxRepository) Messages() []*model.OutboxMessage {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	messages := make([]*model.OutboxMessage, 0, len(r.s.data.outbox))
	for _, m := range r.s.data.outbox {
		cp := *m
		messages = append(messages, &cp)
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })
	return messages
}

// Counts 各表行数，测试用来断言没有发生写入
func (s *Store) Counts() (users, payments, relations int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.users), len(s.data.payments), len(s.data.relations)
}
