package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"billsplit/internal/apperror"
	"billsplit/internal/model"
)

type recordingLocker struct {
	keys     []string
	released int
	err      error
}

func (l *recordingLocker) Lock(_ context.Context, key string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.keys = append(l.keys, key)
	return func() { l.released++ }, nil
}

type debtFixture struct {
	*paymentFixture
	locker  *recordingLocker
	svc     *DebtRelationService
	payment *model.Payment
	rels    []*model.DebtRelation
}

func newDebtFixture(t *testing.T) *debtFixture {
	t.Helper()
	pf := newPaymentFixture(t, 4)
	res, err := pf.svc.CreatePayment(context.Background(), &CreatePaymentRequest{
		Title:  "Dinner",
		Amount: 1000,
		DebtDetails: []DebtDetail{
			{DebtorID: pf.ids[1], SplitAmount: 600},
			{DebtorID: pf.ids[2], SplitAmount: 400},
		},
	}, pf.ids[0])
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}

	locker := &recordingLocker{}
	svc := NewDebtRelationService(pf.store, pf.store.Payments(), pf.store.DebtRelations(), locker, discardLogger())
	return &debtFixture{paymentFixture: pf, locker: locker, svc: svc, payment: res.Payment, rels: res.DebtRelations}
}

func (f *debtFixture) paymentStatus(t *testing.T) string {
	t.Helper()
	p, err := f.store.Payments().FindByID(context.Background(), f.payment.ID)
	if err != nil {
		t.Fatalf("find payment: %v", err)
	}
	return p.Status
}

func TestCompleteAndRollbackRoundTrip(t *testing.T) {
	f := newDebtFixture(t)
	ctx := context.Background()
	rel := f.rels[0]

	paidAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	res, err := f.svc.Complete(ctx, rel.ID, rel.DebtorID, &paidAt)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.DebtRelation.Status != model.StatusCompleted || res.DebtRelation.PaidAt == nil || !res.DebtRelation.PaidAt.Equal(paidAt) {
		t.Fatalf("unexpected relation after complete: %+v", res.DebtRelation)
	}

	res, err = f.svc.Rollback(ctx, rel.ID, rel.DebtorID)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if res.DebtRelation.Status != model.StatusAwaiting || res.DebtRelation.PaidAt != nil {
		t.Fatalf("expected paidAt to be cleared, got %+v", res.DebtRelation)
	}

	if len(f.locker.keys) != 2 || f.locker.keys[0] != paymentLockKey(f.payment.ID) || f.locker.released != 2 {
		t.Fatalf("expected lock per update, got keys=%v released=%d", f.locker.keys, f.locker.released)
	}
}

func TestCompleteDefaultsPaidAtToNow(t *testing.T) {
	f := newDebtFixture(t)
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }

	res, err := f.svc.Complete(context.Background(), f.rels[0].ID, f.payment.CreatorID, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.DebtRelation.PaidAt == nil || !res.DebtRelation.PaidAt.Equal(fixed) {
		t.Fatalf("expected paidAt %v, got %v", fixed, res.DebtRelation.PaidAt)
	}
}

func TestPaymentStatusFollowsRelations(t *testing.T) {
	orders := map[string][]int{
		"first then second": {0, 1},
		"second then first": {1, 0},
	}
	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			f := newDebtFixture(t)
			ctx := context.Background()

			first := f.rels[order[0]]
			if _, err := f.svc.Complete(ctx, first.ID, first.DebtorID, nil); err != nil {
				t.Fatalf("complete: %v", err)
			}
			if got := f.paymentStatus(t); got != model.StatusAwaiting {
				t.Fatalf("expected AWAITING after partial completion, got %s", got)
			}

			second := f.rels[order[1]]
			res, err := f.svc.Complete(ctx, second.ID, second.DebtorID, nil)
			if err != nil {
				t.Fatalf("complete: %v", err)
			}
			if res.Payment.Status != model.StatusCompleted || f.paymentStatus(t) != model.StatusCompleted {
				t.Fatalf("expected COMPLETED after all relations completed")
			}

			if _, err := f.svc.Rollback(ctx, first.ID, first.DebtorID); err != nil {
				t.Fatalf("rollback: %v", err)
			}
			if got := f.paymentStatus(t); got != model.StatusAwaiting {
				t.Fatalf("expected AWAITING after rollback, got %s", got)
			}
		})
	}
}

func TestUpdateStatusRejections(t *testing.T) {
	f := newDebtFixture(t)
	ctx := context.Background()
	rel := f.rels[0]
	outsider := f.ids[3]

	_, err := f.svc.Complete(ctx, rel.ID, outsider, nil)
	expectCode(t, err, apperror.CodeNotDebtParticipant)

	_, err = f.svc.Rollback(ctx, rel.ID, rel.DebtorID)
	expectCode(t, err, apperror.CodeInvalidStatusTransition)

	_, err = f.svc.UpdateStatus(ctx, rel.ID, rel.DebtorID, "PAID", nil)
	expectCode(t, err, apperror.CodeValidation)

	_, err = f.svc.Complete(ctx, 9999, rel.DebtorID, nil)
	expectCode(t, err, apperror.CodeDebtRelationNotFound)

	stored, err := f.store.DebtRelations().FindByID(ctx, rel.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Status != model.StatusAwaiting || stored.PaidAt != nil {
		t.Fatalf("expected relation untouched, got %+v", stored)
	}
}

func TestUpdateStatusLockFailure(t *testing.T) {
	f := newDebtFixture(t)
	f.locker.err = errors.New("busy")

	_, err := f.svc.Complete(context.Background(), f.rels[0].ID, f.rels[0].DebtorID, nil)
	expectCode(t, err, apperror.CodeRequestInProgress)
}

func TestListAwaiting(t *testing.T) {
	f := newDebtFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Complete(ctx, f.rels[0].ID, f.rels[0].DebtorID, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	owedTo, err := f.svc.ListAwaitingOwedTo(ctx, f.payment.CreatorID)
	if err != nil {
		t.Fatalf("owed to: %v", err)
	}
	if len(owedTo) != 1 || owedTo[0].ID != f.rels[1].ID || owedTo[0].Debtor == nil {
		t.Fatalf("unexpected owed-to list: %+v", owedTo)
	}

	owedBy, err := f.svc.ListAwaitingOwedBy(ctx, f.rels[1].DebtorID)
	if err != nil {
		t.Fatalf("owed by: %v", err)
	}
	if len(owedBy) != 1 || owedBy[0].Payment == nil || owedBy[0].Payment.Creator == nil {
		t.Fatalf("unexpected owed-by list: %+v", owedBy)
	}

	owedBy, err = f.svc.ListAwaitingOwedBy(ctx, f.rels[0].DebtorID)
	if err != nil || len(owedBy) != 0 {
		t.Fatalf("expected nothing owed after completion, got %d, %v", len(owedBy), err)
	}
}
