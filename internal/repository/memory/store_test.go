package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"billsplit/internal/apperror"
	"billsplit/internal/model"
	"billsplit/internal/repository"
)

func seed(t *testing.T, s *Store, authID string) *model.User {
	t.Helper()
	u, err := s.Users().Save(context.Background(), model.CreateUserInput{
		AuthID:   authID,
		Email:    authID + "@example.com",
		Nickname: authID,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestTransactionRollbackRestoresSnapshot(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	creator := seed(t, s, "creator")

	err := s.WithinTransaction(ctx, func(ctx context.Context) error {
		payment, err := s.Payments().Save(ctx, model.CreatePaymentInput{Title: "Lunch", Amount: 100, CreatorID: creator.ID})
		if err != nil {
			return err
		}
		_, err = s.DebtRelations().SaveMany(ctx, []model.CreateDebtRelationInput{
			{SplitAmount: 100, PaymentID: payment.ID, DebtorID: 404},
		})
		return err
	})
	appErr, ok := apperror.As(err)
	if !ok || appErr.Message != "Payment or debtor not found" {
		t.Fatalf("expected foreign key error, got %v", err)
	}

	users, payments, relations := s.Counts()
	if users != 1 || payments != 0 || relations != 0 {
		t.Fatalf("expected rollback, got users=%d payments=%d relations=%d", users, payments, relations)
	}
}

func TestNestedTransactionJoinsOuter(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	creator := seed(t, s, "creator")

	err := s.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.Payments().Save(ctx, model.CreatePaymentInput{Title: "A", Amount: 1, CreatorID: creator.ID}); err != nil {
			return err
		}
		inner := s.WithinTransaction(ctx, func(ctx context.Context) error { return nil })
		if inner != nil {
			return inner
		}
		return errors.New("abort")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, payments, _ := s.Counts(); payments != 0 {
		t.Fatalf("expected payment to be rolled back, got %d", payments)
	}
}

func TestRollbackKeepsWritesOutsideTransaction(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	creator := seed(t, s, "creator")

	done := make(chan error, 1)
	err := s.WithinTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.Payments().Save(txCtx, model.CreatePaymentInput{Title: "A", Amount: 1, CreatorID: creator.ID}); err != nil {
			return err
		}
		go func() {
			done <- s.Outbox().Create(ctx, &model.OutboxMessage{MessageKey: "k", Topic: "t", Payload: "{}"})
		}()
		select {
		case <-done:
			return errors.New("outside write ran during the transaction")
		case <-time.After(20 * time.Millisecond):
		}
		return errors.New("abort")
	})
	if err == nil || err.Error() != "abort" {
		t.Fatalf("expected abort, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("outbox create: %v", err)
	}
	if msgs := s.Outbox().Messages(); len(msgs) != 1 {
		t.Fatalf("expected outside write to survive rollback, got %d messages", len(msgs))
	}
	if _, payments, _ := s.Counts(); payments != 0 {
		t.Fatalf("expected payment to be rolled back, got %d", payments)
	}
}

func TestDebtRelationStatusUpdate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	creator := seed(t, s, "creator")
	debtor := seed(t, s, "debtor")

	payment, err := s.Payments().Save(ctx, model.CreatePaymentInput{Title: "Taxi", Amount: 50, CreatorID: creator.ID})
	if err != nil {
		t.Fatalf("save payment: %v", err)
	}
	rows, err := s.DebtRelations().SaveMany(ctx, []model.CreateDebtRelationInput{
		{SplitAmount: 50, PaymentID: payment.ID, DebtorID: debtor.ID},
	})
	if err != nil {
		t.Fatalf("save many: %v", err)
	}

	paidAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	repo := s.DebtRelations()
	if err := repo.UpdateStatus(ctx, rows[0].ID, model.StatusAwaiting, model.StatusCompleted, &paidAt); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := repo.UpdateStatus(ctx, rows[0].ID, model.StatusAwaiting, model.StatusCompleted, &paidAt); !errors.Is(err, repository.ErrStatusConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := repo.UpdateStatus(ctx, 999, model.StatusAwaiting, model.StatusCompleted, nil); !errors.Is(err, repository.ErrDebtRelationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	got, err := repo.FindByID(ctx, rows[0].ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.PaidAt == nil || !got.PaidAt.Equal(paidAt) {
		t.Fatalf("expected paidAt %v, got %v", paidAt, got.PaidAt)
	}

	owedTo, _ := repo.ListAwaitingByCreatorID(ctx, creator.ID)
	if len(owedTo) != 0 {
		t.Fatalf("expected no awaiting relations, got %d", len(owedTo))
	}

	if err := s.Users().Delete(ctx, debtor.ID); err == nil {
		t.Fatalf("expected referenced user delete to fail")
	}
	if err := s.Payments().Delete(ctx, payment.ID); err != nil {
		t.Fatalf("delete payment: %v", err)
	}
	if _, _, relations := s.Counts(); relations != 0 {
		t.Fatalf("expected cascade delete, got %d relations", relations)
	}
}

func TestFetchByPaymentIDs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	creator := seed(t, s, "creator")
	debtor := seed(t, s, "debtor")

	var ids []int64
	for _, title := range []string{"A", "B", "C"} {
		p, err := s.Payments().Save(ctx, model.CreatePaymentInput{Title: title, Amount: 10, CreatorID: creator.ID})
		if err != nil {
			t.Fatalf("save payment: %v", err)
		}
		if _, err := s.DebtRelations().SaveMany(ctx, []model.CreateDebtRelationInput{{SplitAmount: 10, PaymentID: p.ID, DebtorID: debtor.ID}}); err != nil {
			t.Fatalf("save many: %v", err)
		}
		ids = append(ids, p.ID)
	}

	got, err := s.DebtRelations().FetchByPaymentIDs(ctx, []int64{ids[2], ids[0]})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 || got[0].PaymentID != ids[0] || got[1].PaymentID != ids[2] {
		t.Fatalf("expected relations in creation order, got %+v", got)
	}
	if got[0].Debtor == nil || got[0].Debtor.ID != debtor.ID {
		t.Fatalf("expected debtor to be attached")
	}

	if none, err := s.DebtRelations().FetchByPaymentIDs(ctx, nil); err != nil || len(none) != 0 {
		t.Fatalf("expected empty result, got %v, %v", none, err)
	}
}
