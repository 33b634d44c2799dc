package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"billsplit/internal/apperror"
	"billsplit/internal/model"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&model.User{}, &model.Payment{}, &model.DebtRelation{}, &model.OutboxMessage{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, repo *GormUserRepository, authID, email string) *model.User {
	t.Helper()
	user, err := repo.Save(context.Background(), model.CreateUserInput{AuthID: authID, Email: email, Nickname: authID})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestUserRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := seedUser(t, repo, "auth-1", "alice@example.com")
	if user.ID == 0 {
		t.Fatalf("expected id to be assigned")
	}

	byAuth, err := repo.FindByAuthID(ctx, "auth-1")
	if err != nil || byAuth.ID != user.ID {
		t.Fatalf("expected user by auth id, got %v, %v", byAuth, err)
	}

	exists, err := repo.ExistsByEmail(ctx, "alice@example.com")
	if err != nil || !exists {
		t.Fatalf("expected email to exist, got %v, %v", exists, err)
	}

	if _, err := repo.Save(ctx, model.CreateUserInput{AuthID: "auth-2", Email: "alice@example.com", Nickname: "dup"}); !apperror.HasCode(err, apperror.CodeDatabase) {
		t.Fatalf("expected database error on duplicate email, got %v", err)
	}

	updated, err := repo.UpdateLastLogin(ctx, user.ID)
	if err != nil {
		t.Fatalf("update last login: %v", err)
	}
	if updated.LastLoginAt == nil {
		t.Fatalf("expected lastLoginAt to be set")
	}

	if err := repo.Delete(ctx, user.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.FindByID(ctx, user.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestPaymentAndDebtRelationRepositories(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	payments := NewPaymentRepository(db)
	relations := NewDebtRelationRepository(db)
	ctx := context.Background()

	creator := seedUser(t, users, "creator", "creator@example.com")
	bob := seedUser(t, users, "bob", "bob@example.com")
	carol := seedUser(t, users, "carol", "carol@example.com")

	payment, err := payments.Save(ctx, model.CreatePaymentInput{Title: " Dinner ", Amount: 1000, CreatorID: creator.ID})
	if err != nil {
		t.Fatalf("save payment: %v", err)
	}
	if payment.Title != "Dinner" || payment.Status != model.StatusAwaiting {
		t.Fatalf("unexpected payment: %+v", payment)
	}

	saved, err := relations.SaveMany(ctx, []model.CreateDebtRelationInput{
		{SplitAmount: 600, PaymentID: payment.ID, DebtorID: bob.ID},
		{SplitAmount: 400, PaymentID: payment.ID, DebtorID: carol.ID},
	})
	if err != nil {
		t.Fatalf("save many: %v", err)
	}
	if len(saved) != 2 || saved[0].ID == 0 || saved[1].ID == 0 {
		t.Fatalf("expected two saved relations, got %+v", saved)
	}

	fetched, err := relations.FetchByPaymentID(ctx, payment.ID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(fetched) != 2 || fetched[0].DebtorID != bob.ID || fetched[1].DebtorID != carol.ID {
		t.Fatalf("expected relations in creation order, got %+v", fetched)
	}
	if fetched[0].Debtor == nil || fetched[0].Debtor.Nickname != "bob" {
		t.Fatalf("expected debtor to be preloaded")
	}

	now := time.Now()
	if err := relations.UpdateStatus(ctx, saved[0].ID, model.StatusAwaiting, model.StatusCompleted, &now); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := relations.UpdateStatus(ctx, saved[0].ID, model.StatusAwaiting, model.StatusCompleted, &now); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}

	awaitingToCreator, err := relations.ListAwaitingByCreatorID(ctx, creator.ID)
	if err != nil {
		t.Fatalf("list awaiting by creator: %v", err)
	}
	if len(awaitingToCreator) != 1 || awaitingToCreator[0].DebtorID != carol.ID {
		t.Fatalf("expected only carol's relation, got %+v", awaitingToCreator)
	}

	if err := payments.Delete(ctx, payment.ID); err != nil {
		t.Fatalf("delete payment: %v", err)
	}
	remaining, err := relations.FetchByPaymentID(ctx, payment.ID)
	if err != nil {
		t.Fatalf("fetch after delete: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected cascade delete, got %d relations", len(remaining))
	}
}

func TestSaveManyEmptyInput(t *testing.T) {
	db := newTestDB(t)
	relations := NewDebtRelationRepository(db)

	saved, err := relations.SaveMany(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(saved) != 0 {
		t.Fatalf("expected empty result, got %d", len(saved))
	}
}

func TestFetchByPaymentIDs(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	payments := NewPaymentRepository(db)
	relations := NewDebtRelationRepository(db)
	ctx := context.Background()

	creator := seedUser(t, users, "creator", "creator@example.com")
	bob := seedUser(t, users, "bob", "bob@example.com")

	var ids []int64
	for _, amount := range []int64{100, 200, 300} {
		p, err := payments.Save(ctx, model.CreatePaymentInput{Title: "Bill", Amount: amount, CreatorID: creator.ID})
		if err != nil {
			t.Fatalf("save payment: %v", err)
		}
		if _, err := relations.SaveMany(ctx, []model.CreateDebtRelationInput{{SplitAmount: amount, PaymentID: p.ID, DebtorID: bob.ID}}); err != nil {
			t.Fatalf("save many: %v", err)
		}
		ids = append(ids, p.ID)
	}

	fetched, err := relations.FetchByPaymentIDs(ctx, ids[:2])
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(fetched) != 2 || fetched[0].PaymentID != ids[0] || fetched[1].PaymentID != ids[1] {
		t.Fatalf("expected relations of the first two payments, got %+v", fetched)
	}
	if fetched[0].Debtor == nil || fetched[0].Debtor.Nickname != "bob" {
		t.Fatalf("expected debtor to be preloaded")
	}

	empty, err := relations.FetchByPaymentIDs(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty result, got %v, %v", empty, err)
	}
}

func TestSaveManyForeignKeyViolation(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	payments := NewPaymentRepository(db)
	relations := NewDebtRelationRepository(db)
	ctx := context.Background()

	creator := seedUser(t, users, "creator", "creator@example.com")
	payment, err := payments.Save(ctx, model.CreatePaymentInput{Title: "Taxi", Amount: 100, CreatorID: creator.ID})
	if err != nil {
		t.Fatalf("save payment: %v", err)
	}

	_, err = relations.SaveMany(ctx, []model.CreateDebtRelationInput{
		{SplitAmount: 100, PaymentID: payment.ID, DebtorID: 999},
	})
	appErr, ok := apperror.As(err)
	if !ok || appErr.Code != apperror.CodeDatabase || appErr.Message != "Payment or debtor not found" {
		t.Fatalf("expected translated foreign key error, got %v", err)
	}
}

func TestTransactorRollsBack(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	payments := NewPaymentRepository(db)
	relations := NewDebtRelationRepository(db)
	tx := NewGormTransactor(db)
	ctx := context.Background()

	creator := seedUser(t, users, "creator", "creator@example.com")

	var paymentID int64
	err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
		payment, err := payments.Save(ctx, model.CreatePaymentInput{Title: "Hotel", Amount: 100, CreatorID: creator.ID})
		if err != nil {
			return err
		}
		paymentID = payment.ID
		_, err = relations.SaveMany(ctx, []model.CreateDebtRelationInput{
			{SplitAmount: 100, PaymentID: payment.ID, DebtorID: 12345},
		})
		return err
	})
	if err == nil {
		t.Fatalf("expected transaction to fail")
	}

	if _, err := payments.FindByID(ctx, paymentID); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected payment to be rolled back, got %v", err)
	}
}
