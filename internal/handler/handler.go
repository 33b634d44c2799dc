package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"billsplit/internal/apperror"
	"billsplit/internal/idempotency"
	"billsplit/internal/model"
	"billsplit/internal/notify"
	"billsplit/internal/service"
	"billsplit/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	HeaderIdempotencyKey    = "Idempotency-Key"
	HeaderIdempotentReplay  = "Idempotent-Replayed"
	defaultIdempotencyTTL   = 24 * time.Hour
	jsonContentType         = "application/json; charset=utf-8"
	roleDebtor, roleCreator = "debtor", "creator"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	userService         *service.UserService
	paymentService      *service.PaymentService
	debtRelationService *service.DebtRelationService
	notifier            notify.Notifier
	idempotency         idempotency.Store
	idempotencyTTL      time.Duration
	logger              *slog.Logger
}

// Options 构造 Handler 所需的依赖
type Options struct {
	UserService         *service.UserService
	PaymentService      *service.PaymentService
	DebtRelationService *service.DebtRelationService
	Notifier            notify.Notifier
	Idempotency         idempotency.Store
	IdempotencyTTL      time.Duration
	Logger              *slog.Logger
}

func NewHandler(opts Options) *Handler {
	ttl := opts.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	store := opts.Idempotency
	if store == nil {
		store = idempotency.NewMemoryStore()
	}
	return &Handler{
		userService:         opts.UserService,
		paymentService:      opts.PaymentService,
		debtRelationService: opts.DebtRelationService,
		notifier:            opts.Notifier,
		idempotency:         store,
		idempotencyTTL:      ttl,
		logger:              opts.Logger.With("component", "handler"),
	}
}

func (h *Handler) Health(c *gin.Context) {
	response.OK(c, gin.H{"status": "ok"})
}

// ============================================================
// 认证与用户
// ============================================================

// Signup 注册
// POST /api/v1/auth/signup
func (h *Handler) Signup(c *gin.Context) {
	var req service.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, bindMessage(err))
		return
	}

	user, err := h.userService.Signup(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"user": user})
}

// Login 登录
// POST /api/v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, bindMessage(err))
		return
	}

	result, err := h.userService.Login(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Logout 退出登录
// POST /api/v1/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	if err := h.userService.Logout(c.Request.Context(), c.GetString(ctxKeyAccessToken)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Session 当前会话对应的用户
// GET /api/v1/auth/session
func (h *Handler) Session(c *gin.Context) {
	response.OK(c, gin.H{"user": currentUser(c)})
}

// GetUser GET /api/v1/user
func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.userService.Me(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, user)
}

// DeleteUser DELETE /api/v1/user
func (h *Handler) DeleteUser(c *gin.Context) {
	if err := h.userService.DeleteAccount(c.Request.Context(), currentUser(c).ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ============================================================
// 支付
// ============================================================

// CreatePayment 创建支付并按明细分摊
// POST /api/v1/payments
//
// 带 Idempotency-Key 时：
// 1. 同一用户同一个 key 只执行一次，完成后重复请求回放首次的响应
// 2. 首次请求仍在处理中时返回 409
// 3. 创建失败会释放 key，客户端可以用同一个 key 重试
func (h *Handler) CreatePayment(c *gin.Context) {
	var req service.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, bindMessage(err))
		return
	}

	ctx := c.Request.Context()
	user := currentUser(c)

	idemKey := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if idemKey == "" {
		result, err := h.createPayment(ctx, &req, user.ID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Created(c, result)
		return
	}

	key := idempotency.Key(user.ID, idemKey)
	existing, reserved, err := h.idempotency.Reserve(ctx, key, h.idempotencyTTL)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !reserved {
		if existing.State == idempotency.StateDone {
			c.Header(HeaderIdempotentReplay, "true")
			c.Data(existing.StatusCode, jsonContentType, existing.Body)
			return
		}
		response.Error(c, apperror.Conflict(apperror.CodeRequestInProgress, "A request with this Idempotency-Key is already in progress"))
		return
	}

	result, err := h.createPayment(ctx, &req, user.ID)
	if err != nil {
		if relErr := h.idempotency.Release(ctx, key); relErr != nil {
			h.logger.Warn("释放幂等键失败", "key", key, "error", relErr)
		}
		response.Error(c, err)
		return
	}

	body, err := json.Marshal(result)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.idempotency.Complete(ctx, key, http.StatusCreated, body, h.idempotencyTTL); err != nil {
		h.logger.Warn("保存幂等结果失败", "key", key, "error", err)
	}
	c.Data(http.StatusCreated, jsonContentType, body)
}

// createPayment 创建成功后写通知，通知失败不影响结果
func (h *Handler) createPayment(ctx context.Context, req *service.CreatePaymentRequest, creatorID int64) (*service.CreatePaymentResult, error) {
	result, err := h.paymentService.CreatePayment(ctx, req, creatorID)
	if err != nil {
		return nil, err
	}

	if h.notifier != nil {
		if err := h.notifier.PaymentCreated(ctx, result.Payment, result.DebtRelations); err != nil {
			h.logger.Error("写入支付通知失败", "payment_id", result.Payment.ID, "error", err)
		}
	}
	return result, nil
}

// ListPayments GET /api/v1/payments
func (h *Handler) ListPayments(c *gin.Context) {
	list, err := h.paymentService.ListPayments(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// GetPayment GET /api/v1/payments/:id，仅创建者和债务人可查看
func (h *Handler) GetPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	detail, err := h.paymentService.GetPaymentDetail(c.Request.Context(), id, currentUser(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}

// DeletePayment DELETE /api/v1/payments/:id，仅创建者可删除
func (h *Handler) DeletePayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.paymentService.DeletePayment(c.Request.Context(), id, currentUser(c).ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ============================================================
// 分摊关系
// ============================================================

// UpdateDebtRelationRequest 状态变更请求，paidAt 只在 COMPLETED 时使用
type UpdateDebtRelationRequest struct {
	Status string     `json:"status" binding:"required"`
	PaidAt *time.Time `json:"paidAt"`
}

// UpdateDebtRelation PATCH /api/v1/debtRelations/:id
func (h *Handler) UpdateDebtRelation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req UpdateDebtRelationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, bindMessage(err))
		return
	}

	result, err := h.debtRelationService.UpdateStatus(c.Request.Context(), id, currentUser(c).ID, req.Status, req.PaidAt)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// ListAwaitingDebtRelations GET /api/v1/debtRelations/awaiting?role=debtor|creator
func (h *Handler) ListAwaitingDebtRelations(c *gin.Context) {
	var (
		relations []*model.DebtRelation
		err       error
	)
	user := currentUser(c)

	switch c.DefaultQuery("role", roleDebtor) {
	case roleDebtor:
		relations, err = h.debtRelationService.ListAwaitingOwedBy(c.Request.Context(), user.ID)
	case roleCreator:
		relations, err = h.debtRelationService.ListAwaitingOwedTo(c.Request.Context(), user.ID)
	default:
		response.ParamError(c, "role must be debtor or creator")
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, relations)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func bindMessage(err error) string {
	return "Invalid request body: " + err.Error()
}
