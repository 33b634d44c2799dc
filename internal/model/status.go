package model

const (
	StatusAwaiting  = "AWAITING"
	StatusCompleted = "COMPLETED"
)

// ValidStatusTransitions DebtRelation 状态机，只有两条边
var ValidStatusTransitions = map[string][]string{
	StatusAwaiting:  {StatusCompleted},
	StatusCompleted: {StatusAwaiting},
}

func IsValidStatus(status string) bool {
	return status == StatusAwaiting || status == StatusCompleted
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// DerivePaymentStatus 根据所有 DebtRelation 的当前状态（变更之后）计算 Payment 状态。
// 全部 COMPLETED 时为 COMPLETED，否则为 AWAITING；没有关系时保持原状态。
func DerivePaymentStatus(current string, relations []*DebtRelation) string {
	if len(relations) == 0 {
		return current
	}
	for _, r := range relations {
		if r.Status != StatusCompleted {
			return StatusAwaiting
		}
	}
	return StatusCompleted
}

// Unpaid 未还金额与笔数，始终在读取时计算
func Unpaid(relations []*DebtRelation) (amount int64, count int) {
	for _, r := range relations {
		if r.Status == StatusAwaiting {
			amount += r.SplitAmount
			count++
		}
	}
	return amount, count
}
