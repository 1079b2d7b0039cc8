package entity

import (
	"sort"
	"time"
)

// Estados de cuota.
const (
	InstallmentStatusPending   = "PENDING"
	InstallmentStatusExpired   = "EXPIRED"
	InstallmentStatusCompleted = "COMPLETED"
)

// Estados de una renegociación.
const (
	RenegotiationUpToDate  = "UP_TO_DATE"
	RenegotiationPending   = "PENDING"
	RenegotiationOverdue   = "OVERDUE"
	RenegotiationCompleted = "COMPLETED"
)

// renegotiationGraceDays días de holgura sobre el vencimiento para considerar la renegociación al día.
const renegotiationGraceDays = 5

// Installment cuota de una renegociación.
type Installment struct {
	Number    int
	Amount    int64
	ExpiresAt time.Time
	Status    string
}

// Renegotiation repactación de cobros en cuotas.
type Renegotiation struct {
	ID           string
	ChargeIDs    []string
	Installments []Installment
}

// State deriva el estado desde la primera cuota pendiente o vencida en orden cronológico.
func (r Renegotiation) State(now time.Time) string {
	inst := append([]Installment(nil), r.Installments...)
	sort.SliceStable(inst, func(i, j int) bool { return inst[i].ExpiresAt.Before(inst[j].ExpiresAt) })
	for _, in := range inst {
		switch in.Status {
		case InstallmentStatusExpired:
			return RenegotiationOverdue
		case InstallmentStatusPending:
			if in.ExpiresAt.Sub(now) > renegotiationGraceDays*24*time.Hour {
				return RenegotiationUpToDate
			}
			return RenegotiationPending
		}
	}
	return RenegotiationCompleted
}
