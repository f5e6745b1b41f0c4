package booking

import (
	"fmt"
	"strings"
)

// Status is the booking lifecycle state.
type Status string

const (
	StatusPendingWorkshop                  Status = "pending_workshop"
	StatusAwaitingCounterpartyConfirmation Status = "awaiting_counterparty_confirmation"
	StatusConfirmed                        Status = "confirmed"
	StatusRejected                         Status = "rejected"
	StatusFinalizedByMechanic              Status = "finalized_by_mechanic"
	StatusFinalizedByCustomer              Status = "finalized_by_customer"
	StatusCancelled                        Status = "cancelled"
	StatusNoShow                           Status = "no_show"
)

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusNoShow, StatusFinalizedByCustomer:
		return true
	}
	return false
}

// IsConfirmed reports whether the workshop has accepted the appointment.
func (s Status) IsConfirmed() bool {
	return s == StatusConfirmed || s == StatusFinalizedByMechanic
}

func (s Status) Valid() bool {
	_, ok := canonical[s]
	return ok
}

var canonical = map[Status]struct{}{
	StatusPendingWorkshop:                  {},
	StatusAwaitingCounterpartyConfirmation: {},
	StatusConfirmed:                        {},
	StatusRejected:                         {},
	StatusFinalizedByMechanic:              {},
	StatusFinalizedByCustomer:              {},
	StatusCancelled:                        {},
	StatusNoShow:                           {},
}

// legacyAliases maps deprecated status spellings found in older rows.
var legacyAliases = map[string]Status{
	"pendente_oficina":       StatusPendingWorkshop,
	"pending_oficina":        StatusPendingWorkshop,
	"pending":                StatusPendingWorkshop,
	"aguardando_confirmacao": StatusAwaitingCounterpartyConfirmation,
	"confirmado":             StatusConfirmed,
	"rejeitado":              StatusRejected,
	"recusado":               StatusRejected,
	"finalizado_mecanico":    StatusFinalizedByMechanic,
	"finalizado_oficina":     StatusFinalizedByMechanic,
	"finalizado_cliente":     StatusFinalizedByCustomer,
	"cancelado":              StatusCancelled,
	"nao_compareceu":         StatusNoShow,
}

// ParseStatus accepts canonical values and the deprecated aliases. It is only
// meant for migrating stored data; new writes always use canonical values.
func ParseStatus(raw string) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if s := Status(v); s.Valid() {
		return s, nil
	}
	if s, ok := legacyAliases[v]; ok {
		return s, nil
	}
	return "", fmt.Errorf("unknown booking status %q", raw)
}

// LegacyAliases returns alias -> canonical pairs, used by the migrate command.
func LegacyAliases() map[string]Status {
	out := make(map[string]Status, len(legacyAliases))
	for k, v := range legacyAliases {
		out[k] = v
	}
	return out
}
