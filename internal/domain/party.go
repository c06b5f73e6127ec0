package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Role is the kind of master-data entry a Party is.
type Role int

const (
	// RolePIC is a person in charge (负责人).
	RolePIC Role = iota
	// RoleAgent is a sales agent earning commission.
	RoleAgent
	// RoleSupplier is a supplier of one product.
	RoleSupplier
)

// Roles lists every role in display order.
var Roles = []Role{RolePIC, RoleAgent, RoleSupplier}

func (r Role) String() string {
	switch r {
	case RolePIC:
		return "pic"
	case RoleAgent:
		return "agent"
	case RoleSupplier:
		return "supplier"
	default:
		return "unknown"
	}
}

// Label is the user-facing name of the role.
func (r Role) Label() string {
	switch r {
	case RolePIC:
		return "负责人"
	case RoleAgent:
		return "Agent"
	case RoleSupplier:
		return "Supplier"
	default:
		return "?"
	}
}

// ParseRole maps a role name to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pic", "person", "persons", "pics":
		return RolePIC, nil
	case "agent", "agents":
		return RoleAgent, nil
	case "supplier", "suppliers":
		return RoleSupplier, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// SupplierCategories are the categories a supplier is filed under.
var SupplierCategories = []string{"原材料", "设备", "服务", "办公用品", "其他"}

// Party is one master-data entry.
//
// Name holds the person or agent name, or the product of a supplier.
// IC and Rate are only set for agents, Category only for suppliers.
type Party struct {
	Role      Role
	Name      string
	IC        string
	Category  string
	Rate      decimal.Decimal // default commission rate, 0.05 means 5%
	CreatedAt time.Time
}

// Matches reports whether s names the party by name or IC, ignoring case.
func (p Party) Matches(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if strings.EqualFold(p.Name, s) {
		return true
	}
	return p.IC != "" && strings.EqualFold(p.IC, s)
}

// Commission is the agent share of one sale.
type Commission struct {
	AgentName string
	AgentIC   string
	Rate      decimal.Decimal
	Amount    decimal.Decimal
}

// IsZero reports whether no agent earns a commission.
func (c Commission) IsZero() bool {
	return c.AgentName == "" && c.Amount.IsZero()
}

// Equal reports whether two commissions carry the same values.
func (c Commission) Equal(o Commission) bool {
	return c.AgentName == o.AgentName &&
		c.AgentIC == o.AgentIC &&
		c.Rate.Equal(o.Rate) &&
		c.Amount.Equal(o.Amount)
}

// CommissionFor computes the share of agent on a sale of amount, rounded
// to cents.
func CommissionFor(amount decimal.Decimal, agent Party) Commission {
	return Commission{
		AgentName: agent.Name,
		AgentIC:   agent.IC,
		Rate:      agent.Rate,
		Amount:    amount.Mul(agent.Rate).Round(2),
	}
}

// FormatRate renders a rate as a percentage, e.g. "5%" or "2.5%".
func FormatRate(rate decimal.Decimal) string {
	return rate.Shift(2).String() + "%"
}
