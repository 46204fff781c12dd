package permission

import (
	"fmt"
	"strings"
)

type Module string

const (
	ModuleExpenses       Module = "expenses"
	ModuleIncomes        Module = "incomes"
	ModuleReimbursements Module = "reimbursements"
	ModuleSettlements    Module = "settlements"
	ModuleAccounts       Module = "accounts"
	ModuleSettings       Module = "settings"
	ModuleReports        Module = "reports"
	ModuleAudit          Module = "audit"
)

var modules = []Module{
	ModuleExpenses, ModuleIncomes, ModuleReimbursements, ModuleSettlements,
	ModuleAccounts, ModuleSettings, ModuleReports, ModuleAudit,
}

type Action string

const (
	ActionRead    Action = "read"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
	ActionPay     Action = "pay"
	ActionWrite   Action = "write"
	ActionImport  Action = "import"

	// anyAction only exists in stored grants ("expenses:*"); a Capability never carries it.
	anyAction Action = "*"
)

var actions = []Action{
	ActionRead, ActionCreate, ActionUpdate, ActionDelete,
	ActionApprove, ActionPay, ActionWrite, ActionImport,
}

func (m Module) valid() bool {
	for _, known := range modules {
		if m == known {
			return true
		}
	}
	return false
}

func (a Action) valid() bool {
	for _, known := range actions {
		if a == known {
			return true
		}
	}
	return false
}

// Capability is a concrete (module, action) pair checked by the Checker.
type Capability struct {
	Module Module
	Action Action
}

func Cap(m Module, a Action) Capability {
	return Capability{Module: m, Action: a}
}

func (c Capability) String() string {
	return string(c.Module) + ":" + string(c.Action)
}

func ParseCapability(s string) (Capability, error) {
	m, a, err := split(s)
	if err != nil {
		return Capability{}, err
	}
	if a == anyAction {
		return Capability{}, fmt.Errorf("capability %q cannot be a wildcard", s)
	}
	return Capability{Module: m, Action: a}, nil
}

// Grant is the stored form of a permission: "<module>:<action>" or "<module>:*".
type Grant struct {
	Module Module
	Action Action
}

func ParseGrant(s string) (Grant, error) {
	m, a, err := split(s)
	if err != nil {
		return Grant{}, err
	}
	return Grant{Module: m, Action: a}, nil
}

func ModuleWildcard(m Module) Grant {
	return Grant{Module: m, Action: anyAction}
}

func (g Grant) String() string {
	return string(g.Module) + ":" + string(g.Action)
}

func (g Grant) IsWildcard() bool {
	return g.Action == anyAction
}

func (g Grant) Allows(c Capability) bool {
	return g.Module == c.Module && (g.Action == c.Action || g.Action == anyAction)
}

func split(s string) (Module, Action, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("permission %q must look like <module>:<action>", s)
	}
	m, a := Module(parts[0]), Action(parts[1])
	if !m.valid() {
		return "", "", fmt.Errorf("unknown module %q", parts[0])
	}
	if a != anyAction && !a.valid() {
		return "", "", fmt.Errorf("unknown action %q", parts[1])
	}
	return m, a, nil
}
