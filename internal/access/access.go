package access

import (
	"errors"
	"strings"
)

// ErrUnknownRole is returned by ParseRole
var ErrUnknownRole = errors.New("unknown role")

// Role is a staff member's role
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleManager        Role = "manager"
	RoleSalesman       Role = "salesman"
	RoleInventoryClerk Role = "inventory_clerk"
	RoleAccountant     Role = "accountant"
)

// ParseRole normalises a stored role name
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleManager, RoleSalesman, RoleInventoryClerk, RoleAccountant:
		return r, nil
	}
	return "", ErrUnknownRole
}

// Module is a dashboard entry
type Module struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
}

// Module ids referenced directly
const (
	ModuleSales = "sales"
)

var modules = []Module{
	{ID: "sales", Title: "Sales Terminal", Category: "sales"},
	{ID: "inventory", Title: "Inventory", Category: "inventory"},
	{ID: "customers", Title: "Customers", Category: "crm"},
	{ID: "suppliers", Title: "Suppliers", Category: "procurement"},
	{ID: "purchase", Title: "Purchase Orders", Category: "procurement"},
	{ID: "expenses", Title: "Expenses", Category: "finance"},
	{ID: "returns", Title: "Returns", Category: "inventory"},
	{ID: "debts", Title: "Debts", Category: "finance"},
	{ID: "customer-settlements", Title: "Customer Settlements", Category: "finance"},
	{ID: "supplier-settlements", Title: "Supplier Settlements", Category: "finance"},
	{ID: "discounts", Title: "Discounts", Category: "sales"},
	{ID: "audit", Title: "Stock Audit", Category: "inventory"},
	{ID: "reports", Title: "Reports", Category: "analytics"},
	{ID: "employees", Title: "Employees", Category: "hr"},
	{ID: "access-logs", Title: "Access Logs", Category: "security"},
	{ID: "settings", Title: "Settings", Category: "system"},
	{ID: "scanner", Title: "Barcode Scanner", Category: "tools"},
	{ID: "automated", Title: "Automated Insights", Category: "analytics"},
}

// nil means every module
var grants = map[Role]map[string]bool{
	RoleAdmin: nil,
	RoleManager: set("sales", "inventory", "customers", "suppliers", "purchase", "expenses",
		"returns", "debts", "customer-settlements", "supplier-settlements", "discounts",
		"audit", "reports", "scanner", "automated"),
	RoleSalesman:       set("sales", "customers", "returns", "debts", "customer-settlements", "discounts", "scanner"),
	RoleInventoryClerk: set("inventory", "suppliers", "purchase", "returns", "audit", "scanner"),
	RoleAccountant:     set("expenses", "debts", "customer-settlements", "supplier-settlements", "reports"),
}

func set(ids ...string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// HasModuleAccess reports whether role may open module
func HasModuleAccess(role Role, module string) bool {
	g, ok := grants[role]
	if !ok {
		return false
	}
	if g == nil {
		return known(module)
	}
	return g[module]
}

// CanCreateSales reports whether role may commit sales. Only salesmen and admins can.
func CanCreateSales(role Role) bool {
	return role == RoleAdmin || role == RoleSalesman
}

// Modules lists the modules role can open, in dashboard order
func Modules(role Role) []Module {
	out := make([]Module, 0, len(modules))
	for _, m := range modules {
		if HasModuleAccess(role, m.ID) {
			out = append(out, m)
		}
	}
	return out
}

// GroupByCategory groups modules by category, keeping first-seen order
func GroupByCategory(ms []Module) ([]string, map[string][]Module) {
	var order []string
	groups := make(map[string][]Module)
	for _, m := range ms {
		if _, seen := groups[m.Category]; !seen {
			order = append(order, m.Category)
		}
		groups[m.Category] = append(groups[m.Category], m)
	}
	return order, groups
}

func known(id string) bool {
	for _, m := range modules {
		if m.ID == id {
			return true
		}
	}
	return false
}
