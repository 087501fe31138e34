package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanCreateSales(t *testing.T) {
	assert.True(t, CanCreateSales(RoleAdmin))
	assert.True(t, CanCreateSales(RoleSalesman))
	assert.False(t, CanCreateSales(RoleManager))
	assert.False(t, CanCreateSales(RoleInventoryClerk))
	assert.False(t, CanCreateSales(Role("")))
}

func TestHasModuleAccess(t *testing.T) {
	assert.True(t, HasModuleAccess(RoleAdmin, "settings"))
	assert.False(t, HasModuleAccess(RoleAdmin, "nonexistent"))
	assert.True(t, HasModuleAccess(RoleSalesman, ModuleSales))
	assert.False(t, HasModuleAccess(RoleSalesman, "employees"))
	assert.False(t, HasModuleAccess(RoleInventoryClerk, ModuleSales))
	assert.False(t, HasModuleAccess(Role("guest"), ModuleSales))
}

func TestModulesAndGrouping(t *testing.T) {
	all := Modules(RoleAdmin)
	assert.Len(t, all, len(modules))

	ms := Modules(RoleAccountant)
	order, groups := GroupByCategory(ms)
	require.Equal(t, []string{"finance", "analytics"}, order)
	assert.Len(t, groups["finance"], 4)
	assert.Len(t, groups["analytics"], 1)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Salesman ")
	require.NoError(t, err)
	assert.Equal(t, RoleSalesman, r)

	_, err = ParseRole("janitor")
	assert.ErrorIs(t, err, ErrUnknownRole)
}
