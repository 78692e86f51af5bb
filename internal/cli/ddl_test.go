package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDDLCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	ddlCmd, _, err := cmd.Find([]string{"ddl"})
	require.NoError(t, err)

	dialectFlag := ddlCmd.Flags().Lookup("dialect")
	require.NotNil(t, dialectFlag)
	assert.Equal(t, "", dialectFlag.DefValue)
}

func TestDDLOutput(t *testing.T) {
	out, err := execute(t, "ddl", "--dialect", "postgres")
	require.NoError(t, err)

	assert.Contains(t, out, `CREATE TABLE "customers" (`)
	assert.Contains(t, out, `CREATE TABLE "orders" (`)
	assert.Contains(t, out, `CREATE TABLE "products" (`)
	assert.Contains(t, out, `CONSTRAINT "customer_email_uniq" UNIQUE ("email")`)
	assert.Contains(t, out, `CONSTRAINT "product_price_gt_0" CHECK ("price" > 0)`)
	assert.Contains(t, out, `CONSTRAINT "order_status_valid" CHECK ("status" IN ('pending', 'paid', 'shipped', 'cancelled'))`)
	assert.Contains(t, out, `"id" uuid PRIMARY KEY`)
	assert.Contains(t, out, `"active" boolean DEFAULT TRUE NOT NULL`)
}

func TestDDLSingleTable(t *testing.T) {
	out, err := execute(t, "ddl", "--dialect", "sqlite", "product")
	require.NoError(t, err)

	assert.Contains(t, out, `CREATE TABLE "products" (`)
	assert.NotContains(t, out, "customers")
	assert.NotContains(t, out, `CREATE TABLE "orders"`)
	assert.Contains(t, out, `"stock" integer unsigned NOT NULL CHECK ("stock" >= 0)`)
}

func TestDDLMySQLQuoting(t *testing.T) {
	out, err := execute(t, "ddl", "--dialect", "mysql", "product")
	require.NoError(t, err)

	assert.Contains(t, out, "CREATE TABLE `products` (")
	assert.Contains(t, out, "CONSTRAINT `product_sku_uniq` UNIQUE (`sku`)")
}

func TestDDLUnknownTable(t *testing.T) {
	_, err := execute(t, "ddl", "--dialect", "postgres", "nosuch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown table "nosuch"`)
}

func TestDDLUnknownDialect(t *testing.T) {
	_, err := execute(t, "ddl", "--dialect", "mssql")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown dialect "mssql"`)
}
