package cli

import (
	"github.com/quern-db/quern/constraint"
	"github.com/quern-db/quern/expr"
	"github.com/quern-db/quern/schema"
)

// SampleRegistry declares the built-in shop schema the ddl and verify
// commands operate on.
func SampleRegistry() *schema.Registry {
	customer := schema.Must("customer",
		schema.Field{Name: "id", Type: schema.TypeUUID, PrimaryKey: true},
		schema.Field{Name: "email", Type: schema.TypeText},
		schema.Field{Name: "name", Type: schema.TypeText},
		schema.Field{Name: "active", Type: schema.TypeBool, Default: true},
		schema.Field{Name: "joined", Type: schema.TypeTimestamp},
	)
	customer.Constraints = []schema.Constraint{
		constraint.NewUnique("customer_email_uniq", constraint.Fields("email")),
	}

	product := schema.Must("product",
		schema.Field{Name: "id", Type: schema.TypeInt, PrimaryKey: true},
		schema.Field{Name: "sku", Type: schema.TypeChar, MaxLength: 12},
		schema.Field{Name: "name", Type: schema.TypeText},
		schema.Field{Name: "price", Type: schema.TypeDecimal},
		schema.Field{Name: "stock", Type: schema.TypePositiveInt},
		schema.Field{Name: "discontinued", Type: schema.TypeBool},
	)
	product.Constraints = []schema.Constraint{
		constraint.NewCheck("product_price_gt_0", expr.NewQ("price__gt", 0)),
		constraint.NewCheck("product_stock_gte_0", expr.NewQ("stock__gte", 0)),
		constraint.NewUnique("product_sku_uniq", constraint.Fields("sku")),
	}

	order := schema.Must("order",
		schema.Field{Name: "id", Type: schema.TypeInt, PrimaryKey: true},
		schema.Field{Name: "number", Type: schema.TypeUUID},
		schema.Field{Name: "customer", Type: schema.TypeUUID},
		schema.Field{Name: "status", Type: schema.TypeChar, MaxLength: 20},
		schema.Field{Name: "total", Type: schema.TypeDecimal},
		schema.Field{Name: "placed", Type: schema.TypeTimestamp},
	)
	order.Constraints = []schema.Constraint{
		constraint.NewCheck("order_total_gte_0", expr.NewQ("total__gte", 0)),
		constraint.NewCheck("order_status_valid",
			expr.NewQ("status__in", []string{"pending", "paid", "shipped", "cancelled"})),
		constraint.NewUnique("order_number_uniq", constraint.Fields("number")),
	}

	reg := schema.NewRegistry()
	for _, t := range []*schema.Table{customer, order, product} {
		if err := reg.Register(t); err != nil {
			panic(err)
		}
	}
	return reg
}
