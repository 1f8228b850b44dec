// Package sample generates a small, deterministic demo project: raw CSV
// extracts with realistic data problems, pipeline lineage from staging to
// marts to reports, a starter business glossary, a classification rule and
// the project configuration that ties them together.
package sample

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapmeta/internal/config"
	"github.com/leapstack-labs/leapmeta/internal/glossary"
	"github.com/leapstack-labs/leapmeta/internal/lineage"
)

// SourceName is the files source the demo project collects raw extracts from.
const SourceName = "landing"

// Row counts of the generated extracts.
const (
	Customers = 60
	Orders    = 240
	Products  = 12
)

// epoch anchors every generated date so output only depends on the seed.
var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Result lists what Generate wrote.
type Result struct {
	Dir   string   `json:"dir"`
	Files []string `json:"files"`
}

// Generate writes the demo project into dir. The same seed always produces
// the same files. An existing project config in dir is never overwritten.
func Generate(dir string, seed int64) (*Result, error) {
	cfgPath := filepath.Join(dir, config.ConfigFileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return nil, fmt.Errorf("%s: %w", cfgPath, os.ErrExist)
	}

	g := &generator{
		rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)), //nolint:gosec // G404: demo data
	}
	g.products()
	g.customers()
	g.orders()

	res := &Result{Dir: dir}
	writers := []struct {
		rel   string
		write func(path string) error
	}{
		{"raw/customers.csv", g.csvWriter(g.customerRows)},
		{"raw/orders.csv", g.csvWriter(g.orderRows)},
		{"raw/products.csv", g.csvWriter(g.productRows)},
		{config.DefaultPipelinesPath, writeYAML(Pipelines())},
		{config.DefaultGlossaryPath, writeGlossary},
		{filepath.Join(config.DefaultRulesDir, "pii.star"), writeBytes([]byte(PIIRule))},
		{config.ConfigFileName, writeYAML(ProjectConfig())},
	}
	for _, w := range writers {
		path := filepath.Join(dir, filepath.FromSlash(w.rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		if err := w.write(path); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", w.rel, err)
		}
		res.Files = append(res.Files, filepath.ToSlash(w.rel))
	}
	return res, nil
}

// ProjectConfig is the leapmeta.yaml of the demo project.
func ProjectConfig() config.ProjectConfig {
	return config.ProjectConfig{
		StatePath:     config.DefaultStatePath,
		GlossaryPath:  config.DefaultGlossaryPath,
		PipelinesPath: config.DefaultPipelinesPath,
		RulesDir:      config.DefaultRulesDir,
		Concurrency:   4,
		Sources: []config.Source{{
			Name:    SourceName,
			Type:    config.SourceFiles,
			Path:    "raw",
			Options: map[string]any{"max_rows": 1000},
		}},
		Server: config.ServerConfig{Port: config.DefaultServerPort},
	}
}

func writeYAML(v any) func(string) error {
	return func(path string) error {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
		return os.WriteFile(path, buf.Bytes(), 0o600)
	}
}

func writeBytes(data []byte) func(string) error {
	return func(path string) error {
		return os.WriteFile(path, data, 0o600)
	}
}

func writeGlossary(path string) error {
	g := glossary.NewWithClock(func() time.Time { return epoch })
	for _, t := range Terms() {
		if _, err := g.Add(t); err != nil {
			return err
		}
	}
	return g.Save(path)
}

func (g *generator) csvWriter(rows func() [][]string) func(string) error {
	return func(path string) error {
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.WriteAll(rows()); err != nil {
			return err
		}
		return os.WriteFile(path, buf.Bytes(), 0o600)
	}
}

// Pipelines is the lineage of the demo project: raw extracts are staged,
// joined into marts and published to two reports.
func Pipelines() *lineage.PipelineSet {
	raw := func(name string) string { return SourceName + "." + name + "_csv" }
	return &lineage.PipelineSet{
		Assets: []lineage.AssetDecl{
			{
				ID: "bi.reports.revenue_dashboard", Type: "report", Name: "Revenue Dashboard",
				Owner: "finance", Domain: "finance", Criticality: "high",
				Description: "Daily revenue by customer and product for the leadership team.",
				Tags:        []string{"executive"},
			},
			{
				ID: "bi.reports.customer_360", Type: "report", Name: "Customer 360",
				Owner: "marketing", Domain: "sales", Criticality: "medium",
				Description: "Per-customer profile with lifetime value.",
			},
			{
				ID: "warehouse.marts.customer_revenue", Type: "table", Name: "customer_revenue",
				Owner: "analytics", Domain: "finance", Criticality: "high",
				Description: "Revenue and order counts per customer.",
			},
		},
		Jobs: []lineage.Job{
			{
				Name: "stage_customers", Description: "Clean and standardize customer records.",
				Transform: "expression", Schedule: "0 1 * * *", Owner: "data-eng",
				Inputs: []string{raw("customers")}, Outputs: []string{"warehouse.staging.customers"},
				Columns: []lineage.ColumnMapping{
					{From: raw("customers") + "#customer_id", To: "warehouse.staging.customers#customer_id", Transform: "direct"},
					{From: raw("customers") + "#name", To: "warehouse.staging.customers#full_name", Transform: "expression", Expression: "initcap(trim(name))"},
					{From: raw("customers") + "#email", To: "warehouse.staging.customers#email", Transform: "expression", Expression: "lower(trim(email))"},
					{From: raw("customers") + "#phone", To: "warehouse.staging.customers#phone", Transform: "expression", Expression: "format_phone(phone)"},
					{From: raw("customers") + "#age", To: "warehouse.staging.customers#age", Transform: "expression", Expression: "parse_age(age)"},
					{From: raw("customers") + "#salary", To: "warehouse.staging.customers#salary", Transform: "expression", Expression: "parse_money(salary)"},
					{From: raw("customers") + "#registration_date", To: "warehouse.staging.customers#registered_on", Transform: "expression", Expression: "parse_date(registration_date)"},
					{From: raw("customers") + "#country", To: "warehouse.staging.customers#country", Transform: "direct"},
				},
			},
			{
				Name: "stage_orders", Description: "Type and deduplicate orders.",
				Transform: "expression", Schedule: "0 1 * * *", Owner: "data-eng",
				Inputs: []string{raw("orders")}, Outputs: []string{"warehouse.staging.orders"},
				Columns: []lineage.ColumnMapping{
					{From: raw("orders") + "#order_id", To: "warehouse.staging.orders#order_id", Transform: "direct"},
					{From: raw("orders") + "#customer_id", To: "warehouse.staging.orders#customer_id", Transform: "direct"},
					{From: raw("orders") + "#product_id", To: "warehouse.staging.orders#product_id", Transform: "direct"},
					{From: raw("orders") + "#quantity", To: "warehouse.staging.orders#quantity", Transform: "direct"},
					{From: raw("orders") + "#amount", To: "warehouse.staging.orders#amount_usd", Transform: "expression", Expression: "cast(amount as decimal(12,2))"},
					{From: raw("orders") + "#order_date", To: "warehouse.staging.orders#ordered_on", Transform: "expression", Expression: "parse_date(order_date)"},
					{From: raw("orders") + "#status", To: "warehouse.staging.orders#status", Transform: "expression", Expression: "lower(status)"},
				},
			},
			{
				Name: "stage_products", Transform: "direct", Schedule: "0 1 * * *", Owner: "data-eng",
				Inputs: []string{raw("products")}, Outputs: []string{"warehouse.staging.products"},
				Columns: []lineage.ColumnMapping{
					{From: raw("products") + "#product_id", To: "warehouse.staging.products#product_id"},
					{From: raw("products") + "#name", To: "warehouse.staging.products#product_name"},
					{From: raw("products") + "#category", To: "warehouse.staging.products#category"},
					{From: raw("products") + "#price", To: "warehouse.staging.products#price"},
				},
			},
			{
				Name: "build_customer_revenue", Description: "Aggregate completed orders per customer.",
				Transform: "aggregate", Schedule: "0 2 * * *", Owner: "analytics",
				Inputs:  []string{"warehouse.staging.customers", "warehouse.staging.orders"},
				Outputs: []string{"warehouse.marts.customer_revenue"},
				Columns: []lineage.ColumnMapping{
					{From: "warehouse.staging.customers#customer_id", To: "warehouse.marts.customer_revenue#customer_id", Transform: "direct"},
					{From: "warehouse.staging.customers#full_name", To: "warehouse.marts.customer_revenue#customer_name", Transform: "direct"},
					{From: "warehouse.staging.orders#amount_usd", To: "warehouse.marts.customer_revenue#total_revenue", Transform: "aggregate", Expression: "sum(amount_usd)"},
					{From: "warehouse.staging.orders#order_id", To: "warehouse.marts.customer_revenue#order_count", Transform: "aggregate", Expression: "count(order_id)"},
				},
			},
			{
				Name: "build_product_sales", Transform: "join", Schedule: "0 2 * * *", Owner: "analytics",
				Inputs:  []string{"warehouse.staging.orders", "warehouse.staging.products"},
				Outputs: []string{"warehouse.marts.product_sales"},
				Columns: []lineage.ColumnMapping{
					{From: "warehouse.staging.products#product_name", To: "warehouse.marts.product_sales#product_name", Transform: "direct"},
					{From: "warehouse.staging.products#category", To: "warehouse.marts.product_sales#category", Transform: "direct"},
					{From: "warehouse.staging.orders#quantity", To: "warehouse.marts.product_sales#units_sold", Transform: "aggregate", Expression: "sum(quantity)"},
					{From: "warehouse.staging.orders#amount_usd", To: "warehouse.marts.product_sales#revenue", Transform: "aggregate", Expression: "sum(amount_usd)"},
				},
			},
			{
				Name: "publish_revenue_dashboard", Transform: "aggregate", Schedule: "0 6 * * *", Owner: "finance",
				Inputs:  []string{"warehouse.marts.customer_revenue", "warehouse.marts.product_sales"},
				Outputs: []string{"bi.reports.revenue_dashboard"},
			},
			{
				Name: "publish_customer_360", Transform: "join", Schedule: "0 6 * * *", Owner: "marketing",
				Inputs:  []string{"warehouse.staging.customers", "warehouse.marts.customer_revenue"},
				Outputs: []string{"bi.reports.customer_360"},
			},
		},
	}
}

// Terms is the starter business glossary.
func Terms() []glossary.Term {
	return []glossary.Term{
		{
			ID: "term-customer", Name: "Customer", Domain: "sales", Owner: "marketing", Status: glossary.StatusApproved,
			Definition: "A person or organization that has registered and may place orders.",
			Synonyms:   []string{"client", "buyer"},
			Related:    []string{"Customer ID", "Order"},
			Links:      []string{"warehouse.staging.customers"},
		},
		{
			ID: "term-customer-id", Name: "Customer ID", Domain: "sales", Owner: "data-eng", Status: glossary.StatusApproved,
			Definition: "The stable identifier assigned to a customer at registration.",
			Synonyms:   []string{"customer number"},
			Related:    []string{"Customer"},
		},
		{
			ID: "term-email", Name: "Email Address", Domain: "sales", Steward: "privacy-office", Status: glossary.StatusApproved,
			Definition: "The contact email a customer registered with. Personal data.",
			Synonyms:   []string{"email", "e-mail"},
			Related:    []string{"Personal Data"},
		},
		{
			ID: "term-phone", Name: "Phone Number", Domain: "sales", Steward: "privacy-office", Status: glossary.StatusApproved,
			Definition: "A contact telephone number, stored as (XXX) XXX-XXXX once cleaned. Personal data.",
			Synonyms:   []string{"phone", "telephone"},
			Related:    []string{"Personal Data"},
		},
		{
			ID: "term-registration-date", Name: "Registration Date", Domain: "sales", Status: glossary.StatusApproved,
			Definition: "The day a customer first registered, in YYYY-MM-DD.",
			Synonyms:   []string{"signup date"},
		},
		{
			ID: "term-order", Name: "Order", Domain: "sales", Owner: "finance", Status: glossary.StatusApproved,
			Definition: "A request by a customer to buy one product in some quantity.",
			Synonyms:   []string{"purchase"},
			Related:    []string{"Customer", "Revenue"},
		},
		{
			ID: "term-revenue", Name: "Revenue", Domain: "finance", Owner: "finance", Status: glossary.StatusApproved,
			Definition: "The sum of amounts of completed orders, in USD, before refunds.",
			Synonyms:   []string{"sales", "total revenue"},
			Related:    []string{"Order"},
			Links:      []string{"warehouse.marts.customer_revenue#total_revenue"},
		},
		{
			ID: "term-product", Name: "Product", Domain: "catalog", Status: glossary.StatusDraft,
			Definition: "An item offered for sale, identified by its product ID.",
			Synonyms:   []string{"item", "sku"},
		},
		{
			ID: "term-personal-data", Name: "Personal Data", Domain: "governance", Steward: "privacy-office", Status: glossary.StatusApproved,
			Definition: "Any information relating to an identified or identifiable person (PII).",
			Synonyms:   []string{"pii", "personally identifiable information"},
		},
	}
}

// PIIRule is the demo classification rule written to rules/pii.star.
const PIIRule = `# Classification rules for the demo project.
#
# classify is called once per column. It may return None, a classification
# string, a list of tags, or a dict with any of: classification, pii, tags,
# terms.

_CONTACT = ("email", "phone", "phone_number")
_MONEY = ("amount", "amount_usd", "price", "revenue", "total_revenue")

def classify(column):
    if column.name in _CONTACT:
        return {"classification": "confidential", "pii": True, "tags": ["contact"]}
    if column.name == "salary":
        return {"classification": "restricted", "pii": True, "tags": ["compensation"]}
    if column.name == "name":
        return {"classification": "confidential", "pii": True}
    if column.name in _MONEY:
        return {"tags": ["finance"], "classification": "internal"}
    if column.name == "customer_id":
        return {"terms": ["Customer ID"]}
    for s in column.samples:
        if matches(r"^\d{3}-\d{2}-\d{4}$", s):
            return {"classification": "restricted", "pii": True}
    return None
`
