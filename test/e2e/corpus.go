// Package e2e provides end-to-end tests with a report corpus and multiple queries.
package e2e

import (
	"fmt"
	"strings"

	"github.com/hyperjump/dashrag/internal/models"
)

// E2EDocument is a document entry in the E2E corpus.
type E2EDocument struct {
	ID      string
	Title   string
	Content string
}

// QueryTestCase defines a query and the document ID(s) that must appear in search results.
type QueryTestCase struct {
	Query          string
	ExpectedDocIDs []string
	Description    string
}

// Corpus holds documents and query test cases for E2E tests.
type Corpus struct {
	Documents    []E2EDocument
	TestCases    []QueryTestCase
	TotalDocs    int
	TotalQueries int
}

type topic struct {
	title   string
	phrase  string
	content string
}

var topics = []topic{
	{"Regional Sales", "regional sales revenue", "Quarterly regional sales revenue grew in the north. Regional sales revenue in the south was flat."},
	{"Customer Churn", "customer churn rate", "Customer churn rate rose after the price change. Retention offers reduced customer churn rate in March."},
	{"Headcount Plan", "headcount hiring plan", "The headcount hiring plan adds twelve engineers. Finance approved the headcount hiring plan for Q3."},
	{"Marketing Spend", "marketing spend campaign", "Marketing spend campaign results exceeded targets. Paid social dominated marketing spend campaign budgets."},
	{"Inventory Levels", "warehouse inventory stock", "Warehouse inventory stock fell below reorder points. Warehouse inventory stock is counted weekly."},
	{"Supplier Delays", "supplier delivery delays", "Supplier delivery delays hit the assembly line. Two vendors caused most supplier delivery delays."},
	{"Cash Flow", "operating cash flow", "Operating cash flow turned positive in June. Operating cash flow covers capital expenditure."},
	{"Gross Margin", "gross margin erosion", "Gross margin erosion followed freight increases. Pricing actions limit gross margin erosion."},
	{"Net Promoter Score", "net promoter score survey", "The net promoter score survey reached 4000 users. Detractors in the net promoter score survey cite onboarding."},
	{"Website Traffic", "website traffic sessions", "Website traffic sessions doubled after the launch. Organic search drives website traffic sessions."},
	{"Conversion Funnel", "checkout conversion funnel", "The checkout conversion funnel loses users at payment. Fixing the checkout conversion funnel is a priority."},
	{"Support Tickets", "support ticket backlog", "The support ticket backlog peaked during the outage. Automation trimmed the support ticket backlog."},
	{"Energy Usage", "factory energy consumption", "Factory energy consumption dropped with new motors. Night shifts shape factory energy consumption."},
	{"Fleet Maintenance", "fleet maintenance schedule", "The fleet maintenance schedule slipped by two weeks. Trucks follow the fleet maintenance schedule strictly."},
	{"Payroll Costs", "payroll overtime costs", "Payroll overtime costs spiked in December. Scheduling software curbs payroll overtime costs."},
	{"Subscription Renewals", "subscription renewal pipeline", "The subscription renewal pipeline is healthy. Enterprise deals lead the subscription renewal pipeline."},
	{"Product Returns", "product return reasons", "Sizing tops the product return reasons. Product return reasons are coded at the warehouse."},
	{"Shipping Times", "average shipping time", "Average shipping time improved to three days. Carrier mix affects average shipping time."},
	{"Budget Variance", "budget variance report", "The budget variance report flags travel. Each department reviews the budget variance report monthly."},
	{"Accounts Receivable", "accounts receivable aging", "Accounts receivable aging shows slow payers. Collections target accounts receivable aging over ninety days."},
	{"Employee Attrition", "employee attrition exit", "Employee attrition exit interviews mention pay. Employee attrition exit rates are highest in sales."},
	{"Training Hours", "training hours completion", "Training hours completion reached ninety percent. Managers track training hours completion by team."},
	{"Safety Incidents", "workplace safety incidents", "Workplace safety incidents fell to zero in May. Audits review workplace safety incidents quarterly."},
	{"Store Footfall", "retail store footfall", "Retail store footfall recovered after renovation. Weather drives retail store footfall on weekends."},
	{"Loyalty Program", "loyalty program members", "Loyalty program members spend more per visit. The loyalty program members tier was simplified."},
	{"App Downloads", "mobile app downloads", "Mobile app downloads surged with the promotion. Android leads mobile app downloads."},
	{"Server Uptime", "server uptime availability", "Server uptime availability met the target. Maintenance windows reduce server uptime availability."},
	{"Cloud Bill", "cloud hosting bill", "The cloud hosting bill grew with storage. Reserved capacity lowers the cloud hosting bill."},
	{"Lead Generation", "inbound lead generation", "Inbound lead generation relies on webinars. Inbound lead generation quality improved."},
	{"Partner Revenue", "channel partner revenue", "Channel partner revenue doubled in Europe. Incentives lift channel partner revenue."},
	{"Tax Provision", "quarterly tax provision", "The quarterly tax provision includes credits. Auditors reviewed the quarterly tax provision."},
	{"Capital Projects", "capital project spending", "Capital project spending focused on automation. The board capped capital project spending."},
	{"Raw Materials", "raw material prices", "Raw material prices eased in autumn. Hedging smooths raw material prices."},
	{"Production Yield", "production line yield", "Production line yield reached 97 percent. Calibration raised production line yield."},
	{"Customer Lifetime", "customer lifetime value", "Customer lifetime value is highest for annual plans. Upsell raises customer lifetime value."},
	{"Price Elasticity", "price elasticity study", "The price elasticity study covered six markets. Results of the price elasticity study guide discounts."},
	{"Call Center", "call center wait times", "Call center wait times exceeded five minutes. Staffing cut call center wait times."},
	{"Event Attendance", "conference event attendance", "Conference event attendance beat forecasts. Virtual passes boosted conference event attendance."},
	{"Donor Giving", "annual donor giving", "Annual donor giving rose ten percent. Matching gifts drive annual donor giving."},
	{"Grant Funding", "research grant funding", "Research grant funding supports two labs. Research grant funding renewals are due in spring."},
}

// BuildCorpus returns one document per topic and one query test case per topic phrase.
// Each document carries its phrase twice so the matching doc outranks partial matches.
func BuildCorpus() *Corpus {
	docs := make([]E2EDocument, len(topics))
	cases := make([]QueryTestCase, len(topics))
	for i, tp := range topics {
		id := fmt.Sprintf("e2e-doc-%03d", i+1)
		docs[i] = E2EDocument{ID: id, Title: tp.title, Content: tp.content}
		cases[i] = QueryTestCase{
			Query:          tp.phrase,
			ExpectedDocIDs: []string{id},
			Description:    fmt.Sprintf("query %q should return doc %s", tp.phrase, id),
		}
	}
	return &Corpus{
		Documents:    docs,
		TestCases:    cases,
		TotalDocs:    len(docs),
		TotalQueries: len(cases),
	}
}

func containsPhrase(d E2EDocument, phrase string) bool {
	lower := strings.ToLower(phrase)
	return strings.Contains(strings.ToLower(d.Title), lower) || strings.Contains(strings.ToLower(d.Content), lower)
}

// ToDocuments converts the corpus to index documents. Every third document is flagged as a table.
func (c *Corpus) ToDocuments() []models.Document {
	out := make([]models.Document, len(c.Documents))
	for i, d := range c.Documents {
		out[i] = models.NewDocument(d.ID, d.Title+"\n\n"+d.Content, models.Metadata{
			SourceFile: d.ID + ".txt",
			HasTable:   i%3 == 0,
		})
	}
	return out
}
