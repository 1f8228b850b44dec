package sample

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

var (
	firstNames = []string{"Ann", "Bob", "Carla", "Dmitri", "Elena", "Farid", "Grace", "Hiro", "Ines", "Jamal", "Kofi", "Lena", "Mateo", "Nora", "Omar", "Priya", "Quinn", "Rosa", "Sven", "Tara"}
	lastNames  = []string{"Adams", "Baker", "Chen", "Diaz", "Evans", "Fischer", "Garcia", "Hughes", "Ito", "Jones", "Kim", "Lopez", "Muller", "Novak", "Okafor", "Patel"}
	countries  = []string{"US", "US", "US", "CA", "GB", "DE", "FR", "IN", "BR", "JP"}
	domains    = []string{"example.com", "mail.example.org", "corp.example.net"}
	categories = []string{"hardware", "software", "services", "accessories"}
	statuses   = []string{"completed", "completed", "completed", "pending", "cancelled", "refunded"}

	productNames = []string{
		"Laptop Stand", "USB-C Hub", "Noise Cancelling Headphones", "Mechanical Keyboard",
		"4K Monitor", "Webcam", "Cloud Backup Plan", "Antivirus Suite", "Setup Service",
		"Extended Warranty", "Wireless Mouse", "Desk Lamp",
	}

	ageWords = map[int]string{22: "twenty-two", 27: "twenty-seven", 30: "thirty", 35: "thirty-five", 41: "forty-one", 45: "forty-five"}
)

type customer struct {
	id         int
	first      string
	last       string
	email      string
	phone      string
	age        int
	salary     int
	registered time.Time
	country    string
}

type product struct {
	id       int
	name     string
	category string
	price    float64
}

type order struct {
	id         int
	customerID int
	productID  int
	quantity   int
	amount     float64
	date       time.Time
	status     string
}

// generator produces the demo rows from a seeded source.
type generator struct {
	rng      *rand.Rand
	customer []customer
	product  []product
	order    []order
}

// dirtyRate is the share of values corrupted on purpose.
const dirtyRate = 0.12

func (g *generator) pick(list []string) string {
	return list[g.rng.IntN(len(list))]
}

// dirty reports whether a value should be corrupted.
func (g *generator) dirty() bool {
	return g.rng.Float64() < dirtyRate
}

func (g *generator) products() {
	for i, name := range productNames[:Products] {
		g.product = append(g.product, product{
			id:       100 + i,
			name:     name,
			category: categories[i%len(categories)],
			price:    float64(g.rng.IntN(45000)+500) / 100,
		})
	}
}

func (g *generator) customers() {
	for i := range Customers {
		first, last := g.pick(firstNames), g.pick(lastNames)
		c := customer{
			id:         1001 + i,
			first:      first,
			last:       last,
			email:      strings.ToLower(first+"."+last) + strconv.Itoa(i) + "@" + g.pick(domains),
			phone:      fmt.Sprintf("%03d%03d%04d", 200+g.rng.IntN(700), g.rng.IntN(1000), g.rng.IntN(10000)),
			age:        18 + g.rng.IntN(60),
			salary:     (30 + g.rng.IntN(120)) * 1000,
			registered: epoch.AddDate(-2, 0, g.rng.IntN(720)),
			country:    g.pick(countries),
		}
		g.customer = append(g.customer, c)
	}
}

func (g *generator) orders() {
	for i := range Orders {
		c := g.customer[g.rng.IntN(len(g.customer))]
		p := g.product[g.rng.IntN(len(g.product))]
		qty := 1 + g.rng.IntN(4)
		days := int(epoch.Sub(c.registered).Hours()/24) + 1
		g.order = append(g.order, order{
			id:         50001 + i,
			customerID: c.id,
			productID:  p.id,
			quantity:   qty,
			amount:     float64(qty) * p.price,
			date:       c.registered.AddDate(0, 0, g.rng.IntN(days)),
			status:     g.pick(statuses),
		})
	}
}

// customerRows renders customers with the kinds of defects a raw CRM export
// has: inconsistent casing and whitespace, malformed emails, mixed phone and
// date formats, ages spelled out in words, salaries with currency symbols,
// blanks and one duplicated record.
func (g *generator) customerRows() [][]string {
	rows := [][]string{{"customer_id", "name", "email", "phone", "age", "salary", "registration_date", "country"}}
	for _, c := range g.customer {
		rows = append(rows, []string{
			strconv.Itoa(c.id),
			g.dirtyName(c.first + " " + c.last),
			g.dirtyEmail(c.email),
			g.dirtyPhone(c.phone),
			g.dirtyAge(c.age),
			g.dirtySalary(c.salary),
			g.dirtyDate(c.registered),
			c.country,
		})
	}
	if len(rows) > 3 {
		rows = append(rows, append([]string(nil), rows[3]...))
	}
	return rows
}

func (g *generator) orderRows() [][]string {
	rows := [][]string{{"order_id", "customer_id", "product_id", "quantity", "amount", "order_date", "status"}}
	for _, o := range g.order {
		amount := strconv.FormatFloat(o.amount, 'f', 2, 64)
		customerID := strconv.Itoa(o.customerID)
		status := o.status
		if g.dirty() {
			switch g.rng.IntN(4) {
			case 0:
				amount = ""
			case 1:
				amount = "-" + amount
			case 2:
				customerID = ""
			default:
				status = strings.ToUpper(status)
			}
		}
		rows = append(rows, []string{
			strconv.Itoa(o.id),
			customerID,
			strconv.Itoa(o.productID),
			strconv.Itoa(o.quantity),
			amount,
			o.date.Format("2006-01-02"),
			status,
		})
	}
	return rows
}

func (g *generator) productRows() [][]string {
	rows := [][]string{{"product_id", "name", "category", "price"}}
	for i, p := range g.product {
		price := strconv.FormatFloat(p.price, 'f', 2, 64)
		if i == len(g.product)-1 {
			price = ""
		}
		rows = append(rows, []string{strconv.Itoa(p.id), p.name, p.category, price})
	}
	return rows
}

func (g *generator) dirtyName(name string) string {
	if !g.dirty() {
		return name
	}
	switch g.rng.IntN(3) {
	case 0:
		return strings.ToLower(name)
	case 1:
		return strings.ToUpper(name)
	}
	return "  " + name + " "
}

func (g *generator) dirtyEmail(email string) string {
	if !g.dirty() {
		return email
	}
	switch g.rng.IntN(3) {
	case 0:
		return strings.ToUpper(email)
	case 1:
		return strings.Replace(email, "@", "", 1)
	}
	return ""
}

func (g *generator) dirtyPhone(digits string) string {
	formats := []func(string) string{
		func(d string) string { return fmt.Sprintf("(%s) %s-%s", d[:3], d[3:6], d[6:]) },
		func(d string) string { return fmt.Sprintf("%s.%s.%s", d[:3], d[3:6], d[6:]) },
		func(d string) string { return fmt.Sprintf("%s-%s-%s", d[:3], d[3:6], d[6:]) },
		func(d string) string { return fmt.Sprintf("+1 %s %s %s", d[:3], d[3:6], d[6:]) },
		func(d string) string { return d },
	}
	if g.dirty() {
		if g.rng.IntN(2) == 0 {
			return ""
		}
		return digits[:5]
	}
	return formats[g.rng.IntN(len(formats))](digits)
}

func (g *generator) dirtyAge(age int) string {
	if !g.dirty() {
		return strconv.Itoa(age)
	}
	if w, ok := ageWords[age]; ok {
		return w
	}
	if g.rng.IntN(2) == 0 {
		return ""
	}
	return "thirty"
}

func (g *generator) dirtySalary(salary int) string {
	if !g.dirty() {
		return strconv.Itoa(salary)
	}
	switch g.rng.IntN(3) {
	case 0:
		return "$" + formatThousands(salary)
	case 1:
		return "sixty thousand"
	}
	return ""
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006", "January 2, 2006", "02-01-2006"}

func (g *generator) dirtyDate(t time.Time) string {
	if !g.dirty() {
		return t.Format(dateLayouts[0])
	}
	if g.rng.IntN(5) == 0 {
		return ""
	}
	return t.Format(dateLayouts[1+g.rng.IntN(len(dateLayouts)-1)])
}

func formatThousands(n int) string {
	s := strconv.Itoa(n)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
