// Package seed 生成演示用的 webhook 事件并走同一条对账流水线写入
package seed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"orderdesk/app/webhook"
	"orderdesk/logging"
)

// DefaultCount 默认生成的订单数
const DefaultCount = 50

type catalogItem struct {
	id    string
	name  string
	price float64
}

var catalog = []catalogItem{
	{"P-001", "Basic T-Shirt", 49.9},
	{"P-002", "Denim Jeans", 129.9},
	{"P-003", "Running Shoes", 299.9},
	{"P-004", "Leather Jacket", 499.9},
	{"P-005", "Snapback Cap", 59.9},
	{"P-006", "Sport Socks", 19.9},
	{"P-007", "Training Shorts", 79.9},
	{"P-008", "Hoodie", 189.9},
	{"P-009", "Casual Dress", 159.9},
	{"P-010", "Midi Skirt", 109.9},
	{"P-011", "Dress Shirt", 89.9},
	{"P-012", "Cargo Shorts", 119.9},
	{"P-013", "Leather Belt", 69.9},
	{"P-014", "Sunglasses", 199.9},
	{"P-015", "Digital Watch", 349.9},
}

var buyers = []webhook.Buyer{
	{BuyerName: "Maria Souza", BuyerEmail: "maria.souza@example.com"},
	{BuyerName: "Joao Silva", BuyerEmail: "joao.silva@example.com"},
	{BuyerName: "Ana Oliveira", BuyerEmail: "ana.oliveira@example.com"},
	{BuyerName: "Carlos Santos", BuyerEmail: "carlos.santos@example.com"},
	{BuyerName: "Beatriz Lima", BuyerEmail: "beatriz.lima@example.com"},
	{BuyerName: "Pedro Rocha", BuyerEmail: "pedro.rocha@example.com"},
	{BuyerName: "Juliana Ferreira", BuyerEmail: "juliana.ferreira@example.com"},
	{BuyerName: "Lucas Almeida", BuyerEmail: "lucas.almeida@example.com"},
	{BuyerName: "Fernanda Costa", BuyerEmail: "fernanda.costa@example.com"},
	{BuyerName: "Rafael Mendes", BuyerEmail: "rafael.mendes@example.com"},
	{BuyerName: "Camila Ribeiro", BuyerEmail: "camila.ribeiro@example.com"},
	{BuyerName: "Gabriel Pereira", BuyerEmail: "gabriel.pereira@example.com"},
	{BuyerName: "Larissa Martins", BuyerEmail: "larissa.martins@example.com"},
	{BuyerName: "Bruno Carvalho", BuyerEmail: "bruno.carvalho@example.com"},
	{BuyerName: "Isabela Nascimento", BuyerEmail: "isabela.nascimento@example.com"},
	{BuyerName: "Diego Barbosa", BuyerEmail: "diego.barbosa@example.com"},
	{BuyerName: "Tatiana Araujo", BuyerEmail: "tatiana.araujo@example.com"},
	{BuyerName: "Rodrigo Gomes", BuyerEmail: "rodrigo.gomes@example.com"},
	{BuyerName: "Patricia Lopes", BuyerEmail: "patricia.lopes@example.com"},
	{BuyerName: "Thiago Monteiro", BuyerEmail: "thiago.monteiro@example.com"},
}

// Processor 处理单条 webhook 事件，webhook.Service 满足它
type Processor interface {
	Process(ctx context.Context, event *webhook.Event) (*webhook.Result, error)
}

// Report 一次播种的统计
type Report struct {
	Succeeded int
	Failed    int
	Buyers    int
	Catalog   int
}

// Seeder 演示数据生成器
type Seeder struct {
	processor Processor
	count     int
	rng       *rand.Rand
	now       func() time.Time
	logger    logging.Logger
}

// New 创建生成器；count <= 0 时取 DefaultCount，相同 seed 生成相同事件
func New(processor Processor, count int, seed uint64) *Seeder {
	if count <= 0 {
		count = DefaultCount
	}
	return &Seeder{
		processor: processor,
		count:     count,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:       time.Now,
		logger:    logging.ComponentLogger("seed"),
	}
}

// Events 生成全部事件但不处理
//
// 第 i 个事件的 externalId 为 ORD-(10000+i)，买家按顺序轮换，订单行数为 (i%4)+1，
// 同一事件内的产品互不重复。
func (s *Seeder) Events() []*webhook.Event {
	events := make([]*webhook.Event, 0, s.count)
	for i := 0; i < s.count; i++ {
		picked := s.pick((i % 4) + 1)
		items := make([]webhook.LineItem, len(picked))
		var total float64
		for j, c := range picked {
			qty := float64(s.rng.IntN(3) + 1)
			items[j] = webhook.LineItem{ItemID: c.id, ItemName: c.name, Qty: qty, UnitPrice: c.price}
			total += items[j].Price()
		}
		events = append(events, &webhook.Event{
			ID:          fmt.Sprintf("ORD-%05d", 10000+i),
			Buyer:       buyers[i%len(buyers)],
			LineItems:   items,
			TotalAmount: total,
			CreatedAt:   s.now().UTC().Format(time.RFC3339),
		})
	}
	return events
}

// Run 依次处理生成的事件，单条失败只记录并计数
func (s *Seeder) Run(ctx context.Context) (Report, error) {
	s.logger.Info(ctx, "seeding started", logging.Int("count", s.count))

	report := Report{Catalog: len(catalog)}
	seen := make(map[string]struct{})
	for i, event := range s.Events() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := s.processor.Process(ctx, event); err != nil {
			report.Failed++
			s.logger.Error(ctx, "seed order failed",
				logging.String("external_id", event.ID),
				logging.Error(err))
			continue
		}
		report.Succeeded++
		seen[event.Buyer.BuyerEmail] = struct{}{}
		if (i+1)%10 == 0 {
			s.logger.Info(ctx, "seeding progress", logging.Int("done", i+1), logging.Int("total", s.count))
		}
	}
	report.Buyers = len(seen)

	s.logger.Info(ctx, "seeding finished",
		logging.Int("succeeded", report.Succeeded),
		logging.Int("failed", report.Failed),
		logging.Int("buyers", report.Buyers),
		logging.Int("catalog", report.Catalog))
	return report, nil
}

func (s *Seeder) pick(n int) []catalogItem {
	idx := s.rng.Perm(len(catalog))[:n]
	out := make([]catalogItem, n)
	for i, j := range idx {
		out[i] = catalog[j]
	}
	return out
}
