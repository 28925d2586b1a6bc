// Package webhook 把外部电商平台推送的订单事件对账写入 Client、Product 与 Order
package webhook

import (
	"fmt"

	"orderdesk/validation"
)

// Buyer 买家信息
type Buyer struct {
	BuyerName  string `json:"buyerName"`
	BuyerEmail string `json:"buyerEmail"`
}

// LineItem 订单行
type LineItem struct {
	ItemID    string  `json:"itemId"`
	ItemName  string  `json:"itemName"`
	Qty       float64 `json:"qty"`
	UnitPrice float64 `json:"unitPrice"`
}

// Price 行金额
func (li LineItem) Price() float64 {
	return li.UnitPrice * li.Qty
}

// Event 入站 webhook 事件，ID 即订单 externalId
type Event struct {
	ID          string     `json:"id"`
	Buyer       Buyer      `json:"buyer"`
	LineItems   []LineItem `json:"lineItems"`
	TotalAmount float64    `json:"totalAmount"`
	CreatedAt   string     `json:"createdAt"`
}

// Validate 实现 validation.IValidator，汇总全部字段错误
func (e *Event) Validate() error {
	errs := []error{
		validation.ValidateRequired(e.ID, "id"),
		validation.ValidateRequired(e.Buyer.BuyerName, "buyer.buyerName"),
		validation.ValidateEmail(e.Buyer.BuyerEmail, "buyer.buyerEmail"),
		validation.ValidatePositive(e.TotalAmount, "totalAmount"),
		validation.ValidateISODate(e.CreatedAt, "createdAt"),
	}
	if e.LineItems == nil {
		errs = append(errs, validation.ValidateRequired("", "lineItems"))
	}
	for i, li := range e.LineItems {
		field := fmt.Sprintf("lineItems.%d.", i)
		errs = append(errs,
			validation.ValidateRequired(li.ItemID, field+"itemId"),
			validation.ValidateRequired(li.ItemName, field+"itemName"),
			validation.ValidatePositive(li.Qty, field+"qty"),
			validation.ValidatePositive(li.UnitPrice, field+"unitPrice"),
		)
	}
	return validation.Collect(errs...)
}

// ResultData 对账结果摘要
type ResultData struct {
	OrderID      string  `json:"orderId"`
	ClientID     string  `json:"clientId"`
	ProductCount int     `json:"productCount"`
	TotalAmount  float64 `json:"totalAmount"`
}

// Result webhook 处理结果
type Result struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    ResultData `json:"data"`
}

// Ingested order.ingested 消息负载
type Ingested struct {
	ExternalID string `json:"externalId"`
	ResultData
}
