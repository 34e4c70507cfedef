// internal/service/points/interfaces/dom_mapper.go
package interfaces

import (
	"encoding/json"
	"slices"
	"strconv"

	"easypoints/internal/service/points/domain"

	"github.com/pkg/errors"
)

// 主题渲染在元素上的属性
const (
	attrTarget       = "data-loyal-target"
	attrCurrencyCost = "data-loyal-currency-cost"
	attrQuantity     = "data-loyal-quantity"
	attrBonusPoints  = "data-loyal-bonus-points"
	attrOpts         = "data-loyal-opts"
	attrItem         = "data-loyal-item"
	attrRound        = "data-loyal-round"
	attrCartSubtotal = "data-loyal-cart-subtotal"
	attrBlock        = "data-loyal-block"

	classAfterDiscount = "points-after-applied-discount"
)

// DOMNode 是主题上报的一个元素: data-loyal-* 属性、class 以及渲染文本。
type DOMNode struct {
	ID          string            `json:"id"`
	Attrs       map[string]string `json:"attrs"`
	Classes     []string          `json:"classes,omitempty"`
	InnerText   string            `json:"innerText,omitempty"`
	TextContent string            `json:"textContent,omitempty"`
}

// DOMPatch 是计算后需要写回元素的内容。
type DOMPatch struct {
	ID    string            `json:"id"`
	Attrs map[string]string `json:"attrs,omitempty"`
	Text  string            `json:"text"`
}

type loyalOpts struct {
	Tax *domain.TaxInfo `json:"tax"`
}

// NodeFromDOM 把元素属性转换为领域节点，属性 JSON 不合法时返回错误。
func NodeFromDOM(n DOMNode) (domain.PointNode, error) {
	node := domain.PointNode{
		ID:            n.ID,
		Target:        domain.Target(n.Attrs[attrTarget]),
		RoundUp:       n.Attrs[attrRound] == "up",
		CartSubtotal:  hasAttr(n, attrCartSubtotal),
		Blocked:       hasAttr(n, attrBlock),
		AfterDiscount: slices.Contains(n.Classes, classAfterDiscount),
		Rendered:      n.InnerText,
		TextContent:   n.TextContent,
	}

	// 金额只取其中的数字，没有数字时为 0
	node.CurrencyCost, _ = domain.ParseDigits(n.Attrs[attrCurrencyCost])
	if raw, ok := n.Attrs[attrQuantity]; ok && raw != "" {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			return node, errors.Wrapf(err, "node %s: invalid %s", n.ID, attrQuantity)
		}
		node.Quantity = qty
	}
	if raw, ok := n.Attrs[attrBonusPoints]; ok && raw != "" {
		var bonus domain.BonusPointSpec
		if err := json.Unmarshal([]byte(raw), &bonus); err != nil {
			return node, errors.Wrapf(err, "node %s: invalid %s", n.ID, attrBonusPoints)
		}
		if bonus.Quantity <= 0 {
			bonus.Quantity = 1
		}
		node.Bonus = &bonus
	}
	if raw, ok := n.Attrs[attrOpts]; ok && raw != "" {
		var opts loyalOpts
		if err := json.Unmarshal([]byte(raw), &opts); err != nil {
			return node, errors.Wrapf(err, "node %s: invalid %s", n.ID, attrOpts)
		}
		node.Tax = opts.Tax
	}
	if raw, ok := n.Attrs[attrItem]; ok && raw != "" {
		var item domain.LineItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return node, errors.Wrapf(err, "node %s: invalid %s", n.ID, attrItem)
		}
		node.Item = &item
	}
	return node, nil
}

func DocumentFromDOM(nodes []DOMNode) (domain.Document, error) {
	doc := make(domain.Document, 0, len(nodes))
	for _, n := range nodes {
		node, err := NodeFromDOM(n)
		if err != nil {
			return nil, err
		}
		doc = append(doc, node)
	}
	return doc, nil
}

// PatchesFromDocument 只为带积分的目标节点生成写回内容，currency cost 和 bonus points 会一起回写。
func PatchesFromDocument(doc domain.Document) ([]DOMPatch, error) {
	var patches []DOMPatch
	for _, n := range doc {
		if n.Target != domain.TargetPointValue && n.Target != domain.TargetTotalPointsValue {
			continue
		}
		p := DOMPatch{
			ID:    n.ID,
			Text:  n.Rendered,
			Attrs: map[string]string{attrCurrencyCost: strconv.FormatInt(n.CurrencyCost, 10)},
		}
		if n.Bonus != nil {
			raw, err := json.Marshal(n.Bonus)
			if err != nil {
				return nil, errors.Wrapf(err, "node %s: encode bonus points", n.ID)
			}
			p.Attrs[attrBonusPoints] = string(raw)
		}
		patches = append(patches, p)
	}
	return patches, nil
}

func hasAttr(n DOMNode, name string) bool {
	_, ok := n.Attrs[name]
	return ok
}
