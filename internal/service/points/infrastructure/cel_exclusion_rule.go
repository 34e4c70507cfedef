// internal/service/points/infrastructure/cel_exclusion_rule.go
package infrastructure

import (
	"easypoints/internal/service/points/domain"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// CELExclusionRule 是 domain.ExclusionRule 的 CEL 实现。
// 表达式中可以使用变量 item，例如 `item.gift_card || "no-points" in item.tags`。
type CELExclusionRule struct {
	expr    string
	program cel.Program
}

// NewCELExclusionRule 编译表达式，表达式必须返回 bool。
func NewCELExclusionRule(expr string) (*CELExclusionRule, error) {
	env, err := cel.NewEnv(cel.Variable("item", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}
	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "compile exclusion rule %q", expr)
	}
	// item 的字段是 dyn，`item.gift_card` 这样的表达式只能在求值时确认类型
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, errors.Errorf("exclusion rule %q must return bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "build exclusion rule %q", expr)
	}
	return &CELExclusionRule{expr: expr, program: prg}, nil
}

// Excluded 对节点的行项目求值，没有行项目时不排除。
func (r *CELExclusionRule) Excluded(node domain.PointNode) (bool, error) {
	if node.Item == nil {
		return false, nil
	}
	out, _, err := r.program.Eval(map[string]any{"item": itemFact(node)})
	if err != nil {
		return false, errors.Wrapf(err, "eval exclusion rule for node %s", node.ID)
	}
	hit, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("exclusion rule %q returned %T", r.expr, out.Value())
	}
	return hit, nil
}

func itemFact(node domain.PointNode) map[string]any {
	qty := int64(node.Quantity)
	if qty <= 0 {
		qty = 1
	}
	tags := node.Item.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"product_id":   node.Item.ProductID,
		"variant_id":   node.Item.VariantID,
		"vendor":       node.Item.Vendor,
		"product_type": node.Item.ProductType,
		"gift_card":    node.Item.GiftCard,
		"tags":         tags,
		"cost":         node.CurrencyCost,
		"quantity":     qty,
	}
}
