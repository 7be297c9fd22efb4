package order

import "testing"

func TestConditionVariants(t *testing.T) {
	tests := []struct {
		name  string
		order TriggerOrder
		price string
		want  bool
	}{
		{"limit above below trigger", TriggerOrder{IsLimit: true, Comparison: AboveMarket, TriggerPrice: d("1200")}, "1150", false},
		{"limit above crossed", TriggerOrder{IsLimit: true, Comparison: AboveMarket, TriggerPrice: d("1200")}, "1201", true},
		{"limit above equal", TriggerOrder{IsLimit: true, Comparison: AboveMarket, TriggerPrice: d("1200")}, "1200", true},
		{"limit below", TriggerOrder{IsLimit: true, Comparison: BelowMarket, TriggerPrice: d("1000")}, "999", true},
		{"limit signed negative trigger", TriggerOrder{IsLimit: true, Comparison: BelowMarket, TriggerPrice: d("-1100")}, "1050", false},
		{"protective abs above", TriggerOrder{Comparison: AboveMarket, TriggerPrice: d("-1100")}, "1150", true},
		{"protective abs above not met", TriggerOrder{Comparison: AboveMarket, TriggerPrice: d("-1100")}, "1050", false},
		{"protective abs below", TriggerOrder{Comparison: BelowMarket, TriggerPrice: d("-1100")}, "1050", true},
		{"protective positive", TriggerOrder{Comparison: BelowMarket, TriggerPrice: d("900")}, "901", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.order.Condition().Satisfied(d(tt.price)); got != tt.want {
				t.Errorf("Satisfied(%s) = %v, want %v", tt.price, got, tt.want)
			}
		})
	}
}

func TestConditionKind(t *testing.T) {
	limit := TriggerOrder{IsLimit: true, TriggerPrice: d("-5")}
	if c, ok := limit.Condition().(LimitCondition); !ok || !c.Price.Equal(d("-5")) {
		t.Errorf("limit order produced %#v", limit.Condition())
	}
	protective := TriggerOrder{TriggerPrice: d("-5")}
	if c, ok := protective.Condition().(ProtectiveCondition); !ok || !c.AbsPrice.Equal(d("5")) {
		t.Errorf("protective order produced %#v", protective.Condition())
	}
}
