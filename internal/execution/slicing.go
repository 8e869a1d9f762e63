package execution

import "fmt"

// Slice splits an order into same-side child orders each bounded by the
// clip size. For quantity Q and clip C it produces ceil(Q/C) children that
// sum exactly to Q, ids suffixed -child-N in submission order. A clip of
// zero or one covering the whole quantity returns a single child.
func Slice(order Order, clip float64) []Order {
	if clip <= 0 || order.Quantity <= clip {
		child := order
		child.ID = fmt.Sprintf("%s-child-0", order.ID)
		return []Order{child}
	}
	var children []Order
	remaining := order.Quantity
	for i := 0; remaining > 0; i++ {
		qty := clip
		if remaining < clip {
			qty = remaining
		}
		child := order
		child.ID = fmt.Sprintf("%s-child-%d", order.ID, i)
		child.Quantity = qty
		children = append(children, child)
		remaining -= qty
	}
	return children
}
