package enums

// TransitionSource records which aggregate triggered an order status change.
type TransitionSource string

const (
	TransitionSourceOrder    TransitionSource = "order"
	TransitionSourceDispatch TransitionSource = "dispatch"
	TransitionSourcePublic   TransitionSource = "public"
)
