package booking

// Role identifies which side of the marketplace issued a command.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleWorkshop Role = "workshop"
	RolePlatform Role = "platform"
)

type Actor struct {
	Role Role   `json:"role"`
	ID   string `json:"id"`
}

func Customer(id string) Actor { return Actor{Role: RoleCustomer, ID: id} }
func Workshop(id string) Actor { return Actor{Role: RoleWorkshop, ID: id} }

// Platform is the operator acting on its own behalf (webhooks, sweeps, support).
func Platform() Actor { return Actor{Role: RolePlatform, ID: "platform"} }

func (b *Booking) isOwningCustomer(a Actor) bool {
	return a.Role == RoleCustomer && a.ID == b.CustomerID
}

func (b *Booking) isOwningWorkshop(a Actor) bool {
	return a.Role == RoleWorkshop && a.ID == b.WorkshopID
}

func (b *Booking) isParty(a Actor) bool {
	return b.isOwningCustomer(a) || b.isOwningWorkshop(a)
}
