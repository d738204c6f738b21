package auth

// Capability is a single permission checked by handlers
type Capability string

const (
	CapPay               Capability = "payment:submit"
	CapViewOwnPayment    Capability = "payment:view_own"
	CapViewAnyPayment    Capability = "payment:view_any"
	CapViewPaymentLedger Capability = "payment:view_ledger"
)

// Roles issued by the identity provider
const (
	RoleBuyer  = "BUYER"
	RoleSeller = "SELLER"
	RoleAdmin  = "ADMIN"
)

// CapabilitySet is the set of capabilities a principal holds
type CapabilitySet map[Capability]struct{}

// Has reports whether c is in the set
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

func setOf(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

var roleCapabilities = map[string]CapabilitySet{
	RoleBuyer:  setOf(CapPay, CapViewOwnPayment),
	RoleSeller: setOf(CapPay, CapViewOwnPayment),
	RoleAdmin:  setOf(CapPay, CapViewOwnPayment, CapViewAnyPayment, CapViewPaymentLedger),
}

// CapabilitiesFor unions the capabilities of every role; unknown roles grant nothing
func CapabilitiesFor(roles ...string) CapabilitySet {
	out := CapabilitySet{}
	for _, r := range roles {
		for c := range roleCapabilities[r] {
			out[c] = struct{}{}
		}
	}
	return out
}

// Can reports whether any of roles grants c
func Can(c Capability, roles ...string) bool {
	return CapabilitiesFor(roles...).Has(c)
}
