package transfers

// IncludeFlags is a bitmask combining an output-state selector with an
// output-type selector. An output passes Container.isIncludedLocked iff at least
// one selected type bit matches its type AND at least one selected state bit
// matches its lock state.
type IncludeFlags uint32

const (
	IncludeStateUnlocked IncludeFlags = 1 << iota
	IncludeStateLocked
	IncludeStateSoftLocked

	IncludeTypeKey
	IncludeTypeMultisignature
)

// Named aggregates, carried over from the original's BehaviorFlags-style
// enum composition.
const (
	// IncludeDefault selects spendable Key outputs: unlocked and of type
	// Key. This is what a wallet's "available balance" means in practice.
	IncludeDefault = IncludeStateUnlocked | IncludeTypeKey

	// IncludeAll selects every owned output regardless of lock state or
	// type.
	IncludeAll = IncludeStateUnlocked | IncludeStateLocked | IncludeStateSoftLocked |
		IncludeTypeKey | IncludeTypeMultisignature
)
