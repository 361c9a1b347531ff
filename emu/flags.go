package emu

import "golang.org/x/exp/maps"

// FlagStore maps flag identities to boolean values. Flags that were never
// set read as false.
type FlagStore struct {
	flags map[string]bool
}

// NewFlagStore creates an empty flag store.
func NewFlagStore() *FlagStore {
	return &FlagStore{flags: make(map[string]bool)}
}

// Set stores and returns the flag value.
func (f *FlagStore) Set(flag string, value bool) bool {
	f.flags[flag] = value
	return value
}

// Get returns the stored value, or false for a flag that was never set.
func (f *FlagStore) Get(flag string) bool {
	return f.flags[flag]
}

// Values returns a snapshot of all flags that have been explicitly set.
func (f *FlagStore) Values() map[string]bool {
	return maps.Clone(f.flags)
}
