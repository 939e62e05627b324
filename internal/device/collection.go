package device

// Collection is an owned set of device descriptors. It must be released
// exactly once with Close (or Registry.Destroy); after that Devices is nil
// and Count is 0.
type Collection struct {
	Devices []Info
	Count   int

	owner *Registry
}

// Close releases the collection back to the registry that built it.
func (c *Collection) Close() {
	if c.owner == nil {
		panic("device: collection was not built by a registry")
	}
	c.owner.Destroy(c)
}

// Released reports whether the collection has been destroyed or was empty.
func (c *Collection) Released() bool {
	return c.Devices == nil && c.Count == 0
}

// Filter returns copies of the descriptors of one direction. The copies do
// not own their text fields.
func (c *Collection) Filter(typ Type) []Info {
	var out []Info
	for _, info := range c.Devices {
		if info.Type&typ != 0 {
			out = append(out, info)
		}
	}
	return out
}
