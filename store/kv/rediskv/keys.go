package rediskv

// Redis key naming conventions. All keys carry the backend's prefix
// ("docket:" unless overridden) to avoid collisions.

// collectionKey returns the Hash holding a collection: docket:coll:{name}
func (b *Backend) collectionKey(name string) string {
	return b.prefix + "coll:" + name
}

// collectionsKey is the Set tracking collection names for Purge.
func (b *Backend) collectionsKey() string {
	return b.prefix + "collections"
}
