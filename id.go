package docket

import "github.com/xraph/docket/id"

// ID is the identifier type used for jobs and generated record ids.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
