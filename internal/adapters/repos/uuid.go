package repos

import "github.com/google/uuid"

// OutboxNamespace is the UUID V5 namespace for outbox events.
var OutboxNamespace = uuid.MustParse("b9c6f6d1-8e4a-5f2b-c9d5-9fadab2c4d5f")
