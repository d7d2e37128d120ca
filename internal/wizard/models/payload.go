package models

// Payload is the record handed to the registration service: scalars, group
// items as lists of records, attachment references, optionally nested into
// named sections.
type Payload map[string]any
